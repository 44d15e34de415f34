package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func sampleTasks() []TaskItem {
	return []TaskItem{
		{ID: "csv-sum-1a2b3", Round: 1, Identity: "alice@example.com", Template: "csv-sum", Status: "completed"},
		{ID: "md-html-9f8e7", Round: 1, Identity: "bob@example.com", Template: "md-html", Status: "sent"},
	}
}

func TestSuggestions_Commands(t *testing.T) {
	s := NewSuggestions()

	s.Update("/")
	if !s.IsVisible() {
		t.Fatal("Expected suggestions for /")
	}
	if len(s.matches) != len(commandSuggestions) {
		t.Errorf("Expected all %d commands, got %d", len(commandSuggestions), len(s.matches))
	}

	s.Update("/va")
	if sel := s.Selected(); sel == nil || sel.Text != "/validate" {
		t.Errorf("Expected /validate, got %v", sel)
	}

	s.Update("/validate https://github.com/a/b")
	if s.IsVisible() {
		t.Error("Arguments should not be completed")
	}

	s.Update("hello")
	if s.IsVisible() {
		t.Error("Plain text should not show suggestions")
	}
}

func TestSuggestions_Tasks(t *testing.T) {
	s := NewSuggestions()
	s.Update("@")
	if s.IsVisible() {
		t.Error("Expected no task suggestions before tasks load")
	}

	s.SetTasks(sampleTasks())
	if !s.IsVisible() || len(s.matches) != 2 {
		t.Fatalf("Expected 2 task suggestions, got %d", len(s.matches))
	}

	s.Update("@md")
	if sel := s.Selected(); sel == nil || sel.Text != "@md-html-9f8e7" {
		t.Errorf("Expected @md-html-9f8e7, got %v", sel)
	}

	s.Next()
	s.Prev()
	if sel := s.Selected(); sel == nil || sel.Kind != kindTask {
		t.Errorf("Expected a task suggestion, got %v", sel)
	}
}

func TestSuggestions_PrefixFirst(t *testing.T) {
	candidates := []SuggestionItem{
		{Text: "@csv-md-00001"},
		{Text: "@md-html-00002"},
		{Text: "@other"},
	}
	got := match(candidates, "@MD")
	if len(got) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(got))
	}
	if got[0].Text != "@md-html-00002" {
		t.Errorf("Expected prefix match first, got %s", got[0].Text)
	}
}

func TestSuggestions_RenderScrolls(t *testing.T) {
	s := NewSuggestions()
	s.Update("/")
	for i := 0; i < 6; i++ {
		s.Next()
	}
	out := s.Render(80)
	if !strings.Contains(out, "/quit") {
		t.Error("Expected window scrolled to the cursor")
	}
	if strings.Contains(out, "/filter") {
		t.Error("Expected first command scrolled out of view")
	}
}

func TestApp_TasksLoaded(t *testing.T) {
	app := New("http://127.0.0.1:0")
	app.selectedIdx = 5

	app.Update(tasksLoadedMsg{sampleTasks()})
	if !app.daemonOnline {
		t.Error("Expected daemon online after load")
	}
	if app.selectedIdx != 1 {
		t.Errorf("Expected selection clamped to 1, got %d", app.selectedIdx)
	}

	view := app.View()
	for _, want := range []string{"TASKFORGE", "csv-sum-1a2b3", "bob@example.com", "Filter: [ALL]"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestApp_Navigation(t *testing.T) {
	app := New("http://127.0.0.1:0")
	app.Update(tasksLoadedMsg{sampleTasks()})

	app.Update(tea.KeyMsg{Type: tea.KeyDown})
	if app.selectedIdx != 1 {
		t.Errorf("Expected selection 1, got %d", app.selectedIdx)
	}
	app.Update(tea.KeyMsg{Type: tea.KeyDown})
	if app.selectedIdx != 1 {
		t.Errorf("Expected selection to stay at 1, got %d", app.selectedIdx)
	}
	app.Update(tea.KeyMsg{Type: tea.KeyUp})
	if app.selectedIdx != 0 {
		t.Errorf("Expected selection 0, got %d", app.selectedIdx)
	}

	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	if app.filterIdx != 1 || filters[app.filterIdx] != "pending" {
		t.Errorf("Expected pending filter, got %d", app.filterIdx)
	}
}

func TestApp_DetailView(t *testing.T) {
	app := New("http://127.0.0.1:0")
	app.mode = modeDetail

	app.Update(taskDetailLoadedMsg{
		task: &TaskDetail{
			ID: "csv-sum-1a2b3", Round: 1, Identity: "alice@example.com",
			Template: "csv-sum", Status: "completed", Brief: "Sum the CSV",
			Checks: []string{"Repo has MIT license"},
		},
		results: &Results{
			RepoURL:   "https://github.com/alice/sum",
			CommitSHA: "abcdef1234567",
			Checks:    []CheckRow{{Name: "license_mit", Status: "passed", Score: 1}},
		},
	})

	view := app.View()
	for _, want := range []string{"csv-sum-1a2b3", "Repo has MIT license", "abcdef1", "license_mit"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected detail view to contain %q", want)
		}
	}

	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if app.mode != modeList || app.currentTask != nil {
		t.Errorf("Expected list mode after esc, got %s", app.mode)
	}
}

func TestApp_NoSubmission(t *testing.T) {
	app := New("http://127.0.0.1:0")
	app.mode = modeDetail
	app.Update(taskDetailLoadedMsg{task: &TaskDetail{ID: "t-1", Round: 1, Status: "sent"}})

	if !strings.Contains(app.View(), "No submission yet") {
		t.Error("Expected no-submission placeholder")
	}
}

func TestApp_Commands(t *testing.T) {
	app := New(fakeAPI(t).URL)
	app.Update(tasksLoadedMsg{sampleTasks()})

	msg := app.executeCommand("/validate https://github.com/alice/sum")()
	res, ok := msg.(commandResultMsg)
	if !ok || !strings.Contains(res.message, "alice/sum") {
		t.Errorf("Unexpected validate result %#v", msg)
	}

	msg = app.executeCommand("/templates")()
	if app.mode != modeTemplates {
		t.Errorf("Expected templates mode, got %s", app.mode)
	}
	app.Update(msg)
	if len(app.templates) != 2 {
		t.Errorf("Expected 2 templates, got %v", app.templates)
	}

	msg = app.executeCommand("@csv-sum-1a2b3")()
	detail, ok := msg.(taskDetailLoadedMsg)
	if !ok {
		t.Fatalf("Expected detail message, got %#v", msg)
	}
	if app.mode != modeDetail || detail.results == nil {
		t.Errorf("Expected detail with results, got mode %s", app.mode)
	}

	msg = app.executeCommand("/filter bogus")()
	if res, ok := msg.(commandResultMsg); !ok || !strings.Contains(res.message, "Unknown status") {
		t.Errorf("Unexpected filter result %#v", msg)
	}

	msg = app.executeCommand("/nope")()
	if res, ok := msg.(commandResultMsg); !ok || !strings.Contains(res.message, "Unknown") {
		t.Errorf("Unexpected result %#v", msg)
	}
}

func TestApp_ErrorMessage(t *testing.T) {
	app := New("http://127.0.0.1:0")
	app.Update(errMsg{errors.New("connection refused")})

	if !strings.Contains(app.View(), "Error: connection refused") {
		t.Error("Expected error in view")
	}
}
