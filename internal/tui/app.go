// Package tui provides the interactive terminal dashboard for taskforge.
package tui

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	taskItemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cyanColor)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// View modes.
const (
	modeList      = "list"
	modeDetail    = "detail"
	modeHealth    = "health"
	modeTemplates = "templates"
)

// refreshInterval is how often an in-flight evaluation is polled.
const refreshInterval = 2 * time.Second

var filters = []string{"", "pending", "sent", "received", "evaluating", "completed", "failed"}
var filterNames = []string{"ALL", "PENDING", "SENT", "RECEIVED", "EVALUATING", "DONE", "FAILED"}

// App is the main TUI application model.
type App struct {
	client       *Client
	tasks        []TaskItem
	selectedIdx  int
	input        textinput.Model
	width        int
	height       int
	mode         string
	currentTask  *TaskDetail
	results      *Results
	health       *HealthInfo
	templates    []string
	message      string
	filterIdx    int
	loading      bool
	daemonOnline bool
	suggestions  *Suggestions
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	ti := textinput.New()
	ti.Placeholder = "Type / for commands, @ to jump to a task"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	return &App{
		client:      NewClient(apiAddr),
		input:       ti,
		mode:        modeList,
		width:       80,
		height:      24,
		suggestions: NewSuggestions(),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchTasks(),
		a.checkDaemon(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		typing := a.input.Value() != ""

		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if typing {
				a.input.SetValue("")
				a.suggestions.Update("")
				return a, nil
			}
			if a.mode != modeList {
				a.mode = modeList
				a.currentTask = nil
				a.results = nil
				return a, a.fetchTasks()
			}

		case "up", "k":
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
				return a, nil
			}
			if msg.String() == "up" || !typing {
				if a.mode == modeList && a.selectedIdx > 0 {
					a.selectedIdx--
				}
				if !typing {
					return a, nil
				}
			}

		case "down", "j":
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
				return a, nil
			}
			if msg.String() == "down" || !typing {
				if a.mode == modeList && a.selectedIdx < len(a.tasks)-1 {
					a.selectedIdx++
				}
				if !typing {
					return a, nil
				}
			}

		case "tab":
			if a.suggestions.IsVisible() {
				a.acceptSuggestion()
				return a, nil
			}
			if a.mode == modeList {
				a.filterIdx = (a.filterIdx + 1) % len(filters)
				return a, a.fetchTasks()
			}
			return a, nil

		case "enter":
			if a.suggestions.IsVisible() {
				a.acceptSuggestion()
				// A completed task reference opens directly.
				if !strings.HasPrefix(a.input.Value(), "@") {
					return a, nil
				}
			}
			cmd := strings.TrimSpace(a.input.Value())
			if cmd != "" {
				a.input.SetValue("")
				a.suggestions.Update("")
				return a, a.executeCommand(cmd)
			}
			if a.mode == modeList && len(a.tasks) > 0 {
				return a, a.openTask(a.tasks[a.selectedIdx])
			}
			return a, nil

		case "r":
			if !typing {
				return a, a.refresh()
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 4

	case tasksLoadedMsg:
		a.loading = false
		a.daemonOnline = true
		a.tasks = msg.tasks
		if a.selectedIdx >= len(a.tasks) {
			a.selectedIdx = max(0, len(a.tasks)-1)
		}
		a.suggestions.SetTasks(a.tasks)

	case taskDetailLoadedMsg:
		a.currentTask = msg.task
		a.results = msg.results
		if a.mode == modeDetail && inFlight(msg.task.Status) {
			cmds = append(cmds, a.tickCmd())
		}

	case healthLoadedMsg:
		a.health = msg.health
		a.daemonOnline = true

	case templatesLoadedMsg:
		a.templates = msg.templates

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case tickMsg:
		if a.mode == modeDetail && a.currentTask != nil {
			return a, a.fetchTaskDetail(a.currentTask.ID, a.currentTask.Round)
		}

	case commandResultMsg:
		a.message = msg.message
		return a, nil

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	a.suggestions.Update(a.input.Value())

	return a, tea.Batch(cmds...)
}

func (a *App) acceptSuggestion() {
	if selected := a.suggestions.Selected(); selected != nil {
		text := selected.Text
		if selected.Kind == kindCommand {
			text += " "
		}
		a.input.SetValue(text)
		a.input.CursorEnd()
		a.suggestions.Update(a.input.Value())
	}
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("TASKFORGE") + "  " + daemonStatus
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("[%d tasks]", len(a.tasks)))
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	contentHeight := a.height - 8
	if contentHeight < 5 {
		contentHeight = 5
	}

	switch a.mode {
	case modeList:
		filterLabel := fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])
		b.WriteString(labelStyle.Render(filterLabel) + "\n")
		b.WriteString(a.renderTaskList(contentHeight - 1))
	case modeDetail:
		b.WriteString(a.renderTaskDetail(contentHeight))
	case modeHealth:
		b.WriteString(a.renderHealth())
	case modeTemplates:
		b.WriteString(a.renderTemplates())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))

	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeList:
		status = fmt.Sprintf(" Tasks: %d | ↑↓:nav | Enter:open | Tab:filter | r:refresh | Ctrl+C:quit", len(a.tasks))
	case modeDetail:
		status = " Esc:back | r:refresh | /results | Ctrl+C:quit"
	default:
		status = " Esc:back | r:refresh | Ctrl+C:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(status))

	return b.String()
}

func (a *App) renderTaskList(height int) string {
	if a.loading {
		return "\n  Loading tasks...\n"
	}
	if len(a.tasks) == 0 {
		return "\n  No tasks found. Students request tasks through /api/request.\n"
	}

	var lines []string
	for i, task := range a.tasks {
		label := fmt.Sprintf("%s  r%d  %s", task.ID, task.Round, task.Identity)
		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("▶ %s  %s", statusIcon(task.Status), label)))
		} else {
			lines = append(lines, taskItemStyle.Render(fmt.Sprintf("  %s  %s", formatStatus(task.Status), label)))
		}
	}

	if len(lines) > height {
		start := a.selectedIdx - height/2
		if start < 0 {
			start = 0
		}
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) renderTaskDetail(height int) string {
	if a.currentTask == nil {
		return "\n  Loading...\n"
	}

	var b strings.Builder
	t := a.currentTask

	b.WriteString(fmt.Sprintf("\n  %s\n", lipgloss.NewStyle().Bold(true).Render(t.ID)))
	b.WriteString(field("Round", fmt.Sprintf("%d", t.Round)))
	b.WriteString(field("Student", t.Identity))
	b.WriteString(field("Template", t.Template))
	b.WriteString(field("Status", formatStatus(t.Status)))
	if t.StatusCode != 0 {
		b.WriteString(field("Delivery", fmt.Sprintf("HTTP %d", t.StatusCode)))
	}
	if t.Error != "" {
		b.WriteString(field("Error", lipgloss.NewStyle().Foreground(errorColor).Render(t.Error)))
	}
	if len(t.Attachments) > 0 {
		b.WriteString(field("Attachments", strings.Join(t.Attachments, ", ")))
	}
	b.WriteString(field("Brief", truncate(t.Brief, max(a.width-14, 20))))

	if len(t.Checks) > 0 {
		b.WriteString("\n  " + sectionStyle.Render("Assertions") + "\n")
		for _, c := range t.Checks {
			b.WriteString(fmt.Sprintf("    • %s\n", truncate(c, max(a.width-8, 20))))
		}
	}

	b.WriteString("\n  " + sectionStyle.Render("Evaluation") + "\n")
	if a.results == nil {
		b.WriteString("    " + helpStyle.Render("No submission yet") + "\n")
	} else {
		r := a.results
		b.WriteString(fmt.Sprintf("    %s @ %s\n", r.RepoURL, shortSHA(r.CommitSHA)))
		if len(r.Checks) == 0 {
			b.WriteString("    " + helpStyle.Render("Queued for evaluation") + "\n")
		}
		for _, c := range r.Checks {
			b.WriteString(fmt.Sprintf("    %s %-22s %4.2f  %s\n",
				formatCheck(c.Status), c.Name, c.Score, truncate(c.Reason, max(a.width-40, 20))))
		}
	}

	lines := strings.Split(b.String(), "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderHealth() string {
	var b strings.Builder
	b.WriteString("\n  " + sectionStyle.Render("Daemon Health") + "\n\n")
	if a.health == nil {
		b.WriteString("  Loading...\n")
		return b.String()
	}

	h := a.health
	ok := onlineStyle.Render("healthy")
	if !h.OK {
		ok = offlineStyle.Render("unhealthy")
	}
	b.WriteString(field("Status", ok))
	b.WriteString(field("Database", h.DB))
	b.WriteString(field("Version", h.Version))
	b.WriteString(field("Queue", fmt.Sprintf("%d waiting", h.QueueLength)))

	if len(h.Tasks) > 0 {
		b.WriteString("\n  " + sectionStyle.Render("Tasks by status") + "\n")
		statuses := make([]string, 0, len(h.Tasks))
		for s := range h.Tasks {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			b.WriteString(fmt.Sprintf("    %s %d\n", formatStatus(s), h.Tasks[s]))
		}
	}
	return b.String()
}

func (a *App) renderTemplates() string {
	var b strings.Builder
	b.WriteString("\n  " + sectionStyle.Render("Task Templates") + "\n\n")
	if len(a.templates) == 0 {
		b.WriteString("  No templates registered.\n")
	}
	for i, id := range a.templates {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, id))
	}
	b.WriteString("\n  " + helpStyle.Render("Selection is by md5(identity) modulo this list") + "\n")
	return b.String()
}

func field(label, value string) string {
	return fmt.Sprintf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label+":")), value)
}

func formatStatus(status string) string {
	switch status {
	case "pending":
		return lipgloss.NewStyle().Foreground(warningColor).Render("○ PENDING")
	case "sent":
		return lipgloss.NewStyle().Foreground(secondaryColor).Render("◐ SENT")
	case "received":
		return lipgloss.NewStyle().Foreground(cyanColor).Render("◑ RECEIVED")
	case "evaluating":
		return lipgloss.NewStyle().Foreground(primaryColor).Render("◕ EVALUATING")
	case "completed":
		return lipgloss.NewStyle().Foreground(successColor).Render("● DONE")
	case "failed":
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ FAILED")
	default:
		return status
	}
}

func statusIcon(status string) string {
	switch status {
	case "pending":
		return "○"
	case "sent":
		return "◐"
	case "received":
		return "◑"
	case "evaluating":
		return "◕"
	case "completed":
		return "●"
	case "failed":
		return "✗"
	default:
		return "?"
	}
}

func formatCheck(status string) string {
	switch status {
	case "passed":
		return lipgloss.NewStyle().Foreground(successColor).Render("✓")
	case "failed":
		return lipgloss.NewStyle().Foreground(warningColor).Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(errorColor).Render("!")
	}
}

func inFlight(status string) bool {
	return status == "received" || status == "evaluating"
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func (a *App) refresh() tea.Cmd {
	switch a.mode {
	case modeDetail:
		if a.currentTask != nil {
			return a.fetchTaskDetail(a.currentTask.ID, a.currentTask.Round)
		}
	case modeHealth:
		return a.fetchHealth()
	case modeTemplates:
		return a.fetchTemplates()
	}
	return a.fetchTasks()
}

func (a *App) openTask(t TaskItem) tea.Cmd {
	a.mode = modeDetail
	a.currentTask = nil
	a.results = nil
	return a.fetchTaskDetail(t.ID, t.Round)
}

func (a *App) fetchTasks() tea.Cmd {
	a.loading = true
	filter := filters[a.filterIdx]
	return func() tea.Msg {
		tasks, err := a.client.ListTasks(filter)
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{tasks}
	}
}

func (a *App) fetchTaskDetail(taskID string, round int) tea.Cmd {
	return func() tea.Msg {
		task, err := a.client.GetTask(taskID, round)
		if err != nil {
			return errMsg{err}
		}
		results, err := a.client.GetResults(task.ID, task.Round)
		if err != nil && !errors.Is(err, ErrNoSubmission) {
			return errMsg{err}
		}
		return taskDetailLoadedMsg{task, results}
	}
}

func (a *App) fetchHealth() tea.Cmd {
	return func() tea.Msg {
		h, err := a.client.CheckHealth()
		if err != nil {
			return errMsg{err}
		}
		return healthLoadedMsg{h}
	}
}

func (a *App) fetchTemplates() tea.Cmd {
	return func() tea.Msg {
		ids, err := a.client.ListTemplates()
		if err != nil {
			return errMsg{err}
		}
		return templatesLoadedMsg{ids}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		_, err := a.client.CheckHealth()
		return daemonStatusMsg{online: err == nil}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]

	if strings.HasPrefix(cmd, "@") {
		id := strings.TrimPrefix(cmd, "@")
		for _, t := range a.tasks {
			if t.ID == id {
				return a.openTask(t)
			}
		}
		return a.openTask(TaskItem{ID: id})
	}

	switch cmd {
	case "filter":
		status := ""
		if len(args) > 0 && args[0] != "all" {
			status = args[0]
		}
		for i, f := range filters {
			if f == status {
				a.filterIdx = i
				a.mode = modeList
				return a.fetchTasks()
			}
		}
		return message(fmt.Sprintf("Unknown status: %s", status))

	case "results":
		if a.mode == modeDetail && a.currentTask != nil {
			return a.fetchTaskDetail(a.currentTask.ID, a.currentTask.Round)
		}
		if len(a.tasks) == 0 {
			return message("No task selected")
		}
		return a.openTask(a.tasks[a.selectedIdx])

	case "validate":
		if len(args) < 1 {
			return message("Usage: /validate <repo-url>")
		}
		repoURL := args[0]
		return func() tea.Msg {
			v, err := a.client.ValidateRepo(repoURL)
			if err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			if !v.Valid {
				return commandResultMsg{fmt.Sprintf("✗ %s: %s", repoURL, v.Error)}
			}
			return commandResultMsg{fmt.Sprintf("✓ %s license:%t readme:%t pages:%t commits:%d",
				v.RepoName, v.HasLicense, v.HasReadme, v.PagesEnabled, v.CommitCount)}
		}

	case "templates":
		a.mode = modeTemplates
		return a.fetchTemplates()

	case "health":
		a.mode = modeHealth
		return a.fetchHealth()

	case "refresh":
		return a.refresh()

	case "q", "quit", "exit":
		return tea.Quit

	default:
		return message(fmt.Sprintf("Unknown: %s (type / for commands)", cmd))
	}
}

func message(s string) tea.Cmd {
	return func() tea.Msg { return commandResultMsg{s} }
}

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err error
}

type tasksLoadedMsg struct {
	tasks []TaskItem
}

type taskDetailLoadedMsg struct {
	task    *TaskDetail
	results *Results
}

type healthLoadedMsg struct {
	health *HealthInfo
}

type templatesLoadedMsg struct {
	templates []string
}

type daemonStatusMsg struct {
	online bool
}

type tickMsg time.Time
