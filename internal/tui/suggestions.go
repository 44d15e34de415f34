package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
)

// Suggestion kinds.
const (
	kindCommand = "command"
	kindTask    = "task"
)

// maxSuggestions is the height of the completion window.
const maxSuggestions = 5

// SuggestionItem is one completion candidate.
type SuggestionItem struct {
	Text        string
	Description string
	Kind        string
}

var commandSuggestions = []SuggestionItem{
	{Text: "/filter", Description: "Show tasks with a status (or all)", Kind: kindCommand},
	{Text: "/results", Description: "Show check results for the selected task", Kind: kindCommand},
	{Text: "/validate", Description: "Validate a repository URL", Kind: kindCommand},
	{Text: "/templates", Description: "List task templates", Kind: kindCommand},
	{Text: "/health", Description: "Show daemon health", Kind: kindCommand},
	{Text: "/refresh", Description: "Reload the current view", Kind: kindCommand},
	{Text: "/quit", Description: "Exit", Kind: kindCommand},
}

// Suggestions completes the first word of the input: "/" starts a command,
// "@" a task id.
type Suggestions struct {
	tasks    []SuggestionItem
	matches  []SuggestionItem
	cursor   int
	trigger  byte
	lastText string
}

// NewSuggestions creates an empty completer.
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

// Update recomputes matches for input.
func (s *Suggestions) Update(input string) {
	s.lastText = input
	s.trigger = 0
	s.matches = nil
	s.cursor = 0

	if input == "" || strings.ContainsRune(input, ' ') {
		return
	}
	switch input[0] {
	case '/':
		s.trigger = '/'
		s.matches = match(commandSuggestions, input)
	case '@':
		s.trigger = '@'
		s.matches = match(s.tasks, input)
	}
}

// SetTasks replaces the task candidates and refreshes open matches.
func (s *Suggestions) SetTasks(tasks []TaskItem) {
	s.tasks = lo.Map(tasks, func(t TaskItem, _ int) SuggestionItem {
		return SuggestionItem{
			Text:        "@" + t.ID,
			Description: fmt.Sprintf("round %d • %s", t.Round, t.Identity),
			Kind:        kindTask,
		}
	})
	if s.trigger == '@' {
		s.Update(s.lastText)
	}
}

// match returns the candidates containing query, prefix matches first.
func match(candidates []SuggestionItem, query string) []SuggestionItem {
	query = strings.ToLower(query)
	if len(query) <= 1 {
		return candidates
	}
	contains := lo.Filter(candidates, func(c SuggestionItem, _ int) bool {
		return strings.Contains(strings.ToLower(c.Text), query)
	})
	prefixed, rest := lo.FilterReject(contains, func(c SuggestionItem, _ int) bool {
		return strings.HasPrefix(strings.ToLower(c.Text), query)
	})
	return append(prefixed, rest...)
}

// Next moves the cursor down, wrapping around.
func (s *Suggestions) Next() {
	if n := len(s.matches); n > 0 {
		s.cursor = (s.cursor + 1) % n
	}
}

// Prev moves the cursor up, wrapping around.
func (s *Suggestions) Prev() {
	if n := len(s.matches); n > 0 {
		s.cursor = (s.cursor + n - 1) % n
	}
}

// Selected returns the candidate under the cursor, or nil.
func (s *Suggestions) Selected() *SuggestionItem {
	if s.cursor >= len(s.matches) {
		return nil
	}
	return &s.matches[s.cursor]
}

// IsVisible reports whether there is anything to show.
func (s *Suggestions) IsVisible() bool {
	return len(s.matches) > 0
}

// Render draws the completion window, scrolled to keep the cursor in view.
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))
	descStyle := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	cursorStyle := lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor).Bold(true)

	title := "Commands"
	if s.trigger == '@' {
		title = "Tasks"
	}

	first := 0
	if s.cursor >= maxSuggestions {
		first = s.cursor - maxSuggestions + 1
	}
	last := min(first+maxSuggestions, len(s.matches))

	lines := []string{sectionStyle.Render(title)}
	for i := first; i < last; i++ {
		item := s.matches[i]
		if i == s.cursor {
			lines = append(lines, cursorStyle.Render("▶ "+item.Text+"  "+item.Description))
			continue
		}
		lines = append(lines, "  "+item.Text+"  "+descStyle.Render(item.Description))
	}
	if hidden := len(s.matches) - last; hidden > 0 {
		lines = append(lines, descStyle.Render(fmt.Sprintf("  ... %d more", hidden)))
	}

	return box.Render(strings.Join(lines, "\n"))
}
