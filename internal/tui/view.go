package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"wolfie/pkg/chat"
)

// rows reserved under the transcript for the progress indicator
const progressRows = 1

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	userStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func (m *Model) View() string {
	header := titleStyle.Render("Wolfie") + mutedStyle.Render("  your academic support assistant")
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.progressLine(),
		m.input.View(),
		m.statusLine(),
		mutedStyle.Render("enter send • alt+enter newline • ctrl+l clear • ctrl+y copy answer • esc quit"),
	)
}

// refresh re-renders the transcript into the viewport and keeps it pinned
// to the bottom.
func (m *Model) refresh() {
	var sb strings.Builder
	if len(m.state.Messages) == 0 {
		sb.WriteString(mutedStyle.Render("Hi! I'm Wolfie. Ask me anything about CCS programs, admission or enrollment."))
		sb.WriteString("\n")
	}
	for _, msg := range m.state.Messages {
		switch msg.Role {
		case chat.RoleUser:
			sb.WriteString(userStyle.Render("You"))
			sb.WriteString("\n")
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n")
		default:
			sb.WriteString(botStyle.Render("Wolfie"))
			sb.WriteString("\n")
			sb.WriteString(m.renderMarkdown(msg))
			sb.WriteString("\n")
		}
	}
	if m.state.Busy && !m.state.Progress.Active() {
		sb.WriteString(m.spinner.View() + mutedStyle.Render(" Wolfie is thinking..."))
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderMarkdown(msg chat.Message) string {
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out := msg.Content + "\n"
	if m.renderer != nil {
		if r, err := m.renderer.Render(msg.Content); err == nil {
			out = strings.TrimLeft(r, "\n")
		}
	}
	m.rendered[msg.ID] = out
	return out
}

// progressLine shows the four ingestion steps, or nothing when idle.
func (m *Model) progressLine() string {
	p := m.state.Progress
	if !p.Active() {
		return ""
	}
	parts := make([]string, 0, len(p.Steps))
	for i, s := range p.Steps {
		switch {
		case i < p.Current:
			parts = append(parts, doneStyle.Render("✓ "+s))
		case i == p.Current:
			parts = append(parts, m.spinner.View()+" "+s)
		default:
			parts = append(parts, mutedStyle.Render("· "+s))
		}
	}
	return strings.Join(parts, "  ")
}

func (m *Model) statusLine() string {
	var parts []string
	if n := len(m.pending); n > 0 {
		names := make([]string, 0, n)
		for _, a := range m.pending {
			names = append(names, a.Filename)
		}
		parts = append(parts, fmt.Sprintf("📎 %s", strings.Join(names, ", ")))
	}
	if s := strings.TrimSpace(m.status); s != "" {
		style := mutedStyle
		if strings.Contains(s, "failed") || strings.HasPrefix(s, "Could not") || strings.Contains(s, "no such file") {
			style = errStyle
		}
		parts = append(parts, style.Render(s))
	}
	return strings.Join(parts, "  ")
}
