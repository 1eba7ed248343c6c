// Package tui is the terminal front end of the chat: a transcript, an input
// box and the ingestion progress indicator over a chat.Orchestrator.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"wolfie/pkg/chat"
	"wolfie/pkg/logger"
)

const inputHeight = 3

// Options configures the model.
type Options struct {
	// GlamourStyle is a glamour standard style name. Empty means "dark".
	GlamourStyle string
	// Copy writes text to the clipboard. Nil uses the system clipboard.
	Copy func(string) error
}

type keyMap struct {
	Submit key.Binding
	Clear  key.Binding
	Copy   key.Binding
	Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Clear:  key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
		Copy:   key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy answer")),
		Quit:   key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
	}
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	orch   *chat.Orchestrator
	events chan chat.Event
	unsub  func()
	opts   Options
	keys   keyMap

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	rendered map[string]string

	state   chat.State
	pending []chat.Attachment
	width   int
	height  int
	status  string
}

type eventMsg chat.Event

type submitDoneMsg struct {
	res chat.Result
	err error
}

type copyMsg struct{ err error }

// New builds the model and subscribes it to orch. Call Close when done.
func New(orch *chat.Orchestrator, opts Options) *Model {
	if opts.GlamourStyle == "" {
		opts.GlamourStyle = "dark"
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}

	ta := textarea.New()
	ta.Placeholder = "Ask Wolfie about programs, admission or enrollment. /attach <file> to add a document."
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.CharLimit = 4000
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points

	m := &Model{
		orch:     orch,
		events:   make(chan chat.Event, 64),
		opts:     opts,
		keys:     defaultKeys(),
		input:    ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		rendered: make(map[string]string),
		state:    orch.State(),
		width:    80,
		height:   24,
	}
	m.unsub = orch.Subscribe(func(ev chat.Event) {
		// events are snapshots, so dropping one under pressure loses nothing
		select {
		case m.events <- ev:
		default:
		}
	})
	m.resize()
	m.refresh()
	return m
}

// Close unsubscribes from the orchestrator.
func (m *Model) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.waitForEvent())
}

func (m *Model) waitForEvent() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refresh()

	case eventMsg:
		m.state = msg.State
		m.refresh()
		cmds = append(cmds, m.waitForEvent())

	case submitDoneMsg:
		m.state = m.orch.State()
		switch {
		case msg.err != nil:
			m.status = msg.err.Error()
		case msg.res.Outcome == chat.OutcomeFailed:
			m.status = "request failed"
		case msg.res.Outcome == chat.OutcomeAnswered:
			m.status = fmt.Sprintf("answered in %s", msg.res.Elapsed.Round(100*time.Millisecond))
		default:
			m.status = ""
		}
		m.refresh()

	case copyMsg:
		if msg.err != nil {
			m.status = "Could not copy: " + msg.err.Error()
		} else {
			m.status = "Copied last answer to clipboard"
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.state.Busy {
			m.refresh()
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.clear()
			return m, nil
		case key.Matches(msg, m.keys.Copy):
			return m, m.copyLast()
		case key.Matches(msg, m.keys.Submit):
			return m, m.submit()
		case msg.String() == "pgup", msg.String() == "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles the input line: slash commands run locally, everything
// else goes to the orchestrator together with the queued attachments.
func (m *Model) submit() tea.Cmd {
	raw := m.input.Value()
	text := strings.TrimSpace(raw)
	if handled := m.command(text); handled {
		m.input.Reset()
		return nil
	}
	if m.orch.Busy() {
		m.status = "Wolfie is still working on the last message"
		return nil
	}
	if text == "" && len(m.pending) == 0 {
		return nil
	}
	atts := m.pending
	m.pending = nil
	m.input.Reset()
	m.status = ""
	orch := m.orch
	return func() tea.Msg {
		res, err := orch.Submit(context.Background(), raw, atts)
		return submitDoneMsg{res: res, err: err}
	}
}

func (m *Model) command(text string) bool {
	if !strings.HasPrefix(text, "/") {
		return false
	}
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/clear":
		m.clear()
	case "/attach":
		if arg == "" {
			m.status = "usage: /attach <path>"
			return true
		}
		a, err := localAttachment(arg)
		if err != nil {
			m.status = err.Error()
			return true
		}
		m.pending = append(m.pending, a)
		m.status = "attached " + a.Filename
	case "/detach":
		m.pending = nil
		m.status = "attachments removed"
	default:
		m.status = "unknown command " + name + " (try /attach, /detach or /clear)"
	}
	return true
}

func (m *Model) clear() {
	m.orch.Clear()
	m.pending = nil
	m.state = m.orch.State()
	m.rendered = make(map[string]string)
	m.status = "conversation cleared"
	m.refresh()
}

func (m *Model) copyLast() tea.Cmd {
	var last string
	for i := len(m.state.Messages) - 1; i >= 0; i-- {
		if m.state.Messages[i].Role == chat.RoleAssistant {
			last = m.state.Messages[i].Content
			break
		}
	}
	if last == "" {
		m.status = "nothing to copy yet"
		return nil
	}
	copyFn := m.opts.Copy
	return func() tea.Msg {
		return copyMsg{err: copyFn(last)}
	}
}

func (m *Model) resize() {
	w := m.width
	if w < 20 {
		w = 20
	}
	m.input.SetWidth(w)
	// header, status line and help take three rows
	h := m.height - inputHeight - 3 - progressRows
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h

	wrap := w - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.opts.GlamourStyle),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		logger.Warn("glamour_renderer_failed", "error", err)
		r = nil
	}
	m.renderer = r
	m.rendered = make(map[string]string)
}

// Run shows the chat screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, orch *chat.Orchestrator, opts Options) error {
	m := New(orch, opts)
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
