package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wolfie/pkg/chat"
)

type stubBackend struct {
	mu       sync.Mutex
	ingested []chat.Document
	answer   string
	err      error
}

func (b *stubBackend) IngestDocument(_ context.Context, d chat.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ingested = append(b.ingested, d)
	return nil
}

func (b *stubBackend) Answer(context.Context, string, int) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return b.answer, nil
}

func newModel(t *testing.T, b *stubBackend) (*Model, *[]string) {
	t.Helper()
	orch := chat.NewOrchestrator(b, chat.Options{StagePause: -1})
	t.Cleanup(orch.Close)
	copied := &[]string{}
	m := New(orch, Options{Copy: func(s string) error {
		*copied = append(*copied, s)
		return nil
	}})
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, copied
}

func typeAndSend(m *Model, text string) tea.Cmd {
	m.input.SetValue(text)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

// run executes a command that is expected to produce a single message.
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	m.Update(cmd())
}

func TestSubmitRendersAnswer(t *testing.T) {
	m, _ := newModel(t, &stubBackend{answer: "The **BSCS** program takes four years."})

	run(t, m, typeAndSend(m, "How long is BSCS?"))

	require.Len(t, m.state.Messages, 2)
	assert.Equal(t, chat.RoleUser, m.state.Messages[0].Role)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.status, "answered in")
	view := m.View()
	assert.Contains(t, view, "How long is BSCS?")
	assert.Contains(t, view, "BSCS")
}

func TestSubmitKeepsRawText(t *testing.T) {
	m, _ := newModel(t, &stubBackend{answer: "hello"})
	run(t, m, typeAndSend(m, "  hi  "))
	require.Len(t, m.state.Messages, 2)
	assert.Equal(t, "  hi  ", m.state.Messages[0].Content)
}

func TestBlankSubmitIsIgnored(t *testing.T) {
	m, _ := newModel(t, &stubBackend{answer: "x"})
	assert.Nil(t, typeAndSend(m, "   "))
	assert.Empty(t, m.state.Messages)
}

func TestFailedSubmitShowsStatus(t *testing.T) {
	m, _ := newModel(t, &stubBackend{err: errors.New("boom")})
	run(t, m, typeAndSend(m, "hello?"))
	assert.Equal(t, "request failed", m.status)
	require.Len(t, m.state.Messages, 2)
	assert.Equal(t, "boom", m.state.Messages[1].Content)
}

func TestAttachCommand(t *testing.T) {
	b := &stubBackend{answer: "ok"}
	m, _ := newModel(t, b)

	path := filepath.Join(t.TempDir(), "handbook.md")
	require.NoError(t, os.WriteFile(path, []byte("# Handbook"), 0o644))

	assert.Nil(t, typeAndSend(m, "/attach "+path))
	require.Len(t, m.pending, 1)
	assert.Equal(t, "handbook.md", m.pending[0].Filename)
	assert.Equal(t, "text/markdown", m.pending[0].MediaType)
	assert.Contains(t, m.statusLine(), "handbook.md")

	assert.Nil(t, typeAndSend(m, "/attach "+filepath.Join(t.TempDir(), "missing.txt")))
	assert.Len(t, m.pending, 1)
	assert.Contains(t, m.status, "attach:")

	// attachment-only submission
	run(t, m, typeAndSend(m, ""))
	assert.Empty(t, m.pending)
	require.Len(t, b.ingested, 1)
	assert.Equal(t, "handbook.md", b.ingested[0].Filename)
	assert.Equal(t, chat.UploadDoneText, m.state.Messages[len(m.state.Messages)-1].Content)
}

func TestClearAndUnknownCommand(t *testing.T) {
	m, _ := newModel(t, &stubBackend{answer: "ok"})
	run(t, m, typeAndSend(m, "hi"))
	require.NotEmpty(t, m.state.Messages)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.state.Messages)
	assert.Equal(t, "conversation cleared", m.status)

	assert.Nil(t, typeAndSend(m, "/bogus"))
	assert.True(t, strings.HasPrefix(m.status, "unknown command /bogus"))

	run(t, m, typeAndSend(m, "again"))
	assert.Nil(t, typeAndSend(m, "/clear"))
	assert.Empty(t, m.state.Messages)
}

func TestCopyLastAnswer(t *testing.T) {
	m, copied := newModel(t, &stubBackend{answer: "Enrollment opens in June."})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Nil(t, cmd)
	assert.Equal(t, "nothing to copy yet", m.status)

	run(t, m, typeAndSend(m, "When?"))
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	run(t, m, cmd)
	assert.Equal(t, []string{"Enrollment opens in June."}, *copied)
	assert.Equal(t, "Copied last answer to clipboard", m.status)
}

func TestQuitKeys(t *testing.T) {
	m, _ := newModel(t, &stubBackend{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestProgressLine(t *testing.T) {
	m, _ := newModel(t, &stubBackend{})
	assert.Empty(t, m.progressLine())
	m.state.Progress = chat.Progress{Steps: chat.ProcessingSteps, Current: 2}
	line := m.progressLine()
	assert.Contains(t, line, "✓ Uploading document")
	assert.Contains(t, line, "Generating embeddings")
	assert.Contains(t, line, "· Indexing for search")
}

func TestMediaTypeFor(t *testing.T) {
	assert.Equal(t, "text/plain", mediaTypeFor("notes.txt"))
	assert.Equal(t, "text/markdown", mediaTypeFor("README.MD"))
	assert.Equal(t, "application/pdf", mediaTypeFor("form.pdf"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", mediaTypeFor("syllabus.docx"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.presentationml.presentation", mediaTypeFor("orientation.PPTX"))
}
