package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	status int
	detail string
}

func (e *statusError) Error() string  { return fmt.Sprintf("ingest failed: status %d", e.status) }
func (e *statusError) Detail() string { return e.detail }

type fakeBackend struct {
	mu        sync.Mutex
	docs      []Document
	questions []string
	topKs     []int

	ingestErr func(doc Document) error
	answer    func(ctx context.Context, q string) (string, error)
}

func (f *fakeBackend) IngestDocument(ctx context.Context, doc Document) error {
	f.mu.Lock()
	f.docs = append(f.docs, doc)
	f.mu.Unlock()
	if f.ingestErr != nil {
		return f.ingestErr(doc)
	}
	return nil
}

func (f *fakeBackend) Answer(ctx context.Context, q string, topK int) (string, error) {
	f.mu.Lock()
	f.questions = append(f.questions, q)
	f.topKs = append(f.topKs, topK)
	f.mu.Unlock()
	if f.answer != nil {
		return f.answer(ctx, q)
	}
	return "ok", nil
}

func (f *fakeBackend) queryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.questions)
}

func (f *fakeBackend) ingestCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func newTestOrchestrator(b Backend) *Orchestrator {
	return NewOrchestrator(b, Options{StagePause: -1, Fetcher: &Transfer{}})
}

func textAttachment(name, body string) Attachment {
	return Attachment{URL: "data:text/plain;base64," + encode(body), Filename: name, MediaType: "text/plain"}
}

func TestSubmitBlankInputIsIgnored(t *testing.T) {
	b := &fakeBackend{}
	o := newTestOrchestrator(b)
	var events []EventKind
	defer o.Subscribe(func(ev Event) { events = append(events, ev.Kind) })()

	for _, text := range []string{"", "   ", "\n\t"} {
		res, err := o.Submit(context.Background(), text, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
	}
	assert.Equal(t, 0, o.Conversation().Len())
	assert.Empty(t, events, "blank input must not enter the busy state or touch the transcript")
	assert.False(t, o.Busy())
	assert.Equal(t, 0, b.queryCalls())
}

func TestSubmitAnswersQuestion(t *testing.T) {
	b := &fakeBackend{answer: func(ctx context.Context, q string) (string, error) {
		return "You need a high school diploma.", nil
	}}
	o := newTestOrchestrator(b)

	res, err := o.Submit(context.Background(), "What are the admission requirements?", nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, res.Outcome)

	msgs := o.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "What are the admission requirements?", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "You need a high school diploma.", msgs[1].Content)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)

	require.NotNil(t, res.Reply)
	assert.Equal(t, msgs[1], *res.Reply)
	assert.Equal(t, []int{DefaultTopK}, b.topKs)
	assert.Equal(t, 0, b.ingestCalls())
	assert.False(t, o.Busy())
}

func TestSubmitIngestFailureSkipsQuery(t *testing.T) {
	b := &fakeBackend{ingestErr: func(Document) error { return &statusError{status: 500} }}
	o := newTestOrchestrator(b)

	res, err := o.Submit(context.Background(), "Summarize this", []Attachment{textAttachment("notes.txt", "hello")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 0, b.queryCalls())

	msgs := o.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "notes.txt")
	assert.Contains(t, msgs[1].Content, "status 500")

	assert.False(t, o.Busy())
	assert.False(t, o.Progress().Active())
}

func TestSubmitStopsAtFirstFailedAttachment(t *testing.T) {
	b := &fakeBackend{ingestErr: func(d Document) error {
		if d.Filename == "b.txt" {
			return &statusError{status: 400, detail: "File type application/pdf not supported"}
		}
		return nil
	}}
	o := newTestOrchestrator(b)

	atts := []Attachment{textAttachment("a.txt", "a"), textAttachment("b.txt", "b"), textAttachment("c.txt", "c")}
	res, err := o.Submit(context.Background(), "q", atts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 2, b.ingestCalls())
	assert.Equal(t, 0, b.queryCalls())
	assert.Equal(t, "Failed to upload b.txt: File type application/pdf not supported", res.Reply.Content)
}

func TestSubmitDocumentIDsAndProgress(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	b := &fakeBackend{}
	o := NewOrchestrator(b, Options{StagePause: -1, Fetcher: &Transfer{}, Now: func() time.Time { return now }})

	var mu sync.Mutex
	var steps []int
	o.Subscribe(func(ev Event) {
		if ev.Kind != EventProgress {
			return
		}
		mu.Lock()
		if ev.State.Progress.Active() {
			steps = append(steps, ev.State.Progress.Current)
		} else {
			steps = append(steps, -1)
		}
		mu.Unlock()
	})

	_, err := o.Submit(context.Background(), "q", []Attachment{textAttachment("a.txt", "alpha"), textAttachment("b.md", "beta")})
	require.NoError(t, err)

	require.Len(t, b.docs, 2)
	assert.Equal(t, "doc-1700000000123-0", b.docs[0].ID)
	assert.Equal(t, "doc-1700000000123-1", b.docs[1].ID)
	assert.Equal(t, "a.txt", b.docs[0].Filename)
	assert.Equal(t, []byte("alpha"), b.docs[0].Data)
	assert.Equal(t, "text/plain", b.docs[0].MediaType)

	mu.Lock()
	defer mu.Unlock()
	// two attachments walk 0..3 each, then the batch and the submission reset it
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3, -1, -1}, steps)
	assert.Equal(t, []string{"q"}, b.questions)
}

func TestSubmitErrorTextPrecedence(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"detail", &statusError{status: 400, detail: "Question cannot be empty"}, "Question cannot be empty"},
		{"message", errors.New("connection refused"), "connection refused"},
		{"blank detail falls back to message", &statusError{status: 502}, "ingest failed: status 502"},
		{"empty", errors.New(""), FallbackText},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := &fakeBackend{answer: func(context.Context, string) (string, error) { return "", c.err }}
			o := newTestOrchestrator(b)
			res, err := o.Submit(context.Background(), "hi", nil)
			require.NoError(t, err)
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, c.want, res.Reply.Content)
		})
	}
}

func TestSubmitQueryTimeout(t *testing.T) {
	b := &fakeBackend{answer: func(ctx context.Context, q string) (string, error) {
		<-ctx.Done()
		return "", fmt.Errorf("query: %w", ctx.Err())
	}}
	o := NewOrchestrator(b, Options{StagePause: -1, QueryTimeout: 20 * time.Millisecond})

	res, err := o.Submit(context.Background(), "slow question", nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, TimeoutText, res.Reply.Content)
	assert.False(t, o.Busy())
}

func TestSubmitRejectsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	b := &fakeBackend{answer: func(ctx context.Context, q string) (string, error) {
		close(entered)
		<-release
		return "done", nil
	}}
	o := newTestOrchestrator(b)

	done := make(chan Result, 1)
	go func() {
		res, _ := o.Submit(context.Background(), "first", nil)
		done <- res
	}()
	<-entered

	assert.True(t, o.Busy())
	_, err := o.Submit(context.Background(), "second", nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, o.Conversation().Len())

	close(release)
	res := <-done
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, 2, o.Conversation().Len())
	assert.False(t, o.Busy())
}

func TestClearDiscardsInFlightCompletion(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	b := &fakeBackend{answer: func(ctx context.Context, q string) (string, error) {
		close(entered)
		<-release
		return "late answer", nil
	}}
	o := newTestOrchestrator(b)

	done := make(chan Result, 1)
	go func() {
		res, _ := o.Submit(context.Background(), "question", nil)
		done <- res
	}()
	<-entered
	o.Clear()
	assert.Equal(t, 0, o.Conversation().Len())

	close(release)
	res := <-done
	assert.Equal(t, OutcomeDiscarded, res.Outcome)
	assert.Nil(t, res.Reply)
	assert.Equal(t, 0, o.Conversation().Len())
	assert.False(t, o.Busy())
}

func TestSubmitAttachmentsWithoutText(t *testing.T) {
	b := &fakeBackend{}
	o := newTestOrchestrator(b)

	res, err := o.Submit(context.Background(), "", []Attachment{textAttachment("a.txt", "x")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, UploadDoneText, res.Reply.Content)
	assert.Equal(t, 1, b.ingestCalls())
	assert.Equal(t, 0, b.queryCalls())
}

func TestSubmitFetchFailureIsReported(t *testing.T) {
	b := &fakeBackend{}
	o := newTestOrchestrator(b)

	res, err := o.Submit(context.Background(), "q", []Attachment{{URL: "/etc/hosts", Filename: "hosts"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reply.Content, "hosts")
	assert.Equal(t, 0, b.ingestCalls())
	assert.Equal(t, 0, b.queryCalls())
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, FallbackText, ErrorText(nil))
	wrapped := fmt.Errorf("query: %w", &statusError{status: 500, detail: "boom"})
	assert.Equal(t, "boom", ErrorText(wrapped))
}

func TestSubscribeReceivesBusyTransitions(t *testing.T) {
	o := newTestOrchestrator(&fakeBackend{})
	var busy []bool
	cancel := o.Subscribe(func(ev Event) {
		if ev.Kind == EventBusy {
			busy = append(busy, ev.State.Busy)
		}
	})
	_, err := o.Submit(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, busy)

	cancel()
	_, err = o.Submit(context.Background(), "again", nil)
	require.NoError(t, err)
	assert.Len(t, busy, 2)
}
