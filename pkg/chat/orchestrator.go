package chat

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"wolfie/pkg/logger"
)

const (
	// DefaultTopK is the number of passages every query asks for.
	DefaultTopK = 5
	// DefaultQueryTimeout bounds the query call.
	DefaultQueryTimeout = 60 * time.Second
	// DefaultStagePause is the delay between the cosmetic progress stages.
	DefaultStagePause = time.Second
)

// user-facing texts for failed submissions
const (
	TimeoutText    = "The request took too long to complete. Please try again."
	FallbackText   = "Sorry, something went wrong while talking to Wolfie. Please try again."
	UploadDoneText = "Your documents were uploaded. Ask me anything about them."
)

// ErrBusy is returned by Submit while another submission is in flight.
var ErrBusy = errors.New("a message is already being processed")

// Document is one attachment ready to be sent to the ingestion endpoint.
type Document struct {
	ID        string
	Filename  string
	MediaType string
	Data      []byte
}

// Backend is the RAG service as seen by the orchestrator.
type Backend interface {
	IngestDocument(ctx context.Context, doc Document) error
	Answer(ctx context.Context, question string, topK int) (string, error)
}

// Options tunes an Orchestrator. Zero values fall back to the defaults.
type Options struct {
	TopK         int
	QueryTimeout time.Duration
	// StagePause is the delay between progress stages 1, 2 and 3 after each
	// successful ingestion. A negative value disables the pause.
	StagePause time.Duration
	Fetcher    Fetcher
	Now        func() time.Time
}

// Orchestrator runs the submit flow for one conversation. Only one
// submission may be in flight at a time.
type Orchestrator struct {
	backend Backend
	conv    *Conversation
	opts    Options

	busy atomic.Bool

	mu       sync.RWMutex
	progress Progress

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int

	unsubscribe func()
}

// NewOrchestrator builds an orchestrator over a fresh conversation.
func NewOrchestrator(backend Backend, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.StagePause == 0 {
		opts.StagePause = DefaultStagePause
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &Transfer{AllowLocal: true, AllowRemote: true}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	o := &Orchestrator{
		backend: backend,
		conv:    NewConversation(),
		opts:    opts,
		subs:    make(map[int]func(Event)),
	}
	o.unsubscribe = o.conv.Subscribe(func() { o.emit(EventMessages) })
	return o
}

// Conversation exposes the underlying conversation.
func (o *Orchestrator) Conversation() *Conversation { return o.conv }

// Busy reports whether a submission is in flight.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Progress returns the current ingestion indicator.
func (o *Orchestrator) Progress() Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Progress{Steps: append([]string(nil), o.progress.Steps...), Current: o.progress.Current}
}

// State returns a snapshot the caller owns.
func (o *Orchestrator) State() State {
	return State{Messages: o.conv.Messages(), Busy: o.Busy(), Progress: o.Progress()}
}

// Clear empties the conversation. An in-flight submission keeps running
// but its reply is dropped.
func (o *Orchestrator) Clear() {
	o.conv.Clear()
}

// Subscribe registers fn for every state change. fn must not block.
func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

// Close detaches the orchestrator from its conversation.
func (o *Orchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
}

// Submit runs one submission: optional sequential ingestion of attachments
// followed by a timeout-bounded query. Failures never surface as errors;
// they become an assistant message. The only error is ErrBusy.
func (o *Orchestrator) Submit(ctx context.Context, text string, attachments []Attachment) (Result, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	if !o.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	started := o.opts.Now()

	gen := o.conv.appendGen(newMessage(RoleUser, text))
	o.emit(EventBusy)
	defer func() {
		o.setProgress(Progress{})
		o.busy.Store(false)
		o.emit(EventBusy)
	}()

	reply, ok := o.run(ctx, text, attachments, started)

	msg := newMessage(RoleAssistant, reply)
	elapsed := o.opts.Now().Sub(started)
	if !o.conv.AppendIf(gen, msg) {
		logger.Info("chat_completion_discarded", "reason", "conversation_cleared", "elapsed", elapsed)
		return Result{Outcome: OutcomeDiscarded, Elapsed: elapsed}, nil
	}
	outcome := OutcomeAnswered
	if !ok {
		outcome = OutcomeFailed
	}
	return Result{Outcome: outcome, Reply: &msg, Elapsed: elapsed}, nil
}

// run returns the assistant text and whether the submission succeeded.
func (o *Orchestrator) run(ctx context.Context, text string, attachments []Attachment, started time.Time) (string, bool) {
	if len(attachments) > 0 {
		if err := o.ingest(ctx, attachments, started); err != nil {
			logger.Warn("chat_ingest_failed", "error", err)
			return ingestFailureText(err), false
		}
		if strings.TrimSpace(text) == "" {
			return UploadDoneText, true
		}
	}

	qctx, cancel := context.WithTimeout(ctx, o.opts.QueryTimeout)
	defer cancel()
	answer, err := o.backend.Answer(qctx, text, o.opts.TopK)
	if err != nil {
		if errors.Is(qctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("chat_query_timeout", "timeout", o.opts.QueryTimeout)
			return TimeoutText, false
		}
		logger.Warn("chat_query_failed", "error", err)
		return ErrorText(err), false
	}
	return answer, true
}

// ingest sends every attachment in order and stops at the first failure.
func (o *Orchestrator) ingest(ctx context.Context, attachments []Attachment, started time.Time) error {
	for i, a := range attachments {
		o.setProgress(Progress{Steps: ProcessingSteps, Current: 0})

		name := attachmentName(a, i)
		data, err := o.opts.Fetcher.Fetch(ctx, a)
		if err != nil {
			return &IngestError{Filename: name, Err: err}
		}
		doc := Document{
			ID:        fmt.Sprintf("doc-%d-%d", started.UnixMilli(), i),
			Filename:  name,
			MediaType: attachmentMediaType(a, name),
			Data:      data,
		}
		if err := o.backend.IngestDocument(ctx, doc); err != nil {
			return &IngestError{Filename: name, Err: err}
		}
		logger.Debug("chat_document_ingested", "doc_id", doc.ID, "filename", name, "bytes", len(data))

		// The remaining stages are cosmetic. The service finished its work
		// when IngestDocument returned; these pauses only pace the indicator.
		for step := 1; step < len(ProcessingSteps); step++ {
			if err := o.pause(ctx); err != nil {
				return &IngestError{Filename: name, Err: err}
			}
			o.setProgress(Progress{Steps: ProcessingSteps, Current: step})
		}
	}
	o.setProgress(Progress{})
	return nil
}

func (o *Orchestrator) pause(ctx context.Context) error {
	if o.opts.StagePause <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(o.opts.StagePause)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) setProgress(p Progress) {
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()
	o.emit(EventProgress)
}

func (o *Orchestrator) emit(kind EventKind) {
	o.subMu.Lock()
	fns := make([]func(Event), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()
	if len(fns) == 0 {
		return
	}
	ev := Event{Kind: kind, State: o.State()}
	for _, fn := range fns {
		fn(ev)
	}
}

// IngestError wraps a failure to read or upload one attachment.
type IngestError struct {
	Filename string
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Filename, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// detailer is implemented by errors that carry a server-provided message.
type detailer interface {
	Detail() string
}

// ErrorText turns err into the text shown to the user: the server detail
// when there is one, then the error message, then a generic fallback.
func ErrorText(err error) string {
	if err == nil {
		return FallbackText
	}
	var d detailer
	if errors.As(err, &d) {
		if s := strings.TrimSpace(d.Detail()); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(err.Error()); s != "" {
		return s
	}
	return FallbackText
}

func ingestFailureText(err error) string {
	var ie *IngestError
	if errors.As(err, &ie) {
		return fmt.Sprintf("Failed to upload %s: %s", ie.Filename, ErrorText(ie.Err))
	}
	return ErrorText(err)
}

func attachmentName(a Attachment, i int) string {
	if n := strings.TrimSpace(a.Filename); n != "" {
		return filepath.Base(n)
	}
	if u := strings.TrimSpace(a.URL); u != "" && !strings.HasPrefix(u, "data:") {
		if b := filepath.Base(u); b != "." && b != "/" {
			return b
		}
	}
	return fmt.Sprintf("attachment-%d", i+1)
}

func attachmentMediaType(a Attachment, name string) string {
	if mt := strings.TrimSpace(a.MediaType); mt != "" {
		return mt
	}
	if mt := dataURLMediaType(a.URL); mt != "" {
		return mt
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
