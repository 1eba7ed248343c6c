package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. Messages are never mutated after
// creation; the conversation only appends or clears.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func newMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content}
}

// Attachment references a file the user wants ingested before the question
// is asked. URL may be a local path, a file:// URL, a data: URL or an
// http(s) URL. Attachments only live for the duration of one Submit.
type Attachment struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
}

// ProcessingSteps are the labels of the ingestion progress indicator.
var ProcessingSteps = []string{
	"Uploading document",
	"Processing content",
	"Generating embeddings",
	"Indexing for search",
}

// Progress is the ingestion indicator. It is empty unless an ingestion batch
// is in flight.
type Progress struct {
	Steps   []string `json:"steps"`
	Current int      `json:"current"`
}

// Active reports whether an ingestion batch is being shown.
func (p Progress) Active() bool { return len(p.Steps) > 0 }

// Label returns the current step label or "" when inactive.
func (p Progress) Label() string {
	if !p.Active() || p.Current < 0 || p.Current >= len(p.Steps) {
		return ""
	}
	return p.Steps[p.Current]
}

// State is a snapshot of everything a presentation layer renders.
type State struct {
	Messages []Message `json:"messages"`
	Busy     bool      `json:"busy"`
	Progress Progress  `json:"progress"`
}

// Outcome describes how a submission ended.
type Outcome string

const (
	// OutcomeIgnored means the input was blank and carried no attachments.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeAnswered means an assistant answer was appended.
	OutcomeAnswered Outcome = "answered"
	// OutcomeFailed means an assistant error message was appended.
	OutcomeFailed Outcome = "failed"
	// OutcomeDiscarded means the conversation was cleared while the
	// submission was in flight and its completion was dropped.
	OutcomeDiscarded Outcome = "discarded"
)

// Result is what Submit reports back to its caller.
type Result struct {
	Outcome Outcome       `json:"outcome"`
	Reply   *Message      `json:"reply,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// EventKind tells subscribers what changed.
type EventKind int

const (
	// EventMessages fires after an append or a clear.
	EventMessages EventKind = iota
	// EventBusy fires when a submission starts or ends.
	EventBusy
	// EventProgress fires whenever the ingestion indicator moves.
	EventProgress
)

// Event is delivered to subscribers after every observable change.
type Event struct {
	Kind  EventKind
	State State
}
