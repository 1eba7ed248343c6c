package chat

import "sync"

// Conversation is an ordered, append-only list of messages that can only be
// emptied as a whole. Clear advances the generation so that completions
// started before it can be recognised as stale.
type Conversation struct {
	mu         sync.RWMutex
	messages   []Message
	generation uint64

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{subs: make(map[int]func())}
}

// Append adds msg at the end.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.notify()
}

// appendGen appends msg and returns the generation it was appended in.
func (c *Conversation) appendGen(msg Message) uint64 {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	gen := c.generation
	c.mu.Unlock()
	c.notify()
	return gen
}

// AppendIf adds msg only while the conversation is still in generation gen.
// It reports whether the message was appended.
func (c *Conversation) AppendIf(gen uint64, msg Message) bool {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return false
	}
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.notify()
	return true
}

// Clear empties the conversation and starts a new generation.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.messages = nil
	c.generation++
	c.mu.Unlock()
	c.notify()
}

// Generation returns the current generation.
func (c *Conversation) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Messages returns a copy of the messages in insertion order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message with the given role.
func (c *Conversation) Last(role Role) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == role {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// Subscribe registers fn to be called after every change. fn runs on the
// goroutine that made the change and must not block. The returned func
// removes the subscription.
func (c *Conversation) Subscribe(fn func()) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subs == nil {
		c.subs = make(map[int]func())
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Conversation) notify() {
	c.subMu.Lock()
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
