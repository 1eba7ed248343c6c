package api

import (
	"sync"
	"time"

	"wolfie/pkg/chat"
	"wolfie/pkg/logger"
)

// DefaultChatIdle is how long an unused conversation is kept.
const DefaultChatIdle = 2 * time.Hour

type chatEntry struct {
	orch     *chat.Orchestrator
	lastUsed time.Time
}

// ChatRegistry keeps one orchestrator per session. Conversations live in
// memory only; an idle one is dropped by the sweep loop.
type ChatRegistry struct {
	newChat func() *chat.Orchestrator
	idle    time.Duration
	now     func() time.Time

	mu    sync.Mutex
	chats map[string]*chatEntry

	stopCh chan struct{}
	once   sync.Once
}

// NewChatRegistry builds a registry. idle <= 0 disables the sweep loop.
func NewChatRegistry(newChat func() *chat.Orchestrator, idle time.Duration) *ChatRegistry {
	r := &ChatRegistry{
		newChat: newChat,
		idle:    idle,
		now:     time.Now,
		chats:   make(map[string]*chatEntry),
		stopCh:  make(chan struct{}),
	}
	if idle > 0 {
		go r.sweepLoop()
	}
	return r
}

// Get returns the session's orchestrator, creating it on first use.
func (r *ChatRegistry) Get(sessionID string) *chat.Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.chats[sessionID]
	if !ok {
		e = &chatEntry{orch: r.newChat()}
		r.chats[sessionID] = e
		activeChats.Set(float64(len(r.chats)))
	}
	e.lastUsed = r.now()
	return e.orch
}

// Peek returns the session's orchestrator without creating one.
func (r *ChatRegistry) Peek(sessionID string) (*chat.Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.chats[sessionID]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.orch, true
}

// Drop forgets the session's conversation.
func (r *ChatRegistry) Drop(sessionID string) {
	r.mu.Lock()
	e, ok := r.chats[sessionID]
	delete(r.chats, sessionID)
	activeChats.Set(float64(len(r.chats)))
	r.mu.Unlock()
	if ok {
		e.orch.Clear()
		e.orch.Close()
	}
}

// Len returns the number of live conversations.
func (r *ChatRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chats)
}

// Sweep drops conversations idle since before now-idle. Busy ones stay.
func (r *ChatRegistry) Sweep(now time.Time) int {
	var dropped []*chatEntry
	r.mu.Lock()
	for id, e := range r.chats {
		if now.Sub(e.lastUsed) > r.idle && !e.orch.Busy() {
			dropped = append(dropped, e)
			delete(r.chats, id)
		}
	}
	activeChats.Set(float64(len(r.chats)))
	r.mu.Unlock()

	for _, e := range dropped {
		e.orch.Close()
	}
	if len(dropped) > 0 {
		logger.Debug("chat_sweep", "dropped", len(dropped))
	}
	return len(dropped)
}

func (r *ChatRegistry) sweepLoop() {
	interval := r.idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			r.Sweep(now)
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the sweep loop and releases every conversation.
func (r *ChatRegistry) Close() {
	r.once.Do(func() {
		close(r.stopCh)
		r.mu.Lock()
		entries := r.chats
		r.chats = make(map[string]*chatEntry)
		activeChats.Set(0)
		r.mu.Unlock()
		for _, e := range entries {
			e.orch.Close()
		}
	})
}
