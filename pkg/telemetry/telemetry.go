package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Step is one marked section of a trace.
type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

// Trace times one operation. A nil or unsampled trace is a no-op.
type Trace struct {
	Name     string            `json:"name"`
	Start    time.Time         `json:"start"`
	Steps    []Step            `json:"steps"`
	TotalMS  float64           `json:"total_ms"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	lastMark time.Time
	tel      *Telemetry
	sampled  bool
}

// Options tunes the writer.
type Options struct {
	BufferSize    int
	QueueCapacity int
	FlushInterval time.Duration
	MaxFileSize   int64
	// SampleRate is the fraction of traces written, 0..1.
	SampleRate float64
	// SlowThreshold traces are always written regardless of sampling.
	SlowThreshold time.Duration
}

func (o *Options) defaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 64 << 10
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 1024
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = 10 << 20
	}
	if o.SampleRate < 0 {
		o.SampleRate = 0
	}
	if o.SampleRate > 1 {
		o.SampleRate = 1
	}
}

// Telemetry manages async writing of traces to per-op jsonl files.
type Telemetry struct {
	dir     string
	opts    Options
	mu      sync.Mutex
	files   map[string]*os.File
	buffers map[string]*bufio.Writer
	traces  chan *Trace
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

var (
	globalMu sync.RWMutex
	tel      *Telemetry
)

// Init installs the global telemetry writer under dir.
func Init(dir string, opts Options) error {
	t, err := New(dir, opts)
	if err != nil {
		return err
	}
	globalMu.Lock()
	prev := tel
	tel = t
	globalMu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

// Track starts a trace on the global writer. Without Init it is a no-op.
func Track(name string) *Trace {
	globalMu.RLock()
	t := tel
	globalMu.RUnlock()
	return t.Track(name)
}

// Close stops the global writer.
func Close() {
	globalMu.Lock()
	t := tel
	tel = nil
	globalMu.Unlock()
	if t != nil {
		t.Close()
	}
}

// New creates a telemetry writer with a background goroutine.
func New(dir string, opts Options) (*Telemetry, error) {
	opts.defaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	t := &Telemetry{
		dir:     dir,
		opts:    opts,
		files:   make(map[string]*os.File),
		buffers: make(map[string]*bufio.Writer),
		traces:  make(chan *Trace, opts.QueueCapacity),
		stopCh:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

// Track starts a new trace linked to t.
func (t *Telemetry) Track(name string) *Trace {
	now := time.Now()
	tr := &Trace{Name: name, Start: now, lastMark: now, tel: t}
	if t != nil {
		tr.sampled = t.opts.SampleRate >= 1 || rand.Float64() < t.opts.SampleRate
	}
	return tr
}

// Dropped returns how many traces were discarded because the queue was full.
func (t *Telemetry) Dropped() uint64 { return t.dropped.Load() }

// Mark records the time elapsed since the previous mark.
func (tr *Trace) Mark(label string) {
	if tr == nil {
		return
	}
	now := time.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Set attaches an attribute to the trace.
func (tr *Trace) Set(key, value string) {
	if tr == nil {
		return
	}
	if tr.Attrs == nil {
		tr.Attrs = make(map[string]string)
	}
	tr.Attrs[key] = value
}

// Finish enqueues the trace. Safe to call more than once.
func (tr *Trace) Finish() {
	if tr == nil || tr.tel == nil {
		return
	}
	t := tr.tel
	tr.tel = nil
	total := time.Since(tr.Start)
	tr.TotalMS = total.Seconds() * 1000

	if !tr.sampled && (t.opts.SlowThreshold <= 0 || total < t.opts.SlowThreshold) {
		return
	}

	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if remaining := tr.TotalMS - sum; remaining > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: remaining})
	}

	select {
	case t.traces <- tr:
	default:
		t.dropped.Add(1)
	}
}

func (t *Telemetry) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case tr := <-t.traces:
			t.write(tr)
		case <-ticker.C:
			t.flush()
		case <-t.stopCh:
			for len(t.traces) > 0 {
				t.write(<-t.traces)
			}
			t.mu.Lock()
			for _, b := range t.buffers {
				_ = b.Flush()
			}
			for _, f := range t.files {
				_ = f.Sync()
				_ = f.Close()
			}
			t.mu.Unlock()
			return
		}
	}
}

func (t *Telemetry) write(tr *Trace) {
	if tr == nil {
		return
	}
	data, err := json.Marshal(tr)
	if err != nil {
		return
	}
	t.mu.Lock()
	b := t.bufferFor(tr.Name)
	_, _ = b.Write(data)
	_ = b.WriteByte('\n')
	t.mu.Unlock()
}

func (t *Telemetry) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, b := range t.buffers {
		_ = b.Flush()
		f := t.files[name]
		if f == nil {
			continue
		}
		if fi, err := f.Stat(); err == nil && fi.Size() > t.opts.MaxFileSize {
			_ = f.Close()
			nf, err := os.OpenFile(f.Name(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				fmt.Fprintf(os.Stderr, "telemetry: reopen %s: %v\n", f.Name(), err)
				delete(t.files, name)
				delete(t.buffers, name)
				continue
			}
			t.files[name] = nf
			t.buffers[name] = bufio.NewWriterSize(nf, t.opts.BufferSize)
		}
	}
}

func (t *Telemetry) bufferFor(op string) *bufio.Writer {
	if b, ok := t.buffers[op]; ok {
		return b
	}
	name := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(op)
	path := filepath.Join(t.dir, name+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: failed to open %s: %v\n", path, err)
		b := bufio.NewWriter(discard{})
		t.buffers[op] = b
		return b
	}
	b := bufio.NewWriterSize(f, t.opts.BufferSize)
	t.files[op] = f
	t.buffers[op] = b
	return b
}

// Close stops the writer and flushes everything queued.
func (t *Telemetry) Close() {
	if t == nil {
		return
	}
	t.stop.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
	})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
