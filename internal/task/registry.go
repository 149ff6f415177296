package task

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antonkrylov/mcpexec/internal/runlog"
)

// Handle identifies one live detached execution.
type Handle struct {
	ID        string
	Kind      string
	StartedAt time.Time
}

// LookupState is the outcome of a Lookup: exactly one of the three.
type LookupState int

const (
	StillRunning LookupState = iota
	LogContents
	NotFound
)

// Report carries the Lookup outcome; Contents is set only for LogContents.
type Report struct {
	State    LookupState
	Contents string
}

// Registry tracks live detached tasks. Handles are registered before the run
// starts and removed exactly once after its terminal log write, so a lookup
// either sees a live handle or the complete log.
type Registry struct {
	mu     sync.RWMutex
	live   map[string]*Handle
	seq    atomic.Uint64
	logs   *runlog.Sink
	logger *slog.Logger
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func New(logs *runlog.Sink, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = discardLogger
	}
	return &Registry{live: map[string]*Handle{}, logs: logs, logger: logger}
}

// NewID mints a fresh identifier. The counter is atomic and never derived
// from the live-set size, so concurrent callers cannot collide.
func (r *Registry) NewID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, r.seq.Add(1), time.Now().Format("20060102_150405"))
}

// Begin registers a handle under a fresh identifier and runs fn on its own
// goroutine, detached from the caller's context. The handle is removed after
// fn returns; fn's final log write is the task's terminal event.
func (r *Registry) Begin(prefix string, fn func(ctx context.Context, id string)) string {
	id := r.NewID(prefix)
	h := &Handle{ID: id, Kind: prefix, StartedAt: time.Now()}
	r.mu.Lock()
	r.live[id] = h
	r.mu.Unlock()
	r.logger.Info("background task started", "id", id)
	go func() {
		defer r.remove(id)
		defer func() {
			if v := recover(); v != nil {
				_ = r.logs.Append(id, fmt.Sprintf("Error: %v", v))
				r.logger.Error("background task panicked", "id", id, "panic", v)
			}
		}()
		fn(context.Background(), id)
	}()
	return id
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
	r.logger.Info("background task finished", "id", id)
}

// Lookup reports on an identifier: still running while the handle is live,
// otherwise the accumulated log contents, otherwise not found.
func (r *Registry) Lookup(id string) (Report, error) {
	r.mu.RLock()
	_, live := r.live[id]
	r.mu.RUnlock()
	if live {
		return Report{State: StillRunning}, nil
	}
	contents, ok, err := r.logs.Read(id)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{State: NotFound}, nil
	}
	return Report{State: LogContents, Contents: contents}, nil
}
