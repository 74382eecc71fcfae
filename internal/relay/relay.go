package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTimeout indicates no result arrived for a submitted command before the
// deadline. The caller may retry the whole action.
var ErrTimeout = errors.New("timeout waiting for command result")

// PendingCommand is a unit of work awaiting pickup by the consumer.
type PendingCommand struct {
	ID          string          `json:"id"`
	Action      string          `json:"action"`
	Params      json.RawMessage `json:"params"`
	SubmittedAt time.Time       `json:"-"`
}

type storedResult struct {
	payload  json.RawMessage
	storedAt time.Time
}

// Options tunes the relay. Zero values fall back to defaults.
type Options struct {
	// Timeout bounds how long Submit blocks for a result.
	Timeout time.Duration
	// ResultTTL bounds retention of results whose submitter already gave up.
	ResultTTL time.Duration
	// MaxResults caps the abandoned-result store.
	MaxResults int
}

func (o *Options) withDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.ResultTTL <= 0 {
		o.ResultTTL = 30 * time.Second
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 256
	}
}

// Relay is the rendezvous point between the submitting client and the
// consumer that executes commands. Commands are served FIFO; results are
// matched back by correlation id. Resolution wakes the waiting submitter
// immediately through a per-id channel rather than a poll tick.
type Relay struct {
	mu      sync.Mutex
	queue   []*PendingCommand
	waiters map[string]chan json.RawMessage
	results map[string]storedResult
	opts    Options
	log     *logging.Logger
}

// New creates a relay.
func New(opts Options, log *logging.Logger) *Relay {
	opts.withDefaults()
	if log == nil {
		log = logging.NewNop()
	}
	return &Relay{
		waiters: make(map[string]chan json.RawMessage),
		results: make(map[string]storedResult),
		opts:    opts,
		log:     log,
	}
}

// Submit enqueues a command and blocks until its result arrives, the relay
// timeout elapses, or ctx is cancelled. On timeout the command is withdrawn
// from the pending queue so the consumer never sees a request nobody is
// waiting on.
func (r *Relay) Submit(ctx context.Context, action string, params json.RawMessage) (json.RawMessage, error) {
	id := uuid.NewString()
	cmd := &PendingCommand{
		ID:          id,
		Action:      action,
		Params:      params,
		SubmittedAt: time.Now(),
	}
	ch := make(chan json.RawMessage, 1)

	r.mu.Lock()
	r.queue = append(r.queue, cmd)
	r.waiters[id] = ch
	r.mu.Unlock()

	r.log.Debug("command submitted", zap.String("id", id), zap.String("action", action))

	timer := time.NewTimer(r.opts.Timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		return result, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	// Deadline or cancellation. Re-check under the lock: Resolve may have
	// won the race and already delivered into the buffered channel.
	r.mu.Lock()
	select {
	case result := <-ch:
		r.mu.Unlock()
		return result, nil
	default:
	}
	delete(r.waiters, id)
	r.removeQueuedLocked(id)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.log.Warn("command timed out", zap.String("id", id), zap.String("action", action))
	return nil, ErrTimeout
}

// FetchNext destructively pops the oldest pending command. The boolean is
// false when the queue is empty.
func (r *Relay) FetchNext() (*PendingCommand, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return nil, false
	}
	cmd := r.queue[0]
	r.queue = r.queue[1:]
	return cmd, true
}

// Resolve stores a result under the given id. If the submitter is still
// waiting it is woken immediately; otherwise the result lands in the bounded
// abandoned store. Posting for an unknown id is a benign race, not an error.
func (r *Relay) Resolve(id string, result json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.waiters[id]; ok {
		delete(r.waiters, id)
		ch <- result
		return
	}

	r.log.Debug("result for abandoned command", zap.String("id", id))
	r.results[id] = storedResult{payload: result, storedAt: time.Now()}
	r.evictLocked()
}

// TakeResult removes and returns an abandoned result, if present. Exposed
// for diagnostics; the normal path delivers through Submit.
func (r *Relay) TakeResult(id string) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.results[id]
	if !ok {
		return nil, false
	}
	delete(r.results, id)
	return res.payload, true
}

// Stats reports current store sizes for the stats endpoint.
func (r *Relay) Stats() (pending, waiting, stored int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue), len(r.waiters), len(r.results)
}

func (r *Relay) removeQueuedLocked(id string) {
	for i, cmd := range r.queue {
		if cmd.ID == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}

// evictLocked drops expired abandoned results, then enforces the hard cap by
// discarding the oldest entries.
func (r *Relay) evictLocked() {
	cutoff := time.Now().Add(-r.opts.ResultTTL)
	for id, res := range r.results {
		if res.storedAt.Before(cutoff) {
			delete(r.results, id)
		}
	}

	for len(r.results) > r.opts.MaxResults {
		oldestID := ""
		var oldestAt time.Time
		for id, res := range r.results {
			if oldestID == "" || res.storedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = res.storedAt
			}
		}
		delete(r.results, oldestID)
	}
}
