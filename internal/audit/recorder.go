package audit

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/contextawareid/identity-core/internal/infrastructure/logging"
)

// sensitiveKeys are metadata keys whose values must never reach the audit
// store. Matching is case-insensitive on normalised key names.
var sensitiveKeys = map[string]bool{
	"password":     true,
	"code":         true,
	"accesstoken":  true,
	"refreshtoken": true,
	"secret":       true,
	"recoverycode": true,
}

// Sanitize returns a copy of metadata with credential material removed.
// The original map is not modified.
func Sanitize(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	clean := make(map[string]string, len(metadata))
	for k, v := range metadata {
		normalised := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(k, "_", ""), "-", ""))
		if sensitiveKeys[normalised] {
			continue
		}
		clean[k] = v
	}

	if len(clean) == 0 {
		return nil
	}
	return clean
}

// Recorder asynchronously persists audit entries.
//
// Record never blocks and never returns an error: audit is fire-and-forget
// and must not fail the operation being audited. When the buffer is full
// the entry is dropped and counted.
type Recorder struct {
	repo      Repository
	logger    *logging.Logger
	ch        chan Entry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewRecorder creates a Recorder and starts its drain goroutine.
func NewRecorder(repo Repository, logger *logging.Logger, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	r := &Recorder{
		repo:   repo,
		logger: logger,
		ch:     make(chan Entry, bufferSize),
		done:   make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.ch:
			r.persist(entry)
		case <-r.done:
			// Drain whatever is still queued, then stop.
			for {
				select {
				case entry := <-r.ch:
					r.persist(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(entry Entry) {
	if err := r.repo.Create(context.Background(), &entry); err != nil {
		// Swallowed: an unavailable audit store must not surface anywhere.
		r.logger.Warn("failed to persist audit entry",
			"action", entry.Action,
			"error", err,
		)
	}
}

// Record queues an audit entry without blocking. Metadata is sanitised
// before it leaves the caller's goroutine.
func (r *Recorder) Record(entry Entry) {
	if r == nil || r.closed.Load() {
		return
	}

	entry.Metadata = Sanitize(entry.Metadata)

	select {
	case r.ch <- entry:
	case <-r.done:
	default:
		r.dropped.Add(1)
	}
}

// Close drains queued entries and stops the recorder. Safe to call more
// than once.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
	})
}

// Dropped returns how many entries were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}
