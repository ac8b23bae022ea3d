package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/match"
)

// Recorder persists one result.
type Recorder interface {
	Record(ctx context.Context, res MatchResult) (bool, error)
}

// Ledger is a match.Sink that writes every finalized session to a Recorder from a
// background goroutine.
type Ledger struct {
	match.NopSink

	recorder     Recorder
	instanceID   string
	writeTimeout time.Duration
	queue        chan MatchResult

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLedger starts the writer goroutine. Close flushes pending results.
func NewLedger(recorder Recorder, instanceID string, queueSize int) *Ledger {
	if queueSize <= 0 {
		queueSize = 256
	}
	l := &Ledger{
		recorder:     recorder,
		instanceID:   instanceID,
		writeTimeout: 5 * time.Second,
		queue:        make(chan MatchResult, queueSize),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Ledger) InstanceID() string {
	return l.instanceID
}

func (l *Ledger) SessionFinalized(_ context.Context, out match.Outcome) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return fmt.Errorf("history ledger closed, dropped session %d", out.SessionID)
	}
	select {
	case l.queue <- FromOutcome(l.instanceID, out):
		return nil
	default:
		return fmt.Errorf("history queue full, dropped session %d", out.SessionID)
	}
}

func (l *Ledger) run() {
	defer l.wg.Done()
	for res := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
		inserted, err := l.recorder.Record(ctx, res)
		cancel()

		switch {
		case err != nil:
			log.Error().Err(err).Int64("session_id", int64(res.SessionID)).Msg("failed to record match result")
		case !inserted:
			log.Warn().Int64("session_id", int64(res.SessionID)).Msg("match result already recorded")
		default:
			log.Debug().Int64("session_id", int64(res.SessionID)).Str("result", string(res.Result)).Msg("recorded match result")
		}
	}
}

// Close stops accepting results and waits for queued writes.
func (l *Ledger) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	l.wg.Wait()
}
