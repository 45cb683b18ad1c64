package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
)

// Meter accepts usage records and persists them asynchronously through a
// bounded queue. Enqueueing never blocks the caller: when the queue is full
// the record is dropped and counted, never letting accounting stall an
// analysis stream.
type Meter struct {
	recorder  Recorder
	tokenizer *Tokenizer
	logger    *logging.Logger

	queue   chan Record
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewMeter starts a meter over the given recorder. queueSize bounds the
// number of pending records.
func NewMeter(recorder Recorder, queueSize int) *Meter {
	if queueSize <= 0 {
		queueSize = 256
	}
	m := &Meter{
		recorder:  recorder,
		tokenizer: NewTokenizer(),
		logger:    logging.New().WithComponent("usage"),
		queue:     make(chan Record, queueSize),
	}
	m.wg.Add(1)
	go m.writer()
	return m
}

// Tokenizer returns the meter's token counter.
func (m *Meter) Tokenizer() *Tokenizer {
	return m.tokenizer
}

// NewRecord assembles a record from an invocation's inputs and outputs:
// tokens counted, cost computed, provider inferred, sizes captured.
func (m *Meter) NewRecord(sessionID string, userID, chatID int, model, input, output string, elapsed time.Duration, streaming bool) Record {
	promptTokens := m.tokenizer.Count(input)
	completionTokens := m.tokenizer.Count(output)

	return Record{
		ID:               uuid.New().String(),
		UserID:           userID,
		ChatID:           chatID,
		SessionID:        sessionID,
		ModelName:        model,
		Provider:         ProviderForModel(model),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		QuerySize:        len(input),
		ResponseSize:     len(output),
		Cost:             Cost(model, promptTokens, completionTokens),
		RequestTimeMs:    int(elapsed.Milliseconds()),
		IsStreaming:      streaming,
		Timestamp:        time.Now().UTC(),
	}
}

// Track enqueues a record for persistence. Never blocks; a full queue or a
// drained meter drops the record.
func (m *Meter) Track(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		n := m.dropped.Add(1)
		m.logger.Warn("usage meter drained, record dropped", map[string]interface{}{
			"dropped_total": n,
			"model":         rec.ModelName,
		})
		return
	}

	select {
	case m.queue <- rec:
	default:
		n := m.dropped.Add(1)
		m.logger.Warn("usage queue full, record dropped", map[string]interface{}{
			"dropped_total": n,
			"model":         rec.ModelName,
		})
	}
}

// Dropped returns the number of records lost to a full queue.
func (m *Meter) Dropped() int64 {
	return m.dropped.Load()
}

// writer persists queued records until the queue is closed. A failed write
// is logged and dropped; accounting never propagates errors upstream.
func (m *Meter) writer() {
	defer m.wg.Done()
	for rec := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.recorder.SaveUsage(ctx, rec); err != nil {
			m.logger.Error("failed to save usage record", map[string]interface{}{
				"model": rec.ModelName,
				"error": err.Error(),
			})
		}
		cancel()
	}
}

// Drain closes the queue and waits for pending records to be written, up to
// the context deadline.
func (m *Meter) Drain(ctx context.Context) error {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.queue)
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
