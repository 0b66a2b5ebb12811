package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/idxstock/stockapi/internal/metrics"
	"github.com/idxstock/stockapi/internal/model"
)

// ConsumerGroup is the Redis consumer group name.
const ConsumerGroup = "usage_writers"

// Store persists usage records. Inserts must ignore duplicate IDs.
type Store interface {
	InsertUsage(ctx context.Context, records []*model.APIUsage) error
}

// WorkerConfig tunes the worker loop. Zero fields take defaults.
type WorkerConfig struct {
	BatchSize       int
	BlockTimeout    time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	ClaimInterval   time.Duration
	ClaimIdle       time.Duration
	MetricsInterval time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = 10 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = 30 * time.Second
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 5 * time.Second
	}
	return c
}

// Worker moves usage records from the stream into the database.
type Worker struct {
	redis      *redis.Client
	store      Store
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string
	cfg        WorkerConfig

	claimStart  string
	lastClaim   time.Time
	lastMetrics time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a usage worker.
func NewWorker(client *redis.Client, store Store, logger *slog.Logger, consumerID string, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:      client,
		store:      store,
		logger:     logger.With("component", "usage.worker", "consumer_id", consumerID),
		metrics:    recorder,
		consumerID: consumerID,
		cfg:        cfg.withDefaults(),
		claimStart: "0-0",
	}
}

// Run consumes the stream until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("usage worker started")

	for {
		if ctx.Err() != nil {
			w.logger.Info("usage worker stopping")
			return nil
		}
		if err := w.processOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("process error", "error", err)
			sleepCtx(ctx, time.Second)
		}
	}
}

// Shutdown stops the worker and waits for the in-flight batch.
// It matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("usage worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		if messages, err = w.readBatch(ctx); err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	records, ids, poison := ParseMessages(messages)
	for _, p := range poison {
		w.deadLetter(ctx, p)
	}

	if len(records) > 0 {
		rejected, err := w.persistWithRetry(ctx, records)
		if err != nil {
			// Leave unacknowledged for a later claim.
			return err
		}
		if len(rejected) > 0 {
			sources := messagesByRecordID(messages)
			for _, r := range rejected {
				w.deadLetter(ctx, Poison{Message: sources[r.Record.ID], Reason: r.Err.Error()})
			}
		}
	}

	if _, err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Result(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// Poison is a stream message that cannot be persisted.
type Poison struct {
	Message redis.XMessage
	Reason  string
}

// ParseMessages decodes stream messages into records. It returns every
// message ID (all are acknowledged once handled) and the poison messages.
func ParseMessages(messages []redis.XMessage) ([]*model.APIUsage, []string, []Poison) {
	records := make([]*model.APIUsage, 0, len(messages))
	ids := make([]string, 0, len(messages))
	var poison []Poison

	for _, msg := range messages {
		ids = append(ids, msg.ID)

		raw, ok := msg.Values["payload"].(string)
		if !ok {
			poison = append(poison, Poison{Message: msg, Reason: "payload field missing or not a string"})
			continue
		}
		p, err := DecodePayload(raw)
		if err != nil {
			poison = append(poison, Poison{Message: msg, Reason: err.Error()})
			continue
		}
		records = append(records, p.Record())
	}
	return records, ids, poison
}

func (w *Worker) deadLetter(ctx context.Context, p Poison) {
	w.logger.Warn("dead-lettering poison message", "message_id", p.Message.ID, "reason", p.Reason)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"original_id":      p.Message.ID,
			"reason":           p.Reason,
			"payload":          fmt.Sprint(p.Message.Values["payload"]),
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write to dead-letter queue", "message_id", p.Message.ID, "error", err)
	}
	w.metrics.IncUsageProcessed("skipped")
}

// Rejected is a record the database refused for a reason retries cannot fix.
type Rejected struct {
	Record *model.APIUsage
	Err    error
}

// persistWithRetry inserts records, retrying transient failures with
// backoff. When the batch fails permanently the records are inserted one by
// one and those still refused are returned as rejected; the rest are stored.
func (w *Worker) persistWithRetry(ctx context.Context, records []*model.APIUsage) ([]Rejected, error) {
	start := time.Now()
	err := w.insertWithRetry(ctx, records)
	if err == nil {
		w.metrics.ObserveUsageBatchSize(len(records))
		w.metrics.ObserveUsageBatchDuration(time.Since(start))
		for range records {
			w.metrics.IncUsageProcessed("success")
		}
		w.logger.Debug("usage batch persisted", "count", len(records))
		return nil, nil
	}
	if !IsPermanent(err) {
		for range records {
			w.metrics.IncUsageProcessed("failed")
		}
		return nil, fmt.Errorf("insert usage batch: %w", err)
	}

	w.logger.Warn("usage batch rejected, inserting records individually", "count", len(records), "error", err)

	var rejected []Rejected
	for _, r := range records {
		err := w.insertWithRetry(ctx, []*model.APIUsage{r})
		switch {
		case err == nil:
			w.metrics.IncUsageProcessed("success")
		case IsPermanent(err):
			rejected = append(rejected, Rejected{Record: r, Err: err})
		default:
			w.metrics.IncUsageProcessed("failed")
			return nil, fmt.Errorf("insert usage %s: %w", r.ID, err)
		}
	}
	return rejected, nil
}

func (w *Worker) insertWithRetry(ctx context.Context, records []*model.APIUsage) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		lastErr = w.store.InsertUsage(ctx, records)
		if lastErr == nil || IsPermanent(lastErr) {
			return lastErr
		}

		backoff := w.cfg.RetryBackoff << (attempt - 1)
		w.logger.Warn("usage insert failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"count", len(records),
			"error", lastErr,
		)
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
	}
	return lastErr
}

// IsPermanent reports whether err is a database error that repeating the
// same insert cannot fix: data exceptions (class 22) and integrity
// violations (class 23), such as a record for a user that no longer exists.
func IsPermanent(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) != 5 {
		return false
	}
	switch pgErr.Code[:2] {
	case "22", "23":
		return true
	}
	return false
}

// messagesByRecordID maps the record ID of each decodable message back to
// the message carrying it.
func messagesByRecordID(messages []redis.XMessage) map[string]redis.XMessage {
	out := make(map[string]redis.XMessage, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			continue
		}
		if p, err := DecodePayload(raw); err == nil {
			out[p.ID] = msg
		}
	}
	return out
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.cfg.ClaimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.cfg.ClaimIdle,
		Start:    w.claimStart,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStart = next
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.cfg.MetricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		w.logger.Debug("failed to read stream group info", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetUsageQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(streams) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
