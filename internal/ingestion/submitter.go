package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/your-username/logsgate/internal/database"
	"github.com/your-username/logsgate/internal/models"
	"github.com/your-username/logsgate/internal/monitoring"
)

var (
	// ErrQueueFull means the submission queue is saturated; the caller
	// should retry later.
	ErrQueueFull       = errors.New("submission queue is full")
	ErrSubmitterClosed = errors.New("submitter is shut down")
)

// OutcomeListener is told about every finished submission
type OutcomeListener interface {
	BroadcastSubmission(sub models.Submission)
}

type SubmitterOptions struct {
	QueueSize    int
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
}

type job struct {
	sub     models.Submission
	records []models.LogRecord
}

// Submitter indexes accepted batches in the background. Admission is
// bounded by the queue size; workers retry transient failures with
// exponential backoff.
type Submitter struct {
	backend     database.Backend
	tracker     Tracker
	listener    OutcomeListener
	queue       chan *job
	maxAttempts int
	backoff     time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubmitter starts the worker pool. listener may be nil.
func NewSubmitter(backend database.Backend, tracker Tracker, listener OutcomeListener, opts SubmitterOptions) *Submitter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Submitter{
		backend:     backend,
		tracker:     tracker,
		listener:    listener,
		queue:       make(chan *job, opts.QueueSize),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.RetryBackoff,
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

// Submit admits a batch without blocking. It returns ErrQueueFull when the
// queue is saturated. An empty batch completes immediately.
func (s *Submitter) Submit(ctx context.Context, records []models.LogRecord) (models.Submission, error) {
	sub := models.Submission{
		ID:         uuid.New().String(),
		Status:     models.SubmissionQueued,
		Records:    len(records),
		AcceptedAt: time.Now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.Submission{}, ErrSubmitterClosed
	}

	if len(records) == 0 {
		completed := sub.AcceptedAt
		sub.Status = models.SubmissionSucceeded
		sub.CompletedAt = &completed
		if err := s.tracker.Put(ctx, sub); err != nil {
			log.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to track submission")
		}
		return sub, nil
	}

	// tracked before enqueueing so a worker update cannot be overwritten
	if err := s.tracker.Put(ctx, sub); err != nil {
		log.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to track submission")
	}

	select {
	case s.queue <- &job{sub: sub, records: records}:
		monitoring.SetQueueDepth(len(s.queue))
		return sub, nil
	default:
		if err := s.tracker.Delete(ctx, sub.ID); err != nil {
			log.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to untrack rejected submission")
		}
		return models.Submission{}, ErrQueueFull
	}
}

// QueueDepth returns the number of submissions waiting for a worker
func (s *Submitter) QueueDepth() int {
	return len(s.queue)
}

// Stop refuses new submissions and drains the queue. If ctx ends first,
// in-flight backend calls are cancelled.
func (s *Submitter) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Submitter) run() {
	defer s.wg.Done()
	for j := range s.queue {
		monitoring.SetQueueDepth(len(s.queue))
		s.process(j)
	}
}

func (s *Submitter) process(j *job) {
	sub := j.sub
	sub.Status = models.SubmissionRunning
	s.track(sub)

	pending := j.records
	backoff := s.backoff
	// transientErr is the latest retryable failure, finalErr the latest
	// failure that retrying cannot fix
	var transientErr, finalErr error

	for attempt := 1; attempt <= s.maxAttempts && len(pending) > 0; attempt++ {
		sub.Attempts = attempt

		res, err := s.backend.Bulk(s.ctx, database.LogsIndex, pending)
		if err != nil {
			log.Error().Err(err).
				Str("submission_id", sub.ID).
				Int("attempt", attempt).
				Int("batch_size", len(pending)).
				Msg("Bulk submission failed")
			if !database.IsRetryable(err) {
				finalErr = err
				break
			}
			transientErr = err
		} else {
			sub.Indexed += res.Indexed
			var retry []models.LogRecord
			for _, f := range res.Failed {
				if f.Retryable() {
					retry = append(retry, pending[f.Position])
					continue
				}
				sub.Failed++
				finalErr = fmt.Errorf("document rejected: [%d] %s: %s", f.Status, f.Type, f.Reason)
			}
			if len(res.Failed) > 0 {
				log.Warn().
					Str("submission_id", sub.ID).
					Int("attempt", attempt).
					Int("indexed", res.Indexed).
					Int("rejected", len(res.Failed)-len(retry)).
					Int("retryable", len(retry)).
					Msg("Bulk submission partially failed")
			}
			if len(retry) > 0 {
				transientErr = fmt.Errorf("%d documents rejected with retryable status", len(retry))
			}
			pending = retry
		}

		if len(pending) > 0 && attempt < s.maxAttempts {
			if !s.sleep(backoff) {
				break
			}
			backoff *= 2
		}
	}

	var errs []error
	if finalErr != nil {
		errs = append(errs, finalErr)
	}
	if len(pending) > 0 && transientErr != nil {
		errs = append(errs, transientErr)
	}
	if len(errs) > 0 {
		sub.Error = errors.Join(errs...).Error()
	}
	sub.Failed += len(pending)
	sub.Status = outcome(sub)
	completed := time.Now().UTC()
	sub.CompletedAt = &completed

	s.track(sub)
	monitoring.RecordSubmission(sub)
	if s.listener != nil {
		s.listener.BroadcastSubmission(sub)
	}

	evt := log.Info()
	if sub.Status != models.SubmissionSucceeded {
		evt = log.Error()
	}
	evt.Str("submission_id", sub.ID).
		Str("status", string(sub.Status)).
		Int("records", sub.Records).
		Int("indexed", sub.Indexed).
		Int("failed", sub.Failed).
		Int("attempts", sub.Attempts).
		Str("error", sub.Error).
		Msg("Bulk submission finished")
}

func (s *Submitter) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Submitter) track(sub models.Submission) {
	// the request context is gone by now
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.tracker.Put(ctx, sub); err != nil {
		log.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to track submission")
	}
}

func outcome(sub models.Submission) models.SubmissionStatus {
	switch {
	case sub.Failed == 0:
		return models.SubmissionSucceeded
	case sub.Indexed == 0:
		return models.SubmissionFailed
	default:
		return models.SubmissionPartial
	}
}
