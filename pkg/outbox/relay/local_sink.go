package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/metrics"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/registry"
)

const (
	defaultLocalWorkers   = 4
	defaultLocalQueueSize = 256
	defaultHandleTimeout  = 2 * time.Minute
)

// ErrQueueFull is returned by LocalSink.Deliver when every slot is taken; the
// relay retries the row on a later poll.
var ErrQueueFull = errors.New("local event queue is full")

// Handler executes the side effects of one event.
type Handler interface {
	Handle(ctx context.Context, resolved *registry.ResolvedEvent) error
}

type LocalSinkParams struct {
	Logger        *logger.Logger
	Handler       Handler
	Metrics       *metrics.OutboxMetrics
	Workers       int
	QueueSize     int
	HandleTimeout time.Duration
}

// failureRecorder sends a row whose handler failed back through the relay.
type failureRecorder interface {
	HandlerFailed(ctx context.Context, eventID uuid.UUID, cause error) error
}

type localJob struct {
	eventID  uuid.UUID
	resolved *registry.ResolvedEvent
}

// LocalSink runs handlers in-process on a bounded worker pool. Delivery only
// enqueues, so the relay never waits on the side effects themselves. When the
// sink feeds a relay Service, handler failures reopen the row for another
// attempt.
type LocalSink struct {
	logg     *logger.Logger
	handler  Handler
	metrics  *metrics.OutboxMetrics
	failures failureRecorder
	queue    chan localJob
	workers  int
	timeout  time.Duration

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewLocalSink(params LocalSinkParams) (*LocalSink, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultLocalWorkers
	}
	size := params.QueueSize
	if size <= 0 {
		size = defaultLocalQueueSize
	}
	timeout := params.HandleTimeout
	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}
	return &LocalSink{
		logg:    params.Logger,
		handler: params.Handler,
		metrics: params.Metrics,
		queue:   make(chan localJob, size),
		workers: workers,
		timeout: timeout,
	}, nil
}

func (s *LocalSink) Name() string { return "local" }

// Start launches the workers. Calling it more than once has no effect.
func (s *LocalSink) Start() {
	s.startOnce.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.work()
		}
	})
}

// Close stops accepting events and waits for queued ones to finish. The relay
// must be stopped first.
func (s *LocalSink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *LocalSink) Deliver(_ context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	select {
	case s.queue <- localJob{eventID: event.ID, resolved: resolved}:
		s.metrics.SetQueueDepth(len(s.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *LocalSink) work() {
	defer s.wg.Done()
	for job := range s.queue {
		s.metrics.SetQueueDepth(len(s.queue))
		s.handle(job)
	}
}

func (s *LocalSink) handle(job localJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = s.logg.WithEvent(ctx, string(job.resolved.Descriptor.EventType), job.resolved.Envelope.EventID)

	err := s.run(ctx, job.resolved)
	if err == nil {
		return
	}
	s.logg.Error(ctx, "event handler failed", err)
	if s.failures == nil || job.eventID == uuid.Nil {
		return
	}
	if recErr := s.failures.HandlerFailed(context.WithoutCancel(ctx), job.eventID, err); recErr != nil {
		s.logg.Error(ctx, "handler failure could not be recorded", recErr)
	}
}

func (s *LocalSink) run(ctx context.Context, resolved *registry.ResolvedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in event handler: %v", r)
		}
	}()
	return s.handler.Handle(ctx, resolved)
}
