package routes

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"supernova/api/internal/logging"
)

var (
	// ErrUnavailable is returned by a nil dispatcher, the degraded mode in
	// which no route registry is wired.
	ErrUnavailable = errors.New("route dispatcher unavailable")
	ErrStopped     = errors.New("route dispatcher stopped")
)

type request struct {
	ctx     context.Context
	name    string
	payload map[string]any
	call    Call
	reply   chan response
}

type response struct {
	result any
	err    error
}

// Dispatcher runs route handlers on a fixed pool of workers fed by a bounded
// queue. Call submits a request and blocks until its result is ready, which
// lets synchronous HTTP handlers wait on asynchronous routes.
type Dispatcher struct {
	registry *Registry
	workers  int
	queue    chan request
	stopped  chan struct{}
	logger   *zap.Logger
}

func NewDispatcher(registry *Registry, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		registry: registry,
		workers:  workers,
		queue:    make(chan request, queueSize),
		stopped:  make(chan struct{}),
		logger:   logging.OrNop(logger),
	}
}

// Run serves queued requests until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stopped)
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		group.Go(func() error {
			d.work(groupCtx)
			return nil
		})
	}
	return group.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			if err := req.ctx.Err(); err != nil {
				req.reply <- response{err: err}
				continue
			}
			started := time.Now()
			result, err := d.registry.Dispatch(req.ctx, req.name, req.payload, req.call)
			if err != nil {
				d.logger.Warn("route failed",
					zap.String("route", req.name),
					zap.Duration("duration", time.Since(started)),
					zap.Error(err))
			} else {
				d.logger.Debug("route served",
					zap.String("route", req.name),
					zap.Duration("duration", time.Since(started)))
			}
			req.reply <- response{result: result, err: err}
		}
	}
}

// Call dispatches name with payload and waits for the result.
func (d *Dispatcher) Call(ctx context.Context, name string, payload map[string]any, call Call) (any, error) {
	if d == nil || d.registry == nil {
		return nil, ErrUnavailable
	}
	req := request{ctx: ctx, name: name, payload: payload, call: call, reply: make(chan response, 1)}
	select {
	case d.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.stopped:
		return nil, ErrStopped
	}
	select {
	case resp := <-req.reply:
		return resp.result, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.stopped:
		return nil, ErrStopped
	}
}

// Routes lists the registered routes, or nil in degraded mode.
func (d *Dispatcher) Routes() []Route {
	if d == nil || d.registry == nil {
		return nil
	}
	return d.registry.List()
}

// Available reports whether dispatches can be served.
func (d *Dispatcher) Available() bool {
	return d != nil && d.registry != nil
}
