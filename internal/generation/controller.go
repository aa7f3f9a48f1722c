package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rohits-web03/meshforge/internal/progress"
	"github.com/rohits-web03/meshforge/internal/telemetry"
)

const DefaultTickInterval = 3 * time.Second

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Snapshot is the published view of one controller. Observers receive copies
// and never mutate controller state.
type Snapshot struct {
	State     State   `json:"state"`
	Percent   int     `json:"percent"`
	Phase     string  `json:"phase"`
	Active    bool    `json:"active"`
	Result    *Result `json:"result,omitempty"`
	ErrorKind Kind    `json:"errorKind,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Terminal reports whether the snapshot is Completed or Failed.
func (s Snapshot) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

type Option func(*Controller)

func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithEstimator(e progress.Estimator) Option {
	return func(c *Controller) { c.estimator = e }
}

// WithObserver registers fn to receive every published snapshot. fn runs with
// the controller locked, so it must return quickly and must not call back
// into the controller.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observer = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller runs one generation attempt at a time: it submits the images,
// animates simulated progress while the request is in flight, and settles on
// the real outcome.
type Controller struct {
	client    Submitter
	estimator progress.Estimator
	interval  time.Duration
	observer  func(Snapshot)
	logger    *zap.Logger

	mu        sync.Mutex
	attempt   uint64
	state     State
	percent   int
	phase     string
	result    *Result
	err       error
	ticker    *progress.Ticker
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

func NewController(client Submitter, opts ...Option) *Controller {
	c := &Controller{
		client:    client,
		estimator: progress.DefaultEstimator(),
		interval:  DefaultTickInterval,
		logger:    zap.NewNop(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "generation_controller"))
	return c
}

// Start validates the images and, when they are acceptable, begins a new
// attempt in the background. An invalid count fails without any network call
// or state change. ctx bounds the request itself; it should outlive the
// caller's own request scope.
func (c *Controller) Start(ctx context.Context, images []Image) error {
	req, err := NewRequest(images)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return ErrBusy
	}

	c.attempt++
	id := c.attempt
	runCtx, cancel := context.WithCancel(ctx)
	tk := progress.NewTicker(c.interval)

	c.state = StateSubmitting
	c.percent = 0
	c.phase = c.estimator.PhaseFor(0)
	c.result = nil
	c.err = nil
	c.ticker = tk
	c.cancel = cancel
	c.done = make(chan struct{})
	c.startedAt = time.Now()
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("generation started", zap.Uint64("attempt", id), zap.Int("images", len(req.Images)))

	tk.Run(func(n int) bool { return c.advance(id, n) })
	go c.run(runCtx, id, tk, req)
	return nil
}

func (c *Controller) run(ctx context.Context, id uint64, tk *progress.Ticker, req *Request) {
	defer tk.Stop()
	defer func() {
		if r := recover(); r != nil {
			c.finish(id, Result{}, fmt.Errorf("%w: panic: %v", ErrTransport, r))
		}
	}()

	raw, err := c.client.Submit(ctx, req)
	if err != nil {
		c.finish(id, Result{}, err)
		return
	}
	res, err := raw.Result()
	c.finish(id, res, err)
}

// advance is the tick callback. It returns false once the estimate reaches the
// cap so the ticker stops while the attempt stays Submitting.
func (c *Controller) advance(id uint64, tick int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.attempt || c.state != StateSubmitting {
		return false
	}

	est := c.estimator.Estimate(time.Duration(tick) * c.interval)
	if est.Percent < c.percent {
		est.Percent = c.percent
	}
	c.percent = est.Percent
	c.phase = c.estimator.PhaseFor(est.Percent)
	c.publishLocked()

	return est.Percent < c.estimator.Cap
}

func (c *Controller) finish(id uint64, res Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.attempt || c.state != StateSubmitting {
		c.logger.Debug("discarding response of a superseded attempt", zap.Uint64("attempt", id))
		return
	}

	c.ticker.Stop()
	elapsed := time.Since(c.startedAt)

	if err != nil {
		c.state = StateFailed
		c.percent = 0
		c.phase = ""
		c.err = err
		c.logger.Warn("generation failed",
			zap.Uint64("attempt", id),
			zap.String("kind", string(Classify(err))),
			zap.Error(err),
		)
		telemetry.RecordGeneration(string(StateFailed), elapsed)
	} else {
		c.state = StateCompleted
		c.percent = 100
		c.phase = progress.CompletionLabel
		c.result = &res
		c.logger.Info("generation completed",
			zap.Uint64("attempt", id),
			zap.String("model_url", res.ModelURL),
			zap.String("usdz_url", res.USDZURL),
			zap.Duration("elapsed", elapsed),
		)
		telemetry.RecordGeneration(string(StateCompleted), elapsed)
	}

	c.cancel()
	close(c.done)
	c.publishLocked()
}

// Reset stops any running ticker, abandons the in-flight request and returns
// the controller to Idle. It is safe to call in any state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		c.ticker.Stop()
		c.cancel()
		close(c.done)
		c.logger.Info("generation reset", zap.Uint64("attempt", c.attempt))
	}

	// Bumping the attempt makes any late tick or response a no-op.
	c.attempt++
	c.state = StateIdle
	c.percent = 0
	c.phase = ""
	c.result = nil
	c.err = nil
	c.ticker = nil
	c.cancel = nil
	c.publishLocked()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until the current attempt leaves Submitting (or ctx ends) and
// returns the snapshot at that point.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	done := c.done
	submitting := c.state == StateSubmitting
	c.mu.Unlock()

	if submitting {
		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
	return c.Snapshot(), nil
}

// Err returns the failure of the last attempt, if it failed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:   c.state,
		Percent: c.percent,
		Phase:   c.phase,
		Active:  c.state == StateSubmitting,
	}
	if c.result != nil {
		r := *c.result
		s.Result = &r
	}
	if c.err != nil {
		s.ErrorKind = Classify(c.err)
		s.Error = c.err.Error()
	}
	return s
}

func (c *Controller) publishLocked() {
	if c.observer != nil {
		c.observer(c.snapshotLocked())
	}
}
