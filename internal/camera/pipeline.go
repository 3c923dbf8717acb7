package camera

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

// StateFunc observes connection state transitions of one pipeline. It is
// called from the pipeline's own goroutine and must not block.
type StateFunc func(cameraID string, state models.ConnState, failures int)

// Pipeline keeps a live frame stream from one camera source. It owns the
// latest-frame buffer exclusively and survives transient stream failures;
// after the consecutive-failure threshold it parks itself in the
// disconnected state until Start is called again.
type Pipeline struct {
	log      *slog.Logger
	cameraID string
	url      string
	factory  SourceFactory
	cfg      Settings
	onState  StateFunc

	mu        sync.RWMutex
	state     models.ConnState
	failures  int
	lastFrame Frame
	hasFrame  bool

	tapMu   sync.Mutex
	tap     chan Frame
	dropped atomic.Int64

	// lifeMu serializes Start and Stop so a Stop can never cancel a loop
	// launched by a racing Start while the old loop leaks its source.
	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Settings are the capture tunables shared by all pipelines.
type Settings struct {
	FailureThreshold int
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

func NewPipeline(log *slog.Logger, cameraID, url string, factory SourceFactory, cfg Settings, onState StateFunc) *Pipeline {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}

	return &Pipeline{
		log:      log.With(slog.String("camera_id", cameraID)),
		cameraID: cameraID,
		url:      url,
		factory:  factory,
		cfg:      cfg,
		onState:  onState,
		state:    models.ConnDisconnected,
	}
}

// Start launches the background pull loop. Calling Start on a running
// pipeline is a no-op; calling it on a disconnected one resets the failure
// counter and reconnects.
func (p *Pipeline) Start(ctx context.Context) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.done != nil {
		select {
		case <-p.done:
			// previous loop has exited, restart is allowed
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.cancel = cancel
	p.done = done

	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()

	go p.loop(ctx, done)
}

// Stop terminates the pull loop and releases the stream. Safe to call from
// any state, idempotent.
func (p *Pipeline) Stop() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.cancel == nil {
		return
	}

	p.cancel()
	<-p.done
}

// Latest returns the most recently decoded frame without blocking. The
// second result is false until the first frame has arrived.
func (p *Pipeline) Latest() (Frame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.lastFrame, p.hasFrame
}

// State reports the current connection state and failure counter.
func (p *Pipeline) State() (models.ConnState, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.state, p.failures
}

// Attach taps the pipeline for recording. While a tap is attached every
// frame is offered to the channel; frames are dropped with a counter when
// the consumer falls behind the buffer, never queued without bound.
func (p *Pipeline) Attach(buffer int) (<-chan Frame, error) {
	p.tapMu.Lock()
	defer p.tapMu.Unlock()

	if p.tap != nil {
		return nil, errs.ErrSlotBusy
	}

	ch := make(chan Frame, buffer)
	p.tap = ch

	return ch, nil
}

// Detach removes the recording tap and closes its channel.
func (p *Pipeline) Detach() {
	p.tapMu.Lock()
	defer p.tapMu.Unlock()

	if p.tap != nil {
		close(p.tap)
		p.tap = nil
	}
}

// DroppedFrames reports how many frames were discarded because the
// recording tap could not keep up. Diagnostic only.
func (p *Pipeline) DroppedFrames() int64 {
	return p.dropped.Load()
}

func (p *Pipeline) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	src := p.factory(p.url)

	if !p.connect(ctx, src) {
		return
	}
	defer src.Close()

	for {
		select {
		case <-ctx.Done():
			p.setState(models.ConnDisconnected)
			return
		default:
		}

		img, err := src.Read()
		if err != nil {
			if p.fail(err) {
				p.setState(models.ConnDisconnected)
				return
			}

			p.setState(models.ConnDegraded)

			select {
			case <-ctx.Done():
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		frame := Frame{Image: img, CapturedAt: time.Now()}

		p.mu.Lock()
		p.lastFrame = frame
		p.hasFrame = true
		p.failures = 0
		live := p.state != models.ConnLive
		p.state = models.ConnLive
		p.mu.Unlock()

		if live {
			p.notify(models.ConnLive, 0)
		}

		p.offer(frame)
	}
}

// connect opens the source on a backoff schedule. Returns false once the
// failure threshold is exceeded or the context is cancelled.
func (p *Pipeline) connect(ctx context.Context, src Source) bool {
	p.setState(models.ConnConnecting)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryInterval
	bo.MaxInterval = p.cfg.MaxRetryInterval
	bo.MaxElapsedTime = 0

	for {
		err := src.Open()
		if err == nil {
			return true
		}

		p.log.Warn("failed to open stream", sl.Err(err))

		if p.fail(err) {
			p.setState(models.ConnDisconnected)
			return false
		}

		select {
		case <-ctx.Done():
			p.setState(models.ConnDisconnected)
			return false
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// fail bumps the consecutive-failure counter and reports whether the
// threshold has been crossed.
func (p *Pipeline) fail(err error) bool {
	p.mu.Lock()
	p.failures++
	failures := p.failures
	p.mu.Unlock()

	if failures >= p.cfg.FailureThreshold {
		p.log.Error("failure threshold exceeded, camera down", sl.Err(err), slog.Int("failures", failures))
		return true
	}

	return false
}

func (p *Pipeline) setState(state models.ConnState) {
	p.mu.Lock()
	changed := p.state != state
	p.state = state
	failures := p.failures
	p.mu.Unlock()

	if changed {
		p.notify(state, failures)
	}
}

func (p *Pipeline) notify(state models.ConnState, failures int) {
	if p.onState != nil {
		p.onState(p.cameraID, state, failures)
	}
}

func (p *Pipeline) offer(frame Frame) {
	p.tapMu.Lock()
	defer p.tapMu.Unlock()

	if p.tap == nil {
		return
	}

	select {
	case p.tap <- frame:
	default:
		p.dropped.Add(1)
	}
}
