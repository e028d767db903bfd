package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thesyncim/mediacapture"
	"github.com/thesyncim/mediacapture/internal/logging"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SegmentProducer turns a stream into encoded segments. The channel is
// closed once Stop has flushed the last segment.
type SegmentProducer interface {
	Start(ctx context.Context, src *Stream) (<-chan Segment, error)
	Stop() error
}

// SnapshotProducer samples stills from a stream. The channel is closed once
// Stop returns.
type SnapshotProducer interface {
	Start(ctx context.Context, src *Stream) (<-chan Snapshot, error)
	Stop() error
}

// Callbacks connect a controller to the surrounding application.
type Callbacks struct {
	// OnBack is called when the user leaves the capture screen, with or
	// without an artifact.
	OnBack func()
	// OnSave receives the finished artifact, at most once per session.
	OnSave func(*Artifact)
}

// Options configures a Controller.
type Options struct {
	Mode     Mode
	Acquirer Acquirer // Defaults to a DeviceAcquirer over the global MediaDevices

	NewRecorder func(Mode) SegmentProducer
	NewSampler  func(Mode) SnapshotProducer

	Callbacks

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// Controller runs capture sessions for one mode:
//
//	Idle -> Acquiring -> Recording -> Stopped -> (Save | Reset) -> Idle
//
// A controller owns at most one stream at a time and is the only party that
// releases it. Segments and snapshots reach the controller through the
// producers' channels and are drained by a single consumer goroutine.
type Controller struct {
	opts Options
	desc Descriptor
	log  *slog.Logger

	// opMu serializes Stop, Save and Reset.
	opMu sync.Mutex

	mu            sync.Mutex
	state         State
	gen           uint64
	cancelAcquire context.CancelFunc
	inflight      chan struct{} // Closed when the pending Start returns
	stream        *Stream
	recorder      SegmentProducer
	sampler       SnapshotProducer
	consumed      chan struct{}
	segments      []Segment
	snapshots     []Snapshot
	startedAt     time.Time
	stoppedAt     time.Time
	done          chan struct{}
}

// NewController creates a controller in the Idle state.
func NewController(opts Options) (*Controller, error) {
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("unknown capture mode %s", opts.Mode)
	}
	if opts.Acquirer == nil {
		opts.Acquirer = NewDeviceAcquirer(mediacapture.GetMediaDevices())
	}
	if opts.NewRecorder == nil {
		opts.NewRecorder = func(m Mode) SegmentProducer {
			return NewRecorder(RecorderOptions{Mode: m})
		}
	}
	if opts.NewSampler == nil {
		opts.NewSampler = func(m Mode) SnapshotProducer {
			return NewSampler(SamplerOptions{FreshTarget: m.Descriptor().FreshTarget})
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newArtifactID
	}
	log := opts.Logger
	if log == nil {
		log = logging.L("session")
	}
	return &Controller{
		opts: opts,
		desc: opts.Mode.Descriptor(),
		log:  log.With(logging.KeyMode, opts.Mode.String()),
		done: make(chan struct{}),
	}, nil
}

func newArtifactID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Mode returns the controller's capture mode.
func (c *Controller) Mode() Mode { return c.opts.Mode }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Segments returns a copy of the segments collected so far.
func (c *Controller) Segments() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Segment(nil), c.segments...)
}

// Snapshots returns a copy of the snapshots collected so far.
func (c *Controller) Snapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Snapshot(nil), c.snapshots...)
}

// StartedAt returns when the session entered Recording, or the zero time.
func (c *Controller) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Done is closed when the current session reaches Stopped, including a stop
// triggered by the stream ending outside the application.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// setState must be called with mu held.
func (c *Controller) setState(to State) {
	if c.state == to {
		return
	}
	c.log.Info("session state", "from", c.state.String(), "to", to.String())
	c.state = to
}

// Start acquires a stream and begins recording. It blocks through the
// permission prompt. A denial returns ErrAcquisitionDenied and an encoder
// failure ErrRecordingUnsupported; both leave the controller Idle holding
// nothing. If the session is cancelled while acquiring, Start returns
// context.Canceled and discards whatever was acquired.
func (c *Controller) Start(ctx context.Context) error {
	gen, actx, cancel, inflight, err := c.beginAcquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cancel()
		c.mu.Lock()
		if c.inflight == inflight {
			c.inflight = nil
		}
		c.mu.Unlock()
		close(inflight)
	}()

	stream, err := c.opts.Acquirer.Acquire(actx, c.opts.Mode)
	if err != nil {
		if !c.abort(gen) {
			return context.Canceled
		}
		if actx.Err() != nil {
			return actx.Err()
		}
		c.log.Warn("acquisition denied", logging.KeyError, err)
		if !errors.Is(err, ErrAcquisitionDenied) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrAcquisitionDenied, err)
		}
		return err
	}

	if !c.current(gen) {
		c.releaseStream(stream)
		return context.Canceled
	}

	// Producers start while the state is still Acquiring so a failed start
	// never shows as Recording. Their output is not collected until the
	// transition below, and a cancelled generation tears them down unread.
	rec := c.opts.NewRecorder(c.opts.Mode)
	segs, err := rec.Start(actx, stream)
	if err != nil {
		c.releaseStream(stream)
		if !c.abort(gen) {
			return context.Canceled
		}
		if !errors.Is(err, ErrRecordingUnsupported) && actx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrRecordingUnsupported, err)
		}
		c.log.Error("recording unsupported", logging.KeyError, err)
		return err
	}

	var smp SnapshotProducer
	var snaps <-chan Snapshot
	if c.desc.Sampling {
		smp = c.opts.NewSampler(c.opts.Mode)
		if snaps, err = smp.Start(actx, stream); err != nil {
			go drain(segs)
			err = errors.Join(fmt.Errorf("start sampler: %w", err), teardown(rec, nil, stream))
			if !c.abort(gen) {
				return context.Canceled
			}
			c.log.Error("sampler failed to start", logging.KeyError, err)
			return err
		}
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateAcquiring {
		c.mu.Unlock()
		go drain(segs)
		go drain(snaps)
		if err := teardown(rec, smp, stream); err != nil {
			c.log.Warn("discarding cancelled session", logging.KeyError, err)
		}
		return context.Canceled
	}
	c.stream, c.recorder, c.sampler = stream, rec, smp
	c.startedAt = c.opts.Now()
	c.consumed = make(chan struct{})
	c.setState(StateRecording)
	go c.consume(segs, snaps, c.consumed)
	if c.desc.Display {
		go c.watch(gen, stream)
	}
	c.mu.Unlock()
	return nil
}

// beginAcquire moves Idle to Acquiring once any cancelled Start has
// finished releasing what it acquired.
func (c *Controller) beginAcquire(ctx context.Context) (uint64, context.Context, context.CancelFunc, chan struct{}, error) {
	for {
		c.mu.Lock()
		if c.state != StateIdle {
			state := c.state
			c.mu.Unlock()
			return 0, nil, nil, nil, fmt.Errorf("%w: start from %s", ErrInvalidState, state)
		}
		if pending := c.inflight; pending != nil {
			c.mu.Unlock()
			select {
			case <-pending:
				continue
			case <-ctx.Done():
				return 0, nil, nil, nil, ctx.Err()
			}
		}

		c.gen++
		actx, cancel := context.WithCancel(ctx)
		c.cancelAcquire = cancel
		inflight := make(chan struct{})
		c.inflight = inflight
		c.segments, c.snapshots = nil, nil
		c.setState(StateAcquiring)
		gen := c.gen
		c.mu.Unlock()
		return gen, actx, cancel, inflight, nil
	}
}

// abort returns a failed start to Idle. It reports false when the start had
// already been cancelled.
func (c *Controller) abort(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != StateAcquiring {
		return false
	}
	c.setState(StateIdle)
	return true
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state == StateAcquiring
}

// Cancel abandons a Start that is still waiting for the stream. It reports
// whether there was one to cancel.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAcquiring {
		return false
	}
	c.gen++
	c.cancelAcquire()
	c.setState(StateIdle)
	return true
}

func (c *Controller) consume(segs <-chan Segment, snaps <-chan Snapshot, done chan struct{}) {
	defer close(done)
	for segs != nil || snaps != nil {
		select {
		case seg, ok := <-segs:
			if !ok {
				segs = nil
				continue
			}
			if len(seg.Data) == 0 {
				continue
			}
			c.mu.Lock()
			c.segments = append(c.segments, seg)
			c.mu.Unlock()
		case snap, ok := <-snaps:
			if !ok {
				snaps = nil
				continue
			}
			c.mu.Lock()
			c.snapshots = append(c.snapshots, snap)
			c.mu.Unlock()
		}
	}
}

// watch stops the session when the stream is ended from outside.
func (c *Controller) watch(gen uint64, stream *Stream) {
	select {
	case <-stream.Ended():
	case <-stream.released:
		return
	}
	c.log.Info("stream ended outside the session", "stream", stream.ID())
	if err := c.stop(gen); err != nil {
		c.log.Warn("stop after external end", logging.KeyError, err)
	}
}

// Stop halts the recorder, then the sampler, then releases the stream. The
// stream is released even if stopping either producer fails or panics. Stop
// returns after the recorder's final segment has been collected. Stopping a
// stopped session is a no-op.
func (c *Controller) Stop() error {
	return c.stop(0)
}

// stop stops session gen, or the current session when gen is zero.
func (c *Controller) stop(gen uint64) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if gen != 0 && gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	switch c.state {
	case StateStopped:
		c.mu.Unlock()
		return nil
	case StateRecording:
	default:
		state := c.state
		c.mu.Unlock()
		if gen != 0 {
			return nil
		}
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, state)
	}
	rec, smp, stream, consumed := c.recorder, c.sampler, c.stream, c.consumed
	c.mu.Unlock()

	err := teardown(rec, smp, stream)
	<-consumed

	c.mu.Lock()
	c.recorder, c.sampler = nil, nil
	c.stoppedAt = c.opts.Now()
	c.setState(StateStopped)
	close(c.done)
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("session teardown", logging.KeyError, err)
	}
	return err
}

// teardown stops rec, then smp, then releases stream. Release runs on every
// path, including a panic in either Stop.
func teardown(rec SegmentProducer, smp SnapshotProducer, stream *Stream) (err error) {
	defer func() {
		if rerr := stream.release(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("release stream: %w", rerr))
		}
	}()
	defer func() {
		if smp != nil {
			if serr := smp.Stop(); serr != nil {
				err = errors.Join(err, fmt.Errorf("stop sampler: %w", serr))
			}
		}
	}()
	if rec != nil {
		if rerr := rec.Stop(); rerr != nil {
			err = fmt.Errorf("stop recorder: %w", rerr)
		}
	}
	return err
}

func (c *Controller) releaseStream(stream *Stream) {
	if err := stream.release(); err != nil {
		c.log.Warn("release stream", logging.KeyError, err)
	}
}

func drain[T any](ch <-chan T) {
	if ch == nil {
		return
	}
	for range ch {
	}
}

// Save assembles the artifact of a stopped session, hands it to OnSave,
// returns the controller to Idle and calls OnBack. With no segments there is
// nothing to save: Save returns (nil, nil), makes no callback and leaves
// the session Stopped.
func (c *Controller) Save() (*Artifact, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateStopped {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: save from %s", ErrInvalidState, state)
	}
	if len(c.segments) == 0 {
		c.mu.Unlock()
		c.log.Info("nothing to save")
		return nil, nil
	}
	art := assemble(c.desc, c.segments, c.snapshots, c.startedAt, c.stoppedAt, c.opts.Now(), c.opts.NewID())
	stream := c.resetLocked()
	c.mu.Unlock()

	if stream != nil {
		c.releaseStream(stream)
	}
	c.log.Info("artifact saved",
		"id", art.ID,
		"bytes", len(art.Payload),
		"snapshots", len(art.Snapshots),
	)
	if c.opts.OnSave != nil {
		c.opts.OnSave(art)
	}
	if c.opts.OnBack != nil {
		c.opts.OnBack()
	}
	return art, nil
}

// Reset discards the collected segments and snapshots, releases the stream
// if still held and returns to Idle. It applies to Stopped and Idle; an
// active session must be stopped first.
func (c *Controller) Reset() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == StateAcquiring || c.state == StateRecording {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: reset from %s", ErrInvalidState, state)
	}
	stream := c.resetLocked()
	c.mu.Unlock()

	if stream != nil {
		c.releaseStream(stream)
	}
	return nil
}

// resetLocked clears session state and returns the stream, if any, for the
// caller to release.
func (c *Controller) resetLocked() *Stream {
	stream := c.stream
	c.stream, c.recorder, c.sampler = nil, nil, nil
	c.segments, c.snapshots = nil, nil
	c.startedAt, c.stoppedAt = time.Time{}, time.Time{}
	if c.state == StateStopped {
		c.done = make(chan struct{})
	}
	c.setState(StateIdle)
	return stream
}

// Back leaves the capture screen: a pending Start is cancelled, an active
// session is stopped and discarded, then OnBack is called.
func (c *Controller) Back() error {
	var err error
	if !c.Cancel() {
		if err = c.Stop(); errors.Is(err, ErrInvalidState) {
			err = nil
		}
	}
	if rerr := c.Reset(); rerr != nil && !errors.Is(rerr, ErrInvalidState) {
		err = errors.Join(err, rerr)
	}
	if c.opts.OnBack != nil {
		c.opts.OnBack()
	}
	return err
}
