package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is a monotonic millisecond time source, the equivalent of the
// timestamp a browser hands to an animation-frame callback.
type Clock interface {
	NowMillis() int64
}

// MonotonicClock reports milliseconds elapsed since it was created.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// NowMillis implements Clock. time.Since uses the monotonic reading, so the
// result never goes backwards.
func (c *MonotonicClock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

// ManualClock is a Clock moved explicitly, for tests and replay.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NowMillis implements Clock.
func (c *ManualClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ms. Moving backwards is ignored.
func (c *ManualClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms > c.now {
		c.now = ms
	}
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d.Milliseconds()
	}
}

// Mode describes how the FrameLoop produces frame timestamps.
type Mode int

const (
	// RealTime fires one frame per Tick of wall-clock time and stamps it
	// with the loop's Clock.
	RealTime Mode = iota
	// Accelerated runs frames back to back, stamping each one Tick after
	// the previous. Useful for replay and tests.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// FrameLoop is the render loop: it produces frame timestamps and invokes the
// registered listeners once per frame, in registration order. It never
// runs listeners concurrently.
type FrameLoop struct {
	mu    sync.RWMutex
	Tick  time.Duration
	Mode  Mode
	clock Clock

	frames    int64
	lastFrame int64
	listeners []func(nowMillis int64)
	// stepMu serialises frames so Step and Start never overlap.
	stepMu sync.Mutex
}

// NewFrameLoop constructs a loop. A nil clock defaults to a MonotonicClock.
func NewFrameLoop(tick time.Duration, mode Mode, clock Clock) *FrameLoop {
	if tick <= 0 {
		tick = time.Second / 60
	}
	if clock == nil {
		clock = NewMonotonicClock()
	}
	return &FrameLoop{
		Tick:  tick,
		Mode:  mode,
		clock: clock,
	}
}

// AddListener registers a callback invoked on every frame.
func (l *FrameLoop) AddListener(fn func(nowMillis int64)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Frames returns the number of frames run so far.
func (l *FrameLoop) Frames() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frames
}

// LastFrameMillis returns the timestamp of the most recent frame.
func (l *FrameLoop) LastFrameMillis() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastFrame
}

// Step runs a single frame synchronously and returns its timestamp. Frame
// timestamps never decrease.
func (l *FrameLoop) Step() int64 {
	l.stepMu.Lock()
	defer l.stepMu.Unlock()

	l.mu.Lock()
	var now int64
	if l.Mode == Accelerated {
		now = l.lastFrame
		if l.frames > 0 {
			now += l.Tick.Milliseconds()
		}
	} else {
		now = l.clock.NowMillis()
		if now < l.lastFrame {
			now = l.lastFrame
		}
	}
	l.lastFrame = now
	l.frames++
	listeners := make([]func(int64), len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// Start runs frames in a separate goroutine until ctx is cancelled or, when
// duration is positive, until that much frame time has elapsed. It returns a
// channel that is closed when the loop finishes.
func (l *FrameLoop) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)

		first := int64(-1)
		finished := func(now int64) bool {
			if first < 0 {
				first = now
			}
			return duration > 0 && time.Duration(now-first)*time.Millisecond >= duration
		}

		if l.Mode == Accelerated {
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if finished(l.Step()) {
					return
				}
			}
		}

		ticker := time.NewTicker(l.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if finished(l.Step()) {
					return
				}
			}
		}
	}()
	return done
}
