package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type TimelineState string

const (
	TimelineIdle           TimelineState = "idle"
	TimelineAwaitingDevice TimelineState = "awaiting_device"
	TimelineCountdown      TimelineState = "countdown"
	TimelineRecording      TimelineState = "recording"
	TimelineDone           TimelineState = "done"
	TimelineCancelled      TimelineState = "cancelled"
)

// TimelineSnapshot is one observable state of the capture sequence.
// Remaining counts countdown or recording seconds.
type TimelineSnapshot struct {
	State      TimelineState
	Remaining  int
	Generation uint64
}

type TimelineConfig struct {
	SettleDelay   time.Duration
	Tick          time.Duration
	CountdownFrom int
	RecordSeconds int
}

func DefaultTimelineConfig() TimelineConfig {
	return TimelineConfig{
		SettleDelay:   time.Second,
		Tick:          time.Second,
		CountdownFrom: 3,
		RecordSeconds: 4,
	}
}

// TimelineHooks run synchronously on the timer goroutine. They must not call
// back into the Timeline.
type TimelineHooks struct {
	OnChange func(TimelineSnapshot)
	OnRecord func()
	OnDone   func()
}

// Timeline drives countdown -> record -> stop with a single timer owner.
// Every sequence gets a new generation; callbacks of older generations are
// dropped even if their timer already fired.
type Timeline struct {
	clock clockwork.Clock
	cfg   TimelineConfig

	mu         sync.Mutex
	state      TimelineState
	remaining  int
	generation uint64
	timer      clockwork.Timer
	hooks      TimelineHooks
}

func NewTimeline(clock clockwork.Clock, cfg TimelineConfig) *Timeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultTimelineConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.CountdownFrom < 0 {
		cfg.CountdownFrom = 0
	}
	if cfg.RecordSeconds <= 0 {
		cfg.RecordSeconds = def.RecordSeconds
	}
	return &Timeline{clock: clock, cfg: cfg, state: TimelineIdle}
}

// Start begins a new sequence, cancelling whatever the previous one had
// pending.
func (t *Timeline) Start(hooks TimelineHooks) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTimerLocked()
	t.generation++
	t.hooks = hooks
	t.state = TimelineAwaitingDevice
	t.remaining = 0
	t.emitLocked()
	return t.generation
}

// DeviceReady arms the settle delay that leads into the countdown.
func (t *Timeline) DeviceReady() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TimelineAwaitingDevice {
		return fmt.Errorf("timeline: device ready in state %s", t.state)
	}
	t.scheduleLocked(t.cfg.SettleDelay, t.enterCountdownLocked)
	return nil
}

// Cancel stops pending timers. No callback of the cancelled sequence runs
// afterwards.
func (t *Timeline) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTimerLocked()
	t.generation++
	if t.state == TimelineIdle || t.state == TimelineDone || t.state == TimelineCancelled {
		return
	}
	t.state = TimelineCancelled
	t.remaining = 0
	t.emitLocked()
}

func (t *Timeline) Snapshot() TimelineSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Timeline) enterCountdownLocked() {
	t.state = TimelineCountdown
	t.remaining = t.cfg.CountdownFrom
	if t.remaining == 0 {
		t.enterRecordingLocked()
		return
	}
	t.scheduleLocked(t.cfg.Tick, t.countdownTickLocked)
	t.emitLocked()
}

func (t *Timeline) countdownTickLocked() {
	t.remaining--
	if t.remaining > 0 {
		t.scheduleLocked(t.cfg.Tick, t.countdownTickLocked)
		t.emitLocked()
		return
	}
	t.emitLocked()
	t.enterRecordingLocked()
}

func (t *Timeline) enterRecordingLocked() {
	t.state = TimelineRecording
	t.remaining = t.cfg.RecordSeconds
	t.scheduleLocked(t.cfg.Tick, t.recordingTickLocked)
	t.emitLocked()
	if t.hooks.OnRecord != nil {
		t.hooks.OnRecord()
	}
}

func (t *Timeline) recordingTickLocked() {
	t.remaining--
	if t.remaining > 0 {
		t.scheduleLocked(t.cfg.Tick, t.recordingTickLocked)
		t.emitLocked()
		return
	}
	t.emitLocked()
	t.state = TimelineDone
	t.timer = nil
	t.emitLocked()
	if t.hooks.OnDone != nil {
		t.hooks.OnDone()
	}
}

func (t *Timeline) scheduleLocked(d time.Duration, step func()) {
	t.stopTimerLocked()
	gen := t.generation
	t.timer = t.clock.AfterFunc(d, func() { t.fire(gen, step) })
}

func (t *Timeline) fire(gen uint64, step func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		return
	}
	t.timer = nil
	step()
}

func (t *Timeline) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Timeline) emitLocked() {
	if t.hooks.OnChange != nil {
		t.hooks.OnChange(t.snapshotLocked())
	}
}

func (t *Timeline) snapshotLocked() TimelineSnapshot {
	return TimelineSnapshot{State: t.state, Remaining: t.remaining, Generation: t.generation}
}
