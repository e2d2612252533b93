package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TickConfig bundles the Tick Scheduler's tunables.
type TickConfig struct {
	TargetFPS        int
	MaxDeltaTime     time.Duration
	TickRateDisabled bool
}

// TickSystems is the ordered set of systems the scheduler drives each
// tick: Movement then Durability.
type TickSystems struct {
	Movement   *Movement
	Durability *DurabilitySystem
	LayerIDs   func() []string
}

// TickScheduler drives Movement then Durability at a fixed target
// frequency, single-threaded and cooperative: a tick runs to completion
// without preemption.
type TickScheduler struct {
	cfg     TickConfig
	systems TickSystems
	log     *logrus.Logger
	clock   func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	tickCount    uint64
	lastTickTook time.Duration
	lastTPS      float64
	lagSamples   []time.Duration
}

// NewTickScheduler builds a scheduler bound to systems.
func NewTickScheduler(cfg TickConfig, systems TickSystems, log *logrus.Logger) *TickScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	if cfg.MaxDeltaTime <= 0 {
		cfg.MaxDeltaTime = 100 * time.Millisecond
	}
	return &TickScheduler{cfg: cfg, systems: systems, log: log, clock: time.Now}
}

// SetClock overrides the scheduler's time source for tests.
func (s *TickScheduler) SetClock(fn func() time.Time) {
	if fn != nil {
		s.clock = fn
	}
}

// Run blocks, driving ticks at the target frequency until Stop is called
// or tick_rate_disabled is set (in which case Run returns immediately: the
// system becomes purely event-driven and systems are invoked synchronously
// from the session layer instead).
func (s *TickScheduler) Run() {
	if s.cfg.TickRateDisabled {
		s.log.Info("tick scheduler disabled; running purely event-driven")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	interval := time.Second / time.Duration(s.cfg.TargetFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	last := s.clock()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if dt > s.cfg.MaxDeltaTime {
				dt = s.cfg.MaxDeltaTime
			}
			start := s.clock()
			s.runOneTick(dt.Seconds())
			took := s.clock().Sub(start)
			s.recordTick(took, interval)
		}
	}
}

func (s *TickScheduler) runOneTick(dtSeconds float64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("tick-internal panic recovered")
		}
	}()

	var layerIDs []string
	if s.systems.LayerIDs != nil {
		layerIDs = s.systems.LayerIDs()
	}
	if s.systems.Movement != nil {
		for _, layerID := range layerIDs {
			s.systems.Movement.Update(dtSeconds, layerID)
		}
	}
	if s.systems.Durability != nil {
		s.systems.Durability.Update()
	}
}

// RunOnce executes exactly one tick synchronously. Used when
// tick_rate_disabled and a caller still wants to advance simulation state
// explicitly (e.g. tests, or an admin "step" endpoint).
func (s *TickScheduler) RunOnce(dtSeconds float64) {
	s.runOneTick(dtSeconds)
	s.mu.Lock()
	s.tickCount++
	s.mu.Unlock()
}

func (s *TickScheduler) recordTick(took, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickCount++
	s.lastTickTook = took
	s.lagSamples = append(s.lagSamples, took)
	if len(s.lagSamples) > 120 {
		s.lagSamples = s.lagSamples[len(s.lagSamples)-120:]
	}
	if took > 0 {
		s.lastTPS = float64(time.Second) / float64(maxDuration(took, interval))
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Stop halts a running scheduler and blocks until the run loop exits.
func (s *TickScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()
	<-done
}

// TickCount returns the number of ticks executed so far.
func (s *TickScheduler) TickCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickCount
}

// LastTickDuration returns how long the most recent tick took to run.
func (s *TickScheduler) LastTickDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTickTook
}

// EstimatedTPS returns a rough ticks-per-second estimate from the most
// recent sample.
func (s *TickScheduler) EstimatedTPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTPS
}

// AverageLag returns the mean tick duration over the retained sample
// window, used by the admin /stats surface.
func (s *TickScheduler) AverageLag() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lagSamples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.lagSamples {
		total += d
	}
	return total / time.Duration(len(s.lagSamples))
}
