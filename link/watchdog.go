package link

import (
	"time"

	"github.com/frobware/go-pppring/status"
)

// armLocked starts the silence countdown and, unless ticks are manual,
// a ticker goroutine bound to this arming. Re-arming or disarming
// retires the previous goroutine on its next tick.
func (s *Supervisor) armLocked() {
	s.armed = true
	s.remaining = s.opts.WatchdogBudget
	s.gen++
	if !s.opts.ManualTick {
		go s.watch(s.gen)
	}
}

func (s *Supervisor) disarmLocked() {
	s.armed = false
}

func (s *Supervisor) watch(gen uint64) {
	t := time.NewTicker(s.opts.WatchdogInterval)
	defer t.Stop()
	for range t.C {
		s.mu.Lock()
		live := s.tickLocked(gen)
		s.unlockAndNotify()
		if !live {
			return
		}
	}
}

// Heard resets the silence countdown. The reader calls it on every
// datagram received.
func (s *Supervisor) Heard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = s.opts.WatchdogBudget
}

// Armed reports whether the watchdog is running.
func (s *Supervisor) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Tick runs one watchdog check. It is what the ticker goroutine calls
// every WatchdogInterval; with ManualTick the owner drives it.
func (s *Supervisor) Tick() {
	s.mu.Lock()
	defer s.unlockAndNotify()
	s.tickLocked(s.gen)
}

// tickLocked counts down the silence budget while a helper pid is known
// and compares the artifact mtime with the one captured at OpenRead.
// Either check failing closes the link, which disarms the watchdog. It
// reports whether the watchdog for gen is still armed.
func (s *Supervisor) tickLocked(gen uint64) bool {
	if !s.armed || gen != s.gen {
		return false
	}

	if s.pid > 0 {
		s.remaining -= s.opts.WatchdogInterval
		if s.remaining <= 0 {
			s.logger.Error("helper may be wedged", "pid", s.pid, "silent_for", s.opts.WatchdogBudget)
			watchdogClosuresTotal.WithLabelValues(s.opts.Spec.Device, "silence").Inc()
			_ = s.closeLocked("no traffic within watchdog budget")
			return false
		}
	}

	mt, err := status.ModTime(s.path)
	if err != nil || !mt.Equal(s.mtime) {
		s.logger.Info("status artifact changed, closing receive socket", "path", s.path)
		watchdogClosuresTotal.WithLabelValues(s.opts.Spec.Device, "artifact").Inc()
		_ = s.closeLocked("status artifact changed")
		return false
	}
	return true
}
