package server

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes dead entries and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// SweepService runs a Sweeper on a fixed interval.
type SweepService struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweepService creates a SweepService. A non-positive interval disables
// sweeping; Start then only waits for Stop.
func NewSweepService(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *SweepService {
	return &SweepService{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sweeps every interval until Stop.
func (s *SweepService) Start() error {
	defer close(s.done)
	if s.interval <= 0 {
		<-s.stop
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return nil
		case <-ticker.C:
			if n := s.sweeper.Sweep(); n > 0 {
				s.logger.Info("swept closed sessions", zap.Int("removed", n))
			}
		}
	}
}

// Stop ends the sweep loop and waits for it to exit.
//
// Precondition: Start has been called.
func (s *SweepService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
