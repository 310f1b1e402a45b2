package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const DefaultActionTimeout = 30 * time.Second

type Action func(ctx context.Context)

// Scheduler runs one-shot actions after a delay. There is no per-action
// cancel; actions are expected to re-check whatever state they act on.
type Scheduler struct {
	clock         clockwork.Clock
	actionTimeout time.Duration
	logger        *logrus.Entry

	mu      sync.Mutex
	nextID  uint64
	timers  map[uint64]clockwork.Timer
	running sync.WaitGroup
	stopped bool
}

func New(clock clockwork.Clock, actionTimeout time.Duration) *Scheduler {
	if actionTimeout <= 0 {
		actionTimeout = DefaultActionTimeout
	}
	return &Scheduler{
		clock:         clock,
		actionTimeout: actionTimeout,
		logger:        logrus.WithField("component", "scheduler"),
		timers:        make(map[uint64]clockwork.Timer),
	}
}

func (s *Scheduler) Schedule(delay time.Duration, name string, action Action) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Debugf("scheduler stopped, dropping %s", name)
		return
	}

	id := s.nextID
	s.nextID++
	s.timers[id] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if _, ok := s.timers[id]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.timers, id)
		s.running.Add(1)
		s.mu.Unlock()

		defer s.running.Done()
		s.run(name, action)
	})

	s.logger.Debugf("scheduled %s in %s", name, delay)
}

func (s *Scheduler) run(name string, action Action) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("action %s panicked: %v", name, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.actionTimeout)
	defer cancel()

	action(ctx)
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// Stop drops all pending actions and waits for the ones already running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.running.Wait()
}
