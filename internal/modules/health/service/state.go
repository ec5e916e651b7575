package service

import (
	"sync"
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected   atomic.Bool
	lastCycleUnix atomic.Int64 // unix seconds
	cycles        atomic.Int64

	mu        sync.RWMutex
	component string
	lastErr   string
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) SetComponent(name string) {
	s.mu.Lock()
	s.component = name
	s.mu.Unlock()
}

func (s *State) Component() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.component
}

// TouchCycle отмечает завершённый цикл процесса; err == nil сбрасывает последнюю ошибку.
func (s *State) TouchCycle(t time.Time, err error) {
	s.lastCycleUnix.Store(t.Unix())
	s.cycles.Add(1)
	s.mu.Lock()
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()
}

func (s *State) LastCycle() time.Time {
	u := s.lastCycleUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Cycles() int64 { return s.cycles.Load() }

func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
