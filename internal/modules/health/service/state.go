package service

import (
	"sync/atomic"
	"time"
)

// Snapshot отдаётся на /healthz.
type Snapshot struct {
	Ready         bool  `json:"ready"`
	StreamUp      bool  `json:"stream_up"`
	UptimeSec     int64 `json:"uptime_sec"`
	LastMarkUnix  int64 `json:"last_mark_unix"`
	LastAlertUnix int64 `json:"last_alert_unix"`
	Protected     int   `json:"protected_positions"`
}

type State struct {
	startedAt time.Time

	ready     atomic.Bool
	streamUp  atomic.Bool
	lastMark  atomic.Int64 // unix seconds
	lastAlert atomic.Int64
	protected atomic.Int64
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetStreamUp(v bool) { s.streamUp.Store(v) }

func (s *State) MarkSeen(t time.Time)  { s.lastMark.Store(t.Unix()) }
func (s *State) AlertSeen(t time.Time) { s.lastAlert.Store(t.Unix()) }

func (s *State) SetProtected(n int) { s.protected.Store(int64(n)) }

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Ready:         s.ready.Load(),
		StreamUp:      s.streamUp.Load(),
		UptimeSec:     int64(time.Since(s.startedAt).Seconds()),
		LastMarkUnix:  s.lastMark.Load(),
		LastAlertUnix: s.lastAlert.Load(),
		Protected:     int(s.protected.Load()),
	}
}
