package inactivity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/borichat/internal/clock"
	"github.com/ashureev/borichat/internal/eventloop"
)

type recorder struct {
	warnings int
	closes   []Reason
}

func newTestController(t *testing.T) (*Controller, *clock.Manual, *recorder) {
	t.Helper()
	m := clock.NewManual()
	rec := &recorder{}
	c := NewController(DefaultDurations(), m, eventloop.Inline{}, Hooks{
		OnWarning: func() { rec.warnings++ },
		OnClose:   func(r Reason) { rec.closes = append(rec.closes, r) },
	}, nil)
	return c, m, rec
}

func TestInitialInactivityClosesOnce(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Start()
	require.Equal(t, 1, m.Pending())

	m.Advance(59 * time.Second)
	require.Empty(t, rec.closes)

	m.Advance(time.Second)
	require.Equal(t, []Reason{ReasonInitialInactivity}, rec.closes)
	require.Equal(t, Closed, c.State())
	require.Zero(t, m.Pending())

	m.Advance(10 * time.Minute)
	require.Len(t, rec.closes, 1)
	require.Zero(t, rec.warnings)
}

func TestFirstActivityCancelsInitialTimer(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Start()

	m.Advance(30 * time.Second)
	require.True(t, c.Activity())
	require.Equal(t, Active, c.State())
	require.Equal(t, 1, m.Pending(), "only the warning timer may be armed")

	// The initial deadline passes without a close.
	m.Advance(45 * time.Second)
	require.Empty(t, rec.closes)

	require.False(t, c.Activity(), "second activity must not start a new session")
}

func TestWarningThenSessionTimeout(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Start()
	c.Activity()

	m.Advance(119 * time.Second)
	require.Zero(t, rec.warnings)

	m.Advance(time.Second)
	require.Equal(t, 1, rec.warnings)
	require.Equal(t, Warned, c.State())

	m.Advance(59 * time.Second)
	require.Empty(t, rec.closes)

	m.Advance(time.Second)
	require.Equal(t, []Reason{ReasonSessionTimeout}, rec.closes)
	require.Equal(t, Closed, c.State())
	require.Equal(t, 1, rec.warnings)
	require.Zero(t, m.Pending())
}

func TestActivityDuringWarningWindowRestartsCycle(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Activity()

	m.Advance(100 * time.Second)
	c.Activity()
	m.Advance(100 * time.Second)
	require.Zero(t, rec.warnings, "activity must restart the warning timer")

	m.Advance(20 * time.Second)
	require.Equal(t, 1, rec.warnings)
}

func TestActivityDuringCloseWindowRestartsCycle(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Activity()

	m.Advance(120 * time.Second)
	require.Equal(t, Warned, c.State())

	m.Advance(30 * time.Second)
	c.Activity()
	require.Equal(t, Active, c.State())
	require.Equal(t, 1, m.Pending())

	m.Advance(60 * time.Second)
	require.Empty(t, rec.closes)

	m.Advance(60 * time.Second)
	require.Equal(t, 2, rec.warnings)
	require.Empty(t, rec.closes)
}

func TestRearmIsNoopBeforeInteraction(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Start()

	c.Rearm()
	require.Equal(t, Idle, c.State())

	m.Advance(60 * time.Second)
	require.Equal(t, []Reason{ReasonInitialInactivity}, rec.closes)

	c.Rearm()
	require.Equal(t, Closed, c.State())
	require.Zero(t, m.Pending())
}

func TestRearmFromWarned(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Activity()
	m.Advance(120 * time.Second)
	require.Equal(t, Warned, c.State())

	c.Rearm()
	require.Equal(t, Active, c.State())
	m.Advance(90 * time.Second)
	require.Empty(t, rec.closes)
}

func TestActivityAfterCloseStartsNewSession(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Start()
	m.Advance(60 * time.Second)
	require.Equal(t, Closed, c.State())

	require.True(t, c.Activity())
	require.Equal(t, Active, c.State())

	m.Advance(180 * time.Second)
	require.Equal(t, 1, rec.warnings)
	require.Equal(t, []Reason{ReasonInitialInactivity, ReasonSessionTimeout}, rec.closes)
}

func TestStopReleasesTimersWithoutHooks(t *testing.T) {
	c, m, rec := newTestController(t)
	c.Start()
	c.Activity()
	c.Stop()

	require.Zero(t, m.Pending())
	m.Advance(time.Hour)
	require.Zero(t, rec.warnings)
	require.Empty(t, rec.closes)

	require.False(t, c.Activity())
	require.Zero(t, m.Pending())
	c.Stop()
}

func TestStaleFireIsDiscarded(t *testing.T) {
	// A scheduler whose Stop never succeeds simulates a fire racing the
	// cancellation: the callback runs but must not take effect.
	s := &leakyScheduler{}
	rec := &recorder{}
	c := NewController(DefaultDurations(), s, eventloop.Inline{}, Hooks{
		OnWarning: func() { rec.warnings++ },
		OnClose:   func(r Reason) { rec.closes = append(rec.closes, r) },
	}, nil)

	c.Start()
	c.Activity()
	require.Len(t, s.fns, 2)

	s.fns[0]()
	require.Empty(t, rec.closes, "stale initial timer fired")
	require.Equal(t, Active, c.State())

	s.fns[1]()
	require.Equal(t, 1, rec.warnings)
}

type leakyScheduler struct {
	fns []func()
}

type leakyTimer struct{}

func (leakyTimer) Stop() bool { return false }

func (s *leakyScheduler) AfterFunc(_ time.Duration, f func()) clock.Timer {
	s.fns = append(s.fns, f)
	return leakyTimer{}
}
