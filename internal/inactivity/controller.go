// Package inactivity implements the widget's inactivity lifecycle: an
// initial auto-close before the first interaction, then a warning followed by
// a close when the visitor goes quiet.
package inactivity

import (
	"log/slog"
	"time"

	"github.com/ashureev/borichat/internal/clock"
	"github.com/ashureev/borichat/internal/eventloop"
)

// State is the lifecycle state of one widget session.
type State int

const (
	// Idle means the widget is mounted but the visitor has not interacted.
	Idle State = iota
	// Active means the visitor interacted and the warning timer is running.
	Active
	// Warned means the warning fired and the close timer is running.
	Warned
	// Closed means the session was force-closed and wiped.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Warned:
		return "warned"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event drives a state transition.
type Event int

const (
	EventActivity Event = iota
	EventInitialTimeout
	EventWarningTimeout
	EventCloseTimeout
	EventTeardown
)

func (e Event) String() string {
	switch e {
	case EventActivity:
		return "activity"
	case EventInitialTimeout:
		return "initial_timeout"
	case EventWarningTimeout:
		return "warning_timeout"
	case EventCloseTimeout:
		return "close_timeout"
	case EventTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// Reason explains a forced close.
type Reason string

const (
	ReasonInitialInactivity Reason = "initial_inactivity"
	ReasonSessionTimeout    Reason = "session_timeout"
)

type transitionKey struct {
	from  State
	event Event
}

// transitions lists every legal move. Pairs that are absent are ignored.
// Activity from Closed starts a fresh session. Teardown is handled outside
// the table since it is legal from every state and never changes it.
var transitions = map[transitionKey]State{
	{Idle, EventActivity}:         Active,
	{Idle, EventInitialTimeout}:   Closed,
	{Active, EventActivity}:       Active,
	{Active, EventWarningTimeout}: Warned,
	{Warned, EventActivity}:       Active,
	{Warned, EventCloseTimeout}:   Closed,
	{Closed, EventActivity}:       Active,
}

// Durations configures the three timers.
type Durations struct {
	// InitialClose closes an untouched widget.
	InitialClose time.Duration
	// Warning is the quiet period before the activity warning.
	Warning time.Duration
	// CloseAfterWarning is the quiet period after the warning before closing.
	CloseAfterWarning time.Duration
}

// DefaultDurations returns 60s / 120s / 60s.
func DefaultDurations() Durations {
	return Durations{
		InitialClose:      60 * time.Second,
		Warning:           120 * time.Second,
		CloseAfterWarning: 60 * time.Second,
	}
}

// Hooks are called on the owning event loop.
type Hooks struct {
	OnWarning func()
	OnClose   func(Reason)
}

// Controller is the inactivity state machine of one widget. Every method
// must be called from the executor it was built with; timer fires are posted
// back to that executor and dropped when a newer timer has replaced them.
type Controller struct {
	durations Durations
	scheduler clock.Scheduler
	exec      eventloop.Executor
	hooks     Hooks
	logger    *slog.Logger

	state   State
	timer   clock.Timer
	gen     uint64
	stopped bool
}

// NewController creates a controller in the Idle state. Call Start to arm
// the initial auto-close timer.
func NewController(d Durations, scheduler clock.Scheduler, exec eventloop.Executor, hooks Hooks, logger *slog.Logger) *Controller {
	if scheduler == nil {
		scheduler = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		durations: d,
		scheduler: scheduler,
		exec:      exec,
		hooks:     hooks,
		logger:    logger,
		state:     Idle,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Start arms the initial auto-close timer if no interaction happened yet.
func (c *Controller) Start() {
	if c.stopped || c.state != Idle || c.timer != nil {
		return
	}
	c.arm(c.durations.InitialClose, EventInitialTimeout)
}

// Activity records an inbound activity event and restarts the warning
// cycle. It reports true when this activity began a new session.
func (c *Controller) Activity() bool {
	if c.stopped {
		return false
	}
	from := c.state
	if !c.fire(EventActivity) {
		return false
	}
	return from == Idle || from == Closed
}

// Rearm restarts the warning cycle after a run finished. It does nothing
// before the first interaction or after a close.
func (c *Controller) Rearm() {
	if c.stopped || (c.state != Active && c.state != Warned) {
		return
	}
	c.fire(EventActivity)
}

// Stop releases every timer without emitting any hook.
func (c *Controller) Stop() {
	if c.stopped {
		return
	}
	c.cancel()
	c.stopped = true
	c.logger.Debug("Inactivity controller stopped", "state", c.state.String(), "event", EventTeardown.String())
}

func (c *Controller) fire(ev Event) bool {
	next, ok := transitions[transitionKey{from: c.state, event: ev}]
	if !ok {
		c.logger.Debug("Ignoring inactivity event", "state", c.state.String(), "event", ev.String())
		return false
	}
	from := c.state
	c.state = next
	c.cancel()

	switch ev {
	case EventActivity:
		c.arm(c.durations.Warning, EventWarningTimeout)
	case EventWarningTimeout:
		c.arm(c.durations.CloseAfterWarning, EventCloseTimeout)
		if c.hooks.OnWarning != nil {
			c.hooks.OnWarning()
		}
	case EventInitialTimeout:
		c.close(ReasonInitialInactivity)
	case EventCloseTimeout:
		c.close(ReasonSessionTimeout)
	}

	if from != next {
		c.logger.Debug("Inactivity transition", "from", from.String(), "to", next.String(), "event", ev.String())
	}
	return true
}

func (c *Controller) close(reason Reason) {
	if c.hooks.OnClose != nil {
		c.hooks.OnClose(reason)
	}
}

// arm replaces the current timer. Only one timer is ever armed: the initial
// close, the warning or the close after warning.
func (c *Controller) arm(d time.Duration, ev Event) {
	c.gen++
	gen := c.gen
	c.timer = c.scheduler.AfterFunc(d, func() {
		c.exec.Post(func() {
			if c.stopped || c.gen != gen {
				return
			}
			c.timer = nil
			c.fire(ev)
		})
	})
}

func (c *Controller) cancel() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
