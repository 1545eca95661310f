package keiro

import "time"

// TimeData is the logical time visible to systems during a pass.
type TimeData struct {
	// Elapsed is the total logical time since the world started.
	Elapsed time.Duration
	// Delta is the step covered by the current pass.
	Delta time.Duration
}

// RateManager decides how many times a group runs its children per world
// tick. ShouldGroupUpdate is called repeatedly until it returns false; each
// true result is one pass. Implementations may push a TimeData for the pass
// and must pop it on the following call.
type RateManager interface {
	ShouldGroupUpdate(ctx *SystemContext) bool
	Timestep() time.Duration
	SetTimestep(d time.Duration)
}

// FixedRateCatchUpManager runs a group at a fixed timestep. When the world
// has fallen behind it runs several passes in one tick to catch up, but never
// more than maxDelta worth of steps.
type FixedRateCatchUpManager struct {
	timestep        time.Duration
	maxDelta        time.Duration
	lastUpdate      time.Duration
	maxFinalElapsed time.Duration
	updates         int64
	didPushTime     bool
}

// NewFixedRateCatchUpManager returns a manager stepping by timestep. A zero
// maxDelta means no catch-up limit beyond the current world time.
func NewFixedRateCatchUpManager(timestep, maxDelta time.Duration) *FixedRateCatchUpManager {
	m := &FixedRateCatchUpManager{maxDelta: maxDelta}
	m.SetTimestep(timestep)
	return m
}

func (m *FixedRateCatchUpManager) Timestep() time.Duration { return m.timestep }

func (m *FixedRateCatchUpManager) SetTimestep(d time.Duration) {
	if d <= 0 {
		d = DefaultFixedTimestep
	}
	m.timestep = d
}

func (m *FixedRateCatchUpManager) ShouldGroupUpdate(ctx *SystemContext) bool {
	w := ctx.World()
	if m.didPushTime {
		w.PopTime()
	} else if m.maxDelta > 0 {
		m.maxFinalElapsed = m.lastUpdate + m.maxDelta
	}
	finalElapsed := w.Time().Elapsed
	if m.maxDelta > 0 && m.updates > 0 {
		finalElapsed = min(finalElapsed, m.maxFinalElapsed)
	}

	var next time.Duration
	if m.updates > 0 {
		next = m.lastUpdate + m.timestep
	}
	if next > finalElapsed {
		m.didPushTime = false
		return false
	}
	m.updates++
	m.lastUpdate = next
	w.PushTime(TimeData{Elapsed: next, Delta: m.timestep})
	m.didPushTime = true
	return true
}

// Updates returns how many passes the manager has granted so far.
func (m *FixedRateCatchUpManager) Updates() int64 { return m.updates }

// VariableRateManager runs a group at most once per interval, handing it the
// whole time accumulated since its previous pass.
type VariableRateManager struct {
	interval    time.Duration
	lastElapsed time.Duration
	started     bool
	didPushTime bool
}

// NewVariableRateManager returns a manager with the given minimum interval.
func NewVariableRateManager(interval time.Duration) *VariableRateManager {
	return &VariableRateManager{interval: interval}
}

func (m *VariableRateManager) Timestep() time.Duration { return m.interval }

func (m *VariableRateManager) SetTimestep(d time.Duration) { m.interval = d }

func (m *VariableRateManager) ShouldGroupUpdate(ctx *SystemContext) bool {
	w := ctx.World()
	if m.didPushTime {
		w.PopTime()
		m.didPushTime = false
		return false
	}
	now := w.Time().Elapsed
	if m.started && now-m.lastElapsed < m.interval {
		return false
	}
	delta := now - m.lastElapsed
	if !m.started {
		delta = w.Time().Delta
		m.started = true
	}
	m.lastElapsed = now
	w.PushTime(TimeData{Elapsed: now, Delta: delta})
	m.didPushTime = true
	return true
}
