package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalSet(t *testing.T) {
	var s SignalSet
	s.Add(SignalTerminate)
	s.Add(SignalUser1)
	s.Add(Signal(40))
	assert.True(t, s.Has(SignalTerminate))
	assert.False(t, s.Has(SignalKill))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, SignalUser1, s.lowest())

	s.Remove(SignalUser1)
	assert.Equal(t, SignalTerminate, s.lowest())

	var other SignalSet
	other.Add(SignalHangup)
	assert.Equal(t, 2, s.Union(other).Len())
	assert.Equal(t, Signal(0), SignalSet(0).lowest())
}

func TestSignalString(t *testing.T) {
	assert.Equal(t, "SIGKILL", SignalKill.String())
	assert.Equal(t, "SIGCHLD", SignalChild.String())
	assert.Equal(t, "SIG31", Signal(31).String())
	assert.Equal(t, 137, SignalKill.ExitCode())
}

func TestDefaultSignalTerminatesSleeper(t *testing.T) {
	m := newTestManager(t)
	p, err := m.Create("victim", sleepForever(m), nil)
	require.NoError(t, err)
	tickUntil(t, m, func() bool { return p.State() == StateSleeping })

	require.NoError(t, m.Signal(p.PID(), SignalTerminate))
	assert.Equal(t, StateReady, p.State())

	_, code, err := m.Wait(p.PID())
	require.NoError(t, err)
	assert.Equal(t, SignalTerminate.ExitCode(), code)
}

func TestCaughtSignal(t *testing.T) {
	m := newTestManager(t)
	var caught []Signal
	p, err := m.Create("catcher", func(any) {
		_, err := m.SetAction(SignalUser1, Catch(func(sig Signal) {
			caught = append(caught, sig)
		}))
		if err != nil {
			return
		}
		for len(caught) == 0 {
			m.Sleep("pause")
		}
	}, nil)
	require.NoError(t, err)
	tickUntil(t, m, func() bool { return p.State() == StateSleeping })

	require.NoError(t, m.Signal(p.PID(), SignalUser1))
	_, code, err := m.Wait(p.PID())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []Signal{SignalUser1}, caught)
}

func TestIgnoredSignalDoesNotWake(t *testing.T) {
	m := newTestManager(t)
	p, err := m.Create("sleeper", sleepForever(m), nil)
	require.NoError(t, err)
	tickUntil(t, m, func() bool { return p.State() == StateSleeping })

	require.NoError(t, m.Signal(p.PID(), SignalChild))
	require.NoError(t, m.Signal(p.PID(), SignalContinue))
	assert.Equal(t, StateSleeping, p.State())
	pending, err := m.PendingSignals(p.PID())
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Len())

	require.NoError(t, m.Kill(p.PID()))
	_, _, err = m.Wait(p.PID())
	require.NoError(t, err)
}

func TestKill(t *testing.T) {
	m := newTestManager(t)
	q := m.NewWaitQueue()
	live := m.Heap().Live()

	sleeper, err := m.Create("sleeper", func(any) { q.Sleep() }, nil)
	require.NoError(t, err)
	tickUntil(t, m, func() bool { return q.Count() == 1 })
	ready, err := m.Create("ready", func(any) {}, nil)
	require.NoError(t, err)

	sleeperPID := sleeper.PID()
	require.NoError(t, m.Kill(sleeperPID))
	assert.Equal(t, StateZombie, sleeper.State())
	assert.True(t, q.Empty())

	require.NoError(t, m.Kill(ready.PID()))
	assert.Equal(t, StateZombie, ready.State())
	assert.Empty(t, m.ReadyPIDs())

	for i := 0; i < 2; i++ {
		_, code, err := m.Wait(-1)
		require.NoError(t, err)
		assert.Equal(t, SignalKill.ExitCode(), code)
	}
	assert.Equal(t, live, m.Heap().Live())

	assert.ErrorIs(t, m.Kill(sleeperPID), ErrProcessNotFound)
	assert.ErrorIs(t, m.Kill(0), ErrInvalidPID)
}

func TestSelfKill(t *testing.T) {
	m := newTestManager(t)
	after := false
	p, err := m.Create("suicide", func(any) {
		_ = m.Kill(m.Current().PID())
		after = true
	}, nil)
	require.NoError(t, err)

	_, code, err := m.Wait(p.PID())
	require.NoError(t, err)
	assert.Equal(t, SignalKill.ExitCode(), code)
	assert.False(t, after)
}

func TestBlockedSignalStaysPending(t *testing.T) {
	m := newTestManager(t)
	count := 0
	_, err := m.SetAction(SignalUser2, Catch(func(Signal) { count++ }))
	require.NoError(t, err)

	var mask SignalSet
	mask.Add(SignalUser2)
	mask.Add(SignalKill)
	m.SetBlocked(mask)

	require.NoError(t, m.Signal(0, SignalUser2))
	assert.Equal(t, 0, count)
	pending, err := m.PendingSignals(0)
	require.NoError(t, err)
	assert.True(t, pending.Has(SignalUser2))

	prev := m.SetBlocked(0)
	assert.True(t, prev.Has(SignalUser2))
	assert.False(t, prev.Has(SignalKill))
	assert.Equal(t, 1, count)
}

func TestSetActionErrors(t *testing.T) {
	m := newTestManager(t)
	_, err := m.SetAction(SignalKill, Ignore)
	assert.ErrorIs(t, err, ErrUncatchable)
	_, err = m.SetAction(SignalStop, Catch(func(Signal) {}))
	assert.ErrorIs(t, err, ErrUncatchable)
	_, err = m.SetAction(Signal(0), Ignore)
	assert.ErrorIs(t, err, ErrInvalidSignal)
	_, err = m.SetAction(SignalUser1, Action{Kind: ActionCatch})
	assert.ErrorIs(t, err, ErrInvalidSignal)

	prev, err := m.SetAction(SignalHangup, Ignore)
	require.NoError(t, err)
	assert.Equal(t, ActionDefault, prev.Kind)

	assert.ErrorIs(t, m.Signal(0, Signal(NumSignals)), ErrInvalidSignal)
	assert.ErrorIs(t, m.Signal(77, SignalHangup), ErrProcessNotFound)
}

func TestInitSurvivesTerminatingSignal(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Signal(0, SignalTerminate))
	assert.Equal(t, StateRunning, m.Current().State())
}

func TestParentCatchesChildSignal(t *testing.T) {
	m := newTestManager(t)
	notified := 0
	_, err := m.SetAction(SignalChild, Catch(func(Signal) { notified++ }))
	require.NoError(t, err)

	p, err := m.Create("child", func(any) {}, nil)
	require.NoError(t, err)
	_, _, err = m.Wait(p.PID())
	require.NoError(t, err)
	assert.Equal(t, 1, notified)
}

func TestSignalCutsSleepTicksShort(t *testing.T) {
	m := newTestManager(t)
	woke := false
	p, err := m.Create("napper", func(any) {
		m.SleepTicks(1000)
		woke = true
	}, nil)
	require.NoError(t, err)
	pid := p.PID()
	tickUntil(t, m, func() bool {
		return p.State() == StateSleeping && p.SleepReason() == sleepReasonTicks
	})
	start := m.Ticks()

	require.NoError(t, m.Signal(pid, SignalTerminate))
	assert.Equal(t, StateReady, p.State())

	_, code, err := m.Wait(pid)
	require.NoError(t, err)
	assert.Equal(t, SignalTerminate.ExitCode(), code)
	assert.False(t, woke)
	assert.Less(t, m.Ticks()-start, uint64(1000))
}

func TestSignalLeavesUninterruptibleSleeperQueued(t *testing.T) {
	m := newTestManager(t)
	q := m.NewWaitQueue()
	q.SetUninterruptible(true)

	a, err := m.Create("a", func(any) { q.Sleep() }, nil)
	require.NoError(t, err)
	b, err := m.Create("b", func(any) { q.Sleep() }, nil)
	require.NoError(t, err)
	aPID, bPID := a.PID(), b.PID()
	tickUntil(t, m, func() bool { return q.Count() == 2 })

	require.NoError(t, m.Signal(aPID, SignalTerminate))
	for i := 0; i < 10; i++ {
		m.Tick()
	}
	assert.Equal(t, StateSleeping, a.State())
	assert.Equal(t, []int{aPID, bPID}, q.PIDs())
	pending, err := m.PendingSignals(aPID)
	require.NoError(t, err)
	assert.True(t, pending.Has(SignalTerminate))

	// The signal is taken once the sleep ends normally.
	require.True(t, q.WakeOne())
	_, code, err := m.Wait(aPID)
	require.NoError(t, err)
	assert.Equal(t, SignalTerminate.ExitCode(), code)

	// Kill still removes an uninterruptible sleeper.
	require.NoError(t, m.Kill(bPID))
	assert.True(t, q.Empty())
	_, code, err = m.Wait(bPID)
	require.NoError(t, err)
	assert.Equal(t, SignalKill.ExitCode(), code)
}
