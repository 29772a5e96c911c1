package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errHubDown = errors.New("hub listing unavailable")

// flakyHub fails the first n fetches, then recovers.
type flakyHub struct {
	failures int
	calls    int
}

func (h *flakyHub) fetch() (interface{}, error) {
	h.calls++
	if h.calls <= h.failures {
		return nil, errHubDown
	}
	return "listing", nil
}

func tripAfter(n uint32) Settings {
	return Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= n
		},
	}
}

func TestBreaker(t *testing.T) {
	t.Run("HealthyUpstreamStaysClosed", func(t *testing.T) {
		breaker := New("hub", tripAfter(3))
		hub := &flakyHub{}

		for i := 0; i < 5; i++ {
			result, err := breaker.Execute(hub.fetch)
			require.NoError(t, err)
			assert.Equal(t, "listing", result)
		}
		assert.Equal(t, StateClosed, breaker.State())

		counts := breaker.Counts()
		assert.Equal(t, uint32(5), counts.TotalSuccesses)
		assert.Equal(t, uint32(0), counts.TotalFailures)
	})

	t.Run("RecoveryBeforeThresholdResetsStreak", func(t *testing.T) {
		breaker := New("hub", tripAfter(3))
		hub := &flakyHub{failures: 2}

		for i := 0; i < 3; i++ {
			breaker.Execute(hub.fetch)
		}

		assert.Equal(t, StateClosed, breaker.State())
		counts := breaker.Counts()
		assert.Equal(t, uint32(2), counts.TotalFailures)
		assert.Equal(t, uint32(0), counts.ConsecutiveFailures)
	})

	t.Run("DeadUpstreamFailsFast", func(t *testing.T) {
		breaker := New("hub", tripAfter(2))
		hub := &flakyHub{failures: 100}

		for i := 0; i < 2; i++ {
			_, err := breaker.Execute(hub.fetch)
			assert.ErrorIs(t, err, errHubDown)
		}
		require.Equal(t, StateOpen, breaker.State())

		// The open breaker never reaches the upstream.
		_, err := breaker.Execute(hub.fetch)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, 2, hub.calls)
	})

	t.Run("ProbesCloseAfterCoolDown", func(t *testing.T) {
		settings := tripAfter(2)
		settings.MaxRequests = 2
		settings.Timeout = 20 * time.Millisecond
		breaker := New("hub", settings)
		hub := &flakyHub{failures: 2}

		for i := 0; i < 2; i++ {
			breaker.Execute(hub.fetch)
		}
		require.Equal(t, StateOpen, breaker.State())

		time.Sleep(30 * time.Millisecond)
		require.Equal(t, StateHalfOpen, breaker.State())

		// Two clean probes restore full traffic.
		for i := 0; i < 2; i++ {
			_, err := breaker.Execute(hub.fetch)
			require.NoError(t, err)
		}
		assert.Equal(t, StateClosed, breaker.State())
	})

	t.Run("FailedProbeReopens", func(t *testing.T) {
		settings := tripAfter(2)
		settings.Timeout = 20 * time.Millisecond
		breaker := New("hub", settings)
		hub := &flakyHub{failures: 3}

		for i := 0; i < 2; i++ {
			breaker.Execute(hub.fetch)
		}
		require.Equal(t, StateOpen, breaker.State())

		time.Sleep(30 * time.Millisecond)
		require.Equal(t, StateHalfOpen, breaker.State())

		_, err := breaker.Execute(hub.fetch)
		assert.ErrorIs(t, err, errHubDown)
		assert.Equal(t, StateOpen, breaker.State())
	})

	t.Run("HalfOpenCapsConcurrentProbes", func(t *testing.T) {
		settings := tripAfter(1)
		settings.Timeout = 10 * time.Millisecond
		breaker := New("hub", settings)

		breaker.Execute(func() (interface{}, error) { return nil, errHubDown })
		require.Equal(t, StateOpen, breaker.State())

		time.Sleep(20 * time.Millisecond)
		require.Equal(t, StateHalfOpen, breaker.State())

		// A probe that has not settled holds the only probe slot.
		release := make(chan struct{})
		started := make(chan struct{})
		go breaker.Execute(func() (interface{}, error) {
			close(started)
			<-release
			return "listing", nil
		})
		<-started

		_, err := breaker.Execute(func() (interface{}, error) { return "listing", nil })
		assert.ErrorIs(t, err, ErrTooManyRequests)
		close(release)
	})

	t.Run("TransitionsAreObservable", func(t *testing.T) {
		var transitions []string
		settings := tripAfter(2)
		settings.Timeout = 10 * time.Millisecond
		settings.OnStateChange = func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}
		breaker := New("hub", settings)
		hub := &flakyHub{failures: 2}

		for i := 0; i < 2; i++ {
			breaker.Execute(hub.fetch)
		}
		time.Sleep(20 * time.Millisecond)
		require.Equal(t, StateHalfOpen, breaker.State())

		assert.Equal(t, []string{"closed->open", "open->half-open"}, transitions)
	})
}
