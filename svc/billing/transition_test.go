package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaplan/citaplan/svc/billing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := map[billing.Status][]billing.Status{
		billing.StatusTrial:          {billing.StatusActive, billing.StatusCancelled, billing.StatusPastDue, billing.StatusPendingPayment},
		billing.StatusPendingPayment: {billing.StatusActive, billing.StatusCancelled, billing.StatusPastDue},
		billing.StatusActive:         {billing.StatusPaused, billing.StatusCancelled, billing.StatusPastDue, billing.StatusSuspended},
		billing.StatusPaused:         {billing.StatusActive, billing.StatusCancelled},
		billing.StatusPastDue:        {billing.StatusActive, billing.StatusSuspended},
		billing.StatusGracePeriod:    {billing.StatusActive, billing.StatusSuspended},
		billing.StatusSuspended:      {billing.StatusActive, billing.StatusCancelled},
		billing.StatusCancelled:      {},
	}

	all := []billing.Status{
		billing.StatusTrial,
		billing.StatusPendingPayment,
		billing.StatusActive,
		billing.StatusPaused,
		billing.StatusPastDue,
		billing.StatusGracePeriod,
		billing.StatusSuspended,
		billing.StatusCancelled,
	}

	for from, targets := range allowed {
		set := make(map[billing.Status]bool, len(targets))
		for _, to := range targets {
			set[to] = true
		}
		for _, to := range all {
			want := set[to] || from == to
			assert.Equal(t, want, billing.CanTransition(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestCanTransition_SelfIsAlwaysAllowed(t *testing.T) {
	t.Parallel()

	for _, st := range []billing.Status{
		billing.StatusTrial,
		billing.StatusActive,
		billing.StatusCancelled,
	} {
		assert.True(t, billing.CanTransition(st, st), "self-transition for %s", st)
	}
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	t.Run("valid transition", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, billing.ValidateTransition(billing.StatusTrial, billing.StatusActive))
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		t.Parallel()
		err := billing.ValidateTransition(billing.StatusCancelled, billing.StatusActive)
		require.Error(t, err)
		assert.True(t, billing.IsInvalidTransition(err))

		var it *billing.InvalidTransitionError
		require.ErrorAs(t, err, &it)
		assert.Equal(t, billing.StatusCancelled, it.From)
		assert.Equal(t, billing.StatusActive, it.To)
	})

	t.Run("grace period unreachable from active", func(t *testing.T) {
		t.Parallel()
		err := billing.ValidateTransition(billing.StatusActive, billing.StatusGracePeriod)
		require.Error(t, err)
		assert.True(t, billing.IsInvalidTransition(err))
	})

	t.Run("error names both states", func(t *testing.T) {
		t.Parallel()
		err := billing.ValidateTransition(billing.StatusPaused, billing.StatusPastDue)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pausada")
		assert.Contains(t, err.Error(), "vencida")
	})
}

func TestAllowedTransitions(t *testing.T) {
	t.Parallel()

	assert.Empty(t, billing.AllowedTransitions(billing.StatusCancelled))
	assert.ElementsMatch(t,
		[]billing.Status{billing.StatusActive, billing.StatusCancelled},
		billing.AllowedTransitions(billing.StatusPaused))
}
