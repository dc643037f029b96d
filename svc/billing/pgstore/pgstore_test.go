package pgstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaplan/citaplan/svc/billing"
)

func TestMarshalSubscriber(t *testing.T) {
	t.Parallel()

	raw, err := marshalSubscriber(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = marshalSubscriber(&billing.Subscriber{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	var got billing.Subscriber
	require.NoError(t, unmarshalSubscriber(raw, &got))
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "ana@example.com", got.Email)
}

func TestStartOfDay(t *testing.T) {
	t.Parallel()

	in := time.Date(2026, 4, 7, 15, 42, 9, 123, time.UTC)
	got := startOfDay(in)
	assert.Equal(t, time.Date(2026, 4, 7, 0, 0, 0, 0, time.UTC), got)
}

func TestNew_PanicsOnNilExecutor(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { New(nil) })
	assert.Panics(t, func() { NewModuleFlagStore(nil) })
}
