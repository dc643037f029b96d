package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/citaplan/citaplan/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns empty attr", func(t *testing.T) {
		t.Parallel()
		attr := logger.Error(nil)
		assert.Equal(t, slog.Attr{}, attr)
	})

	t.Run("non-nil error uses error key", func(t *testing.T) {
		t.Parallel()
		err := errors.New("boom")
		attr := logger.Error(err)
		assert.Equal(t, "error", attr.Key)
	})
}

func TestErrors(t *testing.T) {
	t.Parallel()

	t.Run("all nil returns empty attr", func(t *testing.T) {
		t.Parallel()
		attr := logger.Errors(nil, nil)
		assert.Equal(t, slog.Attr{}, attr)
	})

	t.Run("skips nil errors", func(t *testing.T) {
		t.Parallel()
		attr := logger.Errors(nil, errors.New("one"), nil, errors.New("two"))
		assert.Equal(t, "errors", attr.Key)
		assert.Len(t, attr.Value.Group(), 2)
	})
}

func TestIdentifierAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.TenantID(nil))
	assert.Equal(t, "tenant_id", logger.TenantID("t1").Key)
	assert.Equal(t, "subscription_id", logger.SubscriptionID("s1").Key)
	assert.Equal(t, "plan_id", logger.PlanID("p1").Key)
	assert.Equal(t, "gateway", logger.Gateway("paddle").Key)
	assert.Equal(t, "request_id", logger.RequestID("r1").Key)
	assert.Equal(t, "event_type", logger.EventType("payment.failed").Key)
	assert.Equal(t, "component", logger.Component("dunning").Key)
}
