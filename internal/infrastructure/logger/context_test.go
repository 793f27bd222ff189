package logger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pos/backend/internal/domain/shared"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestFromContext_ReturnsAttachedLogger(t *testing.T) {
	log, logs := observedLogger()
	ctx := WithContext(context.Background(), log)

	FromContext(ctx).Info("attached")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "attached", logs.All()[0].Message)
}

func TestFromContext_NopWithoutLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		FromContext(context.Background()).Info("dropped")
	})
}

func TestWithRequestID_EnrichesEntries(t *testing.T) {
	log, logs := observedLogger()

	ctx, enriched := WithRequestID(context.Background(), log, "req-42")
	enriched.Info("handled")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
	assert.Equal(t, "req-42", GetRequestID(ctx))
}

func TestContextLogger_AttachesAccessIdentity(t *testing.T) {
	log, logs := observedLogger()

	tenantID := uuid.New()
	storeID := uuid.New()
	ctx := shared.WithAccess(context.Background(), shared.AccessContext{
		TenantID: tenantID,
		StoreID:  &storeID,
		ClientID: "register-1",
	})

	WithLogger(ctx, log).Info("pull served")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, tenantID.String(), fields["tenant_id"])
	assert.Equal(t, storeID.String(), fields["store_id"])
	assert.Equal(t, "register-1", fields["client_id"])
	assert.NotContains(t, fields, "user_id")
}

func TestContextLogger_PlainContextAddsNothing(t *testing.T) {
	log, logs := observedLogger()

	WithLogger(context.Background(), log).Info("sweep done")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestContextLogger_With(t *testing.T) {
	log, logs := observedLogger()

	WithLogger(context.Background(), log).
		With(zap.String("table", "stores")).
		Info("recorded")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "stores", logs.All()[0].ContextMap()["table"])
}

func TestL_UsesContextLogger(t *testing.T) {
	log, logs := observedLogger()
	ctx := WithContext(context.Background(), log)

	L(ctx).Warn("cursor behind floor")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "cursor behind floor", logs.All()[0].Message)
}
