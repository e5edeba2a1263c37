package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stevemurr/stac-server/telemetry"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), "stac-server", "test", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetupWithEndpoint(t *testing.T) {
	// Non-routable; nothing is exported before shutdown.
	shutdown, err := telemetry.Setup(context.Background(), "stac-server", "test", "http://192.0.2.1:4318")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
