package tracing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"flight-deal-alerts/internal/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitWithEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{Endpoint: "localhost:4318", Insecure: true}, zerolog.Nop())
	require.NoError(t, err)
	// Nothing was recorded, so shutdown has nothing to flush.
	require.NoError(t, shutdown(context.Background()))
}
