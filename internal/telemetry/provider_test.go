package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "circle-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
