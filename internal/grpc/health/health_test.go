package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"

	"honeypot-lab/pkg/logger"
)

func statusOf(t *testing.T, s *Server, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_StartsServing(t *testing.T) {
	s := NewServer(nil, logger.NewNop())
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, statusOf(t, s, ""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, statusOf(t, s, ServiceName))
}

func TestServer_RefreshFollowsChecks(t *testing.T) {
	var failing error
	s := NewServer(map[string]Check{
		"redis": func(context.Context) error { return failing },
	}, logger.NewNop())

	failing = errors.New("down")
	assert.False(t, s.Refresh(context.Background()))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, statusOf(t, s, ServiceName))

	failing = nil
	assert.True(t, s.Refresh(context.Background()))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, statusOf(t, s, ""))
}
