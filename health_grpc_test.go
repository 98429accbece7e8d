// health_grpc_test.go: Tests for the gRPC health protocol bridge
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func servingStatus(t *testing.T, r *GRPCHealthReporter, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServingStatus(t *testing.T) {
	tests := []struct {
		status HealthStatus
		want   grpc_health_v1.HealthCheckResponse_ServingStatus
	}{
		{StatusHealthy, grpc_health_v1.HealthCheckResponse_SERVING},
		{StatusDegraded, grpc_health_v1.HealthCheckResponse_SERVING},
		{StatusRecovering, grpc_health_v1.HealthCheckResponse_SERVING},
		{StatusUnhealthy, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
		{StatusFailed, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
		{StatusUnknown, grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ServingStatus(tt.status))
		})
	}
}

func TestGRPCHealthReporter_FollowsMonitor(t *testing.T) {
	hm := NewHealthMonitor(testHealthConfig(), nil)
	t.Cleanup(hm.Shutdown)

	auth := newScriptedCheck(true, false, false, false)
	hm.Register("auth", auth.check, nil)
	hm.Register("cache", nil, nil)

	r := NewGRPCHealthReporter(hm)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN, servingStatus(t, r, "auth"))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN, servingStatus(t, r, ""))

	checkStatuses(t, hm, "auth", 1)
	checkStatuses(t, hm, "cache", 1)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, servingStatus(t, r, "auth"))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, servingStatus(t, r, ""))

	statuses := checkStatuses(t, hm, "auth", 3)
	require.Equal(t, []HealthStatus{StatusDegraded, StatusDegraded, StatusUnhealthy}, statuses)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, servingStatus(t, r, "auth"))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, servingStatus(t, r, "cache"))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, servingStatus(t, r, ""))
}

func TestGRPCHealthReporter_Manual(t *testing.T) {
	r := NewGRPCHealthReporter(nil)

	_, err := r.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: "gateway"})
	assert.Error(t, err, "unknown services are reported as not found")

	r.SetStatus("gateway", StatusHealthy)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, servingStatus(t, r, "gateway"))

	r.Shutdown()
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, servingStatus(t, r, "gateway"))

	r.SetStatus("gateway", StatusHealthy)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, servingStatus(t, r, "gateway"),
		"updates after shutdown are ignored")
}
