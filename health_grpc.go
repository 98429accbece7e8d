// health_grpc.go: Exposes plugin health through the standard gRPC health protocol
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthReporter mirrors health monitor statuses into a grpc.health.v1
// server. Each plugin is published as its own service name; the empty
// service name carries the aggregated kernel health.
//
// Example usage:
//
//	reporter := microkernel.NewGRPCHealthReporter(kernel.HealthMonitor())
//	server := grpc.NewServer()
//	reporter.Register(server)
type GRPCHealthReporter struct {
	server  *health.Server
	monitor *HealthMonitor
}

// NewGRPCHealthReporter creates a reporter and subscribes it to monitor.
// A nil monitor yields a reporter that only serves manual updates.
func NewGRPCHealthReporter(monitor *HealthMonitor) *GRPCHealthReporter {
	r := &GRPCHealthReporter{
		server:  health.NewServer(),
		monitor: monitor,
	}
	if monitor != nil {
		for name, report := range monitor.GetAllReports() {
			r.server.SetServingStatus(name, ServingStatus(report.Status))
		}
		r.server.SetServingStatus("", ServingStatus(monitor.GetOverallHealth().Status))
		monitor.OnStatusChange(r.onStatusChange)
	}
	return r
}

// ServingStatus maps a plugin health status to its gRPC serving status.
func ServingStatus(status HealthStatus) grpc_health_v1.HealthCheckResponse_ServingStatus {
	switch status {
	case StatusHealthy, StatusRecovering, StatusDegraded:
		return grpc_health_v1.HealthCheckResponse_SERVING
	case StatusUnhealthy, StatusFailed:
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	default:
		return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	}
}

// Server returns the underlying health server.
func (r *GRPCHealthReporter) Server() *health.Server {
	return r.server
}

// Register installs the health service on a gRPC server.
func (r *GRPCHealthReporter) Register(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, r.server)
}

// SetStatus publishes status for service directly.
func (r *GRPCHealthReporter) SetStatus(service string, status HealthStatus) {
	r.server.SetServingStatus(service, ServingStatus(status))
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (r *GRPCHealthReporter) Shutdown() {
	r.server.Shutdown()
}

func (r *GRPCHealthReporter) onStatusChange(change StatusChange) {
	r.server.SetServingStatus(change.Plugin, ServingStatus(change.Current))
	if r.monitor != nil {
		r.server.SetServingStatus("", ServingStatus(r.monitor.GetOverallHealth().Status))
	}
}
