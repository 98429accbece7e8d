// Package microkernel provides a plugin microkernel for Go applications.
// Plugins are registered with a kernel, ordered by their declared
// dependencies, initialized and started in that order and torn down in
// reverse. While running, the kernel supervises each plugin's health,
// restarts failing plugins with backoff and enforces per-plugin sandbox
// policies for filesystem, network, process and environment access.
//
// Key Features:
//   - Semantic version parsing, comparison and constraint matching (^, ~, ranges)
//   - Deterministic dependency resolution with cycle and conflict detection
//   - Kernel-owned service registry with per-plugin ownership
//   - Lifecycle hooks (kernel:ready, kernel:shutdown and plugin events)
//   - Health monitoring with thresholds, timeouts and automatic restart
//   - Sandbox policies with resource usage sampling and limit checks
//   - Pluggable plugin state storage (memory, Redis, MySQL)
//   - Configuration files in YAML, JSON, TOML, HCL or INI with hot reload
//   - Kernel events forwarded to RabbitMQ and health exposed over gRPC
//
// Basic Usage:
//
//	kernel, err := microkernel.NewKernel(microkernel.DefaultKernelConfig(), nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	_ = kernel.Use(&microkernel.Plugin{
//		Name:    "storage",
//		Version: "2.1.0",
//		Init: func(ctx context.Context, pctx *microkernel.PluginContext) error {
//			return pctx.RegisterService("storage.blobs", newBlobStore())
//		},
//	})
//	_ = kernel.Use(&microkernel.Plugin{
//		Name:         "auth",
//		Version:      "1.0.0",
//		Dependencies: map[string]string{"storage": "^2.0.0"},
//		Init: func(ctx context.Context, pctx *microkernel.PluginContext) error {
//			blobs, err := pctx.GetService("storage.blobs")
//			if err != nil {
//				return err
//			}
//			return pctx.RegisterService("auth.tokens", newTokenService(blobs))
//		},
//	})
//
//	if err := kernel.Bootstrap(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer kernel.Shutdown(context.Background())
//
//	tokens, err := microkernel.GetServiceAs[*TokenService](kernel, "auth.tokens")
//
// Sandboxing:
// Sandbox resource usage is sampled from process-wide counters, so CPU and
// heap figures are approximations when several plugins share a process.
// Access checks are advisory: plugins consult PluginContext.CheckAccess or
// RequireAccess before touching a resource. The sandbox is not a security
// boundary against hostile code.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package microkernel
