// Package telemetry provides observability instrumentation for sundae.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), and metrics (Prometheus) into a unified system for
// monitoring and debugging deployment runs.
//
// # Architecture
//
// The telemetry system is built on three pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "sundae"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger embeds zerolog, so the event-builder API is available directly,
// plus field helpers for deploy concepts:
//
//	logger := tel.Logger.NewComponentLogger("pipeline")
//	logger = logger.WithRunID("run-123").WithEnvironment("prod")
//	logger.Info().Str("stage", "sync").Msg("Stage started")
//	logger.Error().Err(err).Msg("Stage failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into pipeline flow and performance:
//
//	ctx, span := tel.Tracer.StartDeploySpan(ctx, runID, environment)
//	defer span.End()
//
//	span.SetAttributes(
//	    telemetry.AttrStage.String("apply"),
//	    telemetry.AttrAddress.String("storage.site"),
//	)
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), none (testing)
//
// # Metrics
//
// Prometheus metrics track pipeline behavior:
//
//	tel.Metrics.RecordDeployStarted("prod")
//	tel.Metrics.RecordDeployCompleted("prod", "succeeded", duration)
//	tel.Metrics.RecordPlanStep("create", "dns_zone", "succeeded", duration)
//	tel.Metrics.RecordFileSynced("update")
//	tel.Metrics.RecordInvalidation("completed", wait)
//	tel.Metrics.RecordError("transient", "TIMEOUT")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Key Metrics
//
//   - sundae_deploys_started_total{environment}
//   - sundae_deploys_completed_total{environment,status}
//   - sundae_deploy_duration_seconds{environment,status}
//   - sundae_stage_duration_seconds{stage}
//   - sundae_plan_steps_executed_total{op,status}
//   - sundae_files_synced_total{action}
//   - sundae_bytes_uploaded_total
//   - sundae_invalidations_total{status}
//   - sundae_verification_probes_total{outcome}
//   - sundae_errors_by_class_total{class}
//   - sundae_active_deploys
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending traces:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// # Security Considerations
//
//   - Never log sensitive data (credentials, keys, tokens)
//   - Use secure connections (TLS) for trace exporters in production
//   - Limit metrics endpoint access via network policies
package telemetry
