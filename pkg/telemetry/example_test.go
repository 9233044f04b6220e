package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/opensundae/opensundae/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "sundae"
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Start metrics server (non-blocking)
	if err := tel.StartMetricsServer(); err != nil {
		panic(err)
	}

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info().Msg("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific logger
	logger := tel.Logger.NewComponentLogger("pipeline")

	// Add deploy context fields
	logger = logger.WithRunID("run-123").WithEnvironment("staging")

	logger.Debug().Msg("Resolving environment configuration")
	logger.Info().Str("stage", "plan").Msg("Stage started")
	logger.Warn().Str("address", "cdn.site").Msg("Adopted pre-existing physical object")

	err := fmt.Errorf("network timeout")
	logger.Error().Err(err).Msg("Failed to reach storage backend")

	// Output varies, no output specified
}

// Example_distributedTracing demonstrates distributed tracing usage.
func Example_distributedTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a deploy span
	ctx, span := tel.Tracer.StartDeploySpan(ctx, "run-789", "prod")
	defer span.End()

	span.AddEvent("plan.validated")

	// Nested stage span
	_, stageSpan := tel.Tracer.StartStageSpan(ctx, "run-789", "sync")
	defer stageSpan.End()

	stageSpan.SetAttributes(
		telemetry.AttrAddress.String("storage.site"),
		attribute.Int("files", 42),
	)

	time.Sleep(10 * time.Millisecond)

	telemetry.RecordSuccess(stageSpan)

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Record a deploy run
	tel.Metrics.RecordDeployStarted("prod")

	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	duration := time.Since(start)

	tel.Metrics.RecordDeployCompleted("prod", "succeeded", duration)

	// Record stage and plan step metrics
	tel.Metrics.RecordStage("apply", 25*time.Millisecond, false)
	tel.Metrics.RecordPlanStep("create", "dns_zone", "succeeded", 25*time.Millisecond)

	// Record content sync metrics
	tel.Metrics.RecordFileSynced("update")
	tel.Metrics.RecordBytesUploaded(2048)
	tel.Metrics.RecordSync("succeeded", 15*time.Millisecond)

	// Record invalidation and error metrics
	tel.Metrics.RecordInvalidation("completed", 3*time.Second)
	tel.Metrics.RecordError("transient", "TIMEOUT")

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// Example_deployInstrumentation demonstrates instrumenting a complete deploy run.
func Example_deployInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	runID := "run-123"
	timer := telemetry.NewTimer()
	ctx = telemetry.WithDeployContext(ctx, runID, "staging")

	// Execute the run (simulated)
	logger := telemetry.FromContext(ctx)
	logger.Info().Msg("Executing pipeline stages")
	time.Sleep(10 * time.Millisecond)

	telemetry.EndDeployContext(ctx, "staging", "succeeded", timer, nil)

	fmt.Println("Deploy instrumentation complete")
	// Output: Deploy instrumentation complete
}

// Example_backendInstrumentation demonstrates instrumenting backend calls.
func Example_backendInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	err := telemetry.RecordBackendOperation(ctx, "storage", "put", func(ctx context.Context) error {
		// Simulate an upload
		time.Sleep(15 * time.Millisecond)
		return nil
	})

	if err == nil {
		fmt.Println("Backend operation completed successfully")
	}

	// Output: Backend operation completed successfully
}

// Example_instrumentedOperation demonstrates using the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ic := telemetry.StartOperation(ctx, "environments.validate",
		attribute.String("registry.path", "environments.yaml"),
	)
	defer ic.End(nil)

	ic.Logger.Info().Msg("Validating environment registry")

	time.Sleep(5 * time.Millisecond)

	ic.Logger.Debug().Msg("Registry validation complete")

	fmt.Println("Operation instrumentation complete")
	// Output: Operation instrumentation complete
}

// Example_ciConfiguration demonstrates a CI-oriented configuration.
func Example_ciConfiguration() {
	cfg := telemetry.CIConfig()

	cfg.ServiceName = "sundae"
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "ci"

	// Export traces to a collector when one is reachable
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.Insecure = false

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("CI configuration validated")
	// Output: CI configuration validated
}

// Example_errorRecording demonstrates error recording with classification.
func Example_errorRecording() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ctx, span := tel.Tracer.Start(ctx, "cdn.invalidate")
	defer span.End()

	err := fmt.Errorf("connection timeout")

	if err != nil {
		telemetry.RecordError(span, err)
		tel.Metrics.RecordError("transient", "TIMEOUT")

		logger := telemetry.FromContext(ctx)
		logger.Error().Err(err).Msg("Invalidation request failed")
	}

	fmt.Println("Error recording complete")
	// Output: Error recording complete
}

// Example_multipleComponents demonstrates telemetry in a multi-component system.
func Example_multipleComponents() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific loggers
	pipelineLogger := tel.Logger.NewComponentLogger("pipeline")
	reconLogger := tel.Logger.NewComponentLogger("recon")
	contentLogger := tel.Logger.NewComponentLogger("content")

	pipelineLogger.Info().Msg("Pipeline initialized")
	reconLogger.Info().Msg("Resolving bindings")
	contentLogger.Info().Msg("Scanning content tree")

	fmt.Println("Multi-component logging complete")
	// Output: Multi-component logging complete
}
