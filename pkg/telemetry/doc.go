// Package telemetry provides observability instrumentation for reeve.
//
// It combines structured logging (zerolog), metrics (Prometheus) and
// optional trace export (OpenTelemetry) behind a small configuration
// surface shared by all commands.
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	logger, err := telemetry.NewLogger(cfg.Logging)
//	metrics, err := telemetry.NewMetrics(cfg.Metrics)
//	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
//	defer tracer.Shutdown(ctx)
//
// Component loggers carry run and host context:
//
//	log := logger.NewComponentLogger("runner").WithRunID(runID).WithHost(host)
//	log.Info("task changed")
//
// Key metrics exposed:
//
//   - reeve_runs_started_total{mode}
//   - reeve_runs_completed_total{status}
//   - reeve_run_duration_seconds{status}
//   - reeve_tasks_executed_total{module,status}
//   - reeve_task_duration_seconds{module}
//   - reeve_connect_attempts_total{result}
//   - reeve_transport_retries_total{op}
//   - reeve_errors_by_class_total{class}
//   - reeve_active_hosts
//
// Tracing is disabled by default; when enabled the "stdout" exporter
// pretty-prints spans and "none" generates spans without exporting them.
package telemetry
