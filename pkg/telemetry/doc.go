// Package telemetry provides logging, tracing and metrics for froyo-keystone.
//
// Logging uses zerolog. Every subsystem receives a zerolog.Logger derived
// from the process logger with a component field:
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.NewComponentLogger("inventory").Zerolog()
//
// Tracing uses OpenTelemetry with an OTLP gRPC or stdout exporter. A run
// produces one run.execute span, a resource.converge span per resource and
// a cli.<noun>.<verb> span per openstack client call.
//
// Metrics are Prometheus collectors registered on a private registry:
//
//	froyo_keystone_runs_completed_total{status,dry_run}
//	froyo_keystone_resource_results_total{kind,operation,state}
//	froyo_keystone_cli_calls_total{noun,verb,outcome}
//	froyo_keystone_cli_call_duration_seconds{noun,verb}
//	froyo_keystone_errors_by_class_total{class}
//	froyo_keystone_policy_violations_total{policy,severity}
//
// A nil *Metrics or *Tracer is valid and records nothing.
package telemetry
