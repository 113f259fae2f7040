package license

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

const MeterName = "nodelock-license"

// Metrics holds the OpenTelemetry instruments for the licensing core.
// Everything is recorded locally; the only export surface is the app
// shell's own /metrics endpoint.
type Metrics struct {
	VerifyAttempts metric.Int64Counter
	VerifyResults  metric.Int64Counter
	VerifyDuration metric.Float64Histogram

	IssueAttempts metric.Int64Counter
	IssueSuccess  metric.Int64Counter
	IssueFailures metric.Int64Counter
}

// InitializeMetrics creates the licensing instruments on the given meter.
func InitializeMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.VerifyAttempts, err = meter.Int64Counter(
		"license_verify_attempts_total",
		metric.WithDescription("Total number of license verification attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verify attempts counter: %w", err)
	}

	m.VerifyResults, err = meter.Int64Counter(
		"license_verify_results_total",
		metric.WithDescription("License verification outcomes by state"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verify results counter: %w", err)
	}

	m.VerifyDuration, err = meter.Float64Histogram(
		"license_verify_duration_seconds",
		metric.WithDescription("License verification duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verify duration histogram: %w", err)
	}

	m.IssueAttempts, err = meter.Int64Counter(
		"license_issue_attempts_total",
		metric.WithDescription("Total number of license issuance attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue attempts counter: %w", err)
	}

	m.IssueSuccess, err = meter.Int64Counter(
		"license_issue_success_total",
		metric.WithDescription("Total number of successfully issued licenses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue success counter: %w", err)
	}

	m.IssueFailures, err = meter.Int64Counter(
		"license_issue_failures_total",
		metric.WithDescription("Total number of failed license issuances"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue failures counter: %w", err)
	}

	return m, nil
}
