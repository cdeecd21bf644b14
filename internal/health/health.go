// ABOUTME: Health status model: component reports, issue codes and severity folding.
// ABOUTME: Overall status is the worst component status; Initializing folds as Degraded.

package health

import "time"

// Status is a component or overall health status.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusOK           Status = "ok"
	StatusDegraded     Status = "degraded"
	StatusError        Status = "error"
)

// severity orders statuses for the overall fold. Initializing carries
// Degraded severity: a starting component never yields an overall OK.
func severity(s Status) int {
	switch s {
	case StatusOK:
		return 0
	case StatusInitializing, StatusDegraded:
		return 1
	case StatusError:
		return 2
	default:
		// Unknown or absent counts as Error.
		return 2
	}
}

// Component keys in the report. The set is fixed.
const (
	ComponentConfigStore  = "configStore"
	ComponentAPIAuthToken = "apiAuthToken"
)

// Issue codes for the config store component. Token issue codes live in the
// auth package next to the audit that produces them.
const (
	IssueConfigStoreUnavailable  = "config_store_unavailable"
	IssueConfigStoreInitializing = "config_store_initializing"
	IssueAPIAuthTokenUnavailable = "api_auth_token_unavailable"
	IssueCheckTimeout            = "check_timeout"
)

// ComponentReport is one component's health at poll time. Reports are
// built fresh per poll and never mutated afterwards.
type ComponentReport struct {
	Status   Status         `json:"status"`
	Issues   []string       `json:"issues,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Report is the aggregated health of the gateway's dependencies.
type Report struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	UptimeMs   int64                      `json:"uptime_ms"`
	Components map[string]ComponentReport `json:"components"`
}

// fold computes the overall status from component reports. An expected
// component with no report counts as Error.
func fold(components map[string]ComponentReport, expected []string) Status {
	worst := 0
	for _, key := range expected {
		rep, ok := components[key]
		if !ok {
			worst = 2
			break
		}
		if s := severity(rep.Status); s > worst {
			worst = s
		}
	}
	switch worst {
	case 0:
		return StatusOK
	case 1:
		return StatusDegraded
	default:
		return StatusError
	}
}

// nowISO formats t the way the report's timestamp field expects.
func nowISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
