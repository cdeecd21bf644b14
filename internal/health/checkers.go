// ABOUTME: Checker implementations for the config store and API auth token components.
// ABOUTME: Maps dependency conditions to the fixed issue-code vocabulary.

package health

import "context"

// StoreProber is the slice of the configuration store the health poller
// needs: reachability and schema-bootstrap state.
type StoreProber interface {
	Ping(ctx context.Context) error
	Initialized(ctx context.Context) (bool, error)
}

// ConfigStoreChecker reports the configuration store component. An
// unreachable store is Error; a reachable store whose schema has not been
// bootstrapped yet is Initializing.
func ConfigStoreChecker(store StoreProber) Checker {
	return CheckerFunc(func(ctx context.Context) ComponentReport {
		if err := store.Ping(ctx); err != nil {
			return ComponentReport{
				Status: StatusError,
				Issues: []string{IssueConfigStoreUnavailable},
			}
		}

		initialized, err := store.Initialized(ctx)
		if err != nil {
			return ComponentReport{
				Status: StatusError,
				Issues: []string{IssueConfigStoreUnavailable},
			}
		}
		if !initialized {
			return ComponentReport{
				Status: StatusInitializing,
				Issues: []string{IssueConfigStoreInitializing},
			}
		}
		return ComponentReport{Status: StatusOK}
	})
}

// TokenAuditor is the slice of the auth manager the token checker needs.
// Audit returns token issue codes; its error means the secret store itself
// could not be consulted.
type TokenAuditor interface {
	Audit(ctx context.Context) ([]string, error)
}

// tokenIssueSeverity ranks token audit issue codes. Missing material and a
// missing driver make the component unusable; weakness and role drift
// degrade it.
var tokenIssueSeverity = map[string]Status{
	"token_missing":               StatusError,
	"token_secret_driver_missing": StatusError,
	"token_weak":                  StatusDegraded,
	"token_role_invalid":          StatusDegraded,
	"token_permissions_invalid":   StatusDegraded,
}

// TokenChecker reports the API auth token component from an audit. No token
// content ever reaches the report, only issue codes.
func TokenChecker(auditor TokenAuditor) Checker {
	return CheckerFunc(func(ctx context.Context) ComponentReport {
		issues, err := auditor.Audit(ctx)
		if err != nil {
			return ComponentReport{
				Status: StatusError,
				Issues: []string{IssueAPIAuthTokenUnavailable},
			}
		}
		if len(issues) == 0 {
			return ComponentReport{Status: StatusOK}
		}

		status := StatusDegraded
		for _, issue := range issues {
			if s, ok := tokenIssueSeverity[issue]; ok && severity(s) > severity(status) {
				status = s
			}
		}
		return ComponentReport{Status: status, Issues: issues}
	})
}
