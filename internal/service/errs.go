package service

import "fmt"

// ConfigError means the tenant has no usable integration credentials for the
// operation. Not retryable; surfaced as HTTP 400.
type ConfigError struct {
	Provider string
	Detail   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s integration not configured: %s", e.Provider, e.Detail)
}

// AuthError means the caller may not act on the target resource
// (cross-tenant access, bad webhook token). Surfaced as HTTP 403.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	return e.Detail
}

// ValidationError means the request payload is malformed (unparseable phone,
// missing field). Surfaced as HTTP 400.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Detail)
}

// ProviderError wraps a failed upstream call. Retryable marks transport
// failures and 5xx/429 responses; 4xx responses are terminal.
type ProviderError struct {
	Provider  string
	Status    int
	Detail    string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s returned %d: %s", e.Provider, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s call failed: %s", e.Provider, e.Detail)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConflictError means the operation lost a uniqueness race or would
// duplicate existing state. Surfaced as HTTP 409.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return e.Detail }

// TransientError marks a failure the caller should retry later
// (expired OAuth token mid-run, lock contention).
type TransientError struct {
	Detail string
	Err    error
}

func (e *TransientError) Error() string { return e.Detail }

func (e *TransientError) Unwrap() error { return e.Err }
