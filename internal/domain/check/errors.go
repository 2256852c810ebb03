package check

import (
	"fmt"
	"strings"
)

// ConfigError reports a monitor whose auth settings are incomplete.
type ConfigError struct {
	Variant string
	Field   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s auth: missing %s", e.Variant, e.Field)
}

// AuthError reports a secondary auth request that failed or returned no
// usable credential.
type AuthError struct {
	Variant string
	URL     string
	Status  int
	Err     error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString(e.Variant)
	b.WriteString(" auth")
	if e.URL != "" {
		b.WriteString(" against ")
		b.WriteString(e.URL)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError is a request that never produced an HTTP response.
type TransportError struct {
	Code    string
	Syscall string
	Address string
	Host    string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	parts := make([]string, 0, 3)
	if e.Syscall != "" {
		parts = append(parts, e.Syscall)
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	switch {
	case e.Address != "":
		parts = append(parts, e.Address)
	case e.Host != "":
		parts = append(parts, e.Host)
	}
	if len(parts) == 0 && e.Err != nil {
		return e.Err.Error()
	}
	return strings.Join(parts, " ")
}

func (e *TransportError) Unwrap() error { return e.Err }

// Lines renders the error as diagnostic lines for a stored outcome.
func (e *TransportError) Lines() []string {
	var out []string
	if e.Code != "" {
		out = append(out, "Error code: "+e.Code)
	}
	if e.Syscall != "" {
		out = append(out, "Syscall: "+e.Syscall)
	}
	if e.Address != "" {
		out = append(out, "Address: "+e.Address)
	}
	if e.Host != "" {
		out = append(out, "Host: "+e.Host)
	}
	if e.Timeout {
		out = append(out, "Request timed out")
	}
	if e.Err != nil {
		out = append(out, "Cause: "+e.Err.Error())
	}
	return out
}

// ValidationError is a rule that could not be evaluated, such as a
// malformed custom check expression.
type ValidationError struct {
	Rule string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Rule, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DeliveryError is a notification channel that failed to send an alert.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
