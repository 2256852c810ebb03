package validation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

const previewChars = 100

type Response struct {
	StatusCode int
	Header     http.Header
	// Body is the decoded JSON value, or the raw text for non-JSON bodies.
	Body any
	Raw  string
}

type Result struct {
	Valid  bool
	Errors []string
}

// Validate applies every configured rule and collects their errors in a
// fixed order: status code, required keys, contained values, custom check.
// A nil rule set always passes.
func Validate(resp Response, rules *monitor.ValidationRules) Result {
	if rules == nil {
		return Result{Valid: true}
	}

	var errs []string

	if rules.StatusCode != nil && resp.StatusCode != *rules.StatusCode {
		errs = append(errs, statusMismatch(resp, *rules.StatusCode))
	}

	if len(rules.RequiredKeys) > 0 {
		switch resp.Body.(type) {
		case map[string]any, []any:
			for _, key := range rules.RequiredKeys {
				if _, ok := Lookup(resp.Body, key); !ok {
					errs = append(errs, "Missing required key: "+key)
				}
			}
		default:
			errs = append(errs, "Response body is not a JSON object, cannot check required keys")
		}
	}

	if len(rules.ContainsValue) > 0 {
		text := Stringify(resp)
		for _, kv := range rules.ContainsValue {
			if !strings.Contains(text, kv.Value) {
				errs = append(errs, fmt.Sprintf("Response does not contain expected value for %q: %q", kv.Label, kv.Value))
			}
		}
	}

	if expr := strings.TrimSpace(rules.CustomCheck); expr != "" {
		ok, err := EvaluateCondition(resp.Body, expr)
		switch {
		case err != nil:
			verr := &check.ValidationError{Rule: "customCheck", Err: err}
			errs = append(errs, "Custom check error: "+verr.Error())
		case !ok:
			errs = append(errs, "Custom check failed: "+expr)
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func statusMismatch(resp Response, want int) string {
	var details []string
	if resp.Header != nil {
		if s := resp.Header.Get("Server"); s != "" {
			details = append(details, "server: "+s)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			details = append(details, "content-type: "+ct)
		}
	}
	if p := preview(resp.Raw); p != "" {
		details = append(details, fmt.Sprintf("body: %q", p))
	}
	msg := fmt.Sprintf("Expected status code %d, got %d", want, resp.StatusCode)
	if len(details) > 0 {
		msg += " (" + strings.Join(details, ", ") + ")"
	}
	return msg
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= previewChars {
		return s
	}
	return string(r[:previewChars]) + "..."
}
