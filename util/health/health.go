// Package health aggregates the readiness and liveness checks of a service into
// a single JSON document.
package health

import (
	"context"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Check is one named dependency. Check returns an HTTP status, a message that
// may itself be a JSON health document, and an error.
type Check struct {
	Name  string
	Check func(context.Context, bool) (int, string, error)
}

type checkResult struct {
	Resource     string                `json:"resource"`
	Status       string                `json:"status"`
	Error        string                `json:"error,omitempty"`
	Message      string                `json:"message,omitempty"`
	Dependencies []jsoniter.RawMessage `json:"dependencies,omitempty"`
}

type report struct {
	Status       string         `json:"status"`
	Dependencies []*checkResult `json:"dependencies"`
}

// CheckAll runs every check in order. The overall status is 503 when any check
// errors or reports anything but 200. Nested JSON messages are embedded as
// dependencies instead of being quoted.
func CheckAll(ctx context.Context, checkLiveness bool, checks []Check) (int, string, error) {
	r := &report{
		Dependencies: make([]*checkResult, 0, len(checks)),
	}

	overallStatus := http.StatusOK

	for _, check := range checks {
		status, message, err := check.Check(ctx, checkLiveness)
		if err != nil || status != http.StatusOK {
			overallStatus = http.StatusServiceUnavailable
		}

		result := &checkResult{
			Resource: check.Name,
			Status:   strconv.Itoa(status),
		}

		if err != nil {
			result.Error = err.Error()
		}

		if len(message) > 0 && message[0] == '{' && jsoniter.Valid([]byte(message)) {
			result.Dependencies = []jsoniter.RawMessage{jsoniter.RawMessage(message)}
		} else {
			result.Message = message
		}

		r.Dependencies = append(r.Dependencies, result)
	}

	r.Status = strconv.Itoa(overallStatus)

	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(r)
	if err != nil {
		return http.StatusInternalServerError, "", err
	}

	return overallStatus, string(b), nil
}
