package isolarcloud

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/joshp123/solarcloud/internal/rate"
)

// ErrNoPlants is returned when a request names no plants at all.
var ErrNoPlants = errors.New("isolarcloud: at least one plant id is required")

// UnknownMeasurePointError reports a measure point name missing from the registry.
type UnknownMeasurePointError struct {
	Name string
}

func (e *UnknownMeasurePointError) Error() string {
	return fmt.Sprintf("isolarcloud: unknown measure point %q", e.Name)
}

// RemoteServiceError surfaces a vendor-level failure. Body holds the decoded
// response for diagnosis.
type RemoteServiceError struct {
	Path    string
	Code    string
	Message string
	Body    map[string]any
}

func (e *RemoteServiceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unexpected response"
	}
	if e.Code != "" {
		return fmt.Sprintf("isolarcloud %s: error %s: %s", e.Path, e.Code, msg)
	}
	return fmt.Sprintf("isolarcloud %s: %s", e.Path, msg)
}

// HTTPStatusError is returned by the HTTP transport for non-2xx responses.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("isolarcloud http %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// IsBadRequest reports whether err was caused by caller input that no retry fixes.
func IsBadRequest(err error) bool {
	var unknown *UnknownMeasurePointError
	return errors.As(err, &unknown) || errors.Is(err, ErrNoPlants)
}

// IsRemote reports whether the vendor answered but signalled a failure.
func IsRemote(err error) bool {
	var remote *RemoteServiceError
	return errors.As(err, &remote)
}

func isRateLimit(err error) bool {
	var limited rate.RateLimitError
	if errors.As(err, &limited) {
		return true
	}
	var status HTTPStatusError
	if errors.As(err, &status) {
		return status.Status == http.StatusTooManyRequests
	}
	return false
}

// remoteError builds a RemoteServiceError from a vendor body, pulling whichever of
// the gateway error fields are present.
func remoteError(path string, body map[string]any, fallback string) *RemoteServiceError {
	e := &RemoteServiceError{Path: path, Body: body, Message: fallback}
	if code := parseString(body["result_code"]); code != "" && code != resultCodeOK {
		e.Code = code
	}
	if code := parseString(body["error"]); code != "" {
		e.Code = code
	}
	for _, key := range []string{"error_description", "result_msg"} {
		if msg := parseString(body[key]); msg != "" {
			e.Message = msg
			break
		}
	}
	return e
}
