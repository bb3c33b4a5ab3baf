package cube

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodySize = 4096

// StatusError is returned when the metrics service responds with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func newStatusError(response *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodySize))

	message := strings.TrimSpace(string(body))

	var errorBody struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errorBody); err == nil && errorBody.Error != "" {
		message = errorBody.Error
	}

	return &StatusError{StatusCode: response.StatusCode, Message: message}
}

func (err *StatusError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("metrics service responded with status %d", err.StatusCode)
	}
	return fmt.Sprintf("metrics service responded with status %d: %s", err.StatusCode, err.Message)
}

// Transient is true for server errors and rate limiting. Other client errors, such as rejected
// authentication or a malformed query, will fail the same way when attempted again.
func (err *StatusError) Transient() bool {
	return err.StatusCode >= 500 || err.StatusCode == http.StatusTooManyRequests
}
