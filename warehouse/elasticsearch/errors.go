package elasticsearch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"hermannm.dev/wrap"
)

var errColumnCountMismatch = errors.New("column count mismatch")

func wrapElasticError(wrapped error, message string) error {
	return wrap.Error(formatElasticError(wrapped), message)
}

// parseErrorResponse reads an error body of the form {"error": {...}, "status": 400}.
func parseErrorResponse(statusCode int, body io.Reader) error {
	content, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return fmt.Errorf("status %d, failed to read error body: %w", statusCode, err)
	}

	elasticErr := new(types.ElasticsearchError)
	if err := json.Unmarshal(content, elasticErr); err != nil || elasticErr.ErrorCause.Type == "" {
		message := strings.TrimSpace(string(content))
		if message == "" {
			return fmt.Errorf("status %d", statusCode)
		}
		return fmt.Errorf("%s (status %d)", message, statusCode)
	}

	if elasticErr.Status == 0 {
		elasticErr.Status = statusCode
	}
	return elasticErr
}

func formatElasticError(err error) error {
	elasticErr, ok := err.(*types.ElasticsearchError)
	if !ok {
		return err
	}

	var errMessage string
	if elasticErr.ErrorCause.Reason == nil {
		errMessage = fmt.Sprintf("%s (status %d)", elasticErr.ErrorCause.Type, elasticErr.Status)
	} else {
		errMessage = fmt.Sprintf(
			"%s (%s, status %d)",
			*elasticErr.ErrorCause.Reason, elasticErr.ErrorCause.Type, elasticErr.Status,
		)
	}

	rootCause := make([]error, len(elasticErr.ErrorCause.RootCause))
	for i, cause := range elasticErr.ErrorCause.RootCause {
		if cause.Reason == nil {
			rootCause[i] = errors.New(cause.Type)
		} else {
			rootCause[i] = fmt.Errorf("%s (%s)", *cause.Reason, cause.Type)
		}
	}

	if len(rootCause) == 0 {
		return errors.New(errMessage)
	} else {
		return wrap.Errors(errMessage, rootCause...)
	}
}
