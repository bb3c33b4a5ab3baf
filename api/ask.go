package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/orchestrator"
	"hermannm.dev/nlq/query"
)

const requestIDHeader = "X-Request-ID"

type askRequest struct {
	Query string `json:"query"`
	// Defaults to true. If false, the plan is returned without being executed.
	Execute *bool `json:"execute"`
}

type askResponse struct {
	RequestID     string              `json:"request_id"`
	OriginalQuery string              `json:"original_query"`
	Intent        string              `json:"intent"`
	Route         query.Route         `json:"route"`
	TableUsed     *string             `json:"table_used"`
	CubeQuery     *query.MetricsQuery `json:"cube_query"`
	SQL           *string             `json:"sql"`
	Explanation   string              `json:"explanation"`
	Data          []query.Row         `json:"data"`
	RowCount      *int                `json:"row_count"`
	Error         *string             `json:"error"`
	Source        *query.Source       `json:"source"`
	Notice        string              `json:"notice,omitempty"`
	Cached        bool                `json:"cached"`
	Columns       []string            `json:"columns,omitempty"`
	Roles         *query.ColumnRoles  `json:"roles,omitempty"`
}

// Expects:
//   - JSON body {"query": string, "execute": bool}
//
// Returns:
//   - JSON-encoded askResponse. Execution failures are reported in its error field, with status
//     200, so the attempted query is always returned.
func (api GatewayAPI) Ask(res http.ResponseWriter, req *http.Request) {
	requestID := uuid.NewString()
	res.Header().Set(requestIDHeader, requestID)

	var request askRequest
	if err := decodeJSONBody(res, req, &request); err != nil {
		sendClientError(res, err, "failed to parse request body")
		return
	}

	question := strings.TrimSpace(request.Query)
	if question == "" {
		sendClientError(res, nil, "missing 'query' in request body")
		return
	}

	execute := request.Execute == nil || *request.Execute

	log.Info(
		"received question",
		slog.String("request_id", requestID),
		slog.String("question", question),
		slog.Bool("execute", execute),
	)

	ctx := req.Context()
	if timeout := api.config.API.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	answer := api.Orchestrator.Ask(
		ctx,
		orchestrator.QuestionContext{RequestID: requestID, Question: question},
		execute,
	)

	sendJSON(res, newAskResponse(requestID, question, answer))
}

func newAskResponse(requestID string, question string, answer orchestrator.Answer) askResponse {
	plan := answer.Plan
	response := askResponse{
		RequestID:     requestID,
		OriginalQuery: question,
		Intent:        plan.Intent,
		Route:         answer.Route,
		TableUsed:     nullable(plan.TableReference),
		CubeQuery:     plan.MetricsQuery,
		SQL:           nullable(plan.WarehouseQuery),
		Explanation:   plan.Explanation,
		Cached:        answer.Cached,
	}

	if answer.Result == nil {
		if answer.Route == query.RouteError {
			response.Error = nullable(plan.Explanation)
		}
		return response
	}

	result := *answer.Result
	response.Source = &result.Source
	response.Notice = result.Notice
	if result.Failed() {
		response.Error = &result.Error
		return response
	}

	response.RowCount = &result.RowCount
	response.Data = result.Rows
	response.Columns = result.Columns
	response.Roles = &result.Roles
	return response
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
