package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

const maxRequestBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type unavailableResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func sendJSON(res http.ResponseWriter, value any) {
	sendJSONWithStatus(res, http.StatusOK, value)
}

func sendJSONWithStatus(res http.ResponseWriter, statusCode int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		sendServerError(res, err, "failed to serialize response")
		return
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	if _, err := res.Write(body); err != nil {
		log.Debug("failed to write response", slog.String("cause", err.Error()))
	}
}

func sendClientError(res http.ResponseWriter, err error, message string) {
	if err != nil {
		if message == "" {
			message = err.Error()
		} else {
			message = wrap.Error(err, message).Error()
		}
	}
	log.Info("bad request", slog.String("error", message))
	sendJSONWithStatus(res, http.StatusBadRequest, errorResponse{Error: message})
}

func sendNotFound(res http.ResponseWriter, message string) {
	sendJSONWithStatus(res, http.StatusNotFound, errorResponse{Error: message})
}

// sendServerError logs the full error, but only gives the client a diagnostic message.
func sendServerError(res http.ResponseWriter, err error, message string) {
	log.ErrorCause(err, message)
	sendJSONWithStatus(res, http.StatusInternalServerError, errorResponse{Error: message})
}

// sendUnavailable reports that a backend is not configured or cannot be reached, which callers
// must be able to tell apart from an empty result.
func sendUnavailable(res http.ResponseWriter, err error) {
	response := unavailableResponse{Status: "unavailable"}
	if err != nil {
		response.Error = err.Error()
	}
	sendJSONWithStatus(res, http.StatusServiceUnavailable, response)
}

func decodeJSONBody(res http.ResponseWriter, req *http.Request, target any) error {
	return json.NewDecoder(http.MaxBytesReader(res, req.Body, maxRequestBodyBytes)).Decode(target)
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				sendServerError(
					res,
					fmt.Errorf("panic: %v", recovered),
					"unexpected server error",
				)
			}
		}()

		next.ServeHTTP(res, req)
	})
}
