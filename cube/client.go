// Package cube is a client for the governed metrics service (Cube REST API).
package cube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/normalizer"
	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

const (
	healthTimeout = 5 * time.Second
	metaTimeout   = 10 * time.Second

	apiPathSuffix = "/cubejs-api/v1"

	// Sent by the service with status 200 while a query is still being computed.
	continueWaitMessage = "Continue wait"
)

var ErrNotConfigured = errors.New("metrics service is not configured")

type Client struct {
	baseURL     string
	secret      []byte
	tokenExpiry time.Duration
	timeout     time.Duration
	httpClient  *http.Client
	clock       clockwork.Clock
}

// NewClient returns nil if no API URL is configured. Methods on a nil client report the service as
// unavailable.
func NewClient(config config.Cube, clock clockwork.Clock) *Client {
	if config.APIURL == "" {
		return nil
	}

	return &Client{
		baseURL:     strings.TrimRight(config.APIURL, "/"),
		secret:      []byte(config.APISecret),
		tokenExpiry: config.TokenExpiry,
		timeout:     config.Timeout,
		httpClient:  &http.Client{},
		clock:       clock,
	}
}

func (client *Client) Configured() bool {
	return client != nil
}

type loadRequest struct {
	Query query.MetricsQuery `json:"query"`
}

type loadResponse struct {
	Data  []query.Row `json:"data"`
	Error string      `json:"error"`
}

// Load runs the query against the service's load endpoint. Returned errors are marked with
// query.Transient if the call may succeed when attempted again.
func (client *Client) Load(
	ctx context.Context,
	metricsQuery query.MetricsQuery,
) (query.RawResult, error) {
	if !client.Configured() {
		return query.RawResult{}, ErrNotConfigured
	}

	metricsQuery = metricsQuery.Bounded()
	if errs := metricsQuery.Validate(); len(errs) != 0 {
		return query.RawResult{}, wrap.Errors("invalid metrics query", errs...)
	}

	body, err := json.Marshal(loadRequest{Query: metricsQuery})
	if err != nil {
		return query.RawResult{}, wrap.Error(err, "failed to serialize metrics query")
	}

	log.Debug("sending metrics query", slog.String("query", string(body)))

	ctx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	var response loadResponse
	if err := client.send(ctx, http.MethodPost, client.baseURL+"/load", body, &response); err != nil {
		return query.RawResult{}, wrap.Error(err, "metrics query failed")
	}

	if response.Error != "" {
		err := fmt.Errorf("metrics service returned error: %s", response.Error)
		if response.Error == continueWaitMessage {
			return query.RawResult{}, query.Transient(err)
		}
		return query.RawResult{}, err
	}

	return query.RawResult{
		Rows:     response.Data,
		Source:   query.SourceMetrics,
		Measures: metricsQuery.Measures,
	}, nil
}

// Execute runs the query like Load and normalizes the rows, but never fails: errors are returned
// in the result, with no rows.
func (client *Client) Execute(ctx context.Context, metricsQuery query.MetricsQuery) query.Result {
	raw, err := client.Load(ctx, metricsQuery)
	if err != nil {
		return query.ErrorResult(query.SourceMetrics, err.Error())
	}
	return normalizer.Normalize(raw)
}

// Health probes the service's readiness endpoint. Any failure is reported as unhealthy.
func (client *Client) Health(ctx context.Context) bool {
	if !client.Configured() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	rootURL := strings.TrimSuffix(client.baseURL, apiPathSuffix)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rootURL+"/readyz", nil)
	if err != nil {
		return false
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		log.Warn("metrics service health check failed", slog.String("cause", err.Error()))
		return false
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	return response.StatusCode == http.StatusOK
}

// Meta fetches the catalog of cubes with their measures and dimensions. Returns false if the
// service is unavailable.
func (client *Client) Meta(ctx context.Context) (*Meta, bool) {
	if !client.Configured() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, metaTimeout)
	defer cancel()

	var meta Meta
	if err := client.send(ctx, http.MethodGet, client.baseURL+"/meta", nil, &meta); err != nil {
		log.ErrorCause(err, "failed to get metrics service metadata")
		return nil, false
	}
	return &meta, true
}

func (client *Client) send(
	ctx context.Context,
	method string,
	url string,
	body []byte,
	responseTarget any,
) error {
	token, err := client.token()
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return wrap.Error(err, "failed to create request")
	}
	request.Header.Set("Authorization", token)
	request.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return query.Transient(wrap.Error(err, "request to metrics service failed"))
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		statusErr := newStatusError(response)
		if statusErr.Transient() {
			return query.Transient(statusErr)
		}
		return statusErr
	}

	decoder := json.NewDecoder(response.Body)
	decoder.UseNumber()
	if err := decoder.Decode(responseTarget); err != nil {
		return wrap.Error(err, "failed to decode metrics service response")
	}

	return nil
}

// token signs a short-lived token with the shared secret. A new one is minted for every call.
func (client *Client) token() (string, error) {
	now := client.clock.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(client.tokenExpiry).Unix(),
	})

	signed, err := token.SignedString(client.secret)
	if err != nil {
		return "", wrap.Error(err, "failed to sign metrics service token")
	}
	return signed, nil
}
