// Package api exposes the question-answering gateway over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/cube"
	"hermannm.dev/nlq/orchestrator"
	"hermannm.dev/nlq/telemetry"
	"hermannm.dev/nlq/warehouse"
	"hermannm.dev/wrap"
)

// ConnectionChecker is implemented by synthesizer.Synthesizer.
type ConnectionChecker interface {
	Configured() bool
	Ping(ctx context.Context) error
}

// Backends are the collaborators served by the API. Metrics and Warehouse may be nil if not
// configured.
type Backends struct {
	Orchestrator *orchestrator.Orchestrator
	Synthesizer  ConnectionChecker
	Metrics      *cube.Client
	Warehouse    warehouse.Executor
}

type GatewayAPI struct {
	Backends
	router *http.ServeMux
	config config.Config
}

func NewGatewayAPI(backends Backends, config config.Config) GatewayAPI {
	api := GatewayAPI{Backends: backends, router: http.NewServeMux(), config: config}

	api.router.HandleFunc("GET /{$}", api.Status)
	api.router.HandleFunc("POST /ask", api.Ask)
	api.router.HandleFunc("GET /schema", api.Schema)
	api.router.HandleFunc("POST /cube/query", api.CubeQuery)
	api.router.HandleFunc("GET /cube/metrics/{name}", api.CubeMetric)
	api.router.HandleFunc("GET /cube/meta", api.CubeMeta)
	api.router.HandleFunc("POST /cache/clear", api.ClearCache)
	api.router.Handle("GET /metrics", promhttp.Handler())

	return api
}

// Handler returns the routes wrapped in CORS, metrics and panic recovery middleware.
func (api GatewayAPI) Handler() http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: api.config.API.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
	})

	return corsHandler.Handler(telemetry.Middleware(recoverPanics(api.router)))
}

// ListenAndServe serves the API until ctx is cancelled, then shuts down gracefully.
func (api GatewayAPI) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", api.config.API.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return wrap.Error(err, "failed to shut down server")
	}

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
