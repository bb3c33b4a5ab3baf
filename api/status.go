package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const probeTimeout = 3 * time.Second

const (
	backendConnected     = "connected"
	backendDisconnected  = "disconnected"
	backendNotConfigured = "not_configured"
)

type statusResponse struct {
	Status   string         `json:"status"`
	Service  string         `json:"service"`
	Backends backendsStatus `json:"backends"`
}

type backendsStatus struct {
	LLM       string `json:"llm"`
	Warehouse string `json:"warehouse"`
	Metrics   string `json:"metrics"`
}

// Status probes every backend concurrently, each bounded by a short timeout.
func (api GatewayAPI) Status(res http.ResponseWriter, req *http.Request) {
	var backends backendsStatus
	group, ctx := errgroup.WithContext(req.Context())

	group.Go(func() error {
		configured := api.Synthesizer != nil && api.Synthesizer.Configured()
		backends.LLM = probe(ctx, configured, func(ctx context.Context) bool {
			return api.Synthesizer.Ping(ctx) == nil
		})
		return nil
	})
	group.Go(func() error {
		backends.Warehouse = probe(ctx, api.Warehouse != nil, func(ctx context.Context) bool {
			return api.Warehouse.Ping(ctx) == nil
		})
		return nil
	})
	group.Go(func() error {
		backends.Metrics = probe(ctx, api.Metrics.Configured(), api.Metrics.Health)
		return nil
	})

	_ = group.Wait()

	sendJSON(res, statusResponse{Status: "ok", Service: "nlq", Backends: backends})
}

func probe(ctx context.Context, configured bool, check func(context.Context) bool) string {
	if !configured {
		return backendNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if check(ctx) {
		return backendConnected
	}
	return backendDisconnected
}
