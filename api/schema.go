package api

import (
	"net/http"

	"hermannm.dev/nlq/catalog"
	"hermannm.dev/nlq/cube"
)

type schemaResponse struct {
	Project         string              `json:"project,omitempty"`
	Dataset         string              `json:"dataset"`
	Tables          []catalog.Table     `json:"tables"`
	Domains         map[string][]string `json:"domains"`
	Cubes           []catalog.Cube      `json:"cubes"`
	PrebuiltMetrics []string            `json:"prebuilt_metrics"`
}

// Returns:
//   - JSON-encoded description of the warehouse tables and governed metrics that questions are
//     answered from
func (api GatewayAPI) Schema(res http.ResponseWriter, req *http.Request) {
	sendJSON(res, schemaResponse{
		Project:         api.config.WarehouseSQL.Project,
		Dataset:         api.config.WarehouseSQL.Dataset,
		Tables:          catalog.Tables(),
		Domains:         catalog.Domains(),
		Cubes:           catalog.Cubes(),
		PrebuiltMetrics: cube.PrebuiltNames(),
	})
}
