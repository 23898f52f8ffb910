package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Version is reported by /health and /api/v1/info.
const Version = "1.0.0"

type InfoHandler struct {
	apiURL    string
	batchSize int
	dbOK      bool
}

func NewInfoHandler(apiURL string, batchSize int, dbOK bool) *InfoHandler {
	return &InfoHandler{apiURL: apiURL, batchSize: batchSize, dbOK: dbOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name      string   `json:"name" doc:"Service name"`
	Version   string   `json:"version" doc:"Service version"`
	APIURL    string   `json:"api_url" doc:"Remote risk service base URL"`
	BatchSize int      `json:"batch_size" doc:"Ids per remote request"`
	DB        bool     `json:"db" doc:"Whether the SQL workspace is available"`
	Features  []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"risk", "movement", "overlay", "views", "reports", "pdf"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:      "ganabosques-geo",
		Version:   Version,
		APIURL:    h.apiURL,
		BatchSize: h.batchSize,
		DB:        h.dbOK,
		Features:  features,
	}}, nil
}
