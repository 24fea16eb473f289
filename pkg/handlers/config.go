package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/config"
	"github.com/luminadata/schemagraph/pkg/models"
)

// DiscoveryResponse lists the clients, agents, and models a caller can
// select from.
type DiscoveryResponse struct {
	Clients []string `json:"clients"`
	Agents  []string `json:"agents"`
	Models  []string `json:"models"`
	Version string   `json:"version"`
}

// ConfigHandler serves the discovery endpoint.
type ConfigHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(cfg *config.Config, logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, logger: logger}
}

// RegisterRoutes registers the config handler's routes on the given mux.
func (h *ConfigHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /config", h.Discovery)
}

// Discovery handles GET /config requests.
func (h *ConfigHandler) Discovery(w http.ResponseWriter, r *http.Request) {
	clients, err := config.ListClients(h.cfg.ClientConfigDir)
	if err != nil {
		h.logger.Error("Failed to list client configs", zap.Error(err))
		clients = []string{}
	}

	resp := DiscoveryResponse{
		Clients: clients,
		Agents: []string{
			string(models.AgentConversational),
			string(models.AgentNeo4jEngine),
			string(models.AgentNetworkEngine),
		},
		Models:  []string{h.cfg.LLM.Model},
		Version: h.cfg.Version,
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode discovery response", zap.Error(err))
	}
}
