package server

import (
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshp123/solarcloud/internal/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type healthResponse struct {
	Status  string            `json:"status"`
	Plugins map[string]string `json:"plugins"`
}

// NewRouter serves health, metrics, dashboards, the plugin registry and every
// plugin's REST routes under /api.
func NewRouter(plugins []core.Plugin, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler(plugins)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	dashboards := core.DashboardsMap(plugins)
	router.HandleFunc("/dashboards/{plugin}/{file}", func(w http.ResponseWriter, r *http.Request) {
		data, ok := dashboards[r.URL.Path]
		if !ok {
			WriteError(w, http.StatusNotFound, "dashboard not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	registryService := core.NewRegistryService(plugins)
	api.HandleFunc("/plugins", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, registryService.ListPlugins(r.Context()))
	}).Methods(http.MethodGet)
	api.HandleFunc("/plugins/{id}", func(w http.ResponseWriter, r *http.Request) {
		resp := registryService.DescribePlugin(r.Context(), core.DescribePluginRequest{PluginID: mux.Vars(r)["id"]})
		if resp.Plugin == nil {
			WriteError(w, http.StatusNotFound, "plugin not found")
			return
		}
		WriteJSON(w, http.StatusOK, resp.Plugin)
	}).Methods(http.MethodGet)

	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(api)
		}
	}
	return router
}

// healthHandler answers 200 with status "degraded" when any plugin is unhealthy.
func healthHandler(plugins []core.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok", Plugins: make(map[string]string, len(plugins))}
		for _, p := range plugins {
			health := p.Health()
			resp.Plugins[p.ID()] = string(health)
			if health != core.HealthHealthy {
				resp.Status = "degraded"
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// WriteJSON writes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
