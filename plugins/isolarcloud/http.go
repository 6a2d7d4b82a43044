package isolarcloud

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/joshp123/solarcloud/internal/server"
)

type httpHandlers struct {
	client *Client
}

// registerHTTP mounts the REST routes on the /api subrouter:
//
//	GET /plants
//	GET /plants/{id}
//	GET /plants/{id}/realtime?points=a,b
//	GET /measure-points
func registerHTTP(router *mux.Router, client *Client) {
	h := &httpHandlers{client: client}
	router.HandleFunc("/plants", h.listPlants).Methods(http.MethodGet)
	router.HandleFunc("/plants/{id}", h.plantDetails).Methods(http.MethodGet)
	router.HandleFunc("/plants/{id}/realtime", h.realtime).Methods(http.MethodGet)
	router.HandleFunc("/measure-points", h.measurePoints).Methods(http.MethodGet)
}

func (h *httpHandlers) listPlants(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	plants, err := h.client.ListPlants(r.Context())
	if err != nil {
		writeClientError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, plantsResponse{Plants: nonNil(plants)})
}

func (h *httpHandlers) plantDetails(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	plants, err := h.client.PlantDetails(r.Context(), []string{mux.Vars(r)["id"]})
	if err != nil {
		writeClientError(w, err)
		return
	}
	if len(plants) == 0 {
		server.WriteError(w, http.StatusNotFound, "plant not found")
		return
	}
	server.WriteJSON(w, http.StatusOK, plants[0])
}

func (h *httpHandlers) realtime(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var points []string
	if raw := strings.TrimSpace(r.URL.Query().Get("points")); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				points = append(points, p)
			}
		}
	}
	readings, err := h.client.RealtimePlant(r.Context(), mux.Vars(r)["id"], points)
	if err != nil {
		writeClientError(w, err)
		return
	}
	if readings == nil {
		server.WriteError(w, http.StatusNotFound, "no data for plant")
		return
	}
	server.WriteJSON(w, http.StatusOK, readings)
}

func (h *httpHandlers) measurePoints(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, measurePointsResponse{MeasurePoints: MeasurePoints()})
}

func (h *httpHandlers) ready(w http.ResponseWriter) bool {
	if h.client == nil {
		server.WriteError(w, http.StatusServiceUnavailable, "isolarcloud client not configured")
		return false
	}
	return true
}

func writeClientError(w http.ResponseWriter, err error) {
	switch {
	case IsBadRequest(err):
		server.WriteError(w, http.StatusBadRequest, err.Error())
	case isRateLimit(err):
		server.WriteError(w, http.StatusTooManyRequests, err.Error())
	case IsRemote(err), isHTTPStatus(err):
		server.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		server.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
