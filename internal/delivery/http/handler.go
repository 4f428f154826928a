package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/location"
	"github.com/nearbuy/backend/internal/repository"
	"github.com/nearbuy/backend/internal/service"
)

// Handler exposes the engine's operations over HTTP. Authentication is out
// of scope; the caller's identity arrives in the X-User-ID header.
type Handler struct {
	catalog  *service.CatalogService
	requests *service.RequestService
	resolver *location.Resolver
	device   *location.ReportedLocator
}

func NewHandler(
	catalog *service.CatalogService,
	requests *service.RequestService,
	resolver *location.Resolver,
	device *location.ReportedLocator,
) *Handler {
	return &Handler{
		catalog:  catalog,
		requests: requests,
		resolver: resolver,
		device:   device,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/items/nearby", h.handleNearbyItems)
	mux.HandleFunc("GET /api/items/{id}/requested", h.handleHasRequested)
	mux.HandleFunc("GET /api/location", h.handleResolveLocation)
	mux.HandleFunc("POST /api/location/manual", h.handleSetManualLocation)
	mux.HandleFunc("DELETE /api/location/manual", h.handleClearManualLocation)
	mux.HandleFunc("POST /api/location/detect", h.handleDetectLocation)
	mux.HandleFunc("POST /api/requests", h.handleCreateRequest)
	mux.HandleFunc("GET /api/requests", h.handleListRequests)
	mux.HandleFunc("POST /api/requests/{id}/accept", h.handleAcceptRequest)
	mux.HandleFunc("POST /api/requests/{id}/reject", h.handleRejectRequest)
	mux.HandleFunc("POST /api/requests/{id}/delivered", h.handleConfirmDelivery)
}

func (h *Handler) handleNearbyItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	var radius float64
	if v := q.Get("radius_km"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid radius_km", http.StatusBadRequest)
			return
		}
		radius = parsed
	}

	// Explicit lat/lng bypass resolution, letting the client browse around
	// an arbitrary point.
	if q.Has("lat") || q.Has("lng") {
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
		if errLat != nil || errLng != nil {
			http.Error(w, "invalid lat/lng", http.StatusBadRequest)
			return
		}
		origin := entity.Coordinate{Latitude: lat, Longitude: lng}

		items, err := h.catalog.NearbyAt(r.Context(), origin, userID, radius)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"origin": location.Resolved{Coordinate: origin, Source: entity.SourceExplicit},
			"items":  items,
		})
		return
	}

	items, resolved, err := h.catalog.Nearby(r.Context(), userID, radius)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"origin": resolved,
		"items":  items,
	})
}

func (h *Handler) handleHasRequested(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	requested, err := h.requests.HasRequested(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"requested": requested})
}

func (h *Handler) handleResolveLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resolved)
}

func (h *Handler) handleSetManualLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var coord entity.Coordinate
	if err := json.NewDecoder(r.Body).Decode(&coord); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.resolver.SetManual(r.Context(), userID, coord); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, location.Resolved{Coordinate: coord, Source: entity.SourceManual})
}

func (h *Handler) handleClearManualLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.resolver.ClearManual(r.Context(), userID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDetectLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	// The browser runs the GPS; it reports its reading here before the
	// resolver pulls it through the device chain. An empty body means
	// "detect failed client-side", which drops us into the fallback chain.
	var coord *entity.Coordinate
	if r.ContentLength != 0 {
		coord = &entity.Coordinate{}
		if err := json.NewDecoder(r.Body).Decode(coord); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if coord != nil {
		h.device.Report(userID, *coord)
	}

	resolved, err := h.resolver.Detect(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resolved)
}

type createRequestBody struct {
	ItemID    string `json:"item_id"`
	BuyerName string `json:"buyer_name"`
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ItemID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.requests.Create(r.Context(), body.ItemID, userID, body.BuyerName)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var (
		requests []entity.Request
		err      error
	)
	switch role := r.URL.Query().Get("role"); role {
	case "seller":
		requests, err = h.requests.ListForSeller(r.Context(), userID)
	case "", "buyer":
		requests, err = h.requests.ListForBuyer(r.Context(), userID)
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

func (h *Handler) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.requests.Accept)
}

func (h *Handler) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.requests.Reject)
}

func (h *Handler) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.requests.ConfirmDelivery)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, requestID, callerID string) (*entity.Request, error),
) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	req, err := op(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing X-User-ID header", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, repository.ErrDuplicateRequest):
		respondJSON(w, http.StatusConflict, map[string]string{"error": "you have already requested this item"})
	case errors.Is(err, service.ErrInvalidTransition):
		respondJSON(w, http.StatusConflict, map[string]string{"error": "this request is no longer pending"})
	case errors.Is(err, service.ErrPermissionDenied):
		respondJSON(w, http.StatusForbidden, map[string]string{"error": "not allowed"})
	case errors.Is(err, service.ErrOwnItem):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "cannot request your own item"})
	default:
		slog.Error("Request failed", "err", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// EnableCORS is a middleware to allow the web frontend to connect.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
