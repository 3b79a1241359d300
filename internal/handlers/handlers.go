package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/openbidder/live-auction/internal/service"
	"github.com/openbidder/live-auction/internal/store"
	ws "github.com/openbidder/live-auction/internal/websocket"
)

// Handler contains HTTP request handlers
type Handler struct {
	bidding *service.BiddingService
	wsh     *ws.Handler
	log     *logrus.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(bidding *service.BiddingService, wsh *ws.Handler, log *logrus.Logger) *Handler {
	return &Handler{
		bidding: bidding,
		wsh:     wsh,
		log:     log,
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Persistent event connection
	router.HandleFunc("/ws", h.wsh.ServeWS)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", h.GetState).Methods("GET")
	api.HandleFunc("/items/{id}", h.GetItem).Methods("GET")
	api.HandleFunc("/items", h.CreateItem).Methods("POST")

	// Middleware
	router.Use(h.loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "auction-server",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetState returns the initial-load payload: server time plus all items.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.bidding.State(r.Context())
	if err != nil {
		h.log.Errorf("Failed to load state: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to load auctions")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// GetItem retrieves a single auction record
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	itemID := vars["id"]

	item, err := h.bidding.GetItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Item not found")
			return
		}
		h.log.Errorf("Failed to load item %s: %v", itemID, err)
		respondError(w, http.StatusInternalServerError, "Failed to retrieve item")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

type createItemRequest struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	StartingPrice float64 `json:"startingPrice"`
	EndsAt        int64   `json:"endsAt"`
}

// CreateItem seeds a new auction record. This is an administrative
// operation; bids only ever mutate records through arbitration.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := h.bidding.CreateItem(r.Context(), req.ID, req.Title, req.StartingPrice, req.EndsAt)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// loggingMiddleware logs all HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		h.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.RequestURI,
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})
}

// corsMiddleware adds CORS headers (for development)
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
