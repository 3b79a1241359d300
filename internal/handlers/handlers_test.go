package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbidder/live-auction/internal/clock"
	"github.com/openbidder/live-auction/internal/events"
	"github.com/openbidder/live-auction/internal/logging"
	"github.com/openbidder/live-auction/internal/models"
	"github.com/openbidder/live-auction/internal/service"
	"github.com/openbidder/live-auction/internal/store"
	ws "github.com/openbidder/live-auction/internal/websocket"
)

func newTestHandler(t *testing.T) (*Handler, *service.BiddingService, *clock.Manual) {
	t.Helper()
	log := logging.New("test")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	st := store.NewMemoryStore()
	clk := clock.NewManual(time.UnixMilli(1_700_000_000_000))
	svc := service.NewBiddingService(st, clk, events.NewLocalBus(events.NewOrderedSink(hub)), log, time.Second)
	wsHandler := ws.NewHandler(ctx, hub, svc, log)

	return NewHandler(svc, wsHandler, log), svc, clk
}

func TestHealthCheck(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestCreateAndGetItem(t *testing.T) {
	h, _, clk := newTestHandler(t)
	router := h.SetupRoutes()

	payload := map[string]interface{}{
		"id":            "lot-1",
		"title":         "Vintage Clock",
		"startingPrice": 5000,
		"endsAt":        clk.Now().Add(time.Minute).UnixMilli(),
	}
	body, _ := json.Marshal(payload)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/items", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/items/lot-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var item models.AuctionItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "Vintage Clock", item.Title)
	assert.Equal(t, 5000.0, item.CurrentBid)
	assert.Equal(t, int64(0), item.Version)
}

func TestGetItem_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/items/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateItem_Invalid(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := h.SetupRoutes()

	for _, body := range []string{
		"not json",
		`{"title":"no id","startingPrice":10,"endsAt":1}`,
		`{"id":"x","title":"bad price","startingPrice":-1,"endsAt":1}`,
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/items", bytes.NewReader([]byte(body))))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestGetState(t *testing.T) {
	h, svc, clk := newTestHandler(t)
	router := h.SetupRoutes()

	_, err := svc.CreateItem(context.Background(), "lot-1", "Clock", 5000, clk.Now().Add(time.Minute).UnixMilli())
	require.NoError(t, err)
	_, err = svc.CreateItem(context.Background(), "lot-2", "Painting", 900, clk.Now().Add(time.Hour).UnixMilli())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state models.StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, clk.Now().UnixMilli(), state.ServerTime)
	assert.Len(t, state.Items, 2)
}

func TestGetState_EmptyStore(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state models.StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.NotNil(t, state.Items)
	assert.Empty(t, state.Items)
}
