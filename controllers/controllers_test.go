package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmatch_server/models"
	"starmatch_server/services"
	"starmatch_server/utils"
)

type apiFixture struct {
	router *mux.Router
	dir    *services.InMemoryDirectory
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := services.NewInMemoryFlagStore()
	dir := services.NewInMemoryDirectory()
	settings := services.StaticSettings{Value: models.DefaultSettings()}
	locker := services.NewLocalLocker()

	swipes := &services.SwipeService{
		Store: store, Directory: dir, Settings: settings, Locker: locker,
		Events: services.NopPublisher{}, Log: zerolog.Nop(),
	}
	rel := &services.RelationshipService{
		Store: store, Directory: dir, Locker: locker, Log: zerolog.Nop(),
	}
	ranking := &services.RankingService{Store: store, Settings: settings, Log: zerolog.Nop()}

	r := mux.NewRouter()
	r.HandleFunc("/health", HealthCheckHandler).Methods("GET")
	swipeController := NewSwipeController(swipes, time.Second)
	relController := NewRelationshipController(rel)
	rankController := NewRankingController(ranking)
	r.HandleFunc("/api/swipe", swipeController.HandleSwipe).Methods("POST")
	r.HandleFunc("/api/viewed", swipeController.HandleViewed).Methods("POST")
	r.HandleFunc("/api/block", relController.HandleBlock).Methods("POST")
	r.HandleFunc("/api/flags/delete", relController.HandleDeleteFlag).Methods("POST")
	r.HandleFunc("/api/rankings/likeability", rankController.HandleLikeability).Methods("GET")
	r.HandleFunc("/api/rankings/activity", rankController.HandleActivity).Methods("GET")

	return &apiFixture{router: r, dir: dir}
}

func (f *apiFixture) member(active bool) string {
	id := uuid.NewString()
	f.dir.Put(models.Member{UserID: id, Roles: []string{"active"}, Active: active})
	return id
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestSwipeEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	a, b := f.member(true), f.member(true)

	rr := f.do(t, "POST", "/api/swipe", map[string]any{"from": a, "to": b, "value": 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res models.SwipeResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, 24, res.Remaining)
	assert.NotNil(t, res.FCM.Results)
}

func TestSwipeEndpointErrorMapping(t *testing.T) {
	f := newAPIFixture(t)
	active := f.member(true)
	inactive := f.member(false)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"inactive actor", map[string]any{"from": inactive, "to": active, "value": 1}, http.StatusForbidden},
		{"self swipe", map[string]any{"from": active, "to": active, "value": 1}, http.StatusBadRequest},
		{"missing ids", map[string]any{"value": 1}, http.StatusBadRequest},
		{"bad payload", "nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, "POST", "/api/swipe", tt.body)
			assert.Equal(t, tt.status, rr.Code)

			var body utils.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.Valid)
			assert.NotEmpty(t, body.Reason)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(services.ErrStoreInconsistency))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestViewedBlockAndDeleteEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	a, b := f.member(true), f.member(true)

	rr := f.do(t, "POST", "/api/viewed", map[string]any{"from": a, "to": b})
	require.Equal(t, http.StatusOK, rr.Code)
	var view models.ViewResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, models.ViewCreated, view.Status)

	rr = f.do(t, "POST", "/api/block", map[string]any{"from": a, "to": b})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "POST", "/api/flags/delete", map[string]any{"category": models.CategoryBlock, "u1": a, "u2": b, "mutual": true})
	require.Equal(t, http.StatusOK, rr.Code)
	var del models.DeleteFlagResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &del))
	require.NotNil(t, del.Result)
	assert.Nil(t, del.Result2)
}

func TestRankingEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, "GET", "/api/rankings/likeability?limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = f.do(t, "GET", "/api/rankings/activity?weeks=x", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = httptest.NewRecorder()
	HealthCheckHandler(rr, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
