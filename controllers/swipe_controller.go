package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"starmatch_server/services"
	"starmatch_server/utils"
)

// SwipeController handles swipe and view requests
type SwipeController struct {
	SwipeService *services.SwipeService

	// AwaitTimeout bounds how long a response waits for its notification.
	AwaitTimeout time.Duration
}

// NewSwipeController creates a new SwipeController instance
func NewSwipeController(swipeService *services.SwipeService, awaitTimeout time.Duration) *SwipeController {
	return &SwipeController{SwipeService: swipeService, AwaitTimeout: awaitTimeout}
}

// HandleSwipe records a pass, like or superlike
func (sc *SwipeController) HandleSwipe(w http.ResponseWriter, r *http.Request) {
	var request services.SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if request.From == "" || request.To == "" {
		utils.WriteError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	outcome, err := sc.SwipeService.RecordSwipe(r.Context(), request)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, outcome.Await(r.Context(), sc.AwaitTimeout))
}

// HandleViewed records that a profile was viewed
func (sc *SwipeController) HandleViewed(w http.ResponseWriter, r *http.Request) {
	var request struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Value *bool  `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	viewed := true
	if request.Value != nil {
		viewed = *request.Value
	}

	result, err := sc.SwipeService.RecordViewed(r.Context(), request.From, request.To, viewed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}
