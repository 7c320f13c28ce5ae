package controllers

import (
	"encoding/json"
	"net/http"

	"starmatch_server/services"
	"starmatch_server/utils"
)

// RelationshipController handles friend, block and flag removal requests
type RelationshipController struct {
	RelationshipService *services.RelationshipService
}

// NewRelationshipController creates a new RelationshipController instance
func NewRelationshipController(relationshipService *services.RelationshipService) *RelationshipController {
	return &RelationshipController{RelationshipService: relationshipService}
}

type dyadRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Mutual bool   `json:"mutual"`
}

type countResponse struct {
	Valid bool `json:"valid"`
	Count int  `json:"count"`
}

func decodeDyad(w http.ResponseWriter, r *http.Request) (dyadRequest, bool) {
	var request dyadRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return request, false
	}
	return request, true
}

// HandleSendFriendRequest sends a friend request
func (rc *RelationshipController) HandleSendFriendRequest(w http.ResponseWriter, r *http.Request) {
	request, ok := decodeDyad(w, r)
	if !ok {
		return
	}
	count, err := rc.RelationshipService.SendFriendRequest(r.Context(), request.From, request.To)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, countResponse{Valid: true, Count: count})
}

// HandleAcceptFriendRequest accepts a pending friend request from "to"
func (rc *RelationshipController) HandleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	request, ok := decodeDyad(w, r)
	if !ok {
		return
	}
	count, err := rc.RelationshipService.AcceptFriendRequest(r.Context(), request.From, request.To)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, countResponse{Valid: true, Count: count})
}

// HandleUnfriend removes a friendship, optionally on both sides
func (rc *RelationshipController) HandleUnfriend(w http.ResponseWriter, r *http.Request) {
	request, ok := decodeDyad(w, r)
	if !ok {
		return
	}
	count, err := rc.RelationshipService.Unfriend(r.Context(), request.From, request.To, request.Mutual)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, countResponse{Valid: true, Count: count})
}

// HandleBlock blocks a user
func (rc *RelationshipController) HandleBlock(w http.ResponseWriter, r *http.Request) {
	request, ok := decodeDyad(w, r)
	if !ok {
		return
	}
	result, err := rc.RelationshipService.BlockUser(r.Context(), request.From, request.To)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

// HandleUnblock lifts a block
func (rc *RelationshipController) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	request, ok := decodeDyad(w, r)
	if !ok {
		return
	}
	result, err := rc.RelationshipService.UnblockUser(r.Context(), request.From, request.To)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

// HandleDeleteFlag removes a flag and optionally its mirror
func (rc *RelationshipController) HandleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Category string `json:"category"`
		User1    string `json:"u1"`
		User2    string `json:"u2"`
		Mutual   bool   `json:"mutual"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := rc.RelationshipService.DeleteFlag(r.Context(), request.Category, request.User1, request.User2, request.Mutual)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}
