package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"starmatch_server/services"
	"starmatch_server/utils"
)

// RankingController serves the batch rankings
type RankingController struct {
	RankingService *services.RankingService
}

// NewRankingController creates a new RankingController instance
func NewRankingController(rankingService *services.RankingService) *RankingController {
	return &RankingController{RankingService: rankingService}
}

func queryIDs(r *http.Request) []string {
	raw := r.URL.Query().Get("userIds")
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// HandleLikeability ranks users by the ratings they received
func (rc *RankingController) HandleLikeability(w http.ResponseWriter, r *http.Request) {
	maxDays, err1 := queryInt(r, "maxDaysActiveAgo", 0)
	skip, err2 := queryInt(r, "skip", 0)
	limit, err3 := queryInt(r, "limit", 0)
	if err1 != nil || err2 != nil || err3 != nil {
		utils.WriteError(w, http.StatusBadRequest, "maxDaysActiveAgo, skip and limit must be integers")
		return
	}

	ranking, err := rc.RankingService.RankByLikeability(r.Context(), queryIDs(r), maxDays, skip, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, ranking)
}

// HandleActivity ranks users by how recently and often they rate others
func (rc *RankingController) HandleActivity(w http.ResponseWriter, r *http.Request) {
	weeks, err := queryInt(r, "weeks", 1)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "weeks must be an integer")
		return
	}

	ranking, err := rc.RankingService.RankByActivity(r.Context(), queryIDs(r), weeks)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, ranking)
}
