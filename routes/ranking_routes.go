package routes

import (
	"starmatch_server/controllers"

	"github.com/gorilla/mux"
)

// RegisterRankingRoutes sets up routes under /api/rankings
func RegisterRankingRoutes(r *mux.Router, controller *controllers.RankingController) {
	rankings := r.PathPrefix("/api/rankings").Subrouter()

	rankings.HandleFunc("/likeability", controller.HandleLikeability).Methods("GET")
	rankings.HandleFunc("/activity", controller.HandleActivity).Methods("GET")
}
