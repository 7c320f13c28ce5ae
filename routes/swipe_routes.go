package routes

import (
	"starmatch_server/controllers"

	"github.com/gorilla/mux"
)

// RegisterSwipeRoutes sets up routes for swipes and views under /api
func RegisterSwipeRoutes(r *mux.Router, controller *controllers.SwipeController) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/swipe", controller.HandleSwipe).Methods("POST")
	api.HandleFunc("/viewed", controller.HandleViewed).Methods("POST")
}
