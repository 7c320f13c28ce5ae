package routes

import (
	"starmatch_server/controllers"

	"github.com/gorilla/mux"
)

// RegisterRelationshipRoutes sets up friend, block and flag routes under /api
func RegisterRelationshipRoutes(r *mux.Router, controller *controllers.RelationshipController) {
	friends := r.PathPrefix("/api/friends").Subrouter()
	friends.HandleFunc("/request", controller.HandleSendFriendRequest).Methods("POST")
	friends.HandleFunc("/accept", controller.HandleAcceptFriendRequest).Methods("POST")
	friends.HandleFunc("/unfriend", controller.HandleUnfriend).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/block", controller.HandleBlock).Methods("POST")
	api.HandleFunc("/unblock", controller.HandleUnblock).Methods("POST")
	api.HandleFunc("/flags/delete", controller.HandleDeleteFlag).Methods("POST")
}
