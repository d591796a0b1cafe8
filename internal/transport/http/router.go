package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter wires the REST API and the websocket endpoint.
func NewRouter(api *APIHandler, ws *WSHandler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", api.Health).Methods("GET")
	r.HandleFunc("/ws", ws.ServeWS)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/lessons/{id}/outline", api.GetOutline).Methods("GET")
	v1.HandleFunc("/lessons/{id}/summary", api.GetSummary).Methods("GET")
	v1.HandleFunc("/lessons/{id}/position", api.GetPosition).Methods("GET")
	v1.HandleFunc("/lessons/{id}/gate", api.GetGate).Methods("GET")
	v1.HandleFunc("/lessons/{id}/nodes/{nodeId}/mark", api.MarkNode).Methods("POST")
	v1.HandleFunc("/lessons/{id}/nodes/{nodeId}/toggle", api.ToggleNode).Methods("POST")
	v1.HandleFunc("/lessons/{id}/refresh", api.Refresh).Methods("POST")
	v1.HandleFunc("/lessons/{id}/progress", api.ResetProgress).Methods("DELETE")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}
