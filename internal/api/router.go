// Package api assembles the HTTP surface of the portal service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	v1handlers "github.com/vaihtoaktivaattori/portal/internal/api/v1/handlers"
	v1mware "github.com/vaihtoaktivaattori/portal/internal/api/v1/middleware"
	"github.com/vaihtoaktivaattori/portal/internal/services"
	"github.com/vaihtoaktivaattori/portal/pkg/httpext"
)

type healthResponse struct {
	Status string `json:"status"`
	Redis  bool   `json:"redis"`
}

// NewRouter returns the router serving the health check and the v1 API.
func NewRouter(svc *services.Services) *mux.Router {
	router := mux.NewRouter()
	router.Use(v1mware.LogRequests)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpext.Json(w, http.StatusOK, healthResponse{Status: "ok", Redis: svc.RedisAvailable()})
	}).Methods("GET")

	v1handlers.RegisterV1Routes(router, svc)
	return router
}
