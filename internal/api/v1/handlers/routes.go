package handlers

import (
	"net/http"

	v1budget "github.com/vaihtoaktivaattori/portal/internal/api/v1/handlers/budget"
	v1chat "github.com/vaihtoaktivaattori/portal/internal/api/v1/handlers/chat"
	v1mware "github.com/vaihtoaktivaattori/portal/internal/api/v1/middleware"
	"github.com/vaihtoaktivaattori/portal/internal/auth"
	"github.com/vaihtoaktivaattori/portal/internal/services"

	"github.com/gorilla/mux"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	catalog := services.GetCatalog()

	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()

	// Protected v1 routes (require auth)
	v1protectedRouter := v1.NewRoute().Subrouter()
	v1protectedRouter.Use(v1mware.RequireAuth(), v1mware.RateLimit("global", catalog))

	// Protected v1 chat routes
	v1chatRouter := v1protectedRouter.PathPrefix("/chat").Subrouter()
	v1chatRouter.Use(v1mware.RequireScope(auth.ScopeChat))
	v1chatRouter.Handle("/turn", v1mware.RateLimit("chat_turn", catalog)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1chat.HandleTurn(services.GetChatService(), catalog, w, r)
	}))).Methods("POST")

	// Protected v1 budget routes
	v1budgetRouter := v1protectedRouter.PathPrefix("/budget").Subrouter()
	v1budgetRouter.Use(v1mware.RequireScope(auth.ScopeBudget))
	budgetLimit := v1mware.RateLimit("budget", catalog)
	v1budgetRouter.Handle("", budgetLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1budget.HandleGet(services.GetBudgetService(), w, r)
	}))).Methods("GET")
	v1budgetRouter.Handle("", budgetLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1budget.HandlePut(services.GetBudgetService(), catalog, w, r)
	}))).Methods("PUT")
	v1budgetRouter.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		v1budget.HandleLive(services.GetBudgetService(), services.GetConnectionManager(), catalog, w, r)
	}).Methods("GET")
}
