package budget

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	v1mware "github.com/vaihtoaktivaattori/portal/internal/api/v1/middleware"
	"github.com/vaihtoaktivaattori/portal/internal/i18n"
	budgetsvc "github.com/vaihtoaktivaattori/portal/internal/services/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/httpext"
)

// HandleGet returns the budget of the authenticated user.
func HandleGet(budgetService *budgetsvc.Service, w http.ResponseWriter, r *http.Request) {
	userID := v1mware.UserID(r)

	snap, err := budgetService.Get(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load budget")
		httpext.JsonError(w, "Failed to load budget", http.StatusInternalServerError)
		return
	}

	httpext.Json(w, http.StatusOK, snap)
}

// HandlePut replaces the budget of the authenticated user and returns the
// stored snapshot with its recomputed total.
func HandlePut(budgetService *budgetsvc.Service, catalog *i18n.Catalog, w http.ResponseWriter, r *http.Request) {
	userID := v1mware.UserID(r)
	lang := catalog.FromRequest(r)

	var snap budget.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed budget")
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: catalog.Message(lang, "request.invalid"),
		})
		return
	}

	stored, err := budgetService.Put(r.Context(), userID, snap)
	if err != nil {
		var validationErr *budgetsvc.ValidationError
		if errors.As(err, &validationErr) {
			log.Warn().Err(err).Str("user_id", userID).Msg("Budget validation failed")
			httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
				Error:            "invalid_budget",
				ErrorDescription: catalog.Message(lang, "budget.invalid") + ": " + validationErr.Reason,
			})
			return
		}

		log.Error().Err(err).Str("user_id", userID).Msg("Failed to save budget")
		httpext.JsonError(w, "Failed to save budget", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("user_id", userID).
		Int("categories", len(stored.Categories)).
		Float64("total", stored.Total).
		Msg("Budget saved")

	httpext.Json(w, http.StatusOK, stored)
}
