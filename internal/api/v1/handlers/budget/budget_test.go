package budget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaihtoaktivaattori/portal/internal/i18n"
	budgetsvc "github.com/vaihtoaktivaattori/portal/internal/services/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/httpext"
)

func TestHandleGetEmpty(t *testing.T) {
	svc := budgetsvc.NewService(context.Background(), nil)

	rec := httptest.NewRecorder()
	HandleGet(svc, rec, httptest.NewRequest(http.MethodGet, "/v1/budget", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap budget.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Empty(t, snap.Categories)
	assert.Zero(t, snap.Total)
}

func TestHandlePutRecomputesTotal(t *testing.T) {
	svc := budgetsvc.NewService(context.Background(), nil)

	body := `{"categories":{"rent":{"estimatedCost":450},"travel":{"estimatedCost":120.5,"notes":"train to Turku"}},"total":1}`
	rec := httptest.NewRecorder()
	HandlePut(svc, i18n.Default(), rec, httptest.NewRequest(http.MethodPut, "/v1/budget", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var stored budget.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stored))
	assert.Equal(t, 570.5, stored.Total)
	assert.NotEmpty(t, stored.ID)

	rec = httptest.NewRecorder()
	HandleGet(svc, rec, httptest.NewRequest(http.MethodGet, "/v1/budget", nil))
	var loaded budget.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&loaded))
	assert.Equal(t, stored.ID, loaded.ID)
	assert.Equal(t, "train to Turku", loaded.Categories["travel"].Notes)
}

func TestHandlePutRejectsInvalidBudget(t *testing.T) {
	svc := budgetsvc.NewService(context.Background(), nil)

	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"malformed json", `{"categories":`, "invalid_request"},
		{"negative cost", `{"categories":{"rent":{"estimatedCost":-10}}}`, "invalid_budget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/budget?lang=sv", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			HandlePut(svc, i18n.Default(), rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body httpext.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.NotEmpty(t, body.ErrorDescription)
		})
	}
}
