package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaihtoaktivaattori/portal/internal/auth"
	"github.com/vaihtoaktivaattori/portal/internal/config"
	"github.com/vaihtoaktivaattori/portal/internal/services"
	budgetsvc "github.com/vaihtoaktivaattori/portal/internal/services/budget"
	"github.com/vaihtoaktivaattori/portal/internal/services/chat"
	"github.com/vaihtoaktivaattori/portal/internal/services/chat/models"
	"github.com/vaihtoaktivaattori/portal/pkg/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/budgetsync"
	"github.com/vaihtoaktivaattori/portal/pkg/chatstream"
	"github.com/vaihtoaktivaattori/portal/pkg/debounce"
)

var routerSecret = []byte("router-test-secret")

type echoChat struct{}

func (echoChat) StreamTurn(ctx context.Context, turn chat.Turn, emit chat.Emit) error {
	for _, part := range []string{"Erasmus+ ", "on EU:n ", "vaihto-ohjelma."} {
		if err := emit(models.Delta(part)); err != nil {
			return err
		}
	}
	return emit(models.Done("Erasmus+ on EU:n vaihto-ohjelma."))
}

func newTestServer(t *testing.T) (*httptest.Server, *budgetsvc.Service) {
	t.Helper()
	t.Cleanup(config.SetJWTSecret(routerSecret))

	budgets := budgetsvc.NewService(context.Background(), nil)
	server := httptest.NewServer(NewRouter(services.New(echoChat{}, budgets, nil)))
	t.Cleanup(server.Close)
	return server, budgets
}

func token(t *testing.T, scopes ...string) string {
	t.Helper()
	signed, err := auth.IssueToken(routerSecret, "student-1", scopes, time.Hour)
	require.NoError(t, err)
	return signed
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, healthResponse{Status: "ok", Redis: false}, body)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/v1/chat/turn", "application/json", strings.NewReader(`{"messages":[{"role":"user","content":"Hei"}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/v1/budget", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, auth.ScopeChat))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestChatTurnThroughConsumer(t *testing.T) {
	server, _ := newTestServer(t)
	client := chatstream.NewClient(server.URL + "/v1/chat").SetToken(token(t, auth.ScopeChat))
	conv := chatstream.NewConversation()

	completed := make(chan struct{})
	_, call := conv.Ask(context.Background(), client, "Mikä on Erasmus+?", chatstream.ToolsState{}, nil, chatstream.Callbacks{
		OnComplete: func() { close(completed) },
	})
	require.NoError(t, call.Wait())

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("OnComplete was not called")
	}

	messages := conv.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "Erasmus+ on EU:n vaihto-ohjelma.", messages[1].Content)
	assert.True(t, messages[1].Complete)
	assert.Equal(t, chatstream.StateCompleted, call.State())
}

func TestBudgetEditorAgainstService(t *testing.T) {
	server, budgets := newTestServer(t)
	client := budgetsync.NewClient(server.URL + "/v1").SetToken(token(t, auth.ScopeBudget))

	editor := budgetsync.NewEditor(client, debounce.Options{QuietPeriod: time.Hour})
	_, err := editor.Load(context.Background(), client)
	require.NoError(t, err)

	_, err = editor.SetEstimatedCost("rent", 450)
	require.NoError(t, err)
	_, err = editor.Step("rent", -500)
	require.NoError(t, err)
	_, err = editor.SetEstimatedCost("travel", 120.5)
	require.NoError(t, err)
	require.NoError(t, editor.Close(context.Background()))

	stored, err := budgets.Get(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]budget.Category{
		"rent":   {EstimatedCost: 0},
		"travel": {EstimatedCost: 120.5},
	}, stored.Categories)
	assert.Equal(t, 120.5, stored.Total)
	assert.NotEmpty(t, stored.ID)
}
