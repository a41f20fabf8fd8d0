package chat

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaihtoaktivaattori/portal/internal/i18n"
	"github.com/vaihtoaktivaattori/portal/internal/services/chat"
	"github.com/vaihtoaktivaattori/portal/internal/services/chat/models"
	"github.com/vaihtoaktivaattori/portal/pkg/chatstream"
)

type scriptedChat struct {
	events []models.Event
	err    error
	got    chat.Turn
}

func (s *scriptedChat) StreamTurn(ctx context.Context, turn chat.Turn, emit chat.Emit) error {
	s.got = turn
	for _, ev := range s.events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return s.err
}

func postTurn(t *testing.T, svc chat.Service, body string, lang string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/turn", strings.NewReader(body))
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	rec := httptest.NewRecorder()
	HandleTurn(svc, i18n.Default(), rec, req)
	return rec
}

func parseStream(t *testing.T, body string) []chatstream.StreamEvent {
	t.Helper()
	var events []chatstream.StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		ev, ok, err := chatstream.ParseLine(scanner.Text())
		require.NoError(t, err)
		if ok {
			events = append(events, ev)
		}
	}
	return events
}

func TestHandleTurnStreamsEvents(t *testing.T) {
	svc := &scriptedChat{events: []models.Event{
		models.ToolInProgress("call_1", "get_budget"),
		models.ToolCompleted("call_1", "get_budget"),
		models.Delta("Erasmus+ "),
		models.Delta("on EU:n vaihto-ohjelma."),
		models.Done("Erasmus+ on EU:n vaihto-ohjelma."),
	}}

	rec := postTurn(t, svc, `{"messages":[{"role":"user","content":"Mikä on Erasmus+?"}],"toolsState":{"fileSearchEnabled":true}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseStream(t, rec.Body.String())
	require.Len(t, events, 5)
	assert.Equal(t, chatstream.KindToolCall, events[0].Kind)
	assert.Equal(t, chatstream.ToolInProgress, events[0].Status)
	assert.Equal(t, chatstream.ToolCompleted, events[1].Status)
	assert.Equal(t, "Erasmus+ ", events[2].Content)
	assert.Equal(t, "on EU:n vaihto-ohjelma.", events[3].Content)
	assert.Equal(t, chatstream.KindDone, events[4].Kind)

	assert.True(t, svc.got.Tools.FileSearchEnabled)
	assert.Equal(t, "Mikä on Erasmus+?", svc.got.Messages[0].Content)
}

func TestHandleTurnReportsUpstreamRateLimit(t *testing.T) {
	svc := &scriptedChat{
		events: []models.Event{models.Delta("Hei")},
		err:    &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "Rate limit reached"},
	}

	rec := postTurn(t, svc, `{"messages":[{"role":"user","content":"Hei"}]}`, "en")
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseStream(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, chatstream.KindError, events[1].Kind)
	assert.True(t, events[1].RateLimited)
	assert.Equal(t, i18n.Default().Message("en", "chat.rate_limited"), events[1].Message)
	assert.Equal(t, chatstream.KindDone, events[2].Kind)
}

func TestHandleTurnGenericFailure(t *testing.T) {
	rec := postTurn(t, &scriptedChat{err: errors.New("upstream exploded")}, `{"messages":[{"role":"user","content":"Hei"}]}`, "")

	events := parseStream(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.False(t, events[0].RateLimited)
	assert.Equal(t, i18n.Default().Message("fi", "chat.error"), events[0].Message)
}

func TestHandleTurnValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"messages":`},
		{"no messages", `{"messages":[]}`},
		{"unknown role", `{"messages":[{"role":"robot","content":"beep"}]}`},
		{"empty content", `{"messages":[{"role":"user","content":""}]}`},
		{"last turn from assistant", `{"messages":[{"role":"user","content":"Hei"},{"role":"assistant","content":"Moi"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &scriptedChat{}
			rec := postTurn(t, svc, tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid_request")
			assert.Nil(t, svc.got.Messages, "service must not be called")
		})
	}
}
