package chatstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationAskEndToEnd(t *testing.T) {
	var received TurnRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, `data: {"event":"response.function_tool_call.in_progress","data":{"name":"faq_search"}}`+"\n\n")
		for _, part := range []string{"Erasmus+ ", "on EU:n ", "vaihto-ohjelma."} {
			io.WriteString(w, deltaLine(part))
			flusher.Flush()
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	conv := NewConversation()
	conv.SetSystemPrompt("Vastaa lyhyesti.")

	var updates, completes int
	id, call := conv.Ask(context.Background(), NewClient(server.URL), "Mikä on Erasmus+?", ToolsState{}, func(string) {
		updates++
	}, Callbacks{OnComplete: func() { completes++ }})

	require.NoError(t, call.Wait())
	assert.Equal(t, 1, completes)
	assert.Equal(t, 4, updates)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, id, msgs[1].ID)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "Erasmus+ on EU:n vaihto-ohjelma.", msgs[1].Content)
	assert.True(t, msgs[1].Complete)
	assert.False(t, msgs[1].Failed)
	require.Len(t, msgs[1].Tools, 1)
	assert.Equal(t, "faq_search", msgs[1].Tools[0].Name)

	assert.Equal(t, []Turn{
		{Role: "system", Content: "Vastaa lyhyesti."},
		{Role: "user", Content: "Mikä on Erasmus+?"},
	}, received.Messages)

	assert.Equal(t, []Turn{
		{Role: "system", Content: "Vastaa lyhyesti."},
		{Role: "user", Content: "Mikä on Erasmus+?"},
		{Role: "assistant", Content: "Erasmus+ on EU:n vaihto-ohjelma."},
	}, conv.History())
}

func TestConversationKeepsPartialContentOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, deltaLine("Hakuaika päättyy "))
		io.WriteString(w, `data: {"event":"error","data":{"message":"upstream timeout"}}`+"\n\n")
	}))
	defer server.Close()

	conv := NewConversation()
	var gotErr error
	_, call := conv.Ask(context.Background(), NewClient(server.URL), "Milloin haku päättyy?", ToolsState{}, nil,
		Callbacks{OnError: func(err error) { gotErr = err }})

	require.Error(t, call.Wait())
	require.Error(t, gotErr)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hakuaika päättyy ", msgs[1].Content)
	assert.True(t, msgs[1].Failed)

	// failed turns are not sent upstream again
	assert.Equal(t, []Turn{{Role: "user", Content: "Milloin haku päättyy?"}}, conv.History())
}
