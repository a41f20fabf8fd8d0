package chat

import (
	"context"

	"github.com/vaihtoaktivaattori/portal/internal/services/chat/models"
	"github.com/vaihtoaktivaattori/portal/pkg/chatstream"
)

// Turn is one chat turn request from an authenticated user.
type Turn struct {
	UserID   string
	Messages []chatstream.Turn
	Tools    chatstream.ToolsState
}

// Emit writes one event to the client. An error stops the turn.
type Emit func(models.Event) error

// Service defines the interface for chat operations
type Service interface {
	// StreamTurn answers the conversation, emitting events as they arrive.
	// It returns once the answer is complete; the caller terminates the stream.
	StreamTurn(ctx context.Context, turn Turn, emit Emit) error
}
