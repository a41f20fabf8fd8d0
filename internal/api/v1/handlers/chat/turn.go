package chat

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	v1mware "github.com/vaihtoaktivaattori/portal/internal/api/v1/middleware"
	"github.com/vaihtoaktivaattori/portal/internal/i18n"
	"github.com/vaihtoaktivaattori/portal/internal/services/chat"
	"github.com/vaihtoaktivaattori/portal/internal/services/chat/models"
	"github.com/vaihtoaktivaattori/portal/pkg/chatstream"
	"github.com/vaihtoaktivaattori/portal/pkg/httpext"
)

// use a single instance of Validate, it caches struct info
var validate = validator.New(validator.WithRequiredStructEnabled())

// HandleTurn streams the answer to one chat turn as server-sent events.
// Once the stream has started, failures are reported as error events.
func HandleTurn(chatService chat.Service, catalog *i18n.Catalog, w http.ResponseWriter, r *http.Request) {
	lang := catalog.FromRequest(r)

	var req chatstream.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed JSON request")
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: catalog.Message(lang, "request.invalid"),
		})
		return
	}

	if err := validateTurn(req); err != nil {
		log.Warn().Err(err).Msg("Request validation failed")
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: fmt.Sprintf("%s: %v", catalog.Message(lang, "request.invalid"), err),
		})
		return
	}

	sse, err := httpext.NewSSEWriter(w)
	if err != nil {
		log.Error().Err(err).Msg("Cannot stream chat turn")
		httpext.JsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	userID := v1mware.UserID(r)
	log.Info().
		Str("user_id", userID).
		Int("message_count", len(req.Messages)).
		Strs("tools", req.ToolsState.Enabled()).
		Msg("Received chat turn request")

	turn := chat.Turn{
		UserID:   userID,
		Messages: req.Messages,
		Tools:    req.ToolsState,
	}

	err = chatService.StreamTurn(r.Context(), turn, func(ev models.Event) error {
		return sse.Data(ev)
	})
	if err != nil {
		if r.Context().Err() != nil {
			log.Debug().Err(err).Str("user_id", userID).Msg("Client left during chat turn")
			return
		}

		rateLimited := chat.IsRateLimited(err)
		key := "chat.error"
		if rateLimited {
			key = "chat.rate_limited"
		}
		log.Error().Err(err).Str("user_id", userID).Bool("rate_limited", rateLimited).Msg("Chat turn failed")

		if sendErr := sse.Data(models.ErrorEvent(catalog.Message(lang, key), rateLimited)); sendErr != nil {
			log.Debug().Err(sendErr).Msg("Failed to send error event")
			return
		}
	}

	if err := sse.Done(); err != nil {
		log.Debug().Err(err).Msg("Failed to terminate event stream")
	}
}

func validateTurn(req chatstream.TurnRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	if last := req.Messages[len(req.Messages)-1]; last.Role != "user" {
		return fmt.Errorf("last message must come from the user, got %q", last.Role)
	}
	return nil
}
