package budget

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	v1mware "github.com/vaihtoaktivaattori/portal/internal/api/v1/middleware"
	"github.com/vaihtoaktivaattori/portal/internal/config"
	"github.com/vaihtoaktivaattori/portal/internal/connections"
	"github.com/vaihtoaktivaattori/portal/internal/i18n"
	budgetsvc "github.com/vaihtoaktivaattori/portal/internal/services/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/budgetsync"
	"github.com/vaihtoaktivaattori/portal/pkg/debounce"
)

const maxFrameSize = 8 << 10

// Message types sent to the client.
const (
	MessageSnapshot = "snapshot"
	MessageApplied  = "applied"
	MessageSaved    = "saved"
	MessageError    = "error"
)

var (
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Frame is one edit sent by the client. At least one of EstimatedCost and
// Notes must be present.
type Frame struct {
	Category      string   `json:"category" validate:"required,max=64"`
	EstimatedCost *float64 `json:"estimatedCost,omitempty"`
	Notes         *string  `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Message is one server frame.
type Message struct {
	Type     string           `json:"type"`
	Budget   *budget.Snapshot `json:"budget,omitempty"`
	Category string           `json:"category,omitempty"`
	Value    *budget.Category `json:"value,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type liveSession struct {
	userID   string
	conn     *websocket.Conn
	timeouts connections.TimeoutConfig
	service  *budgetsvc.Service
	editor   *budgetsync.Editor
	message  func(key string) string
	writeMu  sync.Mutex
	logger   zerolog.Logger
}

// HandleLive runs a websocket session in which budget edits are applied at
// once and persisted after a quiet period per category. Every save is
// reported back with the stored snapshot.
func HandleLive(budgetService *budgetsvc.Service, manager *connections.Manager, catalog *i18n.Catalog, w http.ResponseWriter, r *http.Request) {
	userID := v1mware.UserID(r)
	lang := catalog.FromRequest(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to upgrade live budget connection")
		return
	}
	defer conn.Close()

	if err := manager.Add(userID, conn); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Rejected live budget connection")
		deadline := time.Now().Add(manager.GetTimeouts().WriteWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), deadline)
		return
	}
	defer manager.Remove(conn)

	s := &liveSession{
		userID:   userID,
		conn:     conn,
		timeouts: manager.GetTimeouts(),
		service:  budgetService,
		message:  func(key string) string { return catalog.Message(lang, key) },
		logger:   log.With().Str("component", "budget_live").Str("user_id", userID).Logger(),
	}

	cfg := config.GetBudgetConfig()
	s.editor = budgetsync.NewEditor(s, debounce.Options{
		QuietPeriod:  cfg.QuietPeriod,
		GraceWindow:  cfg.GraceWindow,
		MaxDeferral:  cfg.MaxDeferral,
		FlushTimeout: cfg.FlushTimeout,
		Logger:       &s.logger,
	})

	current, err := budgetService.Get(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load budget for live session")
		s.send(Message{Type: MessageError, Error: s.message("chat.unavailable")})
		return
	}
	s.editor.ApplyRemote(current)
	s.send(Message{Type: MessageSnapshot, Budget: &current})

	s.logger.Info().Int("connections", manager.Count()).Msg("Live budget session opened")
	s.run(cfg.FlushTimeout)
}

func (s *liveSession) run(flushTimeout time.Duration) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepAlive(done)
	}()

	defer func() {
		close(done)
		wg.Wait()

		// pending edits are persisted even though nobody is listening
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := s.editor.Close(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Failed to flush budget on disconnect")
		}
		s.logger.Info().Msg("Live budget session closed")
	}()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.timeouts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.timeouts.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Unexpected live budget closure")
			}
			return
		}
		s.handleFrame(data)
	}
}

func (s *liveSession) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(s.timeouts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.timeouts.WriteWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

func (s *liveSession) handleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.reject("", err)
		return
	}
	if err := validate.Struct(frame); err != nil {
		s.reject(frame.Category, err)
		return
	}
	if frame.EstimatedCost == nil && frame.Notes == nil {
		s.send(Message{Type: MessageError, Category: frame.Category, Error: s.message("budget.invalid")})
		return
	}

	var (
		value budget.Category
		err   error
	)
	if frame.EstimatedCost != nil {
		value, err = s.editor.SetEstimatedCost(frame.Category, *frame.EstimatedCost)
	}
	if err == nil && frame.Notes != nil {
		value, err = s.editor.SetNotes(frame.Category, *frame.Notes)
	}
	if err != nil {
		s.reject(frame.Category, err)
		return
	}

	s.send(Message{Type: MessageApplied, Category: frame.Category, Value: &value})
}

func (s *liveSession) reject(category string, err error) {
	s.logger.Debug().Err(err).Str("category", category).Msg("Rejected live budget frame")
	s.send(Message{Type: MessageError, Category: category, Error: s.message("budget.invalid")})
}

// Put persists the session budget and reports the stored snapshot. It is
// called by the editor after each quiet period.
func (s *liveSession) Put(ctx context.Context, snap budget.Snapshot) (budget.Snapshot, error) {
	stored, err := s.service.Put(ctx, s.userID, snap)
	if err != nil {
		return budget.Snapshot{}, err
	}
	s.send(Message{Type: MessageSaved, Budget: &stored})
	return stored, nil
}

func (s *liveSession) send(msg Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeouts.WriteWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Str("type", msg.Type).Msg("Failed to send live budget message")
	}
}
