package chatstream

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Message is a conversation turn as shown to the user.
type Message struct {
	ID       string
	Role     string
	Content  string
	Complete bool
	Failed   bool
	Tools    []StreamEvent
}

// Conversation is an append-only list of turns. The assistant turn being
// streamed grows in place until it is finished.
type Conversation struct {
	mu       sync.Mutex
	messages []*Message
	system   string
}

func NewConversation() *Conversation {
	return &Conversation{}
}

// SetSystemPrompt sets a system turn sent ahead of every request.
func (c *Conversation) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = prompt
}

// AddUser appends a completed user turn and returns its id.
func (c *Conversation) AddUser(content string) string {
	return c.add(&Message{Role: "user", Content: content, Complete: true})
}

// BeginAssistant appends an empty assistant turn to stream into.
func (c *Conversation) BeginAssistant() string {
	return c.add(&Message{Role: "assistant"})
}

func (c *Conversation) add(m *Message) string {
	m.ID = uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	return m.ID
}

// Apply folds one stream event into the assistant turn id.
func (c *Conversation) Apply(id string, ev StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.findLocked(id)
	if m == nil || m.Complete {
		return
	}
	switch ev.Kind {
	case KindTextDelta:
		m.Content += ev.Content
	case KindToolCall:
		m.Tools = append(m.Tools, ev)
	}
}

// Finish marks the assistant turn complete. Content received before a
// failure is kept.
func (c *Conversation) Finish(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m := c.findLocked(id); m != nil {
		m.Complete = true
		m.Failed = err != nil
	}
}

func (c *Conversation) findLocked(id string) *Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return c.messages[i]
		}
	}
	return nil
}

// Messages returns a copy of every turn.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
		out[i].Tools = append([]StreamEvent(nil), m.Tools...)
	}
	return out
}

// History returns the turns to send upstream: the system prompt, then every
// completed turn with content. Failed or empty assistant turns are left out.
func (c *Conversation) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	var turns []Turn
	if c.system != "" {
		turns = append(turns, Turn{Role: "system", Content: c.system})
	}
	for _, m := range c.messages {
		if !m.Complete || m.Failed || strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// Ask appends content as a user turn and streams the reply into a new
// assistant turn. onUpdate, if set, runs after every event with the turn id;
// cb receives the terminal callback after the conversation was updated.
func (c *Conversation) Ask(ctx context.Context, client *Client, content string, tools ToolsState, onUpdate func(id string), cb Callbacks) (string, *Call) {
	c.AddUser(content)
	req := TurnRequest{Messages: c.History(), ToolsState: tools}
	id := c.BeginAssistant()

	call := client.Start(ctx, req, Callbacks{
		OnChunk: func(ev StreamEvent) {
			c.Apply(id, ev)
			if onUpdate != nil {
				onUpdate(id)
			}
			if cb.OnChunk != nil {
				cb.OnChunk(ev)
			}
		},
		OnComplete: func() {
			c.Finish(id, nil)
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
		},
		OnError: func(err error) {
			c.Finish(id, err)
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	})
	return id, call
}
