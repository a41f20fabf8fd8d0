package connections

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrTooManyConnections = errors.New("too many live connections for user")

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// DefaultMaxPerUser bounds the live budget sessions one user may hold.
const DefaultMaxPerUser = 4

// Manager tracks live budget sessions per user.
type Manager struct {
	mu         sync.RWMutex
	conns      map[*websocket.Conn]string
	perUser    map[string]int
	timeouts   TimeoutConfig
	maxPerUser int
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		conns:      make(map[*websocket.Conn]string),
		perUser:    make(map[string]int),
		timeouts:   timeouts,
		maxPerUser: DefaultMaxPerUser,
	}
}

// SetMaxPerUser changes the per user limit. Zero or less disables it.
func (m *Manager) SetMaxPerUser(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxPerUser = n
}

// Add registers conn for userID, failing when the user is at the limit.
func (m *Manager) Add(userID string, conn *websocket.Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[conn]; exists {
		return nil
	}
	if m.maxPerUser > 0 && m.perUser[userID] >= m.maxPerUser {
		return ErrTooManyConnections
	}
	m.conns[conn] = userID
	m.perUser[userID]++
	return nil
}

// Remove unregisters conn. Unknown connections are ignored.
func (m *Manager) Remove(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, exists := m.conns[conn]
	if !exists {
		return
	}
	delete(m.conns, conn)
	if m.perUser[userID] <= 1 {
		delete(m.perUser, userID)
	} else {
		m.perUser[userID]--
	}
}

// Count returns the current number of active connections
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// CountForUser returns the number of active connections of userID
func (m *Manager) CountForUser(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.perUser[userID]
}

// HasConnection checks if a specific connection exists
func (m *Manager) HasConnection(conn *websocket.Conn) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.conns[conn]
	return exists
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeouts
}

// SetTimeouts updates the timeout configuration
func (m *Manager) SetTimeouts(timeouts TimeoutConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = timeouts
}
