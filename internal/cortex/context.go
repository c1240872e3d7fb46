package cortex

import (
	"time"

	"github.com/google/uuid"
)

// QueryRecord is one entry in the recent-activity log kept by
// ContextManager.
type QueryRecord struct {
	Query     string
	Intent    string
	Success   bool
	Timestamp time.Time
}

// ActiveContext is a read-only snapshot of the ContextManager's state.
type ActiveContext struct {
	SessionID     string
	Workspace     string
	StartedAt     time.Time
	RecentQueries []QueryRecord
}

const maxRecentQueries = 20

// ContextManager tracks the active session id, workspace, and a bounded
// window of recent queries — the short-term memory a running engine
// keeps about "what's happening right now", distinct from the persisted
// episodic/semantic/procedural stores.
type ContextManager struct {
	sessionID string
	workspace string
	startedAt time.Time
	recent    []QueryRecord
}

// NewContextManager creates an empty ContextManager with no active
// session.
func NewContextManager() *ContextManager {
	return &ContextManager{}
}

// StartSession begins a new session and returns its id.
func (c *ContextManager) StartSession() string {
	return c.StartSessionWithID(uuid.NewString())
}

// StartSessionWithID begins a new session under a caller-supplied id, so
// the context's notion of "active session" can be kept in lockstep with
// an id minted elsewhere (e.g. episodic memory's session document).
func (c *ContextManager) StartSessionWithID(sessionID string) string {
	c.sessionID = sessionID
	c.startedAt = time.Now().UTC()
	c.recent = nil
	return c.sessionID
}

// EndSession clears the active session id.
func (c *ContextManager) EndSession() {
	c.sessionID = ""
}

// SetWorkspace records the workspace path for the active session.
func (c *ContextManager) SetWorkspace(path string) {
	c.workspace = path
}

// Workspace returns the active session's workspace path, or "" if unset.
func (c *ContextManager) Workspace() string {
	return c.workspace
}

// RecordQuery appends a query outcome to the recent-activity window,
// dropping the oldest entry once the window is full.
func (c *ContextManager) RecordQuery(query, intent string, success bool) {
	c.recent = append(c.recent, QueryRecord{Query: query, Intent: intent, Success: success, Timestamp: time.Now().UTC()})
	if len(c.recent) > maxRecentQueries {
		c.recent = c.recent[len(c.recent)-maxRecentQueries:]
	}
}

// GetContext returns a snapshot of the current state.
func (c *ContextManager) GetContext() ActiveContext {
	queries := make([]QueryRecord, len(c.recent))
	copy(queries, c.recent)
	return ActiveContext{
		SessionID:     c.sessionID,
		Workspace:     c.workspace,
		StartedAt:     c.startedAt,
		RecentQueries: queries,
	}
}
