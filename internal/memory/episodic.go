package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	cerrors "github.com/whytcard/cortex/internal/errors"
	"github.com/whytcard/cortex/internal/store"
)

// Episode is a single recorded event within a session (a tool call, an
// observation, a decision) ordered by occurrence.
type Episode struct {
	ID        string
	SessionID string
	Type      string // episode_type, e.g. "tool_call", "observation", "decision"
	Content   string
	Metadata  map[string]string
	Timestamp time.Time
}

// Session groups a sequence of Episodes under one conversation or task run.
type Session struct {
	ID        string
	Name      string
	StartedAt time.Time
	EndedAt   *time.Time
}

// EpisodicStats summarizes episodic memory contents.
type EpisodicStats struct {
	TotalSessions int
	TotalEpisodes int
}

const (
	episodicTagSession = "session"
	episodicTagEpisode = "episode"
)

func sessionDocID(id string) string { return fmt.Sprintf("session:%s", id) }
func episodeDocID(id string) string { return fmt.Sprintf("episode:%s", id) }

// episodeEnvelope is the JSON body stored in Document.Content for an episode,
// since an episode needs structured fields (session, type, timestamp) beyond
// the plain text that Document.Content otherwise holds.
type episodeEnvelope struct {
	SessionID string            `json:"session_id"`
	Type      string            `json:"type"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type sessionEnvelope struct {
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// EpisodicMemory records sessions and their episodes as Documents, using
// formatted IDs ("session:<id>", "episode:<id>") so a single store.Store
// namespace holds both without a parallel table or a separate Document.Key
// lookup.
type EpisodicMemory struct {
	store store.Store
}

// NewEpisodicMemory wires an EpisodicMemory over an already-open store.
func NewEpisodicMemory(st store.Store) *EpisodicMemory {
	return &EpisodicMemory{store: st}
}

// StartSession creates a new session and returns its ID.
func (m *EpisodicMemory) StartSession(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	env := sessionEnvelope{Name: name, StartedAt: time.Now().UTC()}
	body, err := json.Marshal(env)
	if err != nil {
		return "", cerrors.InternalError("marshal session envelope", err)
	}

	_, err = m.store.CreateDocument(ctx, &store.Document{
		ID:      sessionDocID(id),
		Content: string(body),
		Tags:    []string{episodicTagSession},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// EndSession marks a session as finished.
func (m *EpisodicMemory) EndSession(ctx context.Context, sessionID string) error {
	docID := sessionDocID(sessionID)
	doc, err := m.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	var env sessionEnvelope
	if err := json.Unmarshal([]byte(doc.Content), &env); err != nil {
		return cerrors.ParseError("unmarshal session envelope", err)
	}
	now := time.Now().UTC()
	env.EndedAt = &now

	body, err := json.Marshal(env)
	if err != nil {
		return cerrors.InternalError("marshal session envelope", err)
	}
	_, err = m.store.UpdateDocument(ctx, docID, &store.Document{Content: string(body)})
	return err
}

// GetSession fetches a session by ID.
func (m *EpisodicMemory) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	doc, err := m.store.GetDocument(ctx, sessionDocID(sessionID))
	if err != nil {
		return nil, err
	}
	var env sessionEnvelope
	if err := json.Unmarshal([]byte(doc.Content), &env); err != nil {
		return nil, cerrors.ParseError("unmarshal session envelope", err)
	}
	return &Session{ID: sessionID, Name: env.Name, StartedAt: env.StartedAt, EndedAt: env.EndedAt}, nil
}

// RecordEpisode appends an episode to a session and returns its ID.
func (m *EpisodicMemory) RecordEpisode(ctx context.Context, sessionID, episodeType, content string, metadata map[string]string) (string, error) {
	id := uuid.NewString()
	env := episodeEnvelope{
		SessionID: sessionID,
		Type:      episodeType,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", cerrors.InternalError("marshal episode envelope", err)
	}

	_, err = m.store.CreateDocument(ctx, &store.Document{
		ID:      episodeDocID(id),
		Content: string(body),
		Tags:    []string{episodicTagEpisode, episodeType},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetEpisodes returns every episode belonging to sessionID, oldest first.
func (m *EpisodicMemory) GetEpisodes(ctx context.Context, sessionID string) ([]*Episode, error) {
	docs, err := m.store.ListDocuments(ctx, store.DocumentFilter{Tags: []string{episodicTagEpisode}, Limit: 10000})
	if err != nil {
		return nil, err
	}

	var episodes []*Episode
	for _, doc := range docs {
		var env episodeEnvelope
		if err := json.Unmarshal([]byte(doc.Content), &env); err != nil {
			continue
		}
		if env.SessionID != sessionID {
			continue
		}
		episodes = append(episodes, episodeFromDoc(doc, env))
	}

	sortEpisodesByTimestamp(episodes)
	return episodes, nil
}

// GetRecent returns the most recent episodes, newest first, optionally
// filtered by episode type and/or session.
func (m *EpisodicMemory) GetRecent(ctx context.Context, limit int, episodeType, sessionID string) ([]*Episode, error) {
	if limit <= 0 {
		limit = 20
	}
	tags := []string{episodicTagEpisode}
	if episodeType != "" {
		tags = append(tags, episodeType)
	}

	docs, err := m.store.ListDocuments(ctx, store.DocumentFilter{Tags: tags, Limit: limit * 4})
	if err != nil {
		return nil, err
	}

	var episodes []*Episode
	for _, doc := range docs {
		var env episodeEnvelope
		if err := json.Unmarshal([]byte(doc.Content), &env); err != nil {
			continue
		}
		// ListDocuments matches any-of tags; every episode also carries the
		// shared "episode" tag, so the type tag alone doesn't narrow the
		// result. Re-check the type explicitly.
		if episodeType != "" && env.Type != episodeType {
			continue
		}
		if sessionID != "" && env.SessionID != sessionID {
			continue
		}
		episodes = append(episodes, episodeFromDoc(doc, env))
		if len(episodes) >= limit {
			break
		}
	}
	return episodes, nil
}

// Search returns episodes whose content contains querySubstring
// (case-insensitive), optionally filtered by episode type, newest first.
// The backing fetch is bounded to 2*limit documents before filtering.
func (m *EpisodicMemory) Search(ctx context.Context, querySubstring, episodeType string, limit int) ([]*Episode, error) {
	if limit <= 0 {
		limit = 20
	}
	tags := []string{episodicTagEpisode}
	if episodeType != "" {
		tags = append(tags, episodeType)
	}

	docs, err := m.store.ListDocuments(ctx, store.DocumentFilter{Tags: tags, Limit: 2 * limit})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(querySubstring)
	var episodes []*Episode
	for _, doc := range docs {
		var env episodeEnvelope
		if err := json.Unmarshal([]byte(doc.Content), &env); err != nil {
			continue
		}
		// Same any-of tag caveat as GetRecent: re-check the type explicitly.
		if episodeType != "" && env.Type != episodeType {
			continue
		}
		if !strings.Contains(strings.ToLower(env.Content), needle) {
			continue
		}
		episodes = append(episodes, episodeFromDoc(doc, env))
		if len(episodes) >= limit {
			break
		}
	}
	return episodes, nil
}

// CleanupOld deletes episodes recorded more than retentionDays ago, within a
// bounded recent window (the most recent 1000 episode documents), and
// returns the number deleted.
func (m *EpisodicMemory) CleanupOld(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	docs, err := m.store.ListDocuments(ctx, store.DocumentFilter{Tags: []string{episodicTagEpisode}, Limit: 1000})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, doc := range docs {
		var env episodeEnvelope
		if err := json.Unmarshal([]byte(doc.Content), &env); err != nil {
			continue
		}
		if env.Timestamp.Before(cutoff) {
			if err := m.store.DeleteDocument(ctx, doc.ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func episodeFromDoc(doc *store.Document, env episodeEnvelope) *Episode {
	id := doc.ID
	const prefix = "episode:"
	if len(id) > len(prefix) {
		id = id[len(prefix):]
	}
	return &Episode{
		ID:        id,
		SessionID: env.SessionID,
		Type:      env.Type,
		Content:   env.Content,
		Metadata:  env.Metadata,
		Timestamp: env.Timestamp,
	}
}

func sortEpisodesByTimestamp(episodes []*Episode) {
	for i := 1; i < len(episodes); i++ {
		for j := i; j > 0 && episodes[j-1].Timestamp.After(episodes[j].Timestamp); j-- {
			episodes[j-1], episodes[j] = episodes[j], episodes[j-1]
		}
	}
}

// Stats reports the number of sessions and episodes recorded.
func (m *EpisodicMemory) Stats(ctx context.Context) (*EpisodicStats, error) {
	sessions, err := m.store.ListDocuments(ctx, store.DocumentFilter{Tags: []string{episodicTagSession}, Limit: 100000})
	if err != nil {
		return nil, err
	}
	episodes, err := m.store.ListDocuments(ctx, store.DocumentFilter{Tags: []string{episodicTagEpisode}, Limit: 100000})
	if err != nil {
		return nil, err
	}
	return &EpisodicStats{TotalSessions: len(sessions), TotalEpisodes: len(episodes)}, nil
}
