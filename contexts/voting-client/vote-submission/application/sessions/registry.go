package sessions

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
)

// Registry tracks which submission sessions may still send votes. It is shared
// by every coordinator in the process, so at most one session per participant
// is active at any time.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]entities.SubmissionSession
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]entities.SubmissionSession),
		logger:   application.ResolveLogger(logger),
	}
}

// Register activates session unless another active session already exists for
// the same participant. Check and insert happen under one lock.
func (r *Registry) Register(session entities.SubmissionSession) error {
	session.SessionID = strings.TrimSpace(session.SessionID)
	session.ParticipantKey = strings.TrimSpace(session.ParticipantKey)
	if session.SessionID == "" || session.ParticipantKey == "" {
		return domainerrors.ErrParticipantRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.sessions {
		if existing.Active && existing.ParticipantKey == session.ParticipantKey && id != session.SessionID {
			r.logger.Warn("submission session conflict",
				"event", "vote_session_conflict",
				"module", application.ModuleName,
				"layer", "application",
				"session_id", session.SessionID,
				"active_session_id", id,
				"participant_key", session.ParticipantKey,
			)
			return domainerrors.ErrSessionConflict
		}
	}
	session.Active = true
	r.sessions[session.SessionID] = session
	r.logger.Debug("submission session registered",
		"event", "vote_session_registered",
		"module", application.ModuleName,
		"layer", "application",
		"session_id", session.SessionID,
		"participant_key", session.ParticipantKey,
		"poll_id", session.PollID,
		"expected_votes", session.ExpectedVotes,
	)
	return nil
}

func (r *Registry) IsActive(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[strings.TrimSpace(sessionID)]
	return ok && session.Active
}

func (r *Registry) Get(sessionID string) (entities.SubmissionSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[strings.TrimSpace(sessionID)]
	return session, ok
}

// HasActive reports whether any session for the participant is still active.
func (r *Registry) HasActive(participantKey string) bool {
	participantKey = strings.TrimSpace(participantKey)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.Active && session.ParticipantKey == participantKey {
			return true
		}
	}
	return false
}

// Deactivate removes the session. Unknown ids are ignored.
func (r *Registry) Deactivate(sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	delete(r.sessions, sessionID)
	r.logger.Debug("submission session deactivated",
		"event", "vote_session_deactivated",
		"module", application.ModuleName,
		"layer", "application",
		"session_id", sessionID,
	)
}

// DeactivateAll ends every session, e.g. once the poll has closed.
func (r *Registry) DeactivateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := len(r.sessions)
	r.sessions = make(map[string]entities.SubmissionSession)
	if count > 0 {
		r.logger.Info("all submission sessions deactivated",
			"event", "vote_session_deactivated_all",
			"module", application.ModuleName,
			"layer", "application",
			"count", count,
		)
	}
}

// Snapshot lists active sessions ordered by start time.
func (r *Registry) Snapshot() []entities.SubmissionSession {
	r.mu.Lock()
	items := make([]entities.SubmissionSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		if session.Active {
			items = append(items, session)
		}
	}
	r.mu.Unlock()
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].SessionID < items[j].SessionID
		}
		return items[i].StartedAt.Before(items[j].StartedAt)
	})
	return items
}
