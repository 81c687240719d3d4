package sqliteadapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS vote_progress (
	poll_id TEXT NOT NULL,
	participant_key TEXT NOT NULL,
	votes_used INTEGER NOT NULL DEFAULT 0 CHECK(votes_used >= 0),
	resume_counter INTEGER NOT NULL DEFAULT 1,
	max_votes_override INTEGER,
	completed INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (poll_id, participant_key)
);

CREATE TABLE IF NOT EXISTS ballot_drafts (
	poll_id TEXT NOT NULL,
	participant_key TEXT NOT NULL,
	ballot TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (poll_id, participant_key)
);

CREATE TABLE IF NOT EXISTS participant_current_poll (
	participant_key TEXT PRIMARY KEY,
	poll_id TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store persists progress in a local SQLite file so a restarted client
// resumes where it stopped.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return s.logError("vote_sqlite_migrate_failed", err)
	}
	return nil
}

func (s *Store) GetProgress(
	ctx context.Context,
	pollID string,
	participantKey string,
) (entities.VoteProgress, bool, error) {
	var (
		progress  entities.VoteProgress
		override  sql.NullInt64
		completed int
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT poll_id, participant_key, votes_used, resume_counter, max_votes_override, completed, updated_at
		FROM vote_progress
		WHERE poll_id = ? AND participant_key = ?
	`, strings.TrimSpace(pollID), strings.TrimSpace(participantKey)).Scan(
		&progress.PollID,
		&progress.ParticipantKey,
		&progress.VotesUsed,
		&progress.ResumeCounter,
		&override,
		&completed,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.VoteProgress{}, false, nil
	}
	if err != nil {
		return entities.VoteProgress{}, false, s.logError("vote_sqlite_get_progress_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"participant_key", strings.TrimSpace(participantKey),
		)
	}
	if override.Valid {
		value := int(override.Int64)
		progress.MaxVotesOverride = &value
	}
	progress.Completed = completed != 0
	progress.UpdatedAt = parseTime(updatedAt)
	return progress, true, nil
}

func (s *Store) SaveProgress(ctx context.Context, progress entities.VoteProgress) error {
	var override sql.NullInt64
	if progress.MaxVotesOverride != nil {
		override = sql.NullInt64{Int64: int64(*progress.MaxVotesOverride), Valid: true}
	}
	completed := 0
	if progress.Completed {
		completed = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vote_progress (poll_id, participant_key, votes_used, resume_counter, max_votes_override, completed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(poll_id, participant_key) DO UPDATE SET
			votes_used = excluded.votes_used,
			resume_counter = excluded.resume_counter,
			max_votes_override = excluded.max_votes_override,
			completed = excluded.completed,
			updated_at = excluded.updated_at
	`,
		strings.TrimSpace(progress.PollID),
		strings.TrimSpace(progress.ParticipantKey),
		progress.VotesUsed,
		progress.ResumeCounter,
		override,
		completed,
		formatTime(progress.UpdatedAt),
	)
	if err != nil {
		return s.logError("vote_sqlite_save_progress_failed", err,
			"poll_id", strings.TrimSpace(progress.PollID),
			"participant_key", strings.TrimSpace(progress.ParticipantKey),
		)
	}
	return nil
}

func (s *Store) GetCurrentPoll(ctx context.Context, participantKey string) (string, bool, error) {
	var pollID string
	err := s.db.QueryRowContext(ctx,
		"SELECT poll_id FROM participant_current_poll WHERE participant_key = ?",
		strings.TrimSpace(participantKey),
	).Scan(&pollID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.logError("vote_sqlite_get_current_poll_failed", err,
			"participant_key", strings.TrimSpace(participantKey),
		)
	}
	return pollID, true, nil
}

func (s *Store) SetCurrentPoll(ctx context.Context, participantKey string, pollID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participant_current_poll (participant_key, poll_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(participant_key) DO UPDATE SET
			poll_id = excluded.poll_id,
			updated_at = excluded.updated_at
	`, strings.TrimSpace(participantKey), strings.TrimSpace(pollID), formatTime(time.Now()))
	if err != nil {
		return s.logError("vote_sqlite_set_current_poll_failed", err,
			"participant_key", strings.TrimSpace(participantKey),
			"poll_id", strings.TrimSpace(pollID),
		)
	}
	return nil
}

func (s *Store) SaveDraft(ctx context.Context, draft entities.BallotDraft) error {
	payload, err := json.Marshal(draftPayload{
		Abstain:           draft.Ballot.Abstain,
		SingleAnswerID:    draft.Ballot.SingleAnswerID,
		MultipleAnswerIDs: draft.Ballot.MultipleAnswerIDs,
		UseAllVotes:       draft.Ballot.UseAllVotes,
	})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ballot_drafts (poll_id, participant_key, ballot, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(poll_id, participant_key) DO UPDATE SET
			ballot = excluded.ballot,
			updated_at = excluded.updated_at
	`, strings.TrimSpace(draft.PollID), strings.TrimSpace(draft.ParticipantKey), string(payload), formatTime(draft.UpdatedAt))
	if err != nil {
		return s.logError("vote_sqlite_save_draft_failed", err,
			"poll_id", strings.TrimSpace(draft.PollID),
			"participant_key", strings.TrimSpace(draft.ParticipantKey),
		)
	}
	return nil
}

func (s *Store) GetDraft(
	ctx context.Context,
	pollID string,
	participantKey string,
) (entities.BallotDraft, bool, error) {
	var raw, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT ballot, updated_at FROM ballot_drafts WHERE poll_id = ? AND participant_key = ?",
		strings.TrimSpace(pollID), strings.TrimSpace(participantKey),
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.BallotDraft{}, false, nil
	}
	if err != nil {
		return entities.BallotDraft{}, false, s.logError("vote_sqlite_get_draft_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"participant_key", strings.TrimSpace(participantKey),
		)
	}
	var payload draftPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return entities.BallotDraft{}, false, err
	}
	return entities.BallotDraft{
		PollID:         strings.TrimSpace(pollID),
		ParticipantKey: strings.TrimSpace(participantKey),
		Ballot: entities.Ballot{
			Abstain:           payload.Abstain,
			SingleAnswerID:    payload.SingleAnswerID,
			MultipleAnswerIDs: payload.MultipleAnswerIDs,
			UseAllVotes:       payload.UseAllVotes,
		},
		UpdatedAt: parseTime(updatedAt),
	}, true, nil
}

func (s *Store) DeleteDraft(ctx context.Context, pollID string, participantKey string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM ballot_drafts WHERE poll_id = ? AND participant_key = ?",
		strings.TrimSpace(pollID), strings.TrimSpace(participantKey),
	)
	if err != nil {
		return s.logError("vote_sqlite_delete_draft_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"participant_key", strings.TrimSpace(participantKey),
		)
	}
	return nil
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("vote progress sqlite operation failed", fields...)
	return err
}

type draftPayload struct {
	Abstain           bool     `json:"abstain,omitempty"`
	SingleAnswerID    string   `json:"single_answer_id,omitempty"`
	MultipleAnswerIDs []string `json:"multiple_answer_ids,omitempty"`
	UseAllVotes       bool     `json:"use_all_votes,omitempty"`
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		value = time.Now()
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

var _ ports.ProgressRepository = (*Store)(nil)
var _ ports.DraftRepository = (*Store)(nil)
