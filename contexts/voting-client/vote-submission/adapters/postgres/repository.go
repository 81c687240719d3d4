package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
	"ballotcast/contexts/voting-client/vote-submission/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the progress tables when they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&progressModel{}, &draftModel{}, &currentPollModel{}); err != nil {
		return r.logError("vote_repo_migrate_failed", err)
	}
	return nil
}

func (r *Repository) GetProgress(
	ctx context.Context,
	pollID string,
	participantKey string,
) (entities.VoteProgress, bool, error) {
	var row progressModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("participant_key = ?", strings.TrimSpace(participantKey)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteProgress{}, false, nil
		}
		return entities.VoteProgress{}, false, r.logError("vote_repo_get_progress_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"participant_key", strings.TrimSpace(participantKey),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) SaveProgress(ctx context.Context, progress entities.VoteProgress) error {
	row := progressModelFromEntity(progress)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "poll_id"}, {Name: "participant_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"votes_used":         row.VotesUsed,
			"resume_counter":     row.ResumeCounter,
			"max_votes_override": row.MaxVotesOverride,
			"completed":          row.Completed,
			"updated_at":         row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if pgErrorCode(create.Error) == pgCheckViolation {
			return domainerrors.ErrInvalidProgressInput
		}
		return r.logError("vote_repo_save_progress_failed", create.Error,
			"poll_id", row.PollID,
			"participant_key", row.ParticipantKey,
		)
	}
	return nil
}

func (r *Repository) GetCurrentPoll(ctx context.Context, participantKey string) (string, bool, error) {
	var row currentPollModel
	err := r.db.WithContext(ctx).
		Where("participant_key = ?", strings.TrimSpace(participantKey)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, r.logError("vote_repo_get_current_poll_failed", err,
			"participant_key", strings.TrimSpace(participantKey),
		)
	}
	return row.PollID, true, nil
}

func (r *Repository) SetCurrentPoll(ctx context.Context, participantKey string, pollID string) error {
	row := currentPollModel{
		ParticipantKey: strings.TrimSpace(participantKey),
		PollID:         strings.TrimSpace(pollID),
		UpdatedAt:      time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "participant_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"poll_id":    row.PollID,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("vote_repo_set_current_poll_failed", create.Error,
			"participant_key", row.ParticipantKey,
			"poll_id", row.PollID,
		)
	}
	return nil
}

func (r *Repository) SaveDraft(ctx context.Context, draft entities.BallotDraft) error {
	payload, err := json.Marshal(ballotPayloadFromEntity(draft.Ballot))
	if err != nil {
		return err
	}
	row := draftModel{
		PollID:         strings.TrimSpace(draft.PollID),
		ParticipantKey: strings.TrimSpace(draft.ParticipantKey),
		Ballot:         payload,
		UpdatedAt:      draft.UpdatedAt.UTC(),
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "poll_id"}, {Name: "participant_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"ballot":     row.Ballot,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("vote_repo_save_draft_failed", create.Error,
			"poll_id", row.PollID,
			"participant_key", row.ParticipantKey,
		)
	}
	return nil
}

func (r *Repository) GetDraft(
	ctx context.Context,
	pollID string,
	participantKey string,
) (entities.BallotDraft, bool, error) {
	var row draftModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("participant_key = ?", strings.TrimSpace(participantKey)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.BallotDraft{}, false, nil
		}
		return entities.BallotDraft{}, false, r.logError("vote_repo_get_draft_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"participant_key", strings.TrimSpace(participantKey),
		)
	}
	var payload ballotPayload
	if err := json.Unmarshal(row.Ballot, &payload); err != nil {
		return entities.BallotDraft{}, false, err
	}
	return entities.BallotDraft{
		PollID:         row.PollID,
		ParticipantKey: row.ParticipantKey,
		Ballot:         payload.toEntity(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}, true, nil
}

func (r *Repository) DeleteDraft(ctx context.Context, pollID string, participantKey string) error {
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("participant_key = ?", strings.TrimSpace(participantKey)).
		Delete(&draftModel{}).
		Error
	if err != nil {
		return r.logError("vote_repo_delete_draft_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"participant_key", strings.TrimSpace(participantKey),
		)
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("vote progress repository operation failed", fields...)
	return err
}

type progressModel struct {
	PollID           string    `gorm:"column:poll_id;primaryKey"`
	ParticipantKey   string    `gorm:"column:participant_key;primaryKey"`
	VotesUsed        int       `gorm:"column:votes_used;not null;default:0;check:votes_used >= 0"`
	ResumeCounter    int       `gorm:"column:resume_counter;not null;default:1"`
	MaxVotesOverride *int      `gorm:"column:max_votes_override"`
	Completed        bool      `gorm:"column:completed;not null;default:false"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (progressModel) TableName() string {
	return "vote_progress"
}

func progressModelFromEntity(progress entities.VoteProgress) progressModel {
	row := progressModel{
		PollID:         strings.TrimSpace(progress.PollID),
		ParticipantKey: strings.TrimSpace(progress.ParticipantKey),
		VotesUsed:      progress.VotesUsed,
		ResumeCounter:  progress.ResumeCounter,
		Completed:      progress.Completed,
		UpdatedAt:      progress.UpdatedAt.UTC(),
	}
	if progress.MaxVotesOverride != nil {
		value := *progress.MaxVotesOverride
		row.MaxVotesOverride = &value
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	return row
}

func (m progressModel) toEntity() entities.VoteProgress {
	return entities.VoteProgress{
		PollID:           m.PollID,
		ParticipantKey:   m.ParticipantKey,
		VotesUsed:        m.VotesUsed,
		ResumeCounter:    m.ResumeCounter,
		MaxVotesOverride: m.MaxVotesOverride,
		Completed:        m.Completed,
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

type draftModel struct {
	PollID         string    `gorm:"column:poll_id;primaryKey"`
	ParticipantKey string    `gorm:"column:participant_key;primaryKey"`
	Ballot         []byte    `gorm:"column:ballot;type:jsonb"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (draftModel) TableName() string {
	return "ballot_drafts"
}

type currentPollModel struct {
	ParticipantKey string    `gorm:"column:participant_key;primaryKey"`
	PollID         string    `gorm:"column:poll_id;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (currentPollModel) TableName() string {
	return "participant_current_poll"
}

type ballotPayload struct {
	Abstain           bool     `json:"abstain,omitempty"`
	SingleAnswerID    string   `json:"single_answer_id,omitempty"`
	MultipleAnswerIDs []string `json:"multiple_answer_ids,omitempty"`
	UseAllVotes       bool     `json:"use_all_votes,omitempty"`
}

func ballotPayloadFromEntity(ballot entities.Ballot) ballotPayload {
	return ballotPayload{
		Abstain:           ballot.Abstain,
		SingleAnswerID:    ballot.SingleAnswerID,
		MultipleAnswerIDs: ballot.MultipleAnswerIDs,
		UseAllVotes:       ballot.UseAllVotes,
	}
}

func (p ballotPayload) toEntity() entities.Ballot {
	return entities.Ballot{
		Abstain:           p.Abstain,
		SingleAnswerID:    p.SingleAnswerID,
		MultipleAnswerIDs: p.MultipleAnswerIDs,
		UseAllVotes:       p.UseAllVotes,
	}
}

const pgCheckViolation = "23514"

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ ports.ProgressRepository = (*Repository)(nil)
var _ ports.DraftRepository = (*Repository)(nil)
