package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/application/lifecycle"
	"ballotcast/contexts/voting-client/vote-submission/application/progress"
	"ballotcast/contexts/voting-client/vote-submission/application/validation"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
	"ballotcast/contexts/voting-client/vote-submission/domain/services"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

const (
	defaultBatchSize       = 300
	defaultMaxInFlight     = 50
	defaultRetryAttempts   = 3
	defaultInterBatchDelay = 50 * time.Millisecond
	defaultCleanupSweeps   = 3
	defaultCleanupInterval = 250 * time.Millisecond
)

type Config struct {
	BatchSize   int
	MaxInFlight int
	// RetryAttempts is the number of retries after the first attempt of a batch.
	RetryAttempts   int
	RetryBase       time.Duration
	RetryCap        time.Duration
	InterBatchDelay time.Duration
	CleanupSweeps   int
	CleanupInterval time.Duration
}

// Dependencies are shared between all coordinators of a process except the
// coordinator's own UI state. Sessions, Progress and Monitor must be the same
// instances for every coordinator acting on behalf of one participant.
type Dependencies struct {
	Progress  progress.Store
	Sessions  ports.SessionRegistry
	Validator validation.AnswerValidator
	Monitor   *lifecycle.Monitor
	Gateway   ports.VoteGateway
	Polls     ports.PollSource
	Drafts    ports.DraftRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Sleeper   ports.Sleeper
	Metrics   ports.SubmissionMetrics
	// Jitter returns a random duration in [0, limit). Nil uses math/rand.
	Jitter func(limit time.Duration) time.Duration
	Logger *slog.Logger
}

type SubmitCommand struct {
	Ballot         *entities.Ballot
	Poll           *entities.Poll
	Participant    *entities.Participant
	RequestedVotes int
}

// SubmitResult reports what one HandleFormSubmit call achieved. Submitted is
// true when at least one vote was confirmed by the backend.
type SubmitResult struct {
	Submitted bool
	Confirmed int
	Requested int
	VotesUsed int
	State     entities.SubmissionState
	Reason    entities.AbortReason
	SessionID string
}

// Coordinator casts votes on behalf of one participant. Each caller context
// (a tab, a CLI invocation) owns one Coordinator; the UI flags it exposes
// belong to that caller only.
type Coordinator struct {
	deps Dependencies
	cfg  Config

	mu        sync.Mutex
	ui        UIState
	running   int
	observers []func(UIState)

	sweeps    sync.WaitGroup
	stop      chan struct{}
	closeOnce sync.Once
}

func NewCoordinator(deps Dependencies, cfg Config) *Coordinator {
	return &Coordinator{
		deps: deps,
		cfg:  cfg.withDefaults(),
		ui:   UIState{State: entities.StateIdle},
		stop: make(chan struct{}),
	}
}

// HandleFormSubmit runs one submission for the ballot. The returned error is
// non-nil only when no vote was confirmed and the call aborted; exhaustion is
// reported through the result with a nil error.
func (c *Coordinator) HandleFormSubmit(ctx context.Context, cmd SubmitCommand) (result SubmitResult, err error) {
	logger := application.ResolveLogger(c.deps.Logger)
	result = SubmitResult{Requested: cmd.RequestedVotes, State: entities.StateAborted}

	if cmd.Ballot == nil || cmd.Ballot.Kind() == entities.BallotKindInvalid {
		result.Reason = entities.AbortReasonInvalidAnswer
		return result, domainerrors.ErrInvalidBallot
	}
	if cmd.Poll == nil || strings.TrimSpace(cmd.Poll.PollID) == "" {
		result.Reason = entities.AbortReasonInvalidAnswer
		return result, domainerrors.ErrPollRequired
	}
	if cmd.Participant == nil || cmd.Participant.ProgressKey() == "" {
		result.Reason = entities.AbortReasonInvalidAnswer
		return result, domainerrors.ErrParticipantRequired
	}
	if err := ctx.Err(); err != nil {
		result.Reason = entities.AbortReasonTransportFailure
		return result, err
	}
	if c.deps.Sessions.HasActive(cmd.Participant.ProgressKey()) {
		result.Reason = entities.AbortReasonSessionConflict
		return result, domainerrors.ErrSessionConflict
	}
	ballot := *cmd.Ballot
	poll, participant, err := c.refresh(ctx, *cmd.Poll, *cmd.Participant)
	if err != nil {
		result.Reason = reasonFor(err)
		return result, err
	}
	key := participant.ProgressKey()
	logger.Info("vote submission requested",
		"event", "vote_submission_requested",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", poll.PollID,
		"participant_key", key,
		"requested_votes", cmd.RequestedVotes,
		"ballot_kind", string(ballot.Kind()),
	)
	if poll.Closed || c.deps.Monitor.IsClosed(poll.PollID) {
		if poll.Closed {
			c.deps.Monitor.OnClosed(ctx, poll.PollID)
		}
		result.Reason = entities.AbortReasonPollClosed
		return result, domainerrors.ErrPollClosed
	}

	if _, err := c.deps.Progress.ObservePoll(ctx, poll.PollID, key); err != nil {
		result.Reason = entities.AbortReasonTransportFailure
		return result, err
	}
	record, err := c.deps.Progress.Load(ctx, poll.PollID, key)
	if err != nil {
		result.Reason = entities.AbortReasonTransportFailure
		return result, err
	}
	baseline := services.ReconcileVotesUsed(participant.VoteAmount, participant.ServerVoteCycle, record.VotesUsed)
	remaining := services.RemainingVotes(participant.VoteAmount, baseline)
	result.VotesUsed = baseline
	if remaining <= 0 {
		return c.exhausted(ctx, poll, participant, baseline, result)
	}
	override, _ := record.Override()
	effective := services.EffectiveVoteCount(services.VoteCountInput{
		Override:    override,
		Requested:   cmd.RequestedVotes,
		Remaining:   remaining,
		UseAllVotes: ballot.UseAllVotes,
	})

	sessionID, err := c.newID(ctx)
	if err != nil {
		result.Reason = entities.AbortReasonTransportFailure
		return result, err
	}
	session := entities.SubmissionSession{
		SessionID:      sessionID,
		ParticipantKey: key,
		PollID:         poll.PollID,
		ExpectedVotes:  effective,
		StartedAt:      c.now(),
	}
	if err := c.deps.Sessions.Register(session); err != nil {
		result.Reason = entities.AbortReasonSessionConflict
		return result, err
	}
	result.SessionID = sessionID

	c.begin(poll, participant, effective, baseline)
	defer func() {
		c.finish(ctx, session, result)
	}()

	c.saveDraft(ctx, poll.PollID, key, ballot)
	resolved, err := c.deps.Validator.Validate(ctx, ballot, poll, key)
	if err != nil {
		result.Reason = reasonFor(err)
		return result, err
	}

	// A single-target ballot goes out as one bulk request of up to a batch;
	// multi-target ballots start with one itemized vote.
	first := 1
	if resolved.IsSingleTarget() && effective > 1 {
		first = min(effective, c.cfg.BatchSize)
	}
	req := VoteRequest{SessionID: sessionID, Ballot: ballot, Poll: poll, Participant: participant, Bulk: first > 1, VoteCount: first}
	confirmed, firstErr := c.SubmitVote(ctx, req)
	confirmed = min(max(confirmed, 0), first)
	if confirmed == 0 {
		err := firstErr
		if err == nil {
			err = fmt.Errorf("%w: first dispatch accepted no votes", domainerrors.ErrTransportFailure)
		}
		logger.Warn("first vote failed, submission aborted",
			"event", "vote_submission_first_vote_failed",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", poll.PollID,
			"participant_key", key,
			"session_id", sessionID,
			"error", err.Error(),
		)
		result.Reason = reasonFor(err)
		return result, err
	}
	c.metrics().VotesConfirmed(confirmed)
	c.progressed(poll.PollID, confirmed)
	c.checkpoint(ctx, poll, participant, key, record, baseline, confirmed)

	stopErr := firstErr
	if stopErr == nil {
		stopErr = c.runBatches(ctx, req, resolved, session, participant, record, baseline, effective, &confirmed)
	}

	votesUsed := services.ApplyConfirmed(participant.VoteAmount, baseline, confirmed)
	counter := nextCounter(record.ResumeCounter)
	if votesUsed >= participant.VoteAmount {
		counter = entities.ResumeCounterExhausted
	}
	if err := c.deps.Progress.UpsertProgress(context.WithoutCancel(ctx), poll.PollID, counter, votesUsed, key); err != nil {
		logger.Error("vote progress write-back failed",
			"event", "vote_submission_progress_write_failed",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", poll.PollID,
			"participant_key", key,
			"votes_used", votesUsed,
			"error", err.Error(),
		)
	}
	if unconfirmed := effective - confirmed; unconfirmed > 0 {
		c.metrics().VotesUnconfirmed(unconfirmed)
	}

	result.Submitted = true
	result.Confirmed = confirmed
	result.VotesUsed = votesUsed
	result.State = entities.StateCompleted
	if stopErr != nil {
		result.State = entities.StateAborted
		result.Reason = reasonFor(stopErr)
	}
	logger.Info("vote submission finished",
		"event", "vote_submission_finished",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", poll.PollID,
		"participant_key", key,
		"session_id", sessionID,
		"confirmed", confirmed,
		"expected", effective,
		"votes_used", votesUsed,
		"state", string(result.State),
		"reason", string(result.Reason),
	)
	return result, nil
}

// SetVoteSplit stores how many votes each later call should spend for the
// participant on this poll.
func (c *Coordinator) SetVoteSplit(ctx context.Context, pollID string, participantKey string, votes int) error {
	return c.deps.Progress.SetMaxVotesOverride(ctx, pollID, participantKey, votes)
}

func (c *Coordinator) runBatches(
	ctx context.Context,
	req VoteRequest,
	resolved entities.ResolvedAnswers,
	session entities.SubmissionSession,
	participant entities.Participant,
	record entities.VoteProgress,
	baseline int,
	effective int,
	confirmed *int,
) error {
	batches := services.PlanBatches(effective-*confirmed, c.cfg.BatchSize)
	for i, size := range batches {
		if err := c.checkContinue(ctx, session); err != nil {
			return err
		}
		got, err := c.dispatchBatch(ctx, req, resolved, size)
		*confirmed += got
		c.progressed(req.Poll.PollID, *confirmed)
		c.checkpoint(ctx, req.Poll, participant, session.ParticipantKey, record, baseline, *confirmed)
		c.publishProgress(ctx, session, *confirmed, effective)
		if err != nil {
			return err
		}
		if left := len(batches) - i - 1; left > 0 {
			delay := services.InterBatchDelay(c.cfg.InterBatchDelay, *confirmed, effective, left)
			if err := c.sleep(ctx, req.Poll.PollID, delay+c.jitter(delay/4)); err != nil {
				if closed := c.checkContinue(ctx, session); closed != nil {
					return closed
				}
				return err
			}
		}
	}
	return nil
}

// checkContinue is the cooperative cancellation point run before every batch.
func (c *Coordinator) checkContinue(ctx context.Context, session entities.SubmissionSession) error {
	if c.deps.Monitor.IsClosed(session.PollID) {
		return domainerrors.ErrPollClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.deps.Sessions.IsActive(session.SessionID) {
		return domainerrors.ErrSessionConflict
	}
	return nil
}

func (c *Coordinator) exhausted(
	ctx context.Context,
	poll entities.Poll,
	participant entities.Participant,
	votesUsed int,
	result SubmitResult,
) (SubmitResult, error) {
	key := participant.ProgressKey()
	if err := c.deps.Progress.UpsertProgress(ctx, poll.PollID, entities.ResumeCounterExhausted, votesUsed, key); err != nil {
		return result, err
	}
	result.State = entities.StateExhausted
	result.Reason = entities.AbortReasonNone
	c.setState(func(ui *UIState) {
		ui.PollID = poll.PollID
		ui.State = entities.StateExhausted
		ui.Reason = entities.AbortReasonNone
		ui.VoteAmount = participant.VoteAmount
		ui.VotesUsed = votesUsed
	})
	c.metrics().SubmissionFinished(entities.StateExhausted)
	application.ResolveLogger(c.deps.Logger).Info("vote quota already exhausted",
		"event", "vote_submission_exhausted",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", poll.PollID,
		"participant_key", key,
		"votes_used", votesUsed,
	)
	return result, nil
}

// checkpoint persists progress after each confirmed chunk so a reload in the
// middle of a long call resumes from what the backend already accepted.
func (c *Coordinator) checkpoint(
	ctx context.Context,
	poll entities.Poll,
	participant entities.Participant,
	key string,
	record entities.VoteProgress,
	baseline int,
	confirmed int,
) {
	votesUsed := services.ApplyConfirmed(participant.VoteAmount, baseline, confirmed)
	if err := c.deps.Progress.UpsertProgress(context.WithoutCancel(ctx), poll.PollID, currentCounter(record.ResumeCounter), votesUsed, key); err != nil {
		application.ResolveLogger(c.deps.Logger).Warn("vote progress checkpoint failed",
			"event", "vote_submission_checkpoint_failed",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", poll.PollID,
			"participant_key", key,
			"votes_used", votesUsed,
			"error", err.Error(),
		)
	}
}

func (c *Coordinator) refresh(
	ctx context.Context,
	poll entities.Poll,
	participant entities.Participant,
) (entities.Poll, entities.Participant, error) {
	if c.deps.Polls == nil {
		return poll, participant, nil
	}
	freshPoll, err := c.deps.Polls.GetPoll(ctx, poll.PollID)
	if err != nil {
		return poll, participant, err
	}
	freshParticipant, err := c.deps.Polls.GetParticipant(ctx, poll.PollID, participant.ParticipantID)
	if err != nil {
		return poll, participant, err
	}
	if strings.TrimSpace(freshParticipant.EventUserID) == "" {
		freshParticipant.EventUserID = participant.EventUserID
	}
	return freshPoll, freshParticipant, nil
}

func (c *Coordinator) saveDraft(ctx context.Context, pollID string, key string, ballot entities.Ballot) {
	if c.deps.Drafts == nil {
		return
	}
	draft := entities.BallotDraft{PollID: pollID, ParticipantKey: key, Ballot: ballot, UpdatedAt: c.now()}
	if err := c.deps.Drafts.SaveDraft(ctx, draft); err != nil {
		application.ResolveLogger(c.deps.Logger).Warn("ballot draft save failed",
			"event", "vote_submission_draft_save_failed",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", pollID,
			"participant_key", key,
			"error", err.Error(),
		)
	}
}

func reasonFor(err error) entities.AbortReason {
	switch {
	case err == nil:
		return entities.AbortReasonNone
	case errors.Is(err, domainerrors.ErrPollClosed):
		return entities.AbortReasonPollClosed
	case errors.Is(err, domainerrors.ErrSessionConflict), errors.Is(err, domainerrors.ErrPollMismatch):
		return entities.AbortReasonSessionConflict
	case errors.Is(err, domainerrors.ErrInvalidAnswer), errors.Is(err, domainerrors.ErrInvalidBallot):
		return entities.AbortReasonInvalidAnswer
	default:
		return entities.AbortReasonTransportFailure
	}
}

func currentCounter(counter int) int {
	if counter < 1 {
		return 1
	}
	return counter
}

func nextCounter(counter int) int {
	return currentCounter(counter) + 1
}

func (cfg Config) withDefaults() Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	} else if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = services.DefaultRetryBase
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = services.DefaultRetryCap
	}
	if cfg.InterBatchDelay < 0 {
		cfg.InterBatchDelay = 0
	} else if cfg.InterBatchDelay == 0 {
		cfg.InterBatchDelay = defaultInterBatchDelay
	}
	if cfg.CleanupSweeps < 0 {
		cfg.CleanupSweeps = 0
	} else if cfg.CleanupSweeps == 0 {
		cfg.CleanupSweeps = defaultCleanupSweeps
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	return cfg
}
