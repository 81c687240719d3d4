package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/application/validation"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
	"ballotcast/contexts/voting-client/vote-submission/domain/services"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

// VoteRequest is one SubmitVote call. Bulk asks for the bulk request shape,
// which is used only when the ballot lands on a single target and VoteCount
// is greater than one.
type VoteRequest struct {
	SessionID   string
	Ballot      entities.Ballot
	Poll        entities.Poll
	Participant entities.Participant
	Bulk        bool
	VoteCount   int
}

// SubmitVote sends one vote, or VoteCount identical votes on the bulk path,
// and returns how many the backend accepted. It never retries.
func (c *Coordinator) SubmitVote(ctx context.Context, req VoteRequest) (int, error) {
	pollID := strings.TrimSpace(req.Poll.PollID)
	if req.Poll.Closed || c.deps.Monitor.IsClosed(pollID) {
		return 0, domainerrors.ErrPollClosed
	}
	session, ok := c.deps.Sessions.Get(req.SessionID)
	if !ok || !session.Active {
		return 0, domainerrors.ErrSessionConflict
	}
	if session.PollID != pollID {
		return 0, domainerrors.ErrPollMismatch
	}
	resolved, err := validation.ValidateAgainst(req.Ballot, req.Poll)
	if err != nil {
		// Settle a snapshot miss against the live poll; a ballot that is
		// still invalid there loses its stored draft.
		resolved, err = c.deps.Validator.Validate(ctx, req.Ballot, req.Poll, req.Participant.ProgressKey())
		if err != nil {
			return 0, err
		}
	}
	count := max(req.VoteCount, 1)
	base := ports.AnswerInput{
		ParticipantID: req.Participant.ParticipantID,
		PollID:        pollID,
		Abstain:       resolved.Kind == entities.BallotKindAbstain,
		VoteCycle:     1,
		ItemLength:    1,
		IsLastItem:    true,
	}

	if req.Bulk && resolved.IsSingleTarget() && count > 1 {
		input := ports.BulkAnswerInput{AnswerInput: base, VoteCount: count}
		if len(resolved.Answers) == 1 {
			input.AnswerID = resolved.Answers[0].ID
			input.AnswerContent = resolved.Answers[0].Content
		}
		accepted, err := c.deps.Gateway.SubmitBulkAnswer(ctx, input)
		accepted = min(max(accepted, 0), count)
		if err != nil {
			c.noteGatewayError(ctx, pollID, err)
			return accepted, err
		}
		return accepted, nil
	}

	cycle := 1
	if req.Ballot.UseAllVotes && resolved.Kind == entities.BallotKindSingle {
		cycle = count
	}
	items := resolved.Answers
	if resolved.Kind == entities.BallotKindAbstain {
		items = []entities.Answer{{}}
	}
	for i, answer := range items {
		input := base
		input.AnswerID = answer.ID
		input.AnswerContent = answer.Content
		input.VoteCycle = cycle
		input.ItemIndex = i
		input.ItemLength = len(items)
		input.IsLastItem = i == len(items)-1
		if err := c.deps.Gateway.SubmitAnswer(ctx, input); err != nil {
			c.noteGatewayError(ctx, pollID, err)
			return 0, err
		}
	}
	return cycle, nil
}

// dispatchBatch sends size votes and retries the unconfirmed part with
// exponential backoff. Confirmed votes are never taken back.
func (c *Coordinator) dispatchBatch(
	ctx context.Context,
	req VoteRequest,
	resolved entities.ResolvedAnswers,
	size int,
) (int, error) {
	logger := application.ResolveLogger(c.deps.Logger)
	pollID := req.Poll.PollID
	confirmed := 0
	pending := size
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.metrics().BatchRetried()
			delay := services.RetryBackoff(attempt, c.cfg.RetryBase, c.cfg.RetryCap)
			logger.Debug("vote batch retry scheduled",
				"event", "vote_batch_retry_scheduled",
				"module", application.ModuleName,
				"layer", "application",
				"poll_id", pollID,
				"session_id", req.SessionID,
				"attempt", attempt,
				"pending", pending,
				"delay_ms", delay.Milliseconds(),
			)
			if err := c.sleep(ctx, pollID, delay); err != nil {
				if c.deps.Monitor.IsClosed(pollID) {
					return confirmed, domainerrors.ErrPollClosed
				}
				return confirmed, err
			}
			if c.deps.Monitor.IsClosed(pollID) {
				return confirmed, domainerrors.ErrPollClosed
			}
		}

		got, err := c.sendBatch(ctx, req, resolved, pending)
		confirmed += got
		pending -= got
		if got > 0 {
			c.metrics().VotesConfirmed(got)
		}
		if c.deps.Monitor.IsClosed(pollID) || errors.Is(err, domainerrors.ErrPollClosed) {
			return confirmed, domainerrors.ErrPollClosed
		}
		if pending <= 0 {
			return confirmed, nil
		}
		if errors.Is(err, domainerrors.ErrSessionConflict) ||
			errors.Is(err, domainerrors.ErrPollMismatch) ||
			errors.Is(err, domainerrors.ErrInvalidAnswer) {
			return confirmed, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return confirmed, ctxErr
		}
		if attempt >= c.cfg.RetryAttempts {
			logger.Warn("vote batch retries exhausted",
				"event", "vote_batch_retries_exhausted",
				"module", application.ModuleName,
				"layer", "application",
				"poll_id", pollID,
				"session_id", req.SessionID,
				"confirmed", confirmed,
				"unconfirmed", pending,
			)
			if err == nil {
				err = fmt.Errorf("%d votes not accepted", pending)
			}
			return confirmed, fmt.Errorf("%w: %w", domainerrors.ErrTransportFailure, err)
		}
	}
}

// sendBatch makes one attempt at count votes: a single bulk request when the
// ballot has one target, otherwise one concurrent request per vote.
func (c *Coordinator) sendBatch(
	ctx context.Context,
	req VoteRequest,
	resolved entities.ResolvedAnswers,
	count int,
) (int, error) {
	if resolved.IsSingleTarget() && count > 1 {
		bulk := req
		bulk.Bulk = true
		bulk.VoteCount = count
		return c.SubmitVote(ctx, bulk)
	}

	single := req
	single.Bulk = false
	single.VoteCount = 1
	var accepted atomic.Int64
	var group errgroup.Group
	group.SetLimit(c.cfg.MaxInFlight)
	for range count {
		group.Go(func() error {
			got, err := c.SubmitVote(ctx, single)
			accepted.Add(int64(got))
			return err
		})
	}
	err := group.Wait()
	return min(int(accepted.Load()), count), err
}

// noteGatewayError forwards a closure reported by the backend to the monitor
// so every other detector sees it too.
func (c *Coordinator) noteGatewayError(ctx context.Context, pollID string, err error) {
	if errors.Is(err, domainerrors.ErrPollClosed) {
		c.deps.Monitor.OnClosed(ctx, pollID)
	}
}
