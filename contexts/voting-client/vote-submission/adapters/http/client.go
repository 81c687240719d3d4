package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
	"ballotcast/contexts/voting-client/vote-submission/ports"
	httptransport "ballotcast/contexts/voting-client/vote-submission/transport/http"
)

// Client talks to the remote vote-acceptance API. Transport problems are
// returned wrapped in ErrTransportFailure; a closed poll maps to ErrPollClosed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) SubmitAnswer(ctx context.Context, input ports.AnswerInput) error {
	body := answerRequestFromInput(input)
	return c.do(ctx, http.MethodPost, c.pollPath(input.PollID, "answers"), body, nil)
}

func (c *Client) SubmitBulkAnswer(ctx context.Context, input ports.BulkAnswerInput) (int, error) {
	body := httptransport.SubmitBulkAnswerRequest{
		SubmitAnswerRequest: answerRequestFromInput(input.AnswerInput),
		VoteCount:           input.VoteCount,
	}
	var response httptransport.SubmitBulkAnswerResponse
	if err := c.do(ctx, http.MethodPost, c.pollPath(input.PollID, "answers", "bulk"), body, &response); err != nil {
		var rejected *backendError
		if errors.As(err, &rejected) {
			return min(max(rejected.accepted, 0), input.VoteCount), err
		}
		return 0, err
	}
	return response.Accepted, nil
}

func (c *Client) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	var response httptransport.PollResponse
	if err := c.do(ctx, http.MethodGet, c.pollPath(pollID), nil, &response); err != nil {
		return entities.Poll{}, err
	}
	poll := entities.Poll{
		PollID:    response.PollID,
		EventID:   response.EventID,
		Title:     response.Title,
		Type:      entities.PollType(response.Type),
		Closed:    response.Closed,
		Multivote: response.Multivote,
	}
	for _, option := range response.PossibleAnswers {
		poll.PossibleAnswers = append(poll.PossibleAnswers, entities.Answer{ID: option.ID, Content: option.Content})
	}
	return poll, nil
}

func (c *Client) GetParticipant(ctx context.Context, pollID string, participantID string) (entities.Participant, error) {
	var response httptransport.ParticipantResponse
	if err := c.do(ctx, http.MethodGet, c.pollPath(pollID, "participants", participantID), nil, &response); err != nil {
		return entities.Participant{}, err
	}
	return entities.Participant{
		ParticipantID:   response.ParticipantID,
		EventUserID:     response.EventUserID,
		VoteAmount:      response.VoteAmount,
		ServerVoteCycle: response.ServerVoteCycle,
	}, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrTransportFailure, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("vote backend request failed",
			"event", "vote_http_request_failed",
			"module", application.ModuleName,
			"layer", "adapter",
			"method", method,
			"path", path,
			"error", err.Error(),
		)
		return fmt.Errorf("%w: %w", domainerrors.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.statusError(resp, method, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domainerrors.ErrTransportFailure, err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, method string, path string) error {
	var payload httptransport.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
	switch {
	case payload.Code == httptransport.ErrorCodePollClosed:
		return &backendError{err: domainerrors.ErrPollClosed, accepted: payload.Accepted}
	case payload.Code == httptransport.ErrorCodeParticipantNotFound:
		return &backendError{err: domainerrors.ErrParticipantNotFound}
	case payload.Code == httptransport.ErrorCodePollNotFound, resp.StatusCode == http.StatusNotFound:
		return &backendError{err: domainerrors.ErrPollNotFound}
	}
	c.logger.Warn("vote backend returned error status",
		"event", "vote_http_status_error",
		"module", application.ModuleName,
		"layer", "adapter",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"code", payload.Code,
	)
	return &backendError{
		err:      fmt.Errorf("%w: status %d %s", domainerrors.ErrTransportFailure, resp.StatusCode, payload.Code),
		accepted: payload.Accepted,
	}
}

// backendError is an error status reply, keeping any partial acceptance the
// backend reported with it.
type backendError struct {
	err      error
	accepted int
}

func (e *backendError) Error() string { return e.err.Error() }

func (e *backendError) Unwrap() error { return e.err }

func (c *Client) pollPath(pollID string, segments ...string) string {
	parts := []string{"", "polls", url.PathEscape(strings.TrimSpace(pollID))}
	for _, segment := range segments {
		parts = append(parts, url.PathEscape(segment))
	}
	return strings.Join(parts, "/")
}

func answerRequestFromInput(input ports.AnswerInput) httptransport.SubmitAnswerRequest {
	request := httptransport.SubmitAnswerRequest{
		ParticipantID: input.ParticipantID,
		AnswerContent: input.AnswerContent,
		Abstain:       input.Abstain,
		VoteCycle:     input.VoteCycle,
		ItemIndex:     input.ItemIndex,
		ItemLength:    input.ItemLength,
		IsLastItem:    input.IsLastItem,
	}
	if !input.Abstain && strings.TrimSpace(input.AnswerID) != "" {
		answerID := input.AnswerID
		request.AnswerID = &answerID
	}
	return request
}

var _ ports.VoteGateway = (*Client)(nil)
var _ ports.PollSource = (*Client)(nil)
