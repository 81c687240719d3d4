package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ballotcast/contexts/voting-client/vote-submission/application/commands"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/internal/app/bootstrap"
)

type submitOptions struct {
	eventUserID   string
	pollID        string
	participantID string
	answers       []string
	abstain       bool
	votes         int
	all           bool
	split         int
	dryRun        bool
	voteAmount    int
	printMetrics  bool
	watchInterval time.Duration
}

func newSubmitCommand() *cobra.Command {
	opts := submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit votes for one ballot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubmit(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.eventUserID, "event", "", "event user id used as the progress key")
	flags.StringVar(&opts.pollID, "poll", "", "poll id")
	flags.StringVar(&opts.participantID, "participant", "", "participant id")
	flags.StringSliceVar(&opts.answers, "answer", nil, "answer id; repeat for multiple-choice ballots")
	flags.BoolVar(&opts.abstain, "abstain", false, "cast an abstention")
	flags.IntVar(&opts.votes, "votes", 0, "number of votes to spend in this call")
	flags.BoolVar(&opts.all, "all", false, "spend every remaining vote")
	flags.IntVar(&opts.split, "split", 0, "store a sticky per-call vote count before submitting")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "submit against an in-process backend")
	flags.IntVar(&opts.voteAmount, "vote-amount", 1, "participant quota for --dry-run")
	flags.BoolVar(&opts.printMetrics, "metrics", false, "print submission counters when done")
	flags.DurationVar(&opts.watchInterval, "watch-interval", time.Second, "how often to poll for closure")
	_ = cmd.MarkFlagRequired("poll")
	_ = cmd.MarkFlagRequired("participant")
	return cmd
}

func runSubmit(cmd *cobra.Command, opts submitOptions) error {
	ctx := cmd.Context()
	ballot, err := parseBallot(opts.answers, opts.abstain, opts.all)
	if err != nil {
		return err
	}
	app, err := bootstrap.BuildVoter(ctx, bootstrap.VoterOptions{DryRun: opts.dryRun})
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close()
	}()
	if err := app.Start(ctx); err != nil {
		return err
	}

	participant := entities.Participant{
		ParticipantID: strings.TrimSpace(opts.participantID),
		EventUserID:   strings.TrimSpace(opts.eventUserID),
	}
	poll := entities.Poll{PollID: strings.TrimSpace(opts.pollID)}
	if app.Backend != nil {
		seedDryRun(app, poll.PollID, participant, ballot, opts.voteAmount)
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	app.Module.ClosureWatcher.Watch(poll.PollID)
	go func() {
		_ = app.Module.ClosureWatcher.Run(watchCtx, opts.watchInterval)
	}()

	coordinator := app.Module.NewCoordinator()
	defer coordinator.Close()
	if opts.split > 0 {
		if err := coordinator.SetVoteSplit(ctx, poll.PollID, participant.ProgressKey(), opts.split); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	unsubscribe := coordinator.Subscribe(func(state commands.UIState) {
		if state.Submitting {
			fmt.Fprintf(out, "progress poll=%s confirmed=%d/%d\n", state.PollID, state.Confirmed, state.Expected)
		}
	})
	defer unsubscribe()

	result, submitErr := coordinator.HandleFormSubmit(ctx, commands.SubmitCommand{
		Ballot:         &ballot,
		Poll:           &poll,
		Participant:    &participant,
		RequestedVotes: opts.votes,
	})
	printResult(out, result)
	if opts.printMetrics {
		if err := printMetrics(out, app.Registry); err != nil {
			return err
		}
	}
	return submitErr
}

// parseBallot maps CLI flags to exactly one ballot shape.
func parseBallot(answers []string, abstain bool, useAll bool) (entities.Ballot, error) {
	ids := make([]string, 0, len(answers))
	for _, answer := range answers {
		if id := strings.TrimSpace(answer); id != "" {
			ids = append(ids, id)
		}
	}
	switch {
	case abstain && len(ids) > 0:
		return entities.Ballot{}, errors.New("--abstain cannot be combined with --answer")
	case abstain:
		return entities.Ballot{Abstain: true, UseAllVotes: useAll}, nil
	case len(ids) == 0:
		return entities.Ballot{}, errors.New("either --answer or --abstain is required")
	case len(ids) == 1:
		return entities.Ballot{SingleAnswerID: ids[0], UseAllVotes: useAll}, nil
	default:
		return entities.Ballot{MultipleAnswerIDs: ids, UseAllVotes: useAll}, nil
	}
}

func seedDryRun(app *bootstrap.VoterApp, pollID string, participant entities.Participant, ballot entities.Ballot, voteAmount int) {
	poll := entities.Poll{PollID: pollID, Type: entities.PollTypeSingleChoice, Multivote: voteAmount > 1}
	for _, id := range ballot.AnswerIDs() {
		poll.PossibleAnswers = append(poll.PossibleAnswers, entities.Answer{ID: id, Content: id})
	}
	if len(poll.PossibleAnswers) > 1 {
		poll.Type = entities.PollTypeMultipleChoice
	}
	participant.VoteAmount = max(voteAmount, 1)
	app.Backend.PutPoll(poll)
	app.Backend.PutParticipant(pollID, participant)
}

func printResult(out io.Writer, result commands.SubmitResult) {
	fmt.Fprintf(out, "state=%s submitted=%t confirmed=%d requested=%d votes_used=%d",
		result.State, result.Submitted, result.Confirmed, result.Requested, result.VotesUsed)
	if result.Reason != entities.AbortReasonNone {
		fmt.Fprintf(out, " reason=%s", result.Reason)
	}
	fmt.Fprintln(out)
}

func printMetrics(out io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	lines := make([]string, 0)
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), "ballotcast_") {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
			}
			name := family.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("%s %g", name, metric.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}
