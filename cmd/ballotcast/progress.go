package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ballotcast/internal/app/bootstrap"
)

type progressFlags struct {
	pollID         string
	participantKey string
}

func (f *progressFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pollID, "poll", "", "poll id")
	cmd.Flags().StringVar(&f.participantKey, "participant-key", "", "event user id or participant id")
	_ = cmd.MarkFlagRequired("poll")
	_ = cmd.MarkFlagRequired("participant-key")
}

func newProgressCommand() *cobra.Command {
	flags := progressFlags{}
	voteAmount := 0
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show stored vote progress for a participant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.BuildVoter(cmd.Context(), bootstrap.VoterOptions{Offline: true})
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()
			view, err := app.Module.Queries.Get(cmd.Context(), flags.pollID, flags.participantKey, voteAmount)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "poll=%s participant=%s votes_used=%d resume_counter=%d completed=%t",
				view.PollID, view.ParticipantKey, view.VotesUsed, view.ResumeCounter, view.Completed)
			if voteAmount > 0 {
				fmt.Fprintf(out, " remaining=%d", view.RemainingVotes)
			}
			if view.MaxVotesOverride != nil {
				fmt.Fprintf(out, " split=%d", *view.MaxVotesOverride)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&voteAmount, "vote-amount", 0, "participant quota, used to report remaining votes")
	return cmd
}

func newSplitCommand() *cobra.Command {
	flags := progressFlags{}
	votes := 0
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Set how many votes each later submit spends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.BuildVoter(cmd.Context(), bootstrap.VoterOptions{Offline: true})
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()
			if err := app.Module.Progress.SetMaxVotesOverride(cmd.Context(), flags.pollID, flags.participantKey, votes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "split=%d stored for poll=%s participant=%s\n", votes, flags.pollID, flags.participantKey)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&votes, "votes", 0, "votes per submit")
	_ = cmd.MarkFlagRequired("votes")
	return cmd
}

func newResetCommand() *cobra.Command {
	flags := progressFlags{}
	keepOverride := true
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget vote progress for a participant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.BuildVoter(cmd.Context(), bootstrap.VoterOptions{Offline: true})
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()
			if keepOverride {
				err = app.Module.Progress.ResetKeepingOverride(cmd.Context(), flags.pollID, flags.participantKey, nil)
			} else {
				err = app.Module.Progress.Clear(cmd.Context(), flags.pollID, flags.participantKey)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "progress reset for poll=%s participant=%s\n", flags.pollID, flags.participantKey)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&keepOverride, "keep-override", true, "keep the stored split")
	return cmd
}
