package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballotcast/contexts/voting-client/vote-submission/application/commands"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
)

func TestBuildVoterRequiresBackendURL(t *testing.T) {
	t.Setenv("PROGRESS_BACKEND", "memory")
	t.Setenv("VOTE_BACKEND_URL", "")

	_, err := BuildVoter(t.Context(), VoterOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VOTE_BACKEND_URL")
}

func TestBuildVoterOfflineSkipsBackend(t *testing.T) {
	t.Setenv("PROGRESS_BACKEND", "memory")
	t.Setenv("VOTE_BACKEND_URL", "")

	app, err := BuildVoter(t.Context(), VoterOptions{Offline: true})
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Backend)
	view, err := app.Module.Queries.Get(t.Context(), "poll-1", "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.RemainingVotes)
}

func TestBuildVoterDryRunOverSQLite(t *testing.T) {
	t.Setenv("PROGRESS_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", t.TempDir()+"/progress.db")
	t.Setenv("INTER_BATCH_DELAY_MS", "0")

	app, err := BuildVoter(t.Context(), VoterOptions{DryRun: true})
	require.NoError(t, err)
	defer app.Close()
	require.NoError(t, app.Start(t.Context()))

	app.Backend.PutPoll(entities.Poll{
		PollID:          "poll-1",
		Type:            entities.PollTypeSingleChoice,
		Multivote:       true,
		PossibleAnswers: []entities.Answer{{ID: "yes", Content: "Yes"}},
	})
	participant := entities.Participant{ParticipantID: "p1", EventUserID: "user-1", VoteAmount: 4}
	app.Backend.PutParticipant("poll-1", participant)

	coordinator := app.Module.NewCoordinator()
	defer coordinator.Close()
	result, err := coordinator.HandleFormSubmit(t.Context(), commands.SubmitCommand{
		Ballot:         &entities.Ballot{SingleAnswerID: "yes", UseAllVotes: true},
		Poll:           &entities.Poll{PollID: "poll-1"},
		Participant:    &participant,
		RequestedVotes: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.StateCompleted, result.State)
	assert.Equal(t, 4, result.Confirmed)

	view, err := app.Module.Queries.Get(t.Context(), "poll-1", "user-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, view.VotesUsed)
	assert.True(t, view.Completed)
}

func TestZeroDisables(t *testing.T) {
	assert.Equal(t, -1, zeroDisables(0))
	assert.Equal(t, 3, zeroDisables(3))
	assert.Equal(t, time.Duration(-1), zeroDisables(time.Duration(0)))
	assert.Equal(t, time.Second, zeroDisables(time.Second))
}
