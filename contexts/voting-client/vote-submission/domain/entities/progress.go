package entities

import "time"

// ResumeCounterExhausted is stored in place of the resume counter once a
// participant has used the whole quota for a poll.
const ResumeCounterExhausted = -1

type VoteProgress struct {
	PollID           string
	ParticipantKey   string
	VotesUsed        int
	ResumeCounter    int
	MaxVotesOverride *int
	Completed        bool
	UpdatedAt        time.Time
}

func NewVoteProgress(pollID string, participantKey string) VoteProgress {
	return VoteProgress{
		PollID:         pollID,
		ParticipantKey: participantKey,
		ResumeCounter:  1,
	}
}

func (p VoteProgress) IsExhausted() bool {
	return p.Completed || p.ResumeCounter == ResumeCounterExhausted
}

func (p VoteProgress) Override() (int, bool) {
	if p.MaxVotesOverride == nil || *p.MaxVotesOverride <= 0 {
		return 0, false
	}
	return *p.MaxVotesOverride, true
}

type BallotDraft struct {
	PollID         string
	ParticipantKey string
	Ballot         Ballot
	UpdatedAt      time.Time
}
