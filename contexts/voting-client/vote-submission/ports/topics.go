package ports

const (
	TopicPollClosed          = "poll.closed"
	TopicVotingProgress      = "voting.progress"
	TopicSubmissionCompleted = "voting.submission_completed"
)
