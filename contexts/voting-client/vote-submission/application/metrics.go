package application

import (
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

type noopMetrics struct{}

func (noopMetrics) VotesConfirmed(int)                          {}
func (noopMetrics) VotesUnconfirmed(int)                        {}
func (noopMetrics) BatchRetried()                               {}
func (noopMetrics) SubmissionFinished(entities.SubmissionState) {}
func (noopMetrics) ClosureSignal(bool)                          {}

// ResolveMetrics returns a no-op sink when metrics are not wired.
func ResolveMetrics(metrics ports.SubmissionMetrics) ports.SubmissionMetrics {
	if metrics == nil {
		return noopMetrics{}
	}
	return metrics
}
