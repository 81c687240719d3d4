package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

// SubmissionMetrics exports coordinator and closure counters to prometheus.
type SubmissionMetrics struct {
	votesConfirmed   prometheus.Counter
	votesUnconfirmed prometheus.Counter
	batchRetries     prometheus.Counter
	submissions      *prometheus.CounterVec
	closureSignals   *prometheus.CounterVec
}

// NewSubmissionMetrics builds the counters and registers them. A nil
// registerer leaves them unregistered.
func NewSubmissionMetrics(namespace string, registerer prometheus.Registerer) (*SubmissionMetrics, error) {
	m := &SubmissionMetrics{
		votesConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_confirmed_total",
			Help:      "Number of votes the backend confirmed",
		}),
		votesUnconfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_unconfirmed_total",
			Help:      "Number of planned votes that were never confirmed",
		}),
		batchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_retries_total",
			Help:      "Number of batch retry attempts",
		}),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Number of finished submissions by terminal state",
			},
			[]string{"state"},
		),
		closureSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "closure_signals_total",
				Help:      "Number of poll closure signals by result",
			},
			[]string{"result"},
		),
	}
	if registerer == nil {
		return m, nil
	}
	err := errors.Join(
		registerer.Register(m.votesConfirmed),
		registerer.Register(m.votesUnconfirmed),
		registerer.Register(m.batchRetries),
		registerer.Register(m.submissions),
		registerer.Register(m.closureSignals),
	)
	return m, err
}

func (m *SubmissionMetrics) VotesConfirmed(count int) {
	if count > 0 {
		m.votesConfirmed.Add(float64(count))
	}
}

func (m *SubmissionMetrics) VotesUnconfirmed(count int) {
	if count > 0 {
		m.votesUnconfirmed.Add(float64(count))
	}
}

func (m *SubmissionMetrics) BatchRetried() {
	m.batchRetries.Inc()
}

func (m *SubmissionMetrics) SubmissionFinished(state entities.SubmissionState) {
	m.submissions.WithLabelValues(string(state)).Inc()
}

func (m *SubmissionMetrics) ClosureSignal(genuine bool) {
	result := "duplicate"
	if genuine {
		result = "genuine"
	}
	m.closureSignals.WithLabelValues(result).Inc()
}

var _ ports.SubmissionMetrics = (*SubmissionMetrics)(nil)
