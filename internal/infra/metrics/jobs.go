package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsFinishedTotal, jobsActive, jobTokensSpent) }

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extraction_jobs_finished_total",
		Help: "Extraction jobs reaching a terminal state, labeled by outcome and cause.",
	},
	[]string{"outcome", "cause"}, // outcome: completed|completed_partial|failed
)

var jobsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "extraction_jobs_active",
		Help: "Extraction jobs currently in a non-terminal state in this process.",
	},
)

var jobTokensSpent = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "extraction_job_tokens_spent_total",
		Help: "Sum of inference tokens accrued across all jobs.",
	},
)

func IncJobFinished(outcome, cause string) {
	jobsFinishedTotal.WithLabelValues(norm(outcome), norm(cause)).Inc()
}

func JobStarted()  { jobsActive.Inc() }
func JobFinished() { jobsActive.Dec() }

func AddTokensSpent(n int64) {
	if n > 0 {
		jobTokensSpent.Add(float64(n))
	}
}
