package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	DisbursementsTotal   prometheus.Counter
	PaymentsTotal        *prometheus.CounterVec
	JournalEntriesTotal  *prometheus.CounterVec
	LoansDefaultedTotal  prometheus.Counter
	LoansWrittenOffTotal prometheus.Counter
}

var (
	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lending_engine_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		DisbursementsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lending_engine_disbursements_total",
				Help: "Total number of loans disbursed.",
			},
		),
		PaymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_engine_payments_total",
				Help: "Total number of repayment attempts by outcome.",
			},
			[]string{"status"},
		),
		JournalEntriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_engine_journal_entries_total",
				Help: "Total number of journal entry postings by outcome.",
			},
			[]string{"status"},
		),
		LoansDefaultedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lending_engine_loans_defaulted_total",
				Help: "Total number of loans moved to defaulted by the aging job.",
			},
		),
		LoansWrittenOffTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lending_engine_loans_written_off_total",
				Help: "Total number of loans written off.",
			},
		),
	}
)

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordDisbursement() {
	Business.DisbursementsTotal.Inc()
}

func RecordPayment(status string) {
	Business.PaymentsTotal.WithLabelValues(status).Inc()
}

func RecordJournalEntry(status string) {
	Business.JournalEntriesTotal.WithLabelValues(status).Inc()
}

func RecordLoanDefaulted() {
	Business.LoansDefaultedTotal.Inc()
}

func RecordLoanWrittenOff() {
	Business.LoansWrittenOffTotal.Inc()
}
