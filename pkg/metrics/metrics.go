package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quillpad", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quillpad", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	NotesSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quillpad", Name: "notes_saved_total", Help: "Number of successful note saves by mode (create|update)."},
		[]string{"mode"},
	)
	NoteSaveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quillpad", Name: "note_save_failures_total", Help: "Number of failed note saves by stage."},
		[]string{"stage"},
	)
	AttachmentsUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "quillpad", Name: "attachments_uploaded_total", Help: "Number of attachment objects uploaded."},
	)
	SignedURLsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "quillpad", Name: "signed_urls_issued_total", Help: "Number of signed attachment URLs issued."},
	)
	AuthEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quillpad", Name: "auth_events_total", Help: "Identity operations by event and outcome."},
		[]string{"event", "outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(NotesSaved)
	reg.MustRegister(NoteSaveFailures)
	reg.MustRegister(AttachmentsUploaded)
	reg.MustRegister(SignedURLsIssued)
	reg.MustRegister(AuthEvents)
}

// Outcome maps an error to the auth_events outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
