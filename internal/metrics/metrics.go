package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the service collectors. A nil *Recorder records nothing, so
// components can be built without metrics in tests.
type Recorder struct {
	ledgerWrites   *prometheus.CounterVec
	missions       *prometheus.CounterVec
	achievements   *prometheus.CounterVec
	forumActions   *prometheus.CounterVec
	txRetries      *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_ledger_writes_total",
			Help: "Score ledger writes by outcome.",
		}, []string{"outcome"}),
		missions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_mission_completions_total",
			Help: "Daily missions completed, by mission type.",
		}, []string{"type"}),
		achievements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_achievements_unlocked_total",
			Help: "Achievements unlocked, by achievement id.",
		}, []string{"achievement"}),
		forumActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_forum_actions_total",
			Help: "Forum mutations, by action.",
		}, []string{"action"}),
		txRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docstore_transaction_retries_total",
			Help: "Transactions retried after a conflicting concurrent write.",
		}, []string{"backend"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_active_play_sessions",
			Help: "Play sessions currently in progress.",
		}),
	}
	reg.MustRegister(r.ledgerWrites, r.missions, r.achievements, r.forumActions, r.txRetries, r.activeSessions)
	return r
}

func (r *Recorder) LedgerWrite(correct bool) {
	if r == nil {
		return
	}
	outcome := "miss"
	if correct {
		outcome = "correct"
	}
	r.ledgerWrites.WithLabelValues(outcome).Inc()
}

func (r *Recorder) MissionCompleted(missionType string) {
	if r == nil {
		return
	}
	r.missions.WithLabelValues(missionType).Inc()
}

func (r *Recorder) AchievementUnlocked(id string) {
	if r == nil {
		return
	}
	r.achievements.WithLabelValues(id).Inc()
}

func (r *Recorder) ForumAction(action string) {
	if r == nil {
		return
	}
	r.forumActions.WithLabelValues(action).Inc()
}

func (r *Recorder) TxRetry(backend string) {
	if r == nil {
		return
	}
	r.txRetries.WithLabelValues(backend).Inc()
}

func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.activeSessions.Inc()
}

func (r *Recorder) SessionEnded() {
	if r == nil {
		return
	}
	r.activeSessions.Dec()
}
