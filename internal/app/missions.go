package app

import (
	"context"
	"time"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/metrics"
	"go.uber.org/zap"
)

// MissionTracker owns the daily mission and each principal's progress toward it.
type MissionTracker struct {
	store   docstore.Store
	ledger  *Ledger
	now     func() time.Time
	picker  MissionPicker
	log     *zap.Logger
	metrics *metrics.Recorder
}

func NewMissionTracker(store docstore.Store, ledger *Ledger, opts ...Option) *MissionTracker {
	o := buildOptions(opts)
	return &MissionTracker{
		store:   store,
		ledger:  ledger,
		now:     o.now,
		picker:  o.picker,
		log:     o.log,
		metrics: o.metrics,
	}
}

// RecordEvent feeds amount units of eventType into today's mission. It
// returns nil, nil when the event does not apply: no mission today, a
// different mission type, a non-positive amount, or a mission the principal
// already completed. Completing the mission credits its reward in the same
// transaction as the progress write.
func (m *MissionTracker) RecordEvent(ctx context.Context, principalID string, eventType domain.MissionType, amount int) (*domain.MissionOutcome, error) {
	if principalID == "" {
		return nil, domain.ErrNoPrincipal
	}
	if !eventType.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidArgument, "unknown mission event type %q", eventType)
	}
	if amount <= 0 {
		return nil, nil
	}

	dayKey := domain.DayKey(m.now())
	var outcome *domain.MissionOutcome
	var credit domain.CreditResult
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		outcome, credit = nil, domain.CreditResult{}
		mission, found, err := docstore.Get[domain.DailyMission](ctx, tx, missionPath(dayKey))
		if err != nil || !found || mission.Type != eventType {
			return err
		}
		progress, _, err := docstore.Get[domain.MissionProgress](ctx, tx, progressPath(principalID, mission.ID))
		if err != nil || progress.Completed {
			return err
		}

		next := domain.MissionProgress{Progress: progress.Progress + amount}
		result := &domain.MissionOutcome{Mission: mission}
		if next.Progress >= mission.Goal {
			next.Completed = true
			res, err := m.ledger.Credit(ctx, tx, principalID, mission.Reward)
			if err != nil {
				return err
			}
			credit = res
			result.JustCompleted = true
			result.NewScore = res.NewScore
		}
		if err := tx.Set(progressPath(principalID, mission.ID), next); err != nil {
			return err
		}
		result.Progress = next
		outcome = result
		return nil
	})
	if err != nil {
		return nil, classify("record mission event", err)
	}

	if outcome != nil && outcome.JustCompleted {
		m.metrics.MissionCompleted(string(outcome.Mission.Type))
		m.log.Info("daily mission completed",
			zap.String("user_id", principalID),
			zap.String("mission_id", outcome.Mission.ID),
			zap.Int("reward", outcome.Mission.Reward),
			zap.Int("progress", outcome.Progress.Progress))
		m.ledger.CreditCommitted(principalID, credit)
	}
	return outcome, nil
}

// Current returns today's mission with the principal's progress, or nil when
// no mission was generated today.
func (m *MissionTracker) Current(ctx context.Context, principalID string) (*domain.MissionStatus, error) {
	if principalID == "" {
		return nil, domain.ErrNoPrincipal
	}
	mission, found, err := docstore.Get[domain.DailyMission](ctx, m.store, missionPath(domain.DayKey(m.now())))
	if err != nil {
		return nil, classify("read daily mission", err)
	}
	if !found {
		return nil, nil
	}
	progress, _, err := docstore.Get[domain.MissionProgress](ctx, m.store, progressPath(principalID, mission.ID))
	if err != nil {
		return nil, classify("read mission progress", err)
	}
	return &domain.MissionStatus{Mission: mission, Progress: progress}, nil
}

// Subscribe pushes the principal's status for today's mission whenever the
// mission document or the principal's progress changes, so a subscriber that
// connects before the mission is generated still sees it appear. The day is
// fixed when the subscription starts.
func (m *MissionTracker) Subscribe(ctx context.Context, principalID string) (<-chan domain.MissionStatus, func(), error) {
	if principalID == "" {
		return nil, nil, domain.ErrNoPrincipal
	}
	dayKey := domain.DayKey(m.now())
	missionDocs, cancelMission, err := m.store.SubscribeDoc(ctx, missionPath(dayKey))
	if err != nil {
		return nil, nil, classify("subscribe daily mission", err)
	}
	progressDocs, cancelProgress, err := m.store.SubscribeDoc(ctx, progressPath(principalID, dayKey))
	if err != nil {
		cancelMission()
		return nil, nil, classify("subscribe mission progress", err)
	}

	out := make(chan domain.MissionStatus, 8)
	go func() {
		defer close(out)
		var status domain.MissionStatus
		var seenMission, seenProgress bool
		for missionDocs != nil && progressDocs != nil {
			select {
			case doc, ok := <-missionDocs:
				if !ok {
					missionDocs = nil
					continue
				}
				mission := domain.DailyMission{}
				if doc.Exists() {
					if err := doc.DataTo(&mission); err != nil {
						m.log.Warn("dropping undecodable snapshot", zap.Error(err))
						continue
					}
				}
				status.Mission, seenMission = mission, true
			case doc, ok := <-progressDocs:
				if !ok {
					progressDocs = nil
					continue
				}
				progress := domain.MissionProgress{}
				if doc.Exists() {
					if err := doc.DataTo(&progress); err != nil {
						m.log.Warn("dropping undecodable snapshot", zap.Error(err))
						continue
					}
				}
				status.Progress, seenProgress = progress, true
			}
			// both initial snapshots arrive before the first status
			if seenMission && seenProgress {
				docstore.SendLatest(out, status)
			}
		}
	}()
	cancel := func() {
		cancelMission()
		cancelProgress()
	}
	return out, cancel, nil
}

// GenerateDailyMission creates today's mission from a template. If today's
// mission already exists it is returned unchanged and created is false.
func (m *MissionTracker) GenerateDailyMission(ctx context.Context) (mission domain.DailyMission, created bool, err error) {
	now := m.now()
	dayKey := domain.DayKey(now)
	err = m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		existing, found, err := docstore.Get[domain.DailyMission](ctx, tx, missionPath(dayKey))
		if err != nil {
			return err
		}
		if found {
			mission, created = existing, false
			return nil
		}
		tmpl := m.picker(domain.MissionTemplates)
		mission = domain.DailyMission{
			ID:          dayKey,
			Type:        tmpl.Type,
			Goal:        tmpl.Goal,
			Reward:      tmpl.Reward,
			Description: tmpl.Description,
			CreatedAt:   now,
		}
		created = true
		return tx.Set(missionPath(dayKey), mission)
	})
	if err != nil {
		return domain.DailyMission{}, false, classify("generate daily mission", err)
	}
	if created {
		m.log.Info("daily mission generated",
			zap.String("mission_id", mission.ID),
			zap.String("type", string(mission.Type)),
			zap.Int("goal", mission.Goal))
	}
	return mission, created, nil
}
