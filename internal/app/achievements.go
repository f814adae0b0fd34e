package app

import (
	"context"
	"errors"
	"time"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/metrics"
	"go.uber.org/zap"
)

// AchievementEvaluator unlocks catalog achievements whose criteria a
// principal's stats satisfy. Unlocks are keyed by achievement id, so a
// concurrent duplicate evaluation rewrites the same document.
type AchievementEvaluator struct {
	store   docstore.Store
	catalog []domain.Achievement
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Recorder
}

func NewAchievementEvaluator(store docstore.Store, opts ...Option) *AchievementEvaluator {
	o := buildOptions(opts)
	return &AchievementEvaluator{
		store:   store,
		catalog: domain.Achievements,
		now:     o.now,
		log:     o.log,
		metrics: o.metrics,
	}
}

// Evaluate returns only the achievements unlocked by this call.
func (e *AchievementEvaluator) Evaluate(ctx context.Context, principalID string) ([]domain.Achievement, error) {
	if principalID == "" {
		return nil, domain.ErrNoPrincipal
	}
	user, err := readUser(ctx, e.store, principalID)
	if err != nil {
		return nil, classify("read user", err)
	}
	unlocked, err := e.unlockedIDs(ctx, principalID)
	if err != nil {
		return nil, err
	}

	stats := domain.StatsOf(user)
	var fresh []domain.Achievement
	for _, a := range e.catalog {
		if _, ok := unlocked[a.ID]; ok || !a.Criteria.SatisfiedBy(stats) {
			continue
		}
		ok, err := e.unlock(ctx, principalID, a)
		if err != nil {
			return fresh, err
		}
		if ok {
			fresh = append(fresh, a)
		}
	}
	return fresh, nil
}

func (e *AchievementEvaluator) unlock(ctx context.Context, principalID string, a domain.Achievement) (bool, error) {
	path := unlockedPath(principalID, a.ID)
	_, err := e.store.Get(ctx, path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return false, classify("check achievement", err)
	}
	err = e.store.Set(ctx, path, domain.UnlockedAchievement{
		Name:        a.Name,
		Description: a.Description,
		UnlockedAt:  e.now(),
	})
	if err != nil {
		return false, classify("unlock achievement", err)
	}
	e.metrics.AchievementUnlocked(a.ID)
	e.log.Info("achievement unlocked", zap.String("user_id", principalID), zap.String("achievement", a.ID))
	return true, nil
}

func (e *AchievementEvaluator) unlockedIDs(ctx context.Context, principalID string) (map[string]struct{}, error) {
	docs, err := e.store.Query(ctx, docstore.Query{Collection: unlockedCollection(principalID)})
	if err != nil {
		return nil, classify("query unlocked achievements", err)
	}
	ids := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		ids[d.ID] = struct{}{}
	}
	return ids, nil
}

// Unlocked returns the catalog entries the principal has unlocked, in catalog order.
func (e *AchievementEvaluator) Unlocked(ctx context.Context, principalID string) ([]domain.Achievement, error) {
	if principalID == "" {
		return nil, domain.ErrNoPrincipal
	}
	ids, err := e.unlockedIDs(ctx, principalID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Achievement, 0, len(ids))
	for _, a := range e.catalog {
		if _, ok := ids[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}
