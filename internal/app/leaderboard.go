package app

import (
	"context"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

// Leaderboard is a read-only query over users ordered by score. Tie order is
// whatever the store yields and must not be relied on.
type Leaderboard struct {
	store docstore.Store
	log   *zap.Logger
}

func NewLeaderboard(store docstore.Store, opts ...Option) *Leaderboard {
	o := buildOptions(opts)
	return &Leaderboard{store: store, log: o.log}
}

func (l *Leaderboard) TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	docs, err := l.store.Query(ctx, leaderboardQuery(n))
	if err != nil {
		return nil, classify("query leaderboard", err)
	}
	return toEntries(docs)
}

// Subscribe pushes the full top-n view on every change to any user.
func (l *Leaderboard) Subscribe(ctx context.Context, n int) (<-chan []domain.LeaderboardEntry, func(), error) {
	docs, cancel, err := l.store.Subscribe(ctx, leaderboardQuery(n))
	if err != nil {
		return nil, nil, classify("subscribe leaderboard", err)
	}
	return mapFeed(docs, l.log, toEntries), cancel, nil
}

func leaderboardQuery(n int) docstore.Query {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	if n > MaxLeaderboardSize {
		n = MaxLeaderboardSize
	}
	return docstore.Query{Collection: usersCollection, OrderBy: "score", Direction: docstore.Desc, Limit: n}
}

func toEntries(docs []docstore.Document) ([]domain.LeaderboardEntry, error) {
	users, err := docstore.DecodeAll[domain.User](docs)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      docs[i].ID,
			DisplayName: u.DisplayName,
			PhotoURL:    u.PhotoURL,
			Score:       u.Score,
			Rank:        domain.RankOf(u.Score).Name,
		})
	}
	return entries, nil
}
