package app

import (
	"context"
	"time"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// Accounts turns identity-provider identities into principals and owns the
// user document lifecycle.
type Accounts struct {
	store        docstore.Store
	ledger       *Ledger
	achievements *AchievementEvaluator
	now          func() time.Time
	log          *zap.Logger
}

func NewAccounts(store docstore.Store, ledger *Ledger, achievements *AchievementEvaluator, opts ...Option) *Accounts {
	o := buildOptions(opts)
	return &Accounts{
		store:        store,
		ledger:       ledger,
		achievements: achievements,
		now:          o.now,
		log:          o.log,
	}
}

// SignIn handles an auth-state change. A nil identity means signed out and
// yields a nil principal. The first sign-in creates the user document;
// later ones refresh the profile fields and lastLogin. IsAdmin always comes
// from the stored document.
func (a *Accounts) SignIn(ctx context.Context, id *domain.Identity) (*domain.Principal, error) {
	if id == nil {
		return nil, nil
	}
	if id.UID == "" {
		return nil, domain.Errorf(domain.ErrInvalidArgument, "identity has no uid")
	}

	var principal domain.Principal
	created := false
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := a.now()
		user, found, err := docstore.Get[domain.User](ctx, tx, userPath(id.UID))
		if err != nil {
			return err
		}
		if !found {
			created = true
			user = domain.User{
				ID:               id.UID,
				DisplayName:      id.DisplayName,
				PhotoURL:         id.PhotoURL,
				Email:            id.Email,
				Rank:             domain.RankOf(0).Name,
				CompletedQuizzes: []string{},
				QuizHistory:      map[string]domain.QuizRecord{},
				CreatedAt:        now,
				LastLogin:        now,
			}
			principal = principalOf(user)
			return tx.Set(userPath(id.UID), user)
		}
		created = false
		user.DisplayName, user.PhotoURL, user.Email = id.DisplayName, id.PhotoURL, id.Email
		principal = principalOf(user)
		return tx.Set(userPath(id.UID), map[string]any{
			"displayName": id.DisplayName,
			"photoUrl":    id.PhotoURL,
			"email":       id.Email,
			"lastLogin":   now,
		}, docstore.Merge())
	})
	if err != nil {
		return nil, classify("sign in", err)
	}
	if created {
		a.log.Info("user created", zap.String("user_id", id.UID))
	}
	return &principal, nil
}

// Resolve returns the principal for an already verified identity without
// touching lastLogin. Unknown users are signed in.
func (a *Accounts) Resolve(ctx context.Context, id *domain.Identity) (*domain.Principal, error) {
	if id == nil {
		return nil, nil
	}
	if id.UID == "" {
		return nil, domain.Errorf(domain.ErrInvalidArgument, "identity has no uid")
	}
	user, found, err := docstore.Get[domain.User](ctx, a.store, userPath(id.UID))
	if err != nil {
		return nil, classify("read user", err)
	}
	if !found {
		return a.SignIn(ctx, id)
	}
	p := principalOf(user)
	if id.DisplayName != "" {
		p.DisplayName = id.DisplayName
	}
	if id.PhotoURL != "" {
		p.PhotoURL = id.PhotoURL
	}
	return &p, nil
}

// Profile gathers the user document, score history and unlocked achievements.
func (a *Accounts) Profile(ctx context.Context, principalID string) (domain.Profile, error) {
	if principalID == "" {
		return domain.Profile{}, domain.ErrNoPrincipal
	}
	user, err := readUser(ctx, a.store, principalID)
	if err != nil {
		return domain.Profile{}, classify("read user", err)
	}
	history, err := a.ledger.History(ctx, principalID)
	if err != nil {
		return domain.Profile{}, err
	}
	unlocked, err := a.achievements.Unlocked(ctx, principalID)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{User: user, History: history, Achievements: unlocked}, nil
}

func principalOf(u domain.User) domain.Principal {
	return domain.Principal{
		UID:         u.ID,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Email:       u.Email,
		IsAdmin:     u.IsAdmin,
	}
}
