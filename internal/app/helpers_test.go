package app_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chronotech-quiz-service/internal/app"
	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/infra/memory"
	infraredis "chronotech-quiz-service/internal/infra/redis"
	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store        docstore.Store
	clock        *testClock
	sessions     *memory.SessionStore
	ledger       *app.Ledger
	missions     *app.MissionTracker
	achievements *app.AchievementEvaluator
	forum        *app.Forum
	leaderboard  *app.Leaderboard
	reconciler   *app.Reconciler
	quizService  *app.QuizService
	accounts     *app.Accounts
}

func newFixture(t *testing.T, extra ...app.Option) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.NewDocStore(nil), extra...)
}

// newFixtureOn wires every service against store.
func newFixtureOn(t *testing.T, store docstore.Store, extra ...app.Option) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 9, 28, 10, 0, 0, 0, time.UTC)}
	var seq atomic.Int64
	opts := append([]app.Option{
		app.WithClock(clock.Now),
		app.WithIDGenerator(func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) }),
		// keep authored order so tests know which question is active
		app.WithShuffle(func(int, func(i, j int)) {}),
	}, extra...)

	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"generations-quiz": generationsQuiz(),
		"history-quiz":     historyQuiz(),
	}), time.Minute)
	sessions := memory.NewSessionStore()

	f := &fixture{store: store, clock: clock, sessions: sessions}
	f.ledger = app.NewLedger(store, quizzes, opts...)
	f.missions = app.NewMissionTracker(store, f.ledger, opts...)
	f.achievements = app.NewAchievementEvaluator(store, opts...)
	f.forum = app.NewForum(store, f.achievements, opts...)
	f.leaderboard = app.NewLeaderboard(store, opts...)
	f.reconciler = app.NewReconciler(store, f.ledger, f.missions, f.achievements, opts...)
	f.quizService = app.NewQuizService(sessions, quizzes, f.ledger, f.reconciler, opts...)
	f.accounts = app.NewAccounts(store, f.ledger, f.achievements, opts...)
	return f
}

// retry budget for stores shared by racing goroutines
const contendedAttempts = 200

// backends builds a fixture per document store implementation.
func backends() map[string]func(t *testing.T) *fixture {
	return map[string]func(t *testing.T) *fixture{
		"memory": func(t *testing.T) *fixture {
			store := memory.NewDocStore(nil)
			store.SetMaxAttempts(contendedAttempts)
			return newFixtureOn(t, store)
		},
		"redis": func(t *testing.T) *fixture {
			mr := miniredis.RunT(t)
			client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			store := infraredis.NewDocStore(client, nil, zap.NewNop())
			store.SetMaxAttempts(contendedAttempts)
			t.Cleanup(store.Close)
			return newFixtureOn(t, store)
		},
	}
}

// signIn creates the user document and returns the principal.
func (f *fixture) signIn(t *testing.T, uid, name string) *domain.Principal {
	t.Helper()
	p, err := f.accounts.SignIn(context.Background(), &domain.Identity{UID: uid, DisplayName: name})
	if err != nil {
		t.Fatalf("sign in %s: %v", uid, err)
	}
	return p
}

func (f *fixture) setUserFields(t *testing.T, uid string, fields map[string]any) {
	t.Helper()
	if err := f.store.Set(context.Background(), "users/"+uid, fields, docstore.Merge()); err != nil {
		t.Fatalf("set user fields: %v", err)
	}
}

func (f *fixture) user(t *testing.T, uid string) domain.User {
	t.Helper()
	u, found, err := docstore.Get[domain.User](context.Background(), f.store, "users/"+uid)
	if err != nil || !found {
		t.Fatalf("read user %s: found=%v err=%v", uid, found, err)
	}
	return u
}

func (f *fixture) count(t *testing.T, collection string) int {
	t.Helper()
	docs, err := f.store.Query(context.Background(), docstore.Query{Collection: collection})
	if err != nil {
		t.Fatalf("query %s: %v", collection, err)
	}
	return len(docs)
}

// generateMission creates today's mission of the given type.
func (f *fixture) generateMission(t *testing.T, kind domain.MissionType) domain.DailyMission {
	t.Helper()
	tracker := app.NewMissionTracker(f.store, f.ledger,
		app.WithClock(f.clock.Now),
		app.WithMissionPicker(pickType(kind)))
	mission, _, err := tracker.GenerateDailyMission(context.Background())
	if err != nil {
		t.Fatalf("generate mission: %v", err)
	}
	return mission
}

func pickType(kind domain.MissionType) app.MissionPicker {
	return func(templates []domain.MissionTemplate) domain.MissionTemplate {
		for _, tmpl := range templates {
			if tmpl.Type == kind {
				return tmpl
			}
		}
		return templates[0]
	}
}

func generationsQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "generations-quiz",
		Title: "Generaciones",
		Topic: "generaciones",
		Questions: []domain.Question{
			{
				Text:     "¿Qué generación nació entre 1965 y 1980?",
				Options:  []string{"Baby Boomers", "Generación X", "Millennials", "Generación Z"},
				Answer:   "Generación X",
				Feedback: "La Generación X creció con la llegada de la computadora personal.",
			},
		},
	}
}

func historyQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "history-quiz",
		Title: "Historia de la tecnología",
		Topic: "tecnologia",
		Questions: []domain.Question{
			{Text: "¿Año del primer iPhone?", Options: []string{"2005", "2006", "2007", "2008"}, Answer: "2007"},
			{Text: "¿Creador de Linux?", Options: []string{"Linus Torvalds", "Bill Gates", "Steve Jobs", "Alan Turing"}, Answer: "Linus Torvalds"},
			{Text: "¿Qué significa WWW?", Options: []string{"World Wide Web", "Web World Wide", "Wide World Web", "World Web Wide"}, Answer: "World Wide Web"},
		},
	}
}
