package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chronotech-quiz-service/internal/app"
	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Minute)

	deadline := time.Date(2025, 9, 28, 12, 0, 30, 0, time.UTC)
	err = store.Put(ctx, &app.PlaySession{
		PrincipalID:       "u1",
		QuizID:            "generations-quiz",
		Order:             []int{2, 0, 1},
		AttemptsRemaining: 2,
		Deadline:          deadline,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("quiz:session:u1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:session:u1"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}

	got, ok, err := store.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.AttemptsRemaining != 2 || len(got.Order) != 3 || !got.Deadline.Equal(deadline) || got.Version != 1 {
		t.Fatalf("unexpected session %+v", got)
	}

	_ = store.Delete(ctx, "u1", 0)
	if mr.Exists("quiz:session:u1") {
		t.Fatalf("expected redis key to be removed")
	}

	// expired sessions disappear
	_ = store.Put(ctx, &app.PlaySession{PrincipalID: "u2"})
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "u2"); ok {
		t.Fatalf("expected session to expire")
	}
}

func TestSessionStoreVersionCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Minute)

	if err := store.Put(ctx, &app.PlaySession{PrincipalID: "u1", Order: []int{0, 1}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	first, _, _ := store.Get(ctx, "u1")
	second, _, _ := store.Get(ctx, "u1")

	first.Position = 1
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2, got %d", first.Version)
	}
	second.Position = 1
	if err := store.Save(ctx, second); !errors.Is(err, domain.ErrSessionChanged) {
		t.Fatalf("stale save should conflict, got %v", err)
	}
	if err := store.Delete(ctx, "u1", second.Version); !errors.Is(err, domain.ErrSessionChanged) {
		t.Fatalf("stale delete should conflict, got %v", err)
	}
	if err := store.Delete(ctx, "u1", first.Version); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Save(ctx, &app.PlaySession{PrincipalID: "u1"}); err != nil {
		t.Fatalf("create after delete: %v", err)
	}
	if err := store.Save(ctx, &app.PlaySession{PrincipalID: "u1"}); !errors.Is(err, domain.ErrSessionChanged) {
		t.Fatalf("second create should conflict, got %v", err)
	}
}

type instance struct {
	accounts *app.Accounts
	quizzes  *app.QuizService
}

// newInstance wires one service process against the shared Redis.
func newInstance(t *testing.T, mr *miniredis.Miniredis) *instance {
	t.Helper()
	client := newClient(mr)
	t.Cleanup(func() { _ = client.Close() })
	log := zap.NewNop()

	store := NewDocStore(client, nil, log)
	t.Cleanup(store.Close)
	loader := memory.NewStaticQuizLoader(map[string]domain.Quiz{"letters": lettersQuiz()})
	quizzes := NewQuizRepository(client, loader, time.Minute, log)
	sessions := NewSessionStore(client, time.Minute)

	ledger := app.NewLedger(store, quizzes)
	achievements := app.NewAchievementEvaluator(store)
	missions := app.NewMissionTracker(store, ledger)
	reconciler := app.NewReconciler(store, ledger, missions, achievements)
	return &instance{
		accounts: app.NewAccounts(store, ledger, achievements),
		quizzes:  app.NewQuizService(sessions, quizzes, ledger, reconciler),
	}
}

func TestConcurrentAnswersAcrossInstancesScoreOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	first := newInstance(t, mr)
	second := newInstance(t, mr)
	if _, err := first.accounts.SignIn(ctx, &domain.Identity{UID: "u1", DisplayName: "Ada"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	for round := 0; round < 10; round++ {
		before := profileScore(t, first, "u1")
		if _, err := first.quizzes.StartSession(ctx, "u1", "letters"); err != nil {
			t.Fatalf("round %d start: %v", round, err)
		}

		var wg sync.WaitGroup
		var advanced atomic.Int32
		for _, inst := range []*instance{first, second} {
			wg.Add(1)
			go func(inst *instance) {
				defer wg.Done()
				out, err := inst.quizzes.SubmitAnswer(ctx, "u1", "A")
				switch {
				case err == nil && out.Advanced:
					advanced.Add(1)
				case errors.Is(err, domain.ErrSessionChanged):
				default:
					t.Errorf("round %d submit: out=%+v err=%v", round, out, err)
				}
			}(inst)
		}
		wg.Wait()

		n := int(advanced.Load())
		if n == 0 {
			t.Fatalf("round %d: no answer was scored", round)
		}
		view, err := second.quizzes.Current(ctx, "u1")
		if err != nil {
			t.Fatalf("round %d current: %v", round, err)
		}
		if view.Position != n || view.SessionScore != n*domain.PointsPerCorrectAnswer {
			t.Fatalf("round %d: %d answers scored but session at position %d with score %d",
				round, n, view.Position, view.SessionScore)
		}
		if got := profileScore(t, first, "u1") - before; got != n*domain.PointsPerCorrectAnswer {
			t.Fatalf("round %d: %d answers scored but ledger grew by %d", round, n, got)
		}
	}
}

func profileScore(t *testing.T, inst *instance, uid string) int {
	t.Helper()
	profile, err := inst.accounts.Profile(context.Background(), uid)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	return profile.User.Score
}

// lettersQuiz shares one answer across questions so a late caller legitimately
// scores the next question.
func lettersQuiz() domain.Quiz {
	q := domain.Question{Text: "¿Primera letra?", Options: []string{"A", "B", "C", "D"}, Answer: "A"}
	return domain.Quiz{ID: "letters", Title: "Letras", Questions: []domain.Question{q, q, q}}
}
