package app_test

import (
	"context"
	"errors"
	"testing"

	"chronotech-quiz-service/internal/domain"
)

func TestEvaluateUnlocksOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")
	f.setUserFields(t, "u1", map[string]any{
		"score":            260,
		"completedQuizzes": []string{"a", "b"},
	})

	first, err := f.achievements.Evaluate(ctx, "u1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := []string{"first_quiz_completed", "score_100", "score_250"}
	if len(first) != len(want) {
		t.Fatalf("expected %v, got %+v", want, first)
	}
	for i, id := range want {
		if first[i].ID != id {
			t.Fatalf("unlock %d: expected %s, got %s", i, id, first[i].ID)
		}
	}

	second, err := f.achievements.Evaluate(ctx, "u1")
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected nothing new, got %+v", second)
	}

	unlocked, err := f.achievements.Unlocked(ctx, "u1")
	if err != nil || len(unlocked) != 3 {
		t.Fatalf("expected 3 unlocked, got %+v (%v)", unlocked, err)
	}
}

func TestEvaluateRequiresUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.achievements.Evaluate(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := f.achievements.Evaluate(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
