package app_test

import (
	"context"
	"errors"
	"testing"

	"chronotech-quiz-service/internal/domain"
)

func TestSubmitAnswerMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")

	res, err := f.reconciler.SubmitAnswer(ctx, "u1", domain.AnswerSubmission{
		QuizID: "history-quiz", QuestionIndex: 0, Answer: "2007",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success || res.Message != "¡Respuesta correcta!" {
		t.Fatalf("unexpected correct result %+v", res)
	}

	res, err = f.reconciler.SubmitAnswer(ctx, "u1", domain.AnswerSubmission{
		QuizID: "history-quiz", QuestionIndex: 1, Answer: "Steve Jobs",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Success || res.Message != "Incorrecto. La respuesta era: Linus Torvalds" {
		t.Fatalf("unexpected miss result %+v", res)
	}
}

func TestSubmitAnswerMissDoesNotFeedMissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")
	f.generateMission(t, domain.MissionCorrectAnswers)

	res, err := f.reconciler.SubmitAnswer(ctx, "u1", domain.AnswerSubmission{
		QuizID: "history-quiz", QuestionIndex: 0, Answer: "2006",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(res.Missions) != 0 {
		t.Fatalf("a miss must not count, got %+v", res.Missions)
	}

	res, err = f.reconciler.SubmitAnswer(ctx, "u1", domain.AnswerSubmission{
		QuizID: "history-quiz", QuestionIndex: 1, Answer: "Linus Torvalds",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(res.Missions) != 1 || res.Missions[0].Progress.Progress != 1 || res.Missions[0].JustCompleted {
		t.Fatalf("expected one unit of progress, got %+v", res.Missions)
	}
}

func TestSubmitAnswerScoreAchievement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")
	f.setUserFields(t, "u1", map[string]any{"score": 90})

	res, err := f.reconciler.SubmitAnswer(ctx, "u1", domain.AnswerSubmission{
		QuizID: "generations-quiz", QuestionIndex: 0, Answer: "Generación X",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(res.Unlocked) != 1 || res.Unlocked[0].ID != "score_100" {
		t.Fatalf("expected score_100, got %+v", res.Unlocked)
	}
	if !res.Ledger.RankChanged {
		t.Fatalf("expected promotion at 100 points")
	}
}

func TestSubmitAnswerUnauthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconciler.SubmitAnswer(context.Background(), "", domain.AnswerSubmission{
		QuizID: "generations-quiz", Answer: "Generación X",
	})
	if !errors.Is(err, domain.ErrUnauthenticated) || domain.CodeOf(err) != domain.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
