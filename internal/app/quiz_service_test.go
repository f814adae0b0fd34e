package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chronotech-quiz-service/internal/app"
	"chronotech-quiz-service/internal/domain"
)

func TestQuizSessionPlayThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")

	view, err := f.quizService.StartSession(ctx, "u1", "history-quiz")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Total != 3 || view.Position != 0 || view.AttemptsRemaining != app.MaxAttempts {
		t.Fatalf("unexpected initial view %+v", view)
	}
	if view.Question != "¿Año del primer iPhone?" || len(view.Options) != 4 {
		t.Fatalf("unexpected first question %+v", view)
	}

	out, err := f.quizService.SubmitAnswer(ctx, "u1", "2007")
	if err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	if !out.Correct || !out.Advanced || out.Next == nil || out.Next.Position != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Next.DisplayScore != 10 || out.Next.SessionScore != 10 {
		t.Fatalf("expected scores of 10, got %+v", out.Next)
	}

	// three misses forfeit the question
	for want := app.MaxAttempts - 1; want > 0; want-- {
		out, err = f.quizService.SubmitAnswer(ctx, "u1", "Bill Gates")
		if err != nil {
			t.Fatalf("miss: %v", err)
		}
		if out.Advanced || out.AttemptsRemaining != want {
			t.Fatalf("expected %d attempts left without advancing, got %+v", want, out)
		}
	}
	out, err = f.quizService.SubmitAnswer(ctx, "u1", "Bill Gates")
	if err != nil {
		t.Fatalf("last miss: %v", err)
	}
	if !out.Advanced || out.Correct || out.CorrectAnswer != "Linus Torvalds" {
		t.Fatalf("expected forfeit revealing the answer, got %+v", out)
	}
	if out.Message != "Incorrecto. La respuesta era: Linus Torvalds" {
		t.Fatalf("unexpected forfeit message %q", out.Message)
	}
	if out.Next == nil || out.Next.AttemptsRemaining != app.MaxAttempts {
		t.Fatalf("attempts should reset on the next question, got %+v", out.Next)
	}

	out, err = f.quizService.SubmitAnswer(ctx, "u1", "World Wide Web")
	if err != nil {
		t.Fatalf("answer 3: %v", err)
	}
	if out.Completion == nil || out.Next != nil {
		t.Fatalf("expected completion, got %+v", out)
	}
	if out.Completion.SessionScore != 20 || !out.Completion.FirstTime {
		t.Fatalf("unexpected completion %+v", out.Completion)
	}
	if !containsAchievement(out.Completion.Unlocked, "first_quiz_completed") {
		t.Fatalf("expected first quiz achievement, got %+v", out.Completion.Unlocked)
	}

	u := f.user(t, "u1")
	if u.Score != 20 || u.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected user after completion score=%d index=%d", u.Score, u.CurrentQuestionIndex)
	}
	if len(u.CompletedQuizzes) != 1 || u.CompletedQuizzes[0] != "history-quiz" {
		t.Fatalf("unexpected completed quizzes %v", u.CompletedQuizzes)
	}
	if rec := u.QuizHistory["history-quiz"]; rec.Score != 20 || rec.Topic != "tecnologia" {
		t.Fatalf("unexpected quiz history %+v", rec)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("finished session should be dropped")
	}
	if _, err := f.quizService.Current(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no session after completion, got %v", err)
	}
}

func TestQuizSessionTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")

	if _, err := f.quizService.StartSession(ctx, "u1", "history-quiz"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(app.DefaultQuestionTimeLimit)

	// a late correct answer still forfeits
	out, err := f.quizService.SubmitAnswer(ctx, "u1", "2007")
	if err != nil {
		t.Fatalf("late answer: %v", err)
	}
	if !out.TimedOut || out.Correct || out.CorrectAnswer != "2007" {
		t.Fatalf("expected timeout, got %+v", out)
	}
	if out.Message != "¡Tiempo agotado! La respuesta era: 2007" {
		t.Fatalf("unexpected timeout message %q", out.Message)
	}
	if out.Next == nil || !out.Next.Deadline.Equal(f.clock.Now().Add(app.DefaultQuestionTimeLimit)) {
		t.Fatalf("expected a fresh countdown, got %+v", out.Next)
	}

	out, err = f.quizService.Expire(ctx, "u1")
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !out.TimedOut || out.Next == nil || out.Next.Position != 2 {
		t.Fatalf("unexpected expire outcome %+v", out)
	}
	u := f.user(t, "u1")
	if u.Score != 0 || u.CurrentQuestionIndex != 2 {
		t.Fatalf("timeouts must not score, got score=%d index=%d", u.Score, u.CurrentQuestionIndex)
	}
	if n := f.count(t, "users/u1/scoreHistory"); n != 2 {
		t.Fatalf("expected a history entry per closed question, got %d", n)
	}
}

func TestQuizSessionShuffledOrderScoresStoredIndex(t *testing.T) {
	ctx := context.Background()
	reverse := app.WithShuffle(func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	})
	f := newFixture(t, reverse)
	f.signIn(t, "u1", "Ada")

	view, err := f.quizService.StartSession(ctx, "u1", "history-quiz")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Question != "¿Qué significa WWW?" {
		t.Fatalf("expected the last authored question first, got %q", view.Question)
	}
	out, err := f.quizService.SubmitAnswer(ctx, "u1", "World Wide Web")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !out.Correct || out.Ledger.NextIndex != 3 {
		t.Fatalf("expected ledger to score stored index 2, got %+v", out.Ledger)
	}
}

func TestQuizSessionCompletionFeedsMissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")
	f.setUserFields(t, "u1", map[string]any{"score": 40})
	f.generateMission(t, domain.MissionPlayQuiz)

	view, err := f.quizService.StartSession(ctx, "u1", "generations-quiz")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.DisplayScore != 40 {
		t.Fatalf("display score should start from the persisted score, got %d", view.DisplayScore)
	}
	out, err := f.quizService.SubmitAnswer(ctx, "u1", "Generación X")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if out.Completion == nil || len(out.Completion.Missions) != 1 || !out.Completion.Missions[0].JustCompleted {
		t.Fatalf("expected PLAY_QUIZ completion, got %+v", out.Completion)
	}
	if u := f.user(t, "u1"); u.Score != 70 {
		t.Fatalf("expected 40 + 10 + 20, got %d", u.Score)
	}

	// replaying is not a first completion and does not re-credit the mission
	if _, err := f.quizService.StartSession(ctx, "u1", "generations-quiz"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	out, err = f.quizService.SubmitAnswer(ctx, "u1", "Generación X")
	if err != nil {
		t.Fatalf("replay answer: %v", err)
	}
	if out.Completion.FirstTime || len(out.Completion.Missions) != 0 {
		t.Fatalf("unexpected replay completion %+v", out.Completion)
	}
	if u := f.user(t, "u1"); u.Score != 80 || len(u.CompletedQuizzes) != 1 {
		t.Fatalf("unexpected user after replay score=%d completed=%v", u.Score, u.CompletedQuizzes)
	}
}

func TestQuizSessionDuplicateAnswersScoreOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")
	if _, err := f.quizService.StartSession(ctx, "u1", "history-quiz"); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.quizService.SubmitAnswer(ctx, "u1", "2007")
			if err != nil && !errors.Is(err, domain.ErrSessionChanged) {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()

	view, err := f.quizService.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	// late duplicates land on the next question as misses
	if view.Position != 1 || view.SessionScore != 10 || view.AttemptsRemaining < 1 {
		t.Fatalf("expected one scored question, got %+v", view)
	}
	if u := f.user(t, "u1"); u.Score != 10 {
		t.Fatalf("expected score 10, got %d", u.Score)
	}
}

func TestQuizSessionErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")

	if _, err := f.quizService.StartSession(ctx, "", "history-quiz"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := f.quizService.StartSession(ctx, "u1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.quizService.SubmitAnswer(ctx, "u1", "2007"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected missing session, got %v", err)
	}

	if _, err := f.quizService.StartSession(ctx, "u1", "history-quiz"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.quizService.SubmitAnswer(ctx, "u1", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := f.quizService.Abandon(ctx, "u1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := f.quizService.Current(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no session after abandon, got %v", err)
	}
	if err := f.quizService.Abandon(ctx, "u1"); err != nil {
		t.Fatalf("abandon twice: %v", err)
	}
}

func TestQuizSessionCustomTimeLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1", "Ada")
	f.quizService.SetQuestionTimeLimit(5 * time.Second)

	view, err := f.quizService.StartSession(ctx, "u1", "history-quiz")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if want := f.clock.Now().Add(5 * time.Second); !view.Deadline.Equal(want) {
		t.Fatalf("expected deadline %v, got %v", want, view.Deadline)
	}
}

func containsAchievement(list []domain.Achievement, id string) bool {
	for _, a := range list {
		if a.ID == id {
			return true
		}
	}
	return false
}
