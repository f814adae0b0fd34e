package app

import (
	"context"
	"fmt"
	"time"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"go.uber.org/zap"
)

const (
	messageCorrect      = "¡Respuesta correcta!"
	messageIncorrectFmt = "Incorrecto. La respuesta era: %s"
)

// Reconciler sequences the secondary reactions to a scoring event: the
// ledger write is authoritative, then mission progress, then achievements.
// Failures of the secondary reactions are logged and skipped; both are
// idempotent and re-run on the next qualifying event.
type Reconciler struct {
	store        docstore.Store
	ledger       *Ledger
	missions     *MissionTracker
	achievements *AchievementEvaluator
	now          func() time.Time
	log          *zap.Logger
}

func NewReconciler(store docstore.Store, ledger *Ledger, missions *MissionTracker, achievements *AchievementEvaluator, opts ...Option) *Reconciler {
	o := buildOptions(opts)
	return &Reconciler{
		store:        store,
		ledger:       ledger,
		missions:     missions,
		achievements: achievements,
		now:          o.now,
		log:          o.log,
	}
}

// SubmitAnswer is the server-authoritative scoring entrypoint.
func (r *Reconciler) SubmitAnswer(ctx context.Context, principalID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	res, err := r.ledger.ApplyCorrectAnswer(ctx, principalID, sub.QuizID, sub.QuestionIndex, sub.Answer)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	out := domain.AnswerResult{Success: res.Correct, Ledger: res}
	if res.Correct {
		out.Message = messageCorrect
		out.Missions = r.recordMissions(ctx, principalID,
			missionEvent{domain.MissionScorePoints, res.PointsAwarded},
			missionEvent{domain.MissionCorrectAnswers, 1})
	} else {
		out.Message = fmt.Sprintf(messageIncorrectFmt, res.CorrectAnswer)
	}
	out.Unlocked = r.evaluate(ctx, principalID)
	return out, nil
}

// ForfeitQuestion closes a question after exhausted attempts or timer expiry.
func (r *Reconciler) ForfeitQuestion(ctx context.Context, principalID, quizID string, questionIndex int) (domain.LedgerResult, error) {
	return r.ledger.RecordMiss(ctx, principalID, quizID, questionIndex)
}

// CompleteQuiz records a finished play-through: the quiz joins the completed
// set, its history entry carries the session-only score, and the question
// index rewinds for the next play. A PLAY_QUIZ mission event and an
// achievement evaluation follow.
func (r *Reconciler) CompleteQuiz(ctx context.Context, principalID string, quiz domain.Quiz, sessionScore int) (domain.QuizCompletion, error) {
	if principalID == "" {
		return domain.QuizCompletion{}, domain.ErrNoPrincipal
	}
	completion := domain.QuizCompletion{QuizID: quiz.ID, SessionScore: sessionScore}
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		user, err := readUser(ctx, tx, principalID)
		if err != nil {
			return err
		}
		completion.FirstTime = !user.HasCompleted(quiz.ID)
		user.MarkCompleted(quiz.ID)
		if user.QuizHistory == nil {
			user.QuizHistory = make(map[string]domain.QuizRecord)
		}
		user.QuizHistory[quiz.ID] = domain.QuizRecord{
			Score:       sessionScore,
			Topic:       quiz.Topic,
			CompletedAt: r.now(),
		}
		return tx.Set(userPath(principalID), map[string]any{
			"completedQuizzes":     user.CompletedQuizzes,
			"quizHistory":          user.QuizHistory,
			"currentQuestionIndex": 0,
		}, docstore.Merge())
	})
	if err != nil {
		return domain.QuizCompletion{}, classify("complete quiz", err)
	}

	r.log.Info("quiz completed",
		zap.String("user_id", principalID),
		zap.String("quiz_id", quiz.ID),
		zap.Int("session_score", sessionScore))
	completion.Missions = r.recordMissions(ctx, principalID, missionEvent{domain.MissionPlayQuiz, 1})
	completion.Unlocked = r.evaluate(ctx, principalID)
	return completion, nil
}

type missionEvent struct {
	kind   domain.MissionType
	amount int
}

func (r *Reconciler) recordMissions(ctx context.Context, principalID string, events ...missionEvent) []domain.MissionOutcome {
	var outcomes []domain.MissionOutcome
	for _, ev := range events {
		outcome, err := r.missions.RecordEvent(ctx, principalID, ev.kind, ev.amount)
		if err != nil {
			r.log.Warn("mission update failed",
				zap.String("user_id", principalID),
				zap.String("event", string(ev.kind)),
				zap.Error(err))
			continue
		}
		if outcome != nil {
			outcomes = append(outcomes, *outcome)
		}
	}
	return outcomes
}

func (r *Reconciler) evaluate(ctx context.Context, principalID string) []domain.Achievement {
	unlocked, err := r.achievements.Evaluate(ctx, principalID)
	if err != nil {
		r.log.Warn("achievement evaluation failed", zap.String("user_id", principalID), zap.Error(err))
	}
	return unlocked
}
