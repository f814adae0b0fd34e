package app

import (
	"context"
	"time"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/metrics"
	"go.uber.org/zap"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache is a QuizRepository whose entries can be dropped after the
// authored content changes.
type QuizCache interface {
	QuizRepository
	Invalidate(ctx context.Context, quizID string) error
}

// Ledger owns the authoritative score and rank of every principal.
type Ledger struct {
	store   docstore.Store
	quizzes QuizRepository
	now     func() time.Time
	newID   func() string
	log     *zap.Logger
	metrics *metrics.Recorder
}

func NewLedger(store docstore.Store, quizzes QuizRepository, opts ...Option) *Ledger {
	o := buildOptions(opts)
	return &Ledger{
		store:   store,
		quizzes: quizzes,
		now:     o.now,
		newID:   o.newID,
		log:     o.log,
		metrics: o.metrics,
	}
}

// ApplyCorrectAnswer scores answer against question questionIndex of quizID.
// An exact match earns PointsPerCorrectAnswer; a miss earns nothing but still
// advances the principal's question index and appends a history entry.
func (l *Ledger) ApplyCorrectAnswer(ctx context.Context, principalID, quizID string, questionIndex int, answer string) (domain.LedgerResult, error) {
	if principalID == "" {
		return domain.LedgerResult{}, domain.ErrNoPrincipal
	}
	if answer == "" {
		return domain.LedgerResult{}, domain.Errorf(domain.ErrInvalidArgument, "answer is required")
	}
	question, err := l.question(ctx, quizID, questionIndex)
	if err != nil {
		return domain.LedgerResult{}, err
	}

	points := 0
	if answer == question.Answer {
		points = domain.PointsPerCorrectAnswer
	}
	res, err := l.record(ctx, principalID, questionIndex, points)
	if err != nil {
		return domain.LedgerResult{}, err
	}
	res.Correct = points > 0
	if !res.Correct {
		res.CorrectAnswer = question.Answer
	}
	res.Feedback = question.Feedback
	return res, nil
}

// RecordMiss closes a question the principal did not answer correctly in
// time: no points, index advance, one history entry.
func (l *Ledger) RecordMiss(ctx context.Context, principalID, quizID string, questionIndex int) (domain.LedgerResult, error) {
	if principalID == "" {
		return domain.LedgerResult{}, domain.ErrNoPrincipal
	}
	question, err := l.question(ctx, quizID, questionIndex)
	if err != nil {
		return domain.LedgerResult{}, err
	}
	res, err := l.record(ctx, principalID, questionIndex, 0)
	if err != nil {
		return domain.LedgerResult{}, err
	}
	res.CorrectAnswer = question.Answer
	res.Feedback = question.Feedback
	return res, nil
}

func (l *Ledger) question(ctx context.Context, quizID string, index int) (domain.Question, error) {
	if quizID == "" {
		return domain.Question{}, domain.Errorf(domain.ErrInvalidArgument, "quizId is required")
	}
	if index < 0 {
		return domain.Question{}, domain.Errorf(domain.ErrInvalidArgument, "questionIndex must not be negative")
	}
	quiz, err := l.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Question{}, classify("load quiz", err)
	}
	if index >= len(quiz.Questions) {
		return domain.Question{}, domain.ErrQuestionOutOfRange
	}
	return quiz.Questions[index], nil
}

func (l *Ledger) record(ctx context.Context, principalID string, questionIndex, points int) (domain.LedgerResult, error) {
	var res domain.LedgerResult
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		user, err := readUser(ctx, tx, principalID)
		if err != nil {
			return err
		}
		newScore := user.Score + points
		rank := domain.RankOf(newScore)
		res = domain.LedgerResult{
			PointsAwarded: points,
			NewScore:      newScore,
			NewRank:       rank.Name,
			RankChanged:   rank.Name != user.Rank,
			NextIndex:     questionIndex + 1,
		}
		if err := tx.Set(userPath(principalID), map[string]any{
			"score":                newScore,
			"rank":                 rank.Name,
			"currentQuestionIndex": questionIndex + 1,
		}, docstore.Merge()); err != nil {
			return err
		}
		return tx.Set(historyPath(principalID, l.newID()), domain.ScoreHistoryEntry{
			Score:      newScore,
			RecordedAt: l.now(),
		})
	})
	if err != nil {
		return domain.LedgerResult{}, classify("ledger write", err)
	}

	l.metrics.LedgerWrite(points > 0)
	if res.RankChanged {
		l.logRankChange(principalID, res.NewRank, res.NewScore)
	}
	return res, nil
}

func (l *Ledger) logRankChange(principalID, rank string, score int) {
	l.log.Info("rank changed",
		zap.String("user_id", principalID),
		zap.String("rank", rank),
		zap.Int("score", score))
}

// Credit adds points to the principal's score inside tx and recomputes the
// rank. It writes no history entry. tx may still be retried, so the caller
// passes the committed result to CreditCommitted.
func (l *Ledger) Credit(ctx context.Context, tx docstore.Tx, principalID string, points int) (domain.CreditResult, error) {
	user, err := readUser(ctx, tx, principalID)
	if err != nil {
		return domain.CreditResult{}, err
	}
	newScore := user.Score + points
	rank := domain.RankOf(newScore)
	err = tx.Set(userPath(principalID), map[string]any{
		"score": newScore,
		"rank":  rank.Name,
	}, docstore.Merge())
	if err != nil {
		return domain.CreditResult{}, err
	}
	return domain.CreditResult{
		NewScore:    newScore,
		NewRank:     rank.Name,
		RankChanged: rank.Name != user.Rank,
	}, nil
}

// CreditCommitted logs a rank change carried by a committed Credit.
func (l *Ledger) CreditCommitted(principalID string, res domain.CreditResult) {
	if res.RankChanged {
		l.logRankChange(principalID, res.NewRank, res.NewScore)
	}
}

// ResetIndex rewinds the principal's question index for a new play-through
// and returns the persisted score.
func (l *Ledger) ResetIndex(ctx context.Context, principalID string) (int, error) {
	var score int
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		user, err := readUser(ctx, tx, principalID)
		if err != nil {
			return err
		}
		score = user.Score
		return tx.Set(userPath(principalID), map[string]any{"currentQuestionIndex": 0}, docstore.Merge())
	})
	if err != nil {
		return 0, classify("reset question index", err)
	}
	return score, nil
}

// History returns the principal's score history, oldest first.
func (l *Ledger) History(ctx context.Context, principalID string) ([]domain.ScoreHistoryEntry, error) {
	if principalID == "" {
		return nil, domain.ErrNoPrincipal
	}
	docs, err := l.store.Query(ctx, docstore.Query{
		Collection: historyCollection(principalID),
		OrderBy:    "recordedAt",
		Direction:  docstore.Asc,
	})
	if err != nil {
		return nil, classify("query score history", err)
	}
	entries, err := docstore.DecodeAll[domain.ScoreHistoryEntry](docs)
	if err != nil {
		return nil, classify("decode score history", err)
	}
	return entries, nil
}

func readUser(ctx context.Context, r docstore.Reader, principalID string) (domain.User, error) {
	user, found, err := docstore.Get[domain.User](ctx, r, userPath(principalID))
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}
