package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/metrics"
	"go.uber.org/zap"
)

const (
	// MaxAttempts is how many answers a principal may give per question.
	MaxAttempts = 3
	// DefaultQuestionTimeLimit is the per-question countdown.
	DefaultQuestionTimeLimit = 30 * time.Second
	// DefaultSessionWriteAttempts bounds re-reads when folding a score into a
	// session that moved concurrently.
	DefaultSessionWriteAttempts = 5

	messageRetryFmt   = "Incorrecto. Te quedan %d intentos."
	messageTimeoutFmt = "¡Tiempo agotado! La respuesta era: %s"
)

// SessionRepository abstracts where play sessions live (in-memory, Redis).
// Sessions are keyed by principal: one play-through at a time. Writes are
// versioned so two instances cannot both move the same session forward.
type SessionRepository interface {
	Get(ctx context.Context, principalID string) (*PlaySession, bool, error)
	// Put replaces whatever is stored and sets session.Version to 1.
	Put(ctx context.Context, session *PlaySession) error
	// Save stores session only if the stored version still equals
	// session.Version (0 meaning nothing stored), then bumps session.Version.
	// A mismatch is domain.ErrSessionChanged.
	Save(ctx context.Context, session *PlaySession) error
	// Delete removes the session if its stored version equals version.
	// Version 0 deletes unconditionally.
	Delete(ctx context.Context, principalID string, version int64) error
}

// PlaySession is one principal's ephemeral progress through a shuffled quiz.
// Order maps session positions to indexes in the stored question set.
type PlaySession struct {
	PrincipalID       string    `json:"principalId"`
	QuizID            string    `json:"quizId"`
	Order             []int     `json:"order"`
	Position          int       `json:"position"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
	Deadline          time.Time `json:"deadline"`
	SessionScore      int       `json:"sessionScore"`
	DisplayScore      int       `json:"displayScore"`
	StartedAt         time.Time `json:"startedAt"`
	Version           int64     `json:"version"`
}

// SessionView is the active question as shown to the player. It never
// carries the answer.
type SessionView struct {
	QuizID            string    `json:"quizId"`
	Title             string    `json:"title"`
	Position          int       `json:"position"`
	Total             int       `json:"total"`
	Question          string    `json:"question"`
	Options           []string  `json:"options"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
	Deadline          time.Time `json:"deadline"`
	DisplayScore      int       `json:"displayScore"`
	SessionScore      int       `json:"sessionScore"`
}

// AnswerOutcome reports what one submission did to the session.
type AnswerOutcome struct {
	Correct           bool                    `json:"correct"`
	TimedOut          bool                    `json:"timedOut"`
	Advanced          bool                    `json:"advanced"`
	AttemptsRemaining int                     `json:"attemptsRemaining"`
	Message           string                  `json:"message"`
	CorrectAnswer     string                  `json:"correctAnswer,omitempty"`
	Feedback          string                  `json:"feedback,omitempty"`
	Ledger            *domain.LedgerResult    `json:"ledger,omitempty"`
	Missions          []domain.MissionOutcome `json:"missions,omitempty"`
	Unlocked          []domain.Achievement    `json:"unlocked,omitempty"`
	Completion        *domain.QuizCompletion  `json:"completion,omitempty"`
	Next              *SessionView            `json:"next,omitempty"`
}

// QuizService runs the quiz session state machine. Scoring goes through the
// Reconciler; the service only tracks attempts, the countdown and position.
//
// A question is claimed before it is scored: the session is first written past
// it under the version check, so when two calls race on the same question
// only one reaches the Reconciler and the other gets domain.ErrSessionChanged.
type QuizService struct {
	sessions   SessionRepository
	quizzes    QuizRepository
	ledger     *Ledger
	reconciler *Reconciler
	timeLimit  time.Duration
	now        func() time.Time
	shuffle    func(n int, swap func(i, j int))
	log        *zap.Logger
	metrics    *metrics.Recorder
}

func NewQuizService(sessions SessionRepository, quizzes QuizRepository, ledger *Ledger, reconciler *Reconciler, opts ...Option) *QuizService {
	o := buildOptions(opts)
	return &QuizService{
		sessions:   sessions,
		quizzes:    quizzes,
		ledger:     ledger,
		reconciler: reconciler,
		timeLimit:  DefaultQuestionTimeLimit,
		now:        o.now,
		shuffle:    o.shuffle,
		log:        o.log,
		metrics:    o.metrics,
	}
}

// SetQuestionTimeLimit overrides the per-question countdown.
func (s *QuizService) SetQuestionTimeLimit(d time.Duration) {
	if d > 0 {
		s.timeLimit = d
	}
}

// StartSession begins a fresh play-through of quizID in a new random order,
// replacing any session in progress. The display score starts from the
// principal's persisted cumulative score.
func (s *QuizService) StartSession(ctx context.Context, principalID, quizID string) (SessionView, error) {
	if principalID == "" {
		return SessionView{}, domain.ErrNoPrincipal
	}
	if quizID == "" {
		return SessionView{}, domain.Errorf(domain.ErrInvalidArgument, "quizId is required")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return SessionView{}, classify("load quiz", err)
	}
	if len(quiz.Questions) == 0 {
		return SessionView{}, domain.Errorf(domain.ErrNotFound, "quiz %s has no questions", quizID)
	}

	score, err := s.ledger.ResetIndex(ctx, principalID)
	if err != nil {
		return SessionView{}, err
	}

	order := make([]int, len(quiz.Questions))
	for i := range order {
		order[i] = i
	}
	s.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	_, existed, err := s.sessions.Get(ctx, principalID)
	if err != nil {
		return SessionView{}, classify("load session", err)
	}
	now := s.now()
	session := &PlaySession{
		PrincipalID:       principalID,
		QuizID:            quizID,
		Order:             order,
		AttemptsRemaining: MaxAttempts,
		Deadline:          now.Add(s.timeLimit),
		DisplayScore:      score,
		StartedAt:         now,
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		return SessionView{}, classify("save session", err)
	}
	if !existed {
		s.metrics.SessionStarted()
	}
	s.log.Info("quiz session started",
		zap.String("user_id", principalID),
		zap.String("quiz_id", quizID),
		zap.Int("questions", len(order)))
	return s.view(session, quiz), nil
}

// Current returns the active question.
func (s *QuizService) Current(ctx context.Context, principalID string) (SessionView, error) {
	session, quiz, err := s.load(ctx, principalID)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(session, quiz), nil
}

// SubmitAnswer applies one answer to the active question. A correct answer
// scores and advances. A wrong one costs an attempt; the last attempt, or a
// submission after the deadline, forfeits the question and reveals the answer.
func (s *QuizService) SubmitAnswer(ctx context.Context, principalID, selected string) (AnswerOutcome, error) {
	if principalID == "" {
		return AnswerOutcome{}, domain.ErrNoPrincipal
	}
	session, quiz, err := s.load(ctx, principalID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if session.Position >= len(session.Order) {
		// a previous completion attempt failed after the last question was scored
		return s.retryFinish(ctx, session, quiz)
	}
	if !s.now().Before(session.Deadline) {
		return s.forfeit(ctx, session, quiz, true)
	}
	if selected == "" {
		return AnswerOutcome{}, domain.Errorf(domain.ErrInvalidArgument, "answer is required")
	}

	index, question, err := s.question(session, quiz)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if selected != question.Answer {
		session.AttemptsRemaining--
		if session.AttemptsRemaining <= 0 {
			return s.forfeit(ctx, session, quiz, false)
		}
		if err := s.sessions.Save(ctx, session); err != nil {
			return AnswerOutcome{}, classify("save session", err)
		}
		return AnswerOutcome{
			AttemptsRemaining: session.AttemptsRemaining,
			Message:           fmt.Sprintf(messageRetryFmt, session.AttemptsRemaining),
		}, nil
	}

	prev, err := s.claim(ctx, session)
	if err != nil {
		return AnswerOutcome{}, err
	}
	res, err := s.reconciler.SubmitAnswer(ctx, principalID, domain.AnswerSubmission{
		QuizID:        session.QuizID,
		QuestionIndex: index,
		Answer:        selected,
	})
	if err != nil {
		s.release(ctx, session, prev)
		return AnswerOutcome{}, err
	}
	ledger := res.Ledger
	display := ledger.NewScore
	for _, m := range res.Missions {
		if m.NewScore > display {
			display = m.NewScore
		}
	}
	return s.scored(ctx, session, quiz, ledger.PointsAwarded, display, AnswerOutcome{
		Correct:  true,
		Message:  res.Message,
		Feedback: question.Feedback,
		Ledger:   &ledger,
		Missions: res.Missions,
		Unlocked: res.Unlocked,
	})
}

// Expire handles the countdown running out on the active question.
func (s *QuizService) Expire(ctx context.Context, principalID string) (AnswerOutcome, error) {
	if principalID == "" {
		return AnswerOutcome{}, domain.ErrNoPrincipal
	}
	session, quiz, err := s.load(ctx, principalID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if session.Position >= len(session.Order) {
		return s.retryFinish(ctx, session, quiz)
	}
	return s.forfeit(ctx, session, quiz, true)
}

// Abandon tears the session down. The countdown dies with it.
func (s *QuizService) Abandon(ctx context.Context, principalID string) error {
	if principalID == "" {
		return domain.ErrNoPrincipal
	}
	_, found, err := s.sessions.Get(ctx, principalID)
	if err != nil {
		return classify("load session", err)
	}
	if !found {
		return nil
	}
	if err := s.sessions.Delete(ctx, principalID, 0); err != nil {
		return classify("delete session", err)
	}
	s.metrics.SessionEnded()
	return nil
}

func (s *QuizService) load(ctx context.Context, principalID string) (*PlaySession, domain.Quiz, error) {
	if principalID == "" {
		return nil, domain.Quiz{}, domain.ErrNoPrincipal
	}
	session, found, err := s.sessions.Get(ctx, principalID)
	if err != nil {
		return nil, domain.Quiz{}, classify("load session", err)
	}
	if !found {
		return nil, domain.Quiz{}, domain.ErrSessionNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return nil, domain.Quiz{}, classify("load quiz", err)
	}
	return session, quiz, nil
}

func (s *QuizService) question(session *PlaySession, quiz domain.Quiz) (int, domain.Question, error) {
	index := session.Order[session.Position]
	if index >= len(quiz.Questions) {
		return 0, domain.Question{}, domain.ErrQuestionOutOfRange
	}
	return index, quiz.Questions[index], nil
}

// claim moves the stored session past its active question and returns the
// state it replaced. Claiming the last question removes the session, so a
// racing call finds nothing left to score.
func (s *QuizService) claim(ctx context.Context, session *PlaySession) (PlaySession, error) {
	prev := *session
	session.Position++
	var err error
	if session.Position >= len(session.Order) {
		err = s.sessions.Delete(ctx, session.PrincipalID, prev.Version)
	} else {
		session.AttemptsRemaining = MaxAttempts
		session.Deadline = s.now().Add(s.timeLimit)
		err = s.sessions.Save(ctx, session)
	}
	if err != nil {
		*session = prev
		return prev, classify("claim question", err)
	}
	return prev, nil
}

// release puts a claimed question back after scoring failed. If the session
// moved on meanwhile the claim stays and the failure is only logged.
func (s *QuizService) release(ctx context.Context, session *PlaySession, prev PlaySession) {
	restore := prev
	if session.Position >= len(session.Order) {
		restore.Version = 0
	} else {
		restore.Version = session.Version
	}
	if err := s.sessions.Save(ctx, &restore); err != nil {
		s.log.Warn("releasing claimed question failed",
			zap.String("user_id", session.PrincipalID),
			zap.Int("position", prev.Position),
			zap.Error(err))
	}
}

// credit folds a scored question into the stored session, re-reading it when
// another call moved it in between.
func (s *QuizService) credit(ctx context.Context, session *PlaySession, points, display int) error {
	for attempt := 0; attempt < DefaultSessionWriteAttempts; attempt++ {
		next := *session
		next.SessionScore += points
		if display > next.DisplayScore {
			next.DisplayScore = display
		}
		err := s.sessions.Save(ctx, &next)
		if err == nil {
			*session = next
			return nil
		}
		if !errors.Is(err, domain.ErrSessionChanged) {
			return classify("save session", err)
		}
		current, found, err := s.sessions.Get(ctx, session.PrincipalID)
		if err != nil {
			return classify("load session", err)
		}
		if !found || current.QuizID != session.QuizID || !current.StartedAt.Equal(session.StartedAt) {
			// finished or restarted; the points are in the ledger already
			return nil
		}
		*session = *current
	}
	return classify("save session", domain.ErrSessionChanged)
}

func (s *QuizService) forfeit(ctx context.Context, session *PlaySession, quiz domain.Quiz, timedOut bool) (AnswerOutcome, error) {
	index, question, err := s.question(session, quiz)
	if err != nil {
		return AnswerOutcome{}, err
	}
	prev, err := s.claim(ctx, session)
	if err != nil {
		return AnswerOutcome{}, err
	}
	res, err := s.reconciler.ForfeitQuestion(ctx, session.PrincipalID, session.QuizID, index)
	if err != nil {
		s.release(ctx, session, prev)
		return AnswerOutcome{}, err
	}

	msg := fmt.Sprintf(messageIncorrectFmt, question.Answer)
	if timedOut {
		msg = fmt.Sprintf(messageTimeoutFmt, question.Answer)
	}
	return s.scored(ctx, session, quiz, 0, res.NewScore, AnswerOutcome{
		TimedOut:      timedOut,
		Message:       msg,
		CorrectAnswer: question.Answer,
		Feedback:      question.Feedback,
		Ledger:        &res,
	})
}

// scored records the outcome of a claimed question and either shows the next
// one or completes the quiz.
func (s *QuizService) scored(ctx context.Context, session *PlaySession, quiz domain.Quiz, points, display int, out AnswerOutcome) (AnswerOutcome, error) {
	out.Advanced = true
	if session.Position >= len(session.Order) {
		session.SessionScore += points
		session.DisplayScore = display
		return s.finish(ctx, session, quiz, out)
	}
	if err := s.credit(ctx, session, points, display); err != nil {
		return AnswerOutcome{}, err
	}
	next := s.view(session, quiz)
	out.Next = &next
	out.AttemptsRemaining = session.AttemptsRemaining
	return out, nil
}

// retryFinish claims a session left at its end position by a failed
// completion and completes it again.
func (s *QuizService) retryFinish(ctx context.Context, session *PlaySession, quiz domain.Quiz) (AnswerOutcome, error) {
	if err := s.sessions.Delete(ctx, session.PrincipalID, session.Version); err != nil {
		return AnswerOutcome{}, classify("claim completion", err)
	}
	return s.finish(ctx, session, quiz, AnswerOutcome{})
}

// finish completes the quiz. The session is already gone from the repository;
// if completion fails it is stored again at its end position so the next call
// retries completion without rescoring.
func (s *QuizService) finish(ctx context.Context, session *PlaySession, quiz domain.Quiz, out AnswerOutcome) (AnswerOutcome, error) {
	completion, err := s.reconciler.CompleteQuiz(ctx, session.PrincipalID, quiz, session.SessionScore)
	if err != nil {
		pending := *session
		pending.Version = 0
		if saveErr := s.sessions.Save(ctx, &pending); saveErr != nil {
			s.log.Warn("keeping finished session failed", zap.String("user_id", session.PrincipalID), zap.Error(saveErr))
		}
		return AnswerOutcome{}, err
	}
	s.metrics.SessionEnded()
	out.Completion = &completion
	out.AttemptsRemaining = 0
	return out, nil
}

func (s *QuizService) view(session *PlaySession, quiz domain.Quiz) SessionView {
	v := SessionView{
		QuizID:            session.QuizID,
		Title:             quiz.Title,
		Position:          session.Position,
		Total:             len(session.Order),
		AttemptsRemaining: session.AttemptsRemaining,
		Deadline:          session.Deadline,
		DisplayScore:      session.DisplayScore,
		SessionScore:      session.SessionScore,
	}
	if session.Position < len(session.Order) {
		if index := session.Order[session.Position]; index < len(quiz.Questions) {
			q := quiz.Questions[index]
			v.Question = q.Text
			v.Options = append([]string(nil), q.Options...)
		}
	}
	return v
}
