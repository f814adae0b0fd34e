package domain

import (
	"sort"
	"time"
)

const (
	// PointsPerCorrectAnswer is awarded by the ledger for an exact answer match.
	PointsPerCorrectAnswer = 10
	// MaxCommentLength bounds comment and reply text after trimming, in characters.
	MaxCommentLength = 1000
)

// Identity is what the identity provider tells us about a signed-in user.
type Identity struct {
	UID         string
	DisplayName string
	Email       string
	PhotoURL    string
}

// Principal is the authenticated caller for the lifetime of a session. IsAdmin
// is sourced from the user document when the session starts.
type Principal struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	Email       string `json:"email"`
	IsAdmin     bool   `json:"isAdmin"`
}

// User is the principal's durable document.
type User struct {
	ID                   string                `json:"id"`
	DisplayName          string                `json:"displayName"`
	PhotoURL             string                `json:"photoUrl"`
	Email                string                `json:"email"`
	IsAdmin              bool                  `json:"isAdmin"`
	Score                int                   `json:"score"`
	Rank                 string                `json:"rank"`
	CurrentQuestionIndex int                   `json:"currentQuestionIndex"`
	CommentCount         int                   `json:"commentCount"`
	CompletedQuizzes     []string              `json:"completedQuizzes"`
	QuizHistory          map[string]QuizRecord `json:"quizHistory"`
	CreatedAt            time.Time             `json:"createdAt"`
	LastLogin            time.Time             `json:"lastLogin"`
}

// HasCompleted reports whether quizID is in the completed set.
func (u *User) HasCompleted(quizID string) bool {
	for _, id := range u.CompletedQuizzes {
		if id == quizID {
			return true
		}
	}
	return false
}

// MarkCompleted adds quizID to the completed set, keeping it sorted and unique.
func (u *User) MarkCompleted(quizID string) {
	if u.HasCompleted(quizID) {
		return
	}
	u.CompletedQuizzes = append(u.CompletedQuizzes, quizID)
	sort.Strings(u.CompletedQuizzes)
}

// QuizRecord is the per-quiz summary kept on the user document.
type QuizRecord struct {
	Score       int       `json:"score"`
	Topic       string    `json:"topic"`
	CompletedAt time.Time `json:"completedAt"`
}

// ScoreHistoryEntry is appended once per completed-question event.
type ScoreHistoryEntry struct {
	Score      int       `json:"score"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Question models a multiple-choice question; Answer is one of Options.
type Question struct {
	Text     string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
	Feedback string   `json:"feedback,omitempty"`
}

// Quiz is an ordered question set authored outside the core.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Topic       string     `json:"topic"`
	Questions   []Question `json:"questionSet"`
}

// Validate checks the authored shape: four distinct options and an answer among them.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return Errorf(ErrInvalidArgument, "quiz id is required")
	}
	if len(q.Questions) == 0 {
		return Errorf(ErrInvalidArgument, "quiz %s has no questions", q.ID)
	}
	for i, question := range q.Questions {
		if len(question.Options) != 4 {
			return Errorf(ErrInvalidArgument, "quiz %s question %d must have 4 options", q.ID, i)
		}
		seen := make(map[string]struct{}, len(question.Options))
		found := false
		for _, opt := range question.Options {
			if _, dup := seen[opt]; dup {
				return Errorf(ErrInvalidArgument, "quiz %s question %d has duplicate option %q", q.ID, i, opt)
			}
			seen[opt] = struct{}{}
			if opt == question.Answer {
				found = true
			}
		}
		if !found {
			return Errorf(ErrInvalidArgument, "quiz %s question %d answer is not an option", q.ID, i)
		}
	}
	return nil
}

// AnswerSubmission is the callable scoring input.
type AnswerSubmission struct {
	QuizID        string
	QuestionIndex int
	Answer        string
}

// LedgerResult is the outcome of a single ledger write.
type LedgerResult struct {
	Correct       bool   `json:"correct"`
	PointsAwarded int    `json:"pointsAwarded"`
	NewScore      int    `json:"newScore"`
	NewRank       string `json:"newRank"`
	RankChanged   bool   `json:"rankChanged"`
	NextIndex     int    `json:"nextIndex"`
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	Feedback      string `json:"feedback,omitempty"`
}

// CreditResult is the outcome of an additive score credit.
type CreditResult struct {
	NewScore    int
	NewRank     string
	RankChanged bool
}

// AnswerResult is what the callable entrypoint returns.
type AnswerResult struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Ledger   LedgerResult     `json:"ledger"`
	Missions []MissionOutcome `json:"missions,omitempty"`
	Unlocked []Achievement    `json:"unlocked,omitempty"`
}

// Comment is a top-level forum post.
type Comment struct {
	ID          string          `json:"id"`
	AuthorID    string          `json:"authorId"`
	AuthorName  string          `json:"authorName"`
	AuthorPhoto string          `json:"authorPhoto"`
	Text        string          `json:"text"`
	CreatedAt   time.Time       `json:"createdAt"`
	Likes       map[string]bool `json:"likes"`
	LikeCount   int             `json:"likeCount"`
}

// Reply is a comment inside a thread.
type Reply struct {
	Comment
	CommentID string `json:"commentId"`
}

// ToggleLike flips principalID's membership and keeps LikeCount equal to len(Likes).
// It reports whether the principal likes the comment afterwards.
func (c *Comment) ToggleLike(principalID string) bool {
	if c.Likes == nil {
		c.Likes = make(map[string]bool)
	}
	liked := c.Likes[principalID]
	if liked {
		delete(c.Likes, principalID)
	} else {
		c.Likes[principalID] = true
	}
	c.LikeCount = len(c.Likes)
	return !liked
}

// LeaderboardEntry is a snapshot-friendly view of a user.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	Score       int    `json:"score"`
	Rank        string `json:"rank"`
}

// Profile aggregates what the profile page shows.
type Profile struct {
	User         User                `json:"user"`
	History      []ScoreHistoryEntry `json:"history"`
	Achievements []Achievement       `json:"achievements"`
}

// QuizCompletion is the outcome of finishing a play-through.
type QuizCompletion struct {
	QuizID       string           `json:"quizId"`
	SessionScore int              `json:"sessionScore"`
	FirstTime    bool             `json:"firstTime"`
	Missions     []MissionOutcome `json:"missions,omitempty"`
	Unlocked     []Achievement    `json:"unlocked,omitempty"`
}
