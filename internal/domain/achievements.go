package domain

import "time"

// CriterionType names the stat an achievement is measured against.
type CriterionType string

const (
	CriterionQuizCompletion CriterionType = "quiz_completion"
	CriterionTotalScore     CriterionType = "total_score"
	CriterionCommentCount   CriterionType = "comment_count"
)

// Criterion unlocks an achievement once the stat reaches Threshold.
type Criterion struct {
	Type      CriterionType `json:"type"`
	Threshold int           `json:"threshold"`
}

// Achievement is a catalog definition.
type Achievement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Criteria    Criterion `json:"criteria"`
}

// UnlockedAchievement is stored under the user; its presence is the unlock.
type UnlockedAchievement struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UnlockedAt  time.Time `json:"unlockedAt"`
}

// Stats are the aggregates achievement criteria are tested against.
type Stats struct {
	Score            int
	CompletedQuizzes int
	CommentCount     int
}

// StatsOf derives the criteria inputs from a user document.
func StatsOf(u User) Stats {
	return Stats{
		Score:            u.Score,
		CompletedQuizzes: len(u.CompletedQuizzes),
		CommentCount:     u.CommentCount,
	}
}

// SatisfiedBy reports whether s meets the criterion.
func (c Criterion) SatisfiedBy(s Stats) bool {
	switch c.Type {
	case CriterionTotalScore:
		return s.Score >= c.Threshold
	case CriterionQuizCompletion:
		return s.CompletedQuizzes >= c.Threshold
	case CriterionCommentCount:
		return s.CommentCount >= c.Threshold
	default:
		return false
	}
}

// Achievements is the static catalog.
var Achievements = []Achievement{
	{
		ID:          "first_quiz_completed",
		Name:        "Primer Paso",
		Description: "Completa tu primer quiz.",
		Criteria:    Criterion{Type: CriterionQuizCompletion, Threshold: 1},
	},
	{
		ID:          "quiz_master",
		Name:        "Maestro del Quiz",
		Description: "Completa 5 quizzes diferentes.",
		Criteria:    Criterion{Type: CriterionQuizCompletion, Threshold: 5},
	},
	{
		ID:          "score_100",
		Name:        "Aprendiz de la Odisea",
		Description: "Alcanza los 100 puntos.",
		Criteria:    Criterion{Type: CriterionTotalScore, Threshold: 100},
	},
	{
		ID:          "score_250",
		Name:        "Explorador Digital",
		Description: "Alcanza los 250 puntos.",
		Criteria:    Criterion{Type: CriterionTotalScore, Threshold: 250},
	},
	{
		ID:          "first_comment",
		Name:        "Primer Contacto",
		Description: "Publica tu primer comentario en el foro.",
		Criteria:    Criterion{Type: CriterionCommentCount, Threshold: 1},
	},
	{
		ID:          "forum_5",
		Name:        "Voz de la Comunidad",
		Description: "Publica 5 comentarios.",
		Criteria:    Criterion{Type: CriterionCommentCount, Threshold: 5},
	},
}
