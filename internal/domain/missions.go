package domain

import "time"

// MissionType is the event kind a daily mission counts.
type MissionType string

const (
	MissionScorePoints    MissionType = "SCORE_POINTS"
	MissionCorrectAnswers MissionType = "CORRECT_ANSWERS"
	MissionPlayQuiz       MissionType = "PLAY_QUIZ"
)

// Valid reports whether t is a known mission type.
func (t MissionType) Valid() bool {
	switch t {
	case MissionScorePoints, MissionCorrectAnswers, MissionPlayQuiz:
		return true
	default:
		return false
	}
}

// DayKeyLayout formats the UTC calendar day that identifies a mission.
const DayKeyLayout = "2006-01-02"

// DayKey returns the mission id for the UTC day containing t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// MissionTemplate is what the daily job picks from.
type MissionTemplate struct {
	Type        MissionType `json:"type"`
	Goal        int         `json:"goal"`
	Reward      int         `json:"reward"`
	Description string      `json:"description"`
}

// MissionTemplates are the daily mission candidates.
var MissionTemplates = []MissionTemplate{
	{Type: MissionScorePoints, Goal: 50, Reward: 25, Description: "Gana 50 puntos en cualquier quiz."},
	{Type: MissionCorrectAnswers, Goal: 5, Reward: 30, Description: "Responde 5 preguntas correctamente."},
	{Type: MissionPlayQuiz, Goal: 1, Reward: 20, Description: "Completa una sesión de juego."},
}

// DailyMission is the single mission of a UTC day. Immutable once created.
type DailyMission struct {
	ID          string      `json:"id"`
	Type        MissionType `json:"type"`
	Goal        int         `json:"goal"`
	Reward      int         `json:"reward"`
	Description string      `json:"description"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// MissionProgress is a principal's progress toward one mission.
type MissionProgress struct {
	Progress  int  `json:"progress"`
	Completed bool `json:"completed"`
}

// MissionOutcome is returned when an event changed mission progress.
type MissionOutcome struct {
	Mission       DailyMission    `json:"mission"`
	Progress      MissionProgress `json:"progress"`
	JustCompleted bool            `json:"justCompleted"`
	NewScore      int             `json:"newScore,omitempty"`
}

// MissionStatus is today's mission as seen by one principal.
type MissionStatus struct {
	Mission  DailyMission    `json:"mission"`
	Progress MissionProgress `json:"progress"`
}
