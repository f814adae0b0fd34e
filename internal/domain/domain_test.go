package domain

import (
	"errors"
	"testing"
)

func TestRankOfIsMonotonic(t *testing.T) {
	prev := RankOf(0)
	for s := 1; s <= 2000; s++ {
		cur := RankOf(s)
		if cur.Level < prev.Level {
			t.Fatalf("rank decreased at score %d: %s -> %s", s, prev.Name, cur.Name)
		}
		prev = cur
	}
}

func TestRankOfBoundaries(t *testing.T) {
	cases := map[int]string{
		0:    "Novato Temporal",
		10:   "Novato Temporal",
		99:   "Novato Temporal",
		100:  "Viajero Cadete",
		250:  "Técnico Avanzado",
		999:  "Operador de Élite",
		1000: "Maestro Chronotech",
		5000: "Maestro Chronotech",
	}
	for score, want := range cases {
		if got := RankOf(score).Name; got != want {
			t.Fatalf("RankOf(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestCriterionSatisfiedBy(t *testing.T) {
	stats := Stats{Score: 120, CompletedQuizzes: 1, CommentCount: 4}
	for _, a := range Achievements {
		got := a.Criteria.SatisfiedBy(stats)
		want := a.ID == "score_100" || a.ID == "first_quiz_completed" || a.ID == "first_comment"
		if got != want {
			t.Fatalf("%s: satisfied=%v, want %v", a.ID, got, want)
		}
	}
}

func TestToggleLikeKeepsCountInSync(t *testing.T) {
	c := Comment{}
	if !c.ToggleLike("u1") || c.LikeCount != 1 {
		t.Fatalf("expected liked with count 1, got %+v", c)
	}
	c.ToggleLike("u2")
	if c.ToggleLike("u1") || c.LikeCount != 1 || c.Likes["u1"] {
		t.Fatalf("expected u1 unliked with count 1, got %+v", c)
	}
	if c.LikeCount != len(c.Likes) {
		t.Fatalf("likeCount %d != |likes| %d", c.LikeCount, len(c.Likes))
	}
}

func TestQuizValidate(t *testing.T) {
	q := Quiz{ID: "q", Questions: []Question{{
		Text:    "?",
		Options: []string{"a", "b", "c", "d"},
		Answer:  "c",
	}}}
	if err := q.Validate(); err != nil {
		t.Fatalf("valid quiz rejected: %v", err)
	}
	q.Questions[0].Answer = "e"
	if err := q.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	q.Questions[0].Options = []string{"a", "a", "c", "e"}
	if err := q.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected duplicate option rejection, got %v", err)
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(ErrQuizNotFound) != CodeNotFound {
		t.Fatalf("quiz not found should map to not-found")
	}
	if CodeOf(ErrTextTooLong) != CodeInvalidArgument {
		t.Fatalf("text too long should map to invalid-argument")
	}
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Fatalf("unknown errors should map to internal")
	}
	if CodeOf(nil) != CodeOK {
		t.Fatalf("nil should map to ok")
	}
}
