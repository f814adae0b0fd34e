package app

import (
	"context"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
)

// StoreQuizLoader reads authored quizzes from quizzes/{id} documents.
type StoreQuizLoader struct {
	store docstore.Store
}

func NewStoreQuizLoader(store docstore.Store) *StoreQuizLoader {
	return &StoreQuizLoader{store: store}
}

func (l *StoreQuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quizID == "" {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz, found, err := docstore.Get[domain.Quiz](ctx, l.store, quizPath(quizID))
	if err != nil {
		return domain.Quiz{}, classify("load quiz", err)
	}
	if !found {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	return quiz, nil
}

// SaveQuiz validates and stores a quiz. Used by seeding and admin tooling.
func (l *StoreQuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	return classify("save quiz", l.store.Set(ctx, quizPath(quiz.ID), quiz))
}
