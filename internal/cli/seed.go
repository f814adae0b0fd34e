package cli

import (
	"fmt"

	"chronotech-quiz-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads the sample quiz into the configured content source.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample quiz content",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.cfg.Postgres.URL != "" {
				if err := runMigrations(cmd.Context(), rt.cfg, rt.log); err != nil {
					return err
				}
			}
			for _, quiz := range sampleQuizzes() {
				if err := rt.loader.SaveQuiz(cmd.Context(), quiz); err != nil {
					return fmt.Errorf("seed %s: %w", quiz.ID, err)
				}
				// running servers sharing the redis cache pick up the new content
				if err := rt.quizzes.Invalidate(cmd.Context(), quiz.ID); err != nil {
					return fmt.Errorf("invalidate %s: %w", quiz.ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %s (%d questions)\n", quiz.ID, len(quiz.Questions))
			}
			return nil
		},
	}
}

func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{{
		ID:          "generations-quiz",
		Title:       "Generaciones y tecnología",
		Description: "¿Cuánto sabes de cómo cada generación vivió la tecnología?",
		Category:    "historia",
		Topic:       "generaciones",
		Questions: []domain.Question{
			{
				Text:    "¿Qué generación se caracteriza por su escepticismo y por haber crecido con los inicios de la era digital (PCs, videojuegos)?",
				Options: []string{"Baby Boomers", "Generación X", "Millennials", "Generación Z"},
				Answer:  "Generación X",
			},
			{
				Text:    "¿Cuál de estas tecnologías fue disruptiva para la Generación Silenciosa?",
				Options: []string{"La radio", "El smartphone", "Internet", "La televisión a color"},
				Answer:  "La radio",
			},
			{
				Text:    "Los Millennials son considerados los primeros 'nativos digitales'. ¿Qué plataforma social fue icónica para ellos en sus inicios?",
				Options: []string{"TikTok", "Facebook", "Instagram", "Snapchat"},
				Answer:  "Facebook",
			},
			{
				Text:    "¿Qué concepto describe mejor la brecha de habilidades entre quienes usan tecnología y quienes no?",
				Options: []string{"Brecha digital", "Analfabetismo digital", "Ciudadanía digital", "Humanismo digital"},
				Answer:  "Brecha digital",
			},
		},
	}}
}
