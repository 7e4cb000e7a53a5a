package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"studymate/pkg/ai"
	"studymate/pkg/domain"
)

const quizSystemPrompt = "You are a quiz generator that creates questions strictly from the provided text."

const quizPromptTemplate = `Based **ONLY** on the following study notes, generate 10 multiple-choice questions. The output must be a single JSON object with a key "mcqs", which is an array of objects. Each object must have three keys: "question" (string), "options" (an array of 4 strings), and "answer" (a string that exactly matches one of the options).

Study Notes:
---
%s
---`

type parsedQuiz struct {
	MCQs []domain.MCQ `json:"mcqs"`
}

// GenerateQuiz builds a multiple-choice quiz from the given study notes and
// persists it so scoring runs against the server's copy of the answer key.
func (a *App) GenerateQuiz(ctx context.Context, user domain.User, subjectID, notes string) (domain.Quiz, error) {
	subject, err := a.getOwnedSubject(user, subjectID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if strings.TrimSpace(notes) == "" {
		return domain.Quiz{}, ErrNotesRequired
	}

	raw, err := a.completer.Complete(ctx, a.fastModel, []ai.Message{
		{Role: ai.RoleSystem, Content: quizSystemPrompt},
		{Role: ai.RoleUser, Content: fmt.Sprintf(quizPromptTemplate, notes)},
	}, true)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("generate quiz: %w", err)
	}

	mcqs, err := decodeQuiz(raw)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{
		ID:        uuid.NewString(),
		SubjectID: subject.ID,
		UserID:    user.ID,
		Questions: mcqs,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveQuiz(quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, nil
}

// ScoreQuiz grades submitted answers against the stored quiz and folds the
// percentage into the subject's progress as a moving average.
func (a *App) ScoreQuiz(ctx context.Context, user domain.User, subjectID, quizID string, answers map[int]string) (domain.QuizResult, error) {
	subject, err := a.getOwnedSubject(user, subjectID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	quiz, ok, err := a.store.GetQuiz(quizID)
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("load quiz: %w", err)
	}
	if !ok || quiz.UserID != user.ID || quiz.SubjectID != subject.ID {
		return domain.QuizResult{}, ErrQuizNotFound
	}

	score := 0
	for i, q := range quiz.Questions {
		if answer, ok := answers[i]; ok && answer == q.Answer {
			score++
		}
	}
	total := len(quiz.Questions)
	percentage := 0.0
	if total > 0 {
		percentage = float64(score) / float64(total) * 100
	}
	newProgress := int(math.Min(100, math.Round((float64(subject.Progress)+percentage)/2)))
	if err := a.store.UpdateSubjectProgress(subject.ID, newProgress); err != nil {
		return domain.QuizResult{}, fmt.Errorf("update progress: %w", err)
	}
	return domain.QuizResult{
		Score:       score,
		Total:       total,
		Percentage:  percentage,
		NewProgress: newProgress,
	}, nil
}

func decodeQuiz(raw string) ([]domain.MCQ, error) {
	var doc parsedQuiz
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	if len(doc.MCQs) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrMalformedModelOutput)
	}
	for i, q := range doc.MCQs {
		if strings.TrimSpace(q.Question) == "" {
			return nil, fmt.Errorf("%w: question %d is empty", ErrMalformedModelOutput, i)
		}
		if len(q.Options) != 4 {
			return nil, fmt.Errorf("%w: question %d has %d options", ErrMalformedModelOutput, i, len(q.Options))
		}
		valid := false
		for _, opt := range q.Options {
			if opt == q.Answer {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("%w: question %d answer not among options", ErrMalformedModelOutput, i)
		}
	}
	return doc.MCQs, nil
}
