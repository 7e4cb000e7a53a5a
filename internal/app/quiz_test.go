package app

import (
	"context"
	"errors"
	"testing"

	"studymate/pkg/domain"
)

const sampleQuizJSON = `{"mcqs":[
	{"question":"Capital of France?","options":["Paris","London","Rome","Berlin"],"answer":"Paris"},
	{"question":"Meaning of life?","options":["7","41","42","0"],"answer":"7"}
]}`

func newQuizFixture(t *testing.T, quizJSON string) (*App, *fakeCompleter, domain.User, domain.Subject) {
	t.Helper()
	fc := &fakeCompleter{responses: []string{
		`{"subjects":[{"name":"Trivia","topics":["General"]}]}`,
		quizJSON,
	}}
	a := newTestApp(t, fc, &fakeExtractor{text: "syllabus"})
	user := mustRegister(t, a, "alice")
	if _, err := a.UploadSyllabus(context.Background(), user, "course.pdf", []byte("%PDF")); err != nil {
		t.Fatalf("UploadSyllabus: %v", err)
	}
	subjects, err := a.ListSubjects(user)
	if err != nil || len(subjects) != 1 {
		t.Fatalf("ListSubjects = %v, %v", subjects, err)
	}
	return a, fc, user, subjects[0]
}

func TestGenerateQuiz(t *testing.T) {
	a, fc, user, subject := newQuizFixture(t, sampleQuizJSON)

	quiz, err := a.GenerateQuiz(context.Background(), user, subject.ID, "some notes")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}
	if quiz.ID == "" || len(quiz.Questions) != 2 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}

	// Quizzes are structured output, generated on the fast model like
	// syllabus parsing.
	call := fc.calls[1]
	if call.model != "fast-model" || !call.jsonOnly {
		t.Fatalf("completer call = model %q jsonOnly %v", call.model, call.jsonOnly)
	}
}

func TestGenerateQuizRequiresNotes(t *testing.T) {
	a, _, user, subject := newQuizFixture(t, sampleQuizJSON)
	if _, err := a.GenerateQuiz(context.Background(), user, subject.ID, "   "); !errors.Is(err, ErrNotesRequired) {
		t.Fatalf("err = %v, want ErrNotesRequired", err)
	}
}

func TestGenerateQuizMalformedModelOutput(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":        "no quiz today",
		"empty":           `{"mcqs":[]}`,
		"three options":   `{"mcqs":[{"question":"q","options":["a","b","c"],"answer":"a"}]}`,
		"answer mismatch": `{"mcqs":[{"question":"q","options":["a","b","c","d"],"answer":"e"}]}`,
		"blank question":  `{"mcqs":[{"question":" ","options":["a","b","c","d"],"answer":"a"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			a, _, user, subject := newQuizFixture(t, raw)
			if _, err := a.GenerateQuiz(context.Background(), user, subject.ID, "notes"); !errors.Is(err, ErrMalformedModelOutput) {
				t.Fatalf("err = %v, want ErrMalformedModelOutput", err)
			}
		})
	}
}

func TestScoreQuiz(t *testing.T) {
	a, _, user, subject := newQuizFixture(t, sampleQuizJSON)
	quiz, err := a.GenerateQuiz(context.Background(), user, subject.ID, "notes")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}

	result, err := a.ScoreQuiz(context.Background(), user, subject.ID, quiz.ID, map[int]string{0: "Paris", 1: "42"})
	if err != nil {
		t.Fatalf("ScoreQuiz: %v", err)
	}
	if result.Score != 1 || result.Total != 2 {
		t.Fatalf("score = %d/%d, want 1/2", result.Score, result.Total)
	}
	if result.Percentage != 50 {
		t.Fatalf("percentage = %v, want 50", result.Percentage)
	}
	// Moving average from a fresh subject: (0+50)/2.
	if result.NewProgress != 25 {
		t.Fatalf("new progress = %d, want 25", result.NewProgress)
	}

	subjects, _ := a.ListSubjects(user)
	if subjects[0].Progress != 25 {
		t.Fatalf("stored progress = %d, want 25", subjects[0].Progress)
	}

	// Odd sums round half away from zero: (25+100)/2 = 62.5 -> 63.
	result, err = a.ScoreQuiz(context.Background(), user, subject.ID, quiz.ID, map[int]string{0: "Paris", 1: "7"})
	if err != nil {
		t.Fatalf("ScoreQuiz: %v", err)
	}
	if result.NewProgress != 63 {
		t.Fatalf("new progress = %d, want 63", result.NewProgress)
	}
}

func TestScoreQuizProgressStaysBounded(t *testing.T) {
	a, _, user, subject := newQuizFixture(t, sampleQuizJSON)
	quiz, err := a.GenerateQuiz(context.Background(), user, subject.ID, "notes")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}

	perfect := map[int]string{0: "Paris", 1: "7"}
	progress := 0
	for i := 0; i < 20; i++ {
		result, err := a.ScoreQuiz(context.Background(), user, subject.ID, quiz.ID, perfect)
		if err != nil {
			t.Fatalf("ScoreQuiz: %v", err)
		}
		if result.NewProgress < progress {
			t.Fatalf("progress regressed: %d -> %d", progress, result.NewProgress)
		}
		if result.NewProgress > 100 {
			t.Fatalf("progress above 100: %d", result.NewProgress)
		}
		progress = result.NewProgress
	}
	if progress != 100 {
		t.Fatalf("progress = %d after repeated perfect scores, want 100", progress)
	}
}

func TestScoreQuizUnknownAnswersIgnored(t *testing.T) {
	a, _, user, subject := newQuizFixture(t, sampleQuizJSON)
	quiz, err := a.GenerateQuiz(context.Background(), user, subject.ID, "notes")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}

	result, err := a.ScoreQuiz(context.Background(), user, subject.ID, quiz.ID, map[int]string{5: "Paris"})
	if err != nil {
		t.Fatalf("ScoreQuiz: %v", err)
	}
	if result.Score != 0 {
		t.Fatalf("score = %d, want 0", result.Score)
	}
}

func TestScoreQuizForeignQuiz(t *testing.T) {
	a, fc, user, subject := newQuizFixture(t, sampleQuizJSON)
	quiz, err := a.GenerateQuiz(context.Background(), user, subject.ID, "notes")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}

	fc.responses = append(fc.responses, `{"subjects":[{"name":"Other","topics":["T"]}]}`)
	other := mustRegister(t, a, "bob")
	if _, err := a.UploadSyllabus(context.Background(), other, "other.pdf", []byte("%PDF")); err != nil {
		t.Fatalf("UploadSyllabus: %v", err)
	}
	otherSubjects, _ := a.ListSubjects(other)

	if _, err := a.ScoreQuiz(context.Background(), other, otherSubjects[0].ID, quiz.ID, nil); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("cross-user score err = %v, want ErrQuizNotFound", err)
	}
	if _, err := a.ScoreQuiz(context.Background(), user, subject.ID, "missing", nil); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("missing quiz err = %v, want ErrQuizNotFound", err)
	}
}
