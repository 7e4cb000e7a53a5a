package app

import (
	"context"
	"errors"
	"testing"
)

func TestUploadSyllabus(t *testing.T) {
	raw := `{"subjects":[{"name":"Operating Systems","topics":["Processes","Scheduling"]},{"name":"Databases","topics":["Normalization"]}]}`
	fc := &fakeCompleter{responses: []string{raw}}
	a := newTestApp(t, fc, &fakeExtractor{text: "Unit 1: Processes..."})
	user := mustRegister(t, a, "alice")

	parsed, err := a.UploadSyllabus(context.Background(), user, "course.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("UploadSyllabus: %v", err)
	}
	if len(parsed) != 2 || parsed[0].Name != "Operating Systems" || len(parsed[0].Topics) != 2 {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}

	call := fc.calls[0]
	if call.model != "fast-model" || !call.jsonOnly {
		t.Fatalf("completer call = model %q jsonOnly %v", call.model, call.jsonOnly)
	}

	subjects, err := a.ListSubjects(user)
	if err != nil {
		t.Fatalf("ListSubjects: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("got %d subjects, want 2", len(subjects))
	}
	// Name-ordered listing.
	if subjects[0].Name != "Databases" || subjects[1].Name != "Operating Systems" {
		t.Fatalf("unexpected order: %q, %q", subjects[0].Name, subjects[1].Name)
	}
	for _, s := range subjects {
		if s.Progress != 0 {
			t.Fatalf("new subject progress = %d, want 0", s.Progress)
		}
	}
}

func TestUploadSyllabusRejectsNonPDF(t *testing.T) {
	fc := &fakeCompleter{}
	a := newTestApp(t, fc, &fakeExtractor{text: "ignored"})
	user := mustRegister(t, a, "alice")

	if _, err := a.UploadSyllabus(context.Background(), user, "course.docx", []byte("zip")); !errors.Is(err, ErrSyllabusNotPDF) {
		t.Fatalf("err = %v, want ErrSyllabusNotPDF", err)
	}
	if len(fc.calls) != 0 {
		t.Fatal("completer called for rejected upload")
	}
	subjects, err := a.ListSubjects(user)
	if err != nil {
		t.Fatalf("ListSubjects: %v", err)
	}
	if len(subjects) != 0 {
		t.Fatalf("got %d subjects, want 0", len(subjects))
	}
}

func TestUploadSyllabusMalformedModelOutput(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":        "subjects: none",
		"missing key":     `{"courses":[]}`,
		"unnamed subject": `{"subjects":[{"name":"  ","topics":["x"]}]}`,
		"empty topic":     `{"subjects":[{"name":"Math","topics":[""]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			fc := &fakeCompleter{responses: []string{raw}}
			a := newTestApp(t, fc, &fakeExtractor{text: "text"})
			user := mustRegister(t, a, "alice")

			if _, err := a.UploadSyllabus(context.Background(), user, "course.pdf", []byte("%PDF")); !errors.Is(err, ErrMalformedModelOutput) {
				t.Fatalf("err = %v, want ErrMalformedModelOutput", err)
			}
			subjects, _ := a.ListSubjects(user)
			if len(subjects) != 0 {
				t.Fatalf("rows persisted despite malformed output: %+v", subjects)
			}
		})
	}
}

func TestUploadSyllabusEmptySubjectsAllowed(t *testing.T) {
	fc := &fakeCompleter{responses: []string{`{"subjects":[]}`}}
	a := newTestApp(t, fc, &fakeExtractor{text: "nothing useful"})
	user := mustRegister(t, a, "alice")

	parsed, err := a.UploadSyllabus(context.Background(), user, "course.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("UploadSyllabus: %v", err)
	}
	if len(parsed) != 0 {
		t.Fatalf("parsed = %+v, want empty", parsed)
	}
}
