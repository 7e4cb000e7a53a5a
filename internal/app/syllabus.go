package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"studymate/internal/util"
	"studymate/pkg/ai"
	"studymate/pkg/domain"
)

const syllabusParsingPrompt = `Parse the following syllabus text into a structured JSON object. The JSON should have a single key "subjects", which is an array of objects. Each object should have two keys: "name" (the subject name) and "topics" (an array of strings, where each string is a topic or unit). Syllabus Text: --- %s --- `

// ParsedSubject is one subject with its topic names as structured by the
// completion service.
type ParsedSubject struct {
	Name   string   `json:"name"`
	Topics []string `json:"topics"`
}

type parsedSyllabus struct {
	Subjects []ParsedSubject `json:"subjects"`
}

// UploadSyllabus ingests a syllabus PDF: extract text, have the fast model
// structure it into subjects/topics, and persist the hierarchy atomically.
// Returns the parsed subjects on success.
func (a *App) UploadSyllabus(ctx context.Context, user domain.User, filename string, data []byte) ([]ParsedSubject, error) {
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return nil, ErrSyllabusNotPDF
	}
	text, err := a.extractor.Text(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("extract syllabus text: %w", err)
	}

	prompt := fmt.Sprintf(syllabusParsingPrompt, truncateRunes(text, fileTextLimit))
	raw, err := a.completer.Complete(ctx, a.fastModel, []ai.Message{
		{Role: ai.RoleSystem, Content: "You are a JSON parsing expert."},
		{Role: ai.RoleUser, Content: prompt},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("parse syllabus: %w", err)
	}

	parsed, err := decodeSyllabus(raw)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	syllabus := domain.Syllabus{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Filename:      filepath.Base(filename),
		ParsedContent: []byte(raw),
		CreatedAt:     now,
	}
	subjects := make([]domain.Subject, 0, len(parsed))
	var topics []domain.Topic
	for _, ps := range parsed {
		subject := domain.Subject{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			SyllabusID: syllabus.ID,
			Name:       ps.Name,
		}
		subjects = append(subjects, subject)
		for _, topicName := range ps.Topics {
			topics = append(topics, domain.Topic{
				ID:        uuid.NewString(),
				SubjectID: subject.ID,
				Name:      topicName,
			})
		}
	}
	if err := a.store.SaveSyllabus(syllabus, subjects, topics); err != nil {
		return nil, fmt.Errorf("save syllabus: %w", err)
	}

	// Archiving the original upload is best effort; the parsed rows are
	// already committed.
	if a.archive != nil {
		key := "syllabus/" + syllabus.ID + ".pdf"
		if err := a.archive.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
			util.LoggerFromContext(ctx).Warn("syllabus archive failed", "key", key, "err", err)
		}
	}
	return parsed, nil
}

// decodeSyllabus treats the model output as an untrusted payload: the
// document must be valid JSON with a "subjects" array of named subjects.
func decodeSyllabus(raw string) ([]ParsedSubject, error) {
	var doc parsedSyllabus
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	if doc.Subjects == nil {
		return nil, fmt.Errorf("%w: missing subjects array", ErrMalformedModelOutput)
	}
	for i, subject := range doc.Subjects {
		if strings.TrimSpace(subject.Name) == "" {
			return nil, fmt.Errorf("%w: subject %d has no name", ErrMalformedModelOutput, i)
		}
		for j, topic := range subject.Topics {
			if strings.TrimSpace(topic) == "" {
				return nil, fmt.Errorf("%w: subject %d topic %d is empty", ErrMalformedModelOutput, i, j)
			}
		}
	}
	return doc.Subjects, nil
}
