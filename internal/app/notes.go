package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"studymate/pkg/ai"
	"studymate/pkg/domain"
)

const notesSystemPrompt = "You are an expert tutor who creates excellent, detailed study materials with diagrams."

const notesPromptTemplate = `Generate comprehensive, well-structured study notes for the subject '%s'.
The syllabus topics to cover are: %s.

The notes should be in Markdown format. For any process, hierarchy, or relationship that can be visualized, generate a diagram using Mermaid.js syntax. Enclose the Mermaid syntax in a code block like this:
` + "```mermaid" + `
graph TD;
    A-->B;
` + "```" + `

Make the notes detailed, covering key concepts, definitions, and examples for each topic.`

// Notes is a rendered set of study notes for one subject.
type Notes struct {
	Subject  domain.Subject
	Topics   []domain.Topic
	Markdown string
	HTML     string
}

var notesRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// GenerateNotes asks the large model for study notes covering the subject's
// topics and renders the Markdown to HTML. Mermaid code fences survive the
// rendering as plain <pre><code class="language-mermaid"> blocks for the
// client-side diagram library to pick up.
func (a *App) GenerateNotes(ctx context.Context, user domain.User, subjectID string) (Notes, error) {
	subject, err := a.getOwnedSubject(user, subjectID)
	if err != nil {
		return Notes{}, err
	}
	topics, err := a.store.ListTopics(subject.ID)
	if err != nil {
		return Notes{}, fmt.Errorf("list topics: %w", err)
	}
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Name)
	}

	prompt := fmt.Sprintf(notesPromptTemplate, subject.Name, strings.Join(names, ", "))
	markdown, err := a.completer.Complete(ctx, a.largeModel, []ai.Message{
		{Role: ai.RoleSystem, Content: notesSystemPrompt},
		{Role: ai.RoleUser, Content: prompt},
	}, false)
	if err != nil {
		return Notes{}, fmt.Errorf("generate notes: %w", err)
	}

	var buf bytes.Buffer
	if err := notesRenderer.Convert([]byte(markdown), &buf); err != nil {
		return Notes{}, fmt.Errorf("render notes: %w", err)
	}
	return Notes{
		Subject:  subject,
		Topics:   topics,
		Markdown: markdown,
		HTML:     buf.String(),
	}, nil
}
