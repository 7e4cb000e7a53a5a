package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studymate/pkg/ai"
	"studymate/pkg/domain"
)

const (
	chatSystemPrompt    = "You are a helpful AI assistant."
	chatFallbackMessage = "Sorry, something went wrong."

	// Extracted document text is clipped to this many characters before it
	// goes into the prompt.
	fileTextLimit = 4000

	conversationTitleLimit = 30
	untitledConversation   = "Untitled Conversation"
)

// ChatInput carries one chat turn's inputs. ConversationID empty means a new
// conversation. FileName/FileData are set when a document was attached.
type ChatInput struct {
	Message        string
	ConversationID string
	FileName       string
	FileData       []byte
}

// ChatResult is the bot response plus the conversation id so the caller can
// continue the thread.
type ChatResult struct {
	Response       string
	ConversationID string
}

// Chat performs one conversation turn: resolve or create the conversation,
// replay history, fold in any attached document, invoke the completion
// service, and persist both sides of the exchange.
func (a *App) Chat(ctx context.Context, user domain.User, in ChatInput) (ChatResult, error) {
	conversation, err := a.ensureConversation(user, in)
	if err != nil {
		return ChatResult{}, err
	}

	history, err := a.store.ListChatTurns(conversation.ID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("load history: %w", err)
	}
	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: chatSystemPrompt})
	for _, turn := range history {
		role := ai.RoleAssistant
		if turn.Sender == domain.SenderUser {
			role = ai.RoleUser
		}
		msgs = append(msgs, ai.Message{Role: role, Content: turn.Message})
	}

	hasFile := in.FileName != "" && len(in.FileData) > 0
	if hasFile {
		fileText, err := a.extractor.Text(ctx, in.FileName, in.FileData)
		if err != nil {
			return ChatResult{}, fmt.Errorf("extract document text: %w", err)
		}
		prompt := fmt.Sprintf(
			"Use the following document text to answer my questions:\n\n---\n%s\n---\n\n%s",
			truncateRunes(fileText, fileTextLimit), in.Message)
		msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: prompt})
	} else if in.Message != "" {
		msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: in.Message})
	}

	response := chatFallbackMessage
	if len(msgs) > 1 {
		response, err = a.completer.Complete(ctx, a.fastModel, msgs, false)
		if err != nil {
			return ChatResult{}, fmt.Errorf("generate response: %w", err)
		}
	}

	// The user turn is only recorded when there was user input; the bot
	// fallback is still recorded without one.
	if in.Message != "" || hasFile {
		userMessage := in.Message
		if userMessage == "" {
			userMessage = "File uploaded: " + in.FileName
		}
		if err := a.appendTurn(conversation.ID, domain.SenderUser, userMessage); err != nil {
			return ChatResult{}, err
		}
	}
	if err := a.appendTurn(conversation.ID, domain.SenderBot, response); err != nil {
		return ChatResult{}, err
	}

	return ChatResult{Response: response, ConversationID: conversation.ID}, nil
}

// ListConversations returns the user's conversations, newest first.
func (a *App) ListConversations(user domain.User) ([]domain.Conversation, error) {
	items, err := a.store.ListConversationsByOwner(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return items, nil
}

// GetChatHistory returns the full turn history of an owned conversation in
// chronological order.
func (a *App) GetChatHistory(user domain.User, conversationID string) ([]domain.ChatTurn, error) {
	conversation, ok, err := a.store.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !ok {
		return nil, ErrConversationNotFound
	}
	if conversation.UserID != user.ID {
		return nil, ErrConversationForbidden
	}
	turns, err := a.store.ListChatTurns(conversationID)
	if err != nil {
		return nil, fmt.Errorf("list chat turns: %w", err)
	}
	return turns, nil
}

// DeleteConversation removes an owned conversation and its turns.
func (a *App) DeleteConversation(user domain.User, conversationID string) error {
	found, err := a.store.DeleteConversation(conversationID, user.ID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if !found {
		return ErrConversationNotFound
	}
	return nil
}

func (a *App) ensureConversation(user domain.User, in ChatInput) (domain.Conversation, error) {
	id := strings.TrimSpace(in.ConversationID)
	if id != "" {
		conversation, ok, err := a.store.GetConversation(id)
		if err != nil {
			return domain.Conversation{}, fmt.Errorf("load conversation: %w", err)
		}
		if !ok {
			return domain.Conversation{}, ErrConversationNotFound
		}
		if conversation.UserID != user.ID {
			return domain.Conversation{}, ErrConversationForbidden
		}
		return conversation, nil
	}

	conversation := domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Title:     conversationTitle(in),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateConversation(conversation); err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

// conversationTitle derives the title from the first message, falling back
// to the attached filename.
func conversationTitle(in ChatInput) string {
	source := in.Message
	if source == "" {
		source = in.FileName
	}
	if source == "" {
		source = untitledConversation
	}
	return truncateRunes(source, conversationTitleLimit)
}

func (a *App) appendTurn(conversationID string, sender domain.Sender, message string) error {
	turn := domain.ChatTurn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Message:        message,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.AppendChatTurn(turn); err != nil {
		return fmt.Errorf("save %s turn: %w", sender, err)
	}
	return nil
}
