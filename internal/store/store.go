package store

import "studymate/pkg/domain"

// Store defines persistence operations for users, conversations, syllabuses,
// subjects, and quizzes. Every read or mutation of owned resources filters by
// owner id at the query level.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUsername(username string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// conversations
	CreateConversation(domain.Conversation) error
	GetConversation(id string) (domain.Conversation, bool, error)
	ListConversationsByOwner(userID string) ([]domain.Conversation, error)
	DeleteConversation(id, ownerID string) (bool, error)

	// chat turns (append-only, replayed in creation order)
	AppendChatTurn(domain.ChatTurn) error
	ListChatTurns(conversationID string) ([]domain.ChatTurn, error)

	// syllabus ingestion writes the syllabus, its subjects, and their topics
	// in one transaction; a failure leaves no rows behind.
	SaveSyllabus(syllabus domain.Syllabus, subjects []domain.Subject, topics []domain.Topic) error

	// subjects & topics
	GetSubject(id string) (domain.Subject, bool, error)
	ListSubjectsByOwner(userID string) ([]domain.Subject, error)
	ListTopics(subjectID string) ([]domain.Topic, error)
	UpdateSubjectProgress(id string, progress int) error
	DeleteSubjectsByOwner(userID string) error

	// quizzes
	SaveQuiz(domain.Quiz) error
	GetQuiz(id string) (domain.Quiz, bool, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
