package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"studymate/pkg/domain"
)

// GormStore implements Store using GORM + Postgres. The underlying *sql.DB
// pool is shared across requests.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ConversationModel{},
		&ChatTurnModel{},
		&SyllabusModel{},
		&SubjectModel{},
		&TopicModel{},
		&QuizModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// HasUsername checks if the username is taken.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateConversation stores a new conversation.
func (s *GormStore) CreateConversation(c domain.Conversation) error {
	model := ConversationModel{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// GetConversation retrieves a conversation by ID.
func (s *GormStore) GetConversation(id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// ListConversationsByOwner returns the owner's conversations, newest first.
func (s *GormStore) ListConversationsByOwner(userID string) ([]domain.Conversation, error) {
	var models []ConversationModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Conversation, 0, len(models))
	for _, m := range models {
		res = append(res, conversationFromModel(m))
	}
	return res, nil
}

// DeleteConversation removes the conversation and its turns when owned by
// ownerID. Returns false when no owned conversation matched.
func (s *GormStore) DeleteConversation(id, ownerID string) (bool, error) {
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, ownerID).Delete(&ConversationModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		found = true
		return tx.Where("conversation_id = ?", id).Delete(&ChatTurnModel{}).Error
	})
	return found, err
}

// AppendChatTurn records one turn.
func (s *GormStore) AppendChatTurn(turn domain.ChatTurn) error {
	model := ChatTurnModel{
		ID:             turn.ID,
		ConversationID: turn.ConversationID,
		Sender:         string(turn.Sender),
		Message:        turn.Message,
		CreatedAt:      turn.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// ListChatTurns returns the conversation's turns in creation order.
func (s *GormStore) ListChatTurns(conversationID string) ([]domain.ChatTurn, error) {
	var models []ChatTurnModel
	if err := s.db.Where("conversation_id = ?", conversationID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ChatTurn, 0, len(models))
	for _, m := range models {
		res = append(res, domain.ChatTurn{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Sender:         domain.Sender(m.Sender),
			Message:        m.Message,
			CreatedAt:      m.CreatedAt,
		})
	}
	return res, nil
}

// SaveSyllabus writes the syllabus row, subjects, and topics atomically.
func (s *GormStore) SaveSyllabus(syllabus domain.Syllabus, subjects []domain.Subject, topics []domain.Topic) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := SyllabusModel{
			ID:            syllabus.ID,
			UserID:        syllabus.UserID,
			Filename:      syllabus.Filename,
			ParsedContent: syllabus.ParsedContent,
			CreatedAt:     syllabus.CreatedAt,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, subject := range subjects {
			sm := SubjectModel{
				ID:         subject.ID,
				UserID:     subject.UserID,
				SyllabusID: subject.SyllabusID,
				Name:       subject.Name,
				Progress:   subject.Progress,
			}
			if err := tx.Create(&sm).Error; err != nil {
				return err
			}
		}
		for _, topic := range topics {
			tm := TopicModel{
				ID:        topic.ID,
				SubjectID: topic.SubjectID,
				Name:      topic.Name,
			}
			if err := tx.Create(&tm).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSubject retrieves a subject by ID.
func (s *GormStore) GetSubject(id string) (domain.Subject, bool, error) {
	var model SubjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Subject{}, false, nil
		}
		return domain.Subject{}, false, err
	}
	return subjectFromModel(model), true, nil
}

// ListSubjectsByOwner returns the owner's subjects ordered by name.
func (s *GormStore) ListSubjectsByOwner(userID string) ([]domain.Subject, error) {
	var models []SubjectModel
	if err := s.db.Where("user_id = ?", userID).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Subject, 0, len(models))
	for _, m := range models {
		res = append(res, subjectFromModel(m))
	}
	return res, nil
}

// ListTopics returns the subject's topics.
func (s *GormStore) ListTopics(subjectID string) ([]domain.Topic, error) {
	var models []TopicModel
	if err := s.db.Where("subject_id = ?", subjectID).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Topic, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Topic{ID: m.ID, SubjectID: m.SubjectID, Name: m.Name})
	}
	return res, nil
}

// UpdateSubjectProgress sets the subject's progress percentage.
func (s *GormStore) UpdateSubjectProgress(id string, progress int) error {
	return s.db.Model(&SubjectModel{}).Where("id = ?", id).Update("progress", progress).Error
}

// DeleteSubjectsByOwner removes the owner's subjects with their topics and
// quizzes in one transaction.
func (s *GormStore) DeleteSubjectsByOwner(userID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&SubjectModel{}).Where("user_id = ?", userID).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("subject_id IN ?", ids).Delete(&TopicModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subject_id IN ?", ids).Delete(&QuizModel{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&SubjectModel{}).Error
	})
}

// SaveQuiz stores a generated question set.
func (s *GormStore) SaveQuiz(q domain.Quiz) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	model := QuizModel{
		ID:        q.ID,
		SubjectID: q.SubjectID,
		UserID:    q.UserID,
		Questions: questions,
		CreatedAt: q.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// GetQuiz retrieves a quiz with its stored questions.
func (s *GormStore) GetQuiz(id string) (domain.Quiz, bool, error) {
	var model QuizModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Quiz{}, false, nil
		}
		return domain.Quiz{}, false, err
	}
	var questions []domain.MCQ
	if err := json.Unmarshal(model.Questions, &questions); err != nil {
		return domain.Quiz{}, false, fmt.Errorf("unmarshal questions: %w", err)
	}
	return domain.Quiz{
		ID:        model.ID,
		SubjectID: model.SubjectID,
		UserID:    model.UserID,
		Questions: questions,
		CreatedAt: model.CreatedAt,
	}, true, nil
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	return domain.Conversation{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		CreatedAt: m.CreatedAt,
	}
}

func subjectFromModel(m SubjectModel) domain.Subject {
	return domain.Subject{
		ID:         m.ID,
		UserID:     m.UserID,
		SyllabusID: m.SyllabusID,
		Name:       m.Name,
		Progress:   m.Progress,
	}
}
