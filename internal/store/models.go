package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type ConversationModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Title     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// ChatTurnModel carries a monotonically increasing Seq so replay order is
// stable even when timestamps collide.
type ChatTurnModel struct {
	ID             string    `gorm:"primaryKey"`
	Seq            int64     `gorm:"autoIncrement;uniqueIndex"`
	ConversationID string    `gorm:"not null;index"`
	Sender         string    `gorm:"not null"`
	Message        string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

type SyllabusModel struct {
	ID            string         `gorm:"primaryKey"`
	UserID        string         `gorm:"not null;index"`
	Filename      string         `gorm:"not null"`
	ParsedContent datatypes.JSON `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null"`
}

type SubjectModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	SyllabusID string `gorm:"index"`
	Name       string `gorm:"not null"`
	Progress   int    `gorm:"not null;default:0"`
}

type TopicModel struct {
	ID        string `gorm:"primaryKey"`
	SubjectID string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
}

type QuizModel struct {
	ID        string         `gorm:"primaryKey"`
	SubjectID string         `gorm:"not null;index"`
	UserID    string         `gorm:"not null;index"`
	Questions datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
