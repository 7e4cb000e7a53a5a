package domain

import "time"

// User is an authenticated account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Sender identifies which side of a conversation produced a turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatTurn is a single message within a conversation. Turns are append-only
// and replayed in creation order.
type ChatTurn struct {
	ID             string    `json:"-"`
	ConversationID string    `json:"-"`
	Sender         Sender    `json:"sender"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"-"`
}

// Syllabus records one uploaded syllabus PDF and the structured document
// parsed out of it. Immutable once written.
type Syllabus struct {
	ID            string
	UserID        string
	Filename      string
	ParsedContent []byte // raw JSON document as returned by the model
	CreatedAt     time.Time
}

// Subject is a syllabus-derived area of study with tracked mastery progress.
// Progress is always an integer in [0,100].
type Subject struct {
	ID         string `json:"id"`
	UserID     string `json:"-"`
	SyllabusID string `json:"-"`
	Name       string `json:"name"`
	Progress   int    `json:"progress"`
}

// Topic is a unit of study within a subject.
type Topic struct {
	ID        string
	SubjectID string
	Name      string
}

// MCQ is one multiple-choice question with exactly four options. Answer is an
// exact match of one option.
type MCQ struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// Quiz is a generated question set persisted at generation time. Scoring
// always reads the stored copy, never client-echoed answers.
type Quiz struct {
	ID        string
	SubjectID string
	UserID    string
	Questions []MCQ
	CreatedAt time.Time
}

// QuizResult reports the outcome of scoring a quiz submission.
type QuizResult struct {
	Score       int
	Total       int
	Percentage  float64
	NewProgress int
}
