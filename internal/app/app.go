package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studymate/internal/extract"
	"studymate/internal/storage"
	"studymate/internal/store"
	"studymate/pkg/ai"
	"studymate/pkg/auth"
	"studymate/pkg/domain"
)

// TextExtractor pulls plain text out of an uploaded document.
type TextExtractor interface {
	Text(ctx context.Context, filename string, data []byte) (string, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	SessionSecret string

	Completer  ai.Completer
	FastModel  string
	LargeModel string

	Store     store.Store
	Sessions  store.SessionStore
	Extractor TextExtractor
	Archive   storage.Archive
}

// App wires storage, sessions, extraction, and the completion client behind
// the study-assistant operations. The current user is always passed in
// explicitly; there is no ambient identity.
type App struct {
	store      store.Store
	sessions   store.SessionStore
	extractor  TextExtractor
	archive    storage.Archive
	completer  ai.Completer
	fastModel  string
	largeModel string
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completion client required")
	}
	if cfg.FastModel == "" || cfg.LargeModel == "" {
		return nil, fmt.Errorf("fast and large completion models required")
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		switch {
		case cfg.SessionSecret != "":
			sessionStore = store.NewJWTSessionStore(cfg.SessionSecret, cfg.SessionTTL)
		case cfg.RedisAddr != "":
			sessionStore = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
		default:
			return nil, fmt.Errorf("session store required (sessionSecret or redisAddr)")
		}
	}

	extractor := cfg.Extractor
	if extractor == nil {
		extractor = extract.New()
	}

	return &App{
		store:      dataStore,
		sessions:   sessionStore,
		extractor:  extractor,
		archive:    cfg.Archive,
		completer:  cfg.Completer,
		fastModel:  cfg.FastModel,
		largeModel: cfg.LargeModel,
	}, nil
}

// Register creates a user and issues a session token.
func (a *App) Register(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, "", ErrCredentialsRequired
	}
	exists, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrUsernameTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// Logout removes a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// ListSubjects returns the user's subjects ordered by name.
func (a *App) ListSubjects(user domain.User) ([]domain.Subject, error) {
	subjects, err := a.store.ListSubjectsByOwner(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ClearSubjects bulk-deletes the user's subjects, cascading to topics and
// stored quizzes.
func (a *App) ClearSubjects(user domain.User) error {
	if err := a.store.DeleteSubjectsByOwner(user.ID); err != nil {
		return fmt.Errorf("clear subjects: %w", err)
	}
	return nil
}

// getOwnedSubject loads a subject and enforces ownership. A subject owned by
// another user is reported as not found, matching the owner-filtered query
// the handlers expose.
func (a *App) getOwnedSubject(user domain.User, subjectID string) (domain.Subject, error) {
	subject, ok, err := a.store.GetSubject(subjectID)
	if err != nil {
		return domain.Subject{}, fmt.Errorf("load subject: %w", err)
	}
	if !ok || subject.UserID != user.ID {
		return domain.Subject{}, ErrSubjectNotFound
	}
	return subject, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
