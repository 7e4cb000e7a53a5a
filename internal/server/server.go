package server

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"studymate/internal/app"
	"studymate/internal/ratelimit"
	"studymate/internal/util"
	"studymate/pkg/domain"
)

const (
	sessionCookie = "studymate_session"
	flashCookie   = "studymate_flash"
)

//go:embed templates/*.html
var templateFS embed.FS

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Rate limiting is enabled when a Redis address is configured.
	RedisAddr                  string
	RedisPassword              string
	LoginRateLimitPerMinute    int
	RegisterRateLimitPerMinute int

	MaxUploadBytes int64
	SessionTTL     time.Duration
	SecureCookies  bool
}

// Server exposes the web UI and JSON endpoints.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	templates       map[string]*template.Template
	maxUploadBytes  int64
	sessionTTL      time.Duration
	secureCookies   bool
	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	registerLimit := cfg.RegisterRateLimitPerMinute
	if registerLimit <= 0 {
		registerLimit = 5
	}
	var loginLimiter, registerLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		var err error
		loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "studymate:ratelimit:login", loginLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init login limiter: %w", err)
		}
		registerLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "studymate:ratelimit:register", registerLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init register limiter: %w", err)
		}
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 16 * 1024 * 1024
	}

	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		templates:       templates,
		maxUploadBytes:  maxUpload,
		sessionTTL:      sessionTTL,
		secureCookies:   cfg.SecureCookies,
		loginLimiter:    loginLimiter,
		registerLimiter: registerLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// credential pages
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/register", s.handleRegister)
	s.mux.HandleFunc("/logout", s.handleLogout)

	// chat
	s.mux.Handle("/", s.page(s.handleIndex))
	s.mux.Handle("/chat", s.api(s.handleChat))
	s.mux.Handle("/get_conversations", s.api(s.handleGetConversations))
	s.mux.Handle("/get_chat/", s.api(s.handleGetChat))
	s.mux.Handle("/delete_conversation/", s.api(s.handleDeleteConversation))

	// study dashboard
	s.mux.Handle("/dashboard", s.page(s.handleDashboard))
	s.mux.Handle("/upload_syllabus", s.page(s.handleUploadSyllabus))
	s.mux.Handle("/view_notes/", s.page(s.handleViewNotes))
	s.mux.Handle("/generate_quiz/", s.page(s.handleGenerateQuiz))
	s.mux.Handle("/submit_quiz/", s.page(s.handleSubmitQuiz))
	s.mux.Handle("/clear_subjects", s.page(s.handleClearSubjects))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// session wrappers
type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// page requires a session and redirects browsers to the login form when it
// is missing or stale.
func (s *Server) page(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(r)
		if !ok {
			s.audit(r, "session.verify", "fail")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r, user)
	})
}

// api requires a session and answers 401 JSON when it is missing.
func (s *Server) api(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(r)
		if !ok {
			s.audit(r, "session.verify", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) currentUser(r *http.Request) (domain.User, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return domain.User{}, false
	}
	return s.app.UserFromToken(cookie.Value)
}

func (s *Server) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// flash messages ride a short-lived cookie, cleared on the next page render.
func (s *Server) setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	msg, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return msg
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	http.Error(w, "too many attempts, try again in a minute", http.StatusTooManyRequests)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logger := util.LoggerFromContext(r.Context())
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeAppError maps application sentinels onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrCredentialsRequired),
		errors.Is(err, app.ErrNotesRequired),
		errors.Is(err, app.ErrSyllabusNotPDF):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrConversationForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrConversationNotFound),
		errors.Is(err, app.ErrSubjectNotFound),
		errors.Is(err, app.ErrQuizNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrMalformedModelOutput):
		writeError(w, http.StatusBadGateway, "the model returned an unusable response, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
