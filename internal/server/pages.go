package server

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"studymate/internal/app"
	"studymate/pkg/domain"
)

var pageNames = []string{"login", "register", "index", "dashboard", "notes", "quiz"}

func parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		templates[name] = t
	}
	return templates, nil
}

// pageData is what every template receives.
type pageData struct {
	Title string
	Flash string
	User  *domain.User
	Data  any
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	t, ok := s.templates[name]
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		slog.Error("render page", "page", name, "err", err)
	}
}

// credential pages

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, http.StatusOK, "login", pageData{Title: "Login", Flash: s.popFlash(w, r)})
	case http.MethodPost:
		if !s.allowRate(w, r, s.loginLimiter) {
			s.audit(r, "login", "rate_limited")
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		_, token, err := s.app.Login(r.PostFormValue("username"), r.PostFormValue("password"))
		if err != nil {
			s.audit(r, "login", "fail", "reason", err.Error())
			s.setFlash(w, "Invalid username or password.")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		s.audit(r, "login", "success")
		s.setSession(w, token)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, http.StatusOK, "register", pageData{Title: "Register", Flash: s.popFlash(w, r)})
	case http.MethodPost:
		if !s.allowRate(w, r, s.registerLimiter) {
			s.audit(r, "register", "rate_limited")
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		user, token, err := s.app.Register(r.PostFormValue("username"), r.PostFormValue("password"))
		if err != nil {
			s.audit(r, "register", "fail", "reason", err.Error())
			s.setFlash(w, registerFlash(err))
			http.Redirect(w, r, "/register", http.StatusSeeOther)
			return
		}
		s.audit(r, "register", "success", "user_id", user.ID)
		s.setSession(w, token)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		methodNotAllowed(w)
	}
}

func registerFlash(err error) string {
	switch {
	case errors.Is(err, app.ErrUsernameTaken):
		return "That username is already taken."
	case errors.Is(err, app.ErrCredentialsRequired):
		return "Username and password are required."
	default:
		return "Registration failed, please try again."
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := s.app.Logout(cookie.Value); err != nil {
			s.audit(r, "logout", "fail", "reason", err.Error())
		}
	}
	s.clearSession(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// chat page

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.render(w, http.StatusOK, "index", pageData{Title: "Chat", Flash: s.popFlash(w, r), User: &user})
}

// study dashboard

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	subjects, err := s.app.ListSubjects(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.render(w, http.StatusOK, "dashboard", pageData{
		Title: "Dashboard",
		Flash: s.popFlash(w, r),
		User:  &user,
		Data:  subjects,
	})
}

func (s *Server) handleUploadSyllabus(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	filename, data, err := formFile(r, "syllabus_file")
	if err != nil {
		s.setFlash(w, "Please choose a syllabus PDF to upload.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	parsed, err := s.app.UploadSyllabus(r.Context(), user, filename, data)
	if err != nil {
		s.audit(r, "syllabus.upload", "fail", "reason", err.Error())
		s.setFlash(w, uploadFlash(err))
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.audit(r, "syllabus.upload", "success", "user_id", user.ID, "subjects", len(parsed))
	s.setFlash(w, fmt.Sprintf("Syllabus processed: %d subjects added.", len(parsed)))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func uploadFlash(err error) string {
	switch {
	case errors.Is(err, app.ErrSyllabusNotPDF):
		return "Only PDF syllabi are supported."
	case errors.Is(err, app.ErrMalformedModelOutput):
		return "Could not make sense of that syllabus, please try again."
	default:
		return "Syllabus upload failed, please try again."
	}
}

func (s *Server) handleViewNotes(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	subjectID, ok := pathID(r, "/view_notes/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	notes, err := s.app.GenerateNotes(r.Context(), user, subjectID)
	if err != nil {
		s.audit(r, "notes.generate", "fail", "reason", err.Error())
		s.setFlash(w, "Could not generate notes, please try again.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "notes", pageData{
		Title: notes.Subject.Name,
		User:  &user,
		Data: notesPage{
			Subject:  notes.Subject,
			HTML:     template.HTML(notes.HTML),
			Markdown: notes.Markdown,
		},
	})
}

type notesPage struct {
	Subject  domain.Subject
	HTML     template.HTML
	Markdown string
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	subjectID, ok := pathID(r, "/generate_quiz/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	quiz, err := s.app.GenerateQuiz(r.Context(), user, subjectID, r.PostFormValue("notes_text"))
	if err != nil {
		s.audit(r, "quiz.generate", "fail", "reason", err.Error())
		s.setFlash(w, "Could not generate a quiz, please try again.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "quiz", pageData{
		Title: "Quiz",
		User:  &user,
		Data: quizPage{
			SubjectID: subjectID,
			QuizID:    quiz.ID,
			Questions: quiz.Questions,
		},
	})
}

// quizPage deliberately omits the answer key; grading happens server-side
// against the stored quiz.
type quizPage struct {
	SubjectID string
	QuizID    string
	Questions []domain.MCQ
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	subjectID, ok := pathID(r, "/submit_quiz/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	answers := make(map[int]string)
	for key, values := range r.PostForm {
		idx, found := strings.CutPrefix(key, "question_")
		if !found || len(values) == 0 {
			continue
		}
		i, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		answers[i] = values[0]
	}
	result, err := s.app.ScoreQuiz(r.Context(), user, subjectID, r.PostFormValue("quiz_id"), answers)
	if err != nil {
		s.audit(r, "quiz.submit", "fail", "reason", err.Error())
		s.setFlash(w, "Could not score that quiz.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.audit(r, "quiz.submit", "success", "user_id", user.ID, "score", result.Score, "total", result.Total)
	s.setFlash(w, fmt.Sprintf("You scored %d/%d (%.0f%%). Progress is now %d%%.",
		result.Score, result.Total, result.Percentage, result.NewProgress))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleClearSubjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.ClearSubjects(user); err != nil {
		s.setFlash(w, "Could not clear subjects.")
	} else {
		s.setFlash(w, "All subjects cleared.")
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// pathID extracts the trailing identifier of a prefix route.
func pathID(r *http.Request, prefix string) (string, bool) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func formFile(r *http.Request, field string) (string, []byte, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}
