package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"studymate/internal/app"
	"studymate/internal/store"
	"studymate/pkg/ai"
)

// fakeCompleter returns canned responses in order.
type fakeCompleter struct {
	responses []string
	calls     int
}

func (f *fakeCompleter) Complete(context.Context, string, []ai.Message, bool) (string, error) {
	f.calls++
	if f.calls > len(f.responses) {
		return "", errors.New("no canned response left")
	}
	return f.responses[f.calls-1], nil
}

type fakeExtractor struct{ text string }

func (f *fakeExtractor) Text(context.Context, string, []byte) (string, error) {
	return f.text, nil
}

func newTestServer(t *testing.T, cfg Config, completer ai.Completer) *httptest.Server {
	t.Helper()
	a, err := app.New(app.Config{
		Completer:  completer,
		FastModel:  "fast-model",
		LargeModel: "large-model",
		Store:      store.NewMemoryStore(),
		Sessions:   store.NewMemorySessionStore(),
		Extractor:  &fakeExtractor{text: "extracted text"},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg.App = a
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

// newClient returns a cookie-carrying client that follows redirects.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

// noRedirect stops the client at the first response so redirects can be
// asserted directly.
func noRedirect(c *http.Client) *http.Client {
	return &http.Client{
		Jar: c.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func register(t *testing.T, client *http.Client, baseURL, username string) {
	t.Helper()
	resp, err := client.PostForm(baseURL+"/register", url.Values{
		"username": {username},
		"password": {"secret123"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register final status = %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeCompleter{})
	client := noRedirect(newClient(t))

	// Pages redirect to the login form.
	for _, path := range []string{"/", "/dashboard"} {
		resp, err := client.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
			t.Fatalf("GET %s = %d -> %q, want redirect to /login", path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}

	// API routes answer 401 JSON.
	resp, err := client.Get(srv.URL + "/get_conversations")
	if err != nil {
		t.Fatalf("GET /get_conversations: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("GET /get_conversations = %d, want 401", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeCompleter{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeCompleter{})
	client := newClient(t)

	register(t, client, srv.URL, "alice")

	resp, err := client.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "alice") {
		t.Fatalf("chat page after register: %d", resp.StatusCode)
	}

	// Logout drops the session.
	if _, err := client.Get(srv.URL + "/logout"); err != nil {
		t.Fatalf("GET /logout: %v", err)
	}
	resp, err = noRedirect(client).Get(srv.URL + "/dashboard")
	if err != nil {
		t.Fatalf("GET /dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("dashboard after logout = %d, want 303", resp.StatusCode)
	}

	// Login again with the same credentials.
	resp, err = client.PostForm(srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"secret123"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login final status = %d", resp.StatusCode)
	}
}

func TestLoginFailureFlashesAndRedirects(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeCompleter{})
	client := newClient(t)

	resp, err := noRedirect(client).PostForm(srv.URL+"/login", url.Values{
		"username": {"ghost"},
		"password": {"nope"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("failed login = %d -> %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, err = client.Get(srv.URL + "/login")
	if err != nil {
		t.Fatalf("GET /login: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "Invalid username or password.") {
		t.Fatal("flash message missing from login page")
	}

	// Flash is cleared after one render.
	resp, err = client.Get(srv.URL + "/login")
	if err != nil {
		t.Fatalf("GET /login: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(body), "Invalid username or password.") {
		t.Fatal("flash message not cleared")
	}
}

func TestChatEndpoints(t *testing.T) {
	fc := &fakeCompleter{responses: []string{"Hi alice!"}}
	srv := newTestServer(t, Config{}, fc)
	client := newClient(t)
	register(t, client, srv.URL, "alice")

	resp, err := client.PostForm(srv.URL+"/chat", url.Values{"message": {"Hello"}})
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	resp.Body.Close()
	if chat.Response != "Hi alice!" || chat.ConversationID == "" {
		t.Fatalf("chat = %+v", chat)
	}

	resp, err = client.Get(srv.URL + "/get_conversations")
	if err != nil {
		t.Fatalf("GET /get_conversations: %v", err)
	}
	var conversations []conversationSummary
	if err := json.NewDecoder(resp.Body).Decode(&conversations); err != nil {
		t.Fatalf("decode conversations: %v", err)
	}
	resp.Body.Close()
	if len(conversations) != 1 || conversations[0].Title != "Hello" {
		t.Fatalf("conversations = %+v", conversations)
	}

	resp, err = client.Get(srv.URL + "/get_chat/" + chat.ConversationID)
	if err != nil {
		t.Fatalf("GET /get_chat: %v", err)
	}
	var turns []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&turns); err != nil {
		t.Fatalf("decode turns: %v", err)
	}
	resp.Body.Close()
	if len(turns) != 2 || turns[0]["sender"] != "user" || turns[1]["message"] != "Hi alice!" {
		t.Fatalf("turns = %+v", turns)
	}

	// Another user cannot read the conversation.
	other := newClient(t)
	register(t, other, srv.URL, "bob")
	resp, err = other.Get(srv.URL + "/get_chat/" + chat.ConversationID)
	if err != nil {
		t.Fatalf("GET /get_chat as bob: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-user get_chat = %d, want 403", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/delete_conversation/"+chat.ConversationID, nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE /delete_conversation: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d", resp.StatusCode)
	}

	resp, err = client.Do(req.Clone(req.Context()))
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", resp.StatusCode)
	}
}

func TestSecureCookiesFlag(t *testing.T) {
	srv := newTestServer(t, Config{SecureCookies: true}, &fakeCompleter{})
	client := noRedirect(newClient(t))

	resp, err := client.PostForm(srv.URL+"/register", url.Values{
		"username": {"alice"},
		"password": {"secret123"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	if session == nil {
		t.Fatal("session cookie not set")
	}
	if !session.Secure || !session.HttpOnly {
		t.Fatalf("session cookie Secure=%v HttpOnly=%v, want both true", session.Secure, session.HttpOnly)
	}
}

func TestLoginRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	srv := newTestServer(t, Config{
		RedisAddr:               redis.Addr(),
		LoginRateLimitPerMinute: 1,
	}, &fakeCompleter{})
	client := noRedirect(newClient(t))

	form := url.Values{"username": {"ghost"}, "password": {"nope"}}
	resp1, err := client.PostForm(srv.URL+"/login", form)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode != http.StatusSeeOther {
		t.Fatalf("first login = %d", resp1.StatusCode)
	}

	resp2, err := client.PostForm(srv.URL+"/login", form)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second login = %d, want 429", resp2.StatusCode)
	}
	if resp2.Header.Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", resp2.Header.Get("Retry-After"))
	}
}

func uploadSyllabus(t *testing.T, client *http.Client, baseURL string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("syllabus_file", "course.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 fake")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()
	resp, err := client.Post(baseURL+"/upload_syllabus", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload syllabus: %v", err)
	}
	return resp
}

func TestStudyFlow(t *testing.T) {
	fc := &fakeCompleter{responses: []string{
		`{"subjects":[{"name":"Physics","topics":["Optics","Waves"]}]}`,
		"# Optics\n\nLight refracts.\n",
		`{"mcqs":[{"question":"What does light do?","options":["Refracts","Stops","Sleeps","Sings"],"answer":"Refracts"}]}`,
	}}
	srv := newTestServer(t, Config{}, fc)
	client := newClient(t)
	register(t, client, srv.URL, "alice")

	// Upload lands back on the dashboard with the new subject.
	resp := uploadSyllabus(t, client, srv.URL)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload final status = %d", resp.StatusCode)
	}
	page := string(body)
	if !strings.Contains(page, "Physics") || !strings.Contains(page, "1 subjects added") {
		t.Fatalf("dashboard missing subject or flash:\n%s", page)
	}

	// The dashboard links to the notes page.
	start := strings.Index(page, "/view_notes/")
	if start < 0 {
		t.Fatal("notes link missing")
	}
	end := strings.IndexByte(page[start:], '"')
	notesPath := page[start : start+end]

	resp, err := client.Get(srv.URL + notesPath)
	if err != nil {
		t.Fatalf("GET notes: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Light refracts.") {
		t.Fatalf("notes page = %d:\n%s", resp.StatusCode, body)
	}
	subjectID := strings.TrimPrefix(notesPath, "/view_notes/")

	// Generate a quiz from the notes.
	resp, err = client.PostForm(srv.URL+"/generate_quiz/"+subjectID, url.Values{
		"notes_text": {"Light refracts."},
	})
	if err != nil {
		t.Fatalf("generate quiz: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	page = string(body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(page, "What does light do?") {
		t.Fatalf("quiz page = %d:\n%s", resp.StatusCode, page)
	}
	if strings.Contains(page, `name="quiz_id" value=""`) {
		t.Fatal("quiz id missing from form")
	}
	marker := `name="quiz_id" value="`
	start = strings.Index(page, marker)
	if start < 0 {
		t.Fatal("quiz id field missing")
	}
	start += len(marker)
	quizID := page[start : start+strings.IndexByte(page[start:], '"')]

	// Submit a perfect answer sheet; the flash reports score and progress.
	resp, err = client.PostForm(srv.URL+"/submit_quiz/"+subjectID, url.Values{
		"quiz_id":    {quizID},
		"question_0": {"Refracts"},
	})
	if err != nil {
		t.Fatalf("submit quiz: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	page = string(body)
	if !strings.Contains(page, "You scored 1/1 (100%). Progress is now 50%.") {
		t.Fatalf("score flash missing:\n%s", page)
	}
	if !strings.Contains(page, "50% mastered") {
		t.Fatalf("progress not reflected on dashboard:\n%s", page)
	}

	// Clearing subjects empties the dashboard.
	resp, err = client.PostForm(srv.URL+"/clear_subjects", nil)
	if err != nil {
		t.Fatalf("clear subjects: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(body), "Physics") {
		t.Fatal("subjects still listed after clear")
	}
}

func TestUploadSyllabusRejectsNonPDF(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeCompleter{})
	client := newClient(t)
	register(t, client, srv.URL, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("syllabus_file", "course.docx")
	part.Write([]byte("not a pdf"))
	mw.Close()

	resp, err := client.Post(srv.URL+"/upload_syllabus", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "Only PDF syllabi are supported.") {
		t.Fatal("rejection flash missing")
	}
}
