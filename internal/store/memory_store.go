package store

import (
	"sort"
	"sync"

	"studymate/pkg/domain"
)

// MemoryStore keeps everything in-process. Used by tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	usernames     map[string]string // username -> user ID
	conversations map[string]domain.Conversation
	turns         map[string][]domain.ChatTurn // conversation ID -> ordered turns
	syllabuses    map[string]domain.Syllabus
	subjects      map[string]domain.Subject
	topics        map[string][]domain.Topic // subject ID -> topics
	quizzes       map[string]domain.Quiz
	convOrder     []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		usernames:     make(map[string]string),
		conversations: make(map[string]domain.Conversation),
		turns:         make(map[string][]domain.ChatTurn),
		syllabuses:    make(map[string]domain.Syllabus),
		subjects:      make(map[string]domain.Subject),
		topics:        make(map[string][]domain.Topic),
		quizzes:       make(map[string]domain.Quiz),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.usernames[username]
	return ok, nil
}

func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[username]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) CreateConversation(c domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = c
	m.convOrder = append(m.convOrder, c.ID)
	return nil
}

func (m *MemoryStore) GetConversation(id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	return c, ok, nil
}

// ListConversationsByOwner returns the owner's conversations newest first.
func (m *MemoryStore) ListConversationsByOwner(userID string) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Conversation, 0)
	for i := len(m.convOrder) - 1; i >= 0; i-- {
		c, ok := m.conversations[m.convOrder[i]]
		if ok && c.UserID == userID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (m *MemoryStore) DeleteConversation(id, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.UserID != ownerID {
		return false, nil
	}
	delete(m.conversations, id)
	delete(m.turns, id)
	return true, nil
}

func (m *MemoryStore) AppendChatTurn(turn domain.ChatTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[turn.ConversationID] = append(m.turns[turn.ConversationID], turn)
	return nil
}

func (m *MemoryStore) ListChatTurns(conversationID string) ([]domain.ChatTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.turns[conversationID]
	res := make([]domain.ChatTurn, len(turns))
	copy(res, turns)
	return res, nil
}

func (m *MemoryStore) SaveSyllabus(syllabus domain.Syllabus, subjects []domain.Subject, topics []domain.Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syllabuses[syllabus.ID] = syllabus
	for _, s := range subjects {
		m.subjects[s.ID] = s
	}
	for _, t := range topics {
		m.topics[t.SubjectID] = append(m.topics[t.SubjectID], t)
	}
	return nil
}

func (m *MemoryStore) GetSubject(id string) (domain.Subject, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	return s, ok, nil
}

// ListSubjectsByOwner returns the owner's subjects ordered by name.
func (m *MemoryStore) ListSubjectsByOwner(userID string) ([]domain.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Subject, 0)
	for _, s := range m.subjects {
		if s.UserID == userID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *MemoryStore) ListTopics(subjectID string) ([]domain.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	topics := m.topics[subjectID]
	res := make([]domain.Topic, len(topics))
	copy(res, topics)
	return res, nil
}

func (m *MemoryStore) UpdateSubjectProgress(id string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil
	}
	s.Progress = progress
	m.subjects[id] = s
	return nil
}

func (m *MemoryStore) DeleteSubjectsByOwner(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.subjects {
		if s.UserID != userID {
			continue
		}
		delete(m.subjects, id)
		delete(m.topics, id)
		for qid, q := range m.quizzes {
			if q.SubjectID == id {
				delete(m.quizzes, qid)
			}
		}
	}
	return nil
}

func (m *MemoryStore) SaveQuiz(q domain.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

func (m *MemoryStore) GetQuiz(id string) (domain.Quiz, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	return q, ok, nil
}

// MemorySessionStore keeps session tokens in-process. Used by tests.
type MemorySessionStore struct {
	mu   sync.RWMutex
	sess map[string]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sess: make(map[string]string)}
}

func (m *MemorySessionStore) NewSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := newToken()
	m.sess[token] = userID
	return token, nil
}

func (m *MemorySessionStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.sess[token]
	return uid, ok, nil
}

func (m *MemorySessionStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}
