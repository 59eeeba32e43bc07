package routes

import (
	"context"
	"mime/multipart"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/giftwise-backend/internal/models"
	"github.com/AnshRaj112/giftwise-backend/internal/services"
)

// memRecipients is an in-memory RecipientStore with the same ownership
// semantics as the Mongo implementation.
type memRecipients struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]models.Recipient
	err  error
}

func newMemRecipients() *memRecipients {
	return &memRecipients{docs: make(map[primitive.ObjectID]models.Recipient)}
}

func (m *memRecipients) owned(id, userID string) (primitive.ObjectID, models.Recipient, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return oid, models.Recipient{}, services.ErrRecipientNotFound
	}
	r, ok := m.docs[oid]
	if !ok || r.User != userID {
		return oid, models.Recipient{}, services.ErrRecipientNotFound
	}
	return oid, r, nil
}

func (m *memRecipients) Create(_ context.Context, r *models.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	r.ID = primitive.NewObjectID()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.docs[r.ID] = *r
	return nil
}

func (m *memRecipients) ListByUser(_ context.Context, userID string) ([]models.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Recipient
	for _, r := range m.docs {
		if r.User == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() > out[j].ID.Hex() })
	return out, nil
}

func (m *memRecipients) GetByUser(_ context.Context, id, userID string) (*models.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	_, r, err := m.owned(id, userID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *memRecipients) DeleteByUser(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	oid, _, err := m.owned(id, userID)
	if err != nil {
		return err
	}
	delete(m.docs, oid)
	return nil
}

func (m *memRecipients) mutate(id, userID string, fn func(r *models.Recipient)) (*models.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	oid, r, err := m.owned(id, userID)
	if err != nil {
		return nil, err
	}
	fn(&r)
	r.UpdatedAt = time.Now()
	m.docs[oid] = r
	return &r, nil
}

func (m *memRecipients) AddStyles(_ context.Context, id, userID string, styles []string) (*models.Recipient, error) {
	return m.mutate(id, userID, func(r *models.Recipient) {
		r.LikedStyles = models.MergeStyles(r.LikedStyles, styles)
	})
}

func (m *memRecipients) SetPicture(_ context.Context, id, userID, picture string) (*models.Recipient, error) {
	return m.mutate(id, userID, func(r *models.Recipient) { r.Picture = picture })
}

func (m *memRecipients) UpdateByUser(_ context.Context, id, userID string, fields bson.M) (*models.Recipient, error) {
	return m.mutate(id, userID, func(r *models.Recipient) {
		for k, v := range fields {
			switch k {
			case "name":
				r.Name = v.(string)
			case "gender":
				r.Gender = v.(string)
			case "age":
				r.Age = v.(int)
			case "picture":
				r.Picture = v.(string)
			case "preferredSizes":
				r.PreferredSizes = v.(bson.M)
			}
		}
	})
}

// memSessions maps tokens to user ids.
type memSessions struct {
	mu     sync.Mutex
	tokens map[string]string
	next   int
}

func newMemSessions() *memSessions {
	return &memSessions{tokens: make(map[string]string)}
}

func (s *memSessions) CreateSession(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	token := "tok-" + userID + "-" + strings.Repeat("x", s.next)
	s.tokens[token] = userID
	return token, nil
}

func (s *memSessions) ValidateSession(_ context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	return id, ok, nil
}

func (s *memSessions) InvalidateSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *memSessions) login(userID string) string {
	token, _ := s.CreateSession(context.Background(), userID)
	return token
}

// memStorage records uploads and returns /uploads/<stored name>.
type memStorage struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (s *memStorage) Save(_ context.Context, fh *multipart.FileHeader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return "", services.ErrUnsupportedUpload
	}
	name := "stored-" + fh.Filename
	s.saved = append(s.saved, name)
	return "/uploads/" + name, nil
}

// memUsers is an in-memory UserStore.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (u *memUsers) CreateUser(_ context.Context, username, hash string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.users {
		if existing.Username == username {
			return nil, services.ErrUsernameTaken
		}
	}
	user := &models.User{
		ID:           "user-" + username,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
		IsActive:     true,
	}
	u.users[user.ID] = user
	return user, nil
}

func (u *memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, services.ErrUserNotFound
}

func (u *memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.users[id]; ok {
		return user, nil
	}
	return nil, services.ErrUserNotFound
}
