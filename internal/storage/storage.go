package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidecast/internal/auth"
	"slidecast/internal/models"
)

type dataset struct {
	Users       map[string]models.User    `json:"users"`
	Sessions    map[string]models.Session `json:"sessions"`
	Slides      []models.Slide            `json:"slides"`
	LastSlideID int64                     `json:"lastSlideId"`
}

func newDataset() dataset {
	return dataset{
		Users:    make(map[string]models.User),
		Sessions: make(map[string]models.Session),
	}
}

// Storage is a JSON-file backed Repository for local development and tests.
// All mutations operate on a clone of the dataset and swap it in only after
// the file write succeeds, so a failed persist leaves memory untouched.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	now             func() time.Time
}

// Option mutates storage configuration.
type Option func(*Storage)

// WithClock injects the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Sessions == nil {
		s.data.Sessions = make(map[string]models.Session)
	}
	return nil
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := dataset{LastSlideID: src.LastSlideID}
	clone.Users = make(map[string]models.User, len(src.Users))
	for id, user := range src.Users {
		clone.Users[id] = user
	}
	clone.Sessions = make(map[string]models.Session, len(src.Sessions))
	for id, session := range src.Sessions {
		cloned := session
		if session.StartTime != nil {
			started := *session.StartTime
			cloned.StartTime = &started
		}
		clone.Sessions[id] = cloned
	}
	if src.Slides != nil {
		clone.Slides = append([]models.Slide(nil), src.Slides...)
	}
	return clone
}

// Ping reports whether the backing file is writable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir := filepath.Dir(s.filePath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func sortSessions(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	email := normalizeEmail(params.Email)
	username := strings.TrimSpace(params.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if existing.Email == email {
			return models.User{}, ErrEmailTaken
		}
		if strings.EqualFold(existing.Username, username) {
			return models.User{}, ErrUsernameTaken
		}
	}

	hashed, err := auth.HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		CreatedAt:    s.now().UTC(),
	}

	next := cloneDataset(s.data)
	next.Users[user.ID] = user
	if err := s.persistDataset(next); err != nil {
		return models.User{}, err
	}
	s.data = next
	return user, nil
}

func (s *Storage) AuthenticateUser(email, password string) (models.User, error) {
	normalized := normalizeEmail(email)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data.Users {
		if user.Email != normalized {
			continue
		}
		if !auth.VerifyPassword(password, user.PasswordHash) {
			return models.User{}, ErrInvalidCredentials
		}
		return user, nil
	}
	return models.User{}, ErrUserNotFound
}

func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok
}

func (s *Storage) CreateSession(ownerID, title string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := models.Session{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		OwnerID:   ownerID,
		Status:    models.SessionStatusPending,
		CreatedAt: s.now().UTC(),
	}

	next := cloneDataset(s.data)
	next.Sessions[session.ID] = session
	if err := s.persistDataset(next); err != nil {
		return models.Session{}, err
	}
	s.data = next
	return session, nil
}

func (s *Storage) GetSession(id string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.data.Sessions[id]
	return session, ok
}

// ListSessions returns the owner's sessions ordered by creation time.
func (s *Storage) ListSessions(ownerID string) []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]models.Session, 0)
	for _, session := range s.data.Sessions {
		if session.OwnerID == ownerID {
			sessions = append(sessions, session)
		}
	}
	sortSessions(sessions)
	return sessions
}

func (s *Storage) StartSession(id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data.Sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if session.StartTime != nil {
		return models.Session{}, ErrSessionAlreadyStarted
	}

	now := s.now().UTC()
	session.StartTime = &now
	session.Status = models.SessionStatusActive

	next := cloneDataset(s.data)
	next.Sessions[id] = session
	if err := s.persistDataset(next); err != nil {
		return models.Session{}, err
	}
	s.data = next
	return session, nil
}

func (s *Storage) EndSession(id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data.Sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if session.StartTime == nil {
		return models.Session{}, ErrSessionNotStarted
	}

	session.Status = models.SessionStatusInactive

	next := cloneDataset(s.data)
	next.Sessions[id] = session
	if err := s.persistDataset(next); err != nil {
		return models.Session{}, err
	}
	s.data = next
	return session, nil
}

// AppendSlides records one slide per image URL, in the order given. Slide IDs
// ascend across the whole store so per-session ordering follows insertion.
func (s *Storage) AppendSlides(sessionID string, imageURLs []string) ([]models.Slide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}

	next := cloneDataset(s.data)
	now := s.now().UTC()
	created := make([]models.Slide, 0, len(imageURLs))
	for _, url := range imageURLs {
		next.LastSlideID++
		slide := models.Slide{
			ID:        next.LastSlideID,
			SessionID: sessionID,
			Type:      models.SlideTypeImage,
			ImageURL:  url,
			CreatedAt: now,
		}
		next.Slides = append(next.Slides, slide)
		created = append(created, slide)
	}

	if err := s.persistDataset(next); err != nil {
		return nil, err
	}
	s.data = next
	return created, nil
}

// ListSlides returns the session's slides ascending by ID.
func (s *Storage) ListSlides(sessionID string) ([]models.Slide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}

	slides := make([]models.Slide, 0)
	for _, slide := range s.data.Slides {
		if slide.SessionID == sessionID {
			slides = append(slides, slide)
		}
	}
	return slides, nil
}
