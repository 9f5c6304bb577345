package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/model"
)

// fakeUserStore is an in-memory UserStore for service tests. A single
// mutex stands in for the database's row lock, so UpdateWithLock keeps
// the same serialization guarantee the real store provides.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newFakeUserStore(users ...*model.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) clone(u *model.User) *model.User {
	cp := *u
	return &cp
}

func (s *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return s.clone(u), nil
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return s.clone(u), nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (s *fakeUserStore) FindByVerificationTokenHash(ctx context.Context, hash string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.EmailVerificationTokenHash != "" && u.EmailVerificationTokenHash == hash {
			return s.clone(u), nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (s *fakeUserStore) FindByResetTokenHash(ctx context.Context, hash string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PasswordResetTokenHash != "" && u.PasswordResetTokenHash == hash {
			return s.clone(u), nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (s *fakeUserStore) Create(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return apperrors.ErrEmailExists
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.ID] = s.clone(u)
	return nil
}

func (s *fakeUserStore) UpdateWithLock(ctx context.Context, id uuid.UUID, fn func(*model.User) error) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	return s.clone(u), nil
}

func (s *fakeUserStore) GetAll(ctx context.Context, limit, offset int, search, role string) ([]model.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []model.User
	for _, u := range s.users {
		if role != "" && string(u.Role) != role {
			continue
		}
		if search != "" && !strings.Contains(u.Email, search) &&
			!strings.Contains(u.FirstName, search) && !strings.Contains(u.LastName, search) {
			continue
		}
		matched = append(matched, *u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })

	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (s *fakeUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperrors.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

// get reaches into the store without copying, for assertions
func (s *fakeUserStore) get(id uuid.UUID) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}
