package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/mailverify-auth/internal/domain"
)

// Backend holds the serialized account list. Read returns an error wrapping
// fs.ErrNotExist when nothing has been written yet.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Store is the in-memory account table, mirrored to a Backend by full rewrite.
// It does no locking of its own: callers serialize every access, including
// check-then-insert sequences.
type Store struct {
	backend  Backend
	logger   *slog.Logger
	accounts map[string]domain.Account
}

func New(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend:  backend,
		logger:   logger,
		accounts: make(map[string]domain.Account),
	}
}

// Load replaces the in-memory table with the backend's content.
// Missing or unreadable data leaves the store empty.
func (s *Store) Load(ctx context.Context) {
	s.accounts = make(map[string]domain.Account)

	data, err := s.backend.Read(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("no stored accounts, starting empty")
		} else {
			s.logger.Warn("failed to read stored accounts, starting empty", "err", err)
		}
		return
	}

	var list []domain.Account
	if err := json.Unmarshal(data, &list); err != nil {
		s.logger.Warn("failed to decode stored accounts, starting empty", "err", err)
		return
	}
	for _, a := range list {
		s.accounts[a.Email] = a
	}
	s.logger.Info("accounts loaded", "count", len(s.accounts))
}

func (s *Store) Find(email string) (domain.Account, bool) {
	a, ok := s.accounts[email]
	return a, ok
}

// Insert adds a. The caller must have checked that Find(a.Email) is absent.
func (s *Store) Insert(a domain.Account) {
	s.accounts[a.Email] = a
}

// Remove undoes an Insert whose persistence failed.
func (s *Store) Remove(email string) {
	delete(s.accounts, email)
}

func (s *Store) Len() int { return len(s.accounts) }

// PersistAll overwrites the backend with every account, ordered by email.
func (s *Store) PersistAll(ctx context.Context) error {
	list := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Email < list[j].Email })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	return nil
}
