package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/records"
)

// ErrEmptyUser is returned for operations without a user id.
var ErrEmptyUser = errors.New("empty user id")

// Manager owns every user's session. Read-modify-write sequences run under
// a per-user lock, so concurrent workers cannot lose updates.
type Manager struct {
	repo         records.Repository
	sealer       cryptox.Sealer
	historyLimit int
	locks        *userLocks
	now          func() time.Time
}

// NewManager creates a manager. A historyLimit below 1 selects
// DefaultHistoryLimit.
func NewManager(repo records.Repository, sealer cryptox.Sealer, historyLimit int) *Manager {
	if historyLimit < 1 {
		historyLimit = DefaultHistoryLimit
	}
	return &Manager{
		repo:         repo,
		sealer:       sealer,
		historyLimit: historyLimit,
		locks:        newUserLocks(),
		now:          time.Now,
	}
}

// ResolveContext returns the user's session, or a new empty one. The empty
// session is not persisted until it is first changed.
func (m *Manager) ResolveContext(ctx context.Context, user string) (*Session, error) {
	if user == "" {
		return nil, ErrEmptyUser
	}
	unlock := m.locks.lock(user)
	defer unlock()

	s, err := m.load(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.clone(), nil
}

// RecordTurn appends a question/answer pair, keeping only the most recent
// turns.
func (m *Manager) RecordTurn(ctx context.Context, user, question, answer string) error {
	return m.update(ctx, user, func(s *Session) (bool, error) {
		s.Turns = append(s.Turns, ai.Turn{Question: question, Answer: answer})
		if extra := len(s.Turns) - m.historyLimit; extra > 0 {
			s.Turns = append([]ai.Turn(nil), s.Turns[extra:]...)
		}
		return true, nil
	})
}

// GetOrUploadReference returns the cached reference when art continues the
// current exchange: same kind, same bytes and not flagged Fresh. Otherwise
// upload is called exactly once and its reference starts a new exchange
// with empty history.
func (m *Manager) GetOrUploadReference(ctx context.Context, user string, art Artifact, upload Uploader) (ai.Reference, error) {
	var ref ai.Reference
	err := m.update(ctx, user, func(s *Session) (bool, error) {
		digest := art.Digest()
		if !art.Fresh && s.HasReference() && s.LastKind == art.Kind && s.LastDigest == digest {
			ref = s.LastReference
			return false, nil
		}

		r, err := upload(ctx, art.Data, art.Kind, art.Mime)
		if err != nil {
			return false, err
		}
		ref = r
		s.LastReference = r
		s.LastKind = art.Kind
		s.LastDigest = digest
		s.Turns = nil
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// RefreshReference replaces an expired reference by uploading art once.
// History is kept: the exchange continues with the new handle.
func (m *Manager) RefreshReference(ctx context.Context, user string, art Artifact, upload Uploader) (ai.Reference, error) {
	var ref ai.Reference
	err := m.update(ctx, user, func(s *Session) (bool, error) {
		s.clearReference()

		r, err := upload(ctx, art.Data, art.Kind, art.Mime)
		if err != nil {
			// the stale handle must not be reused
			return true, err
		}
		ref = r
		s.LastReference = r
		s.LastKind = art.Kind
		s.LastDigest = art.Digest()
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// ClearReference forgets the cached file; the next text question is asked
// without one.
func (m *Manager) ClearReference(ctx context.Context, user string) error {
	return m.update(ctx, user, func(s *Session) (bool, error) {
		if !s.HasReference() {
			return false, nil
		}
		s.clearReference()
		return true, nil
	})
}

// Reset drops the session. Preferences and consent are kept.
func (m *Manager) Reset(ctx context.Context, user string) error {
	if user == "" {
		return ErrEmptyUser
	}
	unlock := m.locks.lock(user)
	defer unlock()

	if err := m.repo.Delete(ctx, records.SessionKey(user)); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// Forget deletes everything stored for the user.
func (m *Manager) Forget(ctx context.Context, user string) error {
	if user == "" {
		return ErrEmptyUser
	}
	unlock := m.locks.lock(user)
	defer unlock()

	if err := m.repo.DeleteOwner(ctx, user); err != nil {
		return fmt.Errorf("forget user: %w", err)
	}
	return nil
}

// update loads the session, applies fn and saves when fn reports a change.
// A change is saved even when fn also returns an error.
func (m *Manager) update(ctx context.Context, user string, fn func(s *Session) (bool, error)) error {
	if user == "" {
		return ErrEmptyUser
	}
	unlock := m.locks.lock(user)
	defer unlock()

	s, err := m.load(ctx, user)
	if err != nil {
		return err
	}

	changed, fnErr := fn(s)
	if changed {
		s.UpdatedAt = m.now().UTC()
		if err := m.store(ctx, records.SessionKey(user), user, s); err != nil {
			return errors.Join(fnErr, err)
		}
	}
	return fnErr
}

func (m *Manager) load(ctx context.Context, user string) (*Session, error) {
	var s Session
	found, err := m.fetch(ctx, records.SessionKey(user), user, &s)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Session{UserID: user}, nil
	}
	return &s, nil
}

// fetch opens the record under key into v. Integrity failures are returned
// as-is; a corrupted record is never replaced silently.
func (m *Manager) fetch(ctx context.Context, key, user string, v any) (bool, error) {
	rec, err := m.repo.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if rec == nil {
		return false, nil
	}
	if rec.Owner != user {
		return false, fmt.Errorf("open %s: owner mismatch: %w", key, cryptox.ErrIntegrity)
	}
	if err := cryptox.OpenJSON(m.sealer, rec, v); err != nil {
		return false, fmt.Errorf("open %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) store(ctx context.Context, key, user string, v any) error {
	rec, err := cryptox.SealJSON(m.sealer, user, v)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	if err := m.repo.Save(ctx, key, rec); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
