package session

import (
	"context"

	"github.com/dmitrijs2005/audiodesc/internal/records"
)

// Preferences returns the stored preferences or the defaults.
func (m *Manager) Preferences(ctx context.Context, user string) (Preferences, error) {
	if user == "" {
		return Preferences{}, ErrEmptyUser
	}
	p := DefaultPreferences()
	if _, err := m.fetch(ctx, records.PrefsKey(user), user, &p); err != nil {
		return Preferences{}, err
	}
	return p.Normalize()
}

// SetPreferences validates and stores p. Empty fields take defaults.
func (m *Manager) SetPreferences(ctx context.Context, user string, p Preferences) (Preferences, error) {
	if user == "" {
		return Preferences{}, ErrEmptyUser
	}
	p, err := p.Normalize()
	if err != nil {
		return Preferences{}, err
	}

	unlock := m.locks.lock(user)
	defer unlock()

	if err := m.store(ctx, records.PrefsKey(user), user, p); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

// AcceptTerms records consent. Accepting again keeps the first timestamp.
func (m *Manager) AcceptTerms(ctx context.Context, user string) (Consent, error) {
	if user == "" {
		return Consent{}, ErrEmptyUser
	}
	unlock := m.locks.lock(user)
	defer unlock()

	var c Consent
	if _, err := m.fetch(ctx, records.ConsentKey(user), user, &c); err != nil {
		return Consent{}, err
	}
	if c.Accepted {
		return c, nil
	}

	c = Consent{Accepted: true, AcceptedAt: m.now().UTC()}
	if err := m.store(ctx, records.ConsentKey(user), user, c); err != nil {
		return Consent{}, err
	}
	return c, nil
}

func (m *Manager) HasAcceptedTerms(ctx context.Context, user string) (bool, error) {
	if user == "" {
		return false, ErrEmptyUser
	}
	var c Consent
	if _, err := m.fetch(ctx, records.ConsentKey(user), user, &c); err != nil {
		return false, err
	}
	return c.Accepted, nil
}
