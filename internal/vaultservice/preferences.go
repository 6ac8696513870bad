package vaultservice

import (
	"github.com/starford/lightauth/internal/settings"
)

// Preferences is a partial update of the user-facing settings. Nil fields
// are left unchanged.
type Preferences struct {
	Theme       *string `json:"theme,omitempty"`
	AutoCopy    *bool   `json:"auto_copy,omitempty"`
	ShowSeconds *bool   `json:"show_seconds,omitempty"`
}

// Settings returns the current settings document.
func (s *Service) Settings() (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.Load()
}

// UpdatePreferences applies p and saves the settings document. The
// encryption fields can only be changed through SetPassword.
func (s *Service) UpdatePreferences(p Preferences) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.prefs.Load()
	if err != nil {
		return settings.Settings{}, err
	}
	if p.Theme != nil {
		cur.Theme = *p.Theme
	}
	if p.AutoCopy != nil {
		cur.AutoCopy = *p.AutoCopy
	}
	if p.ShowSeconds != nil {
		cur.ShowSeconds = *p.ShowSeconds
	}
	if err := s.prefs.Save(cur); err != nil {
		return settings.Settings{}, err
	}
	return cur, nil
}
