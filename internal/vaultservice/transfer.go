package vaultservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/lightauth/internal/accounts"
	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/audit"
	"github.com/starford/lightauth/internal/bundle"
	"github.com/starford/lightauth/internal/models"
)

// Export produces a bundle of the accounts at indices (all when empty).
// A non-empty password encrypts the bundle independently of the vault
// password; legacy selects the format LightAuth 1.x reads.
func (s *Service) Export(ctx context.Context, indices []int, password string, legacy bool) ([]byte, error) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil, apperr.ErrLocked
	}
	selected, err := s.session.accounts.Select(indices)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var opts []bundle.ExportOption
	if legacy {
		opts = append(opts, bundle.WithLegacyFormat())
	}
	data, err := s.bundler.Export(selected, password, opts...)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Event{
		Kind:   audit.KindExport,
		Detail: fmt.Sprintf("%d accounts, encrypted=%t", len(selected), password != ""),
	})
	return data, nil
}

// PreviewImport decodes a bundle without touching the vault.
func (s *Service) PreviewImport(data []byte, password string) ([]models.Account, error) {
	env, err := s.bundler.Import(data, password)
	if err != nil {
		return nil, err
	}
	return env.Accounts, nil
}

// Import decodes a bundle, appends the accounts at indices of the bundle
// (all when empty) to the vault in bundle order, and saves. It returns the
// accounts that were added.
func (s *Service) Import(ctx context.Context, data []byte, password string, indices []int) ([]models.Account, error) {
	decoded, err := s.PreviewImport(data, password)
	if err != nil {
		return nil, err
	}
	selected, err := accounts.FromList(decoded).Select(indices)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.mutate(ctx, func(c *accounts.Collection) error {
		for _, a := range selected {
			c.Add(a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("accounts imported", slog.Int("count", len(selected)))
	s.record(ctx, audit.Event{Kind: audit.KindImport, Detail: fmt.Sprintf("%d accounts", len(selected))})
	s.notify(EventImported, -1)
	return selected, nil
}
