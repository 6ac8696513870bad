// Package accounts implements the ordered, in-memory account collection.
package accounts

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/models"
)

// Collection is an ordered list of accounts. Insertion order drives display
// order and export order; duplicates are allowed.
//
// A Collection is not safe for concurrent use. Callers serialise access.
type Collection struct {
	items []models.Account
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{}
}

// FromList builds a collection from a slice, preserving order.
func FromList(list []models.Account) *Collection {
	c := &Collection{items: make([]models.Account, len(list))}
	copy(c.items, list)
	return c
}

// Add appends a to the end of the collection.
func (c *Collection) Add(a models.Account) {
	c.items = append(c.items, a)
}

// Remove deletes the account at index i.
func (c *Collection) Remove(i int) error {
	if err := c.check(i); err != nil {
		return err
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return nil
}

// Update replaces the whole record at index i.
func (c *Collection) Update(i int, a models.Account) error {
	if err := c.check(i); err != nil {
		return err
	}
	c.items[i] = a
	return nil
}

// Get returns the account at index i.
func (c *Collection) Get(i int) (models.Account, error) {
	if err := c.check(i); err != nil {
		return models.Account{}, err
	}
	return c.items[i], nil
}

// List returns a copy of all accounts in order.
func (c *Collection) List() []models.Account {
	out := make([]models.Account, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns the number of accounts.
func (c *Collection) Count() int {
	return len(c.items)
}

// Select returns the accounts at the given indices, in the order the indices
// appear after duplicates are dropped. An empty selection returns everything.
func (c *Collection) Select(indices []int) ([]models.Account, error) {
	if len(indices) == 0 {
		return c.List(), nil
	}
	out := make([]models.Account, 0, len(indices))
	for _, i := range lo.Uniq(indices) {
		a, err := c.Get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// MarshalJSON encodes the collection as a JSON array of accounts.
func (c *Collection) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

// UnmarshalJSON decodes a JSON array of accounts, replacing the contents.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var items []models.Account
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	c.items = items
	return nil
}

func (c *Collection) check(i int) error {
	if i < 0 || i >= len(c.items) {
		return fmt.Errorf("%w: %d (count %d)", apperr.ErrOutOfRange, i, len(c.items))
	}
	return nil
}
