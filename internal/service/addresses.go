package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// AddressService manages the user's address book
type AddressService struct {
	repo     domain.AddressRepository
	q        *query.Coordinator
	mutate   *query.Engine
	policies Policies
	logger   *slog.Logger
}

// NewAddressService creates a new address service
func NewAddressService(repo domain.AddressRepository, q *query.Coordinator, mutate *query.Engine, policies Policies, logger *slog.Logger) *AddressService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AddressService{repo: repo, q: q, mutate: mutate, policies: policies, logger: logger}
}

// List returns the user's addresses
func (s *AddressService) List(ctx context.Context) ([]domain.Address, error) {
	addrs, err := query.Get(ctx, s.q, AddressesKey(), s.policies.Default, s.repo.GetAddresses)
	if err != nil {
		return addrs, fmt.Errorf("load addresses: %w", err)
	}
	return addrs, nil
}

// Default returns the address flagged as default, if any
func (s *AddressService) Default(ctx context.Context) (*domain.Address, error) {
	addrs, err := s.List(ctx)
	if err != nil && len(addrs) == 0 {
		return nil, err
	}
	for i := range addrs {
		if addrs[i].IsDefault {
			a := addrs[i]
			return &a, nil
		}
	}
	return nil, nil
}

// Create adds an address. The server assigns the id, so nothing is
// predicted; the list refetches on settle.
func (s *AddressService) Create(ctx context.Context, in domain.AddressInput) (*domain.Address, error) {
	res, err := s.mutate.Execute(ctx, query.Mutation{
		Name: "address.create",
		Keys: []query.Key{{RootAddresses}},
		Commit: func(ctx context.Context) (any, error) {
			return s.repo.CreateAddress(ctx, in)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	return res.Value.(*domain.Address), nil
}

// Update edits an address
func (s *AddressService) Update(ctx context.Context, id string, in domain.AddressInput) (*domain.Address, error) {
	res, err := s.mutate.Execute(ctx, query.Mutation{
		Name: "address.update",
		Keys: []query.Key{{RootAddresses}},
		Commit: func(ctx context.Context) (any, error) {
			return s.repo.UpdateAddress(ctx, id, in)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("update address %s: %w", id, err)
	}
	return res.Value.(*domain.Address), nil
}

// SetDefault marks id as the default address. The cached list reflects
// the change immediately and rolls back if the server rejects it.
func (s *AddressService) SetDefault(ctx context.Context, id string) error {
	isDefault := true
	_, err := s.mutate.Execute(ctx, query.Mutation{
		Name:    "address.set_default",
		Keys:    []query.Key{{RootAddresses}},
		Predict: query.Update(predictDefault(id)),
		Commit: func(ctx context.Context) (any, error) {
			return s.repo.UpdateAddress(ctx, id, domain.AddressInput{IsDefault: &isDefault})
		},
	})
	if err != nil {
		return fmt.Errorf("set default address %s: %w", id, err)
	}
	return nil
}

// Delete removes an address optimistically
func (s *AddressService) Delete(ctx context.Context, id string) error {
	_, err := s.mutate.Execute(ctx, query.Mutation{
		Name:    "address.delete",
		Keys:    []query.Key{{RootAddresses}},
		Predict: query.Update(predictAddressRemoval(id)),
		Commit: func(ctx context.Context) (any, error) {
			return nil, s.repo.DeleteAddress(ctx, id)
		},
	})
	if err != nil {
		return fmt.Errorf("delete address %s: %w", id, err)
	}
	return nil
}

// predictDefault flags id as default and every sibling as non-default.
// Lists that do not contain id are left to the refetch.
func predictDefault(id string) func(query.Key, []domain.Address) ([]domain.Address, bool) {
	return func(_ query.Key, addrs []domain.Address) ([]domain.Address, bool) {
		found := false
		for _, a := range addrs {
			if a.ID == id {
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
		out := make([]domain.Address, len(addrs))
		for i, a := range addrs {
			a.IsDefault = a.ID == id
			out[i] = a
		}
		return out, true
	}
}

func predictAddressRemoval(id string) func(query.Key, []domain.Address) ([]domain.Address, bool) {
	return func(_ query.Key, addrs []domain.Address) ([]domain.Address, bool) {
		out := make([]domain.Address, 0, len(addrs))
		for _, a := range addrs {
			if a.ID != id {
				out = append(out, a)
			}
		}
		if len(out) == len(addrs) {
			return nil, false
		}
		return out, true
	}
}
