package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// FavoriteService manages favorites of both kinds. Every operation takes
// the domain.Favorite union so services and providers are handled alike.
type FavoriteService struct {
	repo     domain.FavoriteRepository
	q        *query.Coordinator
	mutate   *query.Engine
	policies Policies
	logger   *slog.Logger
}

// NewFavoriteService creates a new favorite service
func NewFavoriteService(repo domain.FavoriteRepository, q *query.Coordinator, mutate *query.Engine, policies Policies, logger *slog.Logger) *FavoriteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FavoriteService{repo: repo, q: q, mutate: mutate, policies: policies, logger: logger}
}

// List returns the favorites of one kind
func (s *FavoriteService) List(ctx context.Context, kind domain.FavoriteKind) ([]domain.Favorite, error) {
	favs, err := query.Get(ctx, s.q, FavoritesKey(kind), s.policies.Default, func(ctx context.Context) ([]domain.Favorite, error) {
		return s.repo.GetFavorites(ctx, kind)
	})
	if err != nil {
		return favs, fmt.Errorf("load %s favorites: %w", kind, err)
	}
	return favs, nil
}

// IsFavorite answers from the cache only. known is false when no list
// of that kind has been loaded.
func (s *FavoriteService) IsFavorite(fav domain.Favorite) (is, known bool) {
	for _, k := range s.q.Cache().Keys(FavoritesPrefix()) {
		list, ok := query.Peek[[]domain.Favorite](s.q.Cache(), k)
		if !ok {
			continue
		}
		if k.Equal(FavoritesKey(fav.Kind)) {
			known = true
		}
		if containsFavorite(list, fav) {
			return true, true
		}
	}
	return false, known
}

// Add favorites a target. The server record carries display fields the
// client cannot fill in, so the lists only change after the refetch.
func (s *FavoriteService) Add(ctx context.Context, fav domain.Favorite) error {
	if err := fav.Validate(); err != nil {
		return err
	}
	_, err := s.mutate.Execute(ctx, query.Mutation{
		Name: "favorite.add",
		Keys: []query.Key{FavoritesPrefix()},
		Commit: func(ctx context.Context) (any, error) {
			return nil, s.repo.AddFavorite(ctx, fav)
		},
	})
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// Remove unfavorites a target, removing it from every cached list at once
func (s *FavoriteService) Remove(ctx context.Context, fav domain.Favorite) error {
	if err := fav.Validate(); err != nil {
		return err
	}
	_, err := s.mutate.Execute(ctx, query.Mutation{
		Name:    "favorite.remove",
		Keys:    []query.Key{FavoritesPrefix()},
		Predict: query.Update(predictFavoriteRemoval(fav)),
		Commit: func(ctx context.Context) (any, error) {
			return nil, s.repo.RemoveFavorite(ctx, fav)
		},
	})
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// Toggle flips a favorite and returns the server's resulting state.
// Only removal is predicted: a target present in a cached list is removed
// from it, lists without it are left for the refetch to settle.
func (s *FavoriteService) Toggle(ctx context.Context, fav domain.Favorite) (bool, error) {
	if err := fav.Validate(); err != nil {
		return false, err
	}
	res, err := s.mutate.Execute(ctx, query.Mutation{
		Name:    "favorite.toggle",
		Keys:    []query.Key{FavoritesPrefix()},
		Predict: query.Update(predictFavoriteRemoval(fav)),
		Commit: func(ctx context.Context) (any, error) {
			return s.repo.ToggleFavorite(ctx, fav)
		},
	})
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	on, _ := res.Value.(bool)
	s.logger.Debug("favorite toggled", "kind", fav.Kind, "target", fav.TargetID, "favorite", on)
	return on, nil
}

func predictFavoriteRemoval(fav domain.Favorite) func(query.Key, []domain.Favorite) ([]domain.Favorite, bool) {
	return func(_ query.Key, list []domain.Favorite) ([]domain.Favorite, bool) {
		if !containsFavorite(list, fav) {
			return nil, false
		}
		out := make([]domain.Favorite, 0, len(list)-1)
		for _, f := range list {
			if !f.Matches(fav) {
				out = append(out, f)
			}
		}
		return out, true
	}
}

func containsFavorite(list []domain.Favorite, fav domain.Favorite) bool {
	for _, f := range list {
		if f.Matches(fav) {
			return true
		}
	}
	return false
}
