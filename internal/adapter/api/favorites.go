package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mmcdole/handy/internal/domain"
)

// favoritesPath returns the collection path for kind: service favorites
// live at /favorites, provider favorites at /favorites/provider
func favoritesPath(kind domain.FavoriteKind) string {
	if kind == domain.FavoriteProvider {
		return "/favorites/provider"
	}
	return "/favorites"
}

// favoriteBody is the add/toggle payload for fav
func favoriteBody(fav domain.Favorite) map[string]string {
	if fav.Kind == domain.FavoriteProvider {
		return map[string]string{"provider_id": fav.TargetID}
	}
	return map[string]string{"service_id": fav.TargetID}
}

// GetFavorites returns the favorites of one kind
func (c *Client) GetFavorites(ctx context.Context, kind domain.FavoriteKind) ([]domain.Favorite, error) {
	var rows []FavoriteRecord
	if err := c.get(ctx, favoritesPath(kind), nil, &rows); err != nil {
		return nil, err
	}
	favs := MapFavorites(kind, rows)
	if dropped := len(rows) - len(favs); dropped > 0 {
		c.logger.Warn("dropped unresolvable favorites", "kind", kind, "count", dropped)
	}
	return favs, nil
}

// AddFavorite favorites a target
func (c *Client) AddFavorite(ctx context.Context, fav domain.Favorite) error {
	if err := fav.Validate(); err != nil {
		return err
	}
	return c.send(ctx, http.MethodPost, favoritesPath(fav.Kind), favoriteBody(fav), nil)
}

// RemoveFavorite unfavorites a target
func (c *Client) RemoveFavorite(ctx context.Context, fav domain.Favorite) error {
	if err := fav.Validate(); err != nil {
		return err
	}
	return c.send(ctx, http.MethodDelete, favoritesPath(fav.Kind)+"/"+url.PathEscape(fav.TargetID), nil, nil)
}

// ToggleFavorite flips a favorite server-side and reports the new state
func (c *Client) ToggleFavorite(ctx context.Context, fav domain.Favorite) (bool, error) {
	if err := fav.Validate(); err != nil {
		return false, err
	}
	var resp toggleResponse
	if err := c.send(ctx, http.MethodPost, favoritesPath(fav.Kind)+"/toggle", favoriteBody(fav), &resp); err != nil {
		return false, err
	}
	switch {
	case resp.IsFavorite != nil:
		return *resp.IsFavorite, nil
	case resp.Favorited != nil:
		return *resp.Favorited, nil
	}
	c.logger.Debug("toggle reply without state", "kind", fav.Kind, "target", fav.TargetID)
	return false, nil
}
