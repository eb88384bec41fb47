package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/platform/auth"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// actorFromContext maps the authenticated identity onto the domain actor the
// services operate on.
func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		return domain.Actor{}, false
	}
	return domain.Actor{ID: identity.UserID, Role: identity.Role}, true
}
