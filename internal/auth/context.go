package auth

import (
	"context"
	"net/http"
	"strings"
)

// DefaultActor is recorded on movements when no user is known, e.g. for
// adjustments triggered by the system itself.
const DefaultActor = "sistema"

const HeaderUserID = "X-User-Id"

type actorKey struct{}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the actor stored by ActorMiddleware, or DefaultActor.
func GetActor(ctx context.Context) string {
	if val, ok := ctx.Value(actorKey{}).(string); ok && val != "" {
		return val
	}
	return DefaultActor
}

// ActorMiddleware takes the caller identity from the X-User-Id header.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(HeaderUserID)); actor != "" {
			r = r.WithContext(WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
