package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"

	"github.com/google/uuid"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	// HeaderUserID carries the authenticated user id set by the session provider.
	HeaderUserID = "X-User-ID"
	// HeaderUserRole carries the authenticated user's role.
	HeaderUserRole = "X-User-Role"
)

// ContextWithActor returns a new context that carries the authenticated caller.
func ContextWithActor(ctx context.Context, actor domain.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the authenticated caller from the context, if any.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	if !ok {
		return domain.Actor{}, false
	}
	if actor.UserID == uuid.Nil {
		return domain.Actor{}, false
	}
	return actor, true
}

// RequireActor rejects requests without a valid caller identity and stores the
// identity on the request context for downstream handlers.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if raw == "" {
			http.Error(w, "caller identity required", http.StatusUnauthorized)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			http.Error(w, "invalid caller identity", http.StatusUnauthorized)
			return
		}

		actor := domain.Actor{UserID: id, Role: strings.TrimSpace(r.Header.Get(HeaderUserRole))}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}
