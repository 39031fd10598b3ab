package http

import (
	"context"
	"strings"

	"github.com/example/fieldwork-scheduler/internal/audit"
)

// ActorHeader names the request header that identifies the acting user.
const ActorHeader = "X-Actor"

type contextKey string

const actorContextKey contextKey = "actor"

// ContextWithActor returns a derived context carrying the acting user.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the acting user, or the system actor when none was supplied.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey).(string); ok && strings.TrimSpace(actor) != "" {
		return actor
	}
	return audit.SystemActor
}
