// Package actor identifies the user or system performing an action.
//
// The API gateway authenticates requests and forwards the identity in
// headers; the HTTP middleware turns those into an Actor on the request
// context. Background jobs run as SystemActor.
package actor

import (
	"context"
	"fmt"
	"strings"
)

// SystemID is the actor id recorded for scheduled and event-driven work.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// Name is the display name forwarded by the gateway
	Name string `json:"name"`

	// Email is the actor's email address
	Email string `json:"email"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	if a.Email == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(a.Name), a.Email)
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// IDFromContext returns the id of the acting user, or SystemID when the
// context carries no actor.
func IDFromContext(ctx context.Context) string {
	if a := FromContext(ctx); a != nil && a.ID != "" {
		return a.ID
	}
	return SystemID
}

// SystemActor returns an Actor representing the system itself.
// Use this for background jobs, scheduled tasks, and system-initiated operations.
func SystemActor() *Actor {
	return &Actor{
		ID:    SystemID,
		Name:  "System",
		Email: "system@stockflow.local",
	}
}

