package syncer

import (
	"context"

	"github.com/Kunal9797/artissales-sub000/pkg/record"
)

// RemoteClient is the server API the engine syncs against. Implementations
// live with the app's networking layer; the engine only requires that errors
// map onto the NetworkError/AuthError/ValidationError taxonomy (anything
// else is treated as a network failure).
type RemoteClient interface {
	// FetchAll returns the full authoritative entity list for the signed-in
	// identity.
	FetchAll(ctx context.Context) ([]record.Entity, error)

	// Create creates the entity on the server and returns its assigned id.
	Create(ctx context.Context, payload record.Entity) (string, error)
}
