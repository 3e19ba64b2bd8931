package storage

import (
	"context"

	"github.com/iudanet/syncvault/internal/models"
)

// PushStorage defines interface for push endpoint persistence
type PushStorage interface {
	// SaveEndpoint stores a new push endpoint
	SaveEndpoint(ctx context.Context, endpoint *models.PushEndpoint) error

	// GetUserEndpoints retrieves all endpoints for a user
	// Returns empty slice if no endpoints found
	GetUserEndpoints(ctx context.Context, userID string) ([]*models.PushEndpoint, error)

	// DeleteEndpoint deletes endpoint by ID, scoped to its owner
	// Returns ErrEndpointNotFound if endpoint doesn't exist
	DeleteEndpoint(ctx context.Context, userID, endpointID string) error
}
