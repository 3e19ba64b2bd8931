package sqlite

import (
	"context"
	"fmt"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/internal/server/storage"
)

// SaveEndpoint stores a new push endpoint
func (s *Storage) SaveEndpoint(ctx context.Context, endpoint *models.PushEndpoint) error {
	query := `
		INSERT INTO push_endpoints (id, user_id, url, token, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.UserID,
		endpoint.URL,
		endpoint.Token,
		endpoint.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save push endpoint: %w", err)
	}

	return nil
}

// GetUserEndpoints retrieves all endpoints for a user
func (s *Storage) GetUserEndpoints(ctx context.Context, userID string) ([]*models.PushEndpoint, error) {
	query := `
		SELECT id, user_id, url, token, created_at
		FROM push_endpoints
		WHERE user_id = ?
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query push endpoints: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var endpoints []*models.PushEndpoint

	for rows.Next() {
		endpoint := &models.PushEndpoint{}
		if err := rows.Scan(
			&endpoint.ID,
			&endpoint.UserID,
			&endpoint.URL,
			&endpoint.Token,
			&endpoint.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan push endpoint: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return endpoints, nil
}

// DeleteEndpoint deletes endpoint by ID, scoped to its owner
func (s *Storage) DeleteEndpoint(ctx context.Context, userID, endpointID string) error {
	query := `DELETE FROM push_endpoints WHERE user_id = ? AND id = ?`

	result, err := s.db.ExecContext(ctx, query, userID, endpointID)
	if err != nil {
		return fmt.Errorf("failed to delete push endpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrEndpointNotFound
	}

	return nil
}
