package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/werr"
)

// SaveActivation upserts an activation record. The Activation Manager
// calls this both on Open (status pending) and on Finalize (terminal
// status); the write must land before any broker publish, per the
// write-before-publish invariant.
func (s *PostgresStore) SaveActivation(ctx context.Context, activation *domain.Activation) error {
	if activation.ActivationID == "" {
		return werr.Validationf("activation id is required")
	}

	data, err := json.Marshal(activation)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO activations (activation_id, namespace, name, data, start_time)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (activation_id) DO UPDATE SET
			data = EXCLUDED.data
	`, activation.ActivationID, activation.Namespace, activation.Name, data, activation.Start)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "save activation", err)
	}
	return nil
}

func (s *PostgresStore) GetActivation(ctx context.Context, namespace, activationID string) (*domain.Activation, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM activations WHERE namespace = $1 AND activation_id = $2
	`, namespace, activationID).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, werr.NotFoundf("activation not found: %s", activationID)
	}
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "get activation", err)
	}

	var activation domain.Activation
	if err := json.Unmarshal(data, &activation); err != nil {
		return nil, err
	}
	return &activation, nil
}

// ListActivations returns the most recent activations for a namespace,
// optionally filtered to a single action name, newest first.
func (s *PostgresStore) ListActivations(ctx context.Context, namespace string, limit int, sinceActionName string) ([]*domain.Activation, error) {
	if limit <= 0 {
		limit = 30
	}

	var rows pgx.Rows
	var err error
	if sinceActionName == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT data FROM activations
			WHERE namespace = $1
			ORDER BY start_time DESC
			LIMIT $2
		`, namespace, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT data FROM activations
			WHERE namespace = $1 AND name = $2
			ORDER BY start_time DESC
			LIMIT $3
		`, namespace, sinceActionName, limit)
	}
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "list activations", err)
	}
	defer rows.Close()

	var out []*domain.Activation
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, werr.Wrap(werr.KindInternal, "scan activation", err)
		}
		var activation domain.Activation
		if err := json.Unmarshal(data, &activation); err != nil {
			continue
		}
		out = append(out, &activation)
	}
	return out, rows.Err()
}
