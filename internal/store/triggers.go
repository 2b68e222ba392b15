package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/werr"
)

func (s *PostgresStore) UpsertTrigger(ctx context.Context, trigger *domain.Trigger) error {
	if trigger.Namespace == "" || trigger.Name == "" {
		return werr.Validationf("trigger namespace and name are required")
	}

	now := time.Now()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}
	trigger.UpdatedAt = now

	data, err := json.Marshal(trigger)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO triggers (namespace, name, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (namespace, name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, trigger.Namespace, trigger.Name, data, trigger.CreatedAt, trigger.UpdatedAt)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "upsert trigger", err)
	}
	return nil
}

func (s *PostgresStore) GetTrigger(ctx context.Context, namespace, name string) (*domain.Trigger, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM triggers WHERE namespace = $1 AND name = $2
	`, namespace, name).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, werr.NotFoundf("trigger not found: %s/%s", namespace, name)
	}
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "get trigger", err)
	}

	var trigger domain.Trigger
	if err := json.Unmarshal(data, &trigger); err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (s *PostgresStore) ListTriggers(ctx context.Context, namespace string) ([]*domain.Trigger, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM triggers WHERE namespace = $1 ORDER BY name
	`, namespace)
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "list triggers", err)
	}
	defer rows.Close()

	var out []*domain.Trigger
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, werr.Wrap(werr.KindInternal, "scan trigger", err)
		}
		var trigger domain.Trigger
		if err := json.Unmarshal(data, &trigger); err != nil {
			continue
		}
		out = append(out, &trigger)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteTrigger(ctx context.Context, namespace, name string) error {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM triggers WHERE namespace = $1 AND name = $2
	`, namespace, name)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "delete trigger", err)
	}
	if ct.RowsAffected() == 0 {
		return werr.NotFoundf("trigger not found: %s/%s", namespace, name)
	}
	return nil
}
