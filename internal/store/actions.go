package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/werr"
)

func (s *PostgresStore) UpsertAction(ctx context.Context, action *domain.Action) error {
	if action.Namespace == "" || action.Name == "" {
		return werr.Validationf("action namespace and name are required")
	}

	now := time.Now()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.UpdatedAt = now

	data, err := json.Marshal(action)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO actions (namespace, package, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		ON CONFLICT (namespace, package, name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, action.Namespace, action.Package, action.Name, data, action.CreatedAt, action.UpdatedAt)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "upsert action", err)
	}
	return nil
}

func (s *PostgresStore) GetAction(ctx context.Context, namespace, pkg, name string) (*domain.Action, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM actions WHERE namespace = $1 AND package = $2 AND name = $3
	`, namespace, pkg, name).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, werr.NotFoundf("action not found: %s", domain.BuildFQN(namespace, pkg, name))
	}
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "get action", err)
	}

	var action domain.Action
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

func (s *PostgresStore) ListActions(ctx context.Context, namespace, pkg string) ([]*domain.Action, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM actions WHERE namespace = $1 AND package = $2 ORDER BY name
	`, namespace, pkg)
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "list actions", err)
	}
	defer rows.Close()

	var out []*domain.Action
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, werr.Wrap(werr.KindInternal, "scan action", err)
		}
		var action domain.Action
		if err := json.Unmarshal(data, &action); err != nil {
			continue
		}
		out = append(out, &action)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteAction(ctx context.Context, namespace, pkg, name string) error {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM actions WHERE namespace = $1 AND package = $2 AND name = $3
	`, namespace, pkg, name)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "delete action", err)
	}
	if ct.RowsAffected() == 0 {
		return werr.NotFoundf("action not found: %s", domain.BuildFQN(namespace, pkg, name))
	}
	return nil
}
