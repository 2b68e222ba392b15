package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/werr"
)

func (s *PostgresStore) UpsertNamespace(ctx context.Context, ns *domain.Namespace) error {
	if ns.Name == "" {
		return werr.Validationf("namespace name is required")
	}

	now := time.Now()
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = now
	}
	ns.UpdatedAt = now

	data, err := json.Marshal(ns)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO namespaces (name, subject, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			subject = EXCLUDED.subject,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, ns.Name, ns.Subject, data, ns.CreatedAt, ns.UpdatedAt)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "upsert namespace", err)
	}
	return nil
}

func (s *PostgresStore) GetNamespace(ctx context.Context, name string) (*domain.Namespace, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM namespaces WHERE name = $1`, name).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, werr.NotFoundf("namespace not found: %s", name)
	}
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "get namespace", err)
	}

	var ns domain.Namespace
	if err := json.Unmarshal(data, &ns); err != nil {
		return nil, err
	}
	return &ns, nil
}

func (s *PostgresStore) ListNamespaces(ctx context.Context, subject string) ([]*domain.Namespace, error) {
	var rows pgx.Rows
	var err error
	if subject == "" {
		rows, err = s.pool.Query(ctx, `SELECT data FROM namespaces ORDER BY name`)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT data FROM namespaces WHERE subject = $1 ORDER BY name`, subject)
	}
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "list namespaces", err)
	}
	defer rows.Close()

	var out []*domain.Namespace
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, werr.Wrap(werr.KindInternal, "scan namespace", err)
		}
		var ns domain.Namespace
		if err := json.Unmarshal(data, &ns); err != nil {
			continue
		}
		out = append(out, &ns)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteNamespace(ctx context.Context, name string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM namespaces WHERE name = $1`, name)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "delete namespace", err)
	}
	if ct.RowsAffected() == 0 {
		return werr.NotFoundf("namespace not found: %s", name)
	}
	return nil
}
