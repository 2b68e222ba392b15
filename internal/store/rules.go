package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/werr"
)

func (s *PostgresStore) UpsertRule(ctx context.Context, rule *domain.Rule) error {
	if rule.Namespace == "" || rule.Name == "" {
		return werr.Validationf("rule namespace and name are required")
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	if rule.Status == "" {
		rule.Status = domain.RuleStatusActive
	}

	data, err := json.Marshal(rule)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO rules (namespace, name, trigger, action, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (namespace, name) DO UPDATE SET
			trigger = EXCLUDED.trigger,
			action = EXCLUDED.action,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, rule.Namespace, rule.Name, rule.Trigger, rule.Action, data, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "upsert rule", err)
	}
	return nil
}

func (s *PostgresStore) GetRule(ctx context.Context, namespace, name string) (*domain.Rule, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM rules WHERE namespace = $1 AND name = $2
	`, namespace, name).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, werr.NotFoundf("rule not found: %s/%s", namespace, name)
	}
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "get rule", err)
	}

	var rule domain.Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *PostgresStore) ListRules(ctx context.Context, namespace string) ([]*domain.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM rules WHERE namespace = $1 ORDER BY name
	`, namespace)
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "list rules", err)
	}
	defer rows.Close()

	var out []*domain.Rule
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, werr.Wrap(werr.KindInternal, "scan rule", err)
		}
		var rule domain.Rule
		if err := json.Unmarshal(data, &rule); err != nil {
			continue
		}
		out = append(out, &rule)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListRulesForTrigger(ctx context.Context, namespace, triggerName string) ([]*domain.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM rules WHERE namespace = $1 AND (trigger = $2 OR trigger = $3) ORDER BY name
	`, namespace, triggerName, domain.BuildFQN(namespace, "", triggerName))
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "list rules for trigger", err)
	}
	defer rows.Close()

	var out []*domain.Rule
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, werr.Wrap(werr.KindInternal, "scan rule", err)
		}
		var rule domain.Rule
		if err := json.Unmarshal(data, &rule); err != nil {
			continue
		}
		out = append(out, &rule)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRule(ctx context.Context, namespace, name string) error {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM rules WHERE namespace = $1 AND name = $2
	`, namespace, name)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "delete rule", err)
	}
	if ct.RowsAffected() == 0 {
		return werr.NotFoundf("rule not found: %s/%s", namespace, name)
	}
	return nil
}
