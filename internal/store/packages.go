package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/werr"
)

func (s *PostgresStore) UpsertPackage(ctx context.Context, pkg *domain.Package) error {
	if pkg.Namespace == "" || pkg.Name == "" {
		return werr.Validationf("package namespace and name are required")
	}

	now := time.Now()
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = now
	}
	pkg.UpdatedAt = now

	data, err := json.Marshal(pkg)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO packages (namespace, name, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (namespace, name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, pkg.Namespace, pkg.Name, data, pkg.CreatedAt, pkg.UpdatedAt)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "upsert package", err)
	}
	return nil
}

func (s *PostgresStore) GetPackage(ctx context.Context, namespace, name string) (*domain.Package, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM packages WHERE namespace = $1 AND name = $2
	`, namespace, name).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, werr.NotFoundf("package not found: %s/%s", namespace, name)
	}
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "get package", err)
	}

	var pkg domain.Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (s *PostgresStore) ListPackages(ctx context.Context, namespace string) ([]*domain.Package, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM packages WHERE namespace = $1 ORDER BY name
	`, namespace)
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "list packages", err)
	}
	defer rows.Close()

	var out []*domain.Package
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, werr.Wrap(werr.KindInternal, "scan package", err)
		}
		var pkg domain.Package
		if err := json.Unmarshal(data, &pkg); err != nil {
			continue
		}
		out = append(out, &pkg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeletePackage(ctx context.Context, namespace, name string) error {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM packages WHERE namespace = $1 AND name = $2
	`, namespace, name)
	if err != nil {
		return werr.Wrap(werr.KindInternal, "delete package", err)
	}
	if ct.RowsAffected() == 0 {
		return werr.NotFoundf("package not found: %s/%s", namespace, name)
	}
	return nil
}

// ResolvePackageParameters walks the binding chain of a package, merging
// each bound package's own parameters, up to domain.MaxBindingDepth hops.
// A chain exceeding the bound is treated as a cycle and rejected, rather
// than looping forever.
func (s *PostgresStore) ResolvePackageParameters(ctx context.Context, namespace, name string) ([]domain.KeyValue, error) {
	visited := make(map[string]bool)
	var merged []domain.KeyValue

	curNamespace, curName := namespace, name
	for depth := 0; depth < domain.MaxBindingDepth; depth++ {
		key := curNamespace + "/" + curName
		if visited[key] {
			return nil, werr.Validationf("package binding cycle detected at %s", key)
		}
		visited[key] = true

		pkg, err := s.GetPackage(ctx, curNamespace, curName)
		if err != nil {
			return nil, err
		}

		// Bound package's own parameters are inherited first (lower
		// precedence), then overridden by parameters closer to the root.
		merged = append(pkg.Parameters, merged...)

		if pkg.Binding == nil {
			return merged, nil
		}
		curNamespace, curName = pkg.Binding.Namespace, pkg.Binding.Name
	}

	return nil, werr.Validationf("package binding chain for %s/%s exceeds max depth %d", namespace, name, domain.MaxBindingDepth)
}
