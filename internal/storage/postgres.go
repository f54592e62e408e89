package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paywall-engine/internal/config"
	"paywall-engine/internal/model"
)

// Store is the postgres backend: campaign configuration tables plus a
// kv_store table implementing the KV contract.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// LoadCampaignConfig loads every trigger with its rules in declared
// order, plus all paywalls. Rule order is significant downstream, so
// the query orders by position.
func (s *Store) LoadCampaignConfig(ctx context.Context) ([]model.Trigger, []model.Paywall, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT t.name,
		       r.expression, r.experiment_id, r.experiment_group_id,
		       r.variant_id, r.variant_type, r.paywall_id,
		       r.occurrence_key, r.occurrence_max
		FROM triggers t
		LEFT JOIN trigger_rules r ON r.trigger_name = t.name
		ORDER BY t.name, r.position
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()

	order := []string{}
	triggers := map[string]*model.Trigger{}

	for rows.Next() {
		var (
			name                            string
			expr, expID, groupID            sql.NullString
			variantID, variantType, payID   sql.NullString
			occKey                          sql.NullString
			occMax                          sql.NullInt32
		)
		if err := rows.Scan(&name, &expr, &expID, &groupID,
			&variantID, &variantType, &payID, &occKey, &occMax); err != nil {
			return nil, nil, fmt.Errorf("scan trigger row: %w", err)
		}

		t, ok := triggers[name]
		if !ok {
			t = &model.Trigger{Name: name}
			triggers[name] = t
			order = append(order, name)
		}

		if !expID.Valid {
			continue // trigger with no rules
		}
		rule := model.Rule{
			Expression:        expr.String,
			ExperimentID:      expID.String,
			ExperimentGroupID: groupID.String,
			Variant: model.Variant{
				ID:        variantID.String,
				Type:      model.VariantType(variantType.String),
				PaywallID: payID.String,
			},
		}
		if occKey.Valid && occMax.Valid {
			rule.Occurrence = &model.Occurrence{
				Key:      occKey.String,
				MaxCount: int(occMax.Int32),
			}
		}
		t.Rules = append(t.Rules, rule)
	}
	if rows.Err() != nil {
		return nil, nil, rows.Err()
	}

	paywalls, err := s.loadPaywalls(ctx)
	if err != nil {
		return nil, nil, err
	}

	out := make([]model.Trigger, 0, len(order))
	for _, name := range order {
		out = append(out, *triggers[name])
	}
	return out, paywalls, nil
}

func (s *Store) loadPaywalls(ctx context.Context) ([]model.Paywall, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, url, presentation_condition
		FROM paywalls
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query paywalls: %w", err)
	}
	defer rows.Close()

	var out []model.Paywall
	for rows.Next() {
		var p model.Paywall
		var cond string
		if err := rows.Scan(&p.ID, &p.Name, &p.URL, &cond); err != nil {
			return nil, fmt.Errorf("scan paywall row: %w", err)
		}
		p.PresentationCondition = model.PresentationCondition(cond)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get implements the KV contract against the kv_store table.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) ListenChannel() string {
	return "paywall_config_change"
}

func (s *Store) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}
