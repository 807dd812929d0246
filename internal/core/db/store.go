package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Rule persistence.
 *
 * The in-memory Registry stays the evaluation source; RuleStore is its
 * write-through backing. Callers mutate the registry first (which validates
 * and assigns ids) and then persist the resulting rule, so nothing invalid
 * reaches the table.
 *
 * Row layout: the complete rule as JSON in definition, with name, enabled,
 * priority and category mirrored into columns. The enabled column wins over
 * the JSON on load so a rule can be switched off with plain SQL. position
 * preserves registry order across restarts; upserts of existing rules keep
 * their position, new rules go last.
 */

type ruleRow struct {
	ID         string `db:"rule_id"`
	Name       string `db:"name"`
	Enabled    bool   `db:"enabled"`
	Priority   int    `db:"priority"`
	Category   string `db:"category"`
	Position   int64  `db:"position"`
	Definition []byte `db:"definition"`
}

func (r ruleRow) rule() (*types.Rule, error) {
	var rule types.Rule
	if err := json.Unmarshal(r.Definition, &rule); err != nil {
		return nil, fmt.Errorf("rule %s: invalid definition: %w", r.ID, err)
	}
	rule.ID = types.RuleID(r.ID)
	rule.Enabled = r.Enabled
	return &rule, nil
}

// RuleStore reads and writes rules through the named queries.
type RuleStore struct {
	db      *sqlx.DB
	queries *Queries
	logger  zerolog.Logger
}

// NewRuleStore prepares a store over an opened and migrated database.
func NewRuleStore(db *sqlx.DB, logger zerolog.Logger) (*RuleStore, error) {
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &RuleStore{
		db:      db,
		queries: queries,
		logger:  logger.With().Str("component", "rule-store").Logger(),
	}, nil
}

// List returns all stored rules in registry order.
func (s *RuleStore) List(ctx context.Context) ([]*types.Rule, error) {
	var rows []ruleRow
	if err := s.queries.Select(ctx, "list-rules", &rows); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	out := make([]*types.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.rule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Get returns one rule or types.ErrRuleNotFound.
func (s *RuleStore) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row ruleRow
	err := s.queries.Get(ctx, "get-rule", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}
	return row.rule()
}

// Count returns the number of stored rules.
func (s *RuleStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.queries.Get(ctx, "count-rules", &n); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return n, nil
}

// Upsert inserts rule or overwrites the stored copy in place.
func (s *RuleStore) Upsert(ctx context.Context, rule *types.Rule) error {
	return upsert(ctx, s.queries, rule)
}

func upsert(ctx context.Context, q *Queries, rule *types.Rule) error {
	definition, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}
	_, err = q.Exec(ctx, "upsert-rule",
		string(rule.ID), rule.Name, rule.Enabled, rule.Priority, rule.Category,
		string(definition), now(),
	)
	if err != nil {
		return fmt.Errorf("failed to store rule %s: %w", rule.ID, err)
	}
	return nil
}

// SetEnabled flips the authoritative enabled column.
func (s *RuleStore) SetEnabled(ctx context.Context, id types.RuleID, enabled bool) error {
	res, err := s.queries.Exec(ctx, "set-rule-enabled", enabled, now(), string(id))
	if err != nil {
		return fmt.Errorf("failed to update rule %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes a rule.
func (s *RuleStore) Delete(ctx context.Context, id types.RuleID) error {
	res, err := s.queries.Exec(ctx, "delete-rule", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	return requireRow(res, id)
}

// ReplaceAll swaps the stored set for rules in one transaction, keeping their order.
func (s *RuleStore) ReplaceAll(ctx context.Context, rules []*types.Rule) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := s.queries.WithTx(tx)
	if _, err := q.Exec(ctx, "delete-all-rules"); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	ts := now()
	for i, rule := range rules {
		definition, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
		}
		_, err = q.Exec(ctx, "insert-rule-at",
			string(rule.ID), rule.Name, rule.Enabled, rule.Priority, rule.Category,
			int64(i+1), string(definition), ts,
		)
		if err != nil {
			return fmt.Errorf("failed to store rule %s: %w", rule.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	s.logger.Info().Int("rules", len(rules)).Msg("rule set replaced")
	return nil
}

// LoadInto replaces the registry contents with the stored rules.
// An empty table leaves the registry untouched and returns 0.
func (s *RuleStore) LoadInto(ctx context.Context, registry *rules.Registry) (int, error) {
	stored, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(stored) == 0 {
		return 0, nil
	}
	if err := registry.Load(stored); err != nil {
		return 0, fmt.Errorf("stored rules rejected: %w", err)
	}
	s.logger.Info().Int("rules", len(stored)).Msg("rules loaded from store")
	return len(stored), nil
}

func requireRow(res sql.Result, id types.RuleID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	return nil
}

// RFC3339 text satisfies the sqlite CHECK and casts cleanly to TIMESTAMPTZ.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
