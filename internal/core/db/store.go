package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/healthcert/internal/trustlist"
	"github.com/solatis/healthcert/internal/types"
)

// Store persists trust-list material: rule sets per country, signing keys
// and revoked certificate identifiers.
type Store struct {
	queries *Queries
	now     func() time.Time
}

// NewStore loads the named queries for db.
func NewStore(db *sqlx.DB) (*Store, error) {
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{queries: queries, now: time.Now}, nil
}

// Queries exposes the named queries, e.g. for the authenticator.
func (s *Store) Queries() *Queries {
	return s.queries
}

// RuleSetRecord describes a stored rule set without its body.
type RuleSetRecord struct {
	ID            types.RuleSetID `db:"rule_set_id"`
	Country       string          `db:"country"`
	ValidDuration int64           `db:"valid_duration"`
	ImportedAt    time.Time       `db:"imported_at"`
}

// SaveRuleSet validates and stores a published rule set for country. The
// body is kept byte for byte; the newest import wins on read.
func (s *Store) SaveRuleSet(ctx context.Context, country string, body []byte) (types.RuleSetID, error) {
	if len(country) != 2 {
		return "", fmt.Errorf("country must be a two-letter code, got %q", country)
	}
	rs, err := types.ParseRuleSet(body)
	if err != nil {
		return "", err
	}

	id := types.NewRuleSetID()
	_, err = s.queries.Exec(ctx, "insert-rule-set",
		string(id), country, rs.ValidDuration, string(body), s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to store rule set: %w", err)
	}
	return id, nil
}

// LatestRuleSet returns the most recently imported rule set for country.
// Returns types.ErrNoRuleSet when none was imported.
func (s *Store) LatestRuleSet(ctx context.Context, country string) (*types.RuleSet, RuleSetRecord, error) {
	var row struct {
		RuleSetRecord
		Body string `db:"body"`
	}
	err := s.queries.Get(ctx, "get-latest-rule-set", &row, country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, RuleSetRecord{}, fmt.Errorf("%s: %w", country, types.ErrNoRuleSet)
	}
	if err != nil {
		return nil, RuleSetRecord{}, fmt.Errorf("failed to query rule set: %w", err)
	}

	rs, err := types.ParseRuleSet([]byte(row.Body))
	if err != nil {
		return nil, RuleSetRecord{}, fmt.Errorf("stored rule set %s: %w", row.ID, err)
	}
	return rs, row.RuleSetRecord, nil
}

// ListRuleSets returns every stored rule set, newest first per country.
func (s *Store) ListRuleSets(ctx context.Context) ([]RuleSetRecord, error) {
	var records []RuleSetRecord
	if err := s.queries.Select(ctx, "list-rule-sets", &records); err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	return records, nil
}

type signingKeyRow struct {
	KeyID string `db:"key_id"`
	Use   string `db:"key_use"`
	Alg   string `db:"alg"`
	Crv   string `db:"crv"`
	X     string `db:"x"`
	Y     string `db:"y"`
	N     string `db:"n"`
	E     string `db:"e"`
}

// ReplaceSigningKeys swaps the stored key list for keys atomically. Keys
// that do not parse are rejected before anything is written.
func (s *Store) ReplaceSigningKeys(ctx context.Context, keys []types.SigningKey) error {
	for _, k := range keys {
		if _, err := trustlist.ParseKey(k); err != nil {
			return fmt.Errorf("key %s: %w", k.KeyID, err)
		}
	}

	importedAt := s.now().UTC()
	return s.queries.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, "delete-signing-keys"); err != nil {
			return fmt.Errorf("failed to clear signing keys: %w", err)
		}
		for _, k := range keys {
			_, err := tx.Exec(ctx, "insert-signing-key",
				k.KeyID, k.Use, k.Alg, k.Crv, k.X, k.Y, k.N, k.E, importedAt)
			if err != nil {
				return fmt.Errorf("failed to store key %s: %w", k.KeyID, err)
			}
		}
		return nil
	})
}

// SigningKeys returns the stored key list.
func (s *Store) SigningKeys(ctx context.Context) ([]types.SigningKey, error) {
	var rows []signingKeyRow
	if err := s.queries.Select(ctx, "list-signing-keys", &rows); err != nil {
		return nil, fmt.Errorf("failed to list signing keys: %w", err)
	}

	keys := make([]types.SigningKey, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, types.SigningKey{
			KeyID: r.KeyID, Use: r.Use, Alg: r.Alg,
			Crv: r.Crv, X: r.X, Y: r.Y, N: r.N, E: r.E,
		})
	}
	return keys, nil
}

// Revocations returns the SQL-backed revocation list.
func (s *Store) Revocations() *RevocationStore {
	return &RevocationStore{queries: s.queries, now: s.now}
}

// TrustList assembles the trust list for country. revoked overrides the
// SQL revocation list when non-nil (e.g. a redis-backed set).
func (s *Store) TrustList(ctx context.Context, country string, revoked types.RevocationStore) (*types.TrustList, error) {
	rs, rec, err := s.LatestRuleSet(ctx, country)
	if err != nil {
		return nil, err
	}
	keys, err := s.SigningKeys(ctx)
	if err != nil {
		return nil, err
	}
	if revoked == nil {
		revoked = s.Revocations()
	}
	return &types.TrustList{SigningKeys: keys, Revoked: revoked, RuleSet: rs, RuleSetID: rec.ID}, nil
}

// RevocationStore is a revocation list in the revoked_certificates table.
type RevocationStore struct {
	queries *Queries
	now     func() time.Time
}

var _ trustlist.Store = (*RevocationStore)(nil)

func (r *RevocationStore) Contains(ctx context.Context, certificateID string) (bool, error) {
	var n int
	if err := r.queries.Get(ctx, "get-revoked-certificate", &n, certificateID); err != nil {
		return false, fmt.Errorf("failed to query revocation: %w", err)
	}
	return n > 0, nil
}

// Add records ids in one transaction. Known ids and empty strings are skipped.
func (r *RevocationStore) Add(ctx context.Context, certificateIDs ...string) error {
	revokedAt := r.now().UTC()
	return r.queries.InTx(ctx, func(tx *Tx) error {
		for _, id := range certificateIDs {
			if id == "" {
				continue
			}
			if _, err := tx.Exec(ctx, "insert-revoked-certificate", id, revokedAt); err != nil {
				return fmt.Errorf("failed to store revocation: %w", err)
			}
		}
		return nil
	})
}

// Len returns the number of revoked identifiers.
func (r *RevocationStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.queries.Get(ctx, "count-revoked-certificates", &n); err != nil {
		return 0, fmt.Errorf("failed to count revocations: %w", err)
	}
	return n, nil
}
