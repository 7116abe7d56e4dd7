// Copyright (C) 2025 SIWA Project
//
// This file is part of siwa-go.
//
// siwa-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// siwa-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with siwa-go.  If not, see <https://www.gnu.org/licenses/>.

package keyring

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/siwa-id/siwa-go/pkg/policy"
)

// ErrPolicyNotFound is returned for lookups of unknown policy ids.
var ErrPolicyNotFound = errors.New("policy not found")

// Store persists policies and their wallet attachments in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the policy database at path. Use
// ":memory:" for an ephemeral store.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		rules      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wallet_policies (
		wallet_id   TEXT NOT NULL,
		policy_id   TEXT NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
		attached_at INTEGER NOT NULL,
		PRIMARY KEY (wallet_id, policy_id)
	);
	CREATE INDEX IF NOT EXISTS idx_wallet_policies_wallet ON wallet_policies(wallet_id, attached_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreatePolicy validates and stores a policy, assigning it an id.
func (s *Store) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	p.ID = uuid.NewString()
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	now := s.now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO policies (id, name, rules, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(rules), now, now)
	if err != nil {
		return fmt.Errorf("failed to store policy: %w", err)
	}
	return nil
}

// GetPolicy loads one policy by id.
func (s *Store) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, rules FROM policies WHERE id = ?`, id)
	return scanPolicy(row)
}

// ListPolicies returns all policies ordered by creation time.
func (s *Store) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, rules FROM policies ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// UpdatePolicy replaces the name and rules of an existing policy.
func (s *Store) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE policies SET name = ?, rules = ?, updated_at = ? WHERE id = ?`,
		p.Name, string(rules), s.now().Unix(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	return requireOneRow(result)
}

// DeletePolicy removes a policy and, via cascade, its attachments.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	return requireOneRow(result)
}

// AttachPolicy binds a policy to a wallet. Attaching twice is an error
// so attachment order stays well defined.
func (s *Store) AttachPolicy(ctx context.Context, walletID, policyID string) error {
	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallet_policies (wallet_id, policy_id, attached_at) VALUES (?, ?, ?)`,
		walletID, policyID, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to attach policy: %w", err)
	}
	return nil
}

// DetachPolicy removes a binding.
func (s *Store) DetachPolicy(ctx context.Context, walletID, policyID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM wallet_policies WHERE wallet_id = ? AND policy_id = ?`, walletID, policyID)
	if err != nil {
		return fmt.Errorf("failed to detach policy: %w", err)
	}
	return requireOneRow(result)
}

// WalletPolicies returns a wallet's policies in attachment order. The
// order is load-bearing: the engine's first-match-wins semantics follow
// it.
func (s *Store) WalletPolicies(ctx context.Context, walletID string) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.rules
		FROM policies p
		JOIN wallet_policies wp ON wp.policy_id = p.id
		WHERE wp.wallet_id = ?
		ORDER BY wp.attached_at`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet policies: %w", err)
	}
	defer rows.Close()

	var policies []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var p policy.Policy
	var rules string
	if err := row.Scan(&p.ID, &p.Name, &rules); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &p.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return &p, nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPolicyNotFound
	}
	return nil
}
