// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	secret_lookup BYTEA NOT NULL UNIQUE,
	secret_hash   TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS identities (
	identity   TEXT PRIMARY KEY,
	account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS permissions (
	granter      TEXT NOT NULL REFERENCES identities(identity) ON DELETE CASCADE,
	grantee      TEXT NOT NULL REFERENCES identities(identity) ON DELETE CASCADE,
	channels     BIGINT NOT NULL DEFAULT 0,
	wardrobe     SMALLINT NOT NULL DEFAULT 0,
	moodles      SMALLINT NOT NULL DEFAULT 0,
	primary_caps SMALLINT NOT NULL DEFAULT 0,
	priority     SMALLINT NOT NULL DEFAULT 0,
	expires_at   TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (granter, grantee)
);

CREATE INDEX IF NOT EXISTS idx_permissions_grantee ON permissions (grantee);
CREATE INDEX IF NOT EXISTS idx_permissions_expires ON permissions (expires_at)
	WHERE expires_at IS NOT NULL;
`

// PostgresStore implements PermissionStore on a pgx connection pool.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresStore connects to the database, applies the schema, and
// verifies connectivity.
func NewPostgresStore(ctx context.Context, url string, maxConns int32, queryTimeout time.Duration) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logging.Info().Int32("max_conns", maxConns).Msg("permission store connected")
	return &PostgresStore{pool: pool, queryTimeout: queryTimeout}, nil
}

func (p *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.queryTimeout)
}

// wrapErr folds infrastructure failures into ErrUnavailable so callers
// can map them to an unknown-outcome result without inspecting driver
// error types.
func wrapErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func (p *PostgresStore) AuthenticateUser(ctx context.Context, secret string) ([]domain.Identity, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var accountID int64
	var hash string
	err := p.pool.QueryRow(ctx,
		`SELECT id, secret_hash FROM accounts WHERE secret_lookup = $1`,
		lookupKey(secret),
	).Scan(&accountID, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RecordStoreQuery("authenticate", time.Since(start), nil)
		return nil, nil
	}
	if err != nil {
		metrics.RecordStoreQuery("authenticate", time.Since(start), err)
		return nil, wrapErr("authenticate", err)
	}

	ok, err := verifySecret(secret, hash)
	if err != nil || !ok {
		metrics.RecordStoreQuery("authenticate", time.Since(start), err)
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT identity FROM identities WHERE account_id = $1 ORDER BY identity`,
		accountID,
	)
	if err != nil {
		metrics.RecordStoreQuery("authenticate", time.Since(start), err)
		return nil, wrapErr("authenticate", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[domain.Identity])
	metrics.RecordStoreQuery("authenticate", time.Since(start), err)
	if err != nil {
		return nil, wrapErr("authenticate", err)
	}
	return ids, nil
}

func (p *PostgresStore) LoginUser(ctx context.Context, secret string, id domain.Identity) (bool, error) {
	ids, err := p.AuthenticateUser(ctx, secret)
	if err != nil {
		return false, err
	}
	for _, candidate := range ids {
		if candidate == id {
			return true, nil
		}
	}
	return false, nil
}

func (p *PostgresStore) CreatePermissions(ctx context.Context, granter, grantee domain.Identity, g domain.Grant) (StoreResult, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		metrics.RecordStoreQuery("create_permissions", time.Since(start), err)
		return ResultNoOp, wrapErr("create permissions", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE identity = $1)`, grantee,
	).Scan(&exists); err != nil {
		metrics.RecordStoreQuery("create_permissions", time.Since(start), err)
		return ResultNoOp, wrapErr("create permissions", err)
	}
	if !exists {
		metrics.RecordStoreQuery("create_permissions", time.Since(start), nil)
		return ResultNoSuchUser, nil
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO permissions (granter, grantee, channels, wardrobe, moodles, primary_caps, priority, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (granter, grantee) DO NOTHING`,
		granter, grantee, int64(g.Channels), int16(g.Wardrobe), int16(g.Moodles),
		int16(g.Primary), int16(g.Priority), g.Expires,
	)
	if err != nil {
		metrics.RecordStoreQuery("create_permissions", time.Since(start), err)
		return ResultNoOp, wrapErr("create permissions", err)
	}
	if tag.RowsAffected() == 0 {
		metrics.RecordStoreQuery("create_permissions", time.Since(start), nil)
		return ResultAlreadyExists, nil
	}

	var reverse bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM permissions WHERE granter = $1 AND grantee = $2)`,
		grantee, granter,
	).Scan(&reverse); err != nil {
		metrics.RecordStoreQuery("create_permissions", time.Since(start), err)
		return ResultNoOp, wrapErr("create permissions", err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordStoreQuery("create_permissions", time.Since(start), err)
		return ResultNoOp, wrapErr("create permissions", err)
	}

	metrics.RecordStoreQuery("create_permissions", time.Since(start), nil)
	if reverse {
		return ResultPaired, nil
	}
	return ResultCreated, nil
}

func (p *PostgresStore) UpdatePermissions(ctx context.Context, granter, grantee domain.Identity, g domain.Grant) (StoreResult, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tag, err := p.pool.Exec(ctx,
		`UPDATE permissions
		 SET channels = $3, wardrobe = $4, moodles = $5, primary_caps = $6,
		     priority = $7, expires_at = $8, updated_at = now()
		 WHERE granter = $1 AND grantee = $2`,
		granter, grantee, int64(g.Channels), int16(g.Wardrobe), int16(g.Moodles),
		int16(g.Primary), int16(g.Priority), g.Expires,
	)
	metrics.RecordStoreQuery("update_permissions", time.Since(start), err)
	if err != nil {
		return ResultNoOp, wrapErr("update permissions", err)
	}
	if tag.RowsAffected() == 0 {
		return ResultNoOp, nil
	}
	return ResultDone, nil
}

func (p *PostgresStore) DeletePermissions(ctx context.Context, granter, grantee domain.Identity) (StoreResult, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tag, err := p.pool.Exec(ctx,
		`DELETE FROM permissions WHERE granter = $1 AND grantee = $2`,
		granter, grantee,
	)
	metrics.RecordStoreQuery("delete_permissions", time.Since(start), err)
	if err != nil {
		return ResultNoOp, wrapErr("delete permissions", err)
	}
	if tag.RowsAffected() == 0 {
		return ResultNoOp, nil
	}
	return ResultDone, nil
}

func (p *PostgresStore) GetGrant(ctx context.Context, granter, grantee domain.Identity) (*domain.Grant, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	g, err := scanGrant(p.pool.QueryRow(ctx,
		`SELECT channels, wardrobe, moodles, primary_caps, priority, expires_at
		 FROM permissions WHERE granter = $1 AND grantee = $2`,
		granter, grantee,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RecordStoreQuery("get_grant", time.Since(start), nil)
		return nil, nil
	}
	metrics.RecordStoreQuery("get_grant", time.Since(start), err)
	if err != nil {
		return nil, wrapErr("get grant", err)
	}
	return g, nil
}

func (p *PostgresStore) GetPermissions(ctx context.Context, a, b domain.Identity) (PairGrants, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT granter, channels, wardrobe, moodles, primary_caps, priority, expires_at
		 FROM permissions
		 WHERE (granter = $1 AND grantee = $2) OR (granter = $2 AND grantee = $1)`,
		a, b,
	)
	if err != nil {
		metrics.RecordStoreQuery("get_permissions", time.Since(start), err)
		return PairGrants{}, wrapErr("get permissions", err)
	}
	defer rows.Close()

	var pg PairGrants
	for rows.Next() {
		var granter domain.Identity
		var g domain.Grant
		var channels int64
		var wardrobe, moodles, primary, priority int16
		if err := rows.Scan(&granter, &channels, &wardrobe, &moodles, &primary, &priority, &g.Expires); err != nil {
			metrics.RecordStoreQuery("get_permissions", time.Since(start), err)
			return PairGrants{}, wrapErr("get permissions", err)
		}
		g.Channels = domain.ChannelSet(channels)
		g.Wardrobe = domain.WardrobeSet(wardrobe)
		g.Moodles = domain.MoodleSet(moodles)
		g.Primary = domain.PrimarySet(primary)
		g.Priority = domain.Priority(priority)
		out := g
		if granter == a {
			pg.AToB = &out
		} else {
			pg.BToA = &out
		}
	}
	metrics.RecordStoreQuery("get_permissions", time.Since(start), rows.Err())
	if err := rows.Err(); err != nil {
		return PairGrants{}, wrapErr("get permissions", err)
	}
	return pg, nil
}

func (p *PostgresStore) GetAllPermissions(ctx context.Context, id domain.Identity) ([]PeerPermissions, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT granter, grantee, channels, wardrobe, moodles, primary_caps, priority, expires_at
		 FROM permissions WHERE granter = $1 OR grantee = $1`,
		id,
	)
	if err != nil {
		metrics.RecordStoreQuery("get_all_permissions", time.Since(start), err)
		return nil, wrapErr("get all permissions", err)
	}
	defer rows.Close()

	peers := make(map[domain.Identity]*PeerPermissions)
	for rows.Next() {
		var granter, grantee domain.Identity
		var g domain.Grant
		var channels int64
		var wardrobe, moodles, primary, priority int16
		if err := rows.Scan(&granter, &grantee, &channels, &wardrobe, &moodles, &primary, &priority, &g.Expires); err != nil {
			metrics.RecordStoreQuery("get_all_permissions", time.Since(start), err)
			return nil, wrapErr("get all permissions", err)
		}
		g.Channels = domain.ChannelSet(channels)
		g.Wardrobe = domain.WardrobeSet(wardrobe)
		g.Moodles = domain.MoodleSet(moodles)
		g.Primary = domain.PrimarySet(primary)
		g.Priority = domain.Priority(priority)

		peer := grantee
		if grantee == id {
			peer = granter
		}
		row := peers[peer]
		if row == nil {
			row = &PeerPermissions{Peer: peer}
			peers[peer] = row
		}
		out := g
		if granter == id {
			row.Granted = &out
		} else {
			row.Received = &out
		}
	}
	metrics.RecordStoreQuery("get_all_permissions", time.Since(start), rows.Err())
	if err := rows.Err(); err != nil {
		return nil, wrapErr("get all permissions", err)
	}

	result := make([]PeerPermissions, 0, len(peers))
	for _, row := range peers {
		result = append(result, *row)
	}
	return result, nil
}

func (p *PostgresStore) UserExists(ctx context.Context, id domain.Identity) (bool, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE identity = $1)`, id,
	).Scan(&exists)
	metrics.RecordStoreQuery("user_exists", time.Since(start), err)
	if err != nil {
		return false, wrapErr("user exists", err)
	}
	return exists, nil
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) ([]Edge, error) {
	start := time.Now()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`DELETE FROM permissions WHERE expires_at IS NOT NULL AND expires_at <= $1
		 RETURNING granter, grantee`,
		now,
	)
	if err != nil {
		metrics.RecordStoreQuery("delete_expired", time.Since(start), err)
		return nil, wrapErr("delete expired", err)
	}
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Edge, error) {
		var e Edge
		err := row.Scan(&e.Granter, &e.Grantee)
		return e, err
	})
	metrics.RecordStoreQuery("delete_expired", time.Since(start), err)
	if err != nil {
		return nil, wrapErr("delete expired", err)
	}
	return edges, nil
}

func (p *PostgresStore) CreateAccount(ctx context.Context, secret string, ids []domain.Identity) error {
	hash, err := hashSecret(secret)
	if err != nil {
		return err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapErr("create account", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var accountID int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO accounts (secret_lookup, secret_hash) VALUES ($1, $2) RETURNING id`,
		lookupKey(secret), hash,
	).Scan(&accountID); err != nil {
		return wrapErr("create account", err)
	}
	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			`INSERT INTO identities (identity, account_id) VALUES ($1, $2)`,
			id, accountID,
		); err != nil {
			return wrapErr("create account", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("create account", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// scanGrant reads one grant row from a single-row query.
func scanGrant(row pgx.Row) (*domain.Grant, error) {
	var g domain.Grant
	var channels int64
	var wardrobe, moodles, primary, priority int16
	if err := row.Scan(&channels, &wardrobe, &moodles, &primary, &priority, &g.Expires); err != nil {
		return nil, err
	}
	g.Channels = domain.ChannelSet(channels)
	g.Wardrobe = domain.WardrobeSet(wardrobe)
	g.Moodles = domain.MoodleSet(moodles)
	g.Primary = domain.PrimarySet(primary)
	g.Priority = domain.Priority(priority)
	return &g, nil
}
