package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/workerlly/internal/logger"
)

// Connect opens a pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	logger.FromContext(ctx).Info("connected to postgres")
	return pool, nil
}

// EnsureSchema creates every table and index the service needs. Safe to run on every
// start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"catalogue", ensureCatalogue},
		{"users", ensureUsers},
		{"jobs", ensureJobs},
		{"bids", ensureBids},
		{"active_job_locations", ensureActiveJobLocations},
		{"user_stats", ensureUserStats},
		{"wallet_transactions", ensureWalletTransactions},
		{"reviews", ensureReviews},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
		logger.FromContext(ctx).Debug("schema ensured", "part", s.name)
	}
	return nil
}

func execAll(ctx context.Context, pool *pgxpool.Pool, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func ensureCatalogue(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS cities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			parent_id TEXT REFERENCES categories(id),
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS rates (
			id TEXT PRIMARY KEY,
			city_id TEXT NOT NULL REFERENCES cities(id),
			category_id TEXT NOT NULL REFERENCES categories(id),
			min_hourly_rate NUMERIC(12,2) NOT NULL,
			max_hourly_rate NUMERIC(12,2) NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rates_city_category_uidx ON rates (city_id, category_id)`,
	)
}

func ensureUsers(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			mobile TEXT NOT NULL,
			roles TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_mobile_uidx ON users (mobile)`,
		`CREATE TABLE IF NOT EXISTS addresses (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			address_line1 TEXT NOT NULL,
			address_line2 TEXT NOT NULL DEFAULT '',
			apartment TEXT NOT NULL DEFAULT '',
			landmark TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			city_id TEXT NOT NULL REFERENCES cities(id),
			lat DOUBLE PRECISION NOT NULL,
			lon DOUBLE PRECISION NOT NULL
		)`,
	)
}

func ensureJobs(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			sub_category_ids TEXT[] NOT NULL DEFAULT '{}',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			address JSONB NOT NULL,
			hourly_rate NUMERIC(12,2) NOT NULL,
			current_rate NUMERIC(12,2) NOT NULL,
			rate_history JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			assigned_to TEXT,
			accepted_bid_id TEXT,
			estimated_minutes INTEGER NOT NULL DEFAULT 0,
			booked_at TIMESTAMPTZ,
			start_otp JSONB,
			done_otp JSONB,
			is_reached BOOLEAN NOT NULL DEFAULT FALSE,
			reached_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			done_at TIMESTAMPTZ,
			billable_hours INTEGER NOT NULL DEFAULT 0,
			total_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			payment JSONB,
			provider_review JSONB,
			seeker_review JSONB,
			cancel_reason TEXT NOT NULL DEFAULT '',
			cancelled_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			CONSTRAINT jobs_status_check CHECK (status IN
				('pending','ongoing','in_progress','completed','paid','cancelled','rejected'))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS jobs_task_id_uidx ON jobs (task_id)`,
		`CREATE INDEX IF NOT EXISTS jobs_assigned_status_idx ON jobs (assigned_to, status)`,
		`CREATE INDEX IF NOT EXISTS jobs_user_status_idx ON jobs (user_id, status)`,
	)
}

func ensureBids(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS bids (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			seeker_id TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS bids_job_idx ON bids (job_id)`,
		`CREATE INDEX IF NOT EXISTS bids_seeker_status_idx ON bids (seeker_id, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS bids_pending_uidx ON bids (job_id, seeker_id) WHERE status = 'pending'`,
	)
}

func ensureActiveJobLocations(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS active_job_locations (
			job_id TEXT PRIMARY KEY REFERENCES jobs(id),
			seeker_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			seeker_lat DOUBLE PRECISION,
			seeker_lon DOUBLE PRECISION,
			provider_lat DOUBLE PRECISION NOT NULL,
			provider_lon DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS active_job_locations_job_status_idx ON active_job_locations (job_id, status)`,
		`CREATE INDEX IF NOT EXISTS active_job_locations_seeker_status_idx ON active_job_locations (seeker_id, status)`,
	)
}

func ensureUserStats(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id TEXT PRIMARY KEY,
			wallet_balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (wallet_balance >= 0),
			total_jobs_posted INTEGER NOT NULL DEFAULT 0,
			total_jobs_done INTEGER NOT NULL DEFAULT 0,
			total_jobs_cancelled INTEGER NOT NULL DEFAULT 0,
			total_spent NUMERIC(14,2) NOT NULL DEFAULT 0,
			total_earned NUMERIC(14,2) NOT NULL DEFAULT 0,
			total_hours_worked INTEGER NOT NULL DEFAULT 0,
			rating_sum_as_seeker INTEGER NOT NULL DEFAULT 0,
			rating_count_as_seeker INTEGER NOT NULL DEFAULT 0,
			rating_sum_as_provider INTEGER NOT NULL DEFAULT 0,
			rating_count_as_provider INTEGER NOT NULL DEFAULT 0,
			current_status TEXT NOT NULL DEFAULT 'offline',
			current_job_id TEXT,
			seeker_city_id TEXT NOT NULL DEFAULT '',
			seeker_category_id TEXT NOT NULL DEFAULT '',
			last_lat DOUBLE PRECISION,
			last_lon DOUBLE PRECISION,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version BIGINT NOT NULL DEFAULT 1
		)`,
		`ALTER TABLE user_stats ADD COLUMN IF NOT EXISTS total_jobs_cancelled INTEGER NOT NULL DEFAULT 0`,
	)
}

func ensureWalletTransactions(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS wallet_transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			type TEXT NOT NULL CHECK (type IN ('credit','debit')),
			reason TEXT NOT NULL,
			job_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS wallet_transactions_user_idx ON wallet_transactions (user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS wallet_transactions_job_idx ON wallet_transactions (job_id)`,
	)
}

func ensureReviews(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS reviews (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			reviewer_id TEXT NOT NULL,
			reviewee_id TEXT NOT NULL,
			reviewer_role TEXT NOT NULL,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			review_text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS reviews_job_role_uidx ON reviews (job_id, reviewer_role)`,
		`CREATE INDEX IF NOT EXISTS reviews_reviewee_idx ON reviews (reviewee_id, created_at)`,
	)
}
