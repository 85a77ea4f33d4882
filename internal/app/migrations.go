package app

import "bitbee.app/rewards-core/internal/db/postgres"

// SQL-миграции встроены в код для упрощения деплоя.
// Суммы хранятся в NUMERIC без масштаба: точность задаёт актив.
var migrations = []postgres.Migration{
	{Version: 1, Name: "accounts", SQL: migration001Accounts},
	{Version: 2, Name: "ledger", SQL: migration002Ledger},
	{Version: 3, Name: "tasks", SQL: migration003Tasks},
}

var migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id TEXT PRIMARY KEY,
    referral_code TEXT,
    referred_by TEXT REFERENCES accounts(referral_code),
    referral_count INTEGER NOT NULL DEFAULT 0,
    streak_day_index INTEGER NOT NULL DEFAULT 0 CHECK (streak_day_index BETWEEN 0 AND 6),
    streak_days BOOLEAN[] NOT NULL DEFAULT '{f,f,f,f,f,f,f}',
    streak_last_claimed_at TIMESTAMPTZ,
    wallet_exchange_uid TEXT,
    wallet_bound_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT accounts_referral_code_key UNIQUE (referral_code),
    CONSTRAINT accounts_no_self_referral CHECK (referred_by IS NULL OR referred_by IS DISTINCT FROM referral_code)
);
`

var migration002Ledger = `
CREATE TABLE IF NOT EXISTS balances (
    account_id TEXT NOT NULL REFERENCES accounts(account_id),
    asset TEXT NOT NULL,
    balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (account_id, asset)
);
CREATE TABLE IF NOT EXISTS reward_events (
    seq BIGSERIAL,
    event_id UUID PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(account_id),
    kind TEXT NOT NULL,
    asset TEXT NOT NULL,
    amount NUMERIC NOT NULL CHECK (amount <> 0),
    source_task_id TEXT,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reward_events_account ON reward_events(account_id, created_at DESC, seq DESC);
`

var migration003Tasks = `
CREATE TABLE IF NOT EXISTS task_statuses (
    account_id TEXT NOT NULL REFERENCES accounts(account_id),
    task_id TEXT NOT NULL,
    state TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '',
    platform TEXT NOT NULL DEFAULT '',
    submitted_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (account_id, task_id)
);
CREATE INDEX IF NOT EXISTS idx_task_statuses_pending ON task_statuses(submitted_at)
    WHERE state = 'PendingReview';
CREATE TABLE IF NOT EXISTS task_quotas (
    task_id TEXT PRIMARY KEY,
    used INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS task_participants (
    task_id TEXT NOT NULL REFERENCES task_quotas(task_id),
    account_id TEXT NOT NULL REFERENCES accounts(account_id),
    joined_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (task_id, account_id)
);
`
