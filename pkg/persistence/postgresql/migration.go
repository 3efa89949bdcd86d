package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create connections table
			CREATE TABLE connections (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				platform VARCHAR(50) NOT NULL CHECK (platform IN ('n8n', 'make', 'zapier')),
				base_url TEXT NOT NULL DEFAULT '',
				credential TEXT NOT NULL DEFAULT '',
				team_id VARCHAR(255) NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deactivated_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_connections_tenant_id ON connections(tenant_id);
			CREATE INDEX idx_connections_platform ON connections(platform);
			CREATE INDEX idx_connections_created_at ON connections(created_at);

			-- At most one dispatchable connection per tenant and platform
			CREATE UNIQUE INDEX idx_connections_single_active ON connections(tenant_id, platform) WHERE is_active;
		`,
		2: `
			-- Migration 2: credit accounts and append-only transaction ledger

			CREATE TABLE credit_accounts (
				tenant_id VARCHAR(255) PRIMARY KEY,
				regular_balance BIGINT NOT NULL DEFAULT 0 CHECK (regular_balance >= 0),
				bonus_balance BIGINT NOT NULL DEFAULT 0 CHECK (bonus_balance >= 0),
				tier VARCHAR(50) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_credit_accounts_tier ON credit_accounts(tier);
			CREATE INDEX idx_credit_accounts_created_at ON credit_accounts(created_at);

			CREATE TABLE credit_transactions (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL REFERENCES credit_accounts(tenant_id),
				amount BIGINT NOT NULL CHECK (amount <> 0),
				kind VARCHAR(20) NOT NULL CHECK (kind IN ('regular', 'bonus')),
				reason TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_credit_transactions_tenant_id ON credit_transactions(tenant_id);
			CREATE INDEX idx_credit_transactions_created_at ON credit_transactions(created_at);
			CREATE INDEX idx_credit_transactions_kind ON credit_transactions(kind);
		`,
	}
}
