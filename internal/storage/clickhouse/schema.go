package clickhouse

import "context"

// DDL for the archive tables.
const (
	detectedTradesDDL = `
		CREATE TABLE IF NOT EXISTS detected_trades (
			signature        String,
			slot             UInt64,
			direction        LowCardinality(String),
			token_mint       String,
			usdc_amount      Float64,
			token_amount_raw UInt64,
			token_decimals   UInt16,
			user             String,
			aggregator       LowCardinality(String),
			detected_at      DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (detected_at, signature)
	`

	copyResultsDDL = `
		CREATE TABLE IF NOT EXISTS copy_results (
			original_signature String,
			token_mint         String,
			direction          LowCardinality(String),
			outcome            LowCardinality(String),
			reason             String,
			copy_signature     String,
			copy_latency_ms    Int64,
			e2e_latency_ms     Int64,
			at                 DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (at, original_signature)
	`
)

// EnsureSchema creates the archive tables when missing.
func EnsureSchema(ctx context.Context, conn *Conn) error {
	if err := conn.Exec(ctx, detectedTradesDDL); err != nil {
		return err
	}
	return conn.Exec(ctx, copyResultsDDL)
}
