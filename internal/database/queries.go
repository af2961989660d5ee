/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

// Queries use ? placeholders; the dialect rebinds them for Postgres.
const (
	// Balance queries
	queryGetBalance = `
		SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT)
		FROM ledger_entries
		WHERE recipient_id = ? AND currency = ?`

	queryGetBalanceAsOf = `
		SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT)
		FROM ledger_entries
		WHERE recipient_id = ? AND currency = ? AND created_at <= ?`

	queryGetContentRatingTotals = `
		SELECT CAST(COALESCE(SUM(CASE WHEN e.amount > 0 THEN e.amount ELSE 0 END), 0) AS BIGINT),
		       CAST(COALESCE(SUM(CASE WHEN e.amount < 0 THEN e.amount ELSE 0 END), 0) AS BIGINT)
		FROM ledger_entries e
		JOIN ledger_events ev ON ev.id = e.origin_event_id
		WHERE e.recipient_id = ? AND e.currency = ? AND ev.event_type = ?`

	// Rate window queries
	queryCountRatings = `
		SELECT COUNT(*)
		FROM ledger_events
		WHERE event_type = ? AND voter_id = ? AND content_id = ? AND created_at >= ?`

	// Version queries (write-write conflict detection)
	queryGetRecipientVersion = `
		SELECT version FROM recipient_versions WHERE recipient_id = ?`

	queryInsertRecipientVersion = `
		INSERT INTO recipient_versions (recipient_id, version) VALUES (?, 1)`

	queryBumpRecipientVersion = `
		UPDATE recipient_versions
		SET version = version + 1
		WHERE recipient_id = ? AND version = ?`

	// Ledger queries
	queryInsertEvent = `
		INSERT INTO ledger_events (id, event_type, voter_id, content_id, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryInsertEntry = `
		INSERT INTO ledger_entries (id, origin_event_id, recipient_id, recipient_type, currency, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetEvent = `
		SELECT id, event_type, voter_id, content_id, created_at
		FROM ledger_events
		WHERE id = ?`

	queryGetEventEntries = `
		SELECT id, origin_event_id, recipient_id, recipient_type, currency, amount, created_at
		FROM ledger_entries
		WHERE origin_event_id = ?
		ORDER BY id`

	queryGetEntryHistory = `
		SELECT id, origin_event_id, recipient_id, recipient_type, currency, amount, created_at
		FROM ledger_entries
		WHERE recipient_id = ? AND currency = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		voter_id TEXT NOT NULL DEFAULT '',
		content_id TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,

	// Rate window lookups
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_rating
		ON ledger_events(event_type, voter_id, content_id, created_at)`,

	// A content receives its base credit once
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_events_publish
		ON ledger_events(content_id) WHERE event_type = 'publish_content'`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id BIGINT PRIMARY KEY,
		origin_event_id TEXT NOT NULL REFERENCES ledger_events(id),
		recipient_id TEXT NOT NULL,
		recipient_type TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_recipient
		ON ledger_entries(recipient_id, currency, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_origin
		ON ledger_entries(origin_event_id)`,

	// One row per recipient, bumped by every append that touches it
	`CREATE TABLE IF NOT EXISTS recipient_versions (
		recipient_id TEXT PRIMARY KEY,
		version BIGINT NOT NULL
	)`,
}
