package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for the SQLite development mode and
// for repository tests. Enum columns become text.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id text PRIMARY KEY,
		email text NOT NULL UNIQUE,
		first_name text NOT NULL DEFAULT '',
		last_name text NOT NULL DEFAULT '',
		role text NOT NULL DEFAULT 'user',
		is_active boolean NOT NULL DEFAULT true,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id text PRIMARY KEY,
		sku text NOT NULL UNIQUE,
		name text NOT NULL,
		description text,
		brand text,
		category text,
		price numeric NOT NULL,
		is_active boolean NOT NULL DEFAULT true,
		status text NOT NULL DEFAULT 'disponible',
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id text PRIMARY KEY,
		user_id text NOT NULL,
		status text NOT NULL DEFAULT 'active',
		submitted_at datetime,
		decided_at datetime,
		decided_by text,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_user_active ON carts (user_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id text PRIMARY KEY,
		cart_id text NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id text NOT NULL,
		quantity integer NOT NULL CHECK (quantity >= 1),
		price numeric NOT NULL,
		created_at datetime,
		updated_at datetime,
		UNIQUE (cart_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id text PRIMARY KEY,
		user_id text NOT NULL,
		type text NOT NULL,
		message text NOT NULL,
		link text,
		read boolean NOT NULL DEFAULT false,
		read_at datetime,
		created_at datetime
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id text PRIMARY KEY,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload text NOT NULL,
		created_at datetime,
		published_at datetime,
		attempt_count integer NOT NULL DEFAULT 0,
		last_error text
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id text PRIMARY KEY,
		event_id text NOT NULL,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload_json text NOT NULL,
		error_reason text NOT NULL,
		error_message text,
		attempt_count integer NOT NULL DEFAULT 0,
		failed_at datetime,
		created_at datetime
	)`,
}

// ApplySQLiteSchema creates the tables used by the service on a SQLite handle.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
