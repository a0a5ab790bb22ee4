package relational

import (
	"context"
	"fmt"
)

// schema creates the support store. Statements are idempotent so Provision
// can run against an existing database. Dialect tokens are expanded by
// Dialect.ddl.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id {{pk}},
		name VARCHAR(100) UNIQUE NOT NULL,
		description TEXT,
		created_at {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id {{pk}},
		name VARCHAR(200) NOT NULL,
		category_id BIGINT REFERENCES categories(id),
		description TEXT,
		price DECIMAL(10,2) NOT NULL CHECK (price >= 0),
		stock_quantity INT DEFAULT 0 CHECK (stock_quantity >= 0),
		total_sold INT DEFAULT 0 CHECK (total_sold >= 0),
		sku VARCHAR(100) UNIQUE,
		is_active BOOLEAN DEFAULT TRUE,
		created_at {{ts}} DEFAULT CURRENT_TIMESTAMP,
		updated_at {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		email VARCHAR(100) UNIQUE,
		name VARCHAR(100),
		phone VARCHAR(20),
		is_active BOOLEAN DEFAULT TRUE,
		created_at {{ts}} DEFAULT CURRENT_TIMESTAMP,
		updated_at {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id {{pk}},
		order_number VARCHAR(100) UNIQUE NOT NULL,
		customer_name VARCHAR(100),
		customer_email VARCHAR(100),
		customer_phone VARCHAR(20),
		status VARCHAR(50) DEFAULT 'pending' CHECK (
			status IN ('pending', 'confirmed', 'processing', 'shipped', 'delivered', 'cancelled', 'returned')
		),
		total_amount DECIMAL(10,2) DEFAULT 0,
		shipping_address TEXT,
		tracking_number VARCHAR(100),
		created_at {{ts}} DEFAULT CURRENT_TIMESTAMP,
		updated_at {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id {{pk}},
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id),
		quantity INT NOT NULL CHECK (quantity > 0),
		unit_price DECIMAL(10,2) NOT NULL CHECK (unit_price >= 0),
		total_price DECIMAL(10,2) GENERATED ALWAYS AS (quantity * unit_price) STORED
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id {{pk}},
		user_id BIGINT REFERENCES users(id),
		session_id VARCHAR(100) NOT NULL,
		user_identifier VARCHAR(100),
		channel VARCHAR(50) DEFAULT 'web' CHECK (
			channel IN ('web', 'mobile', 'whatsapp', 'telegram', 'email')
		),
		started_at {{ts}} DEFAULT CURRENT_TIMESTAMP,
		ended_at {{ts}},
		is_active BOOLEAN DEFAULT TRUE,
		metadata {{json}}
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id {{pk}},
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender VARCHAR(10) NOT NULL CHECK (sender IN ('user', 'bot')),
		message TEXT NOT NULL,
		message_type VARCHAR(20) DEFAULT 'text' CHECK (
			message_type IN ('text', 'image', 'file', 'quick_reply', 'button_click')
		),
		timestamp {{ts}} DEFAULT CURRENT_TIMESTAMP,
		sequence_number INT NOT NULL,
		intent VARCHAR(100),
		entities {{json}},
		confidence_score DECIMAL(3,2) CHECK (confidence_score BETWEEN 0 AND 1),
		context {{json}},
		bot_response_time_ms INT,
		related_order_id BIGINT REFERENCES orders(id),
		related_product_id BIGINT REFERENCES products(id),
		UNIQUE (conversation_id, sequence_number)
	)`,
	`CREATE TABLE IF NOT EXISTS faq_analytics (
		id {{pk}},
		intent VARCHAR(100),
		question_pattern TEXT,
		frequency_count INT DEFAULT 1,
		last_asked_at {{ts}} DEFAULT CURRENT_TIMESTAMP,
		created_at {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_feedback (
		id {{pk}},
		conversation_id BIGINT REFERENCES conversations(id),
		rating INT CHECK (rating BETWEEN 1 AND 5),
		feedback_text TEXT,
		created_at {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS ingestion_runs (
		id {{pk}},
		run_id VARCHAR(36) UNIQUE NOT NULL,
		status VARCHAR(20) NOT NULL,
		started_at {{ts}} NOT NULL,
		finished_at {{ts}} NOT NULL,
		processed INT NOT NULL DEFAULT 0,
		inserted INT NOT NULL DEFAULT 0,
		errors INT NOT NULL DEFAULT 0,
		skipped INT NOT NULL DEFAULT 0,
		error_message TEXT,
		details {{json}}
	)`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_session_id ON conversations(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_started_at ON conversations(started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user_identifier ON conversations(user_identifier)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_sender_timestamp ON messages(sender, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_intent ON messages(intent)`,
	`CREATE INDEX IF NOT EXISTS idx_products_total_sold ON products(total_sold DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category_id ON products(category_id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,

	`{{view}} top_selling_products AS
	SELECT p.id, p.name, c.name AS category, p.total_sold, p.price, p.stock_quantity
	FROM products p
	LEFT JOIN categories c ON p.category_id = c.id
	WHERE p.is_active = TRUE`,
	`{{view}} conversation_summary AS
	SELECT c.id, c.user_identifier, c.started_at, c.ended_at,
		COUNT(m.id) AS message_count, MAX(m.timestamp) AS last_message_at, c.channel
	FROM conversations c
	LEFT JOIN messages m ON c.id = m.conversation_id
	GROUP BY c.id, c.user_identifier, c.started_at, c.ended_at, c.channel`,
}

// Provision creates tables, indexes and views inside one transaction.
func (s *Store) Provision(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return batchFatal(ctx, "begin transaction", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, s.dialect.ddl(stmt)); err != nil {
			return fmt.Errorf("provision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return batchFatal(ctx, "commit", err)
	}
	return nil
}
