package ingest

import (
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func init() {
	registerCategories()
	registerProducts()
	registerUsers()
	registerOrders()
	registerOrderItems()
	registerConversations()
	registerMessages()
}

var zeroAmount = pgtype.Numeric{Int: big.NewInt(0), Valid: true}

func registerCategories() {
	Register(EntitySpec{
		Entity: EntityCategory,
		Columns: []ColumnSpec{
			{Name: "name", Required: true},
			{Name: "description"},
		},
		Normalize: func(row RawRow, now time.Time) (Record, error) {
			c := newCells(row)
			rec := &Category{
				Line:        Line(row.Line),
				Name:        c.required("name"),
				Description: c.text("description"),
				CreatedAt:   timestamptz(now),
			}
			if err := c.result(); err != nil {
				return nil, err
			}
			return rec, nil
		},
	})
}

func registerProducts() {
	Register(EntitySpec{
		Entity: EntityProduct,
		Columns: []ColumnSpec{
			{Name: "name", Required: true},
			{Name: "price", Required: true},
			{Name: "category"},
			{Name: "description"},
			{Name: "stock_quantity"},
			{Name: "total_sold"},
			{Name: "sku"},
			{Name: "is_active"},
		},
		Normalize: func(row RawRow, now time.Time) (Record, error) {
			c := newCells(row)
			rec := &Product{
				Line:          Line(row.Line),
				Name:          c.required("name"),
				Price:         c.price("price", true, pgtype.Numeric{}),
				CategoryName:  c.optional("category"),
				Description:   c.text("description"),
				StockQuantity: c.count("stock_quantity", 0),
				TotalSold:     c.count("total_sold", 0),
				SKU:           c.text("sku"),
				IsActive:      c.boolean("is_active", true),
				CreatedAt:     timestamptz(now),
			}
			if err := c.result(); err != nil {
				return nil, err
			}
			return rec, nil
		},
	})
}

func registerUsers() {
	Register(EntitySpec{
		Entity: EntityUser,
		Columns: []ColumnSpec{
			{Name: "email", Required: true},
			{Name: "name"},
			{Name: "phone"},
			{Name: "is_active"},
		},
		Normalize: func(row RawRow, now time.Time) (Record, error) {
			c := newCells(row)
			rec := &User{
				Line:      Line(row.Line),
				Email:     c.email("email"),
				Name:      c.text("name"),
				Phone:     c.text("phone"),
				IsActive:  c.boolean("is_active", true),
				CreatedAt: timestamptz(now),
			}
			if err := c.result(); err != nil {
				return nil, err
			}
			return rec, nil
		},
	})
}

func registerOrders() {
	Register(EntitySpec{
		Entity: EntityOrder,
		Columns: []ColumnSpec{
			{Name: "order_number", Required: true},
			{Name: "customer_name"},
			{Name: "customer_email"},
			{Name: "customer_phone"},
			{Name: "status"},
			{Name: "total_amount"},
			{Name: "shipping_address"},
			{Name: "tracking_number"},
		},
		Normalize: func(row RawRow, now time.Time) (Record, error) {
			c := newCells(row)
			rec := &Order{
				Line:            Line(row.Line),
				OrderNumber:     c.required("order_number"),
				CustomerName:    c.text("customer_name"),
				CustomerEmail:   c.email("customer_email"),
				CustomerPhone:   c.text("customer_phone"),
				Status:          c.enum("status", OrderStatuses, "pending"),
				TotalAmount:     c.price("total_amount", false, zeroAmount),
				ShippingAddress: c.text("shipping_address"),
				TrackingNumber:  c.text("tracking_number"),
				CreatedAt:       timestamptz(now),
			}
			if err := c.result(); err != nil {
				return nil, err
			}
			return rec, nil
		},
	})
}

func registerOrderItems() {
	Register(EntitySpec{
		Entity: EntityOrderItem,
		Columns: []ColumnSpec{
			{Name: "order_number", Required: true},
			{Name: "product_sku", Required: true},
			{Name: "quantity", Required: true},
			{Name: "unit_price", Required: true},
		},
		Normalize: func(row RawRow, now time.Time) (Record, error) {
			c := newCells(row)
			rec := &OrderItem{
				Line:        Line(row.Line),
				OrderNumber: c.required("order_number"),
				ProductSKU:  c.required("product_sku"),
				Quantity:    c.quantity("quantity"),
				UnitPrice:   c.price("unit_price", true, pgtype.Numeric{}),
			}
			if err := c.result(); err != nil {
				return nil, err
			}
			return rec, nil
		},
	})
}

func registerConversations() {
	Register(EntitySpec{
		Entity: EntityConversation,
		Columns: []ColumnSpec{
			{Name: "session_id", Required: true},
			{Name: "user_email"},
			{Name: "user_identifier"},
			{Name: "channel"},
			{Name: "started_at"},
			{Name: "ended_at"},
			{Name: "is_active"},
			{Name: "metadata"},
		},
		Normalize: func(row RawRow, now time.Time) (Record, error) {
			c := newCells(row)
			rec := &Conversation{
				Line:           Line(row.Line),
				SessionID:      c.required("session_id"),
				UserEmail:      c.optional("user_email"),
				UserIdentifier: c.text("user_identifier"),
				Channel:        c.enum("channel", Channels, "web"),
				StartedAt:      c.timestamp("started_at"),
				EndedAt:        c.timestamp("ended_at"),
				IsActive:       c.boolean("is_active", true),
				Metadata:       c.json("metadata"),
			}
			// ended_at is only ordered against a supplied started_at.
			if !rec.StartedAt.Valid {
				rec.StartedAt = timestamptz(now)
			} else if rec.EndedAt.Valid && rec.EndedAt.Time.Before(rec.StartedAt.Time) {
				c.reject("ended_at", row.Get("ended_at"), ReasonInvalid)
			}
			if !rec.UserIdentifier.Valid && rec.UserEmail != "" {
				rec.UserIdentifier = pgtype.Text{String: rec.UserEmail, Valid: true}
			}
			if err := c.result(); err != nil {
				return nil, err
			}
			return rec, nil
		},
	})
}

func registerMessages() {
	Register(EntitySpec{
		Entity: EntityMessage,
		Columns: []ColumnSpec{
			{Name: "session_id", Required: true},
			{Name: "sender", Required: true},
			{Name: "message", Required: true},
			{Name: "message_type"},
			{Name: "timestamp"},
			{Name: "intent"},
			{Name: "entities"},
			{Name: "confidence_score"},
			{Name: "context"},
			{Name: "bot_response_time_ms"},
			{Name: "order_number"},
			{Name: "product_sku"},
		},
		Normalize: func(row RawRow, now time.Time) (Record, error) {
			c := newCells(row)
			rec := &Message{
				Line:            Line(row.Line),
				SessionID:       c.required("session_id"),
				Sender:          c.enum("sender", Senders, ""),
				Text:            c.required("message"),
				MessageType:     c.enum("message_type", MessageTypes, "text"),
				Timestamp:       c.timestamp("timestamp"),
				Intent:          c.text("intent"),
				Entities:        c.json("entities"),
				ConfidenceScore: c.confidence("confidence_score"),
				Context:         c.json("context"),
				ResponseTimeMs:  c.optionalCount("bot_response_time_ms"),
				OrderNumber:     c.optional("order_number"),
				ProductSKU:      c.optional("product_sku"),
			}
			if !rec.Timestamp.Valid {
				rec.Timestamp = timestamptz(now)
			}
			if err := c.result(); err != nil {
				return nil, err
			}
			return rec, nil
		},
	})
}
