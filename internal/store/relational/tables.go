package relational

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// tableDef maps one entity type onto its table.
type tableDef struct {
	name    string
	columns []string
	args    func(ingest.Record) []any
}

func (t tableDef) insertSQL(d Dialect) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		t.name, strings.Join(t.columns, ", "), marks)
	return d.rebind(q)
}

// jsonArg binds optional JSON as text so both dialects accept it.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var tables = map[ingest.EntityType]tableDef{
	ingest.EntityCategory: {
		name:    "categories",
		columns: []string{"name", "description", "created_at"},
		args: func(r ingest.Record) []any {
			c := r.(*ingest.Category)
			return []any{c.Name, c.Description, c.CreatedAt}
		},
	},
	ingest.EntityProduct: {
		name: "products",
		columns: []string{"name", "category_id", "description", "price", "stock_quantity",
			"total_sold", "sku", "is_active", "created_at"},
		args: func(r ingest.Record) []any {
			p := r.(*ingest.Product)
			return []any{p.Name, p.CategoryID, p.Description, p.Price, p.StockQuantity,
				p.TotalSold, p.SKU, p.IsActive, p.CreatedAt}
		},
	},
	ingest.EntityUser: {
		name:    "users",
		columns: []string{"email", "name", "phone", "is_active", "created_at"},
		args: func(r ingest.Record) []any {
			u := r.(*ingest.User)
			return []any{u.Email, u.Name, u.Phone, u.IsActive, u.CreatedAt}
		},
	},
	ingest.EntityOrder: {
		name: "orders",
		columns: []string{"order_number", "customer_name", "customer_email", "customer_phone",
			"status", "total_amount", "shipping_address", "tracking_number", "created_at"},
		args: func(r ingest.Record) []any {
			o := r.(*ingest.Order)
			return []any{o.OrderNumber, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
				o.Status, o.TotalAmount, o.ShippingAddress, o.TrackingNumber, o.CreatedAt}
		},
	},
	ingest.EntityOrderItem: {
		name:    "order_items",
		columns: []string{"order_id", "product_id", "quantity", "unit_price"},
		args: func(r ingest.Record) []any {
			i := r.(*ingest.OrderItem)
			return []any{i.OrderID, i.ProductID, i.Quantity, i.UnitPrice}
		},
	},
	ingest.EntityConversation: {
		name: "conversations",
		columns: []string{"session_id", "user_id", "user_identifier", "channel", "started_at",
			"ended_at", "is_active", "metadata"},
		args: func(r ingest.Record) []any {
			c := r.(*ingest.Conversation)
			return []any{c.SessionID, c.UserID, c.UserIdentifier, c.Channel, c.StartedAt,
				c.EndedAt, c.IsActive, jsonArg(c.Metadata)}
		},
	},
	ingest.EntityMessage: {
		name: "messages",
		columns: []string{"conversation_id", "sender", "message", "message_type", "timestamp",
			"sequence_number", "intent", "entities", "confidence_score", "context",
			"bot_response_time_ms", "related_order_id", "related_product_id"},
		args: func(r ingest.Record) []any {
			m := r.(*ingest.Message)
			return []any{m.ConversationID, m.Sender, m.Text, m.MessageType, m.Timestamp,
				m.SequenceNumber, m.Intent, jsonArg(m.Entities), m.ConfidenceScore, jsonArg(m.Context),
				m.ResponseTimeMs, m.RelatedOrderID, m.RelatedProductID}
		},
	},
}

// lookupSQL holds the natural key lookups per entity type and key field.
// Conversations are not unique per session; the latest one wins.
var lookupSQL = map[ingest.EntityType]map[string]string{
	ingest.EntityCategory: {
		ingest.KeyName: "SELECT id FROM categories WHERE name = ? ORDER BY id LIMIT 1",
	},
	ingest.EntityProduct: {
		ingest.KeySKU:  "SELECT id FROM products WHERE sku = ? ORDER BY id LIMIT 1",
		ingest.KeyName: "SELECT id FROM products WHERE name = ? ORDER BY id LIMIT 1",
	},
	ingest.EntityUser: {
		ingest.KeyEmail: "SELECT id FROM users WHERE email = ? ORDER BY id LIMIT 1",
	},
	ingest.EntityOrder: {
		ingest.KeyOrderNumber: "SELECT id FROM orders WHERE order_number = ? ORDER BY id LIMIT 1",
	},
	ingest.EntityConversation: {
		ingest.KeySessionID: "SELECT id FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT 1",
	},
}
