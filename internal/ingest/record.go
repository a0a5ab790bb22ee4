package ingest

import (
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"
)

// Record is a normalized row ready for persistence.
type Record interface {
	Entity() EntityType
	// SourceLine is the 1-indexed line of the CSV row that produced the record.
	SourceLine() int
}

// Keyed is implemented by records that carry a natural key.
// ok is false when the record has no key (e.g. a user without email).
type Keyed interface {
	NaturalKey() (key Key, ok bool)
}

// Line is embedded in every record to remember where it came from.
type Line int

func (l Line) SourceLine() int { return int(l) }

// Order statuses accepted by the orders source.
var OrderStatuses = []string{"pending", "confirmed", "processing", "shipped", "delivered", "cancelled", "returned"}

// Conversation channels.
var Channels = []string{"web", "mobile", "whatsapp", "telegram", "email"}

// Message senders.
var Senders = []string{"user", "bot"}

// Message types.
var MessageTypes = []string{"text", "image", "file", "quick_reply", "button_click"}

type Category struct {
	Line
	Name        string
	Description pgtype.Text
	CreatedAt   pgtype.Timestamptz
}

func (*Category) Entity() EntityType { return EntityCategory }

func (c *Category) NaturalKey() (Key, bool) {
	return Key{Field: KeyName, Value: c.Name}, true
}

type Product struct {
	Line
	Name          string
	CategoryName  string // source value, resolved into CategoryID
	CategoryID    pgtype.Int8
	Description   pgtype.Text
	Price         pgtype.Numeric
	StockQuantity int64
	TotalSold     int64
	SKU           pgtype.Text
	IsActive      bool
	CreatedAt     pgtype.Timestamptz
}

func (*Product) Entity() EntityType { return EntityProduct }

// NaturalKey is the SKU when present, otherwise the product name.
func (p *Product) NaturalKey() (Key, bool) {
	if p.SKU.Valid {
		return Key{Field: KeySKU, Value: p.SKU.String}, true
	}
	return Key{Field: KeyName, Value: p.Name}, true
}

type User struct {
	Line
	Email     pgtype.Text
	Name      pgtype.Text
	Phone     pgtype.Text
	IsActive  bool
	CreatedAt pgtype.Timestamptz
}

func (*User) Entity() EntityType { return EntityUser }

func (u *User) NaturalKey() (Key, bool) {
	if !u.Email.Valid {
		return Key{}, false
	}
	return Key{Field: KeyEmail, Value: u.Email.String}, true
}

type Order struct {
	Line
	OrderNumber     string
	CustomerName    pgtype.Text
	CustomerEmail   pgtype.Text
	CustomerPhone   pgtype.Text
	Status          string
	TotalAmount     pgtype.Numeric
	ShippingAddress pgtype.Text
	TrackingNumber  pgtype.Text
	CreatedAt       pgtype.Timestamptz
}

func (*Order) Entity() EntityType { return EntityOrder }

type OrderItem struct {
	Line
	OrderNumber string
	ProductSKU  string
	OrderID     int64
	ProductID   int64
	Quantity    int64
	UnitPrice   pgtype.Numeric
}

func (*OrderItem) Entity() EntityType { return EntityOrderItem }

// TotalPrice is always derived from quantity and unit price.
func (i *OrderItem) TotalPrice() float64 {
	f, err := i.UnitPrice.Float64Value()
	if err != nil || !f.Valid {
		return 0
	}
	return float64(i.Quantity) * f.Float64
}

type Conversation struct {
	Line
	SessionID      string
	UserEmail      string // source value, resolved into UserID
	UserID         pgtype.Int8
	UserIdentifier pgtype.Text
	Channel        string
	StartedAt      pgtype.Timestamptz
	EndedAt        pgtype.Timestamptz
	IsActive       bool
	Metadata       json.RawMessage
}

func (*Conversation) Entity() EntityType { return EntityConversation }

type Message struct {
	Line
	SessionID        string
	ConversationID   int64
	Sender           string
	Text             string
	MessageType      string
	Timestamp        pgtype.Timestamptz
	SequenceNumber   int64 // assigned by the coordinator, never read from input
	Intent           pgtype.Text
	Entities         json.RawMessage
	ConfidenceScore  pgtype.Numeric
	Context          json.RawMessage
	ResponseTimeMs   pgtype.Int8
	OrderNumber      string
	ProductSKU       string
	RelatedOrderID   pgtype.Int8
	RelatedProductID pgtype.Int8
}

func (*Message) Entity() EntityType { return EntityMessage }
