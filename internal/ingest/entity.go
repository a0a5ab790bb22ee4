package ingest

import "fmt"

// EntityType identifies one kind of record loaded by the pipeline.
type EntityType string

const (
	EntityCategory     EntityType = "categories"
	EntityProduct      EntityType = "products"
	EntityUser         EntityType = "users"
	EntityOrder        EntityType = "orders"
	EntityOrderItem    EntityType = "order_items"
	EntityConversation EntityType = "conversations"
	EntityMessage      EntityType = "messages"
)

// LoadOrder is the dependency order in which entity types are ingested.
// Every entity only references entities that appear before it.
var LoadOrder = []EntityType{
	EntityCategory,
	EntityProduct,
	EntityUser,
	EntityOrder,
	EntityOrderItem,
	EntityConversation,
	EntityMessage,
}

// FileName returns the conventional source file name for the entity type.
func (e EntityType) FileName() string {
	return string(e) + ".csv"
}

// Valid reports whether e is one of the known entity types.
func (e EntityType) Valid() bool {
	for _, known := range LoadOrder {
		if known == e {
			return true
		}
	}
	return false
}

// ParseEntityType converts a string such as "order_items" to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown entity type: %s", s)
	}
	return e, nil
}

// Key is a natural key: a domain-meaningful identifier such as a category
// name or a product SKU, independent of any generated id.
type Key struct {
	Field string
	Value string
}

func (k Key) String() string {
	return k.Field + "=" + k.Value
}

// Natural key fields used for deduplication and lookup.
const (
	KeyName        = "name"
	KeySKU         = "sku"
	KeyEmail       = "email"
	KeyOrderNumber = "order_number"
	KeySessionID   = "session_id"
)
