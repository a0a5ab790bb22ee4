package document

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func asc(field string) bson.D  { return bson.D{{Key: field, Value: 1}} }
func desc(field string) bson.D { return bson.D{{Key: field, Value: -1}} }

func unique(keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
}

// uniqueWhenSet enforces uniqueness only on documents where field is a
// string, so many documents may leave it null.
func uniqueWhenSet(field string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys: asc(field),
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.D{{Key: field, Value: bson.D{{Key: "$type", Value: "string"}}}}),
	}
}

// indexes lists the indexes of every collection, including the unique ones
// that stand in for relational constraints.
var indexes = []struct {
	collection string
	models     []mongo.IndexModel
}{
	{"categories", []mongo.IndexModel{unique(asc("name"))}},
	{"products", []mongo.IndexModel{
		uniqueWhenSet("sku"),
		{Keys: asc("name")},
		{Keys: asc("category_id")},
		{Keys: desc("total_sold")},
	}},
	{"users", []mongo.IndexModel{uniqueWhenSet("email")}},
	{"orders", []mongo.IndexModel{
		unique(asc("order_number")),
		{Keys: asc("status")},
		{Keys: desc("created_at")},
	}},
	{"order_items", []mongo.IndexModel{{Keys: asc("order_id")}}},
	{"conversations", []mongo.IndexModel{
		{Keys: asc("session_id")},
		{Keys: asc("user_id")},
		{Keys: asc("user_identifier")},
		{Keys: desc("started_at")},
	}},
	{"messages", []mongo.IndexModel{
		unique(bson.D{{Key: "conversation_id", Value: 1}, {Key: "sequence_number", Value: 1}}),
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: asc("intent")},
	}},
	{"faq_analytics", []mongo.IndexModel{{Keys: asc("intent")}}},
	{"conversation_feedback", []mongo.IndexModel{{Keys: asc("conversation_id")}}},
	{runsCollection, []mongo.IndexModel{unique(asc("run_id"))}},
}

// Provision creates missing collections and their indexes. Existing
// collections and identical indexes are left alone.
func (s *Store) Provision(ctx context.Context) error {
	existing, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return batchFatal(ctx, "list collections", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	for _, ix := range indexes {
		if !have[ix.collection] {
			if err := s.db.CreateCollection(ctx, ix.collection); err != nil {
				return fmt.Errorf("create collection %s: %w", ix.collection, err)
			}
		}
		if _, err := s.db.Collection(ix.collection).Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", ix.collection, err)
		}
	}
	return nil
}
