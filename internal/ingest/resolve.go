package ingest

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Resolver maps natural keys to stored ids. It is filled from the inserts
// of the current run and falls back to Store.Lookup for records stored by
// earlier runs. Both hits and misses are cached; Register clears a miss.
type Resolver struct {
	store  Store
	ids    map[EntityType]map[Key]int64
	misses map[EntityType]map[Key]struct{}
	lookup int // storage lookups performed
}

// NewResolver creates a resolver. store may be nil, in which case only
// registered keys resolve.
func NewResolver(store Store) *Resolver {
	return &Resolver{
		store:  store,
		ids:    make(map[EntityType]map[Key]int64),
		misses: make(map[EntityType]map[Key]struct{}),
	}
}

// Register records the id of a stored record. A later registration of the
// same key replaces the earlier one.
func (r *Resolver) Register(entity EntityType, key Key, id int64) {
	m, ok := r.ids[entity]
	if !ok {
		m = make(map[Key]int64)
		r.ids[entity] = m
	}
	m[key] = id
	delete(r.misses[entity], key)
}

// Resolve returns the id for key. The error is non-nil only when the
// storage fallback failed.
func (r *Resolver) Resolve(ctx context.Context, entity EntityType, key Key) (int64, bool, error) {
	if id, ok := r.ids[entity][key]; ok {
		return id, true, nil
	}
	if _, ok := r.misses[entity][key]; ok || r.store == nil {
		return 0, false, nil
	}

	r.lookup++
	id, found, err := r.store.Lookup(ctx, entity, key)
	if err != nil {
		return 0, false, err
	}
	if !found {
		m, ok := r.misses[entity]
		if !ok {
			m = make(map[Key]struct{})
			r.misses[entity] = m
		}
		m[key] = struct{}{}
		return 0, false, nil
	}
	r.Register(entity, key, id)
	return id, true, nil
}

// StorageLookups returns how many times the resolver fell back to storage.
func (r *Resolver) StorageLookups() int { return r.lookup }

// Bind resolves the references of rec in place.
//
// Soft references (product to category, conversation to user, message to
// order and product) become null when unresolved. Hard references (order
// item to order and product, message to conversation) return an
// *UnresolvedReferenceError.
func (r *Resolver) Bind(ctx context.Context, rec Record) error {
	switch v := rec.(type) {
	case *Product:
		if v.CategoryName == "" {
			return nil
		}
		id, err := r.soft(ctx, EntityCategory, Key{Field: KeyName, Value: v.CategoryName})
		v.CategoryID = id
		return err

	case *Conversation:
		if v.UserEmail == "" {
			return nil
		}
		id, err := r.soft(ctx, EntityUser, Key{Field: KeyEmail, Value: v.UserEmail})
		v.UserID = id
		return err

	case *OrderItem:
		orderID, err := r.hard(ctx, v.SourceLine(), EntityOrder, Key{Field: KeyOrderNumber, Value: v.OrderNumber})
		if err != nil {
			return err
		}
		productID, err := r.hard(ctx, v.SourceLine(), EntityProduct, Key{Field: KeySKU, Value: v.ProductSKU})
		if err != nil {
			return err
		}
		v.OrderID, v.ProductID = orderID, productID
		return nil

	case *Message:
		convID, err := r.hard(ctx, v.SourceLine(), EntityConversation, Key{Field: KeySessionID, Value: v.SessionID})
		if err != nil {
			return err
		}
		v.ConversationID = convID

		if v.OrderNumber != "" {
			if v.RelatedOrderID, err = r.soft(ctx, EntityOrder, Key{Field: KeyOrderNumber, Value: v.OrderNumber}); err != nil {
				return err
			}
		}
		if v.ProductSKU != "" {
			if v.RelatedProductID, err = r.soft(ctx, EntityProduct, Key{Field: KeySKU, Value: v.ProductSKU}); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func (r *Resolver) soft(ctx context.Context, entity EntityType, key Key) (pgtype.Int8, error) {
	id, found, err := r.Resolve(ctx, entity, key)
	if err != nil || !found {
		return pgtype.Int8{Valid: false}, err
	}
	return pgtype.Int8{Int64: id, Valid: true}, nil
}

func (r *Resolver) hard(ctx context.Context, line int, entity EntityType, key Key) (int64, error) {
	id, found, err := r.Resolve(ctx, entity, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &UnresolvedReferenceError{Line: line, Target: entity, Key: key}
	}
	return id, nil
}

// LookupKey returns the key under which a stored record is registered so
// later records can reference it.
func LookupKey(rec Record) (Key, bool) {
	switch v := rec.(type) {
	case *Order:
		return Key{Field: KeyOrderNumber, Value: v.OrderNumber}, true
	case *Conversation:
		return Key{Field: KeySessionID, Value: v.SessionID}, true
	case Keyed:
		return v.NaturalKey()
	}
	return Key{}, false
}
