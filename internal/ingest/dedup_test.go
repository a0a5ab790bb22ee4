package ingest

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestDeduplicatorFirstWins(t *testing.T) {
	d := NewDeduplicator(nil)
	records := []Record{
		&Category{Line: 2, Name: "Books"},
		&Category{Line: 3, Name: "Toys"},
		&Category{Line: 4, Name: "Books"},
	}

	kept, dups, err := d.Filter(context.Background(), EntityCategory, records)
	if err != nil {
		t.Fatalf("Filter() error: %v", err)
	}
	if len(kept) != 2 || kept[0].SourceLine() != 2 || kept[1].SourceLine() != 3 {
		t.Errorf("kept = %v, want lines 2 and 3", kept)
	}
	if len(dups) != 1 {
		t.Fatalf("got %d duplicates, want 1", len(dups))
	}
	if dups[0].Record.SourceLine() != 4 || dups[0].FirstLine != 2 || dups[0].Stored {
		t.Errorf("duplicate = %+v", dups[0])
	}
}

func TestDeduplicatorKeysAreCaseSensitive(t *testing.T) {
	d := NewDeduplicator(nil)
	records := []Record{
		&Category{Line: 2, Name: "Books"},
		&Category{Line: 3, Name: "books"},
	}
	kept, _, _ := d.Filter(context.Background(), EntityCategory, records)
	if len(kept) != 2 {
		t.Errorf("got %d kept, want 2", len(kept))
	}
}

func TestDeduplicatorProductKeys(t *testing.T) {
	sku := func(s string) pgtype.Text { return pgtype.Text{String: s, Valid: true} }
	d := NewDeduplicator(nil)
	records := []Record{
		&Product{Line: 2, Name: "Pen", SKU: sku("P-1")},
		&Product{Line: 3, Name: "Pen", SKU: sku("P-2")}, // same name, different sku
		&Product{Line: 4, Name: "Pencil"},
		&Product{Line: 5, Name: "Pencil"},
		&Product{Line: 6, Name: "Pen v2", SKU: sku("P-1")},
	}

	kept, dups, err := d.Filter(context.Background(), EntityProduct, records)
	if err != nil {
		t.Fatalf("Filter() error: %v", err)
	}
	if len(kept) != 3 || len(dups) != 2 {
		t.Fatalf("got %d kept and %d duplicates, want 3 and 2", len(kept), len(dups))
	}
	if dups[0].Record.SourceLine() != 5 || dups[1].Record.SourceLine() != 6 {
		t.Errorf("duplicates = lines %d and %d, want 5 and 6",
			dups[0].Record.SourceLine(), dups[1].Record.SourceLine())
	}
}

func TestDeduplicatorUnkeyedPassThrough(t *testing.T) {
	d := NewDeduplicator(nil)

	users := []Record{&User{Line: 2}, &User{Line: 3}}
	kept, dups, _ := d.Filter(context.Background(), EntityUser, users)
	if len(kept) != 2 || len(dups) != 0 {
		t.Errorf("users without email: got %d kept, %d dups", len(kept), len(dups))
	}

	items := []Record{
		&OrderItem{Line: 2, OrderNumber: "ORD-1", ProductSKU: "P-1"},
		&OrderItem{Line: 3, OrderNumber: "ORD-1", ProductSKU: "P-1"},
	}
	kept, dups, _ = d.Filter(context.Background(), EntityOrderItem, items)
	if len(kept) != 2 || len(dups) != 0 {
		t.Errorf("order items: got %d kept, %d dups", len(kept), len(dups))
	}
}

func TestDeduplicatorAgainstStorage(t *testing.T) {
	stored := Key{Field: KeyName, Value: "Books"}
	store := &lookupStore{ids: map[EntityType]map[Key]int64{EntityCategory: {stored: 1}}}
	d := NewDeduplicator(NewResolver(store))

	records := []Record{
		&Category{Line: 2, Name: "Books"},
		&Category{Line: 3, Name: "Toys"},
		&Category{Line: 4, Name: "Books"},
	}
	kept, dups, err := d.Filter(context.Background(), EntityCategory, records)
	if err != nil {
		t.Fatalf("Filter() error: %v", err)
	}
	if len(kept) != 1 || kept[0].(*Category).Name != "Toys" {
		t.Errorf("kept = %v, want only Toys", kept)
	}
	if len(dups) != 2 || !dups[0].Stored {
		t.Errorf("duplicates = %+v, want two, first from storage", dups)
	}
}

func TestDeduplicatorStorageError(t *testing.T) {
	store := &lookupStore{err: &ConnectivityError{Op: "lookup", Err: context.DeadlineExceeded}}
	d := NewDeduplicator(NewResolver(store))

	_, _, err := d.Filter(context.Background(), EntityCategory, []Record{&Category{Name: "Books"}})
	if !IsFatal(err) {
		t.Errorf("error = %v, want connectivity error", err)
	}
}
