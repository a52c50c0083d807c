package wishlist

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/vovakirdan/marketchat/internal/store"
	"github.com/vovakirdan/marketchat/internal/store/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	for _, id := range []string{"seller", "buyer"} {
		p := &store.Profile{ID: id, Name: id, Email: id + "@example.com", PasswordHash: "x"}
		if err := st.CreateProfile(context.Background(), p); err != nil {
			t.Fatalf("create profile: %v", err)
		}
	}
	return New(st), st
}

func createListing(t *testing.T, st *sqlite.SQLiteStore, name string) *store.Listing {
	t.Helper()

	l := &store.Listing{SellerID: "seller", Name: name, Price: 1000}
	if err := st.CreateListing(context.Background(), l); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func TestToggle(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	a := createListing(t, st, "Meja")
	b := createListing(t, st, "Kursi")

	if _, _, err := svc.Toggle(ctx, "buyer", 999); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	if _, _, err := svc.Toggle(ctx, "ghost", a.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	steps := []struct {
		listing   int64
		wantSaved bool
		want      []int64
	}{
		{a.ID, true, []int64{a.ID}},
		{b.ID, true, []int64{a.ID, b.ID}},
		{a.ID, false, []int64{b.ID}},
		{b.ID, false, []int64{}},
	}
	for i, step := range steps {
		p, saved, err := svc.Toggle(ctx, "buyer", step.listing)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if saved != step.wantSaved {
			t.Fatalf("step %d: expected saved=%v", i, step.wantSaved)
		}
		stored, err := st.GetProfileByID(ctx, "buyer")
		if err != nil {
			t.Fatalf("step %d: get profile: %v", i, err)
		}
		if !slices.Equal(p.Wishlist, step.want) || !slices.Equal(stored.Wishlist, step.want) {
			t.Fatalf("step %d: expected %v, got %v (stored %v)", i, step.want, p.Wishlist, stored.Wishlist)
		}
	}
}

func TestListingsSkipsDeleted(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	a := createListing(t, st, "Meja")
	b := createListing(t, st, "Kursi")

	for _, id := range []int64{b.ID, a.ID} {
		if _, _, err := svc.Toggle(ctx, "buyer", id); err != nil {
			t.Fatalf("toggle: %v", err)
		}
	}
	if err := st.DeleteListing(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	listings, err := svc.Listings(ctx, "buyer")
	if err != nil {
		t.Fatalf("listings: %v", err)
	}
	if len(listings) != 1 || listings[0].ID != a.ID {
		t.Fatalf("expected only %d, got %+v", a.ID, listings)
	}
}
