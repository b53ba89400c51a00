package catalog

import (
	"context"
	"errors"
	"testing"

	"busfare-ingest/internal/fares"
)

type countingStore struct {
	next  int64
	calls map[string]int
	fail  bool
}

func newCountingStore() *countingStore {
	return &countingStore{calls: map[string]int{}}
}

func (s *countingStore) id(kind string) (int64, error) {
	s.calls[kind]++
	if s.fail {
		return 0, errors.New("boom")
	}
	s.next++
	return s.next, nil
}

func (s *countingStore) GetOrCreateRoute(context.Context, string, string) (int64, error) {
	return s.id("route")
}

func (s *countingStore) GetOrCreateCompany(context.Context, fares.Company) (int64, error) {
	return s.id("company")
}

func (s *countingStore) GetOrCreateAmenity(context.Context, int, string) (int64, error) {
	return s.id("amenity")
}

func ptr[T any](v T) *T { return &v }

func TestCacheHitsAvoidStore(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	c := New()

	r1, _ := c.Route(ctx, s, "Lima", "Ica")
	r2, _ := c.Route(ctx, s, "Lima", "Ica")
	r3, _ := c.Route(ctx, s, "Ica", "Lima")
	if r1 != r2 || r1 == r3 {
		t.Fatalf("route ids = %d %d %d", r1, r2, r3)
	}
	if s.calls["route"] != 2 {
		t.Fatalf("route store calls = %d", s.calls["route"])
	}

	a1, _ := c.Amenity(ctx, s, 41, "WiFi")
	a2, _ := c.Amenity(ctx, s, 41, "WiFi")
	if a1 != a2 || s.calls["amenity"] != 1 {
		t.Fatalf("amenity ids = %d %d calls=%d", a1, a2, s.calls["amenity"])
	}

	hits, misses := c.Stats()
	if hits != 2 || misses != 3 {
		t.Fatalf("stats = %d hits %d misses", hits, misses)
	}
}

func TestCompanyOperatorIDWins(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	c := New()

	a, _ := c.Company(ctx, s, fares.Company{Name: "Cruz del Sur", OperatorID: ptr(int64(9))})
	// same operator under a slightly different display name
	b, _ := c.Company(ctx, s, fares.Company{Name: "CRUZ DEL SUR", OperatorID: ptr(int64(9))})
	if a != b || s.calls["company"] != 1 {
		t.Fatalf("ids %d %d calls=%d", a, b, s.calls["company"])
	}

	n1, _ := c.Company(ctx, s, fares.Company{Name: "Civa"})
	n2, _ := c.Company(ctx, s, fares.Company{Name: "Civa"})
	if n1 != n2 || s.calls["company"] != 2 {
		t.Fatalf("name-only ids %d %d calls=%d", n1, n2, s.calls["company"])
	}
}

func TestForgetDropsUncommitted(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	c := New()

	c.Route(ctx, s, "Lima", "Ica")
	c.Commit()
	c.Route(ctx, s, "Lima", "Puno")
	c.Company(ctx, s, fares.Company{Name: "Civa", OperatorID: ptr(int64(3))})
	c.Amenity(ctx, s, 1, "Snacks")
	c.Forget()

	if c.Len() != 1 {
		t.Fatalf("len after forget = %d", c.Len())
	}
	c.Route(ctx, s, "Lima", "Ica")
	if s.calls["route"] != 2 {
		t.Fatalf("committed route should stay cached, calls=%d", s.calls["route"])
	}
	c.Company(ctx, s, fares.Company{Name: "Civa", OperatorID: ptr(int64(3))})
	if s.calls["company"] != 2 {
		t.Fatalf("forgotten company should be resolved again, calls=%d", s.calls["company"])
	}
}

func TestStoreErrorNotCached(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.fail = true
	c := New()
	if _, err := c.Route(ctx, s, "Lima", "Ica"); err == nil {
		t.Fatalf("expected error")
	}
	if c.Len() != 0 {
		t.Fatalf("failed lookup cached")
	}
}
