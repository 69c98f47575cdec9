package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kangarko/pacan-analytics/internal/store"
	"github.com/kangarko/pacan-analytics/internal/testutil"
)

func TestAllocateVisitorID_Distinct(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		id, err := s.AllocateVisitorID(ctx)
		if err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
		if id <= 1 {
			t.Fatalf("allocation %d returned reserved or invalid id %d", i, id)
		}
		if seen[id] {
			t.Fatalf("allocation %d returned duplicate id %d", i, id)
		}
		seen[id] = true
	}
}

func TestAllocateVisitorID_Concurrent(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	const n = 20

	var (
		mu  sync.Mutex
		ids = make(map[int64]int)
		wg  sync.WaitGroup
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.AllocateVisitorID(ctx)
			if err != nil {
				t.Errorf("concurrent allocation failed: %v", err)
				return
			}
			mu.Lock()
			ids[id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(ids))
	}
	for id, count := range ids {
		if count != 1 {
			t.Errorf("id %d handed out %d times", id, count)
		}
	}
}

func TestSetExperimentVariant_WriteOnce(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	userID, err := s.AllocateVisitorID(ctx)
	if err != nil {
		t.Fatalf("failed to allocate visitor: %v", err)
	}

	got, err := s.SetExperimentVariant(ctx, userID, "hero", "A")
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if got != "A" {
		t.Fatalf("expected variant A, got %q", got)
	}

	// Second write must keep the first value.
	got, err = s.SetExperimentVariant(ctx, userID, "hero", "B")
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if got != "A" {
		t.Fatalf("variant was reassigned: expected A, got %q", got)
	}

	v, err := s.GetVisitor(ctx, userID)
	if err != nil {
		t.Fatalf("failed to get visitor: %v", err)
	}
	if v.ExperimentData["hero"] != "A" {
		t.Fatalf("stored experiment data %v, want hero=A", v.ExperimentData)
	}
}

func TestVisitorsWithExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	inA, _ := s.AllocateVisitorID(ctx)
	inB, _ := s.AllocateVisitorID(ctx)
	out, _ := s.AllocateVisitorID(ctx)

	if _, err := s.SetExperimentVariant(ctx, inA, "hero", "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetExperimentVariant(ctx, inB, "hero", "B"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetExperimentVariant(ctx, out, "pricing", "control"); err != nil {
		t.Fatal(err)
	}

	members, err := s.VisitorsWithExperiment(ctx, "hero")
	if err != nil {
		t.Fatalf("failed to query members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	variants := make(map[int64]string)
	for _, m := range members {
		variants[m.UserID] = m.Variant
	}
	if variants[inA] != "A" || variants[inB] != "B" {
		t.Fatalf("unexpected membership %v", variants)
	}
	if _, ok := variants[out]; ok {
		t.Fatal("visitor from another experiment leaked into membership")
	}
}

func TestConversionEvents_WindowAndOrder(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	userID, _ := s.AllocateVisitorID(ctx)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	insert := func(typ store.EventType, at time.Time) {
		t.Helper()
		if err := s.InsertEvent(ctx, &store.Event{UserID: userID, Type: typ, Date: at}); err != nil {
			t.Fatalf("failed to insert event: %v", err)
		}
	}

	insert(store.EventSignUp, base.Add(2*time.Hour))
	insert(store.EventBuy, base.Add(1*time.Hour))
	insert(store.EventView, base.Add(30*time.Minute)) // not a conversion type
	insert(store.EventBuy, base.Add(-time.Hour))      // before window

	events, err := s.ConversionEvents(ctx, []int64{userID}, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("failed to fetch conversion events: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(events))
	}
	if events[0].Type != store.EventBuy || events[1].Type != store.EventSignUp {
		t.Fatalf("events not in ascending date order: %v, %v", events[0].Type, events[1].Type)
	}
}

func TestConversionEvents_StableTieBreak(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	userID, _ := s.AllocateVisitorID(ctx)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &store.Event{UserID: userID, Type: store.EventSignUp, Date: at}
	second := &store.Event{UserID: userID, Type: store.EventSignUp, Date: at}
	if err := s.InsertEvent(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEvent(ctx, second); err != nil {
		t.Fatal(err)
	}

	// Same timestamp: insertion order decides, every time.
	for i := 0; i < 3; i++ {
		events, err := s.ConversionEvents(ctx, []int64{userID}, at.Add(-time.Minute), at.Add(time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].ID != first.ID || events[1].ID != second.ID {
			t.Fatalf("scan %d: tie-break not stable: got %d, %d", i, events[0].ID, events[1].ID)
		}
	}
}

func TestLatestUserIDByEmail(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	older, _ := s.AllocateVisitorID(ctx)
	newer, _ := s.AllocateVisitorID(ctx)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.InsertEvent(ctx, &store.Event{UserID: older, Type: store.EventSignUp, Email: "a@b.c", Date: base}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEvent(ctx, &store.Event{UserID: newer, Type: store.EventView, Email: "a@b.c", Date: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.LatestUserIDByEmail(ctx, "a@b.c")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != newer {
		t.Fatalf("expected most recent user %d, got %d", newer, got)
	}

	if _, err := s.LatestUserIDByEmail(ctx, "nobody@b.c"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown email, got %v", err)
	}
}

func TestMarkRefunded(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	userID, _ := s.AllocateVisitorID(ctx)
	buy := &store.Event{
		UserID:        userID,
		Type:          store.EventBuy,
		Date:          time.Now(),
		Value:         49,
		Currency:      "EUR",
		PaymentID:     "pi_123",
		PaymentStatus: store.PaymentCompleted,
	}
	if err := s.InsertEvent(ctx, buy); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkRefunded(ctx, "pi_123"); err != nil {
		t.Fatalf("failed to mark refunded: %v", err)
	}

	events, err := s.EventsByUser(ctx, userID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if events[0].PaymentStatus != store.PaymentRefunded {
		t.Fatalf("expected refunded status, got %q", events[0].PaymentStatus)
	}

	if err := s.MarkRefunded(ctx, "pi_missing"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown payment, got %v", err)
	}
}

func TestInsertEvent_RejectsInvalid(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	if err := s.InsertEvent(ctx, &store.Event{UserID: 1, Type: "dance", Date: time.Now()}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if err := s.InsertEvent(ctx, &store.Event{Type: store.EventView, Date: time.Now()}); err == nil {
		t.Fatal("expected error for missing visitor identity")
	}
}

func TestOfferRoundTrip(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	offer := &store.Offer{
		Slug:         "course-pro",
		Price:        199,
		Currency:     "USD",
		PriceEUR:     183.08,
		RegionPrices: map[string]float64{"cz": 4490, "pl": 849},
	}
	if err := s.PutOffer(ctx, offer); err != nil {
		t.Fatalf("failed to put offer: %v", err)
	}

	// Upsert overwrites
	offer.Price = 249
	if err := s.PutOffer(ctx, offer); err != nil {
		t.Fatalf("failed to upsert offer: %v", err)
	}

	got, err := s.GetOffer(ctx, "course-pro")
	if err != nil {
		t.Fatalf("failed to get offer: %v", err)
	}
	if got.Price != 249 || got.RegionPrices["cz"] != 4490 {
		t.Fatalf("unexpected offer %+v", got)
	}
}

func TestExperimentCRUD(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.CreateExperiment(ctx, "hero", []string{"A", "B"}, start); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	if _, err := s.CreateExperiment(ctx, "solo", []string{"A"}, start); err == nil {
		t.Fatal("expected error for single-variant experiment")
	}

	exp, err := s.GetExperiment(ctx, "hero")
	if err != nil {
		t.Fatalf("failed to get experiment: %v", err)
	}
	if !exp.Active || len(exp.Variants) != 2 || exp.EndDate != nil {
		t.Fatalf("unexpected experiment %+v", exp)
	}

	end := start.AddDate(0, 1, 0)
	if err := s.SetExperimentActive(ctx, "hero", false, &end); err != nil {
		t.Fatalf("failed to close experiment: %v", err)
	}

	exp, err = s.GetExperiment(ctx, "hero")
	if err != nil {
		t.Fatal(err)
	}
	if exp.Active || exp.EndDate == nil || !exp.EndDate.Equal(end) {
		t.Fatalf("experiment not closed: %+v", exp)
	}
}
