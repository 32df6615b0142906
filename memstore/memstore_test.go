package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bluescreen10/authguard"
	"github.com/bluescreen10/authguard/memstore"
)

var _ authguard.Store = &memstore.Memstore{}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	id := "0190b6a4-7c1e-7000-8000-000000000001"
	expectedData := []byte(`{"token":"abc"}`)

	s := memstore.New()
	s.Set(ctx, id, expectedData, time.Now().Add(1*time.Hour))
	data, found, err := s.Get(ctx, id)

	if err != nil {
		t.Fatal(err)
	}

	if string(data) != string(expectedData) {
		t.Fatalf("expected '%s' got '%s'", expectedData, data)
	}

	if !found {
		t.Fatalf("expected 'true' got '%v'", found)
	}
}

func TestEmptyGet(t *testing.T) {
	s := memstore.New()
	_, found, err := s.Get(context.Background(), "missing")

	if err != nil {
		t.Fatal(err)
	}

	if found {
		t.Fatalf("expected 'false' got '%v'", found)
	}
}

func TestGetExpired(t *testing.T) {
	ctx := context.Background()
	id := "expired"

	s := memstore.New()
	s.Set(ctx, id, []byte("data"), time.Now().Add(-1*time.Hour))
	_, found, err := s.Get(ctx, id)

	if err != nil {
		t.Fatal(err)
	}

	if found {
		t.Fatalf("expected 'false' got '%v'", found)
	}

	if count := s.Count(); count != 0 {
		t.Fatalf("expected expired record to be dropped, got '%d' records", count)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	id := "to-delete"

	s := memstore.New()
	s.Set(ctx, id, []byte("data"), time.Now().Add(1*time.Hour))
	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("expected deleting a missing id to succeed, got '%v'", err)
	}

	_, found, _ := s.Get(ctx, id)
	if found {
		t.Fatalf("expected 'false' got '%v'", found)
	}
}

func TestPeriodicCleanup(t *testing.T) {
	ctx := context.Background()

	s := memstore.New()
	s.Set(ctx, "long", []byte("data"), time.Now().Add(1*time.Hour))
	s.Set(ctx, "short", []byte("data"), time.Now().Add(10*time.Millisecond))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.PeriodicCleanUp(20*time.Millisecond, stop)
		close(done)
	}()
	time.Sleep(70 * time.Millisecond)
	close(stop)
	<-done

	if count := s.Count(); count != 1 {
		t.Fatalf("expected 1 item but got '%d'", count)
	}
}

func TestSetAfterExpiry(t *testing.T) {
	ctx := context.Background()
	id := "renewed"

	s := memstore.New()
	s.Set(ctx, id, []byte("old"), time.Now().Add(-1*time.Hour))
	if _, found, _ := s.Get(ctx, id); found {
		t.Fatalf("expected 'false' got '%v'", found)
	}

	s.Set(ctx, id, []byte("new"), time.Now().Add(1*time.Hour))
	data, found, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(data) != "new" {
		t.Fatalf("expected 'new' got '%s' (found=%v)", data, found)
	}
}

func TestExpiredConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set(ctx, "shared", []byte("data"), time.Now().Add(-1*time.Millisecond))
		}()
		go func() {
			defer wg.Done()
			if _, _, err := s.Get(ctx, "shared"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	s.Get(ctx, "shared")
	if count := s.Count(); count != 0 {
		t.Fatalf("expected expired record to be dropped, got '%d' records", count)
	}
}
