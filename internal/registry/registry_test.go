package registry

import (
	"sync"
	"testing"
)

func TestResolveUnregisteredIsAbsent(t *testing.T) {
	r := New()
	if addr, ok := r.Resolve("nothing"); ok {
		t.Errorf("expected absent, got %q", addr)
	}
}

func TestRegisterResolveRoundTrip(t *testing.T) {
	r := New()
	r.Register("user-management", "http://users:8001")
	r.Register("analytics", "http://analytics:8005")

	addr, ok := r.Resolve("user-management")
	if !ok || addr != "http://users:8001" {
		t.Errorf("resolve = %q, %v", addr, ok)
	}

	// Last writer wins on re-registration, unrelated entries untouched.
	r.Register("user-management", "http://users-v2:8001")
	addr, _ = r.Resolve("user-management")
	if addr != "http://users-v2:8001" {
		t.Errorf("after re-register: %q", addr)
	}
	if addr, _ := r.Resolve("analytics"); addr != "http://analytics:8005" {
		t.Errorf("unrelated entry changed: %q", addr)
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	r.Register("svc", "http://svc:1")
	r.Unregister("svc")
	if _, ok := r.Resolve("svc"); ok {
		t.Error("expected absent after unregister")
	}
	r.Unregister("svc") // no-op
}

func TestListIsSorted(t *testing.T) {
	r := New()
	r.Register("b", "http://b")
	r.Register("a", "http://a")
	r.Register("c", "http://c")

	got := r.List()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("list = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list = %v, want %v", got, want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("svc", "http://svc")
		}()
		go func() {
			defer wg.Done()
			r.Resolve("svc")
			r.List()
		}()
	}
	wg.Wait()
}
