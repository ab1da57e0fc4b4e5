package session

import "testing"

func TestShareBufferIsIdempotentByName(t *testing.T) {
	h := NewHub("demo", "", 8, nil)
	b1 := h.ShareBuffer("scratch", "text")
	b2 := h.ShareBuffer("scratch", "text")
	if b1 != b2 {
		t.Error("sharing the same buffer name twice must return the existing buffer")
	}
	if len(h.Buffers()) != 1 {
		t.Errorf("expected 1 shared buffer, got %d", len(h.Buffers()))
	}
}

func TestStopShareBufferRemovesIt(t *testing.T) {
	h := NewHub("demo", "", 8, nil)
	h.ShareBuffer("scratch", "text")
	h.StopShareBuffer("scratch")
	if _, ok := h.Buffer("scratch"); ok {
		t.Error("buffer should be gone after StopShareBuffer")
	}
}

func TestAllocateSiteNeverReturnsServerSite(t *testing.T) {
	h := NewHub("demo", "", 8, nil)
	for i := 0; i < 5; i++ {
		site, err := h.allocateSite()
		if err != nil {
			t.Fatalf("allocateSite: %v", err)
		}
		if site == 0 {
			t.Error("allocateSite must never hand out the reserved server site 0")
		}
	}
}

func TestPasswordReportsWhetherOneIsConfigured(t *testing.T) {
	open := NewHub("demo", "", 8, nil)
	if _, required := open.Password(); required {
		t.Error("an empty password must report auth not required")
	}

	guarded := NewHub("demo", "secret", 8, nil)
	if _, required := guarded.Password(); !required {
		t.Error("a non-empty password must report auth required")
	}
}

func TestFocusAndContactsRoundTrip(t *testing.T) {
	h := NewHub("demo", "", 8, nil)
	h.SetFocus(1, "alice", "scratch")
	h.SetFocus(2, "bob", "notes")

	contacts := h.Contacts()
	if contacts[1] != "alice" || contacts[2] != "bob" {
		t.Errorf("unexpected contacts: %+v", contacts)
	}
}
