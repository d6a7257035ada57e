package auth

import (
	"errors"
	"testing"
	"time"
)

func TestNewAsserter_EmptyKeyDisables(t *testing.T) {
	if NewAsserter(nil) != nil {
		t.Error("expected nil asserter for empty key")
	}
}

func TestAsserter_RoundTrip(t *testing.T) {
	a := NewAsserter([]byte("k"))
	p := Principal{Email: "d@x.com", Role: RoleDoctor}
	raw, err := a.Sign(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Check(raw, p); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAsserter_Rejections(t *testing.T) {
	a := NewAsserter([]byte("k"))
	p := Principal{Email: "d@x.com", Role: RoleDoctor}
	raw, _ := a.Sign(p)

	if err := a.Check("", p); !errors.Is(err, ErrMissingIdentity) {
		t.Errorf("empty assertion: got %v", err)
	}
	if err := a.Check(raw, Principal{Email: "d@x.com", Role: RoleAdmin}); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("role mismatch: got %v", err)
	}

	other := NewAsserter([]byte("other"))
	if err := other.Check(raw, p); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("wrong key: got %v", err)
	}

	// Bearer credentials are not assertions: they lack the internal audience.
	cred, _ := SignHS256([]byte("k"), p, "", time.Now(), time.Hour)
	if err := a.Check(cred, p); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("bearer token accepted as assertion: %v", err)
	}
}

func TestAsserter_Expiry(t *testing.T) {
	now := time.Now()
	a := NewAsserter([]byte("k"))
	a.now = func() time.Time { return now }
	p := Principal{Email: "p@x.com", Role: RolePatient}
	raw, _ := a.Sign(p)

	a.now = func() time.Time { return now.Add(time.Minute) }
	if err := a.Check(raw, p); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("expected expired assertion to fail, got %v", err)
	}
}
