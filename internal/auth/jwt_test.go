package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

func TestIssueVerify(t *testing.T) {
	v := NewVerifier("s3cret", time.Hour)
	tok, err := v.Issue(Identity{PartyID: "driver-7", Role: models.RoleDriver})
	if err != nil {
		t.Fatal(err)
	}
	id, err := v.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if id.PartyID != "driver-7" || id.Role != models.RoleDriver {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("s3cret", time.Hour)
	other := NewVerifier("other", time.Hour)
	tok, err := other.Issue(Identity{PartyID: "r1", Role: models.RoleRider})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := v.Verify("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	noRole, err := v.Issue(Identity{PartyID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(noRole); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for missing role, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("got %q %v", tok, ok)
	}
	for _, h := range []string{"", "abc", "Basic abc", "Bearer  "} {
		if _, ok := BearerToken(h); ok {
			t.Fatalf("%q should not parse", h)
		}
	}
}

func TestContextIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{PartyID: "r1", Role: models.RoleRider})
	id, ok := FromContext(ctx)
	if !ok || id.PartyID != "r1" {
		t.Fatalf("unexpected %+v %v", id, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context has no identity")
	}
}
