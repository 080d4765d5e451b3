// ABOUTME: Tests for auth context propagation helpers
// ABOUTME: Covers WithAuth/FromContext round trips and the admin check

package auth

import (
	"context"
	"testing"
)

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestWithAuth_RoundTrip(t *testing.T) {
	want := &AuthContext{PrincipalID: 12, Phone: "9876543210", Role: "farmer"}
	ctx := WithAuth(context.Background(), want)

	got := FromContext(ctx)
	if got != want {
		t.Fatalf("FromContext() = %v, want %v", got, want)
	}
	if got.UserKey() != "12" {
		t.Errorf("UserKey() = %q, want %q", got.UserKey(), "12")
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic when AuthContext is missing")
		}
	}()
	MustFromContext(context.Background())
}

func TestAuthContext_IsAdmin(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"farmer", false},
		{"expert", false},
		{"", false},
	}
	for _, tt := range tests {
		a := &AuthContext{Role: tt.role}
		if got := a.IsAdmin(); got != tt.want {
			t.Errorf("IsAdmin(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}

	var nilCtx *AuthContext
	if nilCtx.IsAdmin() {
		t.Error("nil AuthContext must not be admin")
	}
}
