package account

import (
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alice@Example.COM", "alice@example.com"},
		{"  bob@example.com  ", "bob@example.com"},
		{"carol@example.com", "carol@example.com"},
	}

	for _, tc := range cases {
		if got := NormalizeEmail(tc.in); got != tc.want {
			t.Fatalf("NormalizeEmail(%q) = %q, expected %q", tc.in, got, tc.want)
		}
	}
}

func TestUserActivate(t *testing.T) {
	u := &User{}

	u.Activate()

	if !u.IsActive {
		t.Fatal("expected user to be active")
	}
	if u.ActivatedAt == nil {
		t.Fatal("expected activated_at to be set")
	}

	first := *u.ActivatedAt
	u.Activate()

	if !u.ActivatedAt.Equal(first) {
		t.Fatal("expected repeated activation to preserve the original timestamp")
	}
}

func TestUserFullName(t *testing.T) {
	cases := []struct {
		name string
		user User
		want string
	}{
		{"both names", User{FirstName: "Alice", LastName: "Smith"}, "Alice Smith"},
		{"first only", User{FirstName: "Alice"}, "Alice"},
		{"last only", User{LastName: "Smith"}, "Smith"},
		{"neither", User{}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.user.FullName(); got != tc.want {
				t.Fatalf("FullName() = %q, expected %q", got, tc.want)
			}
		})
	}
}
