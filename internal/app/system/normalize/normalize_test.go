package normalize

import (
	"reflect"
	"testing"
)

func TestRole(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"admin", "admin"},
		{"  Owner ", "owner"},
		{"MODERATOR", "moderator"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Role(tt.input); got != tt.want {
			t.Errorf("Role(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestUsername(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ada", "ada"},
		{"@ada", "ada"},
		{"  @ada  ", "ada"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Username(tt.input); got != tt.want {
			t.Errorf("Username(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIdentifier(t *testing.T) {
	if got := Identifier("  2001:DB8::1 "); got != "2001:db8::1" {
		t.Errorf("Identifier() = %q", got)
	}
}

func TestRoleList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"owner,admin,moderator", []string{"owner", "admin", "moderator"}},
		{" Owner , ADMIN ,, admin", []string{"owner", "admin"}},
		{"", nil},
		{" , ", nil},
	}
	for _, tt := range tests {
		if got := RoleList(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("RoleList(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
