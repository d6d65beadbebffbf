package role

import "testing"

func TestRank(t *testing.T) {
	tests := []struct {
		name string
		role string
		want int
	}{
		{"user", User, 1},
		{"moderator", Moderator, 2},
		{"admin", Admin, 3},
		{"unknown role defaults to user", "owner", 1},
		{"empty role defaults to user", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rank(tt.role); got != tt.want {
				t.Errorf("Rank(%q) = %d, want %d", tt.role, got, tt.want)
			}
		})
	}
}

func TestCanModerate(t *testing.T) {
	tests := []struct {
		name   string
		actor  string
		target string
		want   bool
	}{
		{"admin over moderator", Admin, Moderator, true},
		{"admin over user", Admin, User, true},
		{"moderator over user", Moderator, User, true},
		{"moderator over admin", Moderator, Admin, false},
		{"user over user", User, User, false},
		{"moderator over moderator", Moderator, Moderator, false},
		{"admin over admin", Admin, Admin, false},
		{"user over admin", User, Admin, false},
		{"unknown target treated as user", Moderator, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanModerate(tt.actor, tt.target); got != tt.want {
				t.Errorf("CanModerate(%q, %q) = %v, want %v", tt.actor, tt.target, got, tt.want)
			}
		})
	}
}

func TestCanModerate_SameRoleNeverAllowed(t *testing.T) {
	// 同级（含自己对自己）永远不能互相处置，与具体等级无关。
	for _, r := range []string{User, Moderator, Admin} {
		if CanModerate(r, r) {
			t.Errorf("CanModerate(%q, %q) = true, want false", r, r)
		}
	}
}

func TestValid(t *testing.T) {
	for _, r := range []string{User, Moderator, Admin} {
		if !Valid(r) {
			t.Errorf("Valid(%q) = false, want true", r)
		}
	}
	for _, r := range []string{"", "owner", "Admin"} {
		if Valid(r) {
			t.Errorf("Valid(%q) = true, want false", r)
		}
	}
}
