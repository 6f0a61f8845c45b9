package models

import (
	"reflect"
	"testing"
)

func TestMessageIsRead(t *testing.T) {
	tests := []struct {
		name   string
		readBy []int
		want   bool
	}{
		{"empty", nil, false},
		{"sender only", []int{1}, false},
		{"sender plus one reader", []int{1, 2}, true},
		{"single non-sender entry", []int{2}, false},
		{"many readers", []int{1, 2, 3, 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{SenderID: 1, ReadBy: tt.readBy}
			if got := m.IsRead(); got != tt.want {
				t.Errorf("IsRead() = %v, want %v for readBy %v", got, tt.want, tt.readBy)
			}
		})
	}
}

func TestAppendRead(t *testing.T) {
	readBy, added := AppendRead([]int{1}, 2)
	if !added {
		t.Fatal("expected first AppendRead to add")
	}
	if !reflect.DeepEqual(readBy, []int{1, 2}) {
		t.Fatalf("readBy = %v, want [1 2]", readBy)
	}

	// Second call with the same user is a no-op (set semantics).
	again, added := AppendRead(readBy, 2)
	if added {
		t.Fatal("expected second AppendRead to be a no-op")
	}
	if !reflect.DeepEqual(again, []int{1, 2}) {
		t.Fatalf("readBy after repeat = %v, want [1 2]", again)
	}
}

func TestRolePermissions(t *testing.T) {
	tests := []struct {
		role       Role
		manage     bool
		read       bool
	}{
		{RoleUser, false, false},
		{RoleAdmin, true, true},
		{RoleComplianceOfficer, true, true},
		{RoleAuditor, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.CanManageCompliance(); got != tt.manage {
				t.Errorf("CanManageCompliance() = %v, want %v", got, tt.manage)
			}
			if got := tt.role.CanReadCompliance(); got != tt.read {
				t.Errorf("CanReadCompliance() = %v, want %v", got, tt.read)
			}
		})
	}

	if Role("superuser").Valid() {
		t.Error("unknown role must not be valid")
	}
}
