package auth

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRolesMatch(t *testing.T) {
	cases := []struct {
		name     string
		account  RoleSet
		required RoleSet
		want     bool
	}{
		{"overlap", NewRoleSet("admin", "editor"), NewRoleSet("admin"), true},
		{"no overlap", NewRoleSet("admin"), NewRoleSet("editor"), false},
		{"empty account", NewRoleSet(), NewRoleSet("admin"), false},
		{"empty required", NewRoleSet("admin"), NewRoleSet(), false},
		{"both nil", nil, nil, false},
		{"case sensitive", NewRoleSet("Admin"), NewRoleSet("admin"), false},
		{"trimmed", NewRoleSet(" admin "), NewRoleSet("admin"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RolesMatch(tc.account, tc.required); got != tc.want {
				t.Fatalf("RolesMatch=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestRoleSetFromFlagsIgnoresFalse(t *testing.T) {
	set := RoleSetFromFlags([]map[string]bool{{"admin": true}, {"editor": false}})
	if !set.Has("admin") || set.Has("editor") {
		t.Fatalf("unexpected set: %v", set.Names())
	}
	if !RolesMatch(set, RoleSetFromFlags([]map[string]bool{{"admin": true}})) {
		t.Fatalf("expected legacy flags to match")
	}
}

func TestRoleSetJSONAcceptsBothShapes(t *testing.T) {
	var got struct {
		Roles RoleSet `json:"roles"`
	}
	if err := json.Unmarshal([]byte(`{"roles":["client",{"admin":true},{"editor":false},""]}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want := []string{"admin", "client"}; !reflect.DeepEqual(got.Roles.Names(), want) {
		t.Fatalf("names=%v, want %v", got.Roles.Names(), want)
	}

	out, err := json.Marshal(got.Roles)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `["admin","client"]` {
		t.Fatalf("unexpected encoding: %s", out)
	}

	if err := json.Unmarshal([]byte(`{"roles":[42]}`), &got); err == nil {
		t.Fatalf("expected error for numeric role")
	}
	if err := json.Unmarshal([]byte(`{"roles":"admin"}`), &got); err == nil {
		t.Fatalf("expected error for non-array roles")
	}
}

func TestAccountIsSuperadmin(t *testing.T) {
	cases := []struct {
		name    string
		account Account
		want    bool
	}{
		{"flag", Account{Superuser: true}, true},
		{"role", Account{Roles: NewRoleSet(RoleSuperadmin)}, true},
		{"alias role", Account{Roles: NewRoleSet(RoleSuperadminAlias)}, true},
		{"plain admin", Account{Roles: NewRoleSet("admin")}, false},
		{"nothing", Account{}, false},
	}
	for _, tc := range cases {
		if got := tc.account.IsSuperadmin(); got != tc.want {
			t.Fatalf("%s: IsSuperadmin=%v, want %v", tc.name, got, tc.want)
		}
	}
}
