package policy

import (
	"reflect"
	"testing"

	"github.com/reactivedomain/reactivedomain/messaging"
)

type grantCaseCommand struct {
	messaging.CorrelatedMessageBase
}

func TestEffectivePermissionsUnionsRoles(t *testing.T) {
	p := &UserPolicy{
		Roles: []Role{
			{Name: "caseWorker", Permissions: []PermissionName{"case.read", "case.update"}},
			{Name: "viewer", Permissions: []PermissionName{"case.read", "document.read"}},
		},
	}

	perms := p.EffectivePermissions()
	want := map[PermissionName]bool{"case.read": true, "case.update": true, "document.read": true}
	if len(perms) != len(want) {
		t.Fatalf("got %d effective permissions, want %d", len(perms), len(want))
	}
	for _, perm := range perms {
		if !want[perm] {
			t.Fatalf("unexpected permission %q", perm)
		}
	}
}

func TestCanSendMatchesByName(t *testing.T) {
	p := &UserPolicy{
		Roles: []Role{{Name: "caller", Permissions: []PermissionName{"grantCaseCommand"}}},
	}
	if !p.CanSend(reflect.TypeOf(&grantCaseCommand{})) {
		t.Fatal("expected CanSend to match by short type name")
	}
}

func TestCanSendMatchesByRegistryResolvedType(t *testing.T) {
	reg := messaging.NewRegistry()
	cmdType := reflect.TypeOf(grantCaseCommand{})
	if err := reg.Register(cmdType); err != nil {
		t.Fatalf("register: %v", err)
	}
	qualified := cmdType.PkgPath() + "." + cmdType.Name()

	p := &UserPolicy{
		Roles:    []Role{{Name: "caller", Permissions: []PermissionName{PermissionName(qualified)}}},
		Registry: reg,
	}
	if !p.CanSend(reflect.TypeOf(&grantCaseCommand{})) {
		t.Fatal("expected CanSend to resolve the qualified name via Registry")
	}
}

func TestCanSendDeniesUnknownPermission(t *testing.T) {
	p := &UserPolicy{Roles: []Role{{Name: "caller", Permissions: []PermissionName{"unrelated.permission"}}}}
	if p.CanSend(reflect.TypeOf(&grantCaseCommand{})) {
		t.Fatal("expected CanSend to deny an unrelated permission")
	}
}
