package policy

import (
	"errors"
	"testing"

	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

type addPolicyUser struct {
	messaging.CorrelatedMessageBase
}

func newSource() messaging.CorrelatedMessage {
	return &addPolicyUser{CorrelatedMessageBase: messaging.NewRootCorrelatedMessage()}
}

func TestNewPolicyUserRaisesAdded(t *testing.T) {
	source := newSource()
	id, policyID, userID := messaging.NewMsgId(), messaging.NewMsgId(), messaging.NewMsgId()

	p, err := NewPolicyUser(source, id, policyID, userID)
	if err != nil {
		t.Fatalf("NewPolicyUser: %v", err)
	}
	if !p.Active {
		t.Fatal("expected new PolicyUser to be active")
	}
	if p.ID != id || p.PolicyId != policyID || p.UserId != userID {
		t.Fatal("constructed PolicyUser fields do not match inputs")
	}

	events := p.TakeEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if _, ok := events[0].(*PolicyUserAdded); !ok {
		t.Fatalf("event type = %T, want *PolicyUserAdded", events[0])
	}
}

func TestAddRoleIsIdempotentUnderSameId(t *testing.T) {
	source := newSource()
	p, err := NewPolicyUser(source, messaging.NewMsgId(), messaging.NewMsgId(), messaging.NewMsgId())
	if err != nil {
		t.Fatalf("NewPolicyUser: %v", err)
	}
	p.TakeEvents()

	roleID := messaging.NewMsgId()
	source2 := newSource()
	if err := p.AddRole(source2, "Admin", roleID); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	if len(p.TakeEvents()) != 1 {
		t.Fatal("expected one RoleAdded event")
	}

	// Same role, different case, same id: idempotent no-op per scenario S4.
	source3 := newSource()
	if err := p.AddRole(source3, "admin", roleID); err != nil {
		t.Fatalf("AddRole (idempotent): %v", err)
	}
	if events := p.TakeEvents(); len(events) != 0 {
		t.Fatalf("expected no events for idempotent AddRole, got %d", len(events))
	}
	if _, ok := p.Roles["admin"]; !ok {
		t.Fatal("expected role to remain held")
	}
}

func TestAddRoleDuplicateNameDifferentIdFails(t *testing.T) {
	source := newSource()
	p, err := NewPolicyUser(source, messaging.NewMsgId(), messaging.NewMsgId(), messaging.NewMsgId())
	if err != nil {
		t.Fatalf("NewPolicyUser: %v", err)
	}
	p.TakeEvents()

	if err := p.AddRole(newSource(), "Admin", messaging.NewMsgId()); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	p.TakeEvents()

	err = p.AddRole(newSource(), "admin", messaging.NewMsgId())
	if err == nil {
		t.Fatal("expected DuplicateRole error")
	}
	if !errors.Is(err, rderrors.ErrDuplicateRole) {
		t.Fatalf("err = %v, want ErrDuplicateRole", err)
	}
}

func TestRemoveRoleIsNoopWhenAbsent(t *testing.T) {
	source := newSource()
	p, err := NewPolicyUser(source, messaging.NewMsgId(), messaging.NewMsgId(), messaging.NewMsgId())
	if err != nil {
		t.Fatalf("NewPolicyUser: %v", err)
	}
	p.TakeEvents()

	if err := p.RemoveRole(newSource(), "nonexistent"); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}
	if events := p.TakeEvents(); len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestDeactivateThenReactivateRestoresRoles(t *testing.T) {
	source := newSource()
	p, err := NewPolicyUser(source, messaging.NewMsgId(), messaging.NewMsgId(), messaging.NewMsgId())
	if err != nil {
		t.Fatalf("NewPolicyUser: %v", err)
	}
	p.TakeEvents()

	adminID, viewerID := messaging.NewMsgId(), messaging.NewMsgId()
	if err := p.AddRole(newSource(), "admin", adminID); err != nil {
		t.Fatalf("AddRole admin: %v", err)
	}
	if err := p.AddRole(newSource(), "viewer", viewerID); err != nil {
		t.Fatalf("AddRole viewer: %v", err)
	}
	p.TakeEvents()

	if err := p.Deactivate(newSource()); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	events := p.TakeEvents()
	if len(events) != 3 { // one PolicyUserDeactivated + two RoleRemoved
		t.Fatalf("events = %d, want 3", len(events))
	}
	if p.Active {
		t.Fatal("expected PolicyUser to be inactive")
	}
	if len(p.Roles) != 0 {
		t.Fatalf("expected no roles held after deactivate, got %d", len(p.Roles))
	}

	restored := map[string]messaging.MsgId{"admin": adminID, "viewer": viewerID}
	if err := p.Reactivate(newSource(), restored); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	events = p.TakeEvents()
	if len(events) != 3 { // one PolicyUserReactivated + two RoleAdded
		t.Fatalf("events = %d, want 3", len(events))
	}
	if !p.Active {
		t.Fatal("expected PolicyUser to be active again")
	}
	if p.Roles["admin"] != adminID || p.Roles["viewer"] != viewerID {
		t.Fatal("expected roles to be restored with their original ids")
	}
}

func TestDeactivateIsNoopWhenAlreadyInactive(t *testing.T) {
	source := newSource()
	p, err := NewPolicyUser(source, messaging.NewMsgId(), messaging.NewMsgId(), messaging.NewMsgId())
	if err != nil {
		t.Fatalf("NewPolicyUser: %v", err)
	}
	p.TakeEvents()

	if err := p.Deactivate(newSource()); err != nil {
		t.Fatalf("first Deactivate: %v", err)
	}
	p.TakeEvents()

	if err := p.Deactivate(newSource()); err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}
	if events := p.TakeEvents(); len(events) != 0 {
		t.Fatalf("expected no-op second Deactivate, got %d events", len(events))
	}
}

func TestPolicyUserReplayRoundTrips(t *testing.T) {
	source := newSource()
	p, err := NewPolicyUser(source, messaging.NewMsgId(), messaging.NewMsgId(), messaging.NewMsgId())
	if err != nil {
		t.Fatalf("NewPolicyUser: %v", err)
	}
	roleID := messaging.NewMsgId()
	if err := p.AddRole(newSource(), "admin", roleID); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	events := p.TakeEvents()

	replayed := NewPolicyUserForReplay(p.AggregateID())
	replayed.RestoreFromEvents(events)

	if !replayed.Active {
		t.Fatal("expected replayed PolicyUser to be active")
	}
	if replayed.Roles["admin"] != roleID {
		t.Fatal("expected replayed role to match")
	}
}
