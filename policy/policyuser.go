package policy

import (
	"strings"

	"github.com/reactivedomain/reactivedomain/aggregate"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

// PolicyUserAdded is raised once, when a PolicyUser is first created.
type PolicyUserAdded struct {
	messaging.CorrelatedMessageBase
	ID       messaging.MsgId
	PolicyId messaging.MsgId
	UserId   messaging.MsgId
}

// RoleAdded is raised whenever a new role is granted (including a role
// reactivated by Reactivate).
type RoleAdded struct {
	messaging.CorrelatedMessageBase
	Name   string
	RoleId messaging.MsgId
}

// RoleRemoved is raised whenever a role is revoked, including the implicit
// revocations Deactivate issues for every role held at the time.
type RoleRemoved struct {
	messaging.CorrelatedMessageBase
	Name   string
	RoleId messaging.MsgId
}

// PolicyUserDeactivated is raised by Deactivate.
type PolicyUserDeactivated struct {
	messaging.CorrelatedMessageBase
}

// PolicyUserReactivated is raised by Reactivate.
type PolicyUserReactivated struct {
	messaging.CorrelatedMessageBase
}

// PolicyUser tracks one user's membership and roles within a policy.
// Grounded on internal/case/domain/case.go's aggregate-raises-domain-events
// idiom, generalized from case lifecycle transitions to role grants.
type PolicyUser struct {
	aggregate.CorrelatedBase

	ID       messaging.MsgId
	PolicyId messaging.MsgId
	UserId   messaging.MsgId
	Roles    map[string]messaging.MsgId // lower-cased role name -> role id
	Active   bool
}

// NewPolicyUser constructs a new PolicyUser and raises PolicyUserAdded,
// correlated with source (the AddPolicyUser-style command that created it).
func NewPolicyUser(source messaging.CorrelatedMessage, id, policyId, userId messaging.MsgId) (*PolicyUser, error) {
	p := NewPolicyUserForReplay(id.String())
	p.SetSource(source)
	if err := p.Raise(&PolicyUserAdded{
		CorrelatedMessageBase: messaging.NewCorrelatedMessage(source),
		ID:                    id,
		PolicyId:              policyId,
		UserId:                userId,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPolicyUserForReplay returns a PolicyUser with its event routes
// registered but no state, for a repository to populate via
// RestoreFromEvents.
func NewPolicyUserForReplay(id string) *PolicyUser {
	p := &PolicyUser{CorrelatedBase: aggregate.NewCorrelatedBase(id)}
	_ = aggregate.Register[*PolicyUserAdded](&p.Base, p.applyAdded)
	_ = aggregate.Register[*RoleAdded](&p.Base, p.applyRoleAdded)
	_ = aggregate.Register[*RoleRemoved](&p.Base, p.applyRoleRemoved)
	_ = aggregate.Register[*PolicyUserDeactivated](&p.Base, p.applyDeactivated)
	_ = aggregate.Register[*PolicyUserReactivated](&p.Base, p.applyReactivated)
	return p
}

// AddRole grants name/roleId. Adding a role whose case-insensitive name is
// already held under the same id is a no-op; under a different id it fails
// with rderrors.ErrDuplicateRole.
func (p *PolicyUser) AddRole(source messaging.CorrelatedMessage, name string, roleId messaging.MsgId) error {
	key := strings.ToLower(name)
	if existing, ok := p.Roles[key]; ok {
		if existing != roleId {
			return rderrors.DuplicateRole("policy.PolicyUser.AddRole: " + name)
		}
		return nil
	}
	p.SetSource(source)
	return p.Raise(&RoleAdded{
		CorrelatedMessageBase: messaging.NewCorrelatedMessage(source),
		Name:                  name,
		RoleId:                roleId,
	})
}

// RemoveRole revokes name, a no-op if it isn't currently held.
func (p *PolicyUser) RemoveRole(source messaging.CorrelatedMessage, name string) error {
	key := strings.ToLower(name)
	roleId, ok := p.Roles[key]
	if !ok {
		return nil
	}
	p.SetSource(source)
	return p.Raise(&RoleRemoved{
		CorrelatedMessageBase: messaging.NewCorrelatedMessage(source),
		Name:                  name,
		RoleId:                roleId,
	})
}

// Deactivate raises PolicyUserDeactivated followed by one RoleRemoved per
// role held at the time, captured before deactivation clears them, so
// Reactivate can raise the literal inverse. A no-op if already inactive.
func (p *PolicyUser) Deactivate(source messaging.CorrelatedMessage) error {
	if !p.Active {
		return nil
	}
	p.SetSource(source)
	held := make(map[string]messaging.MsgId, len(p.Roles))
	for name, id := range p.Roles {
		held[name] = id
	}
	if err := p.Raise(&PolicyUserDeactivated{CorrelatedMessageBase: messaging.NewCorrelatedMessage(source)}); err != nil {
		return err
	}
	for name, roleId := range held {
		if err := p.Raise(&RoleRemoved{
			CorrelatedMessageBase: messaging.NewCorrelatedMessage(source),
			Name:                  name,
			RoleId:                roleId,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Reactivate raises PolicyUserReactivated followed by one RoleAdded per
// entry in roles. A no-op if already active.
func (p *PolicyUser) Reactivate(source messaging.CorrelatedMessage, roles map[string]messaging.MsgId) error {
	if p.Active {
		return nil
	}
	p.SetSource(source)
	if err := p.Raise(&PolicyUserReactivated{CorrelatedMessageBase: messaging.NewCorrelatedMessage(source)}); err != nil {
		return err
	}
	for name, roleId := range roles {
		if err := p.Raise(&RoleAdded{
			CorrelatedMessageBase: messaging.NewCorrelatedMessage(source),
			Name:                  name,
			RoleId:                roleId,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *PolicyUser) applyAdded(e *PolicyUserAdded) {
	p.ID = e.ID
	p.PolicyId = e.PolicyId
	p.UserId = e.UserId
	p.Roles = make(map[string]messaging.MsgId)
	p.Active = true
}

func (p *PolicyUser) applyRoleAdded(e *RoleAdded) {
	if p.Roles == nil {
		p.Roles = make(map[string]messaging.MsgId)
	}
	p.Roles[strings.ToLower(e.Name)] = e.RoleId
}

func (p *PolicyUser) applyRoleRemoved(e *RoleRemoved) {
	delete(p.Roles, strings.ToLower(e.Name))
}

func (p *PolicyUser) applyDeactivated(*PolicyUserDeactivated) {
	p.Active = false
}

func (p *PolicyUser) applyReactivated(*PolicyUserReactivated) {
	p.Active = true
}
