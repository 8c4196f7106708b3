// Package examplesvc is a worked usage example wiring bus, aggregate,
// repository and streamstore together the way a real host application
// would, following cmd/platform/main.go's wiring style and
// internal/case/domain/case.go's aggregate-raises-domain-events idiom. It
// implements the literal Group example spec §8 walks through.
package examplesvc

import (
	"github.com/reactivedomain/reactivedomain/aggregate"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

// GroupStarted is raised when a group is first started, and again each time
// a stopped group is started.
type GroupStarted struct {
	messaging.CorrelatedMessageBase
	GroupId       messaging.MsgId
	Name          string
	AdminId       messaging.MsgId
	SchemaVersion int
}

// GroupStopped is raised every time a group is stopped, including repeat
// stops: unlike Start, Stop is not idempotent (§8 S3 relies on this to
// produce a genuine concurrency conflict between two independent stops).
type GroupStopped struct {
	messaging.CorrelatedMessageBase
	GroupId       messaging.MsgId
	Name          string
	AdminId       messaging.MsgId
	SchemaVersion int
}

// Group is the example aggregate: a named group with one admin, started and
// stopped by its admin.
type Group struct {
	aggregate.CorrelatedBase

	ID      messaging.MsgId
	Name    string
	AdminId messaging.MsgId
	Active  bool
}

// NewGroupForReplay returns a Group with its event routes registered but no
// state, for a repository to populate via RestoreFromEvents.
func NewGroupForReplay(id string) *Group {
	g := &Group{CorrelatedBase: aggregate.NewCorrelatedBase(id)}
	_ = aggregate.Register[*GroupStarted](&g.Base, g.applyStarted)
	_ = aggregate.Register[*GroupStopped](&g.Base, g.applyStopped)
	return g
}

// NewGroup constructs a brand-new group and raises GroupStarted, correlated
// with source (the StartGroup command that created it).
func NewGroup(source messaging.CorrelatedMessage, id messaging.MsgId, name string, adminId messaging.MsgId) (*Group, error) {
	g := NewGroupForReplay(id.String())
	g.SetSource(source)
	if err := g.Raise(&GroupStarted{
		CorrelatedMessageBase: messaging.NewCorrelatedMessage(source),
		GroupId:               id,
		Name:                  name,
		AdminId:               adminId,
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// Start re-raises GroupStarted on an already-loaded group. A repeat Start
// under the same name and admin as the group's current state is a no-op
// (§8 S2); a Start naming a different name or admin on an active group is
// rejected. Calling Start on a stopped group reactivates it.
func (g *Group) Start(source messaging.CorrelatedMessage, name string, adminId messaging.MsgId) error {
	if g.Active {
		if g.Name == name && g.AdminId == adminId {
			return nil
		}
		return rderrors.InvalidOperation("examplesvc.Group.Start: already active under different name or admin")
	}
	g.SetSource(source)
	return g.Raise(&GroupStarted{
		CorrelatedMessageBase: messaging.NewCorrelatedMessage(source),
		GroupId:               g.ID,
		Name:                  name,
		AdminId:               adminId,
	})
}

// Stop raises GroupStopped unconditionally, regardless of whether the group
// is currently active. This is what makes §8 S3's concurrency scenario
// possible: two independently loaded copies of the same already-stopped
// group both accept a further Stop and race to save it.
func (g *Group) Stop(source messaging.CorrelatedMessage) error {
	g.SetSource(source)
	return g.Raise(&GroupStopped{
		CorrelatedMessageBase: messaging.NewCorrelatedMessage(source),
		GroupId:               g.ID,
		Name:                  g.Name,
		AdminId:               g.AdminId,
	})
}

func (g *Group) applyStarted(e *GroupStarted) {
	g.ID = e.GroupId
	g.Name = e.Name
	g.AdminId = e.AdminId
	g.Active = true
}

func (g *Group) applyStopped(e *GroupStopped) {
	g.Active = false
}
