package examplesvc

import (
	"context"
	"errors"

	"github.com/reactivedomain/reactivedomain/bus"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
	"github.com/reactivedomain/reactivedomain/repository"
)

const groupCategory = "group"

// StartGroup requests that group GroupId be started under Name with AdminId
// as its administrator.
type StartGroup struct {
	messaging.CorrelatedMessageBase
	GroupId messaging.MsgId
	Name    string
	AdminId messaging.MsgId
}

// StopGroup requests that group GroupId be stopped by AdminId.
type StopGroup struct {
	messaging.CorrelatedMessageBase
	GroupId messaging.MsgId
	AdminId messaging.MsgId
}

// Service wires the Group aggregate to a bus.Bus, following
// cmd/platform/main.go's handler-registration style: one repository per
// aggregate category, one SubscribeCommand call per command type.
type Service struct {
	Bus        bus.Bus
	Repository repository.Repository
}

// NewService returns a Service backed by repo and registers its command
// handlers on b. The caller owns b's and repo's lifecycle.
func NewService(b bus.Bus, repo repository.Repository) (*Service, error) {
	s := &Service{Bus: b, Repository: repo}
	if err := bus.SubscribeCommand(b, s.handleStartGroup); err != nil {
		return nil, err
	}
	if err := bus.SubscribeCommand(b, s.handleStopGroup); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) handleStartGroup(cmd *StartGroup) messaging.CommandResponse {
	ctx := context.Background()
	group := NewGroupForReplay(cmd.GroupId.String())
	found, err := s.Repository.TryGetByID(ctx, cmd.GroupId.String(), group)
	if err != nil {
		return messaging.Fail(cmd.MsgId(), rderrors.KindCommandException, err)
	}

	if !found {
		group, err = NewGroup(cmd, cmd.GroupId, cmd.Name, cmd.AdminId)
	} else {
		err = group.Start(cmd, cmd.Name, cmd.AdminId)
	}
	if err != nil {
		return messaging.Fail(cmd.MsgId(), rderrors.KindCommandException, err)
	}

	if err := s.Repository.Save(ctx, group, cmd.MsgId(), cmd.CorrelationId(), messaging.NewMetadata()); err != nil {
		return responseFromSaveError(cmd.MsgId(), err)
	}
	return messaging.Succeed(cmd.MsgId())
}

func (s *Service) handleStopGroup(cmd *StopGroup) messaging.CommandResponse {
	ctx := context.Background()
	group := NewGroupForReplay(cmd.GroupId.String())
	if err := s.Repository.GetByID(ctx, cmd.GroupId.String(), group); err != nil {
		return messaging.Fail(cmd.MsgId(), rderrors.KindCommandException, err)
	}

	if err := group.Stop(cmd); err != nil {
		return messaging.Fail(cmd.MsgId(), rderrors.KindCommandException, err)
	}

	if err := s.Repository.Save(ctx, group, cmd.MsgId(), cmd.CorrelationId(), messaging.NewMetadata()); err != nil {
		return responseFromSaveError(cmd.MsgId(), err)
	}
	return messaging.Succeed(cmd.MsgId())
}

func responseFromSaveError(sourceId messaging.MsgId, err error) messaging.CommandResponse {
	var conflict *rderrors.WrongExpectedVersionError
	if errors.As(err, &conflict) {
		return messaging.Fail(sourceId, rderrors.KindWrongExpectedVersion, conflict)
	}
	return messaging.Fail(sourceId, rderrors.KindCommandException, err)
}
