package effector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"casbot/internal/chat"
	"casbot/internal/chat/chattest"
	"casbot/internal/policy"
	"casbot/internal/roster/models"
	"casbot/internal/roster/store"
	"casbot/pkg/platform/sentinel"
)

const (
	communityID = int64(1234567890)
	memberID    = "42"
	mention     = "<@42>"
)

type EffectorSuite struct {
	suite.Suite
	roster    *store.InMemoryStore
	community *chattest.Community
	replies   *chattest.Recorder
}

func TestEffectorSuite(t *testing.T) {
	suite.Run(t, new(EffectorSuite))
}

func (s *EffectorSuite) SetupTest() {
	s.roster = store.NewInMemory()
	s.Require().NoError(s.roster.Upsert(context.Background(), models.Identity{
		PlatformID: memberID, Name: "Asha Rao", Email: "asha@example.edu", RollNo: "2021101",
	}))
	s.community = chattest.NewCommunity(communityID, "Member", "Guest")
	s.replies = &chattest.Recorder{}
}

func (s *EffectorSuite) effector(policies ...policy.Policy) *Effector {
	return New(policy.NewSet(policies...), s.roster)
}

func (s *EffectorSuite) invocation() chat.Invocation {
	return chat.Invocation{UserID: memberID, Mention: mention, Community: s.community}
}

func (s *EffectorSuite) TestDirectMessage() {
	e := s.effector()
	err := e.Apply(context.Background(), chat.Invocation{UserID: memberID, Mention: mention}, s.replies)
	s.Require().NoError(err)
	s.Equal([]chat.Message{chat.Public(MsgVerifiedDM, mention)}, s.replies.Messages())
}

func (s *EffectorSuite) TestUnauthorizedCommunity() {
	e := s.effector(policy.Policy{ServerID: 1, GrantRoles: policy.Roles{"Member"}})

	err := e.Apply(context.Background(), s.invocation(), s.replies)
	s.ErrorIs(err, ErrNotAuthorized)
	s.True(s.community.HasLeft())
	s.Equal([]chat.Message{chat.Private(MsgUnauthorized)}, s.replies.Messages())
	s.Empty(s.community.HeldRoleNames(memberID))
}

func (s *EffectorSuite) TestAppliesPolicy() {
	s.Run("grants, creates and revokes roles", func() {
		s.SetupTest()
		s.community.Give(memberID, "Guest")
		e := s.effector(policy.Policy{
			ServerID:    communityID,
			GrantRoles:  policy.Roles{"Member", "Student"},
			DeleteRoles: policy.Roles{"Guest", "Visitor"},
		})

		err := e.Apply(context.Background(), s.invocation(), s.replies)
		s.Require().NoError(err)
		s.Equal([]string{"Member", "Student"}, s.community.HeldRoleNames(memberID))
		s.Equal([]string{fmt.Sprintf(MsgVerified, mention)}, s.replies.Contents())
		s.Empty(s.community.Nicknames)
	})

	s.Run("sets the real name when requested", func() {
		s.SetupTest()
		e := s.effector(policy.Policy{ServerID: communityID, GrantRoles: policy.Roles{"Member"}, SetRealName: true})

		err := e.Apply(context.Background(), s.invocation(), s.replies)
		s.Require().NoError(err)
		s.Equal("Asha Rao", s.community.Nicknames[memberID])
	})

	s.Run("empty grant list only confirms", func() {
		s.SetupTest()
		e := s.effector(policy.Policy{ServerID: communityID})

		err := e.Apply(context.Background(), s.invocation(), s.replies)
		s.Require().NoError(err)
		s.Empty(s.community.HeldRoleNames(memberID))
		s.Len(s.replies.Messages(), 1)
	})

	s.Run("applying twice is harmless", func() {
		s.SetupTest()
		e := s.effector(policy.Policy{ServerID: communityID, GrantRoles: policy.Roles{"Student"}})

		s.Require().NoError(e.Apply(context.Background(), s.invocation(), s.replies))
		s.Require().NoError(e.Apply(context.Background(), s.invocation(), s.replies))

		roles, err := s.community.ListRoles(context.Background())
		s.Require().NoError(err)
		s.Len(roles, 3)
		s.Equal([]string{"Student"}, s.community.HeldRoleNames(memberID))
	})
}

func (s *EffectorSuite) TestNicknameFailureIsNonFatal() {
	s.community.RenameErr = fmt.Errorf("rename: %w", chat.ErrForbidden)
	e := s.effector(policy.Policy{ServerID: communityID, GrantRoles: policy.Roles{"Member"}, SetRealName: true})

	err := e.Apply(context.Background(), s.invocation(), s.replies)
	s.Require().NoError(err)
	s.Equal([]chat.Message{
		chat.Private(MsgNicknameDenied),
		chat.Public(MsgVerified, mention),
	}, s.replies.Messages())
	s.Equal([]string{"Member"}, s.community.HeldRoleNames(memberID))
}

func (s *EffectorSuite) TestNicknameErrorsOtherThanPermissionSurface() {
	policyWithName := policy.Policy{ServerID: communityID, GrantRoles: policy.Roles{"Member"}, SetRealName: true}

	s.Run("rename transport failure", func() {
		s.SetupTest()
		s.community.RenameErr = errors.New("gateway timeout")

		err := s.effector(policyWithName).Apply(context.Background(), s.invocation(), s.replies)
		s.Require().Error(err)
		s.NotErrorIs(err, chat.ErrForbidden)
		s.Empty(s.replies.Messages(), "no permission hint and no confirmation")
	})

	s.Run("roster unavailable", func() {
		s.SetupTest()
		e := New(policy.NewSet(policyWithName), store.NewLazy())

		err := e.Apply(context.Background(), s.invocation(), s.replies)
		s.ErrorIs(err, sentinel.ErrUnavailable)
		s.Empty(s.replies.Messages())
		s.Empty(s.community.Nicknames)
	})

	s.Run("cancelled", func() {
		s.SetupTest()
		s.community.RenameErr = context.Canceled

		err := s.effector(policyWithName).Apply(context.Background(), s.invocation(), s.replies)
		s.ErrorIs(err, context.Canceled)
		s.Empty(s.replies.Messages())
	})
}

func (s *EffectorSuite) TestRoleFailuresSurface() {
	s.Run("grant", func() {
		s.SetupTest()
		s.community.GrantErr = chat.ErrForbidden
		e := s.effector(policy.Policy{ServerID: communityID, GrantRoles: policy.Roles{"Member"}})

		err := e.Apply(context.Background(), s.invocation(), s.replies)
		s.ErrorIs(err, chat.ErrForbidden)
		s.Empty(s.replies.Messages())
	})

	s.Run("create", func() {
		s.SetupTest()
		s.community.CreateErr = errors.New("boom")
		e := s.effector(policy.Policy{ServerID: communityID, GrantRoles: policy.Roles{"Alumni"}})

		err := e.Apply(context.Background(), s.invocation(), s.replies)
		s.Error(err)
		s.Empty(s.community.HeldRoleNames(memberID))
	})
}
