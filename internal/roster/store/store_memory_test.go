package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"casbot/internal/roster/models"
	"casbot/pkg/platform/sentinel"
	"casbot/pkg/requestcontext"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func (s *MemoryStoreSuite) TestUpsert() {
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)

	s.Run("inserts and stamps the verification time", func() {
		err := s.store.Upsert(ctx, models.Identity{PlatformID: "42", Name: "Asha Rao", Email: "asha@example.edu", RollNo: "2021101"})
		s.Require().NoError(err)

		got, err := s.store.FindByPlatformID(ctx, "42")
		s.Require().NoError(err)
		s.Equal("Asha Rao", got.Name)
		s.Equal(fixed, got.VerifiedAt)
	})

	s.Run("replaces the record for the same member", func() {
		err := s.store.Upsert(ctx, models.Identity{PlatformID: "42", Name: "Asha R", Email: "asha@example.edu", RollNo: "2021102"})
		s.Require().NoError(err)

		got, err := s.store.FindByPlatformID(ctx, "42")
		s.Require().NoError(err)
		s.Equal("Asha R", got.Name)
		s.Equal("2021102", got.RollNo)

		_, err = s.store.FindBySecondaryKey(ctx, "2021101")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("requires a platform id", func() {
		s.Error(s.store.Upsert(ctx, models.Identity{Name: "nobody"}))
	})
}

func (s *MemoryStoreSuite) TestFind() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, models.Identity{PlatformID: "7", Name: "Ravi", RollNo: "2020555"}))

	s.Run("by roll number", func() {
		got, err := s.store.FindBySecondaryKey(ctx, " 2020555 ")
		s.Require().NoError(err)
		s.Equal("7", got.PlatformID)
	})

	s.Run("unknown member", func() {
		_, err := s.store.FindByPlatformID(ctx, "8")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned record is a copy", func() {
		got, err := s.store.FindByPlatformID(ctx, "7")
		s.Require().NoError(err)
		got.Name = "changed"

		again, err := s.store.FindByPlatformID(ctx, "7")
		s.Require().NoError(err)
		s.Equal("Ravi", again.Name)
	})
}

func TestLazy(t *testing.T) {
	ctx := context.Background()
	lazy := NewLazy()

	if lazy.Ready() {
		t.Fatal("new Lazy should not be ready")
	}
	if _, err := lazy.FindByPlatformID(ctx, "1"); !isUnavailable(err) {
		t.Fatalf("FindByPlatformID before attach: got %v", err)
	}
	if err := lazy.Upsert(ctx, models.Identity{PlatformID: "1"}); !isUnavailable(err) {
		t.Fatalf("Upsert before attach: got %v", err)
	}

	lazy.Attach(NewInMemory())
	if !lazy.Ready() {
		t.Fatal("Lazy should be ready after attach")
	}
	if err := lazy.Upsert(ctx, models.Identity{PlatformID: "1", RollNo: "99"}); err != nil {
		t.Fatalf("Upsert after attach: %v", err)
	}
	got, err := lazy.FindBySecondaryKey(ctx, "99")
	if err != nil {
		t.Fatalf("FindBySecondaryKey after attach: %v", err)
	}
	if got.PlatformID != "1" {
		t.Fatalf("got platform id %q", got.PlatformID)
	}
}

func isUnavailable(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable)
}
