package service

import (
	"context"
	"testing"
	"time"

	"github.com/joeyave/bookclub/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestRepairService_RepairMemberships(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")
	cy := f.user(t, "Cy")
	club := f.club(t, ana, "Night Readers", bo)

	// Break both sides: the admin and a deleted user in members, Bo's
	// back-reference gone, Cy pointing at the club and at one that is gone.
	require.NoError(t, f.store.Clubs().SetMembers(f.ctx, club.ID, club.Members, []bson.ObjectID{bo.ID, missingID, bo.ID}))
	require.NoError(t, f.store.Users().PullClub(f.ctx, bo.ID, club.ID))
	require.NoError(t, f.store.Users().AddClub(f.ctx, cy.ID, club.ID, true))
	require.NoError(t, f.store.Users().AddClub(f.ctx, cy.ID, missingID, false))

	report, err := f.repair.RepairMemberships(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ClubsFixed)
	assert.Equal(t, 1, report.UserLinksAdded)
	assert.Equal(t, 2, report.UserLinksRemoved)
	assert.Zero(t, report.Failed)

	repaired, err := f.store.Clubs().FindOneByID(f.ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{ana.ID, bo.ID}, repaired.Members)
	assert.Equal(t, 2, repaired.MembersCount)

	assert.True(t, f.reload(t, bo).IsMemberOf(club.ID))
	cy = f.reload(t, cy)
	assert.Empty(t, cy.MemberClubs)
	assert.Empty(t, cy.AdminClubs)

	report, err = f.repair.RepairMemberships(f.ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}

// clubsListedThen runs hook once, right after the club list is read.
type clubsListedThen struct {
	ClubRepository
	hook func()
}

func (r *clubsListedThen) FindAll(ctx context.Context) ([]*entity.Club, error) {
	clubs, err := r.ClubRepository.FindAll(ctx)
	if r.hook != nil {
		r.hook()
		r.hook = nil
	}
	return clubs, err
}

// usersListedThen runs hook once, right after the user list is read.
type usersListedThen struct {
	UserRepository
	hook func()
}

func (r *usersListedThen) FindAll(ctx context.Context) ([]*entity.User, error) {
	users, err := r.UserRepository.FindAll(ctx)
	if r.hook != nil {
		r.hook()
		r.hook = nil
	}
	return users, err
}

func requireLinked(t *testing.T, f *fixture, user *entity.User, clubID bson.ObjectID) {
	t.Helper()
	club, err := f.store.Clubs().FindOneByID(f.ctx, clubID)
	require.NoError(t, err)
	assert.True(t, club.IsMember(user.ID), "%s missing from club members", user.Name)
	assert.Equal(t, len(club.Members), club.MembersCount)
	assert.True(t, f.reload(t, user).IsMemberOf(clubID), "%s lost the club reference", user.Name)
}

func TestRepairService_KeepsMembersWhoJoinDuringPass(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")
	club := f.club(t, ana, "Night Readers", bo)
	require.NoError(t, f.store.Clubs().SetMembers(f.ctx, club.ID, club.Members, []bson.ObjectID{ana.ID, bo.ID, bo.ID}))

	var late *entity.User
	clubs := &clubsListedThen{ClubRepository: f.store.Clubs(), hook: func() {
		late = f.user(t, "Late")
		_, err := f.clubs.Join(f.ctx, late, club.ID)
		require.NoError(t, err)
	}}
	repair := NewRepairService(f.store, f.store.Users(), clubs, f.store.Tokens())

	report, err := repair.RepairMemberships(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ClubsFixed)
	assert.Zero(t, report.UserLinksRemoved)
	assert.Zero(t, report.Failed)

	repaired, err := f.store.Clubs().FindOneByID(f.ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{ana.ID, bo.ID, late.ID}, repaired.Members)
	requireLinked(t, f, late, club.ID)
	requireLinked(t, f, bo, club.ID)
}

func TestRepairService_KeepsLinksCreatedAfterClubPass(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	cy := f.user(t, "Cy")
	club := f.club(t, ana, "Night Readers")

	var late *entity.User
	users := &usersListedThen{UserRepository: f.store.Users(), hook: func() {
		_, err := f.clubs.Join(f.ctx, cy, club.ID)
		require.NoError(t, err)
		late = f.user(t, "Late")
		_, err = f.clubs.Join(f.ctx, late, club.ID)
		require.NoError(t, err)
	}}
	repair := NewRepairService(f.store, users, f.store.Clubs(), f.store.Tokens())

	report, err := repair.RepairMemberships(f.ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Zero(t, report.Failed)

	requireLinked(t, f, cy, club.ID)
	requireLinked(t, f, late, club.ID)
}

// staleClubOnce serves one outdated copy of a club, as a read that raced a
// concurrent write would.
type staleClubOnce struct {
	ClubRepository
	stale *entity.Club
}

func (r *staleClubOnce) FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.Club, error) {
	if r.stale != nil && r.stale.ID == id {
		club := r.stale
		r.stale = nil
		return club, nil
	}
	return r.ClubRepository.FindOneByID(ctx, id)
}

func TestRepairService_SkipsClubChangedUnderIt(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")
	club := f.club(t, ana, "Night Readers")
	require.NoError(t, f.store.Clubs().SetMembers(f.ctx, club.ID, club.Members, []bson.ObjectID{ana.ID, ana.ID}))

	stale, err := f.store.Clubs().FindOneByID(f.ctx, club.ID)
	require.NoError(t, err)
	_, err = f.clubs.Join(f.ctx, bo, club.ID)
	require.NoError(t, err)

	clubs := &staleClubOnce{ClubRepository: f.store.Clubs(), stale: stale}
	report, err := NewRepairService(f.store, f.store.Users(), clubs, f.store.Tokens()).RepairMemberships(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.ClubsFixed)
	assert.Zero(t, report.Failed)
	requireLinked(t, f, bo, club.ID)

	report, err = f.repair.RepairMemberships(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ClubsFixed)
	assert.Zero(t, report.Skipped)

	repaired, err := f.store.Clubs().FindOneByID(f.ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{ana.ID, bo.ID}, repaired.Members)
	requireLinked(t, f, bo, club.ID)
}

func TestRepairService_PurgeExpiredTokens(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Tokens().Revoke(f.ctx, "old", time.Now().Add(-time.Minute)))
	require.NoError(t, f.store.Tokens().Revoke(f.ctx, "live", time.Now().Add(time.Hour)))

	n, err := f.repair.PurgeExpiredTokens(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revoked, err := f.store.Tokens().IsRevoked(f.ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
}
