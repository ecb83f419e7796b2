package service

import (
	"context"
	"errors"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/metrics"
	"github.com/joeyave/bookclub/repository"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

// RepairService reconciles the membership references kept on both clubs and
// users, and sweeps expired revocations.
type RepairService struct {
	transactor      Transactor
	userRepository  UserRepository
	clubRepository  ClubRepository
	revocationStore RevocationStore
}

func NewRepairService(transactor Transactor, userRepository UserRepository, clubRepository ClubRepository, revocationStore RevocationStore) *RepairService {
	return &RepairService{
		transactor:      transactor,
		userRepository:  userRepository,
		clubRepository:  clubRepository,
		revocationStore: revocationStore,
	}
}

type RepairReport struct {
	ClubsFixed       int `json:"clubsFixed"`
	UserLinksAdded   int `json:"userLinksAdded"`
	UserLinksRemoved int `json:"userLinksRemoved"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
}

func (r RepairReport) Changed() bool {
	return r.ClubsFixed+r.UserLinksAdded+r.UserLinksRemoved > 0
}

// RepairMemberships makes every club list its admin as a member with a
// matching count, links every member back to the club and drops user
// references to clubs that no longer hold them.
//
// Each club and each user is repaired in its own transaction that re-reads
// the documents it decides on, so memberships changed while the pass runs
// are left alone. Clubs that change under the pass are skipped until the
// next run. Individual failures are logged and counted.
func (s *RepairService) RepairMemberships(ctx context.Context) (*RepairReport, error) {
	clubs, err := s.clubRepository.FindAll(ctx)
	if err != nil {
		return nil, Unexpected(err, "failed to load clubs")
	}

	report := &RepairReport{}
	for _, club := range clubs {
		fixed, added, err := s.repairClub(ctx, club.ID)
		switch {
		case errors.Is(err, repository.ErrConflict):
			log.Debug().Str("club", club.ID.Hex()).Msg("Club changed during repair, skipping")
			report.Skipped++
		case err != nil:
			log.Error().Err(err).Str("club", club.ID.Hex()).Msg("Failed to repair club members")
			report.Failed++
		default:
			if fixed {
				report.ClubsFixed++
			}
			report.UserLinksAdded += added
		}
	}

	users, err := s.userRepository.FindAll(ctx)
	if err != nil {
		return nil, Unexpected(err, "failed to load users")
	}
	for _, u := range users {
		removed, err := s.repairUserLinks(ctx, u.ID)
		if err != nil {
			log.Error().Err(err).Str("user", u.ID.Hex()).Msg("Failed to drop dangling club references")
			report.Failed++
			continue
		}
		report.UserLinksRemoved += removed
	}

	metrics.RecordRepair("club", report.ClubsFixed)
	metrics.RecordRepair("link_added", report.UserLinksAdded)
	metrics.RecordRepair("link_removed", report.UserLinksRemoved)

	return report, nil
}

// repairClub reconciles the members of one club against the users that
// exist now and adds the missing back-links.
func (s *RepairService) repairClub(ctx context.Context, clubID bson.ObjectID) (fixed bool, added int, err error) {
	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		fixed, added = false, 0

		club, err := s.clubRepository.FindOneByID(ctx, clubID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		existing, err := s.existingUsers(ctx, append(slices.Clone(club.Members), club.Admin))
		if err != nil {
			return err
		}

		members := reconcileMembers(club, existing)
		if club.MembersCount != len(members) || !slices.Equal(members, club.Members) {
			if err := s.clubRepository.SetMembers(ctx, club.ID, club.Members, members); err != nil {
				return err
			}
			club.Members = members
			fixed = true
		}

		for _, id := range members {
			if !existing[id] {
				continue
			}
			u, err := s.userRepository.FindOneByID(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			asAdmin := club.IsAdmin(id)
			if u.IsMemberOf(club.ID) && (!asAdmin || u.IsAdminOf(club.ID)) {
				continue
			}
			if err := s.userRepository.AddClub(ctx, id, club.ID, asAdmin); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	return fixed, added, err
}

// repairUserLinks pulls the club references of one user that the clubs
// themselves no longer back.
func (s *RepairService) repairUserLinks(ctx context.Context, userID bson.ObjectID) (removed int, err error) {
	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		removed = 0

		u, err := s.userRepository.FindOneByID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		clubs := map[bson.ObjectID]*entity.Club{}
		club := func(id bson.ObjectID) (*entity.Club, error) {
			if c, ok := clubs[id]; ok {
				return c, nil
			}
			c, err := s.clubRepository.FindOneByID(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				err = nil
			}
			clubs[id] = c
			return c, err
		}

		pulled := map[bson.ObjectID]bool{}
		for _, clubID := range u.MemberClubs {
			c, err := club(clubID)
			if err != nil {
				return err
			}
			if c != nil && c.IsMember(u.ID) {
				continue
			}
			if err := s.userRepository.PullClub(ctx, u.ID, clubID); err != nil {
				return err
			}
			pulled[clubID] = true
			removed++
		}
		for _, clubID := range u.AdminClubs {
			if pulled[clubID] {
				continue
			}
			c, err := club(clubID)
			if err != nil {
				return err
			}
			if c != nil && c.IsAdmin(u.ID) {
				continue
			}
			if err := s.userRepository.PullAdminClub(ctx, u.ID, clubID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// existingUsers reports which of ids belong to users that exist.
func (s *RepairService) existingUsers(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]bool, error) {
	summaries, err := s.userRepository.FindSummariesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	existing := make(map[bson.ObjectID]bool, len(summaries))
	for _, u := range summaries {
		existing[u.ID] = true
	}
	return existing, nil
}

// reconcileMembers drops duplicates and deleted users and puts the admin
// first when missing.
func reconcileMembers(club *entity.Club, existing map[bson.ObjectID]bool) []bson.ObjectID {
	seen := make(map[bson.ObjectID]bool, len(club.Members)+1)
	members := make([]bson.ObjectID, 0, len(club.Members)+1)
	if !club.IsMember(club.Admin) {
		seen[club.Admin] = true
		members = append(members, club.Admin)
	}
	for _, id := range club.Members {
		if seen[id] {
			continue
		}
		if !existing[id] && id != club.Admin {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	return members
}

// PurgeExpiredTokens removes revocations whose tokens have expired anyway.
func (s *RepairService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.revocationStore.PurgeExpired(ctx)
	if err != nil {
		return 0, Unexpected(err, "failed to purge expired tokens")
	}
	return n, nil
}
