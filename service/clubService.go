package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"
	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/metrics"
	"github.com/joeyave/bookclub/repository"
	"github.com/joeyave/bookclub/storage"
	"github.com/joeyave/bookclub/util"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var clubSort = sortSpec{
	fields:      []string{"createdAt", "name", "membersCount"},
	fallback:    "createdAt",
	defaultDesc: true,
}

type ClubService struct {
	transactor     Transactor
	clubRepository ClubRepository
	userRepository UserRepository
	meetRepository MeetRepository
	assets         AssetStore
	defaultLocale  string
}

func NewClubService(transactor Transactor, clubRepository ClubRepository, userRepository UserRepository, meetRepository MeetRepository, assets AssetStore, defaultLocale string) *ClubService {
	return &ClubService{
		transactor:     transactor,
		clubRepository: clubRepository,
		userRepository: userRepository,
		meetRepository: meetRepository,
		assets:         assets,
		defaultLocale:  defaultLocale,
	}
}

type ClubInput struct {
	Name        string
	Description string
	Rules       []string
}

// Create stores the banner, then inserts the club and links it to its
// admin in one transaction. The banner is discarded if that fails.
func (s *ClubService) Create(ctx context.Context, caller *entity.User, in ClubInput, banner *Upload) (*entity.Club, error) {
	if caller == nil {
		return nil, Unauthenticated("unauthenticated")
	}
	if banner == nil {
		return nil, Validation("select an image for the banner", "banner is a required field")
	}

	club := &entity.Club{
		ID:           bson.NewObjectID(),
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Rules:        util.TrimAll(in.Rules),
		Admin:        caller.ID,
		Members:      []bson.ObjectID{caller.ID},
		MembersCount: 1,
		Meets:        []bson.ObjectID{},
	}
	club.Slug = slug.Make(club.Name)
	// Replaced by the stored URL once the fields are known to be valid.
	club.Banner = "upload:" + banner.Filename
	if err := validate(club); err != nil {
		return nil, err
	}

	url, err := saveAsset(ctx, s.assets, storage.FolderClubs, club.Name, banner)
	if err != nil {
		return nil, err
	}
	club.Banner = url

	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		if err := validate(club); err != nil {
			return err
		}
		if err := s.clubRepository.InsertOne(ctx, club); err != nil {
			return err
		}
		return notFoundAs(s.userRepository.AddClub(ctx, caller.ID, club.ID, true), "admin user not found")
	})
	if err != nil {
		return nil, discardAsset(ctx, s.assets, url, err)
	}

	metrics.RecordMembershipChange("club_created")
	return club, nil
}

// ClubUpdate carries the optional admin edits; nil means unchanged.
type ClubUpdate struct {
	Name        *string
	Description *string
	Rules       []string
	RulesSet    bool
}

func (s *ClubService) Update(ctx context.Context, caller *entity.User, clubID bson.ObjectID, upd ClubUpdate, banner *Upload) (*entity.Club, error) {
	club, err := s.clubRepository.FindOneByID(ctx, clubID)
	if err != nil {
		return nil, notFoundAs(err, "club not found")
	}
	if !club.IsAdmin(caller.ID) {
		return nil, Unauthorized("only the club admin can update the club")
	}

	if upd.Name != nil {
		club.Name = strings.TrimSpace(*upd.Name)
		club.Slug = slug.Make(club.Name)
	}
	if upd.Description != nil {
		club.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.RulesSet {
		club.Rules = util.TrimAll(upd.Rules)
	}
	if err := validate(club); err != nil {
		return nil, err
	}

	oldBanner := club.Banner
	var newBanner string
	if banner != nil {
		newBanner, err = saveAsset(ctx, s.assets, storage.FolderClubs, club.Name, banner)
		if err != nil {
			return nil, err
		}
		club.Banner = newBanner
	}

	var updated *entity.Club
	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.clubRepository.UpdateOne(ctx, club)
		return notFoundAs(err, "club not found")
	})
	if err != nil {
		return nil, discardAsset(ctx, s.assets, newBanner, err)
	}

	if newBanner != "" {
		dropAsset(ctx, s.assets, oldBanner)
	}
	return updated, nil
}

type DeleteClubResult struct {
	DeletedClubID bson.ObjectID `json:"deletedClubId"`
	DeletedMeets  int64         `json:"deletedMeets"`
}

// Delete removes the club, its meets and every user's reference to it.
func (s *ClubService) Delete(ctx context.Context, caller *entity.User, clubID bson.ObjectID) (*DeleteClubResult, error) {
	club, err := s.clubRepository.FindOneByID(ctx, clubID)
	if err != nil {
		return nil, notFoundAs(err, "club not found")
	}
	if !club.IsAdmin(caller.ID) {
		return nil, Unauthorized("only the club admin can delete the club")
	}

	var deletedMeets int64
	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		deletedMeets, err = s.meetRepository.DeleteManyByClubID(ctx, clubID)
		if err != nil {
			return err
		}
		if err := s.clubRepository.DeleteOneByID(ctx, clubID); err != nil {
			return notFoundAs(err, "club not found")
		}
		return s.userRepository.PullClubFromAll(ctx, clubID)
	})
	if err != nil {
		return nil, AsError(err)
	}

	metrics.RecordMembershipChange("club_deleted")
	dropAsset(ctx, s.assets, club.Banner)
	return &DeleteClubResult{DeletedClubID: clubID, DeletedMeets: deletedMeets}, nil
}

type MembershipResult struct {
	Club   *entity.Club        `json:"club"`
	Member *entity.UserSummary `json:"member"`
}

func (s *ClubService) AddMember(ctx context.Context, caller *entity.User, clubID, memberID bson.ObjectID) (*MembershipResult, error) {
	club, err := s.clubRepository.FindOneByID(ctx, clubID)
	if err != nil {
		return nil, notFoundAs(err, "club not found")
	}
	if !club.IsAdmin(caller.ID) {
		return nil, Unauthorized("only the club admin can add members")
	}
	if club.IsMember(memberID) {
		return nil, Conflict("user is already a member of this club")
	}

	member, err := s.userRepository.FindOneByID(ctx, memberID)
	if err != nil {
		return nil, notFoundAs(err, "user to add not found")
	}

	updated, err := s.join(ctx, clubID, memberID)
	if err != nil {
		return nil, err
	}

	metrics.RecordMembershipChange("member_added")
	return &MembershipResult{Club: updated, Member: member.Summary()}, nil
}

// Join adds the caller to a club they do not belong to yet.
func (s *ClubService) Join(ctx context.Context, caller *entity.User, clubID bson.ObjectID) (*MembershipResult, error) {
	club, err := s.clubRepository.FindOneByID(ctx, clubID)
	if err != nil {
		return nil, notFoundAs(err, "club not found")
	}
	if club.IsMember(caller.ID) {
		return nil, Conflict("you are already a member of this club")
	}

	updated, err := s.join(ctx, clubID, caller.ID)
	if err != nil {
		return nil, err
	}

	metrics.RecordMembershipChange("member_joined")
	return &MembershipResult{Club: updated, Member: caller.Summary()}, nil
}

// join updates both sides of the membership. The club update only applies
// while userID is not a member, which closes the race between concurrent
// adds of the same user.
func (s *ClubService) join(ctx context.Context, clubID, userID bson.ObjectID) (*entity.Club, error) {
	var updated *entity.Club
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.clubRepository.AddMember(ctx, clubID, userID)
		if errors.Is(err, repository.ErrConflict) {
			return Conflict("user is already a member of this club")
		}
		if err != nil {
			return err
		}
		return notFoundAs(s.userRepository.AddClub(ctx, userID, clubID, false), "user not found")
	})
	if err != nil {
		return nil, AsError(err)
	}
	return updated, nil
}

// RemoveMember lets the admin remove any other member and lets a member
// leave on their own.
func (s *ClubService) RemoveMember(ctx context.Context, caller *entity.User, clubID, memberID bson.ObjectID) (*entity.Club, error) {
	club, err := s.clubRepository.FindOneByID(ctx, clubID)
	if err != nil {
		return nil, notFoundAs(err, "club not found")
	}

	isAdmin := club.IsAdmin(caller.ID)
	isSelf := caller.ID == memberID
	switch {
	case isAdmin && isSelf:
		return nil, Unauthorized("the club admin cannot leave their own club")
	case !isAdmin && !isSelf:
		return nil, Unauthorized("you can only remove yourself from this club")
	}
	if !club.IsMember(memberID) {
		return nil, NotFound("member not found in this club")
	}

	var updated *entity.Club
	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.clubRepository.RemoveMember(ctx, clubID, memberID)
		if err != nil {
			return notFoundAs(err, "member not found in this club")
		}
		err = s.userRepository.PullClub(ctx, memberID, clubID)
		if errors.Is(err, repository.ErrNotFound) {
			// A dangling member id still has to leave the club.
			return nil
		}
		return err
	})
	if err != nil {
		return nil, AsError(err)
	}

	metrics.RecordMembershipChange("member_removed")
	return updated, nil
}

func (s *ClubService) Get(ctx context.Context, caller *entity.User, clubID bson.ObjectID) (*entity.ClubDetails, error) {
	club, err := s.clubRepository.FindOneByID(ctx, clubID)
	if err != nil {
		return nil, notFoundAs(err, "club not found")
	}

	users, err := s.userRepository.FindSummariesByIDs(ctx, club.Members)
	if err != nil {
		return nil, Unexpected(err, "failed to load members")
	}

	details := &entity.ClubDetails{Club: *club, Users: users, IsMember: club.IsMember(caller.ID)}
	details.MembersCount = len(club.Members)
	for _, u := range users {
		if u.ID == club.Admin {
			details.AdminUser = u
		}
	}
	if details.AdminUser == nil {
		details.AdminUser = entity.RemovedAdmin(club.Admin)
	}
	return details, nil
}

type ClubList struct {
	Clubs      []*entity.ClubDetails `json:"clubs"`
	Pagination Pagination            `json:"pagination"`
}

func (s *ClubService) List(ctx context.Context, caller *entity.User, q ListQuery) (*ClubList, error) {
	filter := entity.ClubFilter{Search: strings.TrimSpace(q.Search)}

	p := q.pager(clubSort)
	clubs, total, err := findPage(ctx,
		func(ctx context.Context) ([]*entity.ClubDetails, error) {
			return s.clubRepository.Find(ctx, filter, p.opts)
		},
		func(ctx context.Context) (int64, error) {
			return s.clubRepository.Count(ctx, filter)
		},
	)
	if err != nil {
		return nil, Unexpected(err, "failed to list clubs")
	}

	for _, club := range clubs {
		club.IsMember = club.Club.IsMember(caller.ID)
		club.MembersCount = len(club.Members)
		if club.AdminUser == nil {
			club.AdminUser = entity.RemovedAdmin(club.Admin)
		}
	}
	return &ClubList{Clubs: clubs, Pagination: p.pagination(total)}, nil
}

type MeetQuery struct {
	ListQuery
	ClubID string `schema:"clubId"`
	BookID string `schema:"bookId"`
	Status string `schema:"status"`
}

type MeetList struct {
	Meets      []*entity.MeetDetails `json:"meets"`
	Pagination Pagination            `json:"pagination"`
}

// ListMeets lists the meets of one club.
func (s *ClubService) ListMeets(ctx context.Context, clubID bson.ObjectID, q MeetQuery, lang string) (*MeetList, error) {
	if _, err := s.clubRepository.FindOneByID(ctx, clubID); err != nil {
		return nil, AsError(notFoundAs(err, "club not found"))
	}
	q.ClubID = clubID.Hex()
	return listMeets(ctx, s.meetRepository, q, s.locale(lang))
}

func (s *ClubService) locale(lang string) string {
	if lang == "" {
		return s.defaultLocale
	}
	return lang
}
