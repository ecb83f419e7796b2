package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/metrics"
	"github.com/joeyave/bookclub/repository"
	"github.com/joeyave/bookclub/storage"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type UserService struct {
	transactor     Transactor
	userRepository UserRepository
	clubRepository ClubRepository
	meetRepository MeetRepository
	authService    *AuthService
	assets         AssetStore
}

func NewUserService(transactor Transactor, userRepository UserRepository, clubRepository ClubRepository, meetRepository MeetRepository, authService *AuthService, assets AssetStore) *UserService {
	return &UserService{
		transactor:     transactor,
		userRepository: userRepository,
		clubRepository: clubRepository,
		meetRepository: meetRepository,
		authService:    authService,
		assets:         assets,
	}
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) Register(ctx context.Context, in RegisterInput, photo *Upload) (*entity.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validate(in); err != nil {
		return nil, err
	}
	if photo == nil {
		return nil, Validation("profile photo is required", "photo is a required field")
	}

	_, err := s.userRepository.FindOneByEmail(ctx, in.Email)
	if err == nil {
		return nil, Conflict("email already in use")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, Unexpected(err, "failed to look up email")
	}

	hash, err := s.authService.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	url, err := saveAsset(ctx, s.assets, storage.FolderUsers, in.Name, photo)
	if err != nil {
		return nil, err
	}

	user := &entity.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: hash,
		Photo:    url,
	}
	if err := validate(user); err != nil {
		return nil, discardAsset(ctx, s.assets, url, err)
	}

	err = s.userRepository.InsertOne(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		err = Conflict("email already in use")
	}
	if err != nil {
		return nil, discardAsset(ctx, s.assets, url, err)
	}

	user.Password = ""
	return user, nil
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *entity.User `json:"user"`
}

func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userRepository.FindOneByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, Unauthenticated("invalid credentials")
	}
	if err != nil {
		return nil, Unexpected(err, "failed to look up user")
	}

	if !s.authService.CheckPassword(user.Password, password) {
		return nil, Unauthenticated("invalid credentials")
	}

	token, expiresAt, err := s.authService.Issue(user)
	if err != nil {
		return nil, err
	}

	user.Password = ""
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *UserService) Logout(ctx context.Context, token string) error {
	return s.authService.Revoke(ctx, token)
}

func (s *UserService) Profile(ctx context.Context, caller *entity.User) (*entity.User, error) {
	user, err := s.userRepository.FindOneByID(ctx, caller.ID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	return user, nil
}

// UserUpdate carries the optional profile changes; nil pointers are left
// untouched.
type UserUpdate struct {
	Name            *string
	Email           *string
	CurrentPassword string
	NewPassword     string
}

func (s *UserService) Update(ctx context.Context, caller *entity.User, userID bson.ObjectID, upd UserUpdate, photo *Upload) (*entity.User, error) {
	if caller.ID != userID && !caller.IsAdmin {
		return nil, Unauthorized("you can only update your own profile")
	}

	user, err := s.userRepository.FindOneByIDWithPassword(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}

	if upd.NewPassword != "" {
		if upd.CurrentPassword == "" {
			return nil, Validation("current password is required to set a new password")
		}
		if !s.authService.CheckPassword(user.Password, upd.CurrentPassword) {
			return nil, Unauthenticated("current password is incorrect")
		}
		if len(upd.NewPassword) < 6 || len(upd.NewPassword) > 72 {
			return nil, Validation("validation failed", "newPassword must be between 6 and 72 characters")
		}
		hash, err := s.authService.HashPassword(upd.NewPassword)
		if err != nil {
			return nil, err
		}
		user.Password = hash
	} else {
		user.Password = ""
	}

	if upd.Name != nil {
		user.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		user.Email = normalizeEmail(*upd.Email)
	}
	if err := validate(user); err != nil {
		return nil, err
	}

	oldPhoto := user.Photo
	var newPhoto string
	if photo != nil {
		newPhoto, err = saveAsset(ctx, s.assets, storage.FolderUsers, user.Name, photo)
		if err != nil {
			return nil, err
		}
		user.Photo = newPhoto
	}

	updated, err := s.userRepository.UpdateProfile(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		err = Conflict("email already in use")
	}
	if err != nil {
		return nil, discardAsset(ctx, s.assets, newPhoto, notFoundAs(err, "user not found"))
	}

	if newPhoto != "" {
		dropAsset(ctx, s.assets, oldPhoto)
	}
	return updated, nil
}

type DeleteUserResult struct {
	DeletedUserID bson.ObjectID `json:"deletedUserId"`
	DeletedClubs  int           `json:"deletedClubs"`
}

// Delete removes a user, the clubs they administer (with their meets) and
// their membership in every other club.
func (s *UserService) Delete(ctx context.Context, caller *entity.User, userID bson.ObjectID) (*DeleteUserResult, error) {
	if caller.ID != userID && !caller.IsAdmin {
		return nil, Unauthorized("you can only delete your own account")
	}

	user, err := s.userRepository.FindOneByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}

	owned, err := s.clubRepository.FindManyByAdminID(ctx, userID)
	if err != nil {
		return nil, Unexpected(err, "failed to load owned clubs")
	}

	ownedIDs := make(map[bson.ObjectID]bool, len(owned))
	for _, club := range owned {
		ownedIDs[club.ID] = true
	}

	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		for _, club := range owned {
			if _, err := s.meetRepository.DeleteManyByClubID(ctx, club.ID); err != nil {
				return err
			}
			if err := s.clubRepository.DeleteOneByID(ctx, club.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			if err := s.userRepository.PullClubFromAll(ctx, club.ID); err != nil {
				return err
			}
		}

		for _, clubID := range user.MemberClubs {
			if ownedIDs[clubID] {
				continue
			}
			_, err := s.clubRepository.RemoveMember(ctx, clubID, userID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		return s.userRepository.DeleteOneByID(ctx, userID)
	})
	if err != nil {
		return nil, AsError(err)
	}

	metrics.RecordMembershipChange("account_deleted")
	dropAsset(ctx, s.assets, user.Photo)
	for _, club := range owned {
		dropAsset(ctx, s.assets, club.Banner)
	}

	return &DeleteUserResult{DeletedUserID: userID, DeletedClubs: len(owned)}, nil
}
