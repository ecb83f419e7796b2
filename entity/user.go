package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

type User struct {
	ID          bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name        string          `bson:"name" json:"name" validate:"required,max=100"`
	Email       string          `bson:"email" json:"email" validate:"required,email"`
	Password    string          `bson:"password,omitempty" json:"-"`
	Photo       string          `bson:"photo" json:"photo" validate:"required"`
	IsAdmin     bool            `bson:"isAdmin" json:"isAdmin"`
	MemberClubs []bson.ObjectID `bson:"memberClubs" json:"memberClubs"`
	AdminClubs  []bson.ObjectID `bson:"adminClubs" json:"adminClubs"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time       `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) IsMemberOf(clubID bson.ObjectID) bool {
	return slices.Contains(u.MemberClubs, clubID)
}

func (u *User) IsAdminOf(clubID bson.ObjectID) bool {
	return slices.Contains(u.AdminClubs, clubID)
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo}
}

// UserSummary is the display projection of a user embedded in other payloads.
type UserSummary struct {
	ID    bson.ObjectID `bson:"_id" json:"id"`
	Name  string        `bson:"name" json:"name"`
	Email string        `bson:"email,omitempty" json:"email,omitempty"`
	Photo string        `bson:"photo,omitempty" json:"photo,omitempty"`
}
