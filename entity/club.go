package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

const (
	MaxClubRules = 25
)

type Club struct {
	ID           bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name         string          `bson:"name" json:"name" validate:"required,min=3,max=100"`
	Slug         string          `bson:"slug" json:"slug"`
	Banner       string          `bson:"banner" json:"banner" validate:"required"`
	Admin        bson.ObjectID   `bson:"admin" json:"admin"`
	Members      []bson.ObjectID `bson:"members" json:"members" validate:"min=1"`
	MembersCount int             `bson:"membersCount" json:"membersCount"`
	Meets        []bson.ObjectID `bson:"meets" json:"meets"`
	Description  string          `bson:"description" json:"description" validate:"max=500"`
	Rules        []string        `bson:"rules" json:"rules" validate:"max=25,dive,min=5,max=200"`
	CreatedAt    time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time       `bson:"updatedAt" json:"updatedAt"`
}

func (c *Club) IsAdmin(userID bson.ObjectID) bool {
	return !userID.IsZero() && c.Admin == userID
}

func (c *Club) IsMember(userID bson.ObjectID) bool {
	return slices.Contains(c.Members, userID)
}

type ClubDetails struct {
	Club      `bson:",inline"`
	AdminUser *UserSummary   `bson:"adminUser,omitempty" json:"adminUser"`
	Users     []*UserSummary `bson:"-" json:"users,omitempty"`
	IsMember  bool           `bson:"-" json:"isMember"`
}

func RemovedAdmin(id bson.ObjectID) *UserSummary {
	return &UserSummary{ID: id, Name: "Admin removed"}
}
