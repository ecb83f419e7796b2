package entity

import (
	"time"

	"github.com/joeyave/bookclub/util"
	"github.com/klauspost/lctime"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

const (
	MaxPinnedMessages = 3
	DefaultLocation   = "Online"
)

type MeetStatus string

const (
	MeetStatusScheduled MeetStatus = "scheduled"
	MeetStatusCancelled MeetStatus = "cancelled"
	MeetStatusHeld      MeetStatus = "held"
	MeetStatusPostponed MeetStatus = "postponed"
)

var meetTransitions = map[MeetStatus][]MeetStatus{
	MeetStatusScheduled: {MeetStatusHeld, MeetStatusCancelled, MeetStatusPostponed},
	MeetStatusPostponed: {MeetStatusScheduled, MeetStatusCancelled},
}

func (s MeetStatus) Valid() bool {
	switch s {
	case MeetStatusScheduled, MeetStatusCancelled, MeetStatusHeld, MeetStatusPostponed:
		return true
	}
	return false
}

// CanTransition reports whether a meet in status s may move to next.
// Held and cancelled meets are final.
func (s MeetStatus) CanTransition(next MeetStatus) bool {
	return slices.Contains(meetTransitions[s], next)
}

type Message struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	User      bson.ObjectID `bson:"user" json:"user"`
	Text      string        `bson:"text" json:"text" validate:"required,max=1000"`
	Timestamp time.Time     `bson:"timestamp" json:"timestamp"`
}

type Meet struct {
	ID             bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	ClubID         bson.ObjectID   `bson:"clubId" json:"clubId"`
	BookID         bson.ObjectID   `bson:"book" json:"bookId"`
	Title          string          `bson:"title" json:"title" validate:"required,max=100"`
	Description    string          `bson:"description" json:"description" validate:"required,max=1000"`
	Datetime       time.Time       `bson:"datetime" json:"datetime" validate:"required"`
	Location       string          `bson:"location" json:"location" validate:"max=200"`
	Status         MeetStatus      `bson:"status" json:"status" validate:"oneof=scheduled cancelled held postponed"`
	CreatedBy      bson.ObjectID   `bson:"createdBy" json:"createdBy"`
	Discussions    []Message       `bson:"discussions" json:"discussions,omitempty" validate:"dive"`
	PinnedMessages []bson.ObjectID `bson:"pinnedMessages" json:"pinnedMessages,omitempty" validate:"max=3"`
	CreatedAt      time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time       `bson:"updatedAt" json:"updatedAt"`
}

func (m *Meet) Message(id bson.ObjectID) (*Message, bool) {
	i := slices.IndexFunc(m.Discussions, func(msg Message) bool { return msg.ID == id })
	if i < 0 {
		return nil, false
	}
	return &m.Discussions[i], true
}

func (m *Meet) IsPinned(id bson.ObjectID) bool {
	return slices.Contains(m.PinnedMessages, id)
}

// DatetimeLabel renders the meet time in the given IETF language tag, e.g. "pt-BR".
func (m *Meet) DatetimeLabel(lang string) string {
	format := "%A, %d %B %Y %H:%M"
	if m.Datetime.Hour() == 0 && m.Datetime.Minute() == 0 {
		format = "%A, %d %B %Y"
	}
	t, err := lctime.StrftimeLoc(util.IetfToIsoLangCode(lang), format, m.Datetime)
	if err != nil {
		return m.Datetime.Format(time.RFC1123)
	}
	return t
}

// MeetUpdate holds the fields an admin changed; nil means untouched.
type MeetUpdate struct {
	Title       *string
	Description *string
	Datetime    *time.Time
	Location    *string
	BookID      *bson.ObjectID
	Status      *MeetStatus
}

func (u MeetUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Datetime == nil &&
		u.Location == nil && u.BookID == nil && u.Status == nil
}

// Apply copies the changed fields onto m.
func (u MeetUpdate) Apply(m *Meet) {
	if u.Title != nil {
		m.Title = *u.Title
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
	if u.Datetime != nil {
		m.Datetime = *u.Datetime
	}
	if u.Location != nil {
		m.Location = *u.Location
	}
	if u.BookID != nil {
		m.BookID = *u.BookID
	}
	if u.Status != nil {
		m.Status = *u.Status
	}
}

type MeetDetails struct {
	Meet          `bson:",inline"`
	Book          *Book        `bson:"bookDoc,omitempty" json:"book"`
	Organizer     *UserSummary `bson:"organizer,omitempty" json:"organizer"`
	Club          *ClubSummary `bson:"club,omitempty" json:"club"`
	DatetimeLabel string       `bson:"-" json:"datetimeLabel,omitempty"`
}

type ClubSummary struct {
	ID   bson.ObjectID `bson:"_id" json:"id"`
	Name string        `bson:"name" json:"name"`
}

// MessageView is a message with its author resolved for display.
type MessageView struct {
	ID        bson.ObjectID `json:"id"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	User      *UserSummary  `json:"user"`
	IsPinned  bool          `json:"isPinned"`
}
