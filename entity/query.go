package entity

import "go.mongodb.org/mongo-driver/v2/bson"

// ListOptions describes a page of a sorted result set.
type ListOptions struct {
	Skip      int64
	Limit     int64
	SortField string
	SortDesc  bool
}

type ClubFilter struct {
	Search string
}

type BookFilter struct {
	Search    string
	Author    string
	CreatedBy *bson.ObjectID
}

type MeetFilter struct {
	ClubID *bson.ObjectID
	BookID *bson.ObjectID
	Status MeetStatus
	Search string
}
