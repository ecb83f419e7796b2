package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const RemovedBookTitle = "Book removed"

type Book struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Title     string        `bson:"title" json:"title" validate:"required,max=200"`
	Author    string        `bson:"author" json:"author" validate:"required,max=200"`
	CreatedBy bson.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`
}

type BookDetails struct {
	Book    `bson:",inline"`
	Creator *UserSummary `bson:"creator,omitempty" json:"creator"`
}

// RemovedBook stands in for a book reference whose document no longer exists.
func RemovedBook(id bson.ObjectID) *Book {
	return &Book{ID: id, Title: RemovedBookTitle}
}
