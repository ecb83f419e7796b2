package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeyave/bookclub/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

func TestMeetService_Create(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")
	club := f.club(t, ana, "Night Readers", bo)
	book := f.book(t, ana, "Dune")

	valid := MeetInput{
		ClubID:      club.ID.Hex(),
		BookID:      book.ID.Hex(),
		Title:       "Opening",
		Description: "Part one",
		Datetime:    "2030-03-04T18:30:00Z",
	}
	with := func(change func(in *MeetInput)) MeetInput {
		in := valid
		change(&in)
		return in
	}

	tests := []struct {
		name   string
		caller *entity.User
		in     MeetInput
		kind   ErrorKind
	}{
		{name: "missing fields", caller: ana, in: MeetInput{ClubID: club.ID.Hex()}, kind: KindValidation},
		{name: "bad club id", caller: ana, in: with(func(in *MeetInput) { in.ClubID = "xyz" }), kind: KindValidation},
		{name: "unknown club", caller: ana, in: with(func(in *MeetInput) { in.ClubID = missingID.Hex() }), kind: KindNotFound},
		{name: "not admin", caller: bo, in: valid, kind: KindUnauthorized},
		{name: "unknown book", caller: ana, in: with(func(in *MeetInput) { in.BookID = missingID.Hex() }), kind: KindNotFound},
		{name: "bad datetime", caller: ana, in: with(func(in *MeetInput) { in.Datetime = "next friday" }), kind: KindValidation},
		{name: "past datetime", caller: ana, in: with(func(in *MeetInput) { in.Datetime = "2029-01-01T10:00:00Z" }), kind: KindValidation},
		{name: "long title", caller: ana, in: with(func(in *MeetInput) { in.Title = strings.Repeat("a", 101) }), kind: KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.meets.Create(f.ctx, tt.caller, tt.in, "en-US")
			requireKind(t, err, tt.kind)
		})
	}

	meet, err := f.meets.Create(f.ctx, ana, valid, "en-US")
	require.NoError(t, err)
	assert.Equal(t, entity.MeetStatusScheduled, meet.Status)
	assert.Equal(t, entity.DefaultLocation, meet.Location)
	assert.Equal(t, "Dune", meet.Book.Title)
	assert.Equal(t, "Ana", meet.Organizer.Name)
	assert.Equal(t, "Monday, 04 March 2030 18:30", meet.DatetimeLabel)

	stored, err := f.store.Clubs().FindOneByID(f.ctx, club.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Meets, meet.ID)
}

func TestMeetService_Update(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")
	club := f.club(t, ana, "Night Readers", bo)
	book := f.book(t, ana, "Dune")
	other := f.book(t, ana, "Emma")
	meet := f.meet(t, ana, club, book)

	_, err := f.meets.Update(f.ctx, bo, meet.ID, map[string]any{"title": "Mine"}, "")
	requireKind(t, err, KindUnauthorized)

	updated, err := f.meets.Update(f.ctx, ana, meet.ID, map[string]any{
		"title":    "Second part",
		"location": strings.Repeat("x", 201),
		"book":     other.ID.Hex(),
		"status":   "postponed",
		"unknown":  "ignored",
		"datetime": 42,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Second part", updated.Title)
	assert.Equal(t, entity.DefaultLocation, updated.Location)
	assert.Equal(t, other.ID, updated.BookID)
	assert.Equal(t, entity.MeetStatusPostponed, updated.Status)
	assert.Equal(t, meet.Datetime, updated.Datetime)

	unchanged, err := f.meets.Update(f.ctx, ana, meet.ID, map[string]any{"nothing": true}, "")
	require.NoError(t, err)
	assert.Equal(t, updated.Title, unchanged.Title)

	tests := []struct {
		name   string
		fields map[string]any
		kind   ErrorKind
	}{
		{name: "past datetime", fields: map[string]any{"datetime": "2020-01-01T00:00:00Z"}, kind: KindValidation},
		{name: "unknown book", fields: map[string]any{"book": missingID.Hex()}, kind: KindNotFound},
		{name: "invalid status", fields: map[string]any{"status": "done"}, kind: KindValidation},
		{name: "forbidden transition", fields: map[string]any{"status": "held"}, kind: KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.meets.Update(f.ctx, ana, meet.ID, tt.fields, "")
			requireKind(t, err, tt.kind)
		})
	}

	for _, status := range []string{"scheduled", "held"} {
		_, err = f.meets.Update(f.ctx, ana, meet.ID, map[string]any{"status": status}, "")
		require.NoError(t, err)
	}
	_, err = f.meets.Update(f.ctx, ana, meet.ID, map[string]any{"status": "scheduled"}, "")
	requireKind(t, err, KindValidation)
}

func TestMeetService_Delete(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")
	club := f.club(t, ana, "Night Readers", bo)
	book := f.book(t, ana, "Dune")
	first := f.meet(t, ana, club, book)
	f.meet(t, ana, club, book)

	_, err := f.meets.Delete(f.ctx, bo, first.ID)
	requireKind(t, err, KindUnauthorized)

	res, err := f.meets.Delete(f.ctx, ana, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemainingMeets)

	_, err = f.meets.Get(f.ctx, first.ID, "")
	requireKind(t, err, KindNotFound)
}

func TestMeetService_RemovedBookPlaceholder(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	club := f.club(t, ana, "Night Readers")
	book := f.book(t, ana, "Dune")
	meet := f.meet(t, ana, club, book)

	require.NoError(t, f.books.Delete(f.ctx, ana, book.ID))

	got, err := f.meets.Get(f.ctx, meet.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.RemovedBookTitle, got.Book.Title)
	assert.Equal(t, book.ID, got.Book.ID)
}

func TestMeetService_Messages(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")
	cy := f.user(t, "Cy")
	outsider := f.user(t, "Dee")
	club := f.club(t, ana, "Night Readers", bo, cy)
	meet := f.meet(t, ana, club, f.book(t, ana, "Dune"))

	_, err := f.meets.PostMessage(f.ctx, outsider, meet.ID, "hello")
	requireKind(t, err, KindUnauthorized)

	_, err = f.meets.PostMessage(f.ctx, bo, meet.ID, "   ")
	requireKind(t, err, KindValidation)

	_, err = f.meets.PostMessage(f.ctx, bo, meet.ID, strings.Repeat("a", 1001))
	requireKind(t, err, KindValidation)

	_, err = f.meets.PostMessage(f.ctx, bo, missingID, "hello")
	requireKind(t, err, KindNotFound)

	var ids []bson.ObjectID
	for i, author := range []*entity.User{bo, cy, ana} {
		f.meets.now = func() time.Time { return testNow.Add(time.Duration(i) * time.Minute) }
		msg, err := f.meets.PostMessage(f.ctx, author, meet.ID, " message from "+author.Name+" ")
		require.NoError(t, err)
		assert.Equal(t, "message from "+author.Name, msg.Text)
		assert.Equal(t, author.Name, msg.User.Name)
		ids = append(ids, msg.ID)
	}

	_, err = f.meets.DeleteMessage(f.ctx, cy, meet.ID, ids[0])
	requireKind(t, err, KindUnauthorized)

	_, err = f.meets.DeleteMessage(f.ctx, bo, meet.ID, missingID)
	requireKind(t, err, KindNotFound)

	_, err = f.meets.ListMessages(f.ctx, outsider, meet.ID)
	requireKind(t, err, KindUnauthorized)

	list, err := f.meets.ListMessages(f.ctx, cy, meet.ID)
	require.NoError(t, err)
	require.Len(t, list.Messages, 3)
	assert.Equal(t, ids[2], list.Messages[0].ID)
	assert.Equal(t, ids[0], list.Messages[2].ID)

	res, err := f.meets.DeleteMessage(f.ctx, bo, meet.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 2, res.RemainingMessages)

	res, err = f.meets.DeleteMessage(f.ctx, ana, meet.ID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemainingMessages)
}

func TestMeetService_Pinning(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")
	club := f.club(t, ana, "Night Readers", bo)
	meet := f.meet(t, ana, club, f.book(t, ana, "Dune"))

	var ids []bson.ObjectID
	for i := 0; i < entity.MaxPinnedMessages+1; i++ {
		msg, err := f.meets.PostMessage(f.ctx, bo, meet.ID, "thought")
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	_, err := f.meets.PinMessage(f.ctx, bo, meet.ID, ids[0])
	requireKind(t, err, KindUnauthorized)

	_, err = f.meets.PinMessage(f.ctx, ana, meet.ID, missingID)
	requireKind(t, err, KindNotFound)

	for _, id := range ids[:entity.MaxPinnedMessages] {
		view, err := f.meets.PinMessage(f.ctx, ana, meet.ID, id)
		require.NoError(t, err)
		assert.True(t, view.IsPinned)
		assert.Equal(t, "Bo", view.User.Name)
	}

	// Re-pinning is a no-op even at the limit.
	_, err = f.meets.PinMessage(f.ctx, ana, meet.ID, ids[0])
	require.NoError(t, err)

	_, err = f.meets.PinMessage(f.ctx, ana, meet.ID, ids[entity.MaxPinnedMessages])
	requireKind(t, err, KindValidation)

	unpinned, err := f.meets.UnpinMessage(f.ctx, ana, meet.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, entity.MaxPinnedMessages-1, unpinned.PinnedCount)

	_, err = f.meets.PinMessage(f.ctx, ana, meet.ID, ids[entity.MaxPinnedMessages])
	require.NoError(t, err)

	// Deleting a pinned message unpins it.
	_, err = f.meets.DeleteMessage(f.ctx, bo, meet.ID, ids[1])
	require.NoError(t, err)

	list, err := f.meets.ListMessages(f.ctx, bo, meet.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MaxPinnedMessages-1, list.PinnedCount)
	for _, msg := range list.Messages {
		assert.Equal(t, msg.ID != ids[0], msg.IsPinned, msg.ID.Hex())
	}
}

func TestMeetService_ConcurrentPins(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	club := f.club(t, ana, "Night Readers")
	meet := f.meet(t, ana, club, f.book(t, ana, "Dune"))

	var ids []bson.ObjectID
	for i := 0; i < entity.MaxPinnedMessages+3; i++ {
		msg, err := f.meets.PostMessage(f.ctx, ana, meet.ID, "thought")
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	// Every distinct message and a burst of repeats of the first one.
	targets := append(slices.Clone(ids), ids[0], ids[0], ids[0])
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, id := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.meets.PinMessage(f.ctx, ana, meet.ID, id)
		}()
	}
	wg.Wait()

	pinned := map[bson.ObjectID]bool{}
	for i, err := range errs {
		if err == nil {
			pinned[targets[i]] = true
			continue
		}
		requireKind(t, err, KindValidation)
	}
	assert.Len(t, pinned, entity.MaxPinnedMessages)
	for i, err := range errs {
		if pinned[targets[i]] {
			assert.NoError(t, err, "pinning a pinned message is a no-op")
		}
	}

	stored, err := f.store.Meets().FindOneByID(f.ctx, meet.ID)
	require.NoError(t, err)
	assert.Len(t, stored.PinnedMessages, entity.MaxPinnedMessages)
	for _, id := range stored.PinnedMessages {
		assert.True(t, pinned[id], id.Hex())
	}
}

func TestMeetService_List(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	club := f.club(t, ana, "Night Readers")
	dune := f.book(t, ana, "Dune")
	emma := f.book(t, ana, "Emma")

	for i, book := range []*entity.BookDetails{dune, emma, dune} {
		_, err := f.meets.Create(f.ctx, ana, MeetInput{
			ClubID:      club.ID.Hex(),
			BookID:      book.ID.Hex(),
			Title:       "Meet " + book.Title,
			Description: "Talk",
			Datetime:    testNow.Add(time.Duration(i+1) * 24 * time.Hour).Format(time.RFC3339),
		}, "")
		require.NoError(t, err)
	}

	list, err := f.meets.List(f.ctx, MeetQuery{BookID: dune.ID.Hex()}, "")
	require.NoError(t, err)
	assert.Len(t, list.Meets, 2)
	assert.True(t, list.Meets[0].Datetime.Before(list.Meets[1].Datetime))

	list, err = f.meets.List(f.ctx, MeetQuery{ListQuery: ListQuery{Limit: 2, Page: 2}}, "")
	require.NoError(t, err)
	assert.Len(t, list.Meets, 1)
	assert.Equal(t, Pagination{CurrentPage: 2, TotalPages: 2, Total: 3, ResultsPerPage: 2}, list.Pagination)

	_, err = f.meets.List(f.ctx, MeetQuery{ClubID: "nope"}, "")
	requireKind(t, err, KindValidation)
}
