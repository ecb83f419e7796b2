package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/metrics"
	"github.com/joeyave/bookclub/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

var meetSort = sortSpec{
	fields:      []string{"datetime", "createdAt", "title"},
	fallback:    "datetime",
	defaultDesc: false,
}

var datetimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseDatetime(s string) (time.Time, error) {
	var err error
	for _, layout := range datetimeLayouts {
		var t time.Time
		t, err = time.Parse(layout, strings.TrimSpace(s))
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

type MeetService struct {
	transactor     Transactor
	meetRepository MeetRepository
	clubRepository ClubRepository
	bookRepository BookRepository
	userRepository UserRepository
	defaultLocale  string
	now            func() time.Time
}

func NewMeetService(transactor Transactor, meetRepository MeetRepository, clubRepository ClubRepository, bookRepository BookRepository, userRepository UserRepository, defaultLocale string) *MeetService {
	return &MeetService{
		transactor:     transactor,
		meetRepository: meetRepository,
		clubRepository: clubRepository,
		bookRepository: bookRepository,
		userRepository: userRepository,
		defaultLocale:  defaultLocale,
		now:            time.Now,
	}
}

func (s *MeetService) locale(lang string) string {
	if lang == "" {
		return s.defaultLocale
	}
	return lang
}

// adminClub loads the club of meet and checks that caller administers it.
func (s *MeetService) adminClub(ctx context.Context, caller *entity.User, clubID bson.ObjectID, action string) (*entity.Club, error) {
	club, err := s.clubRepository.FindOneByID(ctx, clubID)
	if err != nil {
		return nil, notFoundAs(err, "club not found")
	}
	if !club.IsAdmin(caller.ID) {
		return nil, Unauthorized("only the club admin can " + action)
	}
	return club, nil
}

func (s *MeetService) memberClub(ctx context.Context, caller *entity.User, clubID bson.ObjectID) (*entity.Club, error) {
	club, err := s.clubRepository.FindOneByID(ctx, clubID)
	if err != nil {
		return nil, notFoundAs(err, "club not found")
	}
	if !club.IsMember(caller.ID) {
		return nil, Unauthorized("only club members can take part in this discussion")
	}
	return club, nil
}

type MeetInput struct {
	ClubID      string `json:"clubId"`
	BookID      string `json:"bookId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Datetime    string `json:"datetime"`
	Location    string `json:"location"`
}

func (s *MeetService) Create(ctx context.Context, caller *entity.User, in MeetInput, lang string) (*entity.MeetDetails, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"clubId", in.ClubID},
		{"bookId", in.BookID},
		{"title", in.Title},
		{"description", in.Description},
		{"datetime", in.Datetime},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name+" is a required field")
		}
	}
	if len(missing) > 0 {
		return nil, Validation("missing required fields", missing...)
	}

	clubID, err := bson.ObjectIDFromHex(in.ClubID)
	if err != nil {
		return nil, Validation("invalid clubId")
	}
	bookID, err := bson.ObjectIDFromHex(in.BookID)
	if err != nil {
		return nil, Validation("invalid bookId")
	}

	club, err := s.adminClub(ctx, caller, clubID, "create meets")
	if err != nil {
		return nil, err
	}

	exists, err := s.bookRepository.Exists(ctx, bookID)
	if err != nil {
		return nil, Unexpected(err, "failed to look up book")
	}
	if !exists {
		return nil, NotFound("book not found")
	}

	datetime, err := parseDatetime(in.Datetime)
	if err != nil {
		return nil, Validation("invalid datetime")
	}
	if !datetime.After(s.now()) {
		return nil, Validation("datetime must be in the future")
	}

	location := strings.TrimSpace(in.Location)
	if location == "" {
		location = entity.DefaultLocation
	}

	meet := &entity.Meet{
		ID:          bson.NewObjectID(),
		ClubID:      club.ID,
		BookID:      bookID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Datetime:    datetime,
		Location:    location,
		Status:      entity.MeetStatusScheduled,
		CreatedBy:   caller.ID,
	}
	if err := validate(meet); err != nil {
		return nil, err
	}

	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.meetRepository.InsertOne(ctx, meet); err != nil {
			return err
		}
		return notFoundAs(s.clubRepository.PushMeet(ctx, club.ID, meet.ID), "club not found")
	})
	if err != nil {
		return nil, AsError(err)
	}

	return s.Get(ctx, meet.ID, lang)
}

func (s *MeetService) Get(ctx context.Context, meetID bson.ObjectID, lang string) (*entity.MeetDetails, error) {
	meet, err := s.meetRepository.FindDetails(ctx, meetID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}
	decorateMeet(meet, s.locale(lang))
	return meet, nil
}

func (s *MeetService) List(ctx context.Context, q MeetQuery, lang string) (*MeetList, error) {
	return listMeets(ctx, s.meetRepository, q, s.locale(lang))
}

func listMeets(ctx context.Context, meetRepository MeetRepository, q MeetQuery, lang string) (*MeetList, error) {
	filter := entity.MeetFilter{
		Status: entity.MeetStatus(strings.TrimSpace(q.Status)),
		Search: strings.TrimSpace(q.Search),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, Validation("invalid status")
	}
	if q.ClubID != "" {
		id, err := bson.ObjectIDFromHex(q.ClubID)
		if err != nil {
			return nil, Validation("invalid clubId")
		}
		filter.ClubID = &id
	}
	if q.BookID != "" {
		id, err := bson.ObjectIDFromHex(q.BookID)
		if err != nil {
			return nil, Validation("invalid bookId")
		}
		filter.BookID = &id
	}

	p := q.pager(meetSort)
	meets, total, err := findPage(ctx,
		func(ctx context.Context) ([]*entity.MeetDetails, error) {
			return meetRepository.Find(ctx, filter, p.opts)
		},
		func(ctx context.Context) (int64, error) {
			return meetRepository.Count(ctx, filter)
		},
	)
	if err != nil {
		return nil, Unexpected(err, "failed to list meets")
	}

	for _, meet := range meets {
		decorateMeet(meet, lang)
	}
	return &MeetList{Meets: meets, Pagination: p.pagination(total)}, nil
}

func decorateMeet(meet *entity.MeetDetails, lang string) {
	if meet.Book == nil {
		meet.Book = entity.RemovedBook(meet.BookID)
	}
	meet.DatetimeLabel = meet.Meet.DatetimeLabel(lang)
}

// meetField interprets one raw update value. Values of the wrong type are
// ignored by returning nil without touching upd.
type meetField func(ctx context.Context, s *MeetService, meet *entity.Meet, raw any, upd *entity.MeetUpdate) error

func textField(max int, set func(upd *entity.MeetUpdate, v string)) meetField {
	return func(_ context.Context, _ *MeetService, _ *entity.Meet, raw any, upd *entity.MeetUpdate) error {
		v, ok := raw.(string)
		v = strings.TrimSpace(v)
		if !ok || v == "" || utf8.RuneCountInString(v) > max {
			return nil
		}
		set(upd, v)
		return nil
	}
}

var meetUpdateFields = []struct {
	name  string
	apply meetField
}{
	{"title", textField(100, func(upd *entity.MeetUpdate, v string) { upd.Title = &v })},
	{"description", textField(1000, func(upd *entity.MeetUpdate, v string) { upd.Description = &v })},
	{"location", textField(200, func(upd *entity.MeetUpdate, v string) { upd.Location = &v })},
	{"datetime", func(_ context.Context, s *MeetService, _ *entity.Meet, raw any, upd *entity.MeetUpdate) error {
		v, ok := raw.(string)
		if !ok {
			return nil
		}
		t, err := parseDatetime(v)
		if err != nil {
			return Validation("invalid datetime")
		}
		if !t.After(s.now()) {
			return Validation("datetime must be in the future")
		}
		upd.Datetime = &t
		return nil
	}},
	{"book", func(ctx context.Context, s *MeetService, _ *entity.Meet, raw any, upd *entity.MeetUpdate) error {
		v, ok := raw.(string)
		if !ok {
			return nil
		}
		id, err := bson.ObjectIDFromHex(v)
		if err != nil {
			return NotFound("book not found")
		}
		exists, err := s.bookRepository.Exists(ctx, id)
		if err != nil {
			return Unexpected(err, "failed to look up book")
		}
		if !exists {
			return NotFound("book not found")
		}
		upd.BookID = &id
		return nil
	}},
	{"status", func(_ context.Context, _ *MeetService, meet *entity.Meet, raw any, upd *entity.MeetUpdate) error {
		v, ok := raw.(string)
		if !ok {
			return nil
		}
		status := entity.MeetStatus(v)
		if !status.Valid() {
			return Validation("invalid status")
		}
		if status == meet.Status {
			return nil
		}
		if !meet.Status.CanTransition(status) {
			return Validation(fmt.Sprintf("cannot change status from %s to %s", meet.Status, status))
		}
		upd.Status = &status
		return nil
	}},
}

// Update applies the recognised fields of a partial update. Unknown fields
// and values of the wrong type are dropped.
func (s *MeetService) Update(ctx context.Context, caller *entity.User, meetID bson.ObjectID, fields map[string]any, lang string) (*entity.MeetDetails, error) {
	meet, err := s.meetRepository.FindOneByID(ctx, meetID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}
	if _, err := s.adminClub(ctx, caller, meet.ClubID, "update meets"); err != nil {
		return nil, err
	}

	var upd entity.MeetUpdate
	for _, f := range meetUpdateFields {
		raw, ok := fields[f.name]
		if !ok {
			continue
		}
		if err := f.apply(ctx, s, meet, raw, &upd); err != nil {
			return nil, err
		}
	}

	if !upd.Empty() {
		err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := s.meetRepository.UpdateOne(ctx, meetID, upd)
			return notFoundAs(err, "meet not found")
		})
		if err != nil {
			return nil, AsError(err)
		}
	}

	return s.Get(ctx, meetID, lang)
}

type DeleteMeetResult struct {
	DeletedMeetID  bson.ObjectID `json:"deletedMeetId"`
	RemainingMeets int           `json:"remainingMeets"`
}

func (s *MeetService) Delete(ctx context.Context, caller *entity.User, meetID bson.ObjectID) (*DeleteMeetResult, error) {
	meet, err := s.meetRepository.FindOneByID(ctx, meetID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}
	if _, err := s.adminClub(ctx, caller, meet.ClubID, "delete meets"); err != nil {
		return nil, err
	}

	var club *entity.Club
	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.meetRepository.DeleteOneByID(ctx, meetID); err != nil {
			return notFoundAs(err, "meet not found")
		}
		var err error
		club, err = s.clubRepository.PullMeet(ctx, meet.ClubID, meetID)
		return notFoundAs(err, "club not found")
	})
	if err != nil {
		return nil, AsError(err)
	}

	return &DeleteMeetResult{DeletedMeetID: meetID, RemainingMeets: len(club.Meets)}, nil
}

func messageAuthor(u *entity.UserSummary) *entity.UserSummary {
	return &entity.UserSummary{ID: u.ID, Name: u.Name, Photo: u.Photo}
}

func (s *MeetService) authors(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]*entity.UserSummary, error) {
	if len(ids) == 0 {
		return map[bson.ObjectID]*entity.UserSummary{}, nil
	}
	summaries, err := s.userRepository.FindSummariesByIDs(ctx, ids)
	if err != nil {
		return nil, Unexpected(err, "failed to load message authors")
	}
	byID := make(map[bson.ObjectID]*entity.UserSummary, len(summaries))
	for _, u := range summaries {
		byID[u.ID] = messageAuthor(u)
	}
	return byID, nil
}

func messageView(msg *entity.Message, author *entity.UserSummary, pinned bool) *entity.MessageView {
	if author == nil {
		author = &entity.UserSummary{ID: msg.User, Name: "User removed"}
	}
	return &entity.MessageView{
		ID:        msg.ID,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		User:      author,
		IsPinned:  pinned,
	}
}

func (s *MeetService) PostMessage(ctx context.Context, caller *entity.User, meetID bson.ObjectID, text string) (*entity.MessageView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, Validation("message text is required", "text is a required field")
	}

	meet, err := s.meetRepository.FindOneByID(ctx, meetID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}
	if _, err := s.memberClub(ctx, caller, meet.ClubID); err != nil {
		return nil, err
	}

	msg := entity.Message{
		ID:        bson.NewObjectID(),
		User:      caller.ID,
		Text:      text,
		Timestamp: s.now(),
	}
	if err := validate(msg); err != nil {
		return nil, err
	}

	err = s.meetRepository.PushMessage(ctx, meetID, msg)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}

	metrics.RecordMessage("posted")
	return messageView(&msg, messageAuthor(caller.Summary()), false), nil
}

type DeleteMessageResult struct {
	DeletedMessageID  bson.ObjectID `json:"deletedMessageId"`
	RemainingMessages int           `json:"remainingMessages"`
}

// DeleteMessage lets the author or the club admin remove a message. The
// message leaves the pinned set in the same update.
func (s *MeetService) DeleteMessage(ctx context.Context, caller *entity.User, meetID, msgID bson.ObjectID) (*DeleteMessageResult, error) {
	meet, err := s.meetRepository.FindOneByID(ctx, meetID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}
	msg, ok := meet.Message(msgID)
	if !ok {
		return nil, NotFound("message not found")
	}

	club, err := s.clubRepository.FindOneByID(ctx, meet.ClubID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "club not found"))
	}
	if msg.User != caller.ID && !club.IsAdmin(caller.ID) {
		return nil, Unauthorized("only the author or the club admin can delete this message")
	}

	updated, err := s.meetRepository.PullMessage(ctx, meetID, msgID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "message not found"))
	}

	metrics.RecordMessage("deleted")
	return &DeleteMessageResult{DeletedMessageID: msgID, RemainingMessages: len(updated.Discussions)}, nil
}

// PinMessage pins a message. Pinning an already pinned message is a no-op.
func (s *MeetService) PinMessage(ctx context.Context, caller *entity.User, meetID, msgID bson.ObjectID) (*entity.MessageView, error) {
	meet, err := s.meetRepository.FindOneByID(ctx, meetID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}
	if _, err := s.adminClub(ctx, caller, meet.ClubID, "pin messages"); err != nil {
		return nil, err
	}

	msg, ok := meet.Message(msgID)
	if !ok {
		return nil, NotFound("message not found")
	}

	if !meet.IsPinned(msgID) {
		if len(meet.PinnedMessages) >= entity.MaxPinnedMessages {
			return nil, pinLimitError()
		}
		_, err = s.meetRepository.PinMessage(ctx, meetID, msgID)
		switch {
		case errors.Is(err, repository.ErrConflict):
			if err := s.pinConflict(ctx, meetID, msgID); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, AsError(notFoundAs(err, "meet not found"))
		default:
			metrics.RecordMessage("pinned")
		}
	}

	authors, err := s.authors(ctx, []bson.ObjectID{msg.User})
	if err != nil {
		return nil, err
	}
	return messageView(msg, authors[msg.User], true), nil
}

func pinLimitError() error {
	return Validation(fmt.Sprintf("a meet can have at most %d pinned messages", entity.MaxPinnedMessages))
}

// pinConflict explains why the guarded pin update did not apply. A message
// pinned by a concurrent request counts as pinned.
func (s *MeetService) pinConflict(ctx context.Context, meetID, msgID bson.ObjectID) error {
	meet, err := s.meetRepository.FindOneByID(ctx, meetID)
	if err != nil {
		return AsError(notFoundAs(err, "meet not found"))
	}
	if _, ok := meet.Message(msgID); !ok {
		return NotFound("message not found")
	}
	if meet.IsPinned(msgID) {
		return nil
	}
	return pinLimitError()
}

type UnpinResult struct {
	UnpinnedMessageID bson.ObjectID `json:"unpinnedMessageId"`
	PinnedCount       int           `json:"pinnedCount"`
}

func (s *MeetService) UnpinMessage(ctx context.Context, caller *entity.User, meetID, msgID bson.ObjectID) (*UnpinResult, error) {
	meet, err := s.meetRepository.FindOneByID(ctx, meetID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}
	if _, err := s.adminClub(ctx, caller, meet.ClubID, "unpin messages"); err != nil {
		return nil, err
	}

	updated, err := s.meetRepository.UnpinMessage(ctx, meetID, msgID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}

	if meet.IsPinned(msgID) {
		metrics.RecordMessage("unpinned")
	}
	return &UnpinResult{UnpinnedMessageID: msgID, PinnedCount: len(updated.PinnedMessages)}, nil
}

type MessageList struct {
	Messages    []*entity.MessageView `json:"messages"`
	PinnedCount int                   `json:"pinnedCount"`
}

// ListMessages returns the discussion newest first, flagging pinned messages.
func (s *MeetService) ListMessages(ctx context.Context, caller *entity.User, meetID bson.ObjectID) (*MessageList, error) {
	meet, err := s.meetRepository.FindOneByID(ctx, meetID)
	if err != nil {
		return nil, AsError(notFoundAs(err, "meet not found"))
	}
	if _, err := s.memberClub(ctx, caller, meet.ClubID); err != nil {
		return nil, err
	}

	seen := map[bson.ObjectID]bool{}
	var ids []bson.ObjectID
	for _, msg := range meet.Discussions {
		if !seen[msg.User] {
			seen[msg.User] = true
			ids = append(ids, msg.User)
		}
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]*entity.MessageView, 0, len(meet.Discussions))
	for i := range meet.Discussions {
		msg := &meet.Discussions[i]
		views = append(views, messageView(msg, authors[msg.User], meet.IsPinned(msg.ID)))
	}
	slices.SortStableFunc(views, func(a, b *entity.MessageView) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	return &MessageList{Messages: views, PinnedCount: len(meet.PinnedMessages)}, nil
}
