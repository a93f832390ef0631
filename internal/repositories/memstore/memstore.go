// Package memstore keeps every repository in process memory. It backs
// STORAGE_BACKEND=memory and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

// Operation names accepted by Fail.
const (
	OpConversationsList   = "conversations.list"
	OpConversationsInsert = "conversations.insert"
	OpConversationsUpdate = "conversations.update"
	OpMessagesInsert      = "messages.insert"
	OpMessagesConfirm     = "messages.confirm"
	OpMessagesList        = "messages.list"
	OpMessagesMarkRead    = "messages.mark_read"
	OpUsernamesInsert     = "usernames.insert"
	OpProfilesGet         = "profiles.get"
	OpBookingsUpdate      = "bookings.update"
)

// Store is a mutex-guarded set of maps.
type Store struct {
	mu sync.RWMutex

	conversations map[string]models.Conversation
	messages      map[string]models.Message
	profiles      map[string]models.UserProfile
	usernames     map[string]models.UsernameRecord
	listings      map[string]models.CarListing
	bookings      map[string]models.Booking
	makes         map[string]models.CarMake

	faults map[string]error

	// Now is the store clock used for ConfirmSent.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string]models.Message),
		profiles:      make(map[string]models.UserProfile),
		usernames:     make(map[string]models.UsernameRecord),
		listings:      make(map[string]models.CarListing),
		bookings:      make(map[string]models.Booking),
		makes:         make(map[string]models.CarMake),
		faults:        make(map[string]error),
		Now:           time.Now,
	}
}

// Fail makes every later call of op return err. A nil err clears the fault.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// fault must be called with mu held.
func (s *Store) fault(op string) error {
	return s.faults[op]
}

func (s *Store) Conversations() repositories.Conversations { return conversationRepo{s} }
func (s *Store) Messages() repositories.Messages           { return messageRepo{s} }
func (s *Store) Profiles() repositories.Profiles           { return profileRepo{s} }
func (s *Store) Listings() repositories.Listings           { return listingRepo{s} }
func (s *Store) Bookings() repositories.Bookings           { return bookingRepo{s} }
func (s *Store) CarMakes() repositories.CarMakes           { return makeRepo{s} }

// --- conversations ---

type conversationRepo struct{ s *Store }

func cloneConversation(c models.Conversation) models.Conversation {
	c.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		c.LastMessage = &lm
	}
	return c
}

func (r conversationRepo) ListByParticipant(ctx context.Context, uid string) ([]models.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault(OpConversationsList); err != nil {
		return nil, err
	}
	var out []models.Conversation
	for _, c := range r.s.conversations {
		if c.HasParticipant(uid) {
			out = append(out, cloneConversation(c))
		}
	}
	// Map order is random; keep results stable by id.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r conversationRepo) Get(ctx context.Context, id string) (*models.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c = cloneConversation(c)
	return &c, nil
}

func (r conversationRepo) Insert(ctx context.Context, c *models.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpConversationsInsert); err != nil {
		return err
	}
	if _, ok := r.s.conversations[c.ID]; ok {
		return repositories.ErrDuplicate
	}
	r.s.conversations[c.ID] = cloneConversation(*c)
	return nil
}

func (r conversationRepo) UpdateLastMessage(ctx context.Context, id string, last models.LastMessage, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpConversationsUpdate); err != nil {
		return err
	}
	c, ok := r.s.conversations[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.LastMessage = &last
	c.UpdatedAt = updatedAt
	r.s.conversations[id] = c
	return nil
}

// --- messages ---

type messageRepo struct{ s *Store }

func cloneMessage(m models.Message) models.Message {
	if m.SentAt.Server != nil {
		t := *m.SentAt.Server
		m.SentAt.Server = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		m.ReadAt = &t
	}
	return m
}

func (r messageRepo) Insert(ctx context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpMessagesInsert); err != nil {
		return err
	}
	if _, ok := r.s.messages[m.ID]; ok {
		return repositories.ErrDuplicate
	}
	r.s.messages[m.ID] = cloneMessage(*m)
	return nil
}

func (r messageRepo) ConfirmSent(ctx context.Context, id string) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpMessagesConfirm); err != nil {
		return time.Time{}, err
	}
	m, ok := r.s.messages[id]
	if !ok {
		return time.Time{}, repositories.ErrNotFound
	}
	now := r.s.Now().UTC()
	m.SentAt.Server = &now
	r.s.messages[id] = m
	return now, nil
}

func (r messageRepo) list(conversationID string, keep func(models.Message) bool) ([]models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault(OpMessagesList); err != nil {
		return nil, err
	}
	var out []models.Message
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && keep(m) {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r messageRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	return r.list(conversationID, func(models.Message) bool { return true })
}

func (r messageRepo) ListUnread(ctx context.Context, conversationID, senderID string) ([]models.Message, error) {
	return r.list(conversationID, func(m models.Message) bool {
		return m.SenderID == senderID && !m.Read
	})
}

func (r messageRepo) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	msgs, err := r.ListByConversation(ctx, conversationID)
	return len(msgs), err
}

func (r messageRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpMessagesMarkRead); err != nil {
		return err
	}
	m, ok := r.s.messages[id]
	if !ok {
		return repositories.ErrNotFound
	}
	m.Read = true
	m.ReadAt = &at
	r.s.messages[id] = m
	return nil
}

// --- profiles ---

type profileRepo struct{ s *Store }

func (r profileRepo) Get(ctx context.Context, uid string) (*models.UserProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault(OpProfilesGet); err != nil {
		return nil, err
	}
	p, ok := r.s.profiles[uid]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

func (r profileRepo) ResolveUsername(ctx context.Context, usernameLower string) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.usernames[usernameLower]
	if !ok {
		return "", repositories.ErrNotFound
	}
	return rec.UID, nil
}

func (r profileRepo) Save(ctx context.Context, p *models.UserProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.profiles[p.ID] = *p
	return nil
}

// SaveWithUsername stages every write on a copy of the username index and
// commits only when all steps succeed.
func (r profileRepo) SaveWithUsername(ctx context.Context, p *models.UserProfile, previousLower string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	staged := make(map[string]models.UsernameRecord, len(r.s.usernames)+1)
	for k, v := range r.s.usernames {
		staged[k] = v
	}

	if previousLower != "" {
		if rec, ok := staged[previousLower]; ok && rec.UID == p.ID {
			delete(staged, previousLower)
		}
	}
	if err := r.s.fault(OpUsernamesInsert); err != nil {
		return err
	}
	if rec, ok := staged[p.UsernameLower]; ok && rec.UID != p.ID {
		return repositories.ErrDuplicate
	}
	staged[p.UsernameLower] = models.UsernameRecord{
		Username:  p.UsernameLower,
		UID:       p.ID,
		CreatedAt: p.UpdatedAt,
	}

	r.s.usernames = staged
	r.s.profiles[p.ID] = *p
	return nil
}

// --- listings ---

type listingRepo struct{ s *Store }

func cloneListing(l models.CarListing) models.CarListing {
	l.Features = append([]string(nil), l.Features...)
	l.Photos = append([]string(nil), l.Photos...)
	return l
}

func (r listingRepo) Insert(ctx context.Context, l *models.CarListing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.listings[l.ID]; ok {
		return repositories.ErrDuplicate
	}
	r.s.listings[l.ID] = cloneListing(*l)
	return nil
}

func (r listingRepo) Update(ctx context.Context, l *models.CarListing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.listings[l.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.s.listings[l.ID] = cloneListing(*l)
	return nil
}

func (r listingRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.listings[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.s.listings, id)
	return nil
}

func (r listingRepo) Get(ctx context.Context, id string) (*models.CarListing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.listings[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	l = cloneListing(l)
	return &l, nil
}

func (r listingRepo) filter(keep func(models.CarListing) bool) []models.CarListing {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.CarListing
	for _, l := range r.s.listings {
		if keep(l) {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r listingRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.CarListing, error) {
	return r.filter(func(l models.CarListing) bool { return l.OwnerID == ownerID }), nil
}

func (r listingRepo) ListActive(ctx context.Context) ([]models.CarListing, error) {
	return r.filter(func(l models.CarListing) bool { return l.Status == models.CarActive }), nil
}

// --- bookings ---

type bookingRepo struct{ s *Store }

func (r bookingRepo) Insert(ctx context.Context, b *models.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookings[b.ID]; ok {
		return repositories.ErrDuplicate
	}
	r.s.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) Get(ctx context.Context, id string) (*models.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &b, nil
}

func (r bookingRepo) UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpBookingsUpdate); err != nil {
		return err
	}
	b, ok := r.s.bookings[id]
	if !ok || b.Status != from {
		return repositories.ErrNotFound
	}
	b.Status = to
	b.UpdatedAt = at
	r.s.bookings[id] = b
	return nil
}

func (r bookingRepo) filter(keep func(models.Booking) bool) []models.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Booking
	for _, b := range r.s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r bookingRepo) ListByRenter(ctx context.Context, renterID string) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool { return b.RenterID == renterID }), nil
}

func (r bookingRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool { return b.OwnerID == ownerID }), nil
}

func (r bookingRepo) ListByCar(ctx context.Context, carID string) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool { return b.CarID == carID }), nil
}

// --- car makes ---

type makeRepo struct{ s *Store }

func (r makeRepo) List(ctx context.Context) ([]models.CarMake, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.CarMake, 0, len(r.s.makes))
	for _, m := range r.s.makes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r makeRepo) InsertMany(ctx context.Context, makes []models.CarMake) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range makes {
		if _, ok := r.s.makes[m.ID]; ok {
			return repositories.ErrDuplicate
		}
	}
	for _, m := range makes {
		r.s.makes[m.ID] = m
	}
	return nil
}

// BookingEvents is an in-memory audit trail for STORAGE_BACKEND=memory.
type BookingEvents struct {
	mu     sync.Mutex
	events []models.BookingEvent
}

func (e *BookingEvents) Record(ctx context.Context, ev models.BookingEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *BookingEvents) ListByBooking(ctx context.Context, bookingID string) ([]models.BookingEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.BookingEvent
	for _, ev := range e.events {
		if ev.BookingID == bookingID {
			out = append(out, ev)
		}
	}
	return out, nil
}
