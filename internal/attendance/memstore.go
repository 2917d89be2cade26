package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MemoryStore is a process-local Store used for development and tests.
type MemoryStore struct {
	clock clockwork.Clock

	mu            sync.RWMutex
	people        map[string]Person
	cards         map[string]string
	marks         map[string]map[string]Mark
	notifications map[string]Notification
	notifOrder    []string
	reports       map[string]DailyReport
}

// NewMemoryStore creates an empty store stamping records with clock.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:         clock,
		people:        make(map[string]Person),
		cards:         make(map[string]string),
		marks:         make(map[string]map[string]Mark),
		notifications: make(map[string]Notification),
		reports:       make(map[string]DailyReport),
	}
}

func (s *MemoryStore) ListPeople(ctx context.Context) ([]Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Person, 0, len(s.people))
	for _, p := range s.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out, nil
}

func (s *MemoryStore) GetPerson(ctx context.Context, id string) (Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return Person{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetPersonByCard(ctx context.Context, cardID string) (Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.cards[cardID]
	if !ok {
		return Person{}, ErrNotFound
	}
	return s.people[id], nil
}

func (s *MemoryStore) CreatePerson(ctx context.Context, p Person) (Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.cards[p.CardID]; taken {
		return Person{}, ErrDuplicateIdentifier
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.clock.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.people[p.ID] = p
	s.cards[p.CardID] = p.ID
	return p, nil
}

func (s *MemoryStore) UpdatePerson(ctx context.Context, p Person) (Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.people[p.ID]
	if !ok {
		return Person{}, ErrNotFound
	}
	if owner, taken := s.cards[p.CardID]; taken && owner != p.ID {
		return Person{}, ErrDuplicateIdentifier
	}
	delete(s.cards, old.CardID)
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = s.clock.Now().UTC()
	s.people[p.ID] = p
	s.cards[p.CardID] = p.ID
	return p, nil
}

func (s *MemoryStore) DeletePerson(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.people[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.people, id)
	delete(s.cards, p.CardID)
	delete(s.marks, id)
	kept := s.notifOrder[:0]
	for _, nid := range s.notifOrder {
		if s.notifications[nid].PersonID == id {
			delete(s.notifications, nid)
			continue
		}
		kept = append(kept, nid)
	}
	s.notifOrder = kept
	return nil
}

func (s *MemoryStore) GetAttendanceMark(ctx context.Context, personID string, date time.Time) (*Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.marks[personID][DateKey(date)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// InsertAttendanceMark holds the write lock across the existence check and the
// insert, which makes the (person id, date) slot first-writer-wins.
func (s *MemoryStore) InsertAttendanceMark(ctx context.Context, m Mark) (Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.people[m.PersonID]; !ok {
		return Mark{}, ErrNotFound
	}
	key := DateKey(m.Date)
	byDate := s.marks[m.PersonID]
	if byDate == nil {
		byDate = make(map[string]Mark)
		s.marks[m.PersonID] = byDate
	}
	if _, exists := byDate[key]; exists {
		return Mark{}, ErrAlreadyMarked
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Date = Today(m.Date)
	if m.MarkedAt.IsZero() {
		m.MarkedAt = s.clock.Now().UTC()
	}
	byDate[key] = m
	return m, nil
}

func (s *MemoryStore) AttendanceHistory(ctx context.Context, personID string, from, to time.Time) ([]Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from, to = Today(from), Today(to)
	var out []Mark
	for _, m := range s.marks[personID] {
		if m.Date.Before(from) || m.Date.After(to) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) ListAttendanceByDate(ctx context.Context, date time.Time) ([]Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := DateKey(date)
	var out []Mark
	for _, byDate := range s.marks {
		if m, ok := byDate[key]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.Before(out[j].MarkedAt) })
	return out, nil
}

func (s *MemoryStore) InsertNotification(ctx context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.people[n.PersonID]; !ok {
		return Notification{}, ErrNotFound
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = NotificationPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now().UTC()
	}
	s.notifications[n.ID] = n
	s.notifOrder = append(s.notifOrder, n.ID)
	return n, nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, status string) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Notification
	for _, id := range s.notifOrder {
		n := s.notifications[id]
		if status != "" && n.Status != status {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationSent(ctx context.Context, id string, at time.Time) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	if n.Status == NotificationSent {
		return n, ErrAlreadySent
	}
	at = at.UTC()
	n.Status = NotificationSent
	n.SentAt = &at
	s.notifications[id] = n
	return n, nil
}

func (s *MemoryStore) GetDailyReport(ctx context.Context, date time.Time) (*DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[DateKey(date)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *MemoryStore) InsertDailyReport(ctx context.Context, r DailyReport) (DailyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := DateKey(r.Date)
	if _, exists := s.reports[key]; exists {
		return DailyReport{}, ErrReportExists
	}
	r.Date = Today(r.Date)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now().UTC()
	}
	s.reports[key] = r
	return r, nil
}

func (s *MemoryStore) LatestDayNumber(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := 0
	for _, r := range s.reports {
		if r.DayNumber > latest {
			latest = r.DayNumber
		}
	}
	return latest, nil
}
