package login

import (
	"sync"
	"time"
)

// Pending — незавершённая попытка входа одного посетителя формы.
type Pending struct {
	Phone string
	// CodeHash — phone_code_hash из ответа auth.sendCode, нужен для auth.signIn.
	CodeHash string
	// NeedPassword выставляется, когда Telegram потребовал пароль 2FA.
	NeedPassword bool

	lastSeen time.Time
}

// PendingStore хранит попытки входа по идентификатору посетителя (cookie) со сроком жизни.
// Состояние не переживает рестарт.
type PendingStore struct {
	mu    sync.Mutex
	items map[string]*Pending // requester -> attempt
	ttl   time.Duration
	now   func() time.Time
}

// NewPendingStore создаёт хранилище; попытки без активности дольше ttl считаются брошенными.
func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		items: make(map[string]*Pending),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get возвращает копию попытки посетителя и продлевает её срок.
func (s *PendingStore) Get(requester string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.items[requester]
	if !ok {
		return Pending{}, false
	}
	now := s.now()
	if s.expired(p, now) {
		delete(s.items, requester)
		return Pending{}, false
	}
	p.lastSeen = now
	return *p, true
}

// Put сохраняет (перезаписывает) попытку посетителя.
func (s *PendingStore) Put(requester string, p Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.lastSeen = s.now()
	s.items[requester] = &p
}

// Reset забывает все попытки (после успешного входа они больше не нужны).
func (s *PendingStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*Pending)
}

// CleanExpired удаляет брошенные попытки и возвращает их количество.
func (s *PendingStore) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, p := range s.items {
		if s.expired(p, now) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// Len — число живых попыток.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *PendingStore) expired(p *Pending, now time.Time) bool {
	return s.ttl > 0 && now.Sub(p.lastSeen) > s.ttl
}
