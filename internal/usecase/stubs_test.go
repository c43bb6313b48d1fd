package usecase_test

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/domain"
)

type memUsers struct {
	mu    sync.Mutex
	users []domain.User
	err   error
}

func (r *memUsers) Create(_ domain.Context, u domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.User{}, r.err
	}
	for _, x := range r.users {
		if x.Email == u.Email || x.Username == u.Username {
			return domain.User{}, domain.ErrConflict
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.users = append(r.users, u)
	return u, nil
}

func (r *memUsers) GetByID(_ domain.Context, id uuid.UUID) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *memUsers) GetByEmail(_ domain.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *memUsers) ExistsByEmail(ctx domain.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r *memUsers) ExistsByUsername(_ domain.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]domain.OtpSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[uuid.UUID]domain.OtpSession{}}
}

func (r *memSessions) Create(_ domain.Context, s domain.OtpSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessions) Get(_ domain.Context, id uuid.UUID) (domain.OtpSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.OtpSession{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *memSessions) ClaimAttempt(_ domain.Context, id uuid.UUID, max int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Attempts >= max {
		return 0, domain.ErrNotFound
	}
	s.Attempts++
	r.sessions[id] = s
	return s.Attempts, nil
}

func (r *memSessions) Renew(_ domain.Context, id uuid.UUID, otpHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.OtpHash, s.Attempts, s.ExpiresAt = otpHash, 0, expiresAt
	r.sessions[id] = s
	return nil
}

func (r *memSessions) Delete(_ domain.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memSessions) DeleteExpired(_ domain.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// expire moves a session's expiry into the past.
func (r *memSessions) expire(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	s.ExpiresAt = time.Now().Add(-time.Second)
	r.sessions[id] = s
}

type captureMailer struct {
	mu    sync.Mutex
	codes map[string][]string
	err   error
	// gate, when set, holds every send until it is closed.
	gate chan struct{}
}

func (m *captureMailer) SendOTP(_ domain.Context, to, code string, _ time.Duration) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string][]string{}
	}
	m.codes[to] = append(m.codes[to], code)
	return m.err
}

func (m *captureMailer) last(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.codes[to]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

type countingLimiter struct {
	mu    sync.Mutex
	limit int
	hits  map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ domain.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return true, 0, l.err
	}
	if l.hits == nil {
		l.hits = map[string]int{}
	}
	l.hits[key]++
	if l.hits[key] > l.limit {
		return false, time.Minute, nil
	}
	return true, 0, nil
}

type memBlobs struct {
	mu      sync.Mutex
	folders []string
	err     error
}

func (b *memBlobs) Put(_ domain.Context, folder, filename string, _ []byte, _ string) (domain.StoredObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return domain.StoredObject{}, b.err
	}
	b.folders = append(b.folders, folder)
	id := folder + "/" + uuid.NewString()
	return domain.StoredObject{PublicID: id, URL: "https://img.test/" + id + "-" + filename}, nil
}
