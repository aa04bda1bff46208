package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryIdentity is an in-process Identity used by tests and by local
// development (MOCK_SERVICES mode). Accounts are registered up front.
type MemoryIdentity struct {
	jwtSecret string

	mu        sync.Mutex
	accounts  map[string]memoryAccount // by email
	user      *User
	listeners map[int]func(*User)
	nextID    int
}

type memoryAccount struct {
	uid          string
	passwordHash string
}

// NewMemoryIdentity returns an empty identity registry. Tokens issued by
// IDToken are signed with jwtSecret.
func NewMemoryIdentity(jwtSecret string) *MemoryIdentity {
	return &MemoryIdentity{
		jwtSecret: jwtSecret,
		accounts:  map[string]memoryAccount{},
		listeners: map[int]func(*User){},
	}
}

// AddAccount registers a user that can later sign in. The password is
// stored as a bcrypt hash.
func (m *MemoryIdentity) AddAccount(uid, email, password string) {
	hash, err := HashPassword(password)
	if err != nil {
		// bcrypt only fails on oversized input
		panic(fmt.Sprintf("auth: failed to hash password for %s: %v", email, err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[email] = memoryAccount{uid: uid, passwordHash: hash}
}

func (m *MemoryIdentity) SignIn(ctx context.Context, email, password string) (*User, error) {
	m.mu.Lock()
	account, ok := m.accounts[email]
	if !ok || !CheckPasswordHash(password, account.passwordHash) {
		m.mu.Unlock()
		return nil, fmt.Errorf("invalid credentials for %s", email)
	}
	user := &User{UID: account.uid, Email: email, CreatedDatetime: time.Now().UTC()}
	m.user = user
	fns := m.listenerList()
	m.mu.Unlock()

	notify(fns, user)
	return user, nil
}

func (m *MemoryIdentity) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.user = nil
	fns := m.listenerList()
	m.mu.Unlock()

	notify(fns, nil)
	return nil
}

func (m *MemoryIdentity) CurrentUser(ctx context.Context) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, ErrNotSignedIn
	}
	u := *m.user
	return &u, nil
}

func (m *MemoryIdentity) IDToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	user := m.user
	m.mu.Unlock()

	if user == nil {
		return "", ErrNotSignedIn
	}
	return GenerateJWT(user.UID, user.Email, m.jwtSecret, time.Hour)
}

func (m *MemoryIdentity) OnAuthStateChanged(fn func(*User)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *MemoryIdentity) listenerList() []func(*User) {
	fns := make([]func(*User), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return fns
}
