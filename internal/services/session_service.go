package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/cache"
	"quicktexts/engine/internal/localstore"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

// currentUserKey is the settings key the signed-in projection persists under.
const currentUserKey = "user"

// ISessionService owns the single signed-in slot: it reacts to identity
// provider state, keeps the SignedInUser projection fresh, and holds the
// remote subscriptions that invalidate the template cache.
type ISessionService interface {
	Start(ctx context.Context) error
	Stop()
	SignIn(ctx context.Context, email, password string) (*models.SignedInUser, error)
	SignOut(ctx context.Context) error
	// CurrentUser returns the signed-in projection, or auth.ErrNotSignedIn.
	CurrentUser(ctx context.Context) (*models.SignedInUser, error)
	SetSyncService(sync ISyncService)
}

// sessionService implements ISessionService.
type sessionService struct {
	store    store.Store
	identity auth.Identity
	kv       localstore.Settings
	tplCache *cache.TemplateCache

	// settleDelay is how long to wait after a sign-in before reading the
	// user document; backend triggers may still be provisioning it.
	settleDelay time.Duration

	syncSvc ISyncService // injected via SetSyncService to break the dependency cycle

	mu       sync.Mutex
	current  *models.SignedInUser
	authUser *auth.User
	unsubs   []func()

	authUnsub func()
}

// NewSessionService creates a new SessionService.
func NewSessionService(st store.Store, identity auth.Identity, kv localstore.Settings, tplCache *cache.TemplateCache, settleDelay time.Duration) ISessionService {
	return &sessionService{
		store:       st,
		identity:    identity,
		kv:          kv,
		tplCache:    tplCache,
		settleDelay: settleDelay,
	}
}

// SetSyncService injects the sync service after construction.
// SyncService depends on SessionService for the current user, so this side
// of the cycle is wired via a setter.
func (s *sessionService) SetSyncService(sync ISyncService) {
	s.syncSvc = sync
}

// Start registers the auth listener and, when the identity provider reports
// a signed-in user, resumes the session: the persisted projection is loaded
// first so reads work before the remote refresh completes.
func (s *sessionService) Start(ctx context.Context) error {
	s.authUnsub = s.identity.OnAuthStateChanged(s.handleAuthChange)

	u, err := s.identity.CurrentUser(ctx)
	if errors.Is(err, auth.ErrNotSignedIn) {
		// Stale projections from a previous run must not outlive the token.
		if err := s.kv.Delete(ctx, currentUserKey); err != nil {
			log.Printf("Failed to drop stale user projection: %v", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query identity provider: %w", err)
	}

	if raw, ok, err := s.kv.Get(ctx, currentUserKey); err == nil && ok {
		var signed models.SignedInUser
		if json.Unmarshal(raw, &signed) == nil && signed.ID == u.UID {
			s.mu.Lock()
			s.current = &signed
			s.authUser = u
			s.mu.Unlock()
		}
	}

	return s.establish(ctx, u)
}

// Stop cancels the auth listener and all remote subscriptions.
func (s *sessionService) Stop() {
	if s.authUnsub != nil {
		s.authUnsub()
		s.authUnsub = nil
	}
	s.dropSubscriptions()
}

// SignIn authenticates and establishes the session synchronously so the
// caller gets back a usable projection.
func (s *sessionService) SignIn(ctx context.Context, email, password string) (*models.SignedInUser, error) {
	u, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("sign-in failed: %w", err)
	}

	time.Sleep(s.settleDelay)

	if err := s.establish(ctx, u); err != nil {
		return nil, err
	}
	return s.CurrentUser(ctx)
}

// SignOut drops the identity session and tears down the local one. Local
// templates are deliberately kept.
func (s *sessionService) SignOut(ctx context.Context) error {
	if err := s.identity.SignOut(ctx); err != nil {
		return fmt.Errorf("sign-out failed: %w", err)
	}
	s.teardown(ctx)
	return nil
}

// CurrentUser returns the signed-in projection, or auth.ErrNotSignedIn.
func (s *sessionService) CurrentUser(ctx context.Context) (*models.SignedInUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, auth.ErrNotSignedIn
	}
	current := *s.current
	return &current, nil
}

// handleAuthChange is the auth.Identity listener. Sign-ins are handled on a
// goroutine after the settle delay; sign-outs immediately.
func (s *sessionService) handleAuthChange(u *auth.User) {
	if u == nil {
		s.teardown(context.Background())
		return
	}
	go func() {
		time.Sleep(s.settleDelay)
		if err := s.establish(context.Background(), u); err != nil {
			log.Printf("Failed to establish session for %s: %v", u.UID, err)
		}
	}()
}

// establish builds the projection, sets up remote subscriptions and runs an
// initial sync. It is idempotent: a session already live for this user is
// left alone, so the explicit SignIn path and the auth listener do not race.
func (s *sessionService) establish(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	if s.current != nil && s.current.ID == u.UID && len(s.unsubs) > 0 {
		s.mu.Unlock()
		return nil
	}
	s.authUser = u
	s.mu.Unlock()

	signed, err := s.refreshUser(ctx, u)
	if err != nil {
		return err
	}

	if err := s.watchRemote(signed); err != nil {
		log.Printf("Failed to subscribe to remote changes: %v", err)
	}

	if s.syncSvc != nil {
		if err := s.syncSvc.SyncNow(ctx); err != nil {
			log.Printf("Initial sync failed: %v", err)
		}
	}
	return nil
}

// refreshUser rebuilds the SignedInUser projection from the users and
// customers collections and persists it.
func (s *sessionService) refreshUser(ctx context.Context, u *auth.User) (*models.SignedInUser, error) {
	doc, err := s.store.Get(ctx, store.Users, u.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", u.UID, err)
	}
	var user models.User
	if err := doc.Decode(&user); err != nil {
		return nil, err
	}
	user.ID = doc.ID

	var customer models.Customer
	if user.Customer != "" {
		cdoc, err := s.store.Get(ctx, store.Customers, user.Customer)
		if err != nil {
			return nil, fmt.Errorf("failed to load customer %s: %w", user.Customer, err)
		}
		if err := cdoc.Decode(&customer); err != nil {
			return nil, err
		}
		customer.ID = cdoc.ID
	}

	email := user.Email
	if email == "" {
		email = u.Email
	}

	signed := &models.SignedInUser{
		ID:         user.ID,
		Email:      email,
		Name:       user.FullName,
		Customer:   user.Customer,
		IsCustomer: customer.Owner != "" && customer.Owner == user.ID,
		ShareAll:   user.ShareAll,
		Subscription: models.Subscription{
			Plan:     customer.Subscription.Plan,
			Quantity: customer.Subscription.Quantity,
			Active:   customer.Subscription.Plan != "" && customer.Subscription.CanceledDatetime == nil,
		},
		CreatedDatetime: u.CreatedDatetime,
	}

	if err := s.kv.Set(ctx, currentUserKey, signed); err != nil {
		log.Printf("Failed to persist user projection: %v", err)
	}

	s.mu.Lock()
	s.current = signed
	s.mu.Unlock()

	return signed, nil
}

// watchRemote sets up the live subscriptions for the user: three template
// views plus the customer document. Any template event invalidates the whole
// cache; membership of a template in the visible set cannot be decided from
// a single change event.
func (s *sessionService) watchRemote(u *models.SignedInUser) error {
	s.dropSubscriptions()

	invalidate := func() { s.tplCache.Invalidate() }

	watches := []struct {
		collection string
		query      store.Query
		fn         func()
	}{
		{store.Templates, store.Where("owner", store.OpEqual, u.ID), invalidate},
		{store.Templates, store.Where("shared_with", store.OpArrayContains, u.ID), invalidate},
		{store.Templates, store.Where("customer", store.OpEqual, u.Customer).Where("sharing", store.OpEqual, string(models.SharingEveryone)), invalidate},
		{store.Customers, store.Where("members", store.OpArrayContains, u.ID), func() {
			invalidate()
			s.onCustomerChanged()
		}},
	}

	var unsubs []func()
	for _, w := range watches {
		unsub, err := s.store.Subscribe(w.collection, w.query, w.fn)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return err
		}
		unsubs = append(unsubs, unsub)
	}

	s.mu.Lock()
	s.unsubs = unsubs
	s.mu.Unlock()
	return nil
}

// onCustomerChanged re-derives the projection; member lists and subscription
// state live on the customer document.
func (s *sessionService) onCustomerChanged() {
	s.mu.Lock()
	u := s.authUser
	s.mu.Unlock()
	if u == nil {
		return
	}
	if _, err := s.refreshUser(context.Background(), u); err != nil {
		log.Printf("Failed to refresh user after customer change: %v", err)
	}
}

func (s *sessionService) dropSubscriptions() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// teardown clears the session state after a sign-out.
func (s *sessionService) teardown(ctx context.Context) {
	s.dropSubscriptions()

	s.mu.Lock()
	s.current = nil
	s.authUser = nil
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, currentUserKey); err != nil {
		log.Printf("Failed to drop user projection: %v", err)
	}
	s.tplCache.Invalidate()
}
