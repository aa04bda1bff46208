package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/localstore"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

// stubSession is a fixed-user ISessionService for tests that do not exercise
// the session lifecycle itself.
type stubSession struct {
	user *models.SignedInUser
}

func (s *stubSession) Start(ctx context.Context) error { return nil }
func (s *stubSession) Stop()                           {}
func (s *stubSession) SignIn(ctx context.Context, email, password string) (*models.SignedInUser, error) {
	return s.user, nil
}
func (s *stubSession) SignOut(ctx context.Context) error {
	s.user = nil
	return nil
}
func (s *stubSession) CurrentUser(ctx context.Context) (*models.SignedInUser, error) {
	if s.user == nil {
		return nil, auth.ErrNotSignedIn
	}
	u := *s.user
	return &u, nil
}
func (s *stubSession) SetSyncService(sync ISyncService) {}

// mockNotifier records share notifications.
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyShared(ctx context.Context, n *models.ShareNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// mockSyncService counts SyncNow calls.
type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) SyncNow(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func newTestKV(t *testing.T) localstore.Settings {
	kv, err := localstore.OpenSqlite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func seedUser(t *testing.T, st store.Store, id string, user models.User) {
	t.Helper()
	require.NoError(t, st.Set(context.Background(), store.Users, id, &user, false))
}

func seedCustomer(t *testing.T, st store.Store, id string, customer models.Customer) {
	t.Helper()
	require.NoError(t, st.Set(context.Background(), store.Customers, id, &customer, false))
}

func seedTemplate(t *testing.T, st store.Store, id string, tpl models.Template) {
	t.Helper()
	require.NoError(t, st.Set(context.Background(), store.Templates, id, &tpl, false))
}

func seedTag(t *testing.T, st store.Store, id string, tag models.Tag) {
	t.Helper()
	require.NoError(t, st.Set(context.Background(), store.Tags, id, &tag, false))
}

// testUser is the default signed-in projection used across service tests.
func testUser() *models.SignedInUser {
	return &models.SignedInUser{
		ID:       "user-1",
		Email:    "alice@example.com",
		Name:     "Alice",
		Customer: "cust-1",
	}
}

// seedTenant puts the default user, a second member and their customer into
// the store.
func seedTenant(t *testing.T, st store.Store) {
	t.Helper()
	seedUser(t, st, "user-1", models.User{Email: "alice@example.com", FullName: "Alice", Active: true, Customer: "cust-1"})
	seedUser(t, st, "user-2", models.User{Email: "bob@example.com", FullName: "Bob", Active: true, Customer: "cust-1"})
	seedCustomer(t, st, "cust-1", models.Customer{Owner: "user-1", Members: []string{"user-1", "user-2"}})
}
