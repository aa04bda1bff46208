package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

func TestMemberService_GetMembers(t *testing.T) {
	st := store.NewMemoryStore()
	seedTenant(t, st)
	seedUser(t, st, "user-3", models.User{Email: "carol@example.com", FullName: "Carol", Active: false, Customer: "cust-1"})
	seedCustomer(t, st, "cust-1", models.Customer{Owner: "user-1", Members: []string{"user-1", "user-2", "user-3", "user-gone"}})

	svc := NewMemberService(st, &stubSession{user: testUser()})
	ctx := context.Background()

	// nil exclude drops the caller; inactive and dangling members are
	// dropped regardless.
	members, err := svc.GetMembers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "user-2", members[0].TargetUserID)
	assert.Equal(t, "bob@example.com", members[0].Email)
	assert.Equal(t, "Bob", members[0].Name)

	// An empty non-nil exclude keeps everyone.
	members, err = svc.GetMembers(ctx, []string{})
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// Explicit exclusion.
	members, err = svc.GetMembers(ctx, []string{"user-2"})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "user-1", members[0].TargetUserID)
}

func TestMemberService_Customer(t *testing.T) {
	st := store.NewMemoryStore()
	seedTenant(t, st)

	svc := NewMemberService(st, &stubSession{user: testUser()})

	customer, err := svc.Customer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cust-1", customer.ID)
	assert.Equal(t, "user-1", customer.Owner)
	assert.Equal(t, []string{"user-1", "user-2"}, customer.Members)
}

func TestMemberService_SignedOut(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewMemberService(st, &stubSession{})

	_, err := svc.GetMembers(context.Background(), nil)
	assert.ErrorIs(t, err, auth.ErrNotSignedIn)
}
