package services

import (
	"context"
	"fmt"
	"strings"

	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

// IMemberService resolves the caller's customer members into ACL entries.
type IMemberService interface {
	// GetMembers lists the active members of the caller's customer as ACL
	// entries. Ids in exclude are dropped; a nil exclude drops the caller,
	// an empty non-nil exclude drops nobody.
	GetMembers(ctx context.Context, exclude []string) ([]models.ACLEntry, error)
	// Customer returns the caller's customer document.
	Customer(ctx context.Context) (*models.Customer, error)
}

// memberService implements IMemberService.
type memberService struct {
	store   store.Store
	session ISessionService
}

// NewMemberService creates a new MemberService.
func NewMemberService(st store.Store, session ISessionService) IMemberService {
	return &memberService{store: st, session: session}
}

func (m *memberService) Customer(ctx context.Context) (*models.Customer, error) {
	me, err := m.session.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := m.store.Get(ctx, store.Customers, me.Customer)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer %s: %w", me.Customer, err)
	}
	var customer models.Customer
	if err := doc.Decode(&customer); err != nil {
		return nil, err
	}
	customer.ID = doc.ID
	return &customer, nil
}

func (m *memberService) GetMembers(ctx context.Context, exclude []string) ([]models.ACLEntry, error) {
	me, err := m.session.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if exclude == nil {
		exclude = []string{me.ID}
	}
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	customer, err := m.Customer(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.ACLEntry, 0, len(customer.Members))
	for _, id := range customer.Members {
		if excluded[id] {
			continue
		}
		doc, err := m.store.Get(ctx, store.Users, id)
		if err != nil {
			// Member lists can reference users that were since removed.
			continue
		}
		var user models.User
		if err := doc.Decode(&user); err != nil {
			return nil, err
		}
		if !user.Active {
			continue
		}
		entries = append(entries, models.ACLEntry{
			TargetUserID: doc.ID,
			Email:        strings.ToLower(user.Email),
			Name:         user.FullName,
		})
	}
	return entries, nil
}
