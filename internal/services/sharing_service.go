package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

// Notifier delivers share notifications. Production uses the task queue;
// tests plug in a mock.
type Notifier interface {
	NotifyShared(ctx context.Context, n *models.ShareNotification) error
}

// ISharingService manages template ACLs.
type ISharingService interface {
	// GetSharing returns the union of the templates' ACLs, each user once
	// with owners listed first. shared_with ids that no longer resolve to a
	// customer member are dropped.
	GetSharing(ctx context.Context, templateIDs []string) ([]models.ACLEntry, error)
	UpdateSharing(ctx context.Context, upd *models.SharingUpdate) error
	// Flush commits any debounced share removals immediately.
	Flush()
}

// sharingService implements ISharingService.
//
// Share removals are debounced: rapid-fire "unshare" clicks from the UI are
// collected for flushDelay and committed as one batch. Flush errors are
// logged rather than returned since the caller is long gone by then.
type sharingService struct {
	store    store.Store
	session  ISessionService
	members  IMemberService
	notifier Notifier

	flushDelay time.Duration

	mu       sync.Mutex
	removals map[string]map[string]bool // template id -> user ids to remove
	timer    *time.Timer
}

// NewSharingService creates a new SharingService. notifier may be nil when
// notifications are not configured.
func NewSharingService(st store.Store, session ISessionService, members IMemberService, notifier Notifier, flushDelay time.Duration) ISharingService {
	return &sharingService{
		store:      st,
		session:    session,
		members:    members,
		notifier:   notifier,
		flushDelay: flushDelay,
	}
}

func (s *sharingService) GetSharing(ctx context.Context, templateIDs []string) ([]models.ACLEntry, error) {
	if _, err := s.session.CurrentUser(ctx); err != nil {
		return nil, err
	}

	// Include the caller: they may be the owner or a share target.
	members, err := s.members.GetMembers(ctx, []string{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.ACLEntry, len(members))
	for _, m := range members {
		byID[m.TargetUserID] = m
	}

	templates := make([]models.Template, 0, len(templateIDs))
	for _, id := range templateIDs {
		doc, err := s.store.Get(ctx, store.Templates, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", id, err)
		}
		var tpl models.Template
		if err := doc.Decode(&tpl); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}

	var acl []models.ACLEntry
	seen := map[string]bool{}
	add := func(userID string, force bool) {
		if userID == "" || seen[userID] {
			return
		}
		entry, ok := byID[userID]
		if !ok {
			if !force {
				return
			}
			entry = models.ACLEntry{TargetUserID: userID}
		}
		seen[userID] = true
		acl = append(acl, entry)
	}

	// Owners always have access regardless of sharing state and lead the
	// list; share targets follow, each user listed once across the set.
	for _, tpl := range templates {
		add(tpl.Owner, true)
	}
	for _, tpl := range templates {
		switch tpl.Sharing {
		case models.SharingCustom:
			for _, userID := range tpl.SharedWith {
				add(userID, false)
			}
		case models.SharingEveryone:
			for _, m := range members {
				add(m.TargetUserID, false)
			}
		}
	}
	return acl, nil
}

func (s *sharingService) UpdateSharing(ctx context.Context, upd *models.SharingUpdate) error {
	me, err := s.session.CurrentUser(ctx)
	if err != nil {
		return err
	}

	switch upd.Action {
	case models.SharingActionCreate, models.SharingActionUpdate:
		return s.applySharing(ctx, me, upd)
	case models.SharingActionDelete:
		return s.queueRemovals(ctx, me, upd.TemplateIDs, upd.UserID)
	default:
		return fmt.Errorf("unknown sharing action %q", upd.Action)
	}
}

// applySharing sets each template's sharing fields from its email list. A
// template whose email set, together with the caller, covers every customer
// member is promoted to everyone-sharing.
func (s *sharingService) applySharing(ctx context.Context, me *models.SignedInUser, upd *models.SharingUpdate) error {
	members, err := s.members.GetMembers(ctx, []string{})
	if err != nil {
		return err
	}

	byEmail := make(map[string]models.ACLEntry, len(members))
	memberEmails := make(map[string]bool, len(members))
	for _, m := range members {
		byEmail[m.Email] = m
		memberEmails[m.Email] = true
	}

	now := time.Now().UTC()
	notified := map[string]models.ACLEntry{}
	batch := s.store.Batch()

	for tplID, emails := range upd.Templates {
		doc, err := s.store.Get(ctx, store.Templates, tplID)
		if err != nil {
			return fmt.Errorf("failed to load template %s: %w", tplID, err)
		}
		var tpl models.Template
		if err := doc.Decode(&tpl); err != nil {
			return err
		}

		requested := map[string]bool{strings.ToLower(me.Email): true}
		for _, email := range emails {
			requested[strings.ToLower(email)] = true
		}

		everyone := true
		for email := range memberEmails {
			if !requested[email] {
				everyone = false
				break
			}
		}

		var sharing models.Sharing
		var sharedWith []string
		if everyone {
			sharing = models.SharingEveryone
			for _, m := range members {
				if m.TargetUserID == tpl.Owner {
					continue
				}
				sharedWith = append(sharedWith, m.TargetUserID)
			}
		} else {
			sharing = models.SharingCustom
			for _, email := range emails {
				entry, ok := byEmail[strings.ToLower(email)]
				if !ok || entry.TargetUserID == tpl.Owner {
					continue
				}
				sharedWith = append(sharedWith, entry.TargetUserID)
			}
			if len(sharedWith) == 0 {
				sharing = models.SharingNone
			}
		}

		if sharedWith == nil {
			sharedWith = []string{}
		}
		batch.Update(store.Templates, tplID, map[string]interface{}{
			"sharing":           string(sharing),
			"shared_with":       sharedWith,
			"modified_datetime": now,
		})

		for _, userID := range sharedWith {
			if userID == me.ID {
				continue
			}
			if entry, ok := byID(members, userID); ok {
				notified[userID] = entry
			}
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to update sharing: %w", err)
	}

	if upd.Notify && s.notifier != nil && len(notified) > 0 {
		users := make([]models.ACLEntry, 0, len(notified))
		for _, entry := range notified {
			users = append(users, entry)
		}
		templateIDs := make([]string, 0, len(upd.Templates))
		for tplID := range upd.Templates {
			templateIDs = append(templateIDs, tplID)
		}
		n := &models.ShareNotification{
			Users:       users,
			TemplateIDs: templateIDs,
			Message:     upd.Message,
			SenderID:    me.ID,
			SenderName:  me.Name,
		}
		if err := s.notifier.NotifyShared(ctx, n); err != nil {
			// Sharing itself succeeded; a lost notification is not fatal.
			log.Printf("Failed to send share notification: %v", err)
		}
	}
	return nil
}

func byID(members []models.ACLEntry, userID string) (models.ACLEntry, bool) {
	for _, m := range members {
		if m.TargetUserID == userID {
			return m, true
		}
	}
	return models.ACLEntry{}, false
}

// queueRemovals adds (template, user) pairs to the pending batch and arms
// the debounce timer. A template's owner may remove anyone; other callers
// may only remove themselves, so pairs the caller has no say over are
// dropped.
func (s *sharingService) queueRemovals(ctx context.Context, me *models.SignedInUser, templateIDs []string, userID string) error {
	if userID == "" || len(templateIDs) == 0 {
		return nil
	}

	var eligible []string
	for _, tplID := range templateIDs {
		doc, err := s.store.Get(ctx, store.Templates, tplID)
		if err != nil {
			return fmt.Errorf("failed to load template %s: %w", tplID, err)
		}
		var tpl models.Template
		if err := doc.Decode(&tpl); err != nil {
			return err
		}
		if tpl.Owner != me.ID && userID != me.ID {
			continue
		}
		eligible = append(eligible, tplID)
	}
	if len(eligible) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removals == nil {
		s.removals = map[string]map[string]bool{}
	}
	for _, tplID := range eligible {
		if s.removals[tplID] == nil {
			s.removals[tplID] = map[string]bool{}
		}
		s.removals[tplID][userID] = true
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.flushDelay, s.Flush)
	return nil
}

// Flush commits the pending removals: one batch pulls the users out of
// shared_with, then every touched template whose shared_with came up empty
// is downgraded to sharing none.
func (s *sharingService) Flush() {
	s.mu.Lock()
	removals := s.removals
	s.removals = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if len(removals) == 0 {
		return
	}

	ctx := context.Background()
	now := time.Now().UTC()
	batch := s.store.Batch()
	touched := make([]string, 0, len(removals))
	for tplID, userIDs := range removals {
		values := make([]interface{}, 0, len(userIDs))
		for userID := range userIDs {
			values = append(values, userID)
		}
		// Removing named users from an everyone-template turns it into a
		// custom share of whoever is left.
		batch.Update(store.Templates, tplID, map[string]interface{}{
			"shared_with":       store.RemoveFromArray(values...),
			"sharing":           string(models.SharingCustom),
			"modified_datetime": now,
		})
		touched = append(touched, tplID)
	}

	if err := batch.Commit(ctx); err != nil {
		log.Printf("Failed to commit share removals: %v", err)
		return
	}

	for _, tplID := range touched {
		doc, err := s.store.Get(ctx, store.Templates, tplID)
		if err != nil {
			log.Printf("Failed to re-read template %s after share removal: %v", tplID, err)
			continue
		}
		var tpl models.Template
		if err := doc.Decode(&tpl); err != nil {
			log.Printf("Failed to decode template %s after share removal: %v", tplID, err)
			continue
		}
		if len(tpl.SharedWith) == 0 {
			updates := map[string]interface{}{"sharing": string(models.SharingNone)}
			if err := s.store.Update(ctx, store.Templates, tplID, updates); err != nil {
				log.Printf("Failed to downgrade sharing of template %s: %v", tplID, err)
			}
		}
	}
}
