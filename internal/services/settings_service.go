package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/localstore"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

// settingsKey is the settings-store key the local overrides live under.
const settingsKey = "settings"

// ISettingsService merges extension preferences from three layers: defaults,
// the synced user document, and local overrides made since the last push.
type ISettingsService interface {
	Get(ctx context.Context) (models.Settings, error)
	// Set records local overrides. They apply immediately and are pushed to
	// the user document on the next sync.
	Set(ctx context.Context, values map[string]interface{}) error
	// Push writes local overrides to the user document as dotted settings.*
	// fields and clears them. A no-op while signed out.
	Push(ctx context.Context) error
}

// settingsService implements ISettingsService with a single-slot cache of
// the merged result.
type settingsService struct {
	store   store.Store
	kv      localstore.Settings
	session ISessionService

	mu        sync.Mutex
	cached    *models.Settings
	cachedFor string // user id the cached merge belongs to
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(st store.Store, kv localstore.Settings, session ISessionService) ISettingsService {
	return &settingsService{store: st, kv: kv, session: session}
}

func (s *settingsService) Get(ctx context.Context) (models.Settings, error) {
	me, err := s.session.CurrentUser(ctx)
	signedIn := err == nil
	if !signedIn && !errors.Is(err, auth.ErrNotSignedIn) {
		return models.Settings{}, err
	}

	// Only signed-in merges are cached; a signed-out read is two cheap kv
	// lookups and caching it would go stale across a session change.
	if signedIn {
		s.mu.Lock()
		if s.cached != nil && s.cachedFor == me.ID {
			cached := *s.cached
			s.mu.Unlock()
			return cached, nil
		}
		s.mu.Unlock()
	}

	merged := models.DefaultSettings().Map()

	if signedIn {
		doc, err := s.store.Get(ctx, store.Users, me.ID)
		if err != nil {
			return models.Settings{}, fmt.Errorf("failed to load user %s: %w", me.ID, err)
		}
		var user models.User
		if err := doc.Decode(&user); err != nil {
			return models.Settings{}, err
		}
		for k, v := range user.Settings {
			merged[k] = v
		}
	}

	local, err := s.localOverrides(ctx)
	if err != nil {
		return models.Settings{}, err
	}
	for k, v := range local {
		merged[k] = v
	}

	settings, err := settingsFromMap(merged)
	if err != nil {
		return models.Settings{}, err
	}

	if signedIn {
		s.mu.Lock()
		s.cached = &settings
		s.cachedFor = me.ID
		s.mu.Unlock()
	}
	return settings, nil
}

func (s *settingsService) Set(ctx context.Context, values map[string]interface{}) error {
	local, err := s.localOverrides(ctx)
	if err != nil {
		return err
	}
	for k, v := range values {
		local[k] = v
	}
	if err := s.kv.Set(ctx, settingsKey, local); err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}
	s.invalidate()
	return nil
}

func (s *settingsService) Push(ctx context.Context) error {
	me, err := s.session.CurrentUser(ctx)
	if errors.Is(err, auth.ErrNotSignedIn) {
		return nil
	}
	if err != nil {
		return err
	}

	local, err := s.localOverrides(ctx)
	if err != nil {
		return err
	}
	if len(local) == 0 {
		return nil
	}

	updates := make(map[string]interface{}, len(local))
	for k, v := range local {
		updates["settings."+k] = v
	}
	if err := s.store.Update(ctx, store.Users, me.ID, updates); err != nil {
		return fmt.Errorf("failed to push settings: %w", err)
	}
	if err := s.kv.Delete(ctx, settingsKey); err != nil {
		return fmt.Errorf("failed to clear local settings: %w", err)
	}
	s.invalidate()
	return nil
}

func (s *settingsService) localOverrides(ctx context.Context) (map[string]interface{}, error) {
	raw, ok, err := s.kv.Get(ctx, settingsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read local settings: %w", err)
	}
	local := map[string]interface{}{}
	if !ok {
		return local, nil
	}
	if err := json.Unmarshal(raw, &local); err != nil {
		return nil, fmt.Errorf("failed to decode local settings: %w", err)
	}
	return local, nil
}

func (s *settingsService) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func settingsFromMap(m map[string]interface{}) (models.Settings, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return models.Settings{}, err
	}
	var settings models.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return models.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}
