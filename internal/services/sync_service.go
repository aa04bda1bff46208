package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/localstore"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

// ISyncService pushes locally accumulated data to the remote store.
type ISyncService interface {
	// SyncNow migrates legacy records, uploads local tags and templates,
	// and pushes pending settings. A no-op while signed out.
	SyncNow(ctx context.Context) error
}

// syncService implements ISyncService.
type syncService struct {
	store    store.Store
	local    *localstore.LocalStore
	kv       localstore.Settings
	session  ISessionService
	settings ISettingsService
}

// NewSyncService creates a new SyncService.
func NewSyncService(st store.Store, local *localstore.LocalStore, kv localstore.Settings, session ISessionService, settings ISettingsService) ISyncService {
	return &syncService{
		store:    st,
		local:    local,
		kv:       kv,
		session:  session,
		settings: settings,
	}
}

func (s *syncService) SyncNow(ctx context.Context) error {
	me, err := s.session.CurrentUser(ctx)
	if errors.Is(err, auth.ErrNotSignedIn) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.migrateLegacy(ctx); err != nil {
		return fmt.Errorf("legacy migration failed: %w", err)
	}
	if err := s.pushLocalData(ctx, me); err != nil {
		return fmt.Errorf("local data sync failed: %w", err)
	}
	if err := s.settings.Push(ctx); err != nil {
		return fmt.Errorf("settings sync failed: %w", err)
	}
	return nil
}

// migrateLegacy moves pre-schema template records into the local data
// bucket. Legacy records live as standalone keys shaped like uuids; a key
// only qualifies when its value carries both a body and an id. The key list
// is captured before any write and exactly those keys are deleted after the
// records land, so a migration interrupted half-way re-runs cleanly.
func (s *syncService) migrateLegacy(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return err
	}

	var legacyKeys []string
	var records []localstore.Record
	for _, key := range keys {
		if !isLegacyKey(key) {
			continue
		}
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		body, _ := fields["body"].(string)
		id, _ := fields["id"].(string)
		if body == "" || id == "" {
			continue
		}
		legacyKeys = append(legacyKeys, key)
		records = append(records, legacyRecord(fields))
	}

	if len(legacyKeys) == 0 {
		return nil
	}

	tagRecords, err := s.resolveLegacyTags(ctx, records)
	if err != nil {
		return err
	}

	log.Printf("Migrating %d legacy template records", len(legacyKeys))
	if err := s.local.Put(ctx, localstore.PutParams{Templates: records, Tags: tagRecords}); err != nil {
		return err
	}
	return s.kv.Delete(ctx, legacyKeys...)
}

// isLegacyKey reports whether a settings key looks like the uuid the old
// schema keyed template records by: 36 chars in five dash groups.
func isLegacyKey(key string) bool {
	return len(key) == 36 && len(strings.Split(key, "-")) == 5
}

// legacyRecord reshapes a legacy value into a local record. Records that
// were already synced once carry the server id under remote_id; it wins over
// the local one so re-imports land on the same document.
func legacyRecord(fields map[string]interface{}) localstore.Record {
	id, _ := fields["id"].(string)
	if remoteID, _ := fields["remote_id"].(string); remoteID != "" {
		id = remoteID
	}

	rec := localstore.Record{"id": id}
	for _, key := range []string{
		"title", "body", "shortcut", "subject", "to", "cc", "bcc",
		"tags", "created_datetime", "modified_datetime", "deleted_datetime", "lastuse_datetime",
	} {
		if v, ok := fields[key]; ok {
			rec[key] = v
		}
	}
	return rec
}

// resolveLegacyTags rewrites each record's tags field into local tag ids.
// The old schema stored tags as one comma-separated string of titles; those
// are resolved against (and minted in) the local tag bucket so migrated
// records take the same shape as locally edited ones.
func (s *syncService) resolveLegacyTags(ctx context.Context, records []localstore.Record) ([]localstore.Record, error) {
	data, err := s.local.Raw(ctx)
	if err != nil {
		return nil, err
	}

	byTitle := map[string]string{}
	for tagID, rec := range data.Tags {
		if title, ok := rec["title"].(string); ok {
			byTitle[normalizeTagTitle(title)] = tagID
		}
	}

	var minted []localstore.Record
	for _, rec := range records {
		raw, ok := rec["tags"].(string)
		if !ok {
			continue
		}
		ids := []string{}
		seen := map[string]bool{}
		for _, title := range strings.Split(raw, ",") {
			key := normalizeTagTitle(title)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if id, ok := byTitle[key]; ok {
				ids = append(ids, id)
				continue
			}
			id := uuid.NewString()
			byTitle[key] = id
			minted = append(minted, localstore.Record{"id": id, "title": strings.TrimSpace(title)})
			ids = append(ids, id)
		}
		rec["tags"] = ids
	}
	return minted, nil
}

// pushLocalData uploads the local buckets in one batch. Tags are written
// unconditionally; templates go through last-write-wins against the remote
// modification time, and a remote loser still keeps its sharing fields since
// ACLs are never edited locally. The local store is cleared only after the
// batch commits.
func (s *syncService) pushLocalData(ctx context.Context, me *models.SignedInUser) error {
	data, err := s.local.Raw(ctx)
	if err != nil {
		return err
	}
	if len(data.Tags) == 0 && len(data.Templates) == 0 {
		return nil
	}

	batch := s.store.Batch()

	for id, rec := range data.Tags {
		title, _ := rec["title"].(string)
		batch.Set(store.Tags, id, bson.M{
			"title":    title,
			"customer": me.Customer,
			"version":  1,
		}, false)
	}

	for id, rec := range data.Templates {
		local := parseTemplateRecord(rec)

		var remote *models.Template
		doc, err := s.store.Get(ctx, store.Templates, id)
		switch {
		case err == nil:
			var tpl models.Template
			if err := doc.Decode(&tpl); err != nil {
				return err
			}
			remote = &tpl
		case errors.Is(err, store.ErrNotFound):
			// New on this device.
		default:
			return fmt.Errorf("failed to load template %s: %w", id, err)
		}

		if remote != nil {
			localModified, _ := local["modified_datetime"].(time.Time)
			if remote.ModifiedDatetime.After(localModified) {
				continue
			}
			// Local edits never touch ACLs; keep whatever sharing the
			// template accumulated remotely.
			local["sharing"] = string(remote.Sharing)
			local["shared_with"] = remote.SharedWith
		} else {
			local["sharing"] = string(models.SharingNone)
			local["shared_with"] = []string{}
		}

		local["owner"] = me.ID
		local["customer"] = me.Customer
		batch.Set(store.Templates, id, local, true)
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit sync batch: %w", err)
	}
	return s.local.Clear(ctx)
}

// parseTemplateRecord normalizes a loose local record into the storage
// shape: strings defaulted to empty, tags to an empty list, timestamps
// parsed with created falling back to now and modified to created.
func parseTemplateRecord(rec localstore.Record) bson.M {
	now := time.Now().UTC()

	str := func(key string) string {
		v, _ := rec[key].(string)
		return v
	}

	created := parseRecordTime(rec["created_datetime"], now)
	modified := parseRecordTime(rec["modified_datetime"], created)

	out := bson.M{
		"title":             str("title"),
		"body":              str("body"),
		"shortcut":          str("shortcut"),
		"subject":           str("subject"),
		"to":                str("to"),
		"cc":                str("cc"),
		"bcc":               str("bcc"),
		"tags":              strSlice(rec["tags"]),
		"created_datetime":  created,
		"modified_datetime": modified,
		"version":           1,
	}
	if rec.Deleted() {
		out["deleted_datetime"] = parseRecordTime(rec["deleted_datetime"], now)
	}
	if v, ok := rec["lastuse_datetime"]; ok && v != nil {
		out["lastuse_datetime"] = parseRecordTime(v, now)
	}
	return out
}

func parseRecordTime(v interface{}, fallback time.Time) time.Time {
	switch tv := v.(type) {
	case time.Time:
		return tv
	case string:
		if t, err := time.Parse(time.RFC3339Nano, tv); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, tv); err == nil {
			return t
		}
	}
	return fallback
}

func strSlice(v interface{}) []string {
	out := []string{}
	switch tv := v.(type) {
	case []string:
		out = append(out, tv...)
	case []interface{}:
		for _, item := range tv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
