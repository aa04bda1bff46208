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

	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/cache"
	"quicktexts/engine/internal/db"
	"quicktexts/engine/internal/localstore"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

// AttachmentStore uploads template attachment blobs to external storage and
// removes them by URL.
type AttachmentStore interface {
	Upload(ctx context.Context, name string, data []byte) (models.Attachment, error)
	Remove(ctx context.Context, url string) error
}

// ITemplateService is the template CRUD surface. While signed in it works
// against the remote store through the template cache; while signed out it
// falls back to the local store so edits survive until the next sign-in.
type ITemplateService interface {
	// GetTemplate returns templates keyed by id. An empty id returns the
	// whole visible set; a concrete id returns a single-entry map or
	// store.ErrNotFound. Tags are resolved to titles.
	GetTemplate(ctx context.Context, id string) (map[string]models.Template, error)
	CreateTemplate(ctx context.Context, draft *models.TemplateDraft) (string, error)
	UpdateTemplate(ctx context.Context, id string, draft *models.TemplateDraft) error
	// DeleteTemplate tombstones the template; documents are never removed.
	DeleteTemplate(ctx context.Context, id string) error
	ClearLocalTemplates(ctx context.Context) error
	// AddAttachments uploads blobs and appends them to the template.
	// Per-file failures are collected, not fatal: valid siblings still land.
	AddAttachments(ctx context.Context, id string, uploads []models.AttachmentUpload) ([]models.Attachment, error)
	RemoveAttachments(ctx context.Context, id string, urls []string) error
}

// templateService implements ITemplateService.
type templateService struct {
	store       store.Store
	local       *localstore.LocalStore
	tplCache    *cache.TemplateCache
	session     ISessionService
	attachments AttachmentStore
}

// NewTemplateService creates a new TemplateService. attachments may be nil
// when no blob storage is configured.
func NewTemplateService(st store.Store, local *localstore.LocalStore, tplCache *cache.TemplateCache, session ISessionService, attachments AttachmentStore) ITemplateService {
	return &templateService{
		store:       st,
		local:       local,
		tplCache:    tplCache,
		session:     session,
		attachments: attachments,
	}
}

func (t *templateService) GetTemplate(ctx context.Context, id string) (map[string]models.Template, error) {
	me, err := t.session.CurrentUser(ctx)
	if errors.Is(err, auth.ErrNotSignedIn) {
		return t.localTemplates(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	all, ok := t.tplCache.All()
	if !ok {
		all, err = t.loadRemote(ctx, me)
		if err != nil {
			return nil, err
		}
		t.tplCache.Fill(all)
	}

	if id == "" {
		return all, nil
	}
	tpl, ok := all[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return map[string]models.Template{id: tpl}, nil
}

func (t *templateService) CreateTemplate(ctx context.Context, draft *models.TemplateDraft) (string, error) {
	me, err := t.session.CurrentUser(ctx)
	if errors.Is(err, auth.ErrNotSignedIn) {
		return t.createLocal(ctx, draft)
	}
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	var tagIDs []string
	if draft.Tags != nil {
		tagIDs, err = t.tagsToIds(ctx, me.Customer, *draft.Tags)
		if err != nil {
			return "", err
		}
	}

	tpl := models.Template{
		Title:            strOr(draft.Title),
		Body:             strOr(draft.Body),
		Shortcut:         strOr(draft.Shortcut),
		Subject:          strOr(draft.Subject),
		To:               strOr(draft.To),
		Cc:               strOr(draft.Cc),
		Bcc:              strOr(draft.Bcc),
		Attachments:      attachmentsOr(draft.Attachments),
		Tags:             tagIDs,
		Owner:            me.ID,
		Customer:         me.Customer,
		Sharing:          models.SharingNone,
		SharedWith:       []string{},
		CreatedDatetime:  timeOr(draft.CreatedDatetime, now),
		ModifiedDatetime: timeOr(draft.ModifiedDatetime, now),
		Version:          1,
	}

	var id string
	err = db.Try(func() error {
		id = uuid.NewString()
		return t.store.Set(ctx, store.Templates, id, &tpl, false)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create template: %w", err)
	}

	t.tplCache.Invalidate()
	return id, nil
}

func (t *templateService) UpdateTemplate(ctx context.Context, id string, draft *models.TemplateDraft) error {
	me, err := t.session.CurrentUser(ctx)
	if errors.Is(err, auth.ErrNotSignedIn) {
		return t.updateLocal(ctx, id, draft, false)
	}
	if err != nil {
		return err
	}

	updates := draftFields(draft)
	if draft.Tags != nil {
		tagIDs, err := t.tagsToIds(ctx, me.Customer, *draft.Tags)
		if err != nil {
			return err
		}
		updates["tags"] = tagIDs
	}
	updates["modified_datetime"] = time.Now().UTC()

	if err := t.store.Update(ctx, store.Templates, id, updates); err != nil {
		return fmt.Errorf("failed to update template %s: %w", id, err)
	}
	t.tplCache.Invalidate()
	return nil
}

func (t *templateService) DeleteTemplate(ctx context.Context, id string) error {
	now := time.Now().UTC()

	_, err := t.session.CurrentUser(ctx)
	if errors.Is(err, auth.ErrNotSignedIn) {
		return t.updateLocal(ctx, id, &models.TemplateDraft{DeletedDatetime: &now}, false)
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"deleted_datetime":  now,
		"modified_datetime": now,
	}
	if err := t.store.Update(ctx, store.Templates, id, updates); err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}
	t.tplCache.Invalidate()
	return nil
}

func (t *templateService) ClearLocalTemplates(ctx context.Context) error {
	return t.local.Clear(ctx)
}

func (t *templateService) AddAttachments(ctx context.Context, id string, uploads []models.AttachmentUpload) ([]models.Attachment, error) {
	if t.attachments == nil {
		return nil, errors.New("attachment storage is not configured")
	}
	if _, err := t.session.CurrentUser(ctx); err != nil {
		return nil, err
	}

	doc, err := t.store.Get(ctx, store.Templates, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", id, err)
	}
	var tpl models.Template
	if err := doc.Decode(&tpl); err != nil {
		return nil, err
	}

	var added []models.Attachment
	var failures []error
	for _, upload := range uploads {
		att, err := t.attachments.Upload(ctx, upload.Name, upload.Data)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", upload.Name, err))
			continue
		}
		added = append(added, att)
	}

	if len(added) > 0 {
		attachments := append(tpl.Attachments, added...)
		updates := map[string]interface{}{
			"attachments":       attachments,
			"modified_datetime": time.Now().UTC(),
		}
		if err := t.store.Update(ctx, store.Templates, id, updates); err != nil {
			return nil, fmt.Errorf("failed to attach files to template %s: %w", id, err)
		}
		t.tplCache.Invalidate()
	}

	return added, errors.Join(failures...)
}

func (t *templateService) RemoveAttachments(ctx context.Context, id string, urls []string) error {
	if t.attachments == nil {
		return errors.New("attachment storage is not configured")
	}
	if _, err := t.session.CurrentUser(ctx); err != nil {
		return err
	}

	doc, err := t.store.Get(ctx, store.Templates, id)
	if err != nil {
		return fmt.Errorf("failed to load template %s: %w", id, err)
	}
	var tpl models.Template
	if err := doc.Decode(&tpl); err != nil {
		return err
	}

	remove := make(map[string]bool, len(urls))
	for _, url := range urls {
		remove[url] = true
	}

	kept := make([]models.Attachment, 0, len(tpl.Attachments))
	for _, att := range tpl.Attachments {
		if remove[att.URL] {
			if err := t.attachments.Remove(ctx, att.URL); err != nil {
				// The template no longer references the blob either way.
				log.Printf("Failed to remove attachment %s: %v", att.URL, err)
			}
			continue
		}
		kept = append(kept, att)
	}

	updates := map[string]interface{}{
		"attachments":       kept,
		"modified_datetime": time.Now().UTC(),
	}
	if err := t.store.Update(ctx, store.Templates, id, updates); err != nil {
		return fmt.Errorf("failed to detach files from template %s: %w", id, err)
	}
	t.tplCache.Invalidate()
	return nil
}

// loadRemote reads the full visible template set: owned, shared directly,
// and shared with everyone in the customer. Tombstoned templates are
// filtered out and tag ids resolved to titles.
func (t *templateService) loadRemote(ctx context.Context, me *models.SignedInUser) (map[string]models.Template, error) {
	queries := []store.Query{
		store.Where("owner", store.OpEqual, me.ID),
		store.Where("shared_with", store.OpArrayContains, me.ID),
		store.Where("customer", store.OpEqual, me.Customer).Where("sharing", store.OpEqual, string(models.SharingEveryone)),
	}

	tagTitles, err := t.tagTitlesByID(ctx, me.Customer)
	if err != nil {
		return nil, err
	}

	out := map[string]models.Template{}
	for _, q := range queries {
		docs, err := t.store.Query(ctx, store.Templates, q)
		if err != nil {
			return nil, fmt.Errorf("failed to query templates: %w", err)
		}
		for _, doc := range docs {
			if _, seen := out[doc.ID]; seen {
				continue
			}
			var tpl models.Template
			if err := doc.Decode(&tpl); err != nil {
				return nil, err
			}
			if tpl.Deleted() {
				continue
			}
			tpl.ID = doc.ID
			tpl.Tags = resolveTagTitles(tpl.Tags, tagTitles)
			out[doc.ID] = tpl
		}
	}
	return out, nil
}

// localTemplates serves reads from the local store while signed out.
func (t *templateService) localTemplates(ctx context.Context, id string) (map[string]models.Template, error) {
	data, err := t.local.Raw(ctx)
	if err != nil {
		return nil, err
	}

	tagTitles := map[string]string{}
	for tagID, rec := range data.Tags {
		if title, ok := rec["title"].(string); ok {
			tagTitles[tagID] = title
		}
	}

	out := map[string]models.Template{}
	for recID, rec := range data.Templates {
		if rec.Deleted() {
			continue
		}
		if id != "" && recID != id {
			continue
		}
		tpl, err := recordToTemplate(recID, rec)
		if err != nil {
			log.Printf("Skipping malformed local template %s: %v", recID, err)
			continue
		}
		tpl.Tags = resolveTagTitles(tpl.Tags, tagTitles)
		out[recID] = tpl
	}

	if id != "" && len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out, nil
}

// createLocal stores a new template in the local store under a fresh id.
func (t *templateService) createLocal(ctx context.Context, draft *models.TemplateDraft) (string, error) {
	id := uuid.NewString()
	if err := t.updateLocal(ctx, id, draft, true); err != nil {
		return "", err
	}
	return id, nil
}

// updateLocal merges draft fields into the local record. Tag titles are
// resolved against (and created in) the local tag bucket so the record shape
// matches remote storage.
func (t *templateService) updateLocal(ctx context.Context, id string, draft *models.TemplateDraft, stampCreated bool) error {
	now := time.Now().UTC()

	rec := localstore.Record{"id": id}
	for k, v := range draftFields(draft) {
		rec[k] = jsonValue(v)
	}
	rec["modified_datetime"] = timeOr(draft.ModifiedDatetime, now).Format(time.RFC3339Nano)
	if stampCreated {
		rec["created_datetime"] = timeOr(draft.CreatedDatetime, now).Format(time.RFC3339Nano)
	}

	params := localstore.PutParams{}
	if draft.Tags != nil {
		tagIDs, tagRecords, err := t.localTagIDs(ctx, *draft.Tags)
		if err != nil {
			return err
		}
		rec["tags"] = tagIDs
		params.Tags = tagRecords
	}
	params.Templates = []localstore.Record{rec}

	return t.local.Put(ctx, params)
}

// localTagIDs maps tag titles to local tag record ids, minting records for
// titles not seen before.
func (t *templateService) localTagIDs(ctx context.Context, titles []string) ([]string, []localstore.Record, error) {
	data, err := t.local.Raw(ctx)
	if err != nil {
		return nil, nil, err
	}

	byTitle := map[string]string{}
	for tagID, rec := range data.Tags {
		if title, ok := rec["title"].(string); ok {
			byTitle[normalizeTagTitle(title)] = tagID
		}
	}

	ids := make([]string, 0, len(titles))
	var created []localstore.Record
	seen := map[string]bool{}
	for _, title := range titles {
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
		created = append(created, localstore.Record{"id": id, "title": strings.TrimSpace(title)})
		ids = append(ids, id)
	}
	return ids, created, nil
}

// tagsToIds resolves tag titles to remote tag ids, creating missing tags.
func (t *templateService) tagsToIds(ctx context.Context, customer string, titles []string) ([]string, error) {
	docs, err := t.store.Query(ctx, store.Tags, store.Where("customer", store.OpEqual, customer))
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}

	byTitle := map[string]string{}
	for _, doc := range docs {
		var tag models.Tag
		if err := doc.Decode(&tag); err != nil {
			return nil, err
		}
		byTitle[normalizeTagTitle(tag.Title)] = doc.ID
	}

	ids := make([]string, 0, len(titles))
	seen := map[string]bool{}
	for _, title := range titles {
		key := normalizeTagTitle(title)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if id, ok := byTitle[key]; ok {
			ids = append(ids, id)
			continue
		}

		tag := models.Tag{Customer: customer, Title: strings.TrimSpace(title), Version: 1}
		var id string
		err := db.Try(func() error {
			id = uuid.NewString()
			return t.store.Set(ctx, store.Tags, id, &tag, false)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create tag %q: %w", title, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// tagTitlesByID loads the customer's tags as an id-to-title map.
func (t *templateService) tagTitlesByID(ctx context.Context, customer string) (map[string]string, error) {
	docs, err := t.store.Query(ctx, store.Tags, store.Where("customer", store.OpEqual, customer))
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	out := make(map[string]string, len(docs))
	for _, doc := range docs {
		var tag models.Tag
		if err := doc.Decode(&tag); err != nil {
			return nil, err
		}
		out[doc.ID] = tag.Title
	}
	return out, nil
}

func resolveTagTitles(ids []string, titles map[string]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if title, ok := titles[id]; ok {
			out = append(out, title)
		}
	}
	return out
}

func normalizeTagTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// draftFields flattens the non-nil scalar fields of a draft into storage
// keys. Tags and timestamps are handled by the callers.
func draftFields(draft *models.TemplateDraft) map[string]interface{} {
	out := map[string]interface{}{}
	set := func(key string, v *string) {
		if v != nil {
			out[key] = *v
		}
	}
	set("title", draft.Title)
	set("body", draft.Body)
	set("shortcut", draft.Shortcut)
	set("subject", draft.Subject)
	set("to", draft.To)
	set("cc", draft.Cc)
	set("bcc", draft.Bcc)
	if draft.Attachments != nil {
		out["attachments"] = *draft.Attachments
	}
	if draft.DeletedDatetime != nil {
		out["deleted_datetime"] = *draft.DeletedDatetime
	}
	if draft.LastuseDatetime != nil {
		out["lastuse_datetime"] = *draft.LastuseDatetime
	}
	return out
}

// recordToTemplate converts a local record to the typed template via a JSON
// round trip; records are stored as JSON and the template's JSON tags match
// its storage keys.
func recordToTemplate(id string, rec localstore.Record) (models.Template, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return models.Template{}, err
	}
	var tpl models.Template
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return models.Template{}, err
	}
	tpl.ID = id
	return tpl, nil
}

// jsonValue rewrites values that do not survive a JSON round trip untouched.
func jsonValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case time.Time:
		return tv.Format(time.RFC3339Nano)
	case *time.Time:
		if tv == nil {
			return nil
		}
		return tv.Format(time.RFC3339Nano)
	default:
		return v
	}
}

func strOr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func timeOr(v *time.Time, fallback time.Time) time.Time {
	if v == nil {
		return fallback
	}
	return *v
}

func attachmentsOr(v *[]models.Attachment) []models.Attachment {
	if v == nil {
		return []models.Attachment{}
	}
	return *v
}
