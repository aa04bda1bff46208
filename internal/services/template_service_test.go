package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicktexts/engine/internal/cache"
	"quicktexts/engine/internal/localstore"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

func newTemplateService(t *testing.T, st store.Store, session ISessionService) (ITemplateService, *localstore.LocalStore, *cache.TemplateCache) {
	local := localstore.New(newTestKV(t))
	tplCache := cache.NewTemplateCache()
	svc := NewTemplateService(st, local, tplCache, session, nil)
	return svc, local, tplCache
}

func str(s string) *string { return &s }

func TestTemplateService_CreateAndGet(t *testing.T) {
	st := store.NewMemoryStore()
	seedTenant(t, st)
	svc, _, _ := newTemplateService(t, st, &stubSession{user: testUser()})
	ctx := context.Background()

	id, err := svc.CreateTemplate(ctx, &models.TemplateDraft{
		Title:    str("Welcome"),
		Body:     str("Hello there"),
		Shortcut: str("wlc"),
		Tags:     &[]string{"Greetings", "Onboarding"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	all, err := svc.GetTemplate(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)

	tpl := all[id]
	assert.Equal(t, "Welcome", tpl.Title)
	assert.Equal(t, "Hello there", tpl.Body)
	assert.Equal(t, "user-1", tpl.Owner)
	assert.Equal(t, "cust-1", tpl.Customer)
	assert.Equal(t, models.SharingNone, tpl.Sharing)
	// Tags come back as titles, not ids.
	assert.ElementsMatch(t, []string{"Greetings", "Onboarding"}, tpl.Tags)

	single, err := svc.GetTemplate(ctx, id)
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "Welcome", single[id].Title)

	_, err = svc.GetTemplate(ctx, "no-such-id")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTemplateService_TagsReuseExisting(t *testing.T) {
	st := store.NewMemoryStore()
	seedTenant(t, st)
	seedTag(t, st, "tag-1", models.Tag{Customer: "cust-1", Title: "Greetings"})
	svc, _, _ := newTemplateService(t, st, &stubSession{user: testUser()})
	ctx := context.Background()

	// Different case and padding still hits the existing tag.
	id, err := svc.CreateTemplate(ctx, &models.TemplateDraft{
		Title: str("Hi"),
		Tags:  &[]string{"  greetings "},
	})
	require.NoError(t, err)

	doc, err := st.Get(ctx, store.Templates, id)
	require.NoError(t, err)
	var tpl models.Template
	require.NoError(t, doc.Decode(&tpl))
	assert.Equal(t, []string{"tag-1"}, tpl.Tags)

	tags, err := st.Query(ctx, store.Tags, store.Where("customer", store.OpEqual, "cust-1"))
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestTemplateService_UpdateAndDelete(t *testing.T) {
	st := store.NewMemoryStore()
	seedTenant(t, st)
	svc, _, _ := newTemplateService(t, st, &stubSession{user: testUser()})
	ctx := context.Background()

	id, err := svc.CreateTemplate(ctx, &models.TemplateDraft{Title: str("Draft"), Body: str("v1")})
	require.NoError(t, err)

	err = svc.UpdateTemplate(ctx, id, &models.TemplateDraft{Body: str("v2")})
	require.NoError(t, err)

	all, err := svc.GetTemplate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", all[id].Body)
	// Untouched fields survive a partial update.
	assert.Equal(t, "Draft", all[id].Title)

	err = svc.DeleteTemplate(ctx, id)
	require.NoError(t, err)

	_, err = svc.GetTemplate(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The document itself is kept as a tombstone.
	doc, err := st.Get(ctx, store.Templates, id)
	require.NoError(t, err)
	var tpl models.Template
	require.NoError(t, doc.Decode(&tpl))
	assert.True(t, tpl.Deleted())
}

func TestTemplateService_UpdateMissingTemplate(t *testing.T) {
	st := store.NewMemoryStore()
	seedTenant(t, st)
	svc, _, _ := newTemplateService(t, st, &stubSession{user: testUser()})

	err := svc.UpdateTemplate(context.Background(), "ghost", &models.TemplateDraft{Title: str("x")})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestTemplateService_Visibility(t *testing.T) {
	st := store.NewMemoryStore()
	seedTenant(t, st)
	now := time.Now().UTC()

	// Bob's private template: invisible to Alice.
	seedTemplate(t, st, "t-private", models.Template{
		Title: "private", Owner: "user-2", Customer: "cust-1",
		Sharing: models.SharingNone, SharedWith: []string{}, ModifiedDatetime: now,
	})
	// Bob's template shared directly with Alice.
	seedTemplate(t, st, "t-shared", models.Template{
		Title: "shared", Owner: "user-2", Customer: "cust-1",
		Sharing: models.SharingCustom, SharedWith: []string{"user-1"}, ModifiedDatetime: now,
	})
	// Bob's everyone-shared template.
	seedTemplate(t, st, "t-everyone", models.Template{
		Title: "everyone", Owner: "user-2", Customer: "cust-1",
		Sharing: models.SharingEveryone, SharedWith: []string{"user-1"}, ModifiedDatetime: now,
	})

	svc, _, _ := newTemplateService(t, st, &stubSession{user: testUser()})

	all, err := svc.GetTemplate(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, "t-shared")
	assert.Contains(t, all, "t-everyone")
	assert.NotContains(t, all, "t-private")
}

func TestTemplateService_CacheInvalidation(t *testing.T) {
	st := store.NewMemoryStore()
	seedTenant(t, st)
	svc, _, tplCache := newTemplateService(t, st, &stubSession{user: testUser()})
	ctx := context.Background()

	_, err := svc.GetTemplate(ctx, "")
	require.NoError(t, err)
	assert.True(t, tplCache.Loaded())

	id, err := svc.CreateTemplate(ctx, &models.TemplateDraft{Title: str("New")})
	require.NoError(t, err)
	assert.False(t, tplCache.Loaded())

	all, err := svc.GetTemplate(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, all, id)
	assert.True(t, tplCache.Loaded())
}

func TestTemplateService_SignedOutFallsBackToLocal(t *testing.T) {
	st := store.NewMemoryStore()
	svc, local, _ := newTemplateService(t, st, &stubSession{})
	ctx := context.Background()

	id, err := svc.CreateTemplate(ctx, &models.TemplateDraft{
		Title: str("Offline"),
		Body:  str("saved locally"),
		Tags:  &[]string{"Drafts"},
	})
	require.NoError(t, err)

	// Nothing reached the remote store.
	_, err = st.Get(ctx, store.Templates, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := svc.GetTemplate(ctx, "")
	require.NoError(t, err)
	require.Contains(t, all, id)
	assert.Equal(t, "Offline", all[id].Title)
	assert.Equal(t, []string{"Drafts"}, all[id].Tags)

	err = svc.UpdateTemplate(ctx, id, &models.TemplateDraft{Body: str("edited offline")})
	require.NoError(t, err)

	all, err = svc.GetTemplate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "edited offline", all[id].Body)
	assert.Equal(t, "Offline", all[id].Title)

	err = svc.DeleteTemplate(ctx, id)
	require.NoError(t, err)

	_, err = svc.GetTemplate(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The tombstone stays in the raw bucket for the next sync.
	rec, err := local.Template(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Deleted())
}

func TestTemplateService_ClearLocalTemplates(t *testing.T) {
	st := store.NewMemoryStore()
	svc, local, _ := newTemplateService(t, st, &stubSession{})
	ctx := context.Background()

	_, err := svc.CreateTemplate(ctx, &models.TemplateDraft{Title: str("Throwaway")})
	require.NoError(t, err)

	require.NoError(t, svc.ClearLocalTemplates(ctx))

	templates, err := local.Templates(ctx)
	require.NoError(t, err)
	assert.Empty(t, templates)
}
