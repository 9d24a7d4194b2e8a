package domain

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommunityService(store *memStore) *CommunityService {
	return NewCommunityService(CommunityServiceConfig{
		Store:  store,
		Logger: discardLogger(),
		Now:    newFakeClock(testStart).Now,
	})
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Desenvolvedores JavaScript", "desenvolvedores-javascript"},
		{"Eu odeio acordar cedo!!!", "eu-odeio-acordar-cedo"},
		{"  Música Brasileira  ", "musica-brasileira"},
		{"São João & Forró", "sao-joao-forro"},
		{"C++ / Go", "c-go"},
		{"2026", "2026"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestPublishCommunity(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestCommunityService(store)

	res, err := svc.PublishCommunity(ctx, CommunityInput{
		Name:        "Música Brasileira",
		Description: "Para quem ama MPB",
		Category:    "Música",
		Owner:       "user123",
	})
	require.NoError(t, err)

	assert.Equal(t, "musica-brasileira", res.Slug)
	assert.Equal(t, fmt.Sprintf("communities/musica-brasileira/%s.json", res.CommunityID), res.CommunityPath)
	assert.Equal(t, "communities/musica-brasileira/config.json", res.ConfigPath)
	assert.Equal(t, CommunityIndexPath, res.IndexPath)

	c := readJSON[Community](t, store, res.CommunityPath)
	assert.Equal(t, "Usuário", c.OwnerName)
	assert.Equal(t, 1, c.MembersCount)
	assert.Equal(t, VisibilityPublic, c.Visibility)
	assert.Equal(t, defaultCommunityPhoto, c.PhotoURL)
	assert.Equal(t, "Bem-vindo à comunidade Música Brasileira!", c.WelcomeMessage)
	assert.True(t, c.IsActive)
	assert.Equal(t, "orkut-web", c.Metadata["source"])

	idx := readJSON[CommunityIndex](t, store, CommunityIndexPath)
	require.Len(t, idx.Communities, 1)
	assert.Equal(t, 1, idx.TotalCommunities)
	assert.Equal(t, map[string]int{"Música": 1}, idx.Categories)

	cfg := readJSON[CommunityConfig](t, store, res.ConfigPath)
	assert.True(t, cfg.Settings.AutoApproval)
	assert.False(t, cfg.Settings.ModerationRequired)
	assert.Nil(t, cfg.Settings.MaxMembers)
	assert.Equal(t, 1, cfg.Stats.Members)
}

func TestPublishCommunityRejectsDuplicateNames(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestCommunityService(store)

	in := CommunityInput{Name: "Gophers", Description: "Go", Category: "Tecnologia", Owner: "u1"}
	_, err := svc.PublishCommunity(ctx, in)
	require.NoError(t, err)

	in.Name = "GOPHERS"
	_, err = svc.PublishCommunity(ctx, in)
	require.ErrorIs(t, err, ErrCommunityExists)
	assert.Len(t, store.paths("communities/gophers/"), 2, "no second record is written")
}

func TestPublishCommunityValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CommunityInput
	}{
		{"missing owner", CommunityInput{Name: "A", Description: "B", Category: "C"}},
		{"bad visibility", CommunityInput{Name: "A", Description: "B", Category: "C", Owner: "u", Visibility: "secret"}},
		{"unusable name", CommunityInput{Name: "!!!", Description: "B", Category: "C", Owner: "u"}},
		{"negative members", CommunityInput{Name: "A", Description: "B", Category: "C", Owner: "u", MembersCount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			_, err := newTestCommunityService(store).PublishCommunity(context.Background(), tt.in)
			require.ErrorIs(t, err, ErrInvalidInput)
			_, puts := store.calls()
			assert.Zero(t, puts)
		})
	}
}

func TestListCommunities(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestCommunityService(store)

	seed := []CommunityInput{
		{Name: "Gophers", Description: "Go programming", Category: "Tecnologia", Owner: "u1"},
		{Name: "Rustaceans", Description: "Systems programming", Category: "Tecnologia", Owner: "u1"},
		{Name: "Forró", Description: "Dança e música", Category: "Música", Owner: "u2"},
	}
	for _, in := range seed {
		_, err := svc.PublishCommunity(ctx, in)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		query CommunityQuery
		want  []string
	}{
		{"all", CommunityQuery{}, []string{"Forró", "Rustaceans", "Gophers"}},
		{"todos", CommunityQuery{Category: AllCategories}, []string{"Forró", "Rustaceans", "Gophers"}},
		{"category", CommunityQuery{Category: "Tecnologia"}, []string{"Rustaceans", "Gophers"}},
		{"search name", CommunityQuery{Search: "GOPH"}, []string{"Gophers"}},
		{"search description", CommunityQuery{Search: "programming"}, []string{"Rustaceans", "Gophers"}},
		{"limit", CommunityQuery{Limit: 1}, []string{"Forró"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListCommunities(ctx, tt.query)
			require.NoError(t, err)

			names := make([]string, 0, len(page.Communities))
			for _, c := range page.Communities {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, 3, page.Total)
			assert.Equal(t, map[string]int{"Tecnologia": 2, "Música": 1}, page.Categories)
		})
	}
}

func TestListCommunitiesEmpty(t *testing.T) {
	page, err := newTestCommunityService(newMemStore()).ListCommunities(context.Background(), CommunityQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Communities)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Categories)
}
