package repository_test

import (
	"math"
	"testing"

	"github.com/goliatone/go-repository-tiered/pkg/testsupport"
	"github.com/goliatone/go-repository-tiered/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Age    int    `json:"age"`
	Active bool   `json:"active"`
}

func loadUsers(t *testing.T) []user {
	t.Helper()
	var users []user
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("users.json"), &users)
	require.Len(t, users, 5)
	return users
}

func names(users []user) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Name)
	}
	return out
}

func TestPaginate(t *testing.T) {
	users := loadUsers(t)

	tests := []struct {
		name      string
		query     repository.Query[user]
		wantNames []string
		wantTotal int
		wantMore  bool
	}{
		{
			name:      "first page",
			query:     repository.NewQuery[user](1, 2),
			wantNames: []string{"Ada Lovelace", "Grace Hopper"},
			wantTotal: 5,
			wantMore:  true,
		},
		{
			name:      "partial last page",
			query:     repository.NewQuery[user](3, 2),
			wantNames: []string{"Barbara Liskov"},
			wantTotal: 5,
			wantMore:  false,
		},
		{
			name:      "past the end",
			query:     repository.NewQuery[user](4, 2),
			wantNames: []string{},
			wantTotal: 5,
		},
		{
			name:      "defaults",
			query:     repository.Query[user]{},
			wantNames: names(users),
			wantTotal: 5,
		},
		{
			name: "filtered and sorted",
			query: repository.NewQuery[user](1, 10).
				WithFilter(repository.NewFilter[user](repository.Eq("active", true))).
				WithSort(repository.OrderByDesc[user]("age")),
			wantNames: []string{"Grace Hopper", "Barbara Liskov", "Edsger Dijkstra", "Ada Lovelace"},
			wantTotal: 4,
		},
		{
			name: "predicate",
			query: repository.NewQuery[user](1, 10).
				WithFilter(repository.FilterFunc(func(u user) bool { return u.Age > 80 })),
			wantNames: []string{"Grace Hopper", "Barbara Liskov"},
			wantTotal: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repository.Paginate(users, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, names(page.Items))
			assert.Equal(t, tt.wantTotal, page.TotalItems)
			assert.Equal(t, tt.wantMore, page.HasMore())
		})
	}
}

func TestPaginate_DoesNotReorderInput(t *testing.T) {
	users := loadUsers(t)
	before := names(users)

	_, err := repository.Paginate(users, repository.NewQuery[user](1, 5).
		WithSort(repository.OrderBy[user]("name")))
	require.NoError(t, err)
	assert.Equal(t, before, names(users))
}

func TestPaginate_InvalidQuery(t *testing.T) {
	tests := []struct {
		name  string
		query repository.Query[user]
	}{
		{"negative page and size", repository.NewQuery[user](-1, -3)},
		{"negative page size", repository.NewQuery[user](2, -1)},
		{"negative page", repository.NewQuery[user](-4, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repository.Paginate(loadUsers(t), tt.query)
			require.Error(t, err)
		})
	}
}

func TestPaginate_HugePageIsEmpty(t *testing.T) {
	for _, page := range []int{math.MaxInt / 2, math.MaxInt/4 + 1, math.MaxInt} {
		list, err := repository.Paginate(loadUsers(t), repository.NewQuery[user](page, 4))
		require.NoError(t, err, "page=%d", page)
		assert.Empty(t, list.Items, "page=%d", page)
		assert.Equal(t, 5, list.TotalItems)
		assert.False(t, list.HasMore(), "page=%d", page)
	}
}
