package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSource []ActorInfo

func (f fakeSource) Actors() []ActorInfo { return f }

func TestListFiltersByType(t *testing.T) {
	src := fakeSource{
		{ActorType: "order", ActorID: "1"},
		{ActorType: "cart", ActorID: "2"},
	}
	page, err := List(src, Query{TypeFilter: "order"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "order", page.Items[0].ActorType)
}

func TestListFiltersByGlob(t *testing.T) {
	src := fakeSource{
		{ActorType: "order", ActorID: "order-1"},
		{ActorType: "order", ActorID: "order-2"},
		{ActorType: "order", ActorID: "cart-1"},
	}
	page, err := List(src, Query{IDGlobPattern: "order-*"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
}

func TestListPaginates(t *testing.T) {
	src := make(fakeSource, 0, 5)
	for i := 0; i < 5; i++ {
		src = append(src, ActorInfo{ActorType: "order", ActorID: string(rune('a' + i))})
	}
	page, err := List(src, Query{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 5, page.TotalCount)
	require.Equal(t, 3, page.TotalPages)
	require.True(t, page.HasNext)
	require.False(t, page.HasPrev)

	page2, err := List(src, Query{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)
	require.False(t, page2.HasNext)
	require.True(t, page2.HasPrev)
}

func TestListDefaultsPageAndSize(t *testing.T) {
	src := fakeSource{{ActorType: "order", ActorID: "1"}}
	page, err := List(src, Query{})
	require.NoError(t, err)
	require.Equal(t, 1, page.PageNumber)
	require.Equal(t, 50, page.PageSize)
}

func TestListEmptySourceHasOnePage(t *testing.T) {
	page, err := List(fakeSource{}, Query{})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalPages)
	require.Empty(t, page.Items)
}

func TestCountByTypeAggregates(t *testing.T) {
	src := fakeSource{
		{ActorType: "order", ActorID: "1"},
		{ActorType: "order", ActorID: "2"},
		{ActorType: "cart", ActorID: "3"},
	}
	counts := CountByType(src)
	require.Equal(t, 2, counts.Count("order"))
	require.Equal(t, 1, counts.Count("cart"))
}

func TestTotalCount(t *testing.T) {
	src := fakeSource{{ActorType: "order", ActorID: "1"}, {ActorType: "cart", ActorID: "2"}}
	require.Equal(t, 2, TotalCount(src))
}
