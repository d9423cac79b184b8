package views_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

func rec(uuid, date string, status domain.Status) domain.Order {
	return domain.Order{UUID: uuid, Date: date, Status: status, Public: true, Type: domain.TypeSell, GTD: domain.GTC}
}

func TestOpenOrders(t *testing.T) {
	private := rec("p", "2026-01-01", domain.StatusOpen)
	private.Public = false

	got := views.OpenOrders([]domain.Order{
		rec("a", "2026-01-01", domain.StatusOpen),
		rec("b", "2026-01-01", domain.StatusFilled),
		private,
	})

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].UUID)
}

func TestFilledMap_GroupsByParent(t *testing.T) {
	fill1 := rec("f1", "2026-01-02", domain.StatusFilled)
	fill1.Origin = "root"
	fill2 := rec("f2", "2026-01-03", domain.StatusFilled)
	fill2.Origin = "root"

	got := views.FilledMap([]domain.Order{
		fill1,
		fill2,
		rec("root", "2026-01-01", domain.StatusClosed),
		rec("solo", "2026-01-01", domain.StatusOpen),
	})

	require.Len(t, got, 1)
	group := got["root"]
	require.Len(t, group, 3)
	assert.Equal(t, "f2", group[0].UUID)
	assert.Equal(t, "f1", group[1].UUID)
	assert.Equal(t, "root", group[2].UUID)
}

func TestUniqueLatest(t *testing.T) {
	got := views.UniqueLatest([]domain.Order{
		rec("a", "2026-01-01", domain.StatusOpen),
		rec("b", "2026-01-05", domain.StatusOpen),
		rec("a", "2026-01-09", domain.StatusFilled),
		rec("a", "2026-01-03", domain.StatusClosed),
	})

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].UUID)
	assert.Equal(t, domain.StatusFilled, got[0].Status)
	assert.Equal(t, "b", got[1].UUID)
}

func TestParseMode(t *testing.T) {
	m, err := views.ParseMode("mine")
	require.NoError(t, err)
	assert.Equal(t, views.ModeMine, m)

	_, err = views.ParseMode("everything")
	assert.Error(t, err)
}

func TestBuild_ModesAreExclusive(t *testing.T) {
	src := views.Sources{
		Public:   []domain.Order{rec("pub", "2026-01-01", domain.StatusOpen), rec("pubf", "2026-01-01", domain.StatusFilled)},
		Personal: []domain.Order{rec("mine", "2026-01-01", domain.StatusFilled)},
		Filtered: []domain.Order{rec("flt", "2026-01-01", domain.StatusClosed)},
	}
	vc := views.Context{Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	book := views.Build(views.ModeBook, src, vc)
	require.Len(t, book.Rows, 1)
	assert.Equal(t, "pub", book.Rows[0].UUID)
	assert.Contains(t, book.Filled, "pubf")

	mine := views.Build(views.ModeMine, src, vc)
	require.Len(t, mine.Rows, 1)
	assert.Equal(t, "mine", mine.Rows[0].UUID)
	assert.Contains(t, mine.Filled, "mine")

	flt := views.Build(views.ModeFiltered, src, vc)
	require.Len(t, flt.Rows, 1)
	assert.Equal(t, "flt", flt.Rows[0].UUID)
}

func TestBuild_DisplayAndDecorations(t *testing.T) {
	expiring := rec("exp", "2026-01-01", domain.StatusOpen)
	expiring.GTD = "2026-01-15T00:00:00"
	stopped := rec("stp", "2026-01-02", domain.StatusOpen)
	stopped.Asset = 3
	stopped.Stp = 2
	stopped.Escrow = "e"

	v := views.Build(views.ModeBook, views.Sources{Public: []domain.Order{expiring, stopped}}, views.Context{
		Prices:  map[int]float64{3: 1.5},
		Names:   map[int]string{3: "apex"},
		Markers: map[string]domain.OrderType{domain.HighlightKey(stopped): domain.TypeSell},
		Now:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	require.Len(t, v.Rows, 2)
	assert.Equal(t, "stp", v.Rows[0].UUID)
	assert.Equal(t, domain.StatusStopped, v.Rows[0].Display)
	assert.Equal(t, "apex", v.Rows[0].SubnetName)
	assert.True(t, v.Rows[0].Highlight)
	assert.Equal(t, domain.StatusExpired, v.Rows[1].Display)
	assert.False(t, v.Rows[1].Highlight)
}
