package view

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/core"
	"spendlog/internal/derive"
	"spendlog/internal/kv"
	"spendlog/internal/live"
	"spendlog/internal/store"
)

func rec(id, desc string, amount int64, cat core.Category, y, m, d int) core.Record {
	return core.Record{
		ID:          id,
		Description: desc,
		Amount:      decimal.NewFromInt(amount),
		Category:    cat,
		Date:        core.NewDate(y, m, d),
	}
}

func newStore(t *testing.T, records ...core.Record) *store.Store {
	t.Helper()
	ctx := context.Background()
	s := store.New(ctx, kv.NewStorage(kv.NewMemory(), nil))
	for _, r := range records {
		require.NoError(t, s.Add(ctx, r))
	}
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertTotals(t *testing.T, want map[string]string, got derive.Totals) {
	t.Helper()
	require.Len(t, got, len(want))
	for k, v := range want {
		assert.Truef(t, dec(v).Equal(got[k]), "total for %s: want %s, got %s", k, v, got[k])
	}
}

func TestListEndToEndMonthly(t *testing.T) {
	s := newStore(t,
		rec("1", "Coffee", 3, core.Groceries, 2024, 1, 5),
		rec("2", "Jacket", 120, core.Fashion, 2024, 1, 20),
		rec("3", "Coffee beans", 15, core.Groceries, 2024, 2, 2),
	)
	list := NewList(s)
	defer list.Close()

	list.SetQuery("coffee")
	res := list.Current()

	assert.Equal(t, core.Monthly, res.Mode)
	assert.Equal(t, []string{"February", "January"}, res.Keys)
	assertTotals(t, map[string]string{"January": "3", "February": "15"}, res.Totals)
	assert.True(t, dec("18").Equal(res.GrandTotal))
	assert.Equal(t, 2, res.Records)
}

func TestStatsEndToEndAnnual(t *testing.T) {
	s := newStore(t,
		rec("1", "Bitcoin", 500, core.Cryptocurrency, 2023, 6, 1),
		rec("2", "Ether", 200, core.Cryptocurrency, 2024, 3, 1),
		rec("3", "Bread", 4, core.Groceries, 2024, 3, 2),
	)
	stats := NewStats(s)
	defer stats.Close()

	stats.SetCategory(string(core.Cryptocurrency))
	stats.SetAnnual(true)
	res := stats.Current()

	assert.Equal(t, []string{"2024", "2023"}, res.Keys)
	assertTotals(t, map[string]string{"2024": "200", "2023": "500"}, res.Totals)
}

func TestViewTracksStoreMutations(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, rec("1", "Coffee", 3, core.Groceries, 2024, 1, 5))
	list := NewList(s)
	defer list.Close()

	require.NoError(t, s.Add(ctx, rec("2", "Tea", 2, core.Groceries, 2024, 4, 1)))
	assert.Equal(t, []string{"April", "January"}, list.Current().Keys)

	s.Remove(ctx, "1")
	_, ok := s.GetByID("1")
	assert.False(t, ok)
	assert.Equal(t, []string{"April"}, list.Current().Keys)
	assertTotals(t, map[string]string{"April": "2"}, list.Current().Totals)
}

func TestQueryWithoutMatchesFallsBack(t *testing.T) {
	s := newStore(t,
		rec("1", "Coffee", 3, core.Groceries, 2024, 1, 5),
		rec("2", "Jacket", 120, core.Fashion, 2024, 1, 20),
	)
	list := NewList(s)
	defer list.Close()

	list.SetQuery("zzz")
	assert.Equal(t, 2, list.Current().Records)
}

func TestModeChangeDoesNotRerunFilter(t *testing.T) {
	records := live.NewCell([]core.Record{
		rec("1", "Coffee", 3, core.Groceries, 2023, 1, 5),
		rec("2", "Tea", 2, core.Groceries, 2024, 4, 1),
	})
	filter := live.NewCell("")
	mode := live.NewCell(core.Monthly)

	var mu sync.Mutex
	calls := 0
	counting := func(f string, rs []core.Record) []core.Record {
		mu.Lock()
		calls++
		mu.Unlock()
		return derive.FilterByText(f, rs)
	}

	v := Derive(records, filter, mode, counting)
	defer v.Close()
	require.Equal(t, 1, calls)

	mode.Set(core.Annual)
	mode.Set(core.Monthly)
	mode.Set(core.Annual)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"2024", "2023"}, v.Current().Keys)

	filter.Set("tea")
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"2024"}, v.Current().Keys)
}

func TestKeysAndTotalsDescribeSameGrouping(t *testing.T) {
	records := live.NewCell([]core.Record{rec("1", "Coffee", 3, core.Groceries, 2024, 1, 5)})
	v := Derive(records, live.NewCell(""), live.NewCell(core.Monthly), derive.FilterByText)
	defer v.Close()

	// Every emitted key must be a bucket of the grouping current at that moment.
	var mismatches int
	v.Keys().Subscribe(func(keys []string) {
		g := v.grouping.Get()
		for _, k := range keys {
			if _, ok := g.Buckets[k]; !ok {
				mismatches++
			}
		}
	})

	records.Set([]core.Record{
		rec("1", "Coffee", 3, core.Groceries, 2024, 1, 5),
		rec("2", "Tea", 2, core.Groceries, 2024, 4, 1),
	})
	records.Set(nil)
	assert.Zero(t, mismatches)
	assert.Empty(t, v.Current().Keys)
	assert.Empty(t, v.Current().Totals)
}

func TestLateSubscriberGetsCurrentResult(t *testing.T) {
	s := newStore(t, rec("1", "Coffee", 3, core.Groceries, 2024, 1, 5))
	stats := NewStats(s)
	defer stats.Close()
	stats.SetAnnual(true)

	var got []Result
	stats.Result().Subscribe(func(r Result) { got = append(got, r) })
	require.Len(t, got, 1)
	assert.Equal(t, []string{"2024"}, got[0].Keys)
}

func TestEmptyCategoryMeansAll(t *testing.T) {
	s := newStore(t,
		rec("1", "Coffee", 3, core.Groceries, 2024, 1, 5),
		rec("2", "Jacket", 120, core.Fashion, 2024, 1, 20),
	)
	stats := NewStats(s)
	defer stats.Close()

	stats.SetCategory(string(core.Fashion))
	assert.Equal(t, 1, stats.Current().Records)
	stats.SetCategory("")
	assert.Equal(t, derive.AllCategories, stats.Category())
	assert.Equal(t, 2, stats.Current().Records)
}

func TestCloseDetachesFromStore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, rec("1", "Coffee", 3, core.Groceries, 2024, 1, 5))
	list := NewList(s)
	list.Close()

	require.NoError(t, s.Add(ctx, rec("2", "Tea", 2, core.Groceries, 2024, 4, 1)))
	assert.Equal(t, []string{"January"}, list.Current().Keys)
}

func TestConcurrentInputsConverge(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	list := NewList(s)
	defer list.Close()

	var wg sync.WaitGroup
	for i := 1; i <= 12; i++ {
		wg.Add(2)
		go func(m int) {
			defer wg.Done()
			_ = s.Add(ctx, rec(string(rune('a'+m)), "Coffee", int64(m), core.Groceries, 2024, m, 1))
		}(i)
		go func(m int) {
			defer wg.Done()
			list.SetAnnual(m%2 == 0)
		}(i)
	}
	wg.Wait()

	list.SetAnnual(true)
	res := list.Current()
	assert.Equal(t, []string{"2024"}, res.Keys)
	assert.Equal(t, 12, res.Records)
	assertTotals(t, map[string]string{"2024": "78"}, res.Totals)
}
