package repository

import (
	"context"
	"testing"
	"time"

	"barrel-market-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func rec(name, mcID, seller, typeID string, price, qty float64, x, y, z int, at time.Time) *model.Record {
	return &model.Record{
		Name:         name,
		Price:        price,
		Quantity:     qty,
		Seller:       seller,
		SellerUUID:   model.UnknownSeller,
		MinecraftID:  mcID,
		TypeID:       typeID,
		TypeRu:       typeID + "-ru",
		BenefitRatio: model.BenefitRatio(qty, price),
		X:            x,
		Y:            y,
		Z:            z,
		RecordDate:   model.RecordDate(at),
		CreatedAt:    at,
	}
}

func names(records []model.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

// runStoreSuite checks the behavior every Store implementation shares.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("BulkInsertSkipsDuplicateKeys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := rec("diamond", "minecraft:diamond", "Tandi_", "valuables", 3, 128, 1, 64, 1, base)
		dup := rec("emerald", "minecraft:emerald", "Tandi_", "valuables", 1, 10, 1, 64, 1, base.Add(time.Minute))
		b := rec("iron ingot", "minecraft:iron_ingot", "Steve", "other", 2, 64, 2, 64, 2, base)

		inserted, err := s.BulkInsert(ctx, []*model.Record{a, dup, b})
		require.NoError(t, err)
		assert.Equal(t, []bool{true, false, true}, inserted)
		assert.NotZero(t, a.ID)
		assert.Zero(t, dup.ID)
		assert.NotZero(t, b.ID)

		again := rec("gold", "minecraft:gold_ingot", "Alex", "other", 1, 1, 2, 64, 2, base.Add(time.Hour))
		inserted, err = s.BulkInsert(ctx, []*model.Record{again})
		require.NoError(t, err)
		assert.Equal(t, []bool{false}, inserted)

		nextDay := rec("gold", "minecraft:gold_ingot", "Alex", "other", 1, 1, 2, 64, 2, base.Add(24*time.Hour))
		inserted, err = s.BulkInsert(ctx, []*model.Record{nextDay})
		require.NoError(t, err)
		assert.Equal(t, []bool{true}, inserted)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("ExistsForDay", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := rec("diamond", "minecraft:diamond", "Tandi_", "valuables", 3, 128, 5, 70, -5, base)
		_, err := s.BulkInsert(ctx, []*model.Record{r})
		require.NoError(t, err)

		ok, err := s.ExistsForDay(ctx, r.Key())
		require.NoError(t, err)
		assert.True(t, ok)

		other := r.Key()
		other.Day = "2025-03-15"
		ok, err = s.ExistsForDay(ctx, other)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("FindFiltersAndSorts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.BulkInsert(ctx, []*model.Record{
			rec("diamond", "minecraft:diamond", "Tandi_", "valuables", 3, 128, 1, 1, 1, base),
			rec("diamonds", "minecraft:diamond", "steve", "valuables", 10, 64, 2, 2, 2, base.Add(time.Minute)),
			rec("apple", "minecraft:apple", "TANDI_", "eat", 1, 16, 3, 3, 3, base.Add(2*time.Minute)),
		})
		require.NoError(t, err)

		got, err := s.Find(ctx, model.ListingFilter{Sort: model.SortRecent})
		require.NoError(t, err)
		assert.Equal(t, []string{"apple", "diamonds", "diamond"}, names(got))

		got, err = s.Find(ctx, model.ListingFilter{Sort: model.SortName})
		require.NoError(t, err)
		assert.Equal(t, []string{"apple", "diamond", "diamonds"}, names(got))

		got, err = s.Find(ctx, model.ListingFilter{Sort: model.SortBenefit})
		require.NoError(t, err)
		assert.Equal(t, []string{"diamond", "apple", "diamonds"}, names(got))

		got, err = s.Find(ctx, model.ListingFilter{MinecraftID: "minecraft:diamond"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"diamond", "diamonds"}, names(got))

		got, err = s.Find(ctx, model.ListingFilter{Seller: "tandi"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"diamond", "apple"}, names(got))

		got, err = s.Find(ctx, model.ListingFilter{Seller: "%"})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.Find(ctx, model.ListingFilter{Name: "diamond", Threshold: 0.45})
		require.NoError(t, err)
		assert.Equal(t, []string{"diamond", "diamonds"}, names(got))
	})

	t.Run("HistoryNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.BulkInsert(ctx, []*model.Record{
			rec("old", "minecraft:dirt", "a", "blocks", 1, 1, 7, 7, 7, base),
			rec("new", "minecraft:dirt", "a", "blocks", 1, 1, 7, 7, 7, base.Add(24*time.Hour)),
			rec("elsewhere", "minecraft:dirt", "a", "blocks", 1, 1, 8, 7, 7, base),
		})
		require.NoError(t, err)

		got, err := s.History(ctx, model.Position{X: 7, Y: 7, Z: 7})
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "old"}, names(got))
		assert.Equal(t, "2025-03-15", got[0].RecordDate)
	})

	t.Run("TypesAndItems", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.BulkInsert(ctx, []*model.Record{
			rec("diamond", "minecraft:diamond", "a", "valuables", 1, 1, 1, 0, 0, base),
			rec("diamond", "minecraft:diamond", "a", "valuables", 1, 1, 2, 0, 0, base),
			rec("emerald", "minecraft:emerald", "a", "valuables", 1, 1, 3, 0, 0, base),
			rec("apple", "minecraft:apple", "a", "eat", 1, 1, 4, 0, 0, base),
		})
		require.NoError(t, err)

		types, err := s.ListTypes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.TypeCount{
			{TypeID: "eat", Type: "eat-ru", Count: 1},
			{TypeID: "valuables", Type: "valuables-ru", Count: 3},
		}, types)

		items, err := s.ListItemsByType(ctx, "valuables")
		require.NoError(t, err)
		assert.Equal(t, []model.ItemCount{
			{MinecraftID: "minecraft:diamond", Name: "diamond", Count: 2},
			{MinecraftID: "minecraft:emerald", Name: "emerald", Count: 1},
		}, items)

		items, err = s.ListItemsByType(ctx, "books")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("NotesOncePerDay", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := &model.Note{X: 1, Y: 2, Z: 3, Items: "64 dirt", RecordDate: "2025-03-14"}
		ok, err := s.AppendNote(ctx, first)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotZero(t, first.ID)

		ok, err = s.AppendNote(ctx, &model.Note{X: 1, Y: 2, Z: 3, Items: "other", RecordDate: "2025-03-14"})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.AppendNote(ctx, &model.Note{X: 1, Y: 2, Z: 3, Items: "next day", RecordDate: "2025-03-15"})
		require.NoError(t, err)
		assert.True(t, ok)

		notes, err := s.NotesFor(ctx, []model.Key{
			{Day: "2025-03-14", X: 1, Y: 2, Z: 3},
			{Day: "2025-03-16", X: 1, Y: 2, Z: 3},
		})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "64 dirt", notes[0].Items)
		assert.Equal(t, "2025-03-14", notes[0].RecordDate)

		notes, err = s.NotesFor(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, notes)
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.BulkInsert(ctx, []*model.Record{rec("dirt", "minecraft:dirt", "a", "blocks", 1, 1, 0, 0, 0, base)})
		require.NoError(t, err)

		stats, err := s.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats["total_listings"])
		assert.Equal(t, int64(0), stats["total_notes"])
		assert.NoError(t, s.Ping(ctx))
	})
}
