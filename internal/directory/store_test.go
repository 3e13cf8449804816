package directory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/uadirectory/internal/database"
	"github.com/tournevent/uadirectory/internal/directory"
	"github.com/tournevent/uadirectory/pkg/carrier"
)

func setupStore(t *testing.T, priority string) *directory.Store {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return directory.NewStore(db, directory.ParseLanguages(priority))
}

func city(ref, uk string) carrier.CityRecord {
	return carrier.CityRecord{Ref: ref, Names: carrier.Names{UK: uk}}
}

func warehouse(cityRef, ref, number, uk string) carrier.WarehouseRecord {
	return carrier.WarehouseRecord{CityRef: cityRef, Ref: ref, Number: number, Names: carrier.Names{UK: uk}}
}

func TestStore_SearchCities(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", []carrier.CityRecord{
		city("K2", "Харків"),
		city("K1", "Київ"),
	}))

	hits, err := store.SearchCities(ctx, "nova_poshta", "хар", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "K2", hits[0].Ref)

	all, err := store.SearchCities(ctx, "nova_poshta", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Київ", all[0].Label)
	assert.Equal(t, "Харків", all[1].Label)
}

func TestStore_SearchCities_CaseInsensitiveAcrossLanguages(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", []carrier.CityRecord{
		{Ref: "L1", Names: carrier.Names{UK: "Львів", EN: "Lviv", RU: "Львов"}, Region: "Львівська"},
	}))

	for _, term := range []string{"ЛЬВ", "lviv", "LVIV", "львов"} {
		hits, err := store.SearchCities(ctx, "nova_poshta", term, 0)
		require.NoError(t, err, term)
		require.Len(t, hits, 1, term)
		assert.Equal(t, "Львівська", hits[0].Region)
	}
}

func TestStore_SearchCities_WildcardsAreLiteral(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", []carrier.CityRecord{
		city("A", "Біла Церква"),
		city("B", "100%_місто"),
	}))

	hits, err := store.SearchCities(ctx, "nova_poshta", "%", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "B", hits[0].Ref)
}

func TestStore_SearchCities_Limit(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	batch := make([]carrier.CityRecord, 0, 150)
	for i := range 150 {
		batch = append(batch, city(fmt.Sprintf("c%03d", i), fmt.Sprintf("Місто %03d", i)))
	}
	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", batch))

	def, err := store.SearchCities(ctx, "nova_poshta", "", 0)
	require.NoError(t, err)
	assert.Len(t, def, directory.DefaultCityLimit)

	capped, err := store.SearchCities(ctx, "nova_poshta", "", 1000)
	require.NoError(t, err)
	assert.Len(t, capped, directory.MaxLimit)
}

func TestStore_SearchCities_LabelPriority(t *testing.T) {
	store := setupStore(t, "en,uk")
	ctx := context.Background()
	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", []carrier.CityRecord{
		{Ref: "K1", Names: carrier.Names{UK: "Київ", RU: "Киев"}},
		{Ref: "O1", Names: carrier.Names{UK: "Одеса", EN: "Odesa"}},
	}))

	hits, err := store.SearchCities(ctx, "nova_poshta", "", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// Ordered by the English name; rows without one go last.
	assert.Equal(t, "Odesa", hits[0].Label)
	assert.Equal(t, "Київ", hits[1].Label)
}

func TestStore_GetWarehouses_Ordering(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.UpsertWarehouses(ctx, "nova_poshta", []carrier.WarehouseRecord{
		warehouse("K1", "w10", "10", "Відділення №10"),
		warehouse("K1", "wx", "", "Пункт видачі"),
		warehouse("K1", "w2", "2", "Відділення №2"),
	}))

	got, err := store.GetWarehouses(ctx, "nova_poshta", "K1", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"2", "10", ""}, []string{got[0].Number, got[1].Number, got[2].Number})
}

func TestStore_GetWarehouses_FilterByCityAndTerm(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.UpsertWarehouses(ctx, "nova_poshta", []carrier.WarehouseRecord{
		warehouse("K1", "w1", "1", "Відділення №1: вул. Хрещатик"),
		warehouse("K1", "w12", "12", "Відділення №12: просп. Перемоги"),
		warehouse("K2", "h1", "1", "Відділення №1: вул. Сумська"),
	}))

	byCity, err := store.GetWarehouses(ctx, "nova_poshta", "K2", "", 0)
	require.NoError(t, err)
	require.Len(t, byCity, 1)
	assert.Equal(t, "h1", byCity[0].Ref)

	byName, err := store.GetWarehouses(ctx, "nova_poshta", "K1", "ХРЕЩ", 0)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "w1", byName[0].Ref)

	byNumber, err := store.GetWarehouses(ctx, "nova_poshta", "K1", "12", 0)
	require.NoError(t, err)
	require.Len(t, byNumber, 1)
	assert.Equal(t, "w12", byNumber[0].Ref)
}

func TestStore_CrossCarrierIsolation(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.UpsertCities(ctx, "a", []carrier.CityRecord{city("X", "Київ")}))
	require.NoError(t, store.UpsertCities(ctx, "b", []carrier.CityRecord{city("X", "Київ (B)")}))
	require.NoError(t, store.UpsertWarehouses(ctx, "b", []carrier.WarehouseRecord{warehouse("X", "w", "1", "B")}))

	hits, err := store.SearchCities(ctx, "a", "", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Київ", hits[0].Label)

	require.NoError(t, store.ClearCarrier(ctx, "a"))

	cities, warehouses, err := store.Counts(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, cities)
	assert.Equal(t, 1, warehouses)

	cities, _, err = store.Counts(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, cities)
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	batch := []carrier.CityRecord{city("K1", "Київ"), city("K2", "Харків")}

	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", batch))
	first, err := store.SearchCities(ctx, "nova_poshta", "", 0)
	require.NoError(t, err)
	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", batch))
	second, err := store.SearchCities(ctx, "nova_poshta", "", 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStore_UpsertReplacesByRef(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", []carrier.CityRecord{city("K1", "Kиев-old")}))
	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", []carrier.CityRecord{
		{Ref: "K1", Names: carrier.Names{UK: "Київ"}, Region: "Київська"},
	}))

	got, err := store.GetCity(ctx, "nova_poshta", "K1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Київ", got.Names.UK)
	assert.Equal(t, "Київська", got.Region)

	cities, _, err := store.Counts(ctx, "nova_poshta")
	require.NoError(t, err)
	assert.Equal(t, 1, cities)
}

func TestStore_Upsert_RejectsEmptyRef(t *testing.T) {
	store := setupStore(t, "")

	err := store.UpsertCities(context.Background(), "nova_poshta", []carrier.CityRecord{city("", "Нема")})

	var storeErr *directory.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "upsert cities", storeErr.Op)
}

func TestStore_PointLookups(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()
	wh := warehouse("K1", "w1", "1", "Відділення №1")
	wh.Coordinates = &carrier.Coordinates{Lat: 50.45, Lng: 30.52}
	require.NoError(t, store.UpsertWarehouses(ctx, "nova_poshta", []carrier.WarehouseRecord{wh}))

	got, err := store.GetWarehouse(ctx, "nova_poshta", "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "K1", got.CityRef)
	require.NotNil(t, got.Coordinates)
	assert.InDelta(t, 30.52, got.Coordinates.Lng, 1e-9)

	missing, err := store.GetWarehouse(ctx, "ukrposhta", "w1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missingCity, err := store.GetCity(ctx, "nova_poshta", "nope")
	require.NoError(t, err)
	assert.Nil(t, missingCity)
}

func TestStore_LastSync(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()

	_, ok, err := store.LastSync(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastSync(ctx, "nova_poshta", at))

	got, ok, err := store.LastSync(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(got))

	perCarrier, ok, err := store.LastSyncFor(ctx, "nova_poshta")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(perCarrier))

	_, ok, err = store.LastSyncFor(ctx, "ukrposhta")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Waybills(t *testing.T) {
	store := setupStore(t, "")
	ctx := context.Background()

	none, err := store.GetWaybill(ctx, "1001")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, store.SaveWaybill(ctx, directory.Waybill{OrderRef: "1001", Carrier: "nova_poshta", Number: "20450000000001", Cost: 70}))
	require.NoError(t, store.SaveWaybill(ctx, directory.Waybill{OrderRef: "1001", Carrier: "nova_poshta", Number: "20450000000002"}))

	got, err := store.GetWaybill(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "20450000000002", got.Number)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, store.DeleteWaybill(ctx, "1001"))
	got, err = store.GetWaybill(ctx, "1001")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, store.SaveWaybill(ctx, directory.Waybill{OrderRef: "1002"}))
}

func TestStore_ComposeLabel(t *testing.T) {
	store := setupStore(t, "ru")
	assert.Equal(t, "Киев", store.ComposeLabel(carrier.Names{UK: "Київ", RU: "Киев"}))
}
