package lookup_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/uadirectory/internal/database"
	"github.com/tournevent/uadirectory/internal/directory"
	"github.com/tournevent/uadirectory/internal/lookup"
	"github.com/tournevent/uadirectory/pkg/carrier"
	carriermock "github.com/tournevent/uadirectory/pkg/carrier/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// MockStore implements lookup.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SearchCities(ctx context.Context, carrierID, term string, limit int) ([]directory.CityResult, error) {
	args := m.Called(ctx, carrierID, term, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directory.CityResult), args.Error(1)
}

func (m *MockStore) GetWarehouses(ctx context.Context, carrierID, cityRef, term string, limit int) ([]directory.WarehouseResult, error) {
	args := m.Called(ctx, carrierID, cityRef, term, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directory.WarehouseResult), args.Error(1)
}

func (m *MockStore) GetCity(ctx context.Context, carrierID, ref string) (*carrier.CityRecord, error) {
	args := m.Called(ctx, carrierID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.CityRecord), args.Error(1)
}

func (m *MockStore) GetWarehouse(ctx context.Context, carrierID, ref string) (*carrier.WarehouseRecord, error) {
	args := m.Called(ctx, carrierID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.WarehouseRecord), args.Error(1)
}

func (m *MockStore) ComposeLabel(names carrier.Names) string {
	return directory.DefaultLanguages.Label(names)
}

func testRegistry() *carrier.Registry {
	registry := carrier.NewRegistry()
	registry.MustRegister(carrier.Definition{
		ID:                  "nova_poshta",
		Label:               "Nova Poshta",
		SupportsDirectories: true,
		New:                 func(carrier.Settings) carrier.Provider { return carriermock.New("nova_poshta") },
	})
	registry.MustRegister(carrier.Definition{
		ID:    "ukrposhta",
		Label: "Ukrposhta",
		New:   func(carrier.Settings) carrier.Provider { return carriermock.New("ukrposhta") },
	})
	return registry
}

func newService(store lookup.Store, cache lookup.Cache) *lookup.Service {
	return lookup.NewService(
		lookup.Config{DefaultCarrier: "nova_poshta"},
		store,
		testRegistry(),
		cache,
		otelzap.New(zap.NewNop()),
		nil,
	)
}

func TestService_SearchCities(t *testing.T) {
	tests := []struct {
		name       string
		carrier    string
		term       string
		setupMocks func(*MockStore)
		want       []lookup.CityOption
		wantErr    error
	}{
		{
			name:    "maps results",
			carrier: "nova_poshta",
			term:    "  хар ",
			setupMocks: func(m *MockStore) {
				m.On("SearchCities", mock.Anything, "nova_poshta", "хар", 0).Return([]directory.CityResult{
					{Ref: "K2", Label: "Харків", Region: "Харківська"},
				}, nil)
			},
			want: []lookup.CityOption{{ID: "K2", Text: "Харків", Region: "Харківська"}},
		},
		{
			name:    "default carrier",
			carrier: "",
			term:    "",
			setupMocks: func(m *MockStore) {
				m.On("SearchCities", mock.Anything, "nova_poshta", "", 0).Return(nil, nil)
			},
			want: []lookup.CityOption{},
		},
		{
			name:    "carrier id is normalised",
			carrier: " Nova_Poshta ",
			term:    "ки",
			setupMocks: func(m *MockStore) {
				m.On("SearchCities", mock.Anything, "nova_poshta", "ки", 0).Return([]directory.CityResult{}, nil)
			},
			want: []lookup.CityOption{},
		},
		{
			name:       "unknown carrier",
			carrier:    "meest",
			setupMocks: func(m *MockStore) {},
			wantErr:    lookup.ErrInvalidCarrier,
		},
		{
			name:       "carrier without directories",
			carrier:    "ukrposhta",
			term:       "київ",
			setupMocks: func(m *MockStore) {},
			want:       []lookup.CityOption{},
		},
		{
			name:    "store failure is not masked",
			carrier: "nova_poshta",
			term:    "ки",
			setupMocks: func(m *MockStore) {
				m.On("SearchCities", mock.Anything, "nova_poshta", "ки", 0).Return(nil, errors.New("database is locked"))
			},
			wantErr: lookup.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			tt.setupMocks(store)
			svc := newService(store, nil)

			got, err := svc.SearchCities(context.Background(), tt.carrier, tt.term)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestService_SearchCities_TermIsCapped(t *testing.T) {
	store := new(MockStore)
	long := strings.Repeat("ї", lookup.MaxTermLength+20)
	store.On("SearchCities", mock.Anything, "nova_poshta", strings.Repeat("ї", lookup.MaxTermLength), 0).
		Return([]directory.CityResult{}, nil)

	_, err := newService(store, nil).SearchCities(context.Background(), "nova_poshta", long)

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestService_ListWarehouses(t *testing.T) {
	t.Run("empty city ref", func(t *testing.T) {
		store := new(MockStore)
		got, err := newService(store, nil).ListWarehouses(context.Background(), "nova_poshta", "  ", "1")

		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NotNil(t, got)
		store.AssertNotCalled(t, "GetWarehouses", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("maps results", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetWarehouses", mock.Anything, "nova_poshta", "K1", "", 0).Return([]directory.WarehouseResult{
			{Ref: "w2", Label: "Відділення №2", Number: "2", Type: "Branch"},
		}, nil)

		got, err := newService(store, nil).ListWarehouses(context.Background(), "nova_poshta", "K1", "")

		require.NoError(t, err)
		assert.Equal(t, []lookup.WarehouseOption{{ID: "w2", Text: "Відділення №2", Number: "2", Type: "Branch"}}, got)
	})

	t.Run("unknown carrier", func(t *testing.T) {
		_, err := newService(new(MockStore), nil).ListWarehouses(context.Background(), "dhl", "K1", "")
		assert.ErrorIs(t, err, lookup.ErrInvalidCarrier)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(MockStore)
		cause := errors.New("connection reset")
		store.On("GetWarehouses", mock.Anything, "nova_poshta", "K1", "", 0).Return(nil, cause)

		_, err := newService(store, nil).ListWarehouses(context.Background(), "nova_poshta", "K1", "")

		assert.ErrorIs(t, err, lookup.ErrUnavailable)
		assert.ErrorIs(t, err, cause)
	})
}

func TestService_ResolveCity(t *testing.T) {
	store := new(MockStore)
	store.On("GetCity", mock.Anything, "nova_poshta", "K1").Return(&carrier.CityRecord{
		Ref:    "K1",
		Names:  carrier.Names{UK: "Київ", EN: "Kyiv"},
		Region: "Київська",
	}, nil)
	store.On("GetCity", mock.Anything, "nova_poshta", "missing").Return(nil, nil)
	svc := newService(store, nil)

	got, err := svc.ResolveCity(context.Background(), "nova_poshta", "K1")
	require.NoError(t, err)
	assert.Equal(t, &lookup.CityOption{ID: "K1", Text: "Київ", Region: "Київська"}, got)

	got, err = svc.ResolveCity(context.Background(), "nova_poshta", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestService_ResolveWarehouse(t *testing.T) {
	store := new(MockStore)
	store.On("GetWarehouse", mock.Anything, "nova_poshta", "w1").Return(&carrier.WarehouseRecord{
		Ref:    "w1",
		Number: "1",
		Names:  carrier.Names{EN: "Branch No. 1"},
		Type:   "Branch",
	}, nil)
	store.On("GetWarehouse", mock.Anything, "nova_poshta", "bad").Return(nil, errors.New("boom"))
	svc := newService(store, nil)

	got, err := svc.ResolveWarehouse(context.Background(), "", "w1")
	require.NoError(t, err)
	assert.Equal(t, &lookup.WarehouseOption{ID: "w1", Text: "Branch No. 1", Number: "1", Type: "Branch"}, got)

	_, err = svc.ResolveWarehouse(context.Background(), "", "bad")
	assert.ErrorIs(t, err, lookup.ErrUnavailable)
}

func TestService_CachesUntilInvalidated(t *testing.T) {
	store := new(MockStore)
	store.On("SearchCities", mock.Anything, "nova_poshta", "Ки", 0).Return([]directory.CityResult{
		{Ref: "K1", Label: "Київ"},
	}, nil).Twice()
	svc := newService(store, lookup.NewMemoryCache(0))
	ctx := context.Background()

	for range 3 {
		got, err := svc.SearchCities(ctx, "nova_poshta", "Ки")
		require.NoError(t, err)
		assert.Equal(t, []lookup.CityOption{{ID: "K1", Text: "Київ"}}, got)
	}
	store.AssertNumberOfCalls(t, "SearchCities", 1)

	svc.InvalidateCarrier(ctx, "nova_poshta")
	_, err := svc.SearchCities(ctx, "nova_poshta", "Ки")
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "SearchCities", 2)
}

func TestService_InvalidationDuringStoreReadIsNotCached(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, lookup.NewMemoryCache(time.Minute))
	ctx := context.Background()

	store.On("SearchCities", mock.Anything, "nova_poshta", "", 0).
		Run(func(mock.Arguments) { svc.InvalidateCarrier(ctx, "nova_poshta") }).
		Return([]directory.CityResult{{Ref: "old", Label: "Old"}}, nil).Once()
	store.On("SearchCities", mock.Anything, "nova_poshta", "", 0).
		Return([]directory.CityResult{{Ref: "new", Label: "New"}}, nil).Once()

	got, err := svc.SearchCities(ctx, "nova_poshta", "")
	require.NoError(t, err)
	assert.Equal(t, []lookup.CityOption{{ID: "old", Text: "Old"}}, got)

	got, err = svc.SearchCities(ctx, "nova_poshta", "")
	require.NoError(t, err)
	assert.Equal(t, []lookup.CityOption{{ID: "new", Text: "New"}}, got)
	store.AssertNumberOfCalls(t, "SearchCities", 2)
}

func TestService_SQLStore(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := directory.NewStore(db, directory.DefaultLanguages)

	require.NoError(t, store.UpsertCities(ctx, "nova_poshta", []carrier.CityRecord{
		{Ref: "K1", Names: carrier.Names{UK: "Київ"}},
		{Ref: "K2", Names: carrier.Names{UK: "Харків"}},
	}))
	require.NoError(t, store.UpsertWarehouses(ctx, "nova_poshta", []carrier.WarehouseRecord{
		{CityRef: "K2", Ref: "w10", Number: "10", Names: carrier.Names{UK: "Відділення №10"}},
		{CityRef: "K2", Ref: "w2", Number: "2", Names: carrier.Names{UK: "Відділення №2"}},
	}))
	svc := newService(store, nil)

	cities, err := svc.SearchCities(ctx, "nova_poshta", "ХАР")
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "K2", cities[0].ID)

	warehouses, err := svc.ListWarehouses(ctx, "nova_poshta", "K2", "")
	require.NoError(t, err)
	require.Len(t, warehouses, 2)
	assert.Equal(t, "w2", warehouses[0].ID)
	assert.Equal(t, "w10", warehouses[1].ID)

	none, err := svc.ListWarehouses(ctx, "nova_poshta", "K1", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}
