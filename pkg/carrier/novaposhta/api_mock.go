package novaposhta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing and local runs.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetCities            func(ctx context.Context, page, limit int) ([]City, error)
	OnGetWarehouses        func(ctx context.Context, cityRef string, page, limit int) ([]Warehouse, error)
	OnSaveInternetDocument func(ctx context.Context, req *InternetDocumentRequest) (*InternetDocument, error)

	cities     []City
	warehouses map[string][]Warehouse

	mu    sync.Mutex
	calls map[string]int
}

// NewMockAPIClient creates a new mock API client serving a small built-in directory.
func NewMockAPIClient() *MockAPIClient {
	kyiv := "8d5a980d-391c-11dd-90d9-001a92567626"
	kharkiv := "db5c88e0-391c-11dd-90d9-001a92567626"
	lviv := "db5c88f5-391c-11dd-90d9-001a92567626"

	return &MockAPIClient{
		cities: []City{
			{Ref: kyiv, Description: "Київ", DescriptionRu: "Киев", DescriptionTranslit: "Kyiv", AreaDescription: "Київська"},
			{Ref: kharkiv, Description: "Харків", DescriptionRu: "Харьков", DescriptionTranslit: "Kharkiv", AreaDescription: "Харківська"},
			{Ref: lviv, Description: "Львів", DescriptionRu: "Львов", DescriptionTranslit: "Lviv", AreaDescription: "Львівська"},
		},
		warehouses: map[string][]Warehouse{
			kyiv: {
				{Ref: "1ec09d88-e1c2-11e3-8c4a-0050568002cf", CityRef: kyiv, Number: "1", Description: "Відділення №1: вул. Пирогівський шлях, 135", DescriptionRu: "Отделение №1: ул. Пироговский путь, 135", TypeOfWarehouse: "9a68df70-0267-42a8-bb5c-37f427e36ee4", Latitude: 50.3611, Longitude: 30.5433},
				{Ref: "7b422fba-e1b8-11e3-8c4a-0050568002cf", CityRef: kyiv, Number: "2", Description: "Відділення №2: вул. Богатирська, 11", DescriptionRu: "Отделение №2: ул. Богатырская, 11", TypeOfWarehouse: "9a68df70-0267-42a8-bb5c-37f427e36ee4", Latitude: 50.5168, Longitude: 30.4983},
			},
			kharkiv: {
				{Ref: "16922801-e1c2-11e3-8c4a-0050568002cf", CityRef: kharkiv, Number: "1", Description: "Відділення №1: вул. Польова, 67", DescriptionRu: "Отделение №1: ул. Полевая, 67", TypeOfWarehouse: "9a68df70-0267-42a8-bb5c-37f427e36ee4", Latitude: 49.9782, Longitude: 36.1936},
			},
			lviv: {
				{Ref: "39931b80-e1c2-11e3-8c4a-0050568002cf", CityRef: lviv, Number: "1", Description: "Відділення №1: вул. Городоцька, 355", DescriptionRu: "Отделение №1: ул. Городоцкая, 355", TypeOfWarehouse: "9a68df70-0267-42a8-bb5c-37f427e36ee4", Latitude: 49.8213, Longitude: 23.9425},
			},
		},
		calls: make(map[string]int),
	}
}

// GetCities returns a page of the built-in city list.
func (m *MockAPIClient) GetCities(ctx context.Context, page, limit int) ([]City, error) {
	m.record("getCities")
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnGetCities != nil {
		return m.OnGetCities(ctx, page, limit)
	}
	return pageOf(m.cities, page, limit), nil
}

// GetWarehouses returns a page of the built-in warehouses for a city.
func (m *MockAPIClient) GetWarehouses(ctx context.Context, cityRef string, page, limit int) ([]Warehouse, error) {
	m.record("getWarehouses")
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnGetWarehouses != nil {
		return m.OnGetWarehouses(ctx, cityRef, page, limit)
	}
	return pageOf(m.warehouses[cityRef], page, limit), nil
}

// SaveInternetDocument creates a mock waybill.
func (m *MockAPIClient) SaveInternetDocument(ctx context.Context, req *InternetDocumentRequest) (*InternetDocument, error) {
	m.record("save")
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnSaveInternetDocument != nil {
		return m.OnSaveInternetDocument(ctx, req)
	}

	return &InternetDocument{
		Ref:                   uuid.New().String(),
		IntDocNumber:          fmt.Sprintf("2045%010d", time.Now().UnixNano()%10000000000),
		CostOnSite:            70,
		EstimatedDeliveryDate: time.Now().AddDate(0, 0, 2).Format(deliveryDateLayout),
		TypeDocument:          "InternetDocument",
	}, nil
}

// Calls returns how many times the named API method was invoked.
func (m *MockAPIClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockAPIClient) record(method string) {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return &APIError{StatusCode: 500, Err: fmt.Errorf("simulated API error")}
	}
	return nil
}

func pageOf[T any](all []T, page, limit int) []T {
	start := (page - 1) * limit
	if start < 0 || start >= len(all) {
		return nil
	}
	return all[start:min(start+limit, len(all))]
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
