// Package mock provides a scriptable in-memory carrier for testing.
package mock

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/uadirectory/pkg/carrier"
)

// Provider is an in-memory carrier whose directories are served page by page.
type Provider struct {
	name  string
	label string

	CityData      []carrier.CityRecord
	WarehouseData map[string][]carrier.WarehouseRecord
	PageSize      int

	// CityErr is returned for the page that would reach FailCitiesAfter records.
	CityErr         error
	FailCitiesAfter int
	// WarehouseErr is yielded for any city listed in FailWarehousesFor.
	WarehouseErr      error
	FailWarehousesFor map[string]bool

	OnCreateWaybill func(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.WaybillRecord, error)

	mu              sync.Mutex
	cityPages       int
	warehousePages  int
	waybillRequests []*carrier.ShipmentRequest
}

// New creates a mock carrier with no directory data.
func New(name string) *Provider {
	return &Provider{
		name:          name,
		label:         name,
		WarehouseData: make(map[string][]carrier.WarehouseRecord),
		PageSize:      carrier.DefaultPageSize,
	}
}

// WithLabel sets the display name.
func (p *Provider) WithLabel(label string) *Provider {
	p.label = label
	return p
}

// Name returns the carrier identifier.
func (p *Provider) Name() string {
	return p.name
}

// Label returns the display name.
func (p *Provider) Label() string {
	return p.label
}

// Cities serves CityData in pages of PageSize.
func (p *Provider) Cities(ctx context.Context) iter.Seq2[carrier.CityRecord, error] {
	return carrier.Paginate(ctx, p.name, p.PageSize, func(_ context.Context, page, limit int) ([]carrier.CityRecord, error) {
		p.mu.Lock()
		p.cityPages++
		p.mu.Unlock()

		items := slicePage(p.CityData, page, limit)
		if p.CityErr != nil {
			start := (page - 1) * limit
			if start+len(items) >= p.FailCitiesAfter {
				return nil, p.CityErr
			}
		}
		return items, nil
	})
}

// Warehouses serves WarehouseData for the city in pages of PageSize.
func (p *Provider) Warehouses(ctx context.Context, cityRef string) iter.Seq2[carrier.WarehouseRecord, error] {
	return carrier.Paginate(ctx, p.name, p.PageSize, func(_ context.Context, page, limit int) ([]carrier.WarehouseRecord, error) {
		p.mu.Lock()
		p.warehousePages++
		p.mu.Unlock()

		if p.FailWarehousesFor[cityRef] {
			err := p.WarehouseErr
			if err == nil {
				err = carrier.NewCarrierError(p.name, carrier.CodeUpstreamFailed, "simulated warehouse failure")
			}
			return nil, err
		}
		return slicePage(p.WarehouseData[cityRef], page, limit), nil
	})
}

// CreateWaybill records the request and returns a generated waybill.
func (p *Provider) CreateWaybill(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.WaybillRecord, error) {
	p.mu.Lock()
	p.waybillRequests = append(p.waybillRequests, req)
	p.mu.Unlock()

	if p.OnCreateWaybill != nil {
		return p.OnCreateWaybill(ctx, req)
	}

	delivery := time.Now().AddDate(0, 0, 2)
	return &carrier.WaybillRecord{
		Carrier:           p.name,
		Number:            fmt.Sprintf("2045%010d", time.Now().UnixNano()%10000000000),
		Ref:               uuid.New().String(),
		EstimatedDelivery: &delivery,
	}, nil
}

// CityPageCalls returns how many city pages were requested.
func (p *Provider) CityPageCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cityPages
}

// WarehousePageCalls returns how many warehouse pages were requested.
func (p *Provider) WarehousePageCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warehousePages
}

// WaybillRequests returns the shipment requests received so far.
func (p *Provider) WaybillRequests() []*carrier.ShipmentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*carrier.ShipmentRequest(nil), p.waybillRequests...)
}

func slicePage[T any](all []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(all) {
		return nil
	}
	end := min(start+limit, len(all))
	return all[start:end]
}

// Ensure Provider implements the carrier.Provider interface
var _ carrier.Provider = (*Provider)(nil)
