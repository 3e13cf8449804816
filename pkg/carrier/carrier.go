// Package carrier provides an abstraction layer for Ukrainian parcel carriers.
package carrier

import (
	"context"
	"iter"
)

// Provider defines the interface that all parcel carriers must implement.
type Provider interface {
	// Name returns the carrier identifier (e.g., "nova_poshta", "ukrposhta").
	Name() string

	// Label returns the human readable carrier name.
	Label() string

	// Cities returns a lazy sequence over the carrier's city directory.
	// Every call starts a fresh paginated fetch.
	Cities(ctx context.Context) iter.Seq2[CityRecord, error]

	// Warehouses returns a lazy sequence over the warehouses of one city.
	Warehouses(ctx context.Context, cityRef string) iter.Seq2[WarehouseRecord, error]

	// CreateWaybill registers a shipment with the carrier and returns its waybill (TTN).
	// It is a single request; retries are left to the caller.
	CreateWaybill(ctx context.Context, req *ShipmentRequest) (*WaybillRecord, error)
}
