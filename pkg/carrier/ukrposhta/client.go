// Package ukrposhta provides the Ukrposhta carrier.
//
// Ukrposhta has no directory browsing and no waybill integration yet: both
// directory streams are empty and CreateWaybill reports an unsupported
// operation.
package ukrposhta

import (
	"context"
	"iter"

	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	// ID is the registry identifier of the carrier.
	ID = "ukrposhta"
	// Label is the display name of the carrier.
	Label = "Ukrposhta"
)

// Config holds Ukrposhta configuration.
type Config struct {
	APIKey string
}

// Client is the Ukrposhta carrier provider.
type Client struct {
	config Config
	logger *otelzap.Logger
}

// New creates a new Ukrposhta client.
func New(cfg Config, logger *otelzap.Logger) *Client {
	return &Client{config: cfg, logger: logger}
}

// Name returns the carrier identifier.
func (c *Client) Name() string {
	return ID
}

// Label returns the display name.
func (c *Client) Label() string {
	return Label
}

// Cities always yields nothing.
func (c *Client) Cities(ctx context.Context) iter.Seq2[carrier.CityRecord, error] {
	return carrier.Empty[carrier.CityRecord]()
}

// Warehouses always yields nothing.
func (c *Client) Warehouses(ctx context.Context, cityRef string) iter.Seq2[carrier.WarehouseRecord, error] {
	return carrier.Empty[carrier.WarehouseRecord]()
}

// CreateWaybill is not available for Ukrposhta.
func (c *Client) CreateWaybill(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.WaybillRecord, error) {
	c.logger.Warn("Ukrposhta waybill requested but integration is not available",
		zap.String("order_ref", req.OrderRef),
	)
	return nil, carrier.NewCarrierError(ID, carrier.CodeUnsupported, "Ukrposhta API integration is not available yet.")
}

// Ensure Client implements the carrier.Provider interface
var _ carrier.Provider = (*Client)(nil)
