// Package novaposhta provides integration with the Nova Poshta JSON API.
package novaposhta

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	// ID is the registry identifier of the carrier.
	ID = "nova_poshta"
	// Label is the display name of the carrier.
	Label = "Nova Poshta"

	// DefaultBaseURL is the public JSON API endpoint.
	DefaultBaseURL = "https://api.novaposhta.ua/v2.0/json/"

	defaultTimeout     = 45 * time.Second
	deliveryDateLayout = "02.01.2006"
)

// Config holds Nova Poshta configuration.
type Config struct {
	APIKey   string
	BaseURL  string
	PageSize int
	UseMock  bool
}

// Client is the Nova Poshta carrier provider.
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Nova Poshta client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: defaultTimeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Nova Poshta client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(ID)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = carrier.DefaultPageSize
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the carrier identifier.
func (c *Client) Name() string {
	return ID
}

// Label returns the display name.
func (c *Client) Label() string {
	return Label
}

// Cities streams the city directory page by page.
func (c *Client) Cities(ctx context.Context) iter.Seq2[carrier.CityRecord, error] {
	return carrier.Paginate(ctx, ID, c.config.PageSize, func(ctx context.Context, page, limit int) ([]carrier.CityRecord, error) {
		ctx, span := c.tracer.Start(ctx, "novaposhta.GetCities", trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("limit", limit),
		))
		defer span.End()

		cities, err := c.apiClient.GetCities(ctx, page, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Ctx(ctx).Error("Nova Poshta API error",
				zap.String("method", "getCities"),
				zap.Int("page", page),
				zap.Error(err),
			)
			return nil, toCarrierError(err, "failed to fetch cities")
		}

		c.logger.Ctx(ctx).Debug("Fetched Nova Poshta cities page",
			zap.Int("page", page),
			zap.Int("count", len(cities)),
		)
		return lo.Map(cities, func(item City, _ int) carrier.CityRecord {
			return cityToRecord(item)
		}), nil
	})
}

// Warehouses streams the warehouses of one city page by page.
func (c *Client) Warehouses(ctx context.Context, cityRef string) iter.Seq2[carrier.WarehouseRecord, error] {
	return carrier.Paginate(ctx, ID, c.config.PageSize, func(ctx context.Context, page, limit int) ([]carrier.WarehouseRecord, error) {
		ctx, span := c.tracer.Start(ctx, "novaposhta.GetWarehouses", trace.WithAttributes(
			attribute.String("city_ref", cityRef),
			attribute.Int("page", page),
			attribute.Int("limit", limit),
		))
		defer span.End()

		warehouses, err := c.apiClient.GetWarehouses(ctx, cityRef, page, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Ctx(ctx).Error("Nova Poshta API error",
				zap.String("method", "getWarehouses"),
				zap.String("city_ref", cityRef),
				zap.Int("page", page),
				zap.Error(err),
			)
			return nil, toCarrierError(err, "failed to fetch warehouses")
		}

		return lo.Map(warehouses, func(item Warehouse, _ int) carrier.WarehouseRecord {
			return warehouseToRecord(cityRef, item)
		}), nil
	})
}

// CreateWaybill registers an express waybill (TTN) with Nova Poshta.
func (c *Client) CreateWaybill(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.WaybillRecord, error) {
	ctx, span := c.tracer.Start(ctx, "novaposhta.CreateWaybill", trace.WithAttributes(
		attribute.String("order_ref", req.OrderRef),
	))
	defer span.End()

	if c.config.APIKey == "" {
		err := carrier.NewCarrierError(ID, carrier.CodeCredentialMissing, "Nova Poshta API key is missing.")
		span.SetStatus(codes.Error, err.Message)
		return nil, err
	}

	c.logger.Info("Creating Nova Poshta waybill",
		zap.String("order_ref", req.OrderRef),
		zap.String("city_ref", req.RecipientCityRef),
		zap.String("warehouse_ref", req.RecipientWarehouseRef),
	)

	doc, err := c.apiClient.SaveInternetDocument(ctx, shipmentToDocument(req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Nova Poshta API error", zap.String("method", "save"), zap.Error(err))
		return nil, toCarrierError(err, "failed to create waybill")
	}

	return documentToRecord(doc), nil
}

// ============================================================================
// Conversion helpers
// ============================================================================

func cityToRecord(item City) carrier.CityRecord {
	return carrier.CityRecord{
		Ref: item.Ref,
		Names: carrier.Names{
			UK: item.Description,
			EN: item.DescriptionTranslit,
			RU: item.DescriptionRu,
		},
		Region: item.AreaDescription,
	}
}

func warehouseToRecord(cityRef string, item Warehouse) carrier.WarehouseRecord {
	record := carrier.WarehouseRecord{
		CityRef: cityRef,
		Ref:     item.Ref,
		Number:  item.Number,
		Names: carrier.Names{
			UK: item.Description,
			EN: item.DescriptionTranslit,
			RU: item.DescriptionRu,
		},
		Type: item.TypeOfWarehouse,
	}
	if item.Latitude != 0 || item.Longitude != 0 {
		record.Coordinates = &carrier.Coordinates{
			Lat: float64(item.Latitude),
			Lng: float64(item.Longitude),
		}
	}
	return record
}

func shipmentToDocument(req *carrier.ShipmentRequest) *InternetDocumentRequest {
	return &InternetDocumentRequest{
		NewAddress:            "1",
		PayerType:             "Recipient",
		PaymentMethod:         "Cash",
		CargoType:             "Parcel",
		ServiceType:           "WarehouseWarehouse",
		Description:           req.Description,
		Weight:                formatNumber(req.Weight),
		SeatsAmount:           "1",
		Cost:                  formatNumber(req.DeclaredValue),
		RecipientCityRef:      req.RecipientCityRef,
		RecipientWarehouseRef: req.RecipientWarehouseRef,
		RecipientAddressName:  req.RecipientAddressLabel,
		RecipientName:         req.RecipientName,
		RecipientType:         "PrivatePerson",
		RecipientsPhone:       req.RecipientPhone,
	}
}

func documentToRecord(doc *InternetDocument) *carrier.WaybillRecord {
	record := &carrier.WaybillRecord{
		Carrier: ID,
		Number:  lo.Ternary(doc.IntDocNumber != "", doc.IntDocNumber, doc.Ref),
		Ref:     doc.Ref,
		Cost:    float64(doc.CostOnSite),
	}
	if t, ok := parseDeliveryDate(doc.EstimatedDeliveryDate); ok {
		record.EstimatedDelivery = &t
	}
	return record
}

// parseDeliveryDate accepts "20.10.2026" and "2026-10-20 00:00:00".
func parseDeliveryDate(s string) (time.Time, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	for _, layout := range []string{deliveryDateLayout, time.DateOnly} {
		if t, err := time.Parse(layout, fields[0]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// toCarrierError maps API client failures onto the carrier error kinds.
func toCarrierError(err error, message string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return carrier.NewCarrierError(ID, carrier.CodeUpstreamFailed, message).WithCause(err).WithRetryable(true)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return carrier.NewCarrierError(ID, carrier.CodeUpstreamFailed, message).WithCause(err)
	}
	if apiErr.Rejected {
		msg := message
		if len(apiErr.Messages) > 0 {
			msg = apiErr.Messages[0]
		}
		return carrier.NewCarrierError(ID, carrier.CodeRejected, msg).
			WithCause(err).
			WithStatusCode(apiErr.StatusCode)
	}
	retryable := apiErr.StatusCode == 0 ||
		apiErr.StatusCode == http.StatusTooManyRequests ||
		apiErr.StatusCode >= http.StatusInternalServerError
	return carrier.NewCarrierError(ID, carrier.CodeUpstreamFailed, message).
		WithCause(err).
		WithStatusCode(apiErr.StatusCode).
		WithRetryable(retryable)
}

// Ensure Client implements the carrier.Provider interface
var _ carrier.Provider = (*Client)(nil)
