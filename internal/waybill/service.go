// Package waybill creates carrier waybills (TTN) for orders and keeps the
// issued numbers.
package waybill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tournevent/uadirectory/internal/directory"
	"github.com/tournevent/uadirectory/internal/telemetry"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// DefaultWeight is used when the order has no positive weight, in kg.
const DefaultWeight = 0.5

// User-facing failure messages.
const (
	MsgUnavailable   = "Carrier integration is not available."
	MsgFailed        = "Could not create TTN. Please check carrier settings."
	MsgRejected      = "Failed to create TTN."
	MsgOrderRequired = "Order reference is required."
)

// Request is a waybill creation request for one order.
type Request struct {
	Carrier               string  `json:"carrier"`
	OrderRef              string  `json:"orderRef"`
	Weight                float64 `json:"weight"`
	DeclaredValue         float64 `json:"declaredValue"`
	RecipientName         string  `json:"recipientName"`
	RecipientPhone        string  `json:"recipientPhone"`
	RecipientCityRef      string  `json:"recipientCityRef"`
	RecipientWarehouseRef string  `json:"recipientWarehouseRef"`
	RecipientAddressLabel string  `json:"recipientAddressLabel"`
	Description           string  `json:"description"`
}

// Result is the outcome shown to the operator. Failures are reported here
// rather than as errors.
type Result struct {
	Success       bool   `json:"success"`
	WaybillNumber string `json:"waybillNumber,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// Store persists waybill numbers per order.
type Store interface {
	SaveWaybill(ctx context.Context, w directory.Waybill) error
	GetWaybill(ctx context.Context, orderRef string) (*directory.Waybill, error)
	DeleteWaybill(ctx context.Context, orderRef string) error
}

// Providers resolves the configured provider of a carrier.
type Providers interface {
	Provider(id string) (carrier.Provider, error)
}

// Service creates and records waybills.
type Service struct {
	providers      Providers
	store          Store
	defaultCarrier string
	logger         *otelzap.Logger
	metrics        *telemetry.Metrics
	now            func() time.Time
}

// NewService creates a waybill service. metrics may be nil.
func NewService(providers Providers, store Store, defaultCarrier string, logger *otelzap.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{
		providers:      providers,
		store:          store,
		defaultCarrier: defaultCarrier,
		logger:         logger,
		metrics:        metrics,
		now:            time.Now,
	}
}

// Create registers the shipment with the carrier and records the number
// against the order.
func (s *Service) Create(ctx context.Context, req Request) Result {
	start := time.Now()
	carrierID := carrier.NormalizeID(req.Carrier)
	if carrierID == "" {
		carrierID = s.defaultCarrier
	}
	req.OrderRef = strings.TrimSpace(req.OrderRef)
	if req.OrderRef == "" {
		return Result{ErrorMessage: MsgOrderRequired}
	}

	provider, err := s.providers.Provider(carrierID)
	if err != nil {
		s.logger.Ctx(ctx).Warn("Waybill carrier unavailable",
			zap.String("carrier", carrierID),
			zap.String("order_ref", req.OrderRef),
			zap.Error(err),
		)
		s.record(carrierID, "unavailable", start)
		return Result{ErrorMessage: MsgUnavailable}
	}

	record, err := provider.CreateWaybill(ctx, Normalize(req))
	if err != nil {
		s.logger.Ctx(ctx).Error("Waybill creation failed",
			zap.String("carrier", carrierID),
			zap.String("order_ref", req.OrderRef),
			zap.Error(err),
		)
		var carrierErr *carrier.CarrierError
		if s.metrics != nil && errors.As(err, &carrierErr) {
			s.metrics.RecordError(carrierID, carrierErr.Code)
		}
		s.record(carrierID, "error", start)
		return Result{ErrorMessage: FailureMessage(err)}
	}

	if record.Number != "" {
		err := s.store.SaveWaybill(ctx, directory.Waybill{
			OrderRef:  req.OrderRef,
			Carrier:   carrierID,
			Number:    record.Number,
			Ref:       record.Ref,
			Cost:      record.Cost,
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			// The waybill exists at the carrier; the operator can still copy it.
			s.logger.Ctx(ctx).Error("Failed to record waybill",
				zap.String("order_ref", req.OrderRef),
				zap.String("waybill", record.Number),
				zap.Error(err),
			)
		}
	}

	s.logger.Ctx(ctx).Info("Waybill created",
		zap.String("carrier", carrierID),
		zap.String("order_ref", req.OrderRef),
		zap.String("waybill", record.Number),
	)
	s.record(carrierID, "success", start)
	return Result{Success: true, WaybillNumber: record.Number}
}

// Get returns the waybill recorded for an order, or nil.
func (s *Service) Get(ctx context.Context, orderRef string) (*directory.Waybill, error) {
	return s.store.GetWaybill(ctx, strings.TrimSpace(orderRef))
}

// Set records a waybill number entered by hand. An empty number clears it.
func (s *Service) Set(ctx context.Context, orderRef, carrierID, number string) error {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return errors.New(MsgOrderRequired)
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return s.Clear(ctx, orderRef)
	}
	carrierID = carrier.NormalizeID(carrierID)
	if carrierID == "" {
		carrierID = s.defaultCarrier
	}
	return s.store.SaveWaybill(ctx, directory.Waybill{
		OrderRef:  orderRef,
		Carrier:   carrierID,
		Number:    number,
		CreatedAt: s.now().UTC(),
	})
}

// Clear forgets the waybill of an order.
func (s *Service) Clear(ctx context.Context, orderRef string) error {
	return s.store.DeleteWaybill(ctx, strings.TrimSpace(orderRef))
}

func (s *Service) record(carrierID, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordRequest("create_waybill", carrierID, status, time.Since(start).Seconds())
	}
}

// Normalize fills the shipment defaults an order may lack.
func Normalize(req Request) *carrier.ShipmentRequest {
	weight := req.Weight
	if weight <= 0 {
		weight = DefaultWeight
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Order #%s", req.OrderRef)
	}
	return &carrier.ShipmentRequest{
		OrderRef:              req.OrderRef,
		Weight:                weight,
		DeclaredValue:         req.DeclaredValue,
		RecipientName:         strings.Join(strings.Fields(req.RecipientName), " "),
		RecipientPhone:        NormalizePhone(req.RecipientPhone),
		RecipientCityRef:      strings.TrimSpace(req.RecipientCityRef),
		RecipientWarehouseRef: strings.TrimSpace(req.RecipientWarehouseRef),
		RecipientAddressLabel: strings.TrimSpace(req.RecipientAddressLabel),
		Description:           description,
	}
}

// NormalizePhone keeps digits and plus signs.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' {
			return r
		}
		return -1
	}, phone)
}

// FailureMessage turns a waybill creation error into operator text.
func FailureMessage(err error) string {
	var carrierErr *carrier.CarrierError
	if !errors.As(err, &carrierErr) {
		return MsgFailed
	}
	switch carrierErr.Code {
	case carrier.CodeCredentialMissing, carrier.CodeUnsupported:
		return carrierErr.Message
	case carrier.CodeRejected:
		if carrierErr.Message == "" {
			return MsgRejected
		}
		return carrierErr.Message
	case carrier.CodeUnknownCarrier, carrier.CodeDisabled:
		return MsgUnavailable
	default:
		return MsgFailed
	}
}
