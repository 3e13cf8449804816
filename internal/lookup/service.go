// Package lookup answers directory queries for the UI from the local store.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/tournevent/uadirectory/internal/directory"
	"github.com/tournevent/uadirectory/internal/telemetry"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// MaxTermLength caps the search term, in characters.
const MaxTermLength = 100

var (
	// ErrInvalidCarrier is returned for carrier identifiers that are not registered.
	ErrInvalidCarrier = errors.New("invalid carrier")

	// ErrUnavailable is returned when the directory could not be queried.
	ErrUnavailable = errors.New("directory temporarily unavailable")
)

// CityOption is a city as shown in a select box.
type CityOption struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Region string `json:"region"`
}

// WarehouseOption is a warehouse as shown in a select box.
type WarehouseOption struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Number string `json:"number"`
	Type   string `json:"type"`
}

// Store is the read side of the directory store.
type Store interface {
	SearchCities(ctx context.Context, carrierID, term string, limit int) ([]directory.CityResult, error)
	GetWarehouses(ctx context.Context, carrierID, cityRef, term string, limit int) ([]directory.WarehouseResult, error)
	GetCity(ctx context.Context, carrierID, ref string) (*carrier.CityRecord, error)
	GetWarehouse(ctx context.Context, carrierID, ref string) (*carrier.WarehouseRecord, error)
	ComposeLabel(names carrier.Names) string
}

// Carriers answers static questions about registered carriers.
type Carriers interface {
	Known(id string) bool
	SupportsDirectories(id string) bool
}

// Config holds lookup defaults. Zero limits use the store defaults.
type Config struct {
	DefaultCarrier string
	CityLimit      int
	WarehouseLimit int
}

// Service is the read-only directory facade.
type Service struct {
	cfg      Config
	store    Store
	carriers Carriers
	cache    Cache
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
}

// NewService creates a lookup service. cache and metrics may be nil.
func NewService(cfg Config, store Store, carriers Carriers, cache Cache, logger *otelzap.Logger, metrics *telemetry.Metrics) *Service {
	cfg.DefaultCarrier = carrier.NormalizeID(cfg.DefaultCarrier)
	return &Service{
		cfg:      cfg,
		store:    store,
		carriers: carriers,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
	}
}

// DefaultCarrier returns the carrier used when a request names none.
func (s *Service) DefaultCarrier() string {
	return s.cfg.DefaultCarrier
}

// SearchCities returns the carrier's cities whose names contain term.
// An empty term lists cities from the start of the directory.
func (s *Service) SearchCities(ctx context.Context, carrierID, term string) ([]CityOption, error) {
	start := time.Now()
	carrierID, err := s.resolveCarrier(carrierID)
	if err != nil {
		return nil, err
	}
	if !s.carriers.SupportsDirectories(carrierID) {
		return []CityOption{}, nil
	}
	term = normalizeTerm(term)

	key := "cities:" + strings.ToLower(term)
	gen, cacheable := s.cacheGeneration(ctx, carrierID)
	var options []CityOption
	if cacheable && s.cacheGet(ctx, carrierID, gen, key, &options) {
		s.record("search_cities", carrierID, "cached", start)
		return options, nil
	}

	rows, err := s.store.SearchCities(ctx, carrierID, term, s.cfg.CityLimit)
	if err != nil {
		return nil, s.unavailable(ctx, "search_cities", carrierID, start, err)
	}
	options = lo.Map(rows, func(r directory.CityResult, _ int) CityOption {
		return CityOption{ID: r.Ref, Text: r.Label, Region: r.Region}
	})
	if cacheable {
		s.cacheSet(ctx, carrierID, gen, key, options)
	}
	s.record("search_cities", carrierID, "success", start)
	return options, nil
}

// ListWarehouses returns the warehouses of one city matching term.
// An empty cityRef yields an empty list.
func (s *Service) ListWarehouses(ctx context.Context, carrierID, cityRef, term string) ([]WarehouseOption, error) {
	start := time.Now()
	carrierID, err := s.resolveCarrier(carrierID)
	if err != nil {
		return nil, err
	}
	cityRef = strings.TrimSpace(cityRef)
	if cityRef == "" || !s.carriers.SupportsDirectories(carrierID) {
		return []WarehouseOption{}, nil
	}
	term = normalizeTerm(term)

	key := "warehouses:" + cityRef + ":" + strings.ToLower(term)
	gen, cacheable := s.cacheGeneration(ctx, carrierID)
	var options []WarehouseOption
	if cacheable && s.cacheGet(ctx, carrierID, gen, key, &options) {
		s.record("list_warehouses", carrierID, "cached", start)
		return options, nil
	}

	rows, err := s.store.GetWarehouses(ctx, carrierID, cityRef, term, s.cfg.WarehouseLimit)
	if err != nil {
		return nil, s.unavailable(ctx, "list_warehouses", carrierID, start, err)
	}
	options = lo.Map(rows, func(r directory.WarehouseResult, _ int) WarehouseOption {
		return WarehouseOption{ID: r.Ref, Text: r.Label, Number: r.Number, Type: r.Type}
	})
	if cacheable {
		s.cacheSet(ctx, carrierID, gen, key, options)
	}
	s.record("list_warehouses", carrierID, "success", start)
	return options, nil
}

// ResolveCity returns one stored city, or nil when the ref is unknown.
func (s *Service) ResolveCity(ctx context.Context, carrierID, ref string) (*CityOption, error) {
	start := time.Now()
	carrierID, err := s.resolveCarrier(carrierID)
	if err != nil {
		return nil, err
	}
	if ref = strings.TrimSpace(ref); ref == "" {
		return nil, nil
	}
	city, err := s.store.GetCity(ctx, carrierID, ref)
	if err != nil {
		return nil, s.unavailable(ctx, "resolve_city", carrierID, start, err)
	}
	if city == nil {
		return nil, nil
	}
	return &CityOption{ID: city.Ref, Text: s.store.ComposeLabel(city.Names), Region: city.Region}, nil
}

// ResolveWarehouse returns one stored warehouse, or nil when the ref is unknown.
func (s *Service) ResolveWarehouse(ctx context.Context, carrierID, ref string) (*WarehouseOption, error) {
	start := time.Now()
	carrierID, err := s.resolveCarrier(carrierID)
	if err != nil {
		return nil, err
	}
	if ref = strings.TrimSpace(ref); ref == "" {
		return nil, nil
	}
	wh, err := s.store.GetWarehouse(ctx, carrierID, ref)
	if err != nil {
		return nil, s.unavailable(ctx, "resolve_warehouse", carrierID, start, err)
	}
	if wh == nil {
		return nil, nil
	}
	return &WarehouseOption{
		ID:     wh.Ref,
		Text:   s.store.ComposeLabel(wh.Names),
		Number: wh.Number,
		Type:   wh.Type,
	}, nil
}

// InvalidateCarrier drops cached answers for a carrier.
func (s *Service) InvalidateCarrier(ctx context.Context, carrierID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, carrier.NormalizeID(carrierID)); err != nil {
		s.logger.Ctx(ctx).Warn("Failed to invalidate lookup cache",
			zap.String("carrier", carrierID),
			zap.Error(err),
		)
	}
}

func (s *Service) resolveCarrier(id string) (string, error) {
	id = carrier.NormalizeID(id)
	if id == "" {
		id = s.cfg.DefaultCarrier
	}
	if id == "" || !s.carriers.Known(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCarrier, id)
	}
	return id, nil
}

func (s *Service) unavailable(ctx context.Context, op, carrierID string, start time.Time, err error) error {
	s.logger.Ctx(ctx).Error("Directory query failed",
		zap.String("operation", op),
		zap.String("carrier", carrierID),
		zap.Error(err),
	)
	s.record(op, carrierID, "error", start)
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (s *Service) record(op, carrierID, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordRequest(op, carrierID, status, time.Since(start).Seconds())
	}
}

// cacheGeneration reads the carrier's cache generation before the store is
// queried. It reports false when the cache is absent or unreachable.
func (s *Service) cacheGeneration(ctx context.Context, carrierID string) (uint64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := s.cache.Generation(ctx, carrierID)
	if err != nil {
		s.logger.Ctx(ctx).Warn("Lookup cache unavailable", zap.String("carrier", carrierID), zap.Error(err))
		return 0, false
	}
	return gen, true
}

func (s *Service) cacheGet(ctx context.Context, carrierID string, gen uint64, key string, dst any) bool {
	ok, err := s.cache.Get(ctx, carrierID, gen, key, dst)
	if err != nil {
		s.logger.Ctx(ctx).Warn("Lookup cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (s *Service) cacheSet(ctx context.Context, carrierID string, gen uint64, key string, value any) {
	if err := s.cache.Set(ctx, carrierID, gen, key, value); err != nil {
		s.logger.Ctx(ctx).Warn("Lookup cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// normalizeTerm trims term and cuts it to MaxTermLength characters.
func normalizeTerm(term string) string {
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) <= MaxTermLength {
		return term
	}
	return strings.TrimSpace(string([]rune(term)[:MaxTermLength]))
}
