// Package dirsync refreshes carrier directories from the carrier APIs into
// the directory store and schedules those refreshes.
package dirsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/uadirectory/internal/telemetry"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// MaxBatchSize bounds the number of records written by one store call.
const MaxBatchSize = 200

// Store is the part of the directory store a sync run writes to.
type Store interface {
	ClearCarrier(ctx context.Context, carrierID string) error
	UpsertCities(ctx context.Context, carrierID string, batch []carrier.CityRecord) error
	UpsertWarehouses(ctx context.Context, carrierID string, batch []carrier.WarehouseRecord) error
	SetLastSync(ctx context.Context, carrierID string, at time.Time) error
}

// Providers resolves the configured provider of a carrier.
type Providers interface {
	Provider(id string) (carrier.Provider, error)
}

// Status is the outcome of a sync run.
type Status string

// Sync run outcomes.
const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Report describes one sync run. Reports may be shared between callers
// that joined the same run and must not be modified.
type Report struct {
	RunID            string        `json:"runId"`
	Carrier          string        `json:"carrier"`
	Status           Status        `json:"status"`
	Reason           string        `json:"reason,omitempty"`
	Cities           int           `json:"cities"`
	Warehouses       int           `json:"warehouses"`
	CityBatches      int           `json:"cityBatches"`
	WarehouseBatches int           `json:"warehouseBatches"`
	SkippedRecords   int           `json:"skippedRecords"`
	StartedAt        time.Time     `json:"startedAt"`
	FinishedAt       time.Time     `json:"finishedAt"`
	Duration         time.Duration `json:"duration"`
}

// Hook is called after every completed run.
type Hook func(ctx context.Context, report *Report)

// Config holds orchestrator tuning.
type Config struct {
	BatchSize int
}

// Orchestrator runs full clear-and-refill syncs, one at a time per carrier.
type Orchestrator struct {
	providers Providers
	store     Store
	batchSize int
	logger    *otelzap.Logger
	tracer    trace.Tracer
	metrics   *telemetry.Metrics

	group singleflight.Group

	mu    sync.RWMutex
	hooks []Hook

	now func() time.Time
}

// NewOrchestrator creates a sync orchestrator. metrics and tracer may be nil.
func NewOrchestrator(cfg Config, providers Providers, store Store, logger *otelzap.Logger, tracer trace.Tracer, metrics *telemetry.Metrics) *Orchestrator {
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("dirsync")
	}
	return &Orchestrator{
		providers: providers,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
		tracer:    tracer,
		metrics:   metrics,
		now:       time.Now,
	}
}

// OnComplete registers a hook run after each completed sync.
func (o *Orchestrator) OnComplete(h Hook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, h)
}

// Run syncs one carrier. Concurrent calls for the same carrier join the run
// already in flight and receive its report.
//
// An unknown or disabled carrier yields a skipped report and no error.
// Identifiers are normalised, so "Nova_Poshta" runs as "nova_poshta".
func (o *Orchestrator) Run(ctx context.Context, carrierID string) (*Report, error) {
	carrierID = carrier.NormalizeID(carrierID)
	v, err, shared := o.group.Do(carrierID, func() (any, error) {
		return o.run(ctx, carrierID)
	})
	if shared {
		o.logger.Debug("Joined in-flight directory sync", zap.String("carrier", carrierID))
	}
	report, _ := v.(*Report)
	return report, err
}

// Handle runs a sync and logs instead of returning its failure.
func (o *Orchestrator) Handle(ctx context.Context, carrierID string) {
	report, err := o.Run(ctx, carrierID)
	if err != nil {
		fields := []zap.Field{zap.String("carrier", carrierID), zap.Error(err)}
		if report != nil {
			fields = append(fields, zap.String("run_id", report.RunID))
		}
		o.logger.Ctx(ctx).Error("Directory sync failed", fields...)
	}
}

// RunAll syncs several carriers concurrently. One carrier's failure does not
// stop the others; the returned error joins every failure.
func (o *Orchestrator) RunAll(ctx context.Context, carrierIDs []string) ([]*Report, error) {
	reports := make([]*Report, len(carrierIDs))
	errs := make([]error, len(carrierIDs))

	var g errgroup.Group
	g.SetLimit(4)
	for i, id := range carrierIDs {
		g.Go(func() error {
			reports[i], errs[i] = o.Run(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}

func (o *Orchestrator) run(ctx context.Context, carrierID string) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Carrier:   carrierID,
		StartedAt: o.now(),
	}

	provider, err := o.providers.Provider(carrierID)
	if err != nil {
		if errors.Is(err, carrier.ErrUnknownCarrier) || errors.Is(err, carrier.ErrCarrierDisabled) {
			report.Status = StatusSkipped
			report.Reason = err.Error()
			o.finish(report)
			o.logger.Info("Directory sync skipped", runFields(report, zap.String("reason", report.Reason))...)
			return report, nil
		}
		return o.fail(ctx, report, fmt.Errorf("resolve provider: %w", err))
	}

	ctx, span := o.tracer.Start(ctx, "dirsync.Run", trace.WithAttributes(
		attribute.String("carrier", carrierID),
		attribute.String("run_id", report.RunID),
	))
	defer span.End()

	o.logger.Ctx(ctx).Info("Directory sync started", runFields(report)...)

	if err := o.store.ClearCarrier(ctx, carrierID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.fail(ctx, report, fmt.Errorf("clear: %w", err))
	}

	cityRefs, err := o.syncCities(ctx, provider, report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.fail(ctx, report, fmt.Errorf("city phase: %w", err))
	}

	if err := o.syncWarehouses(ctx, provider, cityRefs, report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.fail(ctx, report, fmt.Errorf("warehouse phase: %w", err))
	}

	completedAt := o.now()
	if err := o.store.SetLastSync(ctx, carrierID, completedAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.fail(ctx, report, fmt.Errorf("record completion: %w", err))
	}

	report.Status = StatusCompleted
	o.finish(report)
	span.SetAttributes(
		attribute.Int("cities", report.Cities),
		attribute.Int("warehouses", report.Warehouses),
	)
	o.logger.Ctx(ctx).Info("Directory sync completed", runFields(report,
		zap.Int("cities", report.Cities),
		zap.Int("warehouses", report.Warehouses),
		zap.Int("skipped_records", report.SkippedRecords),
		zap.Duration("duration", report.Duration),
	)...)
	if o.metrics != nil {
		o.metrics.RecordSync(carrierID, "success", report.Cities, report.Warehouses, report.Duration)
	}

	o.mu.RLock()
	hooks := append([]Hook(nil), o.hooks...)
	o.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, report)
	}
	return report, nil
}

// syncCities streams cities into batches and returns the distinct non-empty
// refs in first-seen order.
func (o *Orchestrator) syncCities(ctx context.Context, provider carrier.Provider, report *Report) ([]string, error) {
	carrierID := provider.Name()
	var refs []string
	seen := make(map[string]struct{})

	b := newBatcher(o.batchSize, func(batch []carrier.CityRecord) error {
		if err := o.store.UpsertCities(ctx, carrierID, batch); err != nil {
			return err
		}
		report.Cities += len(batch)
		report.CityBatches++
		return nil
	})

	for city, err := range provider.Cities(ctx) {
		if err != nil {
			return refs, err
		}
		if city.Ref == "" {
			report.SkippedRecords++
			continue
		}
		if _, ok := seen[city.Ref]; !ok {
			seen[city.Ref] = struct{}{}
			refs = append(refs, city.Ref)
		}
		if err := b.add(city); err != nil {
			return refs, err
		}
	}
	return refs, b.flush()
}

// syncWarehouses streams the warehouses of every city in order. Batches may
// span cities.
func (o *Orchestrator) syncWarehouses(ctx context.Context, provider carrier.Provider, cityRefs []string, report *Report) error {
	carrierID := provider.Name()
	b := newBatcher(o.batchSize, func(batch []carrier.WarehouseRecord) error {
		if err := o.store.UpsertWarehouses(ctx, carrierID, batch); err != nil {
			return err
		}
		report.Warehouses += len(batch)
		report.WarehouseBatches++
		return nil
	})

	for _, cityRef := range cityRefs {
		for wh, err := range provider.Warehouses(ctx, cityRef) {
			if err != nil {
				return fmt.Errorf("city %s: %w", cityRef, err)
			}
			if wh.Ref == "" {
				report.SkippedRecords++
				continue
			}
			if wh.CityRef == "" {
				wh.CityRef = cityRef
			}
			if err := b.add(wh); err != nil {
				return err
			}
		}
	}
	return b.flush()
}

func (o *Orchestrator) finish(report *Report) {
	report.FinishedAt = o.now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
}

func (o *Orchestrator) fail(ctx context.Context, report *Report, err error) (*Report, error) {
	report.Status = StatusFailed
	report.Reason = err.Error()
	o.finish(report)
	if o.metrics != nil {
		o.metrics.RecordSync(report.Carrier, "failure", report.Cities, report.Warehouses, report.Duration)
		var carrierErr *carrier.CarrierError
		if errors.As(err, &carrierErr) {
			o.metrics.RecordError(report.Carrier, carrierErr.Code)
		}
	}
	o.logger.Ctx(ctx).Warn("Directory sync aborted", runFields(report,
		zap.Int("cities", report.Cities),
		zap.Int("warehouses", report.Warehouses),
		zap.Error(err),
	)...)
	return report, fmt.Errorf("sync %s: %w", report.Carrier, err)
}

func runFields(report *Report, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("carrier", report.Carrier),
		zap.String("run_id", report.RunID),
	}, extra...)
}
