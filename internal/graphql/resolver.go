package graphql

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/tournevent/uadirectory/internal/directory"
	"github.com/tournevent/uadirectory/internal/dirsync"
	"github.com/tournevent/uadirectory/internal/lookup"
	"github.com/tournevent/uadirectory/internal/telemetry"
	"github.com/tournevent/uadirectory/internal/waybill"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"
)

//go:embed schema.graphql
var schemaSDL string

// DirectoryState reads sync bookkeeping from the directory store.
type DirectoryState interface {
	LastSync(ctx context.Context) (time.Time, bool, error)
	LastSyncFor(ctx context.Context, carrierID string) (time.Time, bool, error)
	Counts(ctx context.Context, carrierID string) (cities, warehouses int, err error)
}

// Resolver is the root resolver for the GraphQL schema.
// It holds dependencies needed by all resolvers.
type Resolver struct {
	Factory   *carrier.Factory
	Lookup    *lookup.Service
	Waybills  *waybill.Service
	Scheduler *dirsync.Scheduler
	Directory DirectoryState
	Logger    *otelzap.Logger
	Metrics   *telemetry.Metrics

	schema *ast.Schema
}

// Deps groups the services a Resolver delegates to.
type Deps struct {
	Factory   *carrier.Factory
	Lookup    *lookup.Service
	Waybills  *waybill.Service
	Scheduler *dirsync.Scheduler
	Directory DirectoryState
}

// NewResolver creates a new resolver with the given dependencies.
func NewResolver(deps Deps, logger *otelzap.Logger, metrics *telemetry.Metrics) *Resolver {
	return &Resolver{
		Factory:   deps.Factory,
		Lookup:    deps.Lookup,
		Waybills:  deps.Waybills,
		Scheduler: deps.Scheduler,
		Directory: deps.Directory,
		Logger:    logger,
		Metrics:   metrics,
		schema:    gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL}),
	}
}

// Query returns the query resolver.
func (r *Resolver) Query() *QueryResolver {
	return &QueryResolver{r}
}

// Mutation returns the mutation resolver.
func (r *Resolver) Mutation() *MutationResolver {
	return &MutationResolver{r}
}

// QueryResolver resolves read-only fields.
type QueryResolver struct{ *Resolver }

// MutationResolver resolves fields with side effects.
type MutationResolver struct{ *Resolver }

// Health reports liveness.
func (q *QueryResolver) Health(ctx context.Context) (string, error) {
	return "ok", nil
}

// Carriers lists registered carriers in display order.
func (q *QueryResolver) Carriers(ctx context.Context) ([]Carrier, error) {
	enabled := q.Factory.Enabled()
	return lo.Map(q.Factory.Registry().Carriers(), func(c carrier.Info, _ int) Carrier {
		return Carrier{
			ID:                  c.ID,
			Label:               c.Label,
			SupportsDirectories: c.SupportsDirectories,
			Enabled:             lo.Contains(enabled, c.ID),
		}
	}), nil
}

// Cities searches the city directory of a carrier.
func (q *QueryResolver) Cities(ctx context.Context, carrierID, term string) ([]lookup.CityOption, error) {
	cities, err := q.Lookup.SearchCities(ctx, carrierID, term)
	if err != nil {
		return nil, PublicError(err)
	}
	return cities, nil
}

// Warehouses lists warehouses of a city.
func (q *QueryResolver) Warehouses(ctx context.Context, carrierID, cityRef, term string) ([]lookup.WarehouseOption, error) {
	warehouses, err := q.Lookup.ListWarehouses(ctx, carrierID, cityRef, term)
	if err != nil {
		return nil, PublicError(err)
	}
	return warehouses, nil
}

// SyncStatus reports last sync times, row counts and pending jobs.
func (q *QueryResolver) SyncStatus(ctx context.Context) (*SyncStatus, error) {
	last, ok, err := q.Directory.LastSync(ctx)
	if err != nil {
		return nil, q.internal(ctx, "sync status", err)
	}
	status := &SyncStatus{
		LastSync: optionalTime(last, ok),
		Carriers: []CarrierSyncStatus{},
		Pending:  lo.Map(q.Scheduler.Pending(), func(j dirsync.Job, _ int) SyncJob { return jobToModel(j) }),
	}
	for _, info := range q.Factory.Registry().Carriers() {
		if !info.SupportsDirectories {
			continue
		}
		at, ok, err := q.Directory.LastSyncFor(ctx, info.ID)
		if err != nil {
			return nil, q.internal(ctx, "sync status", err)
		}
		cities, warehouses, err := q.Directory.Counts(ctx, info.ID)
		if err != nil {
			return nil, q.internal(ctx, "sync status", err)
		}
		status.Carriers = append(status.Carriers, CarrierSyncStatus{
			Carrier:    info.ID,
			LastSync:   optionalTime(at, ok),
			Cities:     cities,
			Warehouses: warehouses,
		})
	}
	return status, nil
}

// Waybill returns the waybill recorded for an order, or nil.
func (q *QueryResolver) Waybill(ctx context.Context, orderRef string) (*Waybill, error) {
	w, err := q.Waybills.Get(ctx, orderRef)
	if err != nil {
		return nil, q.internal(ctx, "get waybill", err)
	}
	return waybillToModel(w), nil
}

// CreateWaybill creates a carrier waybill for an order.
func (m *MutationResolver) CreateWaybill(ctx context.Context, input waybill.Request) (*waybill.Result, error) {
	result := m.Waybills.Create(ctx, input)
	return &result, nil
}

// TriggerSync schedules a manual directory sync.
func (m *MutationResolver) TriggerSync(ctx context.Context, carrierID string) (*SyncJob, error) {
	registry := m.Factory.Registry()
	if !registry.Known(carrierID) {
		return nil, fmt.Errorf("unknown carrier %q", carrierID)
	}
	if !registry.SupportsDirectories(carrierID) {
		return nil, fmt.Errorf("carrier %q has no directory to sync", carrierID)
	}
	job := jobToModel(m.Scheduler.Enqueue(carrier.NormalizeID(carrierID)))
	m.Logger.Ctx(ctx).Info("Manual directory sync scheduled",
		zap.String("carrier", job.Carrier),
		zap.String("job_id", job.ID),
	)
	return &job, nil
}

// internal logs err and returns a message without internal detail.
func (r *Resolver) internal(ctx context.Context, op string, err error) error {
	r.Logger.Ctx(ctx).Error("Request failed", zap.String("operation", op), zap.Error(err))
	return ErrTransient
}

var _ DirectoryState = (*directory.Store)(nil)
