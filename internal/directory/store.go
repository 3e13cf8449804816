// Package directory persists carrier city and warehouse directories and
// answers search queries against them.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/tournevent/uadirectory/pkg/carrier"
)

const (
	upsertCitySQL = `
		INSERT INTO directory_cities (carrier, ref, name_uk, name_en, name_ru, region, search_text)
		VALUES (:carrier, :ref, :name_uk, :name_en, :name_ru, :region, :search_text)
		ON CONFLICT (carrier, ref) DO UPDATE SET
			name_uk = excluded.name_uk,
			name_en = excluded.name_en,
			name_ru = excluded.name_ru,
			region = excluded.region,
			search_text = excluded.search_text`

	upsertWarehouseSQL = `
		INSERT INTO directory_warehouses
			(carrier, city_ref, ref, number, number_sort, name_uk, name_en, name_ru, type, lat, lng, search_text)
		VALUES
			(:carrier, :city_ref, :ref, :number, :number_sort, :name_uk, :name_en, :name_ru, :type, :lat, :lng, :search_text)
		ON CONFLICT (carrier, ref) DO UPDATE SET
			city_ref = excluded.city_ref,
			number = excluded.number,
			number_sort = excluded.number_sort,
			name_uk = excluded.name_uk,
			name_en = excluded.name_en,
			name_ru = excluded.name_ru,
			type = excluded.type,
			lat = excluded.lat,
			lng = excluded.lng,
			search_text = excluded.search_text`

	upsertStateSQL = `
		INSERT INTO directory_sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	upsertWaybillSQL = `
		INSERT INTO waybills (order_ref, carrier, number, ref, cost, created_at)
		VALUES (:order_ref, :carrier, :number, :ref, :cost, :created_at)
		ON CONFLICT (order_ref) DO UPDATE SET
			carrier = excluded.carrier,
			number = excluded.number,
			ref = excluded.ref,
			cost = excluded.cost,
			created_at = excluded.created_at`

	lastSyncKey = "last_sync"
)

// Store is the SQL-backed directory store. It works on SQLite and Postgres.
type Store struct {
	db    *sqlx.DB
	langs Languages
	now   func() time.Time
}

// NewStore creates a store resolving labels with langs.
func NewStore(db *sqlx.DB, langs Languages) *Store {
	if len(langs) == 0 {
		langs = DefaultLanguages
	}
	return &Store{db: db, langs: langs, now: time.Now}
}

// Languages returns the label priority in use.
func (s *Store) Languages() Languages {
	return s.langs
}

// ComposeLabel resolves the display label of a set of names.
func (s *Store) ComposeLabel(names carrier.Names) string {
	return s.langs.Label(names)
}

// ClearCarrier deletes every city and warehouse of a carrier.
func (s *Store) ClearCarrier(ctx context.Context, carrierID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("clear carrier", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"directory_warehouses", "directory_cities"} {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE carrier = ?"), carrierID); err != nil {
			return storeErr("clear carrier", fmt.Errorf("%s: %w", table, err))
		}
	}
	return storeErr("clear carrier", tx.Commit())
}

// UpsertCities inserts or replaces a batch of cities keyed by (carrier, ref).
// The batch is written in one transaction.
func (s *Store) UpsertCities(ctx context.Context, carrierID string, batch []carrier.CityRecord) error {
	if len(batch) == 0 {
		return nil
	}
	for _, c := range batch {
		if c.Ref == "" {
			return storeErr("upsert cities", errors.New("city with empty ref"))
		}
	}
	rows := lo.Map(batch, func(c carrier.CityRecord, _ int) cityRow {
		return newCityRow(carrierID, c)
	})
	return storeErr("upsert cities", s.execBatch(ctx, upsertCitySQL, len(rows), func(i int) any { return rows[i] }))
}

// UpsertWarehouses inserts or replaces a batch of warehouses keyed by (carrier, ref).
func (s *Store) UpsertWarehouses(ctx context.Context, carrierID string, batch []carrier.WarehouseRecord) error {
	if len(batch) == 0 {
		return nil
	}
	for _, w := range batch {
		if w.Ref == "" {
			return storeErr("upsert warehouses", errors.New("warehouse with empty ref"))
		}
	}
	rows := lo.Map(batch, func(w carrier.WarehouseRecord, _ int) warehouseRow {
		return newWarehouseRow(carrierID, w)
	})
	return storeErr("upsert warehouses", s.execBatch(ctx, upsertWarehouseSQL, len(rows), func(i int) any { return rows[i] }))
}

func (s *Store) execBatch(ctx context.Context, query string, n int, arg func(i int) any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, arg(i)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SearchCities matches term against every name of the carrier's cities,
// ordered by the primary-language name. An empty term matches all cities.
func (s *Store) SearchCities(ctx context.Context, carrierID, term string, limit int) ([]CityResult, error) {
	query := `SELECT carrier, ref, name_uk, name_en, name_ru, region, search_text
		FROM directory_cities WHERE carrier = ?`
	args := []any{carrierID}
	if term != "" {
		query += ` AND search_text LIKE ? ESCAPE '\'`
		args = append(args, likePattern(term))
	}
	primary := s.primaryColumn()
	query += fmt.Sprintf(` ORDER BY (%s = ''), %s, ref LIMIT ?`, primary, primary)
	args = append(args, clampLimit(limit, DefaultCityLimit))

	var rows []cityRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, storeErr("search cities", err)
	}
	return lo.Map(rows, func(r cityRow, _ int) CityResult {
		return CityResult{Ref: r.Ref, Label: s.langs.Label(r.names()), Region: r.Region}
	}), nil
}

// GetWarehouses lists the warehouses of one city, numeric numbers first in
// ascending order, then by primary-language name. A non-empty term matches
// names or the number.
func (s *Store) GetWarehouses(ctx context.Context, carrierID, cityRef, term string, limit int) ([]WarehouseResult, error) {
	query := `SELECT carrier, city_ref, ref, number, number_sort, name_uk, name_en, name_ru, type, lat, lng, search_text
		FROM directory_warehouses WHERE carrier = ? AND city_ref = ?`
	args := []any{carrierID, cityRef}
	if term != "" {
		query += ` AND search_text LIKE ? ESCAPE '\'`
		args = append(args, likePattern(term))
	}
	query += fmt.Sprintf(` ORDER BY (number_sort = 0), number_sort, %s, ref LIMIT ?`, s.primaryColumn())
	args = append(args, clampLimit(limit, DefaultWarehouseLimit))

	var rows []warehouseRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, storeErr("get warehouses", err)
	}
	return lo.Map(rows, func(r warehouseRow, _ int) WarehouseResult {
		return WarehouseResult{Ref: r.Ref, Label: s.langs.Label(r.names()), Number: r.Number, Type: r.Type}
	}), nil
}

// GetCity returns one city, or nil when it is not stored.
func (s *Store) GetCity(ctx context.Context, carrierID, ref string) (*carrier.CityRecord, error) {
	var row cityRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT carrier, ref, name_uk, name_en, name_ru, region, search_text
		FROM directory_cities WHERE carrier = ? AND ref = ?`), carrierID, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get city", err)
	}
	rec := row.record()
	return &rec, nil
}

// GetWarehouse returns one warehouse, or nil when it is not stored.
func (s *Store) GetWarehouse(ctx context.Context, carrierID, ref string) (*carrier.WarehouseRecord, error) {
	var row warehouseRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT carrier, city_ref, ref, number, number_sort, name_uk, name_en, name_ru, type, lat, lng, search_text
		FROM directory_warehouses WHERE carrier = ? AND ref = ?`), carrierID, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get warehouse", err)
	}
	rec := row.record()
	return &rec, nil
}

// Counts returns the number of stored cities and warehouses of a carrier.
func (s *Store) Counts(ctx context.Context, carrierID string) (cities, warehouses int, err error) {
	if err := s.db.GetContext(ctx, &cities, s.db.Rebind(
		`SELECT COUNT(*) FROM directory_cities WHERE carrier = ?`), carrierID); err != nil {
		return 0, 0, storeErr("count cities", err)
	}
	if err := s.db.GetContext(ctx, &warehouses, s.db.Rebind(
		`SELECT COUNT(*) FROM directory_warehouses WHERE carrier = ?`), carrierID); err != nil {
		return 0, 0, storeErr("count warehouses", err)
	}
	return cities, warehouses, nil
}

// SetLastSync records a successful sync completion, both installation wide
// and for the carrier.
func (s *Store) SetLastSync(ctx context.Context, carrierID string, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("set last sync", err)
	}
	defer tx.Rollback()

	value := at.UTC().Format(time.RFC3339Nano)
	now := s.now().UTC()
	for _, key := range []string{lastSyncKey, lastSyncKey + ":" + carrierID} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(upsertStateSQL), key, value, now); err != nil {
			return storeErr("set last sync", err)
		}
	}
	return storeErr("set last sync", tx.Commit())
}

// LastSync returns the last successful sync of any carrier.
func (s *Store) LastSync(ctx context.Context) (time.Time, bool, error) {
	return s.readTime(ctx, lastSyncKey)
}

// LastSyncFor returns the last successful sync of one carrier.
func (s *Store) LastSyncFor(ctx context.Context, carrierID string) (time.Time, bool, error) {
	return s.readTime(ctx, lastSyncKey+":"+carrierID)
}

func (s *Store) readTime(ctx context.Context, key string) (time.Time, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.db.Rebind(`SELECT value FROM directory_sync_state WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storeErr("read sync state", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, storeErr("read sync state", err)
	}
	return t, true, nil
}

// SaveWaybill records the waybill of an order, replacing any previous one.
func (s *Store) SaveWaybill(ctx context.Context, w Waybill) error {
	if w.OrderRef == "" || w.Number == "" {
		return storeErr("save waybill", errors.New("order ref and number are required"))
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	w.CreatedAt = w.CreatedAt.UTC()
	_, err := s.db.NamedExecContext(ctx, upsertWaybillSQL, w)
	return storeErr("save waybill", err)
}

// GetWaybill returns the waybill of an order, or nil when there is none.
func (s *Store) GetWaybill(ctx context.Context, orderRef string) (*Waybill, error) {
	var w Waybill
	err := s.db.GetContext(ctx, &w, s.db.Rebind(
		`SELECT order_ref, carrier, number, ref, cost, created_at FROM waybills WHERE order_ref = ?`), orderRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get waybill", err)
	}
	return &w, nil
}

// DeleteWaybill removes the waybill of an order. Missing rows are not an error.
func (s *Store) DeleteWaybill(ctx context.Context, orderRef string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM waybills WHERE order_ref = ?`), orderRef)
	return storeErr("delete waybill", err)
}

// primaryColumn is interpolated into ORDER BY; Primary only returns known codes.
func (s *Store) primaryColumn() string {
	return "name_" + s.langs.Primary()
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, MaxLimit)
}
