package directory

import (
	"database/sql"
	"time"

	"github.com/tournevent/uadirectory/pkg/carrier"
)

// Query limits.
const (
	DefaultCityLimit      = 20
	DefaultWarehouseLimit = 50
	MaxLimit              = 100
)

// CityResult is a city search hit with its resolved label.
type CityResult struct {
	Ref    string `json:"ref"`
	Label  string `json:"label"`
	Region string `json:"region"`
}

// WarehouseResult is a warehouse listing entry with its resolved label.
type WarehouseResult struct {
	Ref    string `json:"ref"`
	Label  string `json:"label"`
	Number string `json:"number"`
	Type   string `json:"type"`
}

// Waybill is a waybill number recorded against an order.
type Waybill struct {
	OrderRef  string    `db:"order_ref" json:"orderRef"`
	Carrier   string    `db:"carrier" json:"carrier"`
	Number    string    `db:"number" json:"number"`
	Ref       string    `db:"ref" json:"ref"`
	Cost      float64   `db:"cost" json:"cost"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type cityRow struct {
	Carrier    string `db:"carrier"`
	Ref        string `db:"ref"`
	NameUK     string `db:"name_uk"`
	NameEN     string `db:"name_en"`
	NameRU     string `db:"name_ru"`
	Region     string `db:"region"`
	SearchText string `db:"search_text"`
}

func (r cityRow) names() carrier.Names {
	return carrier.Names{UK: r.NameUK, EN: r.NameEN, RU: r.NameRU}
}

func (r cityRow) record() carrier.CityRecord {
	return carrier.CityRecord{Ref: r.Ref, Names: r.names(), Region: r.Region}
}

func newCityRow(carrierID string, c carrier.CityRecord) cityRow {
	return cityRow{
		Carrier:    carrierID,
		Ref:        c.Ref,
		NameUK:     c.Names.UK,
		NameEN:     c.Names.EN,
		NameRU:     c.Names.RU,
		Region:     c.Region,
		SearchText: searchText(c.Names),
	}
}

type warehouseRow struct {
	Carrier    string          `db:"carrier"`
	CityRef    string          `db:"city_ref"`
	Ref        string          `db:"ref"`
	Number     string          `db:"number"`
	NumberSort int64           `db:"number_sort"`
	NameUK     string          `db:"name_uk"`
	NameEN     string          `db:"name_en"`
	NameRU     string          `db:"name_ru"`
	Type       string          `db:"type"`
	Lat        sql.NullFloat64 `db:"lat"`
	Lng        sql.NullFloat64 `db:"lng"`
	SearchText string          `db:"search_text"`
}

func (r warehouseRow) names() carrier.Names {
	return carrier.Names{UK: r.NameUK, EN: r.NameEN, RU: r.NameRU}
}

func (r warehouseRow) record() carrier.WarehouseRecord {
	w := carrier.WarehouseRecord{
		CityRef: r.CityRef,
		Ref:     r.Ref,
		Number:  r.Number,
		Names:   r.names(),
		Type:    r.Type,
	}
	if r.Lat.Valid && r.Lng.Valid {
		w.Coordinates = &carrier.Coordinates{Lat: r.Lat.Float64, Lng: r.Lng.Float64}
	}
	return w
}

func newWarehouseRow(carrierID string, w carrier.WarehouseRecord) warehouseRow {
	row := warehouseRow{
		Carrier:    carrierID,
		CityRef:    w.CityRef,
		Ref:        w.Ref,
		Number:     w.Number,
		NumberSort: numberSort(w.Number),
		NameUK:     w.Names.UK,
		NameEN:     w.Names.EN,
		NameRU:     w.Names.RU,
		Type:       w.Type,
		SearchText: searchText(w.Names, w.Number),
	}
	if w.Coordinates != nil {
		row.Lat = sql.NullFloat64{Float64: w.Coordinates.Lat, Valid: true}
		row.Lng = sql.NullFloat64{Float64: w.Coordinates.Lng, Valid: true}
	}
	return row
}
