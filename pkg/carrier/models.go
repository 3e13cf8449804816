package carrier

import (
	"time"
)

// Language codes understood by the directory.
const (
	LangUK = "uk"
	LangEN = "en"
	LangRU = "ru"
)

// Names holds a directory entry's name in each supported language.
type Names struct {
	UK string
	EN string
	RU string
}

// Get returns the name for a language code, or "" for unknown codes.
func (n Names) Get(lang string) string {
	switch lang {
	case LangUK:
		return n.UK
	case LangEN:
		return n.EN
	case LangRU:
		return n.RU
	default:
		return ""
	}
}

// Empty reports whether no language has a name.
func (n Names) Empty() bool {
	return n.UK == "" && n.EN == "" && n.RU == ""
}

// Coordinates is a warehouse geo position.
type Coordinates struct {
	Lat float64
	Lng float64
}

// CityRecord is one city as delivered by a carrier directory.
type CityRecord struct {
	Ref    string
	Names  Names
	Region string
}

// WarehouseRecord is one pickup point as delivered by a carrier directory.
type WarehouseRecord struct {
	CityRef     string
	Ref         string
	Number      string
	Names       Names
	Type        string
	Coordinates *Coordinates
}

// ============================================================================
// Waybill Types
// ============================================================================

// ShipmentRequest is the normalized payload for creating a waybill.
type ShipmentRequest struct {
	OrderRef              string
	Weight                float64 // kg
	DeclaredValue         float64 // UAH
	RecipientName         string
	RecipientPhone        string
	RecipientCityRef      string
	RecipientWarehouseRef string
	RecipientAddressLabel string
	Description           string
}

// WaybillRecord is the carrier's answer to a successful waybill creation.
type WaybillRecord struct {
	Carrier           string
	Number            string
	Ref               string
	Cost              float64
	EstimatedDelivery *time.Time
}
