package graphql

import (
	"time"

	"github.com/tournevent/uadirectory/internal/directory"
	"github.com/tournevent/uadirectory/internal/dirsync"
)

// Carrier is a registered carrier as exposed to clients.
type Carrier struct {
	ID                  string `json:"id"`
	Label               string `json:"label"`
	SupportsDirectories bool   `json:"supportsDirectories"`
	Enabled             bool   `json:"enabled"`
}

// SyncStatus summarises directory freshness.
type SyncStatus struct {
	LastSync *string             `json:"lastSync"`
	Carriers []CarrierSyncStatus `json:"carriers"`
	Pending  []SyncJob           `json:"pending"`
}

// CarrierSyncStatus is the directory state of one carrier.
type CarrierSyncStatus struct {
	Carrier    string  `json:"carrier"`
	LastSync   *string `json:"lastSync"`
	Cities     int     `json:"cities"`
	Warehouses int     `json:"warehouses"`
}

// SyncJob is a scheduled sync.
type SyncJob struct {
	ID      string `json:"id"`
	Carrier string `json:"carrier"`
	Kind    string `json:"kind"`
	RunAt   string `json:"runAt"`
}

// Waybill is a waybill recorded against an order.
type Waybill struct {
	OrderRef  string `json:"orderRef"`
	Carrier   string `json:"carrier"`
	Number    string `json:"number"`
	Ref       string `json:"ref"`
	CreatedAt string `json:"createdAt"`
}

func jobToModel(j dirsync.Job) SyncJob {
	return SyncJob{
		ID:      j.ID,
		Carrier: j.Carrier,
		Kind:    string(j.Kind),
		RunAt:   formatTime(j.RunAt),
	}
}

func waybillToModel(w *directory.Waybill) *Waybill {
	if w == nil {
		return nil
	}
	return &Waybill{
		OrderRef:  w.OrderRef,
		Carrier:   w.Carrier,
		Number:    w.Number,
		Ref:       w.Ref,
		CreatedAt: formatTime(w.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(t time.Time, ok bool) *string {
	if !ok {
		return nil
	}
	s := formatTime(t)
	return &s
}
