package novaposhta

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// APIClient defines the interface for Nova Poshta API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GetCities fetches one page of the AddressGeneral/getCities directory
	GetCities(ctx context.Context, page, limit int) ([]City, error)

	// GetWarehouses fetches one page of AddressGeneral/getWarehouses for a city
	GetWarehouses(ctx context.Context, cityRef string, page, limit int) ([]Warehouse, error)

	// SaveInternetDocument creates an express waybill (InternetDocument/save)
	SaveInternetDocument(ctx context.Context, req *InternetDocumentRequest) (*InternetDocument, error)
}

// ============================================================================
// API Request/Response Types (match Nova Poshta JSON API structure)
// ============================================================================

// Request is the envelope of every Nova Poshta API call.
type Request struct {
	APIKey           string `json:"apiKey"`
	ModelName        string `json:"modelName"`
	CalledMethod     string `json:"calledMethod"`
	MethodProperties any    `json:"methodProperties"`
}

// Response is the envelope of every Nova Poshta API answer.
type Response[T any] struct {
	Success    bool     `json:"success"`
	Data       []T      `json:"data"`
	Errors     Messages `json:"errors"`
	Warnings   Messages `json:"warnings"`
	ErrorCodes Messages `json:"errorCodes"`
}

// PageProperties are the methodProperties of a paginated directory call.
type PageProperties struct {
	CityRef string `json:"CityRef,omitempty"`
	Page    int    `json:"Page"`
	Limit   int    `json:"Limit"`
}

// City is an entry of the getCities directory.
type City struct {
	Ref                 string `json:"Ref"`
	Description         string `json:"Description"`
	DescriptionRu       string `json:"DescriptionRu"`
	DescriptionTranslit string `json:"DescriptionTranslit"`
	AreaDescription     string `json:"AreaDescription"`
}

// Warehouse is an entry of the getWarehouses directory.
type Warehouse struct {
	Ref                 string    `json:"Ref"`
	CityRef             string    `json:"CityRef"`
	Number              string    `json:"Number"`
	Description         string    `json:"Description"`
	DescriptionRu       string    `json:"DescriptionRu"`
	DescriptionTranslit string    `json:"DescriptionTranslit"`
	TypeOfWarehouse     string    `json:"TypeOfWarehouse"`
	Latitude            FlexFloat `json:"Latitude"`
	Longitude           FlexFloat `json:"Longitude"`
}

// InternetDocumentRequest is the methodProperties of InternetDocument/save.
type InternetDocumentRequest struct {
	NewAddress            string `json:"NewAddress"`
	PayerType             string `json:"PayerType"`
	PaymentMethod         string `json:"PaymentMethod"`
	CargoType             string `json:"CargoType"`
	ServiceType           string `json:"ServiceType"`
	Description           string `json:"Description"`
	Weight                string `json:"Weight"`
	SeatsAmount           string `json:"SeatsAmount"`
	Cost                  string `json:"Cost"`
	RecipientCityRef      string `json:"RecipientCityRef"`
	RecipientWarehouseRef string `json:"RecipientWarehouseRef"`
	RecipientAddressName  string `json:"RecipientAddressName"`
	RecipientName         string `json:"RecipientName"`
	RecipientType         string `json:"RecipientType"`
	RecipientsPhone       string `json:"RecipientsPhone"`
}

// InternetDocument is the result of InternetDocument/save.
type InternetDocument struct {
	Ref                   string    `json:"Ref"`
	IntDocNumber          string    `json:"IntDocNumber"`
	CostOnSite            FlexFloat `json:"CostOnSite"`
	EstimatedDeliveryDate string    `json:"EstimatedDeliveryDate"`
	TypeDocument          string    `json:"TypeDocument"`
}

// Messages is a list of API messages. The API sends either an array or an
// object keyed by code, and both decode into a flat list.
type Messages []string

// UnmarshalJSON accepts arrays, objects and null.
func (m *Messages) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*m = list
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, obj[k])
		}
		*m = out
		return nil
	}

	*m = nil
	return nil
}

// FlexFloat decodes numbers sent either as JSON numbers or numeric strings.
type FlexFloat float64

// UnmarshalJSON accepts 50.45, "50.45", "" and null.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

// APIError represents a failed Nova Poshta API call.
type APIError struct {
	StatusCode int      // HTTP status; 0 when the request never got an answer
	Rejected   bool     // the API answered with success=false
	Messages   []string // errors reported by the API
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Rejected:
		if len(e.Messages) == 0 {
			return "request rejected"
		}
		return "request rejected: " + strings.Join(e.Messages, "; ")
	case e.Err != nil:
		return fmt.Sprintf("request failed: %v", e.Err)
	default:
		return fmt.Sprintf("request failed with HTTP %d", e.StatusCode)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}
