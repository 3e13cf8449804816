package graphql

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tournevent/uadirectory/internal/lookup"
	"github.com/tournevent/uadirectory/internal/waybill"
	"github.com/vektah/gqlparser/v2/ast"
)

// ErrTransient is the only detail clients get about internal failures.
var ErrTransient = errors.New("temporarily unavailable, please try again")

// PublicError reduces a lookup error to what may be shown to a client.
func PublicError(err error) error {
	if errors.Is(err, lookup.ErrInvalidCarrier) {
		return lookup.ErrInvalidCarrier
	}
	return lookup.ErrUnavailable
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func floatArg(args map[string]any, name string) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func waybillInput(args map[string]any) waybill.Request {
	in, _ := args["input"].(map[string]any)
	return waybill.Request{
		Carrier:               stringArg(in, "carrier"),
		OrderRef:              stringArg(in, "orderRef"),
		Weight:                floatArg(in, "weight"),
		DeclaredValue:         floatArg(in, "declaredValue"),
		RecipientName:         stringArg(in, "recipientName"),
		RecipientPhone:        stringArg(in, "recipientPhone"),
		RecipientCityRef:      stringArg(in, "recipientCityRef"),
		RecipientWarehouseRef: stringArg(in, "recipientWarehouseRef"),
		RecipientAddressLabel: stringArg(in, "recipientAddressLabel"),
		Description:           stringArg(in, "description"),
	}
}

// project reduces a resolved value to the selected fields, keyed by alias.
// Values are read through their JSON form, so struct tags name the fields.
func project(value any, set ast.SelectionSet) (any, error) {
	if len(set) == 0 {
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return selectFields(generic, set), nil
}

func selectFields(value any, set ast.SelectionSet) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = selectFields(v[i], set)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(set))
		for _, f := range collectFields(set) {
			if f.Name == "__typename" {
				out[f.Alias] = f.ObjectDefinition.Name
				continue
			}
			out[f.Alias] = selectFields(v[f.Name], f.SelectionSet)
		}
		return out
	default:
		return value
	}
}

// collectFields flattens fragments into the fields they select.
func collectFields(set ast.SelectionSet) []*ast.Field {
	var fields []*ast.Field
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.InlineFragment:
			fields = append(fields, collectFields(s.SelectionSet)...)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				fields = append(fields, collectFields(s.Definition.SelectionSet)...)
			}
		}
	}
	return fields
}
