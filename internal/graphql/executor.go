package graphql

import (
	"context"
	"errors"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response body.
type Response struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors gqlerror.List  `json:"errors,omitempty"`
}

var errIntrospection = errors.New("introspection is not supported")

// Execute validates the query against the schema and resolves its root
// fields in document order. Field failures are reported per field; the
// other fields still resolve.
func (r *Resolver) Execute(ctx context.Context, req Request) *Response {
	doc, errs := gqlparser.LoadQuery(r.schema, req.Query)
	if len(errs) > 0 {
		return &Response{Errors: errs}
	}
	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return &Response{Errors: gqlerror.List{gqlerror.Errorf("operation %q not found", req.OperationName)}}
	}
	vars, err := validator.VariableValues(r.schema, op, req.Variables)
	if err != nil {
		return &Response{Errors: gqlerror.List{{Message: err.Error()}}}
	}

	resp := &Response{Data: make(map[string]any)}
	for _, field := range collectFields(op.SelectionSet) {
		start := time.Now()
		value, err := r.resolveField(ctx, op.Operation, field, vars)
		if err == nil {
			value, err = project(value, field.SelectionSet)
		}
		status := "success"
		if err != nil {
			status = "error"
			resp.Data[field.Alias] = nil
			resp.Errors = append(resp.Errors, &gqlerror.Error{
				Message: err.Error(),
				Path:    ast.Path{ast.PathName(field.Alias)},
			})
		} else {
			resp.Data[field.Alias] = value
		}
		if r.Metrics != nil {
			r.Metrics.RecordRequest("graphql."+field.Name, "all", status, time.Since(start).Seconds())
		}
	}
	return resp
}

func (r *Resolver) resolveField(ctx context.Context, op ast.Operation, field *ast.Field, vars map[string]any) (any, error) {
	switch field.Name {
	case "__schema", "__type":
		return nil, errIntrospection
	case "__typename":
		return field.ObjectDefinition.Name, nil
	}
	args := field.ArgumentMap(vars)

	if op == ast.Mutation {
		m := r.Mutation()
		switch field.Name {
		case "createWaybill":
			return m.CreateWaybill(ctx, waybillInput(args))
		case "triggerSync":
			return m.TriggerSync(ctx, stringArg(args, "carrier"))
		}
		return nil, gqlerror.Errorf("unknown mutation field %q", field.Name)
	}

	q := r.Query()
	switch field.Name {
	case "health":
		return q.Health(ctx)
	case "carriers":
		return q.Carriers(ctx)
	case "cities":
		return q.Cities(ctx, stringArg(args, "carrier"), stringArg(args, "term"))
	case "warehouses":
		return q.Warehouses(ctx, stringArg(args, "carrier"), stringArg(args, "cityRef"), stringArg(args, "term"))
	case "syncStatus":
		return q.SyncStatus(ctx)
	case "waybill":
		return q.Waybill(ctx, stringArg(args, "orderRef"))
	}
	return nil, gqlerror.Errorf("unknown query field %q", field.Name)
}
