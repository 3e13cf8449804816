// Package catalog registers the closed set of supported carriers.
package catalog

import (
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/tournevent/uadirectory/pkg/carrier/novaposhta"
	"github.com/tournevent/uadirectory/pkg/carrier/ukrposhta"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
)

// New returns a registry holding every supported carrier, in display order.
func New(logger *otelzap.Logger, tracer trace.Tracer) *carrier.Registry {
	registry := carrier.NewRegistry()

	registry.MustRegister(carrier.Definition{
		ID:                  novaposhta.ID,
		Label:               novaposhta.Label,
		SupportsDirectories: true,
		New: func(s carrier.Settings) carrier.Provider {
			return novaposhta.New(novaposhta.Config{
				APIKey:   s.APIKey,
				BaseURL:  s.BaseURL,
				PageSize: s.PageSize,
				UseMock:  s.UseMock,
			}, logger, tracer)
		},
	})

	registry.MustRegister(carrier.Definition{
		ID:                  ukrposhta.ID,
		Label:               ukrposhta.Label,
		SupportsDirectories: false,
		New: func(s carrier.Settings) carrier.Provider {
			return ukrposhta.New(ukrposhta.Config{APIKey: s.APIKey}, logger)
		},
	})

	return registry
}
