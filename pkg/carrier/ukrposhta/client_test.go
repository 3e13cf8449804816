package ukrposhta_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/tournevent/uadirectory/pkg/carrier/ukrposhta"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func TestClient_DirectoriesAreEmpty(t *testing.T) {
	client := ukrposhta.New(ukrposhta.Config{APIKey: "key"}, otelzap.New(zap.NewNop()))

	cities := 0
	for _, err := range client.Cities(context.Background()) {
		assert.NoError(t, err)
		cities++
	}
	warehouses := 0
	for _, err := range client.Warehouses(context.Background(), "any") {
		assert.NoError(t, err)
		warehouses++
	}

	assert.Zero(t, cities)
	assert.Zero(t, warehouses)
}

func TestClient_CreateWaybill_Unsupported(t *testing.T) {
	client := ukrposhta.New(ukrposhta.Config{}, otelzap.New(zap.NewNop()))

	waybill, err := client.CreateWaybill(context.Background(), &carrier.ShipmentRequest{OrderRef: "42"})

	assert.Nil(t, waybill)
	assert.ErrorIs(t, err, carrier.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "not available yet")
}
