package carrier_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/tournevent/uadirectory/pkg/carrier/mock"
)

func mockDefinition(id, label string, directories bool) carrier.Definition {
	return carrier.Definition{
		ID:                  id,
		Label:               label,
		SupportsDirectories: directories,
		New: func(carrier.Settings) carrier.Provider {
			return mock.New(id).WithLabel(label)
		},
	}
}

func newTestRegistry(t *testing.T) *carrier.Registry {
	t.Helper()
	registry := carrier.NewRegistry()
	require.NoError(t, registry.Register(mockDefinition("nova_poshta", "Nova Poshta", true)))
	require.NoError(t, registry.Register(mockDefinition("ukrposhta", "Ukrposhta", false)))
	return registry
}

func TestRegistry_Carriers_RegistrationOrder(t *testing.T) {
	registry := newTestRegistry(t)

	carriers := registry.Carriers()
	require.Len(t, carriers, 2)
	assert.Equal(t, carrier.Info{ID: "nova_poshta", Label: "Nova Poshta", SupportsDirectories: true}, carriers[0])
	assert.Equal(t, carrier.Info{ID: "ukrposhta", Label: "Ukrposhta", SupportsDirectories: false}, carriers[1])
	assert.Equal(t, []string{"nova_poshta", "ukrposhta"}, registry.Names())
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	registry := newTestRegistry(t)

	err := registry.Register(mockDefinition("nova_poshta", "Again", true))
	assert.Error(t, err)
	assert.Equal(t, 2, registry.Count())
	assert.Equal(t, "Nova Poshta", registry.Label("nova_poshta"))
}

func TestRegistry_Register_Invalid(t *testing.T) {
	registry := carrier.NewRegistry()

	assert.Error(t, registry.Register(mockDefinition("  ", "Blank", true)))
	assert.Error(t, registry.Register(carrier.Definition{ID: "no_ctor"}))
	assert.Zero(t, registry.Count())
}

func TestRegistry_Label(t *testing.T) {
	registry := newTestRegistry(t)

	assert.Equal(t, "Nova Poshta", registry.Label("nova_poshta"))
	assert.Equal(t, "Ukrposhta", registry.Label("ukrposhta"))
	assert.Equal(t, "meest", registry.Label("meest"), "unknown ids label as themselves")
}

func TestRegistry_SupportsDirectories(t *testing.T) {
	registry := newTestRegistry(t)

	assert.True(t, registry.SupportsDirectories("nova_poshta"))
	assert.False(t, registry.SupportsDirectories("ukrposhta"))
	assert.False(t, registry.SupportsDirectories("meest"))
}

func TestRegistry_Create(t *testing.T) {
	registry := newTestRegistry(t)

	p, err := registry.Create("nova_poshta", carrier.Settings{})
	require.NoError(t, err, "missing credentials must not fail construction")
	assert.Equal(t, "nova_poshta", p.Name())

	_, err = registry.Create("meest", carrier.Settings{})
	assert.True(t, errors.Is(err, carrier.ErrUnknownCarrier))
}

func TestRegistry_MustRegister_Panics(t *testing.T) {
	registry := newTestRegistry(t)

	assert.Panics(t, func() {
		registry.MustRegister(mockDefinition("ukrposhta", "Dup", false))
	})
}

func TestFactory_Provider(t *testing.T) {
	registry := newTestRegistry(t)
	factory := carrier.NewFactory(registry, map[string]carrier.Settings{
		"nova_poshta": {Enabled: true},
		"ukrposhta":   {Enabled: false},
	})

	p, err := factory.Provider("nova_poshta")
	require.NoError(t, err)
	assert.Equal(t, "Nova Poshta", p.Label())

	again, err := factory.Provider("nova_poshta")
	require.NoError(t, err)
	assert.Same(t, p, again)

	_, err = factory.Provider("ukrposhta")
	assert.ErrorIs(t, err, carrier.ErrCarrierDisabled)

	_, err = factory.Provider("meest")
	assert.ErrorIs(t, err, carrier.ErrUnknownCarrier)

	assert.Equal(t, []string{"nova_poshta"}, factory.Enabled())
}
