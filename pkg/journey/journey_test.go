package journey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: checkout-flow
company: Acme
domain: retail
industry: e-commerce
thinkTime: 250ms
errorSimulation: true
steps:
  - name: ProductDiscovery
    description: Browse the catalog
    category: browse
    substeps:
      - name: load catalog
        duration: 2
      - name: render grid
        duration: 1
  - name: Checkout Process
    service: CheckoutProcessor
    metadata:
      essential: true
      error_rate: 0.05
`

func TestParse(t *testing.T) {
	j, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "checkout-flow", j.Name)
	assert.Equal(t, "Acme", j.Company)
	assert.Equal(t, 250*time.Millisecond, j.ThinkTime.Std())
	assert.True(t, j.ErrorSimulation)
	require.Len(t, j.Steps, 2)

	first := j.Steps[0]
	assert.Equal(t, "ProductDiscovery", first.Name)
	assert.Equal(t, "browse", first.Category)
	require.Len(t, first.Substeps, 2)
	assert.Equal(t, "load catalog", first.Substeps[0].Name)
	assert.Equal(t, 2, first.Substeps[0].Duration)

	second := j.Steps[1]
	assert.Equal(t, "CheckoutProcessor", second.Service)
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no name", "company: Acme\nsteps:\n  - name: a\n"},
		{"no company", "name: j\nsteps:\n  - name: a\n"},
		{"no steps", "name: j\ncompany: Acme\n"},
		{"unnamed step", "name: j\ncompany: Acme\nsteps:\n  - description: x\n"},
		{"undecodable metadata", "name: j\ncompany: Acme\nsteps:\n  - name: a\n    metadata:\n      essential: sometimes\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDescriptor(t *testing.T) {
	j, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	desc := j.Descriptor(j.Steps[0])
	assert.Equal(t, "ProductDiscovery", desc.StepName)
	assert.Equal(t, "Acme", desc.Context.Company)
	assert.Equal(t, "retail", desc.Context.Domain)
	assert.Equal(t, "ProductDiscoveryService", desc.CanonicalName())
	assert.False(t, desc.Essential)

	desc = j.Descriptor(j.Steps[1])
	assert.Equal(t, "CheckoutProcessor", desc.CanonicalName())
	assert.True(t, desc.Essential, "essential metadata must reach the descriptor")
}

func TestDecodeSettings(t *testing.T) {
	t.Run("recognized keys", func(t *testing.T) {
		s, err := DecodeSettings(map[string]any{
			"essential":  true,
			"error_rate": 0.05,
		})
		require.NoError(t, err)
		assert.True(t, s.Essential)
		assert.Equal(t, 0.05, s.ErrorRate)
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		s, err := DecodeSettings(map[string]any{
			"essential":     true,
			"vendor_custom": "anything",
		})
		require.NoError(t, err)
		assert.True(t, s.Essential)
	})

	t.Run("empty metadata", func(t *testing.T) {
		s, err := DecodeSettings(nil)
		require.NoError(t, err)
		assert.False(t, s.Essential)
	})
}
