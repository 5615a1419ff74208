package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	id        string
	kind      Kind
	available bool
}

func (f fakeProvider) ID() string      { return f.id }
func (f fakeProvider) Kind() Kind      { return f.kind }
func (f fakeProvider) IsAvailable() bool { return f.available }

func TestRegistry_DefaultSelection(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeProvider{id: "claid", kind: KindBackgroundRemoval, available: true}, true)

	sel, err := r.Get(KindBackgroundRemoval, "", "")
	require.NoError(t, err)
	assert.Equal(t, "claid", sel.ProviderID)
	assert.Empty(t, sel.ABTestID)
}

func TestRegistry_ExplicitIDWins(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeProvider{id: "claid", kind: KindBackgroundRemoval, available: true}, true)
	r.Register(fakeProvider{id: "remove-bg", kind: KindBackgroundRemoval, available: true}, false)

	sel, err := r.Get(KindBackgroundRemoval, "remove-bg", "")
	require.NoError(t, err)
	assert.Equal(t, "remove-bg", sel.ProviderID)
}

func TestRegistry_UnknownExplicitIDIsFatal(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeProvider{id: "claid", kind: KindBackgroundRemoval, available: true}, true)

	_, err := r.Get(KindBackgroundRemoval, "nope", "")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistry_ABTestDeterministicPerSeed(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeProvider{id: "a", kind: KindClassification, available: true}, true)
	r.Register(fakeProvider{id: "b", kind: KindClassification, available: true}, false)
	require.NoError(t, r.SetABTest(ABTest{ID: "exp1", Kind: KindClassification, VariantA: "a", VariantB: "b", SplitB: 50}))

	sel1, err := r.Get(KindClassification, "", "job-123")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		sel2, err := r.Get(KindClassification, "", "job-123")
		require.NoError(t, err)
		assert.Equal(t, sel1.ProviderID, sel2.ProviderID)
		assert.Equal(t, sel1.Variant, sel2.Variant)
	}
	assert.Equal(t, "exp1", sel1.ABTestID)
}

func TestRegistry_ListFiltersByAvailability(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeProvider{id: "up", kind: KindUpscaler, available: true}, true)
	r.Register(fakeProvider{id: "down", kind: KindUpscaler, available: false}, false)

	all := r.List(KindUpscaler, false)
	assert.Len(t, all, 2)

	avail := r.List(KindUpscaler, true)
	require.Len(t, avail, 1)
	assert.Equal(t, "up", avail[0].ID())
}
