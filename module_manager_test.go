package modrun

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/modrunerr"
)

func TestAddModuleUsesRegistry(t *testing.T) {
	mm := NewModuleManager()
	m, err := mm.AddModule("rect", "test.rectangle.registered")
	require.NoError(t, err)
	assert.True(t, m.Satisfies("test.Area"))
	assert.Equal(t, 1, mm.Count("rect"))
}

func TestAddModuleDuplicateKeyFails(t *testing.T) {
	mm := NewModuleManager()
	_, err := mm.AddModule("rect", "test.rectangle.registered")
	require.NoError(t, err)
	_, err = mm.AddModule("rect", "test.rectangle.registered")
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.DuplicateKey))
}

func TestAddModuleUnknownTypeFails(t *testing.T) {
	mm := NewModuleManager()
	_, err := mm.AddModule("rect", "nope")
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.MissingKey))
}

func TestCopyModuleIsIndependent(t *testing.T) {
	mm := NewModuleManager()
	m := newRectModule(t, mm, "rect")
	require.NoError(t, m.ChangeInput("length", anyfield.NewOwned(2.0)))
	require.NoError(t, m.ChangeInput("width", anyfield.NewOwned(3.0)))

	cp, err := mm.CopyModule("rect", "rect2")
	require.NoError(t, err)
	assert.Equal(t, 1, mm.Count("rect2"))
	assert.NotEqual(t, m.UUID(), cp.UUID())

	require.NoError(t, cp.ChangeInput("length", anyfield.NewOwned(99.0)))
	v, err := field.Value[float64](m.Inputs()["length"])
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestCopyModuleRejectsDuplicateDst(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")
	newRectModule(t, mm, "rect2")
	_, err := mm.CopyModule("rect", "rect2")
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.DuplicateKey))
}

func TestCopyModuleMissingSrcFails(t *testing.T) {
	mm := NewModuleManager()
	_, err := mm.CopyModule("nope", "dst")
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.MissingKey))
}

func TestRenameModuleUpdatesKeyAndDefaults(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")
	require.NoError(t, mm.SetDefault(areaPropertyType, "rect", nil))

	require.NoError(t, mm.RenameModule("rect", "renamed"))
	assert.Equal(t, 0, mm.Count("rect"))
	assert.Equal(t, 1, mm.Count("renamed"))
	assert.Equal(t, "renamed", mm.defaults[areaPropertyType.Name()].key)

	prism, err := mm.AddModuleBase("prism", "test.prism", prismModule{})
	require.NoError(t, err)
	require.NoError(t, prism.ChangeInput("height", anyfield.NewOwned(7.89)))
	// default-supplied length/width must still resolve to the renamed key
	lenIn := field.NewInput()
	require.NoError(t, field.SetType[float64](lenIn))
	require.NoError(t, field.Change(lenIn, anyfield.NewOwned(1.23)))
	widIn := field.NewInput()
	require.NoError(t, field.SetType[float64](widIn))
	require.NoError(t, field.Change(widIn, anyfield.NewOwned(4.56)))
	require.NoError(t, mm.SetDefault(areaPropertyType, "renamed", field.InputMap{"length": lenIn, "width": widIn}))

	got, err := mm.At("prism")
	require.NoError(t, err)
	assert.NotNil(t, got.Submods()["shape"].Bound())
}

func TestRenameModuleMissingSrcFails(t *testing.T) {
	mm := NewModuleManager()
	err := mm.RenameModule("nope", "x")
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.MissingKey))
}

func TestEraseRemovesModule(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")
	mm.Erase("rect")
	assert.Equal(t, 0, mm.Count("rect"))
}

func TestManagerChangeSubmodByKey(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")
	prism, err := mm.AddModuleBase("prism", "test.prism", prismModule{})
	require.NoError(t, err)

	require.NoError(t, mm.ChangeSubmod("prism", "shape", "rect"))
	assert.NotNil(t, prism.Submods()["shape"].Bound())
}

func TestManagerChangeSubmodMissingKeysFail(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")
	err := mm.ChangeSubmod("nope", "shape", "rect")
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.MissingKey))
}

// TestAtAutoWiresDefault is spec.md §8 property 9: an unbound submodule
// request whose property type has a registered default resolves to it.
func TestAtAutoWiresDefault(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")
	prism, err := mm.AddModuleBase("prism", "test.prism", prismModule{})
	require.NoError(t, err)
	require.NoError(t, prism.ChangeInput("height", anyfield.NewOwned(7.89)))
	require.NoError(t, prism.ChangeInput("length", anyfield.NewOwned(1.23)))
	require.NoError(t, prism.ChangeInput("width", anyfield.NewOwned(4.56)))

	lenIn := field.NewInput()
	require.NoError(t, field.SetType[float64](lenIn))
	require.NoError(t, field.Change(lenIn, anyfield.NewOwned(1.23)))
	widIn := field.NewInput()
	require.NoError(t, field.SetType[float64](widIn))
	require.NoError(t, field.Change(widIn, anyfield.NewOwned(4.56)))
	require.NoError(t, mm.SetDefault(areaPropertyType, "rect", field.InputMap{"length": lenIn, "width": widIn}))

	got, err := mm.At("prism")
	require.NoError(t, err)
	bound := got.Submods()["shape"].Bound()
	require.NotNil(t, bound)
	assert.Equal(t, "rect", bound.key)
	assert.True(t, prism.Ready())
}

func TestAtLeavesUnreadyDefaultCandidateUnbound(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect") // length/width never set: default candidate never ready
	prism, err := mm.AddModuleBase("prism", "test.prism", prismModule{})
	require.NoError(t, err)
	require.NoError(t, mm.SetDefault(areaPropertyType, "rect", nil))

	got, err := mm.At("prism")
	require.NoError(t, err)
	assert.Nil(t, got.Submods()["shape"].Bound())
}

func TestAtWithoutDefaultLeavesSlotUnbound(t *testing.T) {
	mm := NewModuleManager()
	prism, err := mm.AddModuleBase("prism", "test.prism", prismModule{})
	require.NoError(t, err)
	got, err := mm.At("prism")
	require.NoError(t, err)
	assert.Same(t, prism, got)
	assert.Nil(t, got.Submods()["shape"].Bound())
}

func TestAtMissingKeyFails(t *testing.T) {
	mm := NewModuleManager()
	_, err := mm.At("nope")
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.MissingKey))
}

// TestAtDetectsCycle is spec.md §9's "cyclic submodule graphs": a module
// whose unbound submodule's default candidate is itself must fail rather
// than recurse forever.
func TestAtDetectsCycle(t *testing.T) {
	mm := NewModuleManager()
	prism, err := mm.AddModuleBase("prism", "test.prism", prismModule{})
	require.NoError(t, err)
	require.NoError(t, mm.SetDefault(areaPropertyType, "prism", nil))
	_ = prism

	_, err = mm.At("prism")
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.CycleDetected))
}

func TestAtIsConcurrencySafeAndDeduplicated(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")

	var wg sync.WaitGroup
	results := make([]*Module, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := mm.At("rect")
			require.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestDescribeIncludesKey(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")
	out, err := mm.Describe("rect")
	require.NoError(t, err)
	assert.Contains(t, out, "rect")
}

// TestRunAsTyped exercises the ModuleManager-level generic convenience
// wrappers end to end.
func TestRunAsTyped(t *testing.T) {
	mm := NewModuleManager()
	newRectModule(t, mm, "rect")
	area, err := RunAs1[float64](mm, context.Background(), "rect", areaPropertyType, 1.23, 4.56)
	require.NoError(t, err)
	assert.InDelta(t, 5.6088, area, 1e-9)
}

func TestRunAs2Typed(t *testing.T) {
	mm := NewModuleManager()
	shape := newRectModule(t, mm, "rect")
	prism, err := mm.AddModuleBase("prism", "test.prism", prismModule{})
	require.NoError(t, err)
	require.NoError(t, prism.ChangeSubmod("shape", shape))

	volume, area, err := RunAs2[float64, float64](mm, context.Background(), "prism", prismVolumePropertyType, 7.89, 1.23, 4.56)
	require.NoError(t, err)
	assert.InDelta(t, 44.253432, volume, 1e-6)
	assert.InDelta(t, 5.6088, area, 1e-9)
}

func TestRuntimeHandlePropagatesToContext(t *testing.T) {
	mm := NewModuleManager()
	mm.SetRuntime("parallel-runtime-handle")
	assert.Equal(t, "parallel-runtime-handle", mm.Runtime())
}
