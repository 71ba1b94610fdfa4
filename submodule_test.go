package modrun

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/modrunerr"
)

func TestSubmoduleRequestNotReadyWithoutBinding(t *testing.T) {
	req := NewSubmoduleRequest(areaPropertyType)
	assert.False(t, req.Ready())
	assert.Nil(t, req.Bound())
	assert.Equal(t, areaPropertyType, req.PropertyType())
}

func TestSubmoduleRequestReadyRequiresSatisfactionAndReadiness(t *testing.T) {
	mm := NewModuleManager()
	rect := newRectModule(t, mm, "rect")

	req := NewSubmoduleRequest(areaPropertyType)
	req.Change(rect)
	assert.True(t, req.Ready(), "rect's unset length/width are supplied through test.Area's inputs")

	require.NoError(t, rect.ChangeInput("length", anyfield.NewOwned(1.0)))
	require.NoError(t, rect.ChangeInput("width", anyfield.NewOwned(2.0)))
	assert.True(t, req.Ready())
}

func TestSubmoduleRequestReadyFalseWhenUnsatisfied(t *testing.T) {
	mm := NewModuleManager()
	prism, err := mm.AddModuleBase("prism", "test.prism", prismModule{})
	require.NoError(t, err)

	req := NewSubmoduleRequest(areaPropertyType)
	req.Change(prism)
	assert.False(t, req.Ready(), "prism does not satisfy test.Area")
}

func TestSubmoduleRequestRunAsWithoutBindingFails(t *testing.T) {
	req := NewSubmoduleRequest(areaPropertyType)
	_, err := req.RunAs(Context{Context: context.Background()}, areaPropertyType, 1.0, 2.0)
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.NotReady))
}

func TestSubmoduleRequestCloneIsIndependent(t *testing.T) {
	mm := NewModuleManager()
	rect := newRectModule(t, mm, "rect")
	req := NewSubmoduleRequest(areaPropertyType)
	req.Change(rect)

	cp := req.Clone()
	cp.Change(nil)
	assert.NotNil(t, req.Bound(), "cloning must not mutate the source request")
	assert.Nil(t, cp.Bound())
}

func TestSubmoduleMapCloneIsIndependent(t *testing.T) {
	mm := NewModuleManager()
	rect := newRectModule(t, mm, "rect")
	m := SubmoduleMap{"shape": NewSubmoduleRequest(areaPropertyType)}
	m["shape"].Change(rect)

	cp := m.Clone()
	cp["shape"].Change(nil)
	assert.NotNil(t, m["shape"].Bound())
	assert.Nil(t, cp["shape"].Bound())
}
