package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("alpha", func(t *Target) Pass { return NewCmdInjectionPass(t) }))
	require.NoError(t, r.Register("beta", func(t *Target) Pass { return NewCmdInjectionPass(t) }))

	ctor, ok := r.Lookup("alpha")
	require.True(t, ok)
	assert.NotNil(t, ctor)

	_, ok = r.Lookup("gamma")
	assert.False(t, ok)

	assert.Equal(t, []string{"alpha", "beta"}, r.Names())
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("alpha", func(t *Target) Pass { return NewCmdInjectionPass(t) }))
	assert.Error(t, r.Register("alpha", func(t *Target) Pass { return NewCmdInjectionPass(t) }))
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	_, ok := r.Lookup(CmdInjectionPassName)
	assert.True(t, ok)
	assert.Equal(t, []string{CmdInjectionPassName}, r.Names())
}
