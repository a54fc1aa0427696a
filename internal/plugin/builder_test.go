package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderProducesIndependentDescriptorsPerBranch(t *testing.T) {
	base := NewBuilder("chat").WithEvent(EventDef{Type: "msg"})

	withExtra := base.WithEvent(EventDef{Type: "typing"})

	a, err := base.Build()
	require.NoError(t, err)
	b, err := withExtra.Build()
	require.NoError(t, err)

	require.Len(t, a.Events, 1)
	require.Len(t, b.Events, 2)
}

func TestBuildRejectsBlankName(t *testing.T) {
	_, err := NewBuilder("").Build()
	require.Error(t, err)
}

func TestWithDependencyStoresFullDescriptor(t *testing.T) {
	dep, err := NewBuilder("auth").Build()
	require.NoError(t, err)

	d, err := NewBuilder("chat").WithDependency("auth", dep).Build()
	require.NoError(t, err)
	require.Same(t, dep, d.Dependencies["auth"])
}
