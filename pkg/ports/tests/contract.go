package tests

import (
	"context"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SourceLoaderContractTest is a reusable test suite that verifies if an adapter
// complies with ports.SourceLoader. files maps top-level refs to their content
// and must include "fragments/a.yaml" and "fragments/b.yaml".
func SourceLoaderContractTest(t *testing.T, loader ports.SourceLoader, files map[string][]byte) {
	t.Helper()
	ctx := context.Background()

	t.Run("Read_Success", func(t *testing.T) {
		for ref, want := range files {
			got, name, err := loader.Read(ctx, ref, "")
			require.NoError(t, err, "reading %s", ref)
			assert.Equal(t, string(want), string(got))
			assert.NotEmpty(t, name)
		}
	})

	t.Run("Read_Relative", func(t *testing.T) {
		_, from, err := loader.Read(ctx, "fragments/a.yaml", "")
		require.NoError(t, err)

		got, _, err := loader.Read(ctx, "b.yaml", from)
		require.NoError(t, err)
		assert.Equal(t, string(files["fragments/b.yaml"]), string(got))
	})

	t.Run("Read_NotFound", func(t *testing.T) {
		_, _, err := loader.Read(ctx, "non-existent.yaml", "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Glob", func(t *testing.T) {
		names, err := loader.Glob(ctx, "fragments/*.yaml", "")
		require.NoError(t, err)
		require.Len(t, names, 2)
		assert.Less(t, names[0], names[1], "glob results must be sorted")

		none, err := loader.Glob(ctx, "fragments/*.xyz", "")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
