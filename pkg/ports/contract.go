package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunLayerStoreContract runs a suite of tests to verify that a LayerStore
// implementation adheres to the defined interface contract. newStore must
// return an empty store; the suite closes it.
func RunLayerStoreContract(t *testing.T, newStore func(t *testing.T) LayerStore) {
	ctx := context.Background()
	shift := domain.Translation{Select: domain.SelectAll(), Vector: domain.Vec3{1, 0, 0}}

	open := func(t *testing.T) LayerStore {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("Append and Get", func(t *testing.T) {
		store := open(t)
		fill := domain.Fill{Structure: domain.Structure{
			Title: "water",
			Atoms: []domain.Atom{{Element: 8}, {Element: 1, Position: domain.Vec3{0.96, 0, 0}}},
		}}
		root, err := store.Append(ctx, domain.NoLayer, fill)
		require.NoError(t, err)
		assert.NotEqual(t, domain.NoLayer, root)

		child, err := store.Append(ctx, root, shift)
		require.NoError(t, err)

		layer, err := store.Get(ctx, child)
		require.NoError(t, err)
		assert.Equal(t, child, layer.ID)
		assert.Equal(t, root, layer.Parent)
		assert.Equal(t, shift, layer.Operation)

		layer, err = store.Get(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, domain.NoLayer, layer.Parent)
		assert.Equal(t, fill, layer.Operation)
	})

	t.Run("Ids Are Monotonic", func(t *testing.T) {
		store := open(t)
		prev := domain.NoLayer
		for i := 0; i < 5; i++ {
			id, err := store.Append(ctx, prev, shift)
			require.NoError(t, err)
			assert.Greater(t, id, prev)
			prev = id
		}
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("Unknown Parent", func(t *testing.T) {
		store := open(t)
		_, err := store.Append(ctx, domain.LayerID(9999), shift)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "a rejected append must not be visible")
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		store := open(t)
		_, err := store.Get(ctx, domain.LayerID(42))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Children And Chain", func(t *testing.T) {
		store := open(t)
		root, err := store.Append(ctx, domain.NoLayer, shift)
		require.NoError(t, err)
		a, err := store.Append(ctx, root, shift)
		require.NoError(t, err)
		b, err := store.Append(ctx, root, shift)
		require.NoError(t, err)
		a2, err := store.Append(ctx, a, shift)
		require.NoError(t, err)

		kids, err := store.Children(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, []domain.LayerID{a, b}, kids)

		roots, err := store.Children(ctx, domain.NoLayer)
		require.NoError(t, err)
		assert.Equal(t, []domain.LayerID{root}, roots)

		leaf, err := store.Children(ctx, a2)
		require.NoError(t, err)
		assert.Empty(t, leaf)

		_, err = store.Children(ctx, domain.LayerID(777))
		assert.ErrorIs(t, err, domain.ErrNotFound)

		chain, err := store.Chain(ctx, a2)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, root, chain[0].ID)
		assert.Equal(t, a, chain[1].ID)
		assert.Equal(t, a2, chain[2].ID)

		// siblings share the stored ancestor rather than a copy
		chainB, err := store.Chain(ctx, b)
		require.NoError(t, err)
		require.Len(t, chainB, 2)
		assert.Equal(t, chain[0].ID, chainB[0].ID)

		_, err = store.Chain(ctx, domain.LayerID(777))
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.Chain(ctx, domain.NoLayer)
		assert.ErrorIs(t, err, domain.ErrNotFound, "NoLayer has no chain")
	})

	t.Run("Concurrent Appends", func(t *testing.T) {
		store := open(t)
		root, err := store.Append(ctx, domain.NoLayer, shift)
		require.NoError(t, err)

		const workers = 8
		ids := make(chan domain.LayerID, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := store.Append(ctx, root, shift)
				assert.NoError(t, err)
				ids <- id
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[domain.LayerID]bool{}
		for id := range ids {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		kids, err := store.Children(ctx, root)
		require.NoError(t, err)
		assert.Len(t, kids, workers)
	})
}

// RunRunStoreContract runs a suite of tests to verify that a RunStore
// implementation adheres to the defined interface contract.
func RunRunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-test-run-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewRunState(runID)
		state.Status = domain.StatusRunning
		state.Step = 3
		state.Tips[domain.DefaultModel] = 7
		state.Tips["methyl"] = 9
		state.Checkpoints["base"] = domain.Checkpoint{Name: "base", Layer: 1, Model: domain.DefaultModel}

		err := store.Save(ctx, runID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Status, loaded.Status)
		assert.Equal(t, 3, loaded.Step)
		assert.Equal(t, state.Tips, loaded.Tips)
		assert.Equal(t, domain.LayerID(1), loaded.Checkpoints["base"].Layer)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, runID, domain.NewRunState(runID))
		require.NoError(t, err)

		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, id1, domain.NewRunState(id1))
		_ = store.Save(ctx, id2, domain.NewRunState(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
