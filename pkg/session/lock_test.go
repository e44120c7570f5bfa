package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopStore struct{}

func (nopStore) Save(ctx context.Context, runID string, state *domain.RunState) error { return nil }
func (nopStore) Load(ctx context.Context, runID string) (*domain.RunState, error) {
	return nil, domain.ErrRunNotFound
}
func (nopStore) Delete(ctx context.Context, runID string) error { return nil }
func (nopStore) List(ctx context.Context) ([]string, error)     { return nil, nil }

func TestManager_LocksAreDropped(t *testing.T) {
	mgr := NewManager(nopStore{})
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		rid := fmt.Sprintf("run-%d", i)
		require.NoError(t, mgr.Save(ctx, rid, domain.NewRunState(rid)))
		require.NoError(t, mgr.Delete(ctx, rid))
	}
	assert.Empty(t, mgr.locks)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mgr.WithLock(ctx, "shared", func(context.Context) error { return nil }))
		}()
	}
	wg.Wait()
	assert.Empty(t, mgr.locks, "the last waiter drops the shared lock")
}
