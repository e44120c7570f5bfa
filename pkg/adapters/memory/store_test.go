package memory_test

import (
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunRunStoreContract(t, store)
}

func TestMemoryLayerStore_Contract(t *testing.T) {
	ports.RunLayerStoreContract(t, func(t *testing.T) ports.LayerStore {
		return memory.NewLayerStore()
	})
}
