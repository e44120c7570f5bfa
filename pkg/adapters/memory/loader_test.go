package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	contract "github.com/aretw0/strata/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLoader_Contract(t *testing.T) {
	data := map[string]string{
		"workflow.yaml":    "steps: []",
		"fragments/a.yaml": "title: a",
		"fragments/b.yaml": "title: b",
	}

	bytesData := make(map[string][]byte)
	for k, v := range data {
		bytesData[k] = []byte(v)
	}

	contract.SourceLoaderContractTest(t, memory.NewLoader(data), bytesData)
}

func TestSink_PutCopiesData(t *testing.T) {
	sink := memory.NewSink()
	data := []byte(`{"title":"x"}`)
	require.NoError(t, sink.Put(context.Background(), "x.json", data, "application/json"))

	data[0] = '!'
	got, ok := sink.Get("x.json")
	require.True(t, ok)
	assert.Equal(t, `{"title":"x"}`, string(got))
	assert.Equal(t, []string{"x.json"}, sink.Keys())
}
