package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeGUID(t *testing.T) {
	g := MakeGUID(TypeCreature, 42)

	assert.Equal(t, TypeCreature, g.Type())
	assert.Equal(t, uint64(42), g.Counter())
	assert.False(t, g.IsEmpty())
	assert.Equal(t, "creature-42", g.String())
	assert.True(t, GUID(0).IsEmpty())
}

func TestMakeGUID_CounterMasked(t *testing.T) {
	g := MakeGUID(TypePlayer, 1<<60|7)

	assert.Equal(t, TypePlayer, g.Type())
	assert.Equal(t, uint64(7), g.Counter())
}

func TestGUIDGenerator_Concurrent(t *testing.T) {
	gen := NewGUIDGenerator()

	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[GUID]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]GUID, 0, perWorker)
			for range perWorker {
				local = append(local, gen.Next(TypeGameObject))
			}
			mu.Lock()
			for _, g := range local {
				seen[g] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
	for g := range seen {
		assert.Equal(t, TypeGameObject, g.Type())
	}
}
