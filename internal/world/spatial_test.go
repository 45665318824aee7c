package world

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldcore/internal/model"
)

func gameObject(n uint64, x float32) *Object {
	return NewObject(model.MakeGUID(model.TypeGameObject, n), 9, model.Position{X: x, Y: 0})
}

func TestSpatialIndex_QueryAfterInsertWithoutTick(t *testing.T) {
	var s spatialIndex
	s.init()
	s.insert(gameObject(1, 50))
	s.insert(gameObject(2, -50))
	s.insert(gameObject(3, 0))

	assert.Equal(t, []model.GUID{model.MakeGUID(model.TypeGameObject, 3)}, s.query(model.Position{}, 5))
	assert.Len(t, s.query(model.Position{}, 60), 3)
}

func TestSpatialIndex_ConcurrentInsertDuringQuery(t *testing.T) {
	var s spatialIndex
	s.init()
	target := gameObject(1, 0)
	s.insert(target)

	const writes = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range writes {
			// every new entry sorts before the target
			s.insert(gameObject(uint64(i+2), -1000-float32(i)))
		}
	}()

	for range writes {
		got := s.query(model.Position{}, 1)
		require.Equal(t, []model.GUID{target.GUID()}, got)
	}
	wg.Wait()
}
