package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRejectsInvalidWorkerID(t *testing.T) {
	assert.Error(t, Init(-1))
	assert.Error(t, Init(maxWorkerID+1))
}

func TestGenerateUniqueUnderConcurrency(t *testing.T) {
	s := &Snowflake{workerID: 7}

	const goroutines, perG = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]struct{}, goroutines*perG)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				id := s.Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perG)
}

func TestGenerateIsIncreasing(t *testing.T) {
	s := &Snowflake{workerID: 1}
	prev := s.Generate()
	for i := 0; i < 1000; i++ {
		next := s.Generate()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestGenerateEventNo(t *testing.T) {
	no := GenerateEventNo()
	assert.True(t, strings.HasPrefix(no, "EVT"))
	assert.Len(t, no, 3+14+8)
	assert.NotEqual(t, no, GenerateEventNo())
}

func TestGenerateLockToken(t *testing.T) {
	token := GenerateLockToken()
	assert.True(t, strings.HasPrefix(token, "LCK"))
	assert.NotEqual(t, token, GenerateLockToken())
}
