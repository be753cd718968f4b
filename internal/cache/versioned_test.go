package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsiScanner/internal/domain"
)

func TestVersioned_EmptyBeforeFirstPublish(t *testing.T) {
	c := New()
	snap := c.Snapshot()

	assert.False(t, snap.Ready())
	assert.Nil(t, snap.LastUpdate)
	assert.NotNil(t, snap.Overbought)
	assert.NotNil(t, snap.Oversold)
	assert.Empty(t, snap.Overbought)
	assert.Empty(t, snap.Oversold)
	assert.Equal(t, uint64(0), snap.Version)
}

func TestVersioned_PublishIncrementsByOne(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New(WithClock(func() time.Time { return fixed }))

	for i := 1; i <= 5; i++ {
		snap := c.Publish([]domain.ResultRow{{Symbol: "BTCUSDT", RSI: 70}}, nil)
		assert.Equal(t, uint64(i), snap.Version)
		assert.Equal(t, uint64(i), c.Version())
	}

	snap := c.Snapshot()
	require.True(t, snap.Ready())
	assert.Equal(t, fixed, *snap.LastUpdate)
	assert.Len(t, snap.Overbought, 1)
	assert.Empty(t, snap.Oversold)
}

func TestVersioned_PublishCopiesInput(t *testing.T) {
	c := New()
	rows := []domain.ResultRow{{Symbol: "ETHUSDT", RSI: 80}}
	c.Publish(rows, nil)

	rows[0].Symbol = "MUTATED"
	assert.Equal(t, "ETHUSDT", c.Snapshot().Overbought[0].Symbol)
}

// Each publish tags both buckets with the same generation; a reader must never see two generations at once.
func TestVersioned_ConcurrentReadsAreConsistent(t *testing.T) {
	c := New()
	const publishes = 2000

	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := c.Snapshot()
				if snap.Version == 0 {
					continue
				}
				tag := fmt.Sprintf("gen-%d", snap.Version)
				if assert.Len(t, snap.Overbought, 1) && assert.Len(t, snap.Oversold, 1) {
					assert.Equal(t, tag, snap.Overbought[0].Symbol)
					assert.Equal(t, tag, snap.Oversold[0].Symbol)
				}
			}
		}()
	}

	for i := 1; i <= publishes; i++ {
		tag := fmt.Sprintf("gen-%d", i)
		c.Publish([]domain.ResultRow{{Symbol: tag}}, []domain.ResultRow{{Symbol: tag}})
	}
	close(done)
	wg.Wait()

	assert.Equal(t, uint64(publishes), c.Version())
}
