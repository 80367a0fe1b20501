package smart

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueSerializesConcurrentCallers(t *testing.T) {
	q := NewQueue()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Do(context.Background(), func(ctx context.Context) (string, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return "ok", nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestQueueDoReturnsFnResult(t *testing.T) {
	q := NewQueue()
	out, err := q.Do(context.Background(), func(ctx context.Context) (string, error) {
		return "result", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "result", out)
}

func TestQueueDoTimesOutWaitingForSlot(t *testing.T) {
	q := NewQueue()
	holderReleased := make(chan struct{})

	go func() {
		_, _ = q.Do(context.Background(), func(ctx context.Context) (string, error) {
			<-holderReleased
			return "", nil
		})
	}()
	time.Sleep(5 * time.Millisecond) // let the goroutine above take the slot first

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Do(ctx, func(ctx context.Context) (string, error) {
		return "should not run", nil
	})
	assert.Error(t, err)

	close(holderReleased)
}
