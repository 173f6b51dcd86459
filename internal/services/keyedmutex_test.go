package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joshua-takyi/gatherly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var counter, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Acquire(context.Background(), "k")
			assert.NoError(t, err)
			defer release()

			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max, "two holders shared the same key's scope")
	assert.Equal(t, 0, km.Len(), "entries must be reclaimed once released")
}

func TestKeyedMutexDifferentKeysDoNotContend(t *testing.T) {
	km := NewKeyedMutex()

	release1, err := km.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release2, err := km.Acquire(ctx, "b")
	require.NoError(t, err)
	release2()
}

func TestKeyedMutexBoundedWait(t *testing.T) {
	km := NewKeyedMutex()

	release, err := km.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Acquire(ctx, "k")
	assert.ErrorIs(t, err, models.ErrBusy)

	release()

	// Free again after the holder releases.
	release2, err := km.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release2()
	assert.Equal(t, 0, km.Len())
}
