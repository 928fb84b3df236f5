package locking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockFriendly(t *testing.T) {
	tests := []struct {
		name              string
		subsequentCallers int
	}{
		{
			name: "The first lock can always be obtained",
		},
		{
			name:              "Subsequent callers are unblocked accordingly",
			subsequentCallers: 10,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			friendly, unlock, unlockFriendly, err := LockFriendly(context.Background(), "test-"+test.name)
			assert.NoError(t, err)

			// The first lock can always be obtained and isn't "friendly".
			assert.False(t, friendly)

			// The unlock functions of the first lock are always not nil.
			assert.NotNil(t, unlock)
			assert.NotNil(t, unlockFriendly)

			if test.subsequentCallers > 0 {
				var wg sync.WaitGroup
				for i := 0; i < test.subsequentCallers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()

						friendly, unlock, unlockFriendly, err := LockFriendly(context.Background(), "test-"+test.name)
						assert.NoError(t, err)

						// The lock was acquired friendly which means this
						// subsequent caller can proceed without redoing work.
						assert.True(t, friendly)

						// No unlock functions are returned as this is up to
						// the preceding caller.
						assert.Nil(t, unlock)
						assert.Nil(t, unlockFriendly)
					}()
				}

				// Give goroutines a chance to queue up as waiters.
				time.Sleep(100 * time.Millisecond)
				unlockFriendly()
				wg.Wait()
			} else {
				unlockFriendly()
			}
		})
	}
}

func TestLockFriendly_ContextCancel(t *testing.T) {
	_, _, unlockFriendly, err := LockFriendly(context.Background(), "test-cancel")
	assert.NoError(t, err)
	defer unlockFriendly()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	friendly, unlock, unlockFriendly2, err := LockFriendly(ctx, "test-cancel")
	assert.Error(t, err)
	assert.False(t, friendly)
	assert.Nil(t, unlock)
	assert.Nil(t, unlockFriendly2)
}
