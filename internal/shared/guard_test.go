package shared_test

import (
	"sync"
	"testing"

	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedLoadStore(t *testing.T) {
	g := shared.NewGuarded("")

	v, err := g.Load()
	require.NoError(t, err)
	assert.Empty(t, v)

	g.Store("com.example.game")
	v, err = g.Load()
	require.NoError(t, err)
	assert.Equal(t, "com.example.game", v)
}

func TestGuardedUpdate(t *testing.T) {
	g := shared.NewGuarded(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Update(func(v *int) error {
				*v++
				return nil
			})
		}()
	}
	wg.Wait()

	v, err := g.Load()
	require.NoError(t, err)
	assert.Equal(t, 50, v)
}

func TestGuardedPoisonedAfterPanic(t *testing.T) {
	g := shared.NewGuarded([]string{"a"})

	err := g.Update(func(v *[]string) error {
		*v = append(*v, "b")
		panic("boom")
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrLockPoisoned))
	assert.True(t, g.Poisoned())

	_, err = g.Load()
	assert.True(t, errors.HasCode(err, errors.ErrLockPoisoned))
	assert.Equal(t, "lock poisoned", err.Error())

	err = g.Read(func([]string) error { return nil })
	assert.True(t, errors.HasCode(err, errors.ErrLockPoisoned))

	g.Store([]string{"fresh"})
	assert.False(t, g.Poisoned())
	v, err := g.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, v)
}
