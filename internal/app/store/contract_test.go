package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aseptimu/matchup-votes/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// opener открывает хранилище в одном и том же месте при каждом вызове.
type opener func(t *testing.T) Backend

// storeFactory готовит чистое место хранения и возвращает opener для него.
type storeFactory func(t *testing.T) opener

func runStoreContract(t *testing.T, factory storeFactory, durable bool) {
	ctx := context.Background()

	t.Run("UnknownKeyIsEmpty", func(t *testing.T) {
		s := factory(t)(t)
		tally, err := s.Get(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Empty(t, tally)
	})

	t.Run("FirstVoteCreatesTally", func(t *testing.T) {
		s := factory(t)(t)
		tally, err := s.Increment(ctx, "cats-vs-dogs", "cats")
		require.NoError(t, err)
		assert.Equal(t, service.Tally{"cats": 1}, tally)
	})

	t.Run("IncrementAccumulates", func(t *testing.T) {
		s := factory(t)(t)
		for i := 0; i < 3; i++ {
			_, err := s.Increment(ctx, "cats-vs-dogs", "cats")
			require.NoError(t, err)
		}
		tally, err := s.Increment(ctx, "cats-vs-dogs", "dogs")
		require.NoError(t, err)
		assert.Equal(t, service.Tally{"cats": 3, "dogs": 1}, tally)

		got, err := s.Get(ctx, "cats-vs-dogs")
		require.NoError(t, err)
		assert.Equal(t, tally, got)
	})

	t.Run("MatchupsIndependent", func(t *testing.T) {
		s := factory(t)(t)
		_, err := s.Increment(ctx, "a-b", "a")
		require.NoError(t, err)
		_, err = s.Increment(ctx, "A-B", "a")
		require.NoError(t, err)
		_, err = s.Increment(ctx, "c-d", "d")
		require.NoError(t, err)

		all, err := s.Dump(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]service.Tally{
			"a-b": {"a": 1},
			"A-B": {"a": 1},
			"c-d": {"d": 1},
		}, all)
	})

	t.Run("ReturnedTallyIsACopy", func(t *testing.T) {
		s := factory(t)(t)
		tally, err := s.Increment(ctx, "x-y", "x")
		require.NoError(t, err)
		tally["x"] = 42

		got, err := s.Get(ctx, "x-y")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got["x"])
	})

	t.Run("ConcurrentIncrementsNoLostUpdates", func(t *testing.T) {
		s := factory(t)(t)
		const n = 50

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Increment(ctx, "race", "winner"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, "race")
		require.NoError(t, err)
		assert.Equal(t, int64(n), got["winner"])
	})

	t.Run("NormalizeKeysMerges", func(t *testing.T) {
		s := factory(t)(t)
		for _, v := range []struct{ key, choice string }{
			{"a_b", "x"}, {"a_b", "x"}, {"a-b", "x"}, {"a-b", "y"}, {"c_d", "z"}, {"Keep-Case", "k"},
		} {
			_, err := s.Increment(ctx, v.key, v.choice)
			require.NoError(t, err)
		}

		changed, err := s.NormalizeKeys(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, changed)

		all, err := s.Dump(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]service.Tally{
			"a-b":       {"x": 3, "y": 1},
			"c-d":       {"z": 1},
			"Keep-Case": {"k": 1},
		}, all)

		changed, err = s.NormalizeKeys(ctx)
		require.NoError(t, err)
		assert.Zero(t, changed)
	})

	t.Run("Ping", func(t *testing.T) {
		s := factory(t)(t)
		assert.NoError(t, s.Ping(ctx))
	})

	if !durable {
		return
	}

	t.Run("SurvivesRestart", func(t *testing.T) {
		open := factory(t)
		first := open(t)
		for i := 0; i < 2; i++ {
			_, err := first.Increment(ctx, "x-y", fmt.Sprintf("c%d", i))
			require.NoError(t, err)
		}
		_, err := first.Increment(ctx, "x-y", "c0")
		require.NoError(t, err)
		require.NoError(t, first.Close())

		second := open(t)
		got, err := second.Get(ctx, "x-y")
		require.NoError(t, err)
		assert.Equal(t, service.Tally{"c0": 2, "c1": 1}, got)

		tally, err := second.Increment(ctx, "x-y", "c1")
		require.NoError(t, err)
		assert.Equal(t, service.Tally{"c0": 2, "c1": 2}, tally)
	})
}
