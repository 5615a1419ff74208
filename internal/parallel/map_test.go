package parallel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_EmptyItemsReturnsImmediately(t *testing.T) {
	res := Map(context.Background(), []int{}, func(context.Context, int) (int, error) {
		t.Fatal("fn must not be called for empty items")
		return 0, nil
	}, Options{Concurrency: 4})

	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 0, res.ErrorCount)
	assert.Empty(t, res.Results)
}

func TestMap_OrderPreservedWithPerItemFailure(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	errB := errors.New("boom")

	var errIdx []int
	res := Map(context.Background(), items, func(_ context.Context, s string) (string, error) {
		if s == "b" {
			return "", errB
		}
		return s + s, nil
	}, Options{
		Concurrency: 2,
		OnItemError: func(i int, err error) { errIdx = append(errIdx, i) },
	})

	require.Len(t, res.Results, 4)
	assert.Equal(t, "aa", res.Results[0].Value)
	assert.ErrorIs(t, res.Results[1].Err, errB)
	assert.Equal(t, "cc", res.Results[2].Value)
	assert.Equal(t, "dd", res.Results[3].Value)
	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, []int{1}, errIdx)
}

func TestMap_ConcurrencyOneIsSequential(t *testing.T) {
	var order []int
	items := []int{0, 1, 2, 3, 4}

	res := Map(context.Background(), items, func(_ context.Context, i int) (int, error) {
		order = append(order, i)
		return i * i, nil
	}, Options{Concurrency: 1})

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	for i, r := range res.Results {
		assert.Equal(t, i*i, r.Value)
	}
}

func TestMap_CancelledContextMarksUnstartedItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Map(ctx, []int{1, 2, 3}, func(context.Context, int) (int, error) {
		return 0, nil
	}, Options{Concurrency: 2})

	require.Len(t, res.Results, 3)
	for _, r := range res.Results {
		var ce *ErrCancelled
		assert.ErrorAs(t, r.Err, &ce)
	}
	assert.Equal(t, 3, res.ErrorCount)
}
