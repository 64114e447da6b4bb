package dataset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/dataset"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

func TestMemoryStore(t *testing.T) {
	store := dataset.NewMemoryStore()
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, dataset.ErrNotFound)

	assert.ErrorIs(t, store.Replace(ctx, nil), dataset.ErrEmpty)
	assert.Equal(t, 0, store.Writes())

	in := dataset.New([]weather.DailyRecord{record("Warsaw", 1, 1)})
	require.NoError(t, store.Replace(ctx, in))

	in.Records[0].City = "mutated"

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Warsaw", out.Records[0].City, "store keeps its own copy")
	assert.Equal(t, 1, store.Writes())

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDataset_Cities(t *testing.T) {
	var nilDS *dataset.Dataset
	assert.Nil(t, nilDS.Cities())
	assert.Equal(t, 0, nilDS.Len())

	ds := dataset.New([]weather.DailyRecord{
		record("Warsaw", 1, 1),
		record("Krakow", 1, 1),
		record("Warsaw", 2, 1),
		record("", 3, 1),
	})
	assert.Equal(t, []string{"Warsaw", "Krakow"}, ds.Cities())
}
