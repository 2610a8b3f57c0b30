package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/ChrisMcGann/speclust/pkg/cluster"
	"github.com/ChrisMcGann/speclust/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCluster(t *testing.T) *cluster.Greedy {
	t.Helper()
	c := cluster.NewGreedy(100, nil)
	c.AddSpectra(&core.BinarySpectrum{
		UUI:             "member-1",
		PrecursorMZBin:  500250,
		PrecursorCharge: 2,
		MZ:              []int32{100, 200, 300},
		Intensity:       []int32{10, 20, 30},
	})
	c.AddSpectra(&core.BinarySpectrum{
		UUI:             "member-2",
		PrecursorMZBin:  500252,
		PrecursorCharge: 2,
		MZ:              []int32{100, 250},
		Intensity:       []int32{5, 15},
	})
	c.SaveComparisonResult("other-1", 0.75)
	c.SaveComparisonResult("other-2", 0.25)
	return c
}

func TestClusterSerializationRoundTrip(t *testing.T) {
	c := testCluster(t)

	data, err := MarshalCluster(c)
	require.NoError(t, err)

	restored, err := UnmarshalCluster(data, 100)
	require.NoError(t, err)

	assert.Equal(t, c.ID(), restored.ID())
	assert.Equal(t, c.MemberIDs(), restored.MemberIDs())
	assert.Equal(t, c.BestMatches(), restored.BestMatches())
	assert.Equal(t, c.Consensus().NSpectra(), restored.Consensus().NSpectra())
	assert.Equal(t, c.Representative().MZ, restored.Representative().MZ)
	assert.Equal(t, c.Representative().Intensity, restored.Representative().Intensity)
	assert.Equal(t, c.Representative().PrecursorMZBin, restored.Representative().PrecursorMZBin)

	// the round trip is bit-exact
	again, err := MarshalCluster(restored)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, again), "re-marshaling must reproduce the bytes")
}

func TestUnmarshalToleratesTrailingFields(t *testing.T) {
	c := testCluster(t)
	data, err := MarshalCluster(c)
	require.NoError(t, err)

	// simulate a newer writer appending fields to the payload
	extended := append([]byte{}, data...)
	extended = append(extended, 0xde, 0xad, 0xbe, 0xef)
	binary.LittleEndian.PutUint32(extended[6:10], uint32(len(extended)-10))

	restored, err := UnmarshalCluster(extended, 100)
	require.NoError(t, err)
	assert.Equal(t, c.ID(), restored.ID())
}

func TestUnmarshalIntegrityErrors(t *testing.T) {
	c := testCluster(t)
	data, err := MarshalCluster(c)
	require.NoError(t, err)

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte{}, data...)
		bad[0] ^= 0xff
		_, err := UnmarshalCluster(bad, 100)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("bad version", func(t *testing.T) {
		bad := append([]byte{}, data...)
		binary.LittleEndian.PutUint16(bad[4:6], 999)
		_, err := UnmarshalCluster(bad, 100)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := UnmarshalCluster(data[:15], 100)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := UnmarshalCluster(nil, 100)
		assert.ErrorIs(t, err, ErrIntegrity)
	})
}

func TestHashKeyDeterministic(t *testing.T) {
	assert.Equal(t, HashKey("abc"), HashKey("abc"))
	assert.NotEqual(t, HashKey("abc"), HashKey("abd"))
}

func clusterStores(t *testing.T) map[string]ClusterStore {
	t.Helper()
	static, err := NewStaticClusterStore("", 1000, 100, nil)
	require.NoError(t, err)
	dynamic, err := NewDynamicClusterStore("", 100, nil)
	require.NoError(t, err)
	return map[string]ClusterStore{"static": static, "dynamic": dynamic}
}

func TestClusterStores(t *testing.T) {
	for name, store := range clusterStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			c := testCluster(t)
			key := HashKey(c.ID())

			require.NoError(t, store.Put(key, c))

			size, err := store.Size()
			require.NoError(t, err)
			assert.Equal(t, 1, size)

			got, err := store.Get(key)
			require.NoError(t, err)
			assert.Equal(t, c.ID(), got.ID())
			assert.Equal(t, c.MemberIDs(), got.MemberIDs())

			// idempotent overwrite
			require.NoError(t, store.Put(key, c))
			size, err = store.Size()
			require.NoError(t, err)
			assert.Equal(t, 1, size)

			_, err = store.Get(key + 1)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Delete(key))
			size, err = store.Size()
			require.NoError(t, err)
			assert.Equal(t, 0, size)

			_, err = store.Get(key)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStaticStoreRequiresSizing(t *testing.T) {
	_, err := NewStaticClusterStore("", 0, 100, nil)
	assert.Error(t, err)
}

func propertyStores(t *testing.T) map[string]PropertyStore {
	t.Helper()
	disk, err := NewDiskPropertyStore("")
	require.NoError(t, err)
	return map[string]PropertyStore{
		"memory": NewInMemoryPropertyStore(),
		"disk":   disk,
	}
}

func TestPropertyStores(t *testing.T) {
	for name, store := range propertyStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			for i := 0; i < 200; i++ {
				require.NoError(t, store.Put(fmt.Sprintf("%d", i), "RT", fmt.Sprintf("%d.5", i)))
			}

			names, err := store.AvailablePropertyNames()
			require.NoError(t, err)
			assert.Equal(t, []string{"RT"}, names)

			size, err := store.Size()
			require.NoError(t, err)
			assert.Equal(t, 200, size)

			v, err := store.Get("42", "RT")
			require.NoError(t, err)
			assert.Equal(t, "42.5", v)

			// idempotent overwrite
			require.NoError(t, store.Put("42", "RT", "changed"))
			size, err = store.Size()
			require.NoError(t, err)
			assert.Equal(t, 200, size)
			v, err = store.Get("42", "RT")
			require.NoError(t, err)
			assert.Equal(t, "changed", v)

			_, err = store.Get("42", "missing")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}
