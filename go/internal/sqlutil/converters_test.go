package sqlutil

import (
	"testing"
	"time"

	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqlTime(t *testing.T) {
	assert.False(t, ToSqlTime(nil).Valid)
	assert.Nil(t, FromSqlTime(ToSqlTime(nil)))

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	back := FromSqlTime(ToSqlTime(&now))
	require.NotNil(t, back)
	assert.True(t, now.Equal(*back))
}

func TestNullJSON(t *testing.T) {
	type answer struct {
		Gained int `json:"gained"`
	}

	t.Run("nil values are NULL", func(t *testing.T) {
		val, err := ToNullJSON(nil)
		require.NoError(t, err)
		assert.False(t, val.Valid)

		var typedNil *answer
		val, err = ToNullJSON(typedNil)
		require.NoError(t, err)
		assert.False(t, val.Valid)
	})

	t.Run("values are decoded back", func(t *testing.T) {
		val, err := ToNullJSON(&answer{Gained: 1450})
		require.NoError(t, err)
		require.True(t, val.Valid)

		var got answer
		set, err := FromNullJSON(val, &got)
		require.NoError(t, err)
		assert.True(t, set)
		assert.Equal(t, 1450, got.Gained)
	})

	t.Run("NULL leaves dst alone", func(t *testing.T) {
		got := answer{Gained: 7}
		set, err := FromNullJSON(pqtype.NullRawMessage{}, &got)
		require.NoError(t, err)
		assert.False(t, set)
		assert.Equal(t, 7, got.Gained)
	})

	t.Run("garbage fails", func(t *testing.T) {
		var got answer
		_, err := FromNullJSON(pqtype.NullRawMessage{RawMessage: []byte("{"), Valid: true}, &got)
		assert.Error(t, err)
	})
}
