package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 10, NormalizeLimit(10))
	require.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123000, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseCursor("not-base64!")
	require.Error(t, err)
}

func TestCursorIsQuerySafe(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := EncodeCursor(Cursor{CreatedAt: time.Now().Add(time.Duration(i) * time.Microsecond), ID: uuid.New()})
		require.NotContains(t, c, "+")
		require.NotContains(t, c, "/")
		require.NotContains(t, c, "=")
	}
}

func TestTrim(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{uuid.New(), base.Add(3 * time.Minute)}, {uuid.New(), base.Add(2 * time.Minute)}, {uuid.New(), base.Add(time.Minute)}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, cursorOf)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	decoded, err := ParseCursor(next)
	require.NoError(t, err)
	require.Equal(t, rows[1].id, decoded.ID)

	page, next = Trim(rows[:2], 2, cursorOf)
	require.Len(t, page, 2)
	require.Empty(t, next)
}
