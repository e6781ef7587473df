package ingestion

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-loader/internal/domain"
)

func TestPreviewer_Preview(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&b, "%d,row%d\n", i, i)
	}
	b.WriteString("16,\n")
	src := writeCSV(t, b.String())

	db := newTestDB(t)
	p := NewPreviewer(db)

	t.Run("default limit", func(t *testing.T) {
		got, err := p.Preview(ctx, src, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, got.Columns)
		assert.Equal(t, DefaultPreviewRows, got.Limit)
		require.Len(t, got.Rows, DefaultPreviewRows)
		assert.Equal(t, []string{"1", "row1"}, got.Rows[0])
	})

	t.Run("limit larger than file", func(t *testing.T) {
		got, err := p.Preview(ctx, src, 100)
		require.NoError(t, err)
		require.Len(t, got.Rows, 16)
		assert.Equal(t, []string{"16", ""}, got.Rows[15])
	})

	t.Run("limit is capped", func(t *testing.T) {
		got, err := p.Preview(ctx, src, MaxPreviewRows+1)
		require.NoError(t, err)
		assert.Equal(t, MaxPreviewRows, got.Limit)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := p.Preview(ctx, "/no/such/file.csv", 5)
		require.Error(t, err)
		assert.Equal(t, domain.KindStagingView, domain.ErrorKind(err))
	})

	t.Run("empty uri", func(t *testing.T) {
		_, err := p.Preview(ctx, " ", 5)
		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.ErrorKind(err))
	})
}
