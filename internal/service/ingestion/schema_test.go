package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-loader/internal/domain"
)

func TestSchemaAligner_GetSchema(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE orders (id INTEGER, amount DECIMAL(10,2), day DATE, note VARCHAR, tags VARCHAR[])`)

	got, err := SchemaAligner{}.GetSchema(ctx, db, ref("orders"))
	require.NoError(t, err)
	assert.Equal(t, domain.SchemaMap{
		{Name: "id", Type: "INTEGER"},
		{Name: "amount", Type: "DECIMAL(10,2)"},
		{Name: "day", Type: "DATE"},
		{Name: "note", Type: "VARCHAR"},
		{Name: "tags", Type: "VARCHAR[]"},
	}, got)

	t.Run("reflects the current declaration", func(t *testing.T) {
		mustExec(t, db, `ALTER TABLE orders ADD COLUMN region VARCHAR`)
		got, err := SchemaAligner{}.GetSchema(ctx, db, ref("orders"))
		require.NoError(t, err)
		assert.Equal(t, "region", got[len(got)-1].Name)
	})

	t.Run("missing table", func(t *testing.T) {
		_, err := SchemaAligner{}.GetSchema(ctx, db, ref("missing"))
		require.Error(t, err)
		var sle *domain.SchemaLookupError
		require.ErrorAs(t, err, &sle)
		assert.Equal(t, "memory.main.missing", sle.Table)
	})

	t.Run("invalid identifier", func(t *testing.T) {
		_, err := SchemaAligner{}.GetSchema(ctx, db, domain.TableRef{Catalog: "memory", Schema: "main", Table: "x y"})
		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.ErrorKind(err))
	})
}

func TestStringValue(t *testing.T) {
	s, ok := stringValue(nil)
	assert.False(t, ok)
	assert.Empty(t, s)

	s, ok = stringValue([]byte("id"))
	assert.True(t, ok)
	assert.Equal(t, "id", s)

	s, ok = stringValue(42)
	assert.True(t, ok)
	assert.Equal(t, "42", s)
}

func TestBuildCastProjection(t *testing.T) {
	schema := domain.SchemaMap{
		{Name: "id", Type: "INTEGER"},
		{Name: "amount", Type: "DECIMAL(10,2)"},
		{Name: "day", Type: "DATE"},
	}

	got, err := BuildCastProjection(schema, SourceAlias)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`CAST(s."id" AS INTEGER) AS "id"`,
		`CAST(s."amount" AS DECIMAL(10,2)) AS "amount"`,
		`CAST(s."day" AS DATE) AS "day"`,
	}, got)

	empty, err := BuildCastProjection(nil, SourceAlias)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = BuildCastProjection(domain.SchemaMap{{Name: "id", Type: "INTEGER; DROP TABLE x"}}, SourceAlias)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.ErrorKind(err))
}
