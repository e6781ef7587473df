package ingestion

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-loader/internal/domain"
)

type keyVal struct {
	ID  int
	Val string
}

func readKeyVals(t *testing.T, db *sql.DB, table string) []keyVal {
	t.Helper()
	rows, err := db.QueryContext(ctx, "SELECT id, val FROM "+table+" ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	var out []keyVal
	for rows.Next() {
		var kv keyVal
		require.NoError(t, rows.Scan(&kv.ID, &kv.Val))
		out = append(out, kv)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestDispatch_Append(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE orders (id INTEGER, amount DECIMAL(10,2), day DATE, note VARCHAR)`)
	mustExec(t, db, `INSERT INTO orders VALUES (100, 1.00, '2023-12-31', 'existing')`)

	// Columns out of table order, plus one the table does not have.
	src := writeCSV(t, "note,day,extra,id,amount\nhello,2024-01-02,zzz,1,2.50\nworld,2024-01-03,yyy,2,3.75\n")

	d := NewDispatcher(db, DispatcherConfig{OverwriteAtomic: true}, testLogger())
	res := d.Dispatch(ctx, domain.WriteOperation{
		Mode:      domain.WriteModeAppend,
		Target:    ref("orders"),
		SourceURI: src,
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.HeaderSuccess, res.Header)
	assert.Equal(t, domain.StateCompleted, res.State)
	assert.Equal(t, int64(2), res.RowsAffected)
	assert.Empty(t, res.Warnings)
	assert.Regexp(t, `^tmp_staging_[0-9a-f]{12}$`, res.StagingView)
	assert.Contains(t, res.Message, "memory.main.orders")

	rows, err := db.QueryContext(ctx, `
		SELECT id, CAST(amount AS VARCHAR), CAST(day AS VARCHAR), note
		FROM orders ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		id               int
		amount, day, note string
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.id, &r.amount, &r.day, &r.note))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []row{
		{1, "2.50", "2024-01-02", "hello"},
		{2, "3.75", "2024-01-03", "world"},
		{100, "1.00", "2023-12-31", "existing"},
	}, got)

	assert.Zero(t, countStagingViews(t, db))
}

func TestDispatch_Overwrite(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	mustExec(t, db, `INSERT INTO items VALUES (1, 'a'), (2, 'b'), (3, 'c'), (4, 'd'), (5, 'e')`)
	src := writeCSV(t, "id,val\n7,x\n8,y\n")

	for _, atomic := range []bool{true, false} {
		d := NewDispatcher(db, DispatcherConfig{OverwriteAtomic: atomic}, testLogger())
		res := d.Dispatch(ctx, domain.WriteOperation{
			Mode:      domain.WriteModeOverwrite,
			Target:    ref("items"),
			SourceURI: src,
		})
		require.True(t, res.Success, res.Message)
		assert.Equal(t, int64(2), res.RowsAffected)
		assert.Equal(t, []keyVal{{7, "x"}, {8, "y"}}, readKeyVals(t, db, "items"))
	}
	assert.Zero(t, countStagingViews(t, db))
}

func TestDispatch_Merge(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	mustExec(t, db, `INSERT INTO items VALUES (1, 'a'), (2, 'b')`)
	src := writeCSV(t, "id,val\n2,B\n3,c\n")

	d := NewDispatcher(db, DispatcherConfig{OverwriteAtomic: true}, testLogger())
	res := d.Dispatch(ctx, domain.WriteOperation{
		Mode:      domain.WriteModeMerge,
		Target:    ref("items"),
		SourceURI: src,
		MergeKey:  strPtr("id"),
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.StateCompleted, res.State)
	assert.Regexp(t, `^tmp_merge_[0-9a-f]{12}$`, res.StagingView)
	assert.Equal(t, []keyVal{{1, "a"}, {2, "B"}, {3, "c"}}, readKeyVals(t, db, "items"))
	assert.Zero(t, countStagingViews(t, db))
}

func TestDispatch_MergeKeyMatchesCaseInsensitively(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	mustExec(t, db, `INSERT INTO items VALUES (1, 'a')`)
	src := writeCSV(t, "ID,Val\n1,A\n2,b\n")

	d := NewDispatcher(db, DispatcherConfig{}, testLogger())
	res := d.Dispatch(ctx, domain.WriteOperation{
		Mode:      domain.WriteModeMerge,
		Target:    ref("items"),
		SourceURI: src,
		MergeKey:  strPtr("ID"),
	})

	require.True(t, res.Success, res.Message)
	assert.Contains(t, res.Message, `on key "id"`)
	assert.Equal(t, []keyVal{{1, "A"}, {2, "b"}}, readKeyVals(t, db, "items"))
}

func TestDispatch_MergeDuplicateKeyInFile(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		wantDup string
	}{
		{name: "same_value_twice", csv: "id,val\n1,x\n1,y\n", wantDup: "1"},
		{name: "duplicate_among_unique", csv: "id,val\n2,b\n3,c\n3,d\n", wantDup: "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
			mustExec(t, db, `INSERT INTO items VALUES (1, 'a')`)

			d, stmts := newFaultyDispatcher(db, DispatcherConfig{}, "")
			res := d.Dispatch(ctx, domain.WriteOperation{
				Mode:      domain.WriteModeMerge,
				Target:    ref("items"),
				SourceURI: writeCSV(t, tt.csv),
				MergeKey:  strPtr("id"),
			})

			require.False(t, res.Success)
			assert.Equal(t, domain.KindMergeKey, res.ErrorKind())
			assert.Equal(t, "merge", res.Stage)
			assert.Contains(t, res.Message, `value "`+tt.wantDup+`" appears more than once`)
			assert.False(t, hasPrefix(*stmts, "MERGE"), "target must not be touched")
			assert.Equal(t, []keyVal{{1, "a"}}, readKeyVals(t, db, "items"))
			assert.Zero(t, countStagingViews(t, db))
		})
	}
}

func TestDispatch_MergeNullKeysAreNotDuplicates(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	src := writeCSV(t, "id,val\n,x\n,y\n5,z\n")

	d := NewDispatcher(db, DispatcherConfig{}, testLogger())
	res := d.Dispatch(ctx, domain.WriteOperation{
		Mode: domain.WriteModeMerge, Target: ref("items"), SourceURI: src, MergeKey: strPtr("id"),
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, 3, countRows(t, db, "items"))
}

func TestDispatch_PanicBecomesFailedResult(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	mustExec(t, db, `INSERT INTO items VALUES (1, 'a')`)
	src := writeCSV(t, "id,val\n2,b\n")

	d := NewDispatcher(db, DispatcherConfig{}, testLogger())
	d.wrap = func(e Executor) Executor { return panicExec{Executor: e, prefix: "MERGE"} }

	var res *domain.WriteResult
	require.NotPanics(t, func() {
		res = d.Dispatch(ctx, domain.WriteOperation{
			Mode: domain.WriteModeMerge, Target: ref("items"), SourceURI: src, MergeKey: strPtr("id"),
		})
	})

	require.False(t, res.Success)
	assert.Equal(t, domain.StateFailed, res.State)
	assert.Equal(t, "merge", res.Stage)
	assert.Equal(t, domain.KindInternal, res.ErrorKind())
	assert.Contains(t, res.Message, "panic: driver exploded")
	assert.Zero(t, countStagingViews(t, db))
	assert.Equal(t, []keyVal{{1, "a"}}, readKeyVals(t, db, "items"))
}

func TestDispatch_ValidationFailures(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	src := writeCSV(t, "id,val\n1,a\n")

	tests := []struct {
		name string
		op   domain.WriteOperation
	}{
		{
			name: "merge_without_key",
			op:   domain.WriteOperation{Mode: domain.WriteModeMerge, Target: ref("items"), SourceURI: src},
		},
		{
			name: "merge_with_empty_key",
			op:   domain.WriteOperation{Mode: domain.WriteModeMerge, Target: ref("items"), SourceURI: src, MergeKey: strPtr("")},
		},
		{
			name: "unknown_mode",
			op:   domain.WriteOperation{Mode: "upsert", Target: ref("items"), SourceURI: src},
		},
		{
			name: "missing_table_name",
			op:   domain.WriteOperation{Mode: domain.WriteModeAppend, Target: domain.TableRef{Catalog: "memory", Schema: "main"}, SourceURI: src},
		},
		{
			name: "no_uploaded_file",
			op:   domain.WriteOperation{Mode: domain.WriteModeAppend, Target: ref("items")},
		},
		{
			name: "unsafe_identifier",
			op:   domain.WriteOperation{Mode: domain.WriteModeAppend, Target: ref(`items"; DROP TABLE items; --`), SourceURI: src},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, stmts := newFaultyDispatcher(db, DispatcherConfig{OverwriteAtomic: true}, "")
			res := d.Dispatch(ctx, tt.op)

			require.False(t, res.Success)
			assert.Equal(t, domain.HeaderError, res.Header)
			assert.Equal(t, domain.StateFailed, res.State)
			assert.Equal(t, "validate", res.Stage)
			assert.Equal(t, domain.KindValidation, res.ErrorKind())
			assert.Empty(t, res.StagingView)
			assert.Empty(t, *stmts, "no statement may run before validation passes")
		})
	}
	assert.Zero(t, countRows(t, db, "items"))
}

func TestDispatch_MergeKeyNotAColumn(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	src := writeCSV(t, "id,val\n1,a\n")

	d, stmts := newFaultyDispatcher(db, DispatcherConfig{}, "")
	res := d.Dispatch(ctx, domain.WriteOperation{
		Mode:      domain.WriteModeMerge,
		Target:    ref("items"),
		SourceURI: src,
		MergeKey:  strPtr("sku"),
	})

	require.False(t, res.Success)
	assert.Equal(t, domain.KindMergeKey, res.ErrorKind())
	assert.Contains(t, res.Message, `"sku"`)
	assert.False(t, hasPrefix(*stmts, "CREATE"), "no staging view may be created")
	assert.Zero(t, countRows(t, db, "items"))
}

func TestDispatch_SchemaLookupFailure(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	mustExec(t, db, `INSERT INTO items VALUES (1, 'a')`)
	src := writeCSV(t, "id,val\n2,b\n")

	t.Run("missing_table", func(t *testing.T) {
		d := NewDispatcher(db, DispatcherConfig{}, testLogger())
		res := d.Dispatch(ctx, domain.WriteOperation{Mode: domain.WriteModeAppend, Target: ref("nope"), SourceURI: src})
		require.False(t, res.Success)
		assert.Equal(t, domain.KindSchemaLookup, res.ErrorKind())
		assert.Equal(t, "schema lookup", res.Stage)
	})

	t.Run("describe_fails", func(t *testing.T) {
		d, stmts := newFaultyDispatcher(db, DispatcherConfig{}, "DESCRIBE")
		res := d.Dispatch(ctx, domain.WriteOperation{Mode: domain.WriteModeOverwrite, Target: ref("items"), SourceURI: src})
		require.False(t, res.Success)
		assert.Equal(t, domain.KindSchemaLookup, res.ErrorKind())
		assert.ErrorIs(t, res.Err, errInjected)
		assert.False(t, hasPrefix(*stmts, "TRUNCATE"))
		assert.Equal(t, []keyVal{{1, "a"}}, readKeyVals(t, db, "items"))
	})
}

func TestDispatch_StagingCreateFailure(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	mustExec(t, db, `INSERT INTO items VALUES (1, 'a')`)

	d, stmts := newFaultyDispatcher(db, DispatcherConfig{}, "")
	res := d.Dispatch(ctx, domain.WriteOperation{
		Mode:      domain.WriteModeOverwrite,
		Target:    ref("items"),
		SourceURI: "/definitely/not/here.csv",
	})

	require.False(t, res.Success)
	assert.Equal(t, domain.KindStagingView, res.ErrorKind())
	assert.Equal(t, "create staging view", res.Stage)
	assert.False(t, hasPrefix(*stmts, "DROP VIEW"), "drop runs only after a successful create")
	assert.False(t, hasPrefix(*stmts, "TRUNCATE"))
	assert.Equal(t, []keyVal{{1, "a"}}, readKeyVals(t, db, "items"))
}

func TestDispatch_CastFailure(t *testing.T) {
	seed := func(t *testing.T) *sql.DB {
		db := newTestDB(t)
		mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
		mustExec(t, db, `INSERT INTO items VALUES (1, 'a'), (2, 'b')`)
		return db
	}
	bad := "id,val\n3,c\nnot-a-number,d\n"

	t.Run("append_leaves_table_unchanged", func(t *testing.T) {
		db := seed(t)
		d := NewDispatcher(db, DispatcherConfig{}, testLogger())
		res := d.Dispatch(ctx, domain.WriteOperation{Mode: domain.WriteModeAppend, Target: ref("items"), SourceURI: writeCSV(t, bad)})

		require.False(t, res.Success)
		assert.Equal(t, domain.KindCast, res.ErrorKind())
		assert.Equal(t, "insert", res.Stage)
		assert.Equal(t, 2, countRows(t, db, "items"))
		assert.Zero(t, countStagingViews(t, db))
	})

	t.Run("missing_column_in_file", func(t *testing.T) {
		db := seed(t)
		d := NewDispatcher(db, DispatcherConfig{}, testLogger())
		res := d.Dispatch(ctx, domain.WriteOperation{Mode: domain.WriteModeAppend, Target: ref("items"), SourceURI: writeCSV(t, "id\n9\n")})

		require.False(t, res.Success)
		assert.Equal(t, domain.KindCast, res.ErrorKind())
		assert.Equal(t, 2, countRows(t, db, "items"))
	})

	t.Run("atomic_overwrite_rolls_back", func(t *testing.T) {
		db := seed(t)
		d := NewDispatcher(db, DispatcherConfig{OverwriteAtomic: true}, testLogger())
		res := d.Dispatch(ctx, domain.WriteOperation{Mode: domain.WriteModeOverwrite, Target: ref("items"), SourceURI: writeCSV(t, bad)})

		require.False(t, res.Success)
		assert.Equal(t, domain.KindCast, res.ErrorKind())
		assert.NotContains(t, res.Message, "now empty")
		assert.Equal(t, []keyVal{{1, "a"}, {2, "b"}}, readKeyVals(t, db, "items"))
		assert.Zero(t, countStagingViews(t, db))
	})

	t.Run("non_atomic_overwrite_reports_empty_table", func(t *testing.T) {
		db := seed(t)
		d := NewDispatcher(db, DispatcherConfig{OverwriteAtomic: false}, testLogger())
		res := d.Dispatch(ctx, domain.WriteOperation{Mode: domain.WriteModeOverwrite, Target: ref("items"), SourceURI: writeCSV(t, bad)})

		require.False(t, res.Success)
		assert.Equal(t, domain.KindCast, res.ErrorKind())
		assert.Contains(t, res.Message, "memory.main.items was truncated and is now empty")
		assert.Zero(t, countRows(t, db, "items"))
		assert.Zero(t, countStagingViews(t, db))
	})

	t.Run("merge_leaves_table_unchanged", func(t *testing.T) {
		db := seed(t)
		d := NewDispatcher(db, DispatcherConfig{}, testLogger())
		res := d.Dispatch(ctx, domain.WriteOperation{
			Mode: domain.WriteModeMerge, Target: ref("items"), SourceURI: writeCSV(t, bad), MergeKey: strPtr("id"),
		})

		require.False(t, res.Success)
		assert.Equal(t, domain.KindCast, res.ErrorKind())
		assert.Equal(t, "merge", res.Stage)
		assert.Equal(t, []keyVal{{1, "a"}, {2, "b"}}, readKeyVals(t, db, "items"))
	})
}

func TestDispatch_DropFailureIsAWarning(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE items (id INTEGER, val VARCHAR)`)
	src := writeCSV(t, "id,val\n1,a\n")

	d, _ := newFaultyDispatcher(db, DispatcherConfig{}, "DROP VIEW")
	res := d.Dispatch(ctx, domain.WriteOperation{Mode: domain.WriteModeAppend, Target: ref("items"), SourceURI: src})

	require.True(t, res.Success, res.Message)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], res.StagingView)
	assert.Equal(t, 1, countRows(t, db, "items"))
}

func TestDispatch_ConcurrentOperations(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tables := []string{"t1", "t2", "t3", "t4"}
	for _, tbl := range tables {
		mustExec(t, db, "CREATE TABLE "+tbl+" (id INTEGER, val VARCHAR)")
	}
	src := writeCSV(t, "id,val\n1,a\n2,b\n")

	d := NewDispatcher(db, DispatcherConfig{OverwriteAtomic: true}, testLogger())
	results := make([]*domain.WriteResult, len(tables))
	var wg sync.WaitGroup
	for i, tbl := range tables {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, domain.WriteOperation{Mode: domain.WriteModeAppend, Target: ref(tbl), SourceURI: src})
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, res := range results {
		require.True(t, res.Success, res.Message)
		assert.False(t, seen[res.StagingView], "staging names must not collide")
		seen[res.StagingView] = true
		assert.Equal(t, 2, countRows(t, db, tables[i]))
	}
}
