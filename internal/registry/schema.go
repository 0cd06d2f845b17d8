package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/consumerlens/consumerlens/internal/adapters/db"
	"github.com/consumerlens/consumerlens/pkg/metrics"
)

// MaxSampleRows caps the sample endpoint; raw rows are for inspection
// only.
const MaxSampleRows = 100

// Column describes one column of a dataset table.
type Column struct {
	Name        string `json:"column"`
	Type        string `json:"type"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description,omitempty"`
}

// TableSchema describes one table.
type TableSchema struct {
	Name        string   `json:"table"`
	Description string   `json:"description,omitempty"`
	Columns     []Column `json:"columns"`
}

// SchemaInfo is the full introspected schema of a dataset.
type SchemaInfo struct {
	DatasetID int           `json:"dataset_id"`
	Tables    []TableSchema `json:"tables"`
}

const listTablesSQL = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`

const listColumnsSQL = `SELECT column_name, data_type, character_maximum_length, is_nullable
FROM information_schema.columns
WHERE table_name = $1
ORDER BY ordinal_position`

// Schema introspects a dataset's tables and columns and merges in the
// configured dictionary descriptions.
func (r *Registry) Schema(ctx context.Context, id int) (*SchemaInfo, error) {
	d, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	tables, err := d.exec.Query(ctx, listTablesSQL)
	if err != nil {
		return nil, err
	}
	metrics.RecordQueryExecuted("schema")

	info := &SchemaInfo{DatasetID: id}
	for _, row := range tables.Rows {
		name := db.ToString(row[0])
		cols, err := d.exec.Query(ctx, listColumnsSQL, name)
		if err != nil {
			return nil, err
		}
		ts := TableSchema{Name: name, Description: d.Dictionary[name]}
		for _, c := range cols.Rows {
			typ := db.ToString(c[1])
			if maxLen := db.ToFloat(c[2]); maxLen > 0 {
				typ = fmt.Sprintf("%s(%d)", typ, int(maxLen))
			}
			ts.Columns = append(ts.Columns, Column{
				Name:     db.ToString(c[0]),
				Type:     typ,
				Nullable: strings.EqualFold(db.ToString(c[3]), "YES"),
			})
		}
		info.Tables = append(info.Tables, ts)
	}
	return info, nil
}

const tableExistsSQL = `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public'`

// Sample returns up to MaxSampleRows raw rows from one table. The
// table is verified against information_schema first; a miss reports
// the available tables.
func (r *Registry) Sample(ctx context.Context, id int, table string, limit int) (*db.RowSet, error) {
	d, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = d.Table
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxSampleRows {
		limit = MaxSampleRows
	}

	count, err := d.exec.QueryScalar(ctx, tableExistsSQL, table)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		available, err := d.exec.Query(ctx, listTablesSQL)
		if err != nil {
			return nil, fmt.Errorf("%w: table %q", ErrTableNotFound, table)
		}
		names := make([]string, 0, len(available.Rows))
		for _, row := range available.Rows {
			names = append(names, db.ToString(row[0]))
		}
		return nil, fmt.Errorf("%w: table %q (available: %s)", ErrTableNotFound, table, strings.Join(names, ", "))
	}

	rs, err := d.exec.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", pgIdent(table), limit))
	if err != nil {
		return nil, err
	}
	metrics.RecordQueryExecuted("sample")
	return rs, nil
}

// pgIdent double-quotes an identifier for Postgres, escaping embedded
// quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
