package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"krishmitra-advisor/internal/common/database"

	"github.com/lib/pq"
)

// PgVectorIndex stores passages in a pgvector column and ranks them by cosine distance.
type PgVectorIndex struct {
	db    *database.PostgresClient
	table string
	dims  int
}

func NewPgVectorIndex(db *database.PostgresClient, table string, dims int) (*PgVectorIndex, error) {
	if !database.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid evidence table name %q", table)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("pgvector index needs positive dimensions, got %d", dims)
	}
	return &PgVectorIndex{db: db, table: table, dims: dims}, nil
}

func (p *PgVectorIndex) Name() string { return "pgvector" }

// EnsureSchema creates the extension and table when missing.
func (p *PgVectorIndex) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			doc_date TEXT NOT NULL DEFAULT '',
			geo TEXT NOT NULL DEFAULT '',
			crop TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL
		)`, p.table, p.dims),
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return classifyPgError(fmt.Errorf("ensure pgvector schema: %w", err))
		}
	}
	return nil
}

func (p *PgVectorIndex) Upsert(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return ErrDimensionMismatch
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, source, content, doc_date, geo, crop, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
		ON CONFLICT (id) DO UPDATE SET source = EXCLUDED.source, content = EXCLUDED.content,
			doc_date = EXCLUDED.doc_date, geo = EXCLUDED.geo, crop = EXCLUDED.crop, embedding = EXCLUDED.embedding`, p.table)
	for _, v := range vectors {
		if len(v) != p.dims {
			return ErrDimensionMismatch
		}
	}
	// the corpus is seeded as one unit so a partial seed never serves searches
	return p.db.InTx(ctx, func(tx *sql.Tx) error {
		for i, d := range docs {
			if _, err := tx.ExecContext(ctx, stmt, d.ID, d.Source, d.Text, d.Date, d.Geo, d.Crop, vectorLiteral(vectors[i])); err != nil {
				return classifyPgError(fmt.Errorf("upsert evidence %s: %w", d.ID, err))
			}
		}
		return nil
	})
}

func (p *PgVectorIndex) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != p.dims {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		k = 10
	}

	sb := strings.Builder{}
	sb.WriteString("WITH query_vec AS (SELECT $1::vector AS qv) ")
	sb.WriteString("SELECT ec.id, ec.source, ec.content, ec.doc_date, ec.geo, ec.crop, ")
	sb.WriteString("1 - (ec.embedding <=> query_vec.qv) AS score ")
	sb.WriteString("FROM ")
	sb.WriteString(p.table)
	sb.WriteString(" ec CROSS JOIN query_vec")

	args := []interface{}{vectorLiteral(vector)}
	if crops := expandCrops(filter.Crops); len(crops) > 0 {
		sb.WriteString(" WHERE (lower(ec.crop) = ANY($2::text[]) OR ec.crop IN ('', 'all'))")
		args = append(args, pq.StringArray(crops))
	}
	sb.WriteString(" ORDER BY ec.embedding <=> query_vec.qv ASC")
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)+1))
	args = append(args, k)

	rows, err := p.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, classifyPgError(fmt.Errorf("query pgvector: %w", err))
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Doc.ID, &h.Doc.Source, &h.Doc.Text, &h.Doc.Date, &h.Doc.Geo, &h.Doc.Crop, &h.Score); err != nil {
			return nil, fmt.Errorf("scan pgvector row: %w", err)
		}
		h.ID = h.Doc.ID
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}
	return hits, nil
}

// classifyPgError marks connection class failures as transient.
func classifyPgError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return Transient(err)
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) {
		return Transient(err)
	}
	return err
}

func expandCrops(crops []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range crops {
		n := normalizeCrop(c)
		add(n)
		if n == "rice" {
			add("paddy")
		}
	}
	return out
}

func vectorLiteral(vec []float32) string {
	values := make([]string, len(vec))
	for i, v := range vec {
		values[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return fmt.Sprintf("[%s]", strings.Join(values, ","))
}
