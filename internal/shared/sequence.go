package shared

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// RowQuerier is satisfied by pgx.Tx, pgx.Conn and pgxpool.Pool. Number
// allocation runs on the caller's handle so the counter bump commits or rolls
// back together with the document it numbers.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NextDocumentNumber allocates the next sequence value for a document prefix
// in the current year and formats it as PREFIX-YEAR-NNNNNN. The counter lives
// in document_sequences; the upsert takes a row lock, so concurrent writers
// serialise on the (prefix, year) pair instead of parsing previous numbers.
func NextDocumentNumber(ctx context.Context, q RowQuerier, prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("document prefix required")
	}
	year := time.Now().UTC().Year()
	var value int64
	err := q.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, year)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, prefix, year).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("allocate %s sequence: %w", prefix, err)
	}
	return FormatDocumentNumber(prefix, year, value), nil
}

// FormatDocumentNumber renders a document number from its parts.
func FormatDocumentNumber(prefix string, year int, value int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, value)
}
