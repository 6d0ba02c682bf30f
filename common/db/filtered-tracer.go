package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
)

// FilteredTracer suppresses query tracing for statements touching one
// table. The crawl event hook writes log rows through the same pool, so
// tracing those inserts would log the act of logging.
type FilteredTracer struct {
	inner     pgx.QueryTracer
	skipTable string
}

type skipCtxKey struct{}

func (t *FilteredTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if strings.Contains(strings.ToLower(data.SQL), strings.ToLower(t.skipTable)) {
		// Flag the context so TraceQueryEnd skips the same statement.
		return context.WithValue(ctx, skipCtxKey{}, true)
	}

	return t.inner.TraceQueryStart(ctx, conn, data)
}

func (t *FilteredTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if ctx.Value(skipCtxKey{}) != nil {
		return
	}

	// Symmetry guard in case the start context was not propagated.
	if strings.Contains(strings.ToLower(data.CommandTag.String()), strings.ToLower(t.skipTable)) {
		return
	}

	t.inner.TraceQueryEnd(ctx, conn, data)
}
