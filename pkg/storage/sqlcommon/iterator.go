package sqlcommon

import (
	"context"
	"database/sql"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfga/mpath/pkg/storage"
)

// nodeColumns required for the SQL node iterator scanner.
var nodeColumns = []string{"id", "parent", "path", "name", "data"}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*storage.Node, error) {
	var (
		node   storage.Node
		parent sql.NullString
	)
	if err := row.Scan(&node.ID, &parent, &node.Path, &node.Name, &node.Data); err != nil {
		return nil, err
	}
	node.Parent = parent.String
	return &node, nil
}

// SQLNodeIterator is a struct that implements the storage.NodeIterator
// interface for iterating over nodes fetched from a SQL database.
//
// Nodes are fetched in pages of storage.DefaultPageSize rows, using the last row of a
// page as the lower bound of the next one. No cursor is held open between pages, so the
// rows matched by the iterator can be updated while it is in use.
type SQLNodeIterator struct {
	sb             sq.SelectBuilder
	sortByPath     bool
	pageSize       uint64
	handleSQLError errorHandlerFn

	buffer []*storage.Node // GUARDED_BY(mu)
	last   *storage.Node   // GUARDED_BY(mu)
	done   bool            // GUARDED_BY(mu)
	mu     sync.Mutex
}

// Ensures that SQLNodeIterator implements the NodeIterator interface.
var _ storage.NodeIterator = (*SQLNodeIterator)(nil)

// NewSQLNodeIterator returns a SQL node iterator over the rows selected by sb.
// sb must select the node columns and must not be ordered or limited.
func NewSQLNodeIterator(sb sq.SelectBuilder, sortByPath bool, errHandler errorHandlerFn) *SQLNodeIterator {
	return &SQLNodeIterator{
		sb:             sb,
		sortByPath:     sortByPath,
		pageSize:       storage.DefaultPageSize,
		handleSQLError: errHandler,
	}
}

func (t *SQLNodeIterator) fetchPage(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.fetchPage", trace.WithAttributes(attribute.Bool("sorted", t.sortByPath)))
	defer span.End()

	sb := t.sb.Limit(t.pageSize)
	if t.sortByPath {
		sb = sb.OrderBy("path", "id")
		if t.last != nil {
			sb = sb.Where(sq.Or{
				sq.Gt{"path": t.last.Path},
				sq.And{sq.Eq{"path": t.last.Path}, sq.Gt{"id": t.last.ID}},
			})
		}
	} else {
		sb = sb.OrderBy("id")
		if t.last != nil {
			sb = sb.Where(sq.Gt{"id": t.last.ID})
		}
	}

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		return t.handleSQLError(err)
	}
	defer rows.Close()

	page := make([]*storage.Node, 0, t.pageSize)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return t.handleSQLError(err)
		}
		page = append(page, node)
	}
	if err := rows.Err(); err != nil {
		return t.handleSQLError(err)
	}

	t.buffer = page
	if len(page) > 0 {
		t.last = page[len(page)-1]
	}
	if uint64(len(page)) < t.pageSize {
		t.done = true
	}
	return nil
}

// Next see [storage.Iterator].Next.
func (t *SQLNodeIterator) Next(ctx context.Context) (*storage.Node, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.buffer) == 0 {
		if t.done {
			return nil, storage.ErrIteratorDone
		}
		if err := t.fetchPage(ctx); err != nil {
			return nil, err
		}
		if len(t.buffer) == 0 {
			return nil, storage.ErrIteratorDone
		}
	}

	next := t.buffer[0]
	t.buffer = t.buffer[1:]
	return next, nil
}

// Stop terminates iteration.
func (t *SQLNodeIterator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer = nil
	t.done = true
}
