package report

import (
	"context"
	"iter"

	"github.com/justapithecus/maxreport/types"
)

// PageIterator pulls pages of an inline report on demand. Each call to
// Next performs exactly one retried request, so a consumer that stops
// calling Next stops the fetch. The sequence ends after the first page
// shorter than the page size; a full page always triggers one more
// request, even when it turns out empty. Iterators are single-pass.
type PageIterator struct {
	c      *Client
	q      types.ReportQuery
	offset int
	page   *types.Page
	err    error
	done   bool
}

// Pages returns an iterator over q in pages of q.PageSize rows.
// Query validation errors surface from Err after the first Next.
func (c *Client) Pages(q types.ReportQuery) *PageIterator {
	q = q.WithDefaults(c.now())
	it := &PageIterator{c: c, q: q}
	if err := q.Validate(); err != nil {
		it.err = err
		it.done = true
		return it
	}
	c.collector.IncFetchStarted()
	return it
}

// Next fetches the next page. It returns false once the sequence has
// ended or failed; check Err to tell the two apart.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}

	req := &PageRequest{Offset: it.offset, Size: it.q.PageSize}
	table, err := it.c.fetchReport(ctx, it.q, req)
	if err != nil {
		it.err = &PageError{Offset: req.Offset, PageSize: req.Size, Err: err}
		it.page = nil
		it.done = true
		it.c.collector.IncFetchFailed()
		return false
	}

	it.page = &types.Page{Table: table, Offset: req.Offset, Size: req.Size}
	it.c.collector.AddPage(table.Len())
	it.c.logger.Info("page fetched", map[string]any{
		"offset":    req.Offset,
		"page_size": req.Size,
		"rows":      table.Len(),
	})

	if it.page.Last() {
		it.done = true
		if req.Offset == 0 && table.Empty() {
			it.c.collector.IncFetchEmpty()
		} else {
			it.c.collector.IncFetchSucceeded()
		}
	} else {
		it.offset += req.Size
	}
	return true
}

// Page returns the page fetched by the last successful Next.
func (it *PageIterator) Page() *types.Page {
	return it.page
}

// Err returns the error that ended the sequence, or nil.
func (it *PageIterator) Err() error {
	return it.err
}

// All adapts the iterator for range-over-func. A failure is yielded once
// as the final element with a nil page.
func (it *PageIterator) All(ctx context.Context) iter.Seq2[*types.Page, error] {
	return func(yield func(*types.Page, error) bool) {
		for it.Next(ctx) {
			if !yield(it.Page(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Collect drains the iterator into one table. On failure the rows
// gathered so far are returned with the error.
func Collect(ctx context.Context, it *PageIterator) (*types.Table, error) {
	out := types.NewTable()
	for it.Next(ctx) {
		out.Append(it.Page().Table)
	}
	return out, it.Err()
}
