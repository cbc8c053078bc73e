// Package listing walks an account's catalog through the cursor paginated
// listing endpoint.
//
// A Paginator pulls one page at a time from a Source. Pagination ends when
// the upstream reports no more items, hands back a zero cursor, hands back
// a cursor that was already requested, or returns an empty page. A failed page ends the
// listing for the run; Iterator.Err reports why.
package listing
