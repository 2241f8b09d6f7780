// Package pagination parses and validates the page parameters of list
// endpoints.
//
// Pages are 1-indexed. A request for page p with size n covers rows
// (p-1)*n+1 through p*n of the ordered result:
//
//	params, err := pagination.FromQuery(r.URL.Query())
//	if err != nil {
//		// 422 with err.Error() as detail
//	}
//	rows, err := store.List(ctx, params.Offset(), params.PageSize, category)
//
// Bounds are enforced here, not by the store.
package pagination
