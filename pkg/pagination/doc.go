// Package pagination models offset/window pagination over a remote listing.
//
// The remote listing is sorted by "recently added" and paged by an integer
// offset (start) and a fixed window (count). Pages are walked strictly in
// sequence: the next page is only requested once the previous one has been
// fully processed, because the caller may decide to stop mid-page.
//
// Example usage:
//
//	cursor := pagination.NewCursor(pagination.DefaultPageSize)
//	for {
//		page, err := fetcher.FetchPage(ctx, cursor, bundle)
//		if err != nil || page.Exhausted {
//			break
//		}
//		// process page.Items ...
//		cursor = cursor.Next()
//	}
package pagination
