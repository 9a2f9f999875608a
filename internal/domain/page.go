package domain

// PageSize is the number of books shown per page everywhere a list is paged.
const PageSize = 10

// PageBounds clamps page into [1, pages] for a collection of total items and
// returns the slice bounds of that page. An empty collection has one empty
// page.
func PageBounds(total, page int) (current, pages, start, end int) {
	pages = max(1, (total+PageSize-1)/PageSize)
	current = min(max(page, 1), pages)
	start = min((current-1)*PageSize, total)
	end = min(start+PageSize, total)
	return current, pages, start, end
}
