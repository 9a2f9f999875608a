package service

import "github.com/msomdec/book-catalog/internal/domain"

// CanMutate decides whether identity may update or delete book.
//
// Books without an owner are legacy records and any authenticated user may
// change them. This is intentionally permissive; tightening it means
// returning false for a nil OwnerID here and nowhere else.
func CanMutate(identity *domain.Identity, book *domain.Book) bool {
	if identity == nil || identity.UserID == "" || book == nil {
		return false
	}
	if book.OwnerID == nil {
		return true
	}
	return *book.OwnerID == identity.UserID
}
