package handler

import (
	"time"

	"github.com/msomdec/book-catalog/internal/domain"
)

// UserDTO is the JSON representation of a user. CreatedAt is omitted when
// the user is known only from a session token.
type UserDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

func toUserDTO(u *domain.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
}

func identityToUserDTO(identity *domain.Identity) UserDTO {
	return UserDTO{
		ID:          identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	}
}

// BookDTO is the JSON representation of a book.
type BookDTO struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Genre     string  `json:"genre"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
	OwnerID   *string `json:"ownerId"`
}

func toBookDTO(b *domain.Book) BookDTO {
	return BookDTO{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Genre:     b.Genre,
		CreatedAt: b.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339Nano),
		OwnerID:   b.OwnerID,
	}
}

func toBookDTOs(books []domain.Book) []BookDTO {
	dtos := make([]BookDTO, len(books))
	for i := range books {
		dtos[i] = toBookDTO(&books[i])
	}
	return dtos
}
