package view_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/msomdec/book-catalog/internal/domain"
	"github.com/msomdec/book-catalog/internal/view"
)

func makeBooks(n int, owner *string) []domain.Book {
	books := make([]domain.Book, n)
	for i := range books {
		books[i] = domain.Book{
			ID:      fmt.Sprintf("id-%02d", i),
			Title:   fmt.Sprintf("Title %02d", i),
			Author:  "Author",
			Genre:   "Genre",
			OwnerID: owner,
		}
	}
	return books
}

func TestBookList_Paginates(t *testing.T) {
	var buf bytes.Buffer
	if err := view.BookList(nil, makeBooks(23, nil), 3, nil).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Page 3 of 3 (23 books)") {
		t.Fatalf("expected page summary, got:\n%s", out)
	}
	if !strings.Contains(out, "Title 20") || strings.Contains(out, "Title 19") {
		t.Fatal("expected only the last three books on page 3")
	}
	if !strings.Contains(out, "/ui/books?page=2") {
		t.Fatal("expected a link to the previous page")
	}
}

func TestBookList_EscapesContent(t *testing.T) {
	books := []domain.Book{{ID: "x", Title: "<script>alert(1)</script>", Author: "A", Genre: "G"}}

	var buf bytes.Buffer
	if err := view.BookList(nil, books, 1, nil).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(buf.String(), "<script>alert(1)</script>") {
		t.Fatal("book title must be HTML escaped")
	}
}

func TestBookList_MarksOwnership(t *testing.T) {
	owner := "user-1"
	identity := &domain.Identity{UserID: owner}

	var buf bytes.Buffer
	if err := view.BookList(identity, makeBooks(1, &owner), 1, nil).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "yours") {
		t.Fatal("expected own book to be marked")
	}

	buf.Reset()
	if err := view.BookList(identity, makeBooks(1, nil), 1, nil).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "unowned") {
		t.Fatal("expected unowned book to be marked")
	}
}

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestHomePage_SignedIn(t *testing.T) {
	out := render(t, view.HomePage(view.Page{
		Identity: &domain.Identity{UserID: "u", DisplayName: "Reader"},
	}))

	for _, want := range []string{
		"Signed in as <strong>Reader</strong>",
		`action="/ui/logout"`,
		`id="add-book"`,
		`id="book-list"`,
		"No books in the catalog yet.",
		"Delete selected",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in page", want)
		}
	}
	if strings.Contains(out, `action="/ui/login"`) {
		t.Error("signed-in page should not show the sign-in form")
	}
}

func TestHomePage_SignedOut(t *testing.T) {
	out := render(t, view.HomePage(view.Page{
		OAuthEnabled: true,
		Login:        view.LoginForm{Email: "reader@example.com", Error: "Invalid email or password."},
		Notice:       "Please sign in to continue.",
	}))

	for _, want := range []string{
		`action="/ui/login"`,
		`formaction="/ui/register"`,
		`value="reader@example.com"`,
		"Invalid email or password.",
		`href="/auth/google"`,
		"Please sign in to continue.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in page", want)
		}
	}
	if strings.Contains(out, `id="add-book"`) {
		t.Error("signed-out page should not show the add form")
	}
}

func TestAddBookForm_KeepsValuesOnError(t *testing.T) {
	out := render(t, view.AddBookForm(view.BookForm{Title: "", Author: "Le Guin", Genre: "Fantasy", Error: "title is required"}))

	if !strings.Contains(out, `value="Le Guin"`) || !strings.Contains(out, `value="Fantasy"`) {
		t.Fatalf("expected the entered values to be kept, got:\n%s", out)
	}
	if !strings.Contains(out, "title is required") {
		t.Fatal("expected the validation message")
	}
}

func TestBookRow_Actions(t *testing.T) {
	owner := "user-1"
	identity := &domain.Identity{UserID: owner}
	book := domain.Book{ID: "b1", Title: "Dune", Author: "Herbert", Genre: "SciFi", OwnerID: &owner}

	out := render(t, view.BookRow(view.NewRow(identity, book, true)))
	for _, want := range []string{`id="book-b1"`, "/ui/books/b1/edit", "@delete(", " checked"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in own row, got:\n%s", want, out)
		}
	}

	other := "user-2"
	book.OwnerID = &other
	out = render(t, view.BookRow(view.NewRow(identity, book, false)))
	if strings.Contains(out, "/ui/books/b1/edit") || strings.Contains(out, "@delete(") {
		t.Error("someone else's book should have no edit or delete action")
	}
	if !strings.Contains(out, `type="checkbox"`) || strings.Contains(out, " checked") {
		t.Error("someone else's book should still be selectable and start unchecked")
	}

	out = render(t, view.BookRow(view.NewRow(nil, book, false)))
	if strings.Contains(out, `type="checkbox"`) {
		t.Error("anonymous visitors cannot select books")
	}
}

func TestBookList_SelectAllReflectsSelection(t *testing.T) {
	identity := &domain.Identity{UserID: "user-1"}
	books := makeBooks(2, nil)

	out := render(t, view.BookList(identity, books, 1, []string{"id-00"}))
	if strings.Contains(out, `aria-label="Select all on this page" checked`) {
		t.Error("header checkbox should be unchecked while part of the page is selected")
	}

	out = render(t, view.BookList(identity, books, 1, []string{"id-00", "id-01"}))
	if !strings.Contains(out, `aria-label="Select all on this page" checked`) {
		t.Errorf("header checkbox should be checked when the whole page is selected, got:\n%s", out)
	}
}

func TestBookEditRow(t *testing.T) {
	out := render(t, view.BookEditRow(domain.Book{ID: "b1", Title: "Dune"}))

	for _, want := range []string{`id="book-b1"`, "data-bind:title", "data-bind:author", "data-bind:genre", "@put(", "/ui/books/b1/row"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in edit row, got:\n%s", want, out)
		}
	}
}
