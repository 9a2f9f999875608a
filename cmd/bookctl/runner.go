package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/msomdec/book-catalog/internal/client"
	"github.com/urfave/cli/v3"
)

// Runner holds the dependencies for CLI commands and provides one method per
// command action.
type Runner struct {
	logger *log.Logger
	output io.Writer

	configPath string
	config     *Config
	client     *client.Client
	state      *client.ListState
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a Runner. Config and client are set up per command by
// load, once flags are parsed.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{logger: opts.Logger, output: opts.Output}
}

func (r *Runner) register() []*cli.Command {
	bookFlags := func(required bool) []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Book title", Required: required},
			&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "Book author", Required: required},
			&cli.StringFlag{Name: "genre", Aliases: []string{"g"}, Usage: "Book genre", Required: required},
		}
	}
	credentialFlags := []cli.Flag{
		&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
		&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password", Required: true, Sources: cli.EnvVars("BOOKCTL_PASSWORD")},
	}

	return []*cli.Command{
		{
			Name:   "login",
			Usage:  "Sign in and save the session",
			Flags:  credentialFlags,
			Action: r.Login,
		},
		{
			Name:  "register",
			Usage: "Create an account",
			Flags: append(credentialFlags[:2:2],
				&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name"},
			),
			Action: r.Register,
		},
		{
			Name:   "logout",
			Usage:  "Sign out and forget the saved session",
			Action: r.Logout,
		},
		{
			Name:  "list",
			Usage: "List books, ten per page",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "page", Usage: "Page to show", Value: 1},
			},
			Action: r.List,
		},
		{
			Name:   "add",
			Usage:  "Add a book",
			Flags:  bookFlags(true),
			Action: r.Add,
		},
		{
			Name:      "edit",
			Usage:     "Edit a book; fields not given keep their value",
			ArgsUsage: "ID",
			Flags:     bookFlags(false),
			Action:    r.Edit,
		},
		{
			Name:      "delete",
			Usage:     "Delete a book",
			ArgsUsage: "ID",
			Action:    r.Delete,
		},
		{
			Name:      "bulk-delete",
			Usage:     "Delete several books one after another",
			ArgsUsage: "[ID...]",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "page", Usage: "Page used with --all", Value: 1},
				&cli.BoolFlag{Name: "all", Usage: "Select every book on --page"},
			},
			Action: r.BulkDelete,
		},
	}
}

// load reads the config, builds the API client and fetches nothing yet.
func (r *Runner) load(cmd *cli.Command) error {
	if cmd.Bool("verbose") {
		r.logger.SetLevel(log.DebugLevel)
	}

	r.configPath = cmd.String("config")
	config, err := LoadConfig(r.configPath)
	if err != nil {
		return err
	}
	if server := cmd.String("server"); server != "" {
		config.Server = server
	}
	r.config = config

	r.client = client.New(config.Server)
	r.client.SetSessionToken(config.Session.Token)
	r.state = client.NewListState(r.client, r.signIn)
	r.logger.Debug("loaded config", "path", r.configPath, "server", config.Server, "session", r.client.HasSession())
	return nil
}

// signIn is the ListState sign-in hook. A terminal cannot open a sign-in
// page, so it drops the stale session and leaves the prompt to main.
func (r *Runner) signIn(ctx context.Context) error {
	if r.config.Session.Token == "" {
		return nil
	}
	r.logger.Warn("session expired or missing", "email", r.config.Session.Email)
	r.config.Session = SessionConfig{}
	r.client.SetSessionToken("")
	return SaveConfig(r.configPath, r.config)
}

func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	user, err := r.client.Login(ctx, cmd.String("email"), cmd.String("password"))
	if err != nil {
		if errors.Is(err, client.ErrUnauthenticated) {
			return errors.New("invalid email or password")
		}
		return err
	}

	r.config.Session = SessionConfig{Email: user.Email, Token: r.client.SessionToken()}
	if err := SaveConfig(r.configPath, r.config); err != nil {
		return err
	}
	r.logger.Info("signed in", "email", user.Email)
	return r.writef("Signed in as %s\n", user.Email)
}

func (r *Runner) Register(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	user, err := r.client.Register(ctx, cmd.String("email"), cmd.String("password"), cmd.String("name"))
	if err != nil {
		return err
	}
	return r.writef("Registered %s. Run `bookctl login` to sign in.\n", user.Email)
}

func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	if err := r.client.Logout(ctx); err != nil {
		r.logger.Warn("server logout failed", "error", err)
	}
	r.config.Session = SessionConfig{}
	if err := SaveConfig(r.configPath, r.config); err != nil {
		return err
	}
	return r.writef("Signed out\n")
}

func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}
	if err := r.state.Refresh(ctx); err != nil {
		return err
	}
	r.state.SetPage(int(cmd.Int("page")))
	return r.writeTable()
}

func (r *Runner) Add(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	book, err := r.state.Create(ctx, client.BookInput{
		Title:  cmd.String("title"),
		Author: cmd.String("author"),
		Genre:  cmd.String("genre"),
	})
	if err != nil {
		return err
	}
	return r.writef("Added %q (%s)\n", book.Title, book.ID)
}

func (r *Runner) Edit(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}
	id := cmd.Args().First()
	if id == "" {
		return errors.New("edit needs a book ID")
	}

	if err := r.state.Refresh(ctx); err != nil {
		return err
	}
	book, ok := r.find(id)
	if !ok {
		return fmt.Errorf("book %s: %w", id, client.ErrNotFound)
	}
	if err := r.state.BeginEdit(ctx, book); err != nil {
		return err
	}

	in := client.BookInput{Title: book.Title, Author: book.Author, Genre: book.Genre}
	if cmd.IsSet("title") {
		in.Title = cmd.String("title")
	}
	if cmd.IsSet("author") {
		in.Author = cmd.String("author")
	}
	if cmd.IsSet("genre") {
		in.Genre = cmd.String("genre")
	}

	updated, err := r.state.SaveEdit(ctx, in)
	if err != nil {
		return err
	}
	return r.writef("Updated %q (%s)\n", updated.Title, updated.ID)
}

func (r *Runner) Delete(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}
	id := cmd.Args().First()
	if id == "" {
		return errors.New("delete needs a book ID")
	}

	if err := r.state.Delete(ctx, id); err != nil {
		return err
	}
	return r.writef("Deleted %s\n", id)
}

func (r *Runner) BulkDelete(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}
	if err := r.state.Refresh(ctx); err != nil {
		return err
	}

	for _, id := range cmd.Args().Slice() {
		r.state.Select(id, true)
	}
	if cmd.Bool("all") {
		r.state.SetPage(int(cmd.Int("page")))
		r.state.SelectAllOnPage(true)
	}
	if len(r.state.Selected()) == 0 {
		return errors.New("nothing selected; pass IDs or --all")
	}

	selected := len(r.state.Selected())
	r.logger.Debug("bulk delete", "selected", selected)
	result, err := r.state.BulkDelete(ctx)
	for _, f := range result.Failed {
		r.logger.Warn("not deleted", "id", f.ID, "error", f.Err)
	}
	if err != nil {
		return errors.Join(err, r.writef("Deleted %d of %d before stopping\n", len(result.Deleted), selected))
	}
	return r.writef("Deleted %d of %d\n", len(result.Deleted), selected)
}

func (r *Runner) find(id string) (client.Book, bool) {
	for _, b := range r.state.Books() {
		if b.ID == id {
			return b, true
		}
	}
	return client.Book{}, false
}

func (r *Runner) writeTable() error {
	books := r.state.CurrentPage()
	if len(books) == 0 {
		return r.writef("No books in the catalog yet.\n")
	}

	rows := make([][]string, 0, len(books))
	for _, b := range books {
		owner := "-"
		if b.OwnerID != nil {
			owner = shortID(*b.OwnerID)
		}
		rows = append(rows, []string{b.ID, b.Title, b.Author, b.Genre, owner})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "AUTHOR", "GENRE", "OWNER").
		Rows(rows...)

	return r.writef("%s\nPage %d of %d (%s books)\n",
		t.Render(), r.state.Page(), r.state.TotalPages(), strconv.Itoa(len(r.state.Books())))
}

func shortID(id string) string {
	if before, _, ok := strings.Cut(id, "-"); ok {
		return before
	}
	return id
}

func (r *Runner) writef(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
