// internal/shell/shell.go
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"libranexus/internal/catalog"
	"libranexus/internal/circulation"
	"libranexus/internal/library"
	"libranexus/internal/review"
)

// ErrQuit is returned by Exec when the user asks to leave.
var ErrQuit = errors.New("quit")

var errUsage = errors.New("usage")

type command struct {
	usage   string
	minArgs int
	run     func(ctx context.Context, args []string) error
}

// Shell interprets one-line commands against a library.
type Shell struct {
	lib      *library.Library
	store    library.SnapshotStore
	key      string
	out      io.Writer
	commands map[string]command
}

// New creates a shell. store may be nil, which disables save and load.
func New(lib *library.Library, store library.SnapshotStore, key string, out io.Writer) *Shell {
	s := &Shell{lib: lib, store: store, key: key, out: out}
	s.commands = map[string]command{
		"help":          {"help", 0, s.help},
		"quit":          {"quit", 0, func(context.Context, []string) error { return ErrQuit }},
		"books":         {"books [author|title [desc]]", 0, s.books},
		"add-book":      {`add-book "title" "author" isbn`, 3, s.addBook},
		"remove-book":   {"remove-book isbn", 1, s.removeBook},
		"search":        {"search text", 1, s.search},
		"users":         {"users", 0, s.users},
		"register":      {"register name", 1, s.register},
		"checkout":      {"checkout isbn user-id", 2, s.checkOut},
		"return":        {"return isbn user-id", 2, s.giveBack},
		"status":        {"status isbn", 1, s.status},
		"history":       {"history isbn", 1, s.history},
		"overdue":       {"overdue", 0, s.overdue},
		"review":        {`review user-id isbn rating ["comment"]`, 3, s.review},
		"edit-review":   {`edit-review user-id isbn rating ["comment"]`, 3, s.editReview},
		"delete-review": {"delete-review user-id isbn", 2, s.deleteReview},
		"reviews":       {`reviews [isbn] [user-id] ["text"] [rating]`, 0, s.reviews},
		"save":          {"save", 0, s.save},
		"load":          {"load", 0, s.load},
	}
	return s
}

// Commands lists the command names, sorted.
func (s *Shell) Commands() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Exec runs a single command line. Blank lines and # comments are ignored.
func (s *Shell) Exec(ctx context.Context, line string) error {
	args, err := Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return nil
	}

	cmd, ok := s.commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	if len(args)-1 < cmd.minArgs {
		return fmt.Errorf("%w: %s", errUsage, cmd.usage)
	}
	return cmd.run(ctx, args[1:])
}

// Split breaks a line into words. Double quotes group words; a backslash
// escapes the next character inside quotes.
func Split(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quoted  bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quoted && c == '\\' && i+1 < len(line):
			i++
			current.WriteByte(line[i])
		case c == '"':
			quoted = !quoted
			inWord = true
		case !quoted && (c == ' ' || c == '\t'):
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteByte(c)
			inWord = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, nil
}

func (s *Shell) table() *tabwriter.Writer {
	return tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
}

func (s *Shell) help(context.Context, []string) error {
	for _, name := range s.Commands() {
		fmt.Fprintln(s.out, " ", s.commands[name].usage)
	}
	return nil
}

func (s *Shell) printBooks(books []catalog.Book) error {
	w := s.table()
	fmt.Fprintln(w, "ISBN\tTITLE\tAUTHOR\tSTATUS")
	for _, b := range books {
		status := "available"
		if s.lib.Circulation().Status(b.ISBN) == circulation.KindCheckout {
			status = "checked out"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ISBN, b.Title, b.Author, status)
	}
	return w.Flush()
}

func (s *Shell) books(_ context.Context, args []string) error {
	if len(args) == 0 {
		return s.printBooks(s.lib.Catalog().Books())
	}
	descending := len(args) > 1 && args[1] == "desc"
	sorted, err := s.lib.Catalog().Sort(catalog.SortKey(args[0]), descending)
	if err != nil {
		return err
	}
	return s.printBooks(sorted)
}

func (s *Shell) addBook(_ context.Context, args []string) error {
	book, err := s.lib.AddBook(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "added %s %q\n", book.ISBN, book.Title)
	return nil
}

func (s *Shell) removeBook(_ context.Context, args []string) error {
	book, err := s.lib.Catalog().RemoveBook(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "removed %s %q\n", book.ISBN, book.Title)
	return nil
}

func (s *Shell) search(_ context.Context, args []string) error {
	books, err := s.lib.Catalog().SearchByTitleOrAuthor(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return s.printBooks(books)
}

func (s *Shell) users(context.Context, []string) error {
	w := s.table()
	fmt.Fprintln(w, "ID\tNAME")
	for _, u := range s.lib.Members().Users() {
		fmt.Fprintf(w, "%s\t%s\n", u.ID, u.Name)
	}
	return w.Flush()
}

func (s *Shell) register(ctx context.Context, args []string) error {
	user, err := s.lib.RegisterUser(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "registered %s %s\n", user.Name, user.ID)
	return nil
}

func (s *Shell) checkOut(ctx context.Context, args []string) error {
	tx, err := s.lib.CheckOut(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	due, _ := s.lib.Circulation().DueDate(tx.BookISBN)
	fmt.Fprintf(s.out, "checked out %s to %s, due %s\n", tx.BookISBN, tx.UserID, due.Format(time.DateOnly))
	return nil
}

func (s *Shell) giveBack(ctx context.Context, args []string) error {
	tx, err := s.lib.Return(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "returned %s from %s\n", tx.BookISBN, tx.UserID)
	return nil
}

func (s *Shell) status(_ context.Context, args []string) error {
	st, err := s.lib.Status(args[0])
	if err != nil {
		return err
	}

	w := s.table()
	fmt.Fprintf(w, "title\t%s\n", st.Book.Title)
	fmt.Fprintf(w, "author\t%s\n", st.Book.Author)
	fmt.Fprintf(w, "checkouts\t%d of %d\n", st.CheckoutCount, s.lib.Circulation().Policy().MaxCheckouts)
	if st.CheckedOut {
		fmt.Fprintf(w, "holder\t%s\n", st.Holder)
		fmt.Fprintf(w, "due\t%s\n", st.DueDate.Format(time.RFC3339))
		fmt.Fprintf(w, "overdue\t%t\n", st.Overdue)
	} else {
		fmt.Fprintln(w, "status\tavailable")
	}
	if st.Rated {
		fmt.Fprintf(w, "rating\t%.2f\n", st.AverageRating)
	}
	return w.Flush()
}

func (s *Shell) history(_ context.Context, args []string) error {
	w := s.table()
	fmt.Fprintln(w, "WHEN\tKIND\tUSER\tID")
	for _, tx := range s.lib.Circulation().History(args[0]) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tx.Timestamp.Format(time.RFC3339), tx.Kind, tx.UserID, tx.ID)
	}
	return w.Flush()
}

func (s *Shell) overdue(context.Context, []string) error {
	overdue := s.lib.Overdue()
	if len(overdue) == 0 {
		fmt.Fprintln(s.out, "nothing overdue")
		return nil
	}
	w := s.table()
	fmt.Fprintln(w, "ISBN\tUSER\tDUE")
	for _, o := range overdue {
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.BookISBN, o.UserID, o.DueDate.Format(time.RFC3339))
	}
	return w.Flush()
}

func parseRating(s string) (float64, error) {
	rating, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("rating %q is not a number", s)
	}
	return rating, nil
}

func (s *Shell) review(_ context.Context, args []string) error {
	rating, err := parseRating(args[2])
	if err != nil {
		return err
	}
	r, err := s.lib.AddReview(args[0], args[1], rating, strings.Join(args[3:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "reviewed %s with %.1f\n", r.BookISBN, r.Rating)
	return nil
}

func (s *Shell) editReview(_ context.Context, args []string) error {
	rating, err := parseRating(args[2])
	if err != nil {
		return err
	}
	r, err := s.lib.Reviews().Edit(args[0], args[1], rating, strings.Join(args[3:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "updated review of %s to %.1f\n", r.BookISBN, r.Rating)
	return nil
}

func (s *Shell) deleteReview(_ context.Context, args []string) error {
	r, err := s.lib.Reviews().Delete(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "deleted review of %s\n", r.BookISBN)
	return nil
}

func (s *Shell) reviews(_ context.Context, args []string) error {
	var filter review.Filter
	if len(args) > 0 {
		filter.BookISBN = args[0]
	}
	if len(args) > 1 {
		filter.UserID = args[1]
	}
	if len(args) > 2 {
		filter.Text = args[2]
	}
	if len(args) > 3 {
		rating, err := parseRating(args[3])
		if err != nil {
			return err
		}
		filter.Rating = &rating
	}

	w := s.table()
	fmt.Fprintln(w, "ISBN\tUSER\tRATING\tCOMMENT")
	for _, r := range s.lib.Reviews().Find(filter) {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n", r.BookISBN, r.Author, r.Rating, r.Comment)
	}
	return w.Flush()
}

func (s *Shell) save(ctx context.Context, _ []string) error {
	if s.store == nil {
		return errors.New("no snapshot store configured")
	}
	if err := s.lib.Save(ctx, s.store, s.key); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "saved %s\n", s.key)
	return nil
}

func (s *Shell) load(ctx context.Context, _ []string) error {
	if s.store == nil {
		return errors.New("no snapshot store configured")
	}
	if err := s.lib.Load(ctx, s.store, s.key); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "loaded %s\n", s.key)
	return nil
}
