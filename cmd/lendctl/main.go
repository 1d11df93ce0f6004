package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"bookshare/internal/client/httprepo"
	"bookshare/internal/client/optimistic"
	"bookshare/internal/client/projection"
	"bookshare/internal/client/surface"
	"bookshare/internal/client/syncbus"
	"bookshare/internal/core/domain"

	"github.com/joho/godotenv"
)

const usage = `lendctl drives the lending API through the optimistic client.

Usage:
  lendctl [flags] books [query]
  lendctl [flags] request <book-id> [message]
  lendctl [flags] accept|reject|return <request-id>
  lendctl [flags] inbox

Environment:
  LENDCTL_API_URL   server base URL (default http://localhost:3000)
  LENDCTL_TOKEN     bearer token, see cmd/issue_token
  LENDCTL_USER      user id the token was issued for
  LENDCTL_TIMEOUT   per-call timeout (default 15s)
`

type app struct {
	id      domain.Identity
	proj    *projection.Projection
	engine  *optimistic.Engine
	log     *slog.Logger
	timeout time.Duration
}

func main() {
	_ = godotenv.Load()

	debug := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	a, err := newApp(logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}

	if err := a.run(args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", domain.CodeOf(err), err)
		if errors.Is(err, domain.ErrNetwork) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func newApp(logger *slog.Logger) (*app, error) {
	id := domain.Identity{
		UserID: os.Getenv("LENDCTL_USER"),
		Token:  os.Getenv("LENDCTL_TOKEN"),
	}
	if id.UserID == "" || id.Token == "" {
		return nil, fmt.Errorf("LENDCTL_USER and LENDCTL_TOKEN must be set")
	}

	timeout := optimistic.DefaultTimeout
	if raw := os.Getenv("LENDCTL_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid LENDCTL_TIMEOUT %q: %w", raw, err)
		}
		timeout = d
	}

	baseURL := os.Getenv("LENDCTL_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}

	repo := httprepo.New(baseURL, httprepo.WithTimeout(timeout))
	bus := syncbus.New()
	proj := projection.New(repo, bus, projection.WithLogger(logger))
	engine := optimistic.New(repo, proj, optimistic.WithLogger(logger), optimistic.WithTimeout(timeout))

	engine.OnOutcome(func(o optimistic.Outcome) {
		if o.Err != nil && o.Resynced {
			logger.Info("view refreshed from server after rejected mutation", "action", o.Action)
		}
	})
	bus.OnBookStatusChanged(func(bookID string, status domain.BookStatus) {
		logger.Debug("book status", "book", bookID, "status", status)
	})

	return &app{id: id, proj: proj, engine: engine, log: logger, timeout: timeout}, nil
}

func (a *app) run(cmd string, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*a.timeout)
	defer cancel()

	if err := a.proj.Refresh(ctx, a.id); err != nil {
		return err
	}

	switch cmd {
	case "books":
		opts := []surface.Option{}
		kind := surface.Listing
		if len(args) > 0 {
			kind = surface.Search
			opts = append(opts, surface.WithQuery(strings.Join(args, " ")))
		}
		view := a.mount(kind, opts...)
		defer view.Unmount()
		printBooks(view.Books())
		return nil

	case "request":
		if len(args) == 0 {
			return fmt.Errorf("%w: request needs a book id", domain.ErrValidation)
		}
		req, err := a.engine.Create(ctx, a.id, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		printRequests("sent", []domain.LendingRequest{*req})
		return nil

	case "accept", "reject", "return":
		if len(args) == 0 {
			return fmt.Errorf("%w: %s needs a request id", domain.ErrValidation, cmd)
		}
		var (
			req *domain.LendingRequest
			err error
		)
		switch cmd {
		case "accept":
			req, err = a.engine.Accept(ctx, a.id, args[0])
		case "reject":
			req, err = a.engine.Reject(ctx, a.id, args[0])
		default:
			req, err = a.engine.Return(ctx, a.id, args[0])
		}
		if err != nil {
			return err
		}
		status, _ := a.proj.Status(req.BookID)
		fmt.Printf("%s %s, book %s is now %s\n", req.ID, req.Status, req.BookID, status)
		return nil

	case "inbox":
		inbox := a.mount(surface.Inbox)
		defer inbox.Unmount()
		printRequests("received", inbox.Received())
		printRequests("sent", inbox.Sent())
		return nil
	}

	return fmt.Errorf("%w: unknown command %q", domain.ErrValidation, cmd)
}

func (a *app) mount(kind surface.Kind, opts ...surface.Option) *surface.Surface {
	s := surface.New(kind, a.id.UserID, opts...)
	a.proj.Mount(s)
	return s
}

func printBooks(books []domain.Book) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tOWNER\tSTATUS")
	for _, b := range books {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, b.OwnerID, b.Status)
	}
	_ = w.Flush()
}

func printRequests(title string, reqs []domain.LendingRequest) {
	fmt.Printf("%s (%d)\n", title, len(reqs))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range reqs {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s -> %s\n", r.ID, r.Status, r.BookTitle, r.RequesterID, r.OwnerID)
	}
	_ = w.Flush()
}
