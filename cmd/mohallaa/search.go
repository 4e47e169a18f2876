package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mohallaa/mohallaa/internal/config"
	"github.com/mohallaa/mohallaa/internal/store"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/remote/client"
	"github.com/mohallaa/mohallaa/pkg/search"
)

func searchCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search posts, communities, profiles, events and listings",
		Long: `Search every entity kind at once.

With a query argument the results are printed once. Without one, each
line read from stdin is treated as a keystroke burst: input is debounced
and only the latest query's results are printed.

Examples:
  mohallaa search garden
  mohallaa search --server=http://localhost:8080/v1 "water outage"
  mohallaa search < queries.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			r, closeFn, err := openRemote(cfg, server, "")
			if err != nil {
				return err
			}
			defer closeFn()

			agg := search.NewAggregator(search.DefaultSources(r),
				search.WithLimit(cfg.Search.Limit),
				search.WithSourceTimeout(cfg.Search.SourceTimeout),
				search.WithLogger(logger),
			)

			if len(args) == 1 {
				resp, err := agg.Search(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printResults(cmd.OutOrStdout(), resp)
				if len(resp.Results) == 0 {
					return resp.Err()
				}
				return nil
			}
			if stdinIsTerminal() {
				info("Type a query per line, Ctrl-D to finish")
			}
			return interactiveSearch(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), agg, cfg.Search.Debounce)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "API base URL (default: open the local database)")
	return cmd
}

// openRemote connects to server when set, otherwise opens the local store.
func openRemote(cfg *config.Config, server, token string) (remote.Remote, func(), error) {
	if server != "" {
		c, err := client.New(server, client.WithToken(token))
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}

func interactiveSearch(ctx context.Context, in io.Reader, out io.Writer, agg *search.Aggregator, debounce time.Duration) error {
	s := search.NewSearcher(agg, search.WithDebounce(debounce))
	defer s.Close()

	printed := make(chan string, 1)
	unsub := s.Subscribe(func(v search.View) {
		if v.Loading || v.Response.Query == "" {
			return
		}
		printResults(out, v.Response)
		// Keep only the latest settled query.
		select {
		case <-printed:
		default:
		}
		select {
		case printed <- v.Response.Query:
		default:
		}
	})
	defer unsub()

	var last string
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		last = sc.Text()
		s.Input(last)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(last) == "" {
		return nil
	}

	// Wait for the final query to settle.
	timeout := time.After(debounce + 30*time.Second)
	for {
		select {
		case q := <-printed:
			if q == strings.TrimSpace(last) {
				return nil
			}
		case <-timeout:
			return fmt.Errorf("search: no response for %q", last)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printResults(out io.Writer, resp search.Response) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetTitle(fmt.Sprintf("%q: %d results", resp.Query, len(resp.Results)))
	tw.AppendHeader(table.Row{"Kind", "ID", "Title", "Detail", "Created"})
	for _, r := range resp.Results {
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		tw.AppendRow(table.Row{r.Kind, r.ID, r.Title, truncate(r.Subtitle, 40), created})
	}
	tw.Render()
	for _, f := range resp.Failures {
		warn("%s search failed: %s", f.Kind, f.Message)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
