package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dshills/regs-mcp/internal/indexer"
	"github.com/dshills/regs-mcp/internal/mcp"
	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/internal/ranker"
	"github.com/dshills/regs-mcp/internal/searcher"
	"github.com/dshills/regs-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "regs",
		Usage:   "Regulation table-of-contents search over MCP",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"REGS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to SQLite database (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Human-readable console logs",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Embedding provider (openai, jina, compat, local, none)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve /metrics and /health on this address (e.g. 127.0.0.1:9464)",
					},
				},
			},
			{
				Name:      "import",
				Usage:     "Import a YAML or JSON table of contents",
				ArgsUsage: "<toc-file>",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "replace",
						Usage: "Delete the document's existing entries first",
					},
					&cli.BoolFlag{
						Name:  "embed",
						Usage: "Embed the imported entries",
					},
				},
			},
			{
				Name:   "embed",
				Usage:  "Generate embeddings for a document's TOC entries",
				Action: embedCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "document",
						Aliases:  []string{"d"},
						Usage:    "Document ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Discard stored embeddings and embed every entry again",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search a document's table of contents",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "document",
						Aliases:  []string{"d"},
						Usage:    "Document ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Ranking mode (hybrid, keyword)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results (1-20)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show index and embedding status",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:    "document",
						Aliases: []string{"d"},
						Usage:   "Document ID; omit for every document",
					},
				},
			},
			{
				Name:   "version",
				Usage:  "Print build information",
				Action: versionCommand,
			},
		},
	}
}

func serveCommand(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	server, err := mcp.NewServer(mcp.Deps{
		Storage:  a.store,
		Embedder: a.embedder,
		Indexer:  a.indexer,
		Searcher: a.searcher,
		Metrics:  a.metrics,
		Logger:   a.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := a.cfg.Metrics.Addr
	if c.IsSet("metrics-addr") {
		addr = c.String("metrics-addr")
	}
	if addr != "" {
		ms := metrics.NewServer(addr, a.metrics, a.log)
		go func() {
			if err := ms.Start(); err != nil {
				a.log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	a.log.Info().
		Str("version", version).
		Str("build_mode", storage.BuildMode).
		Str("driver", storage.DriverName).
		Msg("regs MCP server starting")

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("received signal, shutting down")
		return nil
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	a.log.Info().Msg("server stopped")
	return nil
}

func importCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one toc file, got %d arguments", c.NArg())
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.indexer.ImportTOCFile(c.Context, c.Args().First(), indexer.ImportOptions{
		Replace: c.Bool("replace"),
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Imported document %d: %d entries, %d pages", stats.DocumentID, stats.EntriesImported, stats.PagesImported)
	if stats.EntriesRemoved > 0 {
		fmt.Fprintf(out, " (%d entries replaced)", stats.EntriesRemoved)
	}
	fmt.Fprintf(out, " in %s\n", stats.Duration.Round(time.Millisecond))

	if !c.Bool("embed") {
		return nil
	}
	return runEmbed(c, a, stats.DocumentID, false)
}

func embedCommand(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return runEmbed(c, a, c.Int64("document"), c.Bool("force"))
}

func runEmbed(c *cli.Context, a *app, documentID int64, force bool) error {
	stats, err := a.indexer.EmbedDocument(c.Context, documentID, force)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Embedded %d of %d entries with %s/%s (%d skipped, %d failed) in %s\n",
		stats.Embedded, stats.TotalEntries, stats.Provider, stats.Model,
		stats.Skipped, stats.Failed, stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(c.App.ErrWriter, "  %s\n", msg)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return searcher.ErrEmptyQuery
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.searcher.Search(c.Context, searcher.SearchRequest{
		DocumentID: c.Int64("document"),
		Query:      query,
		Mode:       ranker.Mode(strings.ToLower(c.String("mode"))),
		Limit:      c.Int("limit"),
	})
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResults(c.App.Writer, resp)
	return nil
}

func printResults(w io.Writer, resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No matches found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSECTION\tTITLE\tPAGE\tSCORE")
	for _, r := range resp.Results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.1f\n", r.Rank, r.Entry.SectionNumber, r.Entry.Title, r.Entry.DocumentPage, r.Score)
	}
	_ = tw.Flush()

	mode := string(resp.Mode)
	if resp.Fallback {
		mode += " (keyword fallback)"
	}
	fmt.Fprintf(w, "\n%d results, mode %s, %s\n", len(resp.Results), mode, resp.Duration.Round(time.Microsecond))
}

func statusCommand(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var ids []int64
	if c.IsSet("document") {
		ids = []int64{c.Int64("document")}
	} else {
		docs, err := a.store.ListDocuments(c.Context)
		if err != nil {
			return err
		}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
	}

	out := c.App.Writer
	if a.embedder != nil {
		fmt.Fprintf(out, "Embedder: %s/%s\n", a.embedder.Provider(), a.embedder.Model())
	} else {
		fmt.Fprintln(out, "Embedder: disabled")
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No documents imported")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tENTRIES\tEMBEDDED\tPAGES\tQUERIES")
	for _, id := range ids {
		st, err := a.store.GetDocumentStatus(c.Context, id)
		if err != nil {
			return fmt.Errorf("document %d: %w", id, err)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\n",
			st.Document.ID, st.Document.Title, st.TotalEntries, st.EmbeddedEntries, st.Pages, st.QueryCount)
	}
	return tw.Flush()
}

func versionCommand(c *cli.Context) error {
	out := c.App.Writer
	fmt.Fprintf(out, "regs MCP server\n")
	fmt.Fprintf(out, "Version: %s\n", version)
	fmt.Fprintf(out, "Build Time: %s\n", buildTime)
	fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
	return nil
}
