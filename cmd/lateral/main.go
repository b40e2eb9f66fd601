// Copyright 2025 Lateral HQ
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lateralhq/lateral"
	"github.com/lateralhq/lateral/ai"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/reindex"
	"github.com/lateralhq/lateral/search"
	"github.com/lateralhq/lateral/storage"
)

func main() {
	app := &cli.App{
		Name:  "lateral",
		Usage: "Read-later library with background enrichment and search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Save a URL and enrich it in the background",
				Action: addCommand,
				Flags:  append(commonFlags(), aiFlags()...),
			},
			{
				Name:   "list",
				Usage:  "List saved items, newest first",
				Action: listCommand,
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by client status (adding, queued, error)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of items to list",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of items to skip",
					},
				),
			},
			{
				Name:   "search",
				Usage:  "Search saved items",
				Action: searchCommand,
				Flags: append(append(commonFlags(),
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Search query",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Search mode (lexical, semantic)",
						Value: "lexical",
					},
					&cli.StringFlag{
						Name:  "scope",
						Usage: "Search scope (items, chunks)",
						Value: "items",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
				), aiFlags()...),
			},
			{
				Name:   "status",
				Usage:  "Show the enrichment status of a saved item",
				Action: statusCommand,
				Flags: append(commonFlags(),
					&cli.Uint64Flag{
						Name:     "id",
						Usage:    "Item id to inspect",
						Required: true,
					},
				),
			},
			{
				Name:   "delete",
				Usage:  "Delete saved items, cancelling any running enrichment",
				Action: deleteCommand,
				Flags: append(commonFlags(),
					&cli.Uint64SliceFlag{
						Name:     "id",
						Usage:    "Item id to delete (repeatable)",
						Required: true,
					},
				),
			},
			{
				Name:  "user",
				Usage: "Manage user accounts",
				Subcommands: []*cli.Command{
					{
						Name:   "add",
						Usage:  "Create a user account",
						Action: userAddCommand,
						Flags: []cli.Flag{
							dbFlag(),
							&cli.StringFlag{
								Name:     "username",
								Usage:    "Username for the new account",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "password",
								Usage:    "Password for the new account",
								Required: true,
							},
						},
					},
					{
						Name:   "verify",
						Usage:  "Verify a username/password pair",
						Action: userVerifyCommand,
						Flags: []cli.Flag{
							dbFlag(),
							&cli.StringFlag{
								Name:     "username",
								Usage:    "Username to verify",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "password",
								Usage:    "Password to verify",
								Required: true,
							},
						},
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed a user's enriched items with the configured embedding model",
				Action: reindexCommand,
				Flags: append(append(commonFlags(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of items to process per batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N items",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Attempt budget for each embedding call",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay between retry attempts",
						Value: time.Second,
					},
				), aiFlags()...),
			},
			{
				Name:   "usage",
				Usage:  "Show model usage accounting for a user",
				Action: usageCommand,
				Flags: append(commonFlags(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries",
						Value: 50,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		Required: true,
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		dbFlag(),
		&cli.Uint64Flag{
			Name:     "user",
			Aliases:  []string{"u"},
			Usage:    "User id owning the items",
			Required: true,
		},
	}
}

func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "ai-host",
			Usage: "OpenAI-compatible service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
		},
		&cli.StringFlag{
			Name:  "summarizer-model",
			Usage: "Summarization model name",
		},
		&cli.StringFlag{
			Name:  "ai-token",
			Usage: "API token for the AI service",
		},
	}
}

func aiConfigFromFlags(c *cli.Context) *ai.Config {
	opts := []ai.ConfigOption{ai.WithHost(c.String("ai-host"))}
	if model := c.String("embedding-model"); model != "" {
		opts = append(opts, ai.WithEmbeddingModel(model))
	}
	if model := c.String("summarizer-model"); model != "" {
		opts = append(opts, ai.WithSummarizerModel(model))
	}
	if token := c.String("ai-token"); token != "" {
		opts = append(opts, ai.WithToken(token))
	}
	return ai.NewConfig(opts...)
}

func openLibrary(c *cli.Context, opts ...lateral.LibraryOption) (*lateral.Library, error) {
	library, err := lateral.Open(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	return library, nil
}

func addCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: add [flags] <url>")
	}
	rawURL := c.Args().First()
	userID := core.ID(c.Uint64("user"))

	library, err := openLibrary(c, lateral.WithAIConfig(aiConfigFromFlags(c)))
	if err != nil {
		return err
	}
	defer library.Close()

	ctx := context.Background()
	item, err := library.AddItem(ctx, userID, rawURL)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("already saved: %s", rawURL)
		}
		return err
	}
	fmt.Printf("saved %d  %s\n", item.Id, item.URL)

	// Wait for the enrichment run so Close doesn't cancel it
	for {
		current, err := library.GetItem(ctx, item.Id, userID)
		if err != nil {
			return err
		}
		if current.ClientStatus != core.ClientStatusAdding {
			printItem(current)
			if current.ClientStatus == core.ClientStatusError {
				return fmt.Errorf("enrichment failed for %s", current.URL)
			}
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func listCommand(c *cli.Context) error {
	library, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer library.Close()

	filter := storage.ItemFilter{
		Limit:  c.Int("limit"),
		Offset: c.Int("offset"),
	}
	if status := c.String("status"); status != "" {
		parsed, err := core.ParseClientStatus(status)
		if err != nil {
			return err
		}
		filter.ClientStatuses = []core.ClientStatus{parsed}
	}

	items, err := library.GetItems(context.Background(), core.ID(c.Uint64("user")), filter)
	if err != nil {
		return err
	}
	for _, item := range items {
		printItem(item)
	}
	fmt.Printf("%d item(s)\n", len(items))
	return nil
}

func searchCommand(c *cli.Context) error {
	mode, err := search.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}
	scope, err := search.ParseScope(c.String("scope"))
	if err != nil {
		return err
	}

	library, err := openLibrary(c, lateral.WithAIConfig(aiConfigFromFlags(c)))
	if err != nil {
		return err
	}
	defer library.Close()

	results, err := library.Search(context.Background(), core.ID(c.Uint64("user")), search.Request{
		Query: c.String("query"),
		Mode:  mode,
		Scope: scope,
		Limit: c.Int("limit"),
	})
	if err != nil {
		return err
	}

	for i, result := range results {
		fmt.Printf("%2d. [%.3f] %d  %s\n", i+1, result.Score, result.Item.Id, result.Item.Title)
		fmt.Printf("    %s\n", result.Item.URL)
		if result.Chunk != nil {
			fmt.Printf("    …%s\n", preview(result.Chunk.Text, 120))
		} else if result.Item.Summary != "" {
			fmt.Printf("    %s\n", preview(result.Item.Summary, 120))
		}
	}
	fmt.Printf("%d result(s)\n", len(results))
	return nil
}

func statusCommand(c *cli.Context) error {
	library, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer library.Close()

	item, err := library.GetItem(context.Background(), core.ID(c.Uint64("id")), core.ID(c.Uint64("user")))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no item %d", c.Uint64("id"))
		}
		return err
	}

	printItem(item)
	fmt.Printf("    client: %-8s since %s\n", item.ClientStatus, item.ClientStatusAt.Format(time.RFC3339))
	fmt.Printf("    server: %-12s since %s\n", item.ServerStatus, item.ServerStatusAt.Format(time.RFC3339))
	if item.Summary != "" {
		fmt.Printf("    %s\n", preview(item.Summary, 120))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	library, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer library.Close()

	raw := c.Uint64Slice("id")
	ids := make([]core.ID, len(raw))
	for i, id := range raw {
		ids[i] = core.ID(id)
	}

	if err := library.DeleteItems(context.Background(), core.ID(c.Uint64("user")), ids...); err != nil {
		return err
	}
	fmt.Printf("deleted %d item(s)\n", len(ids))
	return nil
}

func userAddCommand(c *cli.Context) error {
	library, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer library.Close()

	user, err := library.AddUser(context.Background(), c.String("username"), c.String("password"))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("username %q is taken", c.String("username"))
		}
		return err
	}
	fmt.Printf("created user %d (%s)\n", user.Id, user.Username)
	return nil
}

func userVerifyCommand(c *cli.Context) error {
	library, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer library.Close()

	user, err := library.Authenticate(context.Background(), c.String("username"), c.String("password"))
	if err != nil {
		return err
	}
	fmt.Printf("ok: user %d\n", user.Id)
	return nil
}

func reindexCommand(c *cli.Context) error {
	library, err := openLibrary(c, lateral.WithAIConfig(aiConfigFromFlags(c)))
	if err != nil {
		return err
	}
	defer library.Close()

	config := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxAttempts:    c.Int("max-attempts"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	reindexer, err := reindex.NewReindexer(
		library.ItemRepository(),
		library.ChunkRepository(),
		library.Provider().Embedder(),
		config,
		os.Stderr,
	)
	if err != nil {
		return err
	}

	_, err = reindexer.Run(context.Background(), core.ID(c.Uint64("user")))
	return err
}

func usageCommand(c *cli.Context) error {
	library, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer library.Close()

	logs, err := library.UsageLogs(context.Background(), core.ID(c.Uint64("user")), c.Int("limit"))
	if err != nil {
		return err
	}

	total := 0
	for _, entry := range logs {
		fmt.Printf("%s  item=%d  %-28s %6d tokens\n",
			entry.At.Format(time.RFC3339), entry.ItemId, entry.Operation, entry.Tokens)
		total += entry.Tokens
	}
	fmt.Printf("%d entr(ies), %d tokens\n", len(logs), total)
	return nil
}

func printItem(item *core.Item) {
	title := item.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%d  [%s/%s]  %s\n    %s\n", item.Id, item.ClientStatus, item.ServerStatus, title, item.URL)
}

func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
