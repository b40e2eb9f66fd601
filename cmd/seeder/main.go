package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lateralhq/lateral"
	"github.com/lateralhq/lateral/ai/mock"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/extract"
	"github.com/lateralhq/lateral/pipeline"
	"github.com/lateralhq/lateral/storage"
)

// seedArticle is a pre-extracted page served without touching the network.
type seedArticle struct {
	url   string
	site  string
	title string
	body  string
}

var articles = []seedArticle{
	{
		url:   "https://example.com/engineering/append-only-logs",
		site:  "example.com",
		title: "Append-Only Logs as a Design Primitive",
		body: "The append-only log is the quiet workhorse of modern infrastructure. " +
			"Databases use it for durability, replication systems use it for ordering, and message brokers are little more than logs with subscribers. " +
			"Once you stop thinking of state as a mutable blob and start thinking of it as a fold over an ordered history, whole classes of bugs disappear. " +
			"Recovery becomes replay. Auditing becomes reading. " +
			"The trade-off is compaction: histories grow without bound, and deciding what to forget is harder than deciding what to remember. " +
			"Most systems settle on snapshots plus a truncated tail, which works until the snapshot itself becomes the bottleneck.",
	},
	{
		url:   "https://example.com/essays/reading-queues",
		site:  "example.com",
		title: "Why Reading Queues Always Overflow",
		body: "Every reading queue is a small act of optimism. " +
			"Saving an article is cheap, reading it is expensive, and the asymmetry guarantees the queue only grows. " +
			"The fix is not discipline but decay: old saves should expire gracefully instead of accusing you from the bottom of the list. " +
			"A queue that forgets is a queue you can trust. " +
			"News loses value in days, technical deep dives keep it for years, and a good system should know the difference without being told.",
	},
	{
		url:   "https://paper.example.org/vectors/embedding-survey",
		site:  "paper.example.org",
		title: "A Field Guide to Text Embeddings",
		body: "Text embeddings map language into geometry, and the geometry is where all the useful work happens. " +
			"Similar meanings land close together, so search becomes nearest-neighbor lookup instead of keyword matching. " +
			"Long documents complicate the picture because a single vector flattens their structure. " +
			"Chunking with overlap preserves local context at the cost of storage, and pooling chunk vectors recovers a document-level signal when the full text exceeds the model's window. " +
			"Normalization matters more than most tutorials admit: cosine similarity silently assumes unit length, and skipping that step produces rankings that look plausible and are subtly wrong.",
	},
	{
		url:   "https://example.com/notes/batch-writes",
		site:  "example.com",
		title: "Batching Writes Without Losing Sleep",
		body: "Batching amortizes overhead, but it also concentrates failure. " +
			"A thousand rows in one transaction means one bad row can sink the lot, so the batch size is really a blast-radius dial. " +
			"Transient connection errors deserve a retry with backoff; constraint violations do not, and conflating the two turns a data bug into an infinite loop. " +
			"The honest design admits partial progress: batches that landed stay landed, the failing batch reports precisely where it stopped, and the caller decides whether to resume or roll forward.",
	},
	{
		url:   "https://blog.example.net/posts/html-to-text",
		site:  "blog.example.net",
		title: "The Unreasonable Difficulty of HTML to Text",
		body: "Extracting readable text from a web page sounds like a solved problem until you try it. " +
			"Navigation bars, cookie banners and footers all masquerade as content, while the actual article hides in divs with machine-generated class names. " +
			"Metadata helps when it exists: open graph tags name the title and site, canonical links cut through tracking parameters, and published dates arrive in a dozen competing formats. " +
			"The pragmatic approach is structural, skip the elements that never hold prose, keep headings and paragraphs and lists, and accept that perfection is a moving target maintained by people who do not want you to parse their pages.",
	},
	{
		url:   "https://example.com/systems/cancellation",
		site:  "example.com",
		title: "Cancellation Is a Feature, Not an Afterthought",
		body: "Background work that cannot be cancelled is background work that will eventually write over something you deleted. " +
			"The discipline is simple to state and easy to skip: every long-running task carries a context, every deletion cancels the task and waits for it to stop, and only then touches the data. " +
			"Waiting is the part people forget. " +
			"Cancellation without waiting is a race with politer manners, because the task may still be mid-write when the delete lands. " +
			"A registry of running tasks keyed by resource makes the whole pattern mechanical instead of heroic.",
	},
}

var (
	dbPath   = flag.String("db", "./library_db", "database directory")
	username = flag.String("user", "demo", "demo account username")
	password = flag.String("password", "demo-password", "demo account password")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// seedExtractor serves the builtin articles by URL.
type seedExtractor struct {
	byURL map[string]seedArticle
}

func newSeedExtractor() *seedExtractor {
	byURL := make(map[string]seedArticle, len(articles))
	for _, article := range articles {
		byURL[article.url] = article
	}
	return &seedExtractor{byURL: byURL}
}

func (e *seedExtractor) Extract(ctx context.Context, rawURL string) (*extract.Content, error) {
	article, ok := e.byURL[rawURL]
	if !ok {
		return nil, fmt.Errorf("no seed article for %s", rawURL)
	}
	return &extract.Content{
		URL:        article.url,
		Title:      article.title,
		SourceSite: article.site,
		Markdown:   "# " + article.title + "\n\n" + article.body,
		Text:       article.body,
	}, nil
}

func main() {
	library, err := lateral.Open(*dbPath,
		lateral.WithProvider(mock.NewMockProvider()),
		lateral.WithExtractor(newSeedExtractor()),
		lateral.WithPipelineOptions(pipeline.WithTokenCounter(pipeline.ApproximateTokenCounter)),
	)
	if err != nil {
		panic(err)
	}
	defer library.Close()

	ctx := context.Background()

	user, err := library.AddUser(ctx, *username, *password)
	if errors.Is(err, storage.ErrDuplicateKey) {
		user, err = library.UserRepository().GetUserByUsername(ctx, *username)
	}
	if err != nil {
		panic(err)
	}
	slog.Info("seeding library", "db", *dbPath, "user", user.Username, "user_id", user.Id)

	added := 0
	for _, article := range articles {
		item, err := library.AddItem(ctx, user.Id, article.url)
		if errors.Is(err, storage.ErrDuplicateKey) {
			slog.Info("already saved", "url", article.url)
			continue
		}
		if err != nil {
			panic(err)
		}
		slog.Info("saved", "item_id", item.Id, "url", item.URL)
		added++
	}

	// Let the enrichment runs drain before closing
	registry := library.Pipeline().Registry()
	for registry.Len() > 0 {
		time.Sleep(50 * time.Millisecond)
	}

	items, err := library.GetItems(ctx, user.Id, storage.ItemFilter{})
	if err != nil {
		panic(err)
	}
	queued := 0
	for _, item := range items {
		if item.ClientStatus == core.ClientStatusQueued {
			queued++
		}
	}
	slog.Info("seed complete", "added", added, "total", len(items), "enriched", queued)
}
