package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-service/internal/domain/product"
	"github.com/xenking/order-service/internal/repository"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 1 << 20
)

var minUnitPrice = decimal.New(1, -2)

// feed is the parsed content of one supplier file.
type feed struct {
	path     string
	products []product.Product
	filter   *bloom.BloomFilter
	skipped  int
	repeated int
}

func main() {
	var (
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&pattern, "files", "data/products-*.jsonl.gz", "glob of gzip JSON-lines product feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and merge feeds without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, dryRun); err != nil {
		slog.Error("product ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("product ingest completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %s", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", pattern)
	}
	sort.Strings(files)

	// Pass 1: parse feeds concurrently.
	slog.Info("pass 1: parsing feeds", slog.Int("files", len(files)))

	feeds, err := parseFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	// Pass 2: merge, later feeds override earlier ones.
	slog.Info("pass 2: merging feeds")

	merged, overridden := merge(feeds)

	slog.Info("feeds merged",
		slog.Int("products", len(merged)),
		slog.Int("overridden", overridden),
	)

	if dryRun || len(merged) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeProducts(ctx, repository.NewProductRepository(pool), merged); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// parseFeeds decodes every file on its own goroutine.
func parseFeeds(ctx context.Context, files []string) ([]*feed, error) {
	feeds := make([]*feed, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f, err := parseFeed(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			feeds[i] = f
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return feeds, nil
}

func parseFeed(ctx context.Context, path string) (*feed, error) {
	f := &feed{
		path:   path,
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	seen := make(map[string]int)
	var line uint64
	err := streamGzFile(ctx, path, func(raw []byte) {
		line++
		if line%progressEvery == 0 {
			slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("lines", line))
		}

		var p product.Product
		if err := p.Decode(jx.DecodeBytes(raw)); err != nil || !valid(p) {
			f.skipped++
			return
		}
		if at, ok := seen[p.ProductID]; ok {
			f.products[at] = p
			f.repeated++
			return
		}
		seen[p.ProductID] = len(f.products)
		f.products = append(f.products, p)
		f.filter.AddString(p.ProductID)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("pass 1 complete",
		slog.String("file", path),
		slog.Int("products", len(f.products)),
		slog.Int("skipped", f.skipped),
		slog.Int("repeated", f.repeated),
	)
	return f, nil
}

func valid(p product.Product) bool {
	return p.ProductID != "" && len(p.ProductID) <= 50 && p.Name != "" &&
		p.Quantity >= 0 && !p.UnitPrice.LessThan(minUnitPrice)
}

// merge folds feeds in order, a later feed overriding earlier ones. Product
// ids are unique within a feed, so the merged index is only consulted when
// an earlier feed's bloom filter reports the id may be present.
func merge(feeds []*feed) ([]product.Product, int) {
	index := make(map[string]int)
	var (
		merged     []product.Product
		overridden int
	)
	for i, f := range feeds {
		for _, p := range f.products {
			if mayExistBefore(feeds[:i], p.ProductID) {
				if at, ok := index[p.ProductID]; ok {
					merged[at] = p
					overridden++
					continue
				}
			}
			index[p.ProductID] = len(merged)
			merged = append(merged, p)
		}
	}
	return merged, overridden
}

func mayExistBefore(feeds []*feed, productID string) bool {
	for _, f := range feeds {
		if f.filter.TestString(productID) {
			return true
		}
	}
	return false
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		fn(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeProducts inserts the merged products missing from the catalog.
// Existing products, and their stock, are left as they are.
func writeProducts(ctx context.Context, repo *repository.ProductRepository, products []product.Product) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	var created int
	for i := range products {
		ok, err := repo.CreateIfAbsent(ctx, &products[i])
		if err != nil {
			return errors.Wrapf(err, "insert product %s", products[i].ProductID)
		}
		if ok {
			created++
		}

		if (i+1)%100 == 0 || i+1 == len(products) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(products)))
		}
	}

	slog.Info("products written",
		slog.Int("created", created),
		slog.Int("skipped", len(products)-created),
	)

	return nil
}
