package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/voucher"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 100_000
)

// store is the subset of the voucher repository the ingest needs.
type store interface {
	ExistingCodes(ctx context.Context, fn func(code string)) error
	FindByCode(ctx context.Context, code string) (*voucher.Voucher, error)
	UpsertVouchers(ctx context.Context, vouchers []voucher.Voucher) error
}

func main() {
	var (
		dataDir       string
		databaseURL   string
		distributorID string
		capacity      uint
		workers       int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz campaign files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&distributorID, "distributor", "", "distributor issuing the vouchers")
	flag.UintVar(&capacity, "capacity", 1_000_000, "expected number of existing voucher codes")
	flag.IntVar(&workers, "workers", 4, "files decoded concurrently")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if distributorID == "" {
		lg.Fatal("Distributor is required: set --distributor")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		lg.Fatal("List campaign files", zap.Error(err))
	}
	if len(files) == 0 {
		lg.Info("No campaign files found", zap.String("dir", dataDir))
		return
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		lg.Fatal("Connect to database", zap.Error(err))
	}
	defer pool.Close()

	in := &ingester{
		lg:            lg,
		store:         postgres.NewVoucherRepository(pool),
		distributorID: distributorID,
		workers:       workers,
	}
	stats, err := in.run(ctx, files, capacity)
	if err != nil {
		lg.Fatal("Voucher ingest failed", zap.Error(err))
	}

	lg.Info("Voucher ingest completed successfully",
		zap.Int("files", len(files)),
		zap.Int("inserted", stats.inserted),
		zap.Int("existing", stats.existing),
		zap.Int("duplicates", stats.duplicates),
		zap.Int("invalid", stats.invalid),
	)
}

type ingestStats struct {
	inserted   int
	existing   int
	duplicates int
	invalid    int
}

type ingester struct {
	lg            *zap.Logger
	store         store
	distributorID string
	workers       int

	mu      sync.Mutex
	known   *bloom.BloomFilter
	pending map[string]voucher.Voucher
	stats   ingestStats
}

// run loads existing codes into a bloom filter, streams every campaign file
// concurrently and upserts codes not seen before. The first occurrence of a
// code across files wins.
func (in *ingester) run(ctx context.Context, files []string, capacity uint) (ingestStats, error) {
	in.known = bloom.NewWithEstimates(max(capacity, 1), bloomFPR)
	in.pending = make(map[string]voucher.Voucher)

	var existing int
	if err := in.store.ExistingCodes(ctx, func(code string) {
		in.known.AddString(code)
		existing++
	}); err != nil {
		return in.stats, errors.Wrap(err, "load existing codes")
	}
	in.lg.Info("Loaded existing codes", zap.Int("count", existing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(in.workers, 1))
	for _, f := range files {
		g.Go(func() error {
			return in.scanFile(gctx, f)
		})
	}
	if err := g.Wait(); err != nil {
		return in.stats, err
	}

	if err := in.flush(ctx); err != nil {
		return in.stats, err
	}
	return in.stats, nil
}

func (in *ingester) scanFile(ctx context.Context, path string) error {
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

	lg := in.lg.With(zap.String("file", filepath.Base(path)))
	return in.scan(ctx, lg, gz)
}

func (in *ingester) scan(ctx context.Context, lg *zap.Logger, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	var lineNo int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		if lineNo%progressEvery == 0 {
			lg.Info("Scan progress", zap.Int("lines", lineNo))
		}

		v, ok, err := parseLine(scanner.Text(), in.distributorID)
		if err != nil {
			lg.Warn("Skipping invalid line", zap.Int("line", lineNo), zap.Error(err))
			in.mu.Lock()
			in.stats.invalid++
			in.mu.Unlock()
			continue
		}
		if !ok {
			continue
		}
		if err := in.add(ctx, v); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	lg.Info("Scan complete", zap.Int("lines", lineNo))
	return nil
}

// add queues v unless the code is already stored or queued. A bloom hit is
// confirmed against the database since the filter may report false
// positives.
func (in *ingester) add(ctx context.Context, v voucher.Voucher) error {
	in.mu.Lock()
	if _, ok := in.pending[v.Code]; ok {
		in.stats.duplicates++
		in.mu.Unlock()
		return nil
	}
	maybeKnown := in.known.TestString(v.Code)
	in.mu.Unlock()

	if maybeKnown {
		_, err := in.store.FindByCode(ctx, v.Code)
		switch {
		case err == nil:
			in.mu.Lock()
			in.stats.existing++
			in.mu.Unlock()
			return nil
		case !errors.Is(err, voucher.ErrNotFound):
			return errors.Wrapf(err, "check code %s", v.Code)
		}
	}

	in.mu.Lock()
	if _, ok := in.pending[v.Code]; ok {
		in.stats.duplicates++
		in.mu.Unlock()
		return nil
	}
	in.pending[v.Code] = v
	full := len(in.pending) >= batchSize
	in.mu.Unlock()

	if full {
		return in.flush(ctx)
	}
	return nil
}

// flush writes the queued vouchers. Flushed codes are added to the bloom
// filter so later duplicates are caught there.
func (in *ingester) flush(ctx context.Context) error {
	in.mu.Lock()
	batch := make([]voucher.Voucher, 0, len(in.pending))
	for _, v := range in.pending {
		batch = append(batch, v)
		in.known.AddString(v.Code)
	}
	clear(in.pending)
	in.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := in.store.UpsertVouchers(ctx, batch); err != nil {
		return errors.Wrap(err, "write vouchers")
	}

	in.mu.Lock()
	in.stats.inserted += len(batch)
	in.lg.Info("Write progress", zap.Int("written", in.stats.inserted))
	in.mu.Unlock()
	return nil
}
