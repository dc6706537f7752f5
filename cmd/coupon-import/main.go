// Command coupon-import bulk-loads percent coupons from gzip-compressed CSV
// files with rows of code,discount_percent,valid_until[,max_uses].
//
// A code listed more than once across the inputs is ambiguous and skipped.
// Duplicates are found in two passes: the first fills a bloom filter and
// remembers codes it reports as already seen, the second counts only those
// exactly. Codes that already exist in the database are left untouched.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// Importer persists a batch of coupons, returning how many were new.
type Importer interface {
	Import(ctx context.Context, coupons []coupon.Coupon) (int, error)
}

type options struct {
	files     []string
	capacity  uint
	batchSize int
	workers   int
}

// stats summarizes an import run.
type stats struct {
	rows       int
	duplicates int
	invalid    int
	inserted   int
}

func main() {
	var (
		databaseURL string
		opts        options
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.capacity, "expected-codes", 10_000_000, "expected number of codes, sizes the bloom filter")
	flag.IntVar(&opts.batchSize, "batch-size", 1000, "coupons per insert batch")
	flag.IntVar(&opts.workers, "workers", 4, "concurrent insert batches")
	flag.Parse()
	opts.files = flag.Args()

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
	if len(opts.files) == 0 {
		lg.Fatal("Usage: coupon-import [flags] file.csv.gz...")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		lg.Fatal("Connect to database", zap.Error(err))
	}
	defer pool.Close()

	st, err := run(ctx, lg, repository.NewCouponRepository(pool), opts)
	if err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed",
		zap.Int("rows", st.rows),
		zap.Int("duplicates", st.duplicates),
		zap.Int("invalid", st.invalid),
		zap.Int("inserted", st.inserted),
	)
}

func run(ctx context.Context, lg *zap.Logger, repo Importer, opts options) (stats, error) {
	if opts.batchSize <= 0 {
		opts.batchSize = 1000
	}
	if opts.workers <= 0 {
		opts.workers = 1
	}

	lg.Info("Pass 1: building bloom filter", zap.Strings("files", opts.files))
	suspects, err := findSuspects(ctx, lg, opts.files, opts.capacity)
	if err != nil {
		return stats{}, errors.Wrap(err, "find suspects")
	}
	lg.Info("Pass 1 complete", zap.Int("suspects", len(suspects)))

	lg.Info("Pass 2: importing")
	return importFiles(ctx, lg, repo, opts, suspects)
}

// findSuspects returns every code the bloom filter had already seen when it
// was read. Each duplicated code is among them; false positives are too.
func findSuspects(ctx context.Context, lg *zap.Logger, files []string, capacity uint) (map[string]struct{}, error) {
	filter := bloom.NewWithEstimates(max(capacity, 1), bloomFPR)
	suspects := make(map[string]struct{})
	var count int
	for _, path := range files {
		if err := streamGzFile(ctx, path, func(rec []string) {
			code := coupon.NormalizeCode(rec[0])
			if code == "" {
				return
			}
			if filter.TestAndAddString(code) {
				suspects[code] = struct{}{}
			}
			count++
			if count%progressEvery == 0 {
				lg.Info("Pass 1 progress", zap.Int("codes", count))
			}
		}); err != nil {
			return nil, err
		}
	}
	return suspects, nil
}

// importFiles streams the files again. Codes outside suspects are unique and
// go straight to the database; suspects are held until their exact count is
// known.
func importFiles(ctx context.Context, lg *zap.Logger, repo Importer, opts options, suspects map[string]struct{}) (stats, error) {
	var (
		st   stats
		held = make(map[string][]coupon.Coupon)
		now  = time.Now()
	)

	batches := make(chan []coupon.Coupon)
	inserted := make(chan int, opts.workers)
	g, gctx := errgroup.WithContext(ctx)
	for range opts.workers {
		g.Go(func() error {
			total := 0
			for batch := range batches {
				n, err := repo.Import(gctx, batch)
				if err != nil {
					return errors.Wrap(err, "import batch")
				}
				total += n
			}
			inserted <- total
			return nil
		})
	}

	g.Go(func() error {
		defer close(batches)
		send := func(batch []coupon.Coupon) error {
			select {
			case batches <- batch:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		batch := make([]coupon.Coupon, 0, opts.batchSize)
		var sendErr error
		for _, path := range opts.files {
			if err := streamGzFile(gctx, path, func(rec []string) {
				if sendErr != nil {
					return
				}
				st.rows++
				c, err := parseRecord(rec, now)
				if err != nil {
					st.invalid++
					lg.Debug("Skip invalid row", zap.Strings("row", rec), zap.Error(err))
					return
				}
				if _, ok := suspects[c.Code]; ok {
					held[c.Code] = append(held[c.Code], c)
					return
				}
				batch = append(batch, c)
				if len(batch) == opts.batchSize {
					sendErr = send(batch)
					batch = make([]coupon.Coupon, 0, opts.batchSize)
				}
			}); err != nil {
				return err
			}
			if sendErr != nil {
				return sendErr
			}
		}

		for code, cs := range held {
			if len(cs) > 1 {
				st.duplicates += len(cs)
				lg.Warn("Skip duplicated code", zap.String("code", code), zap.Int("occurrences", len(cs)))
				continue
			}
			batch = append(batch, cs[0])
			if len(batch) == opts.batchSize {
				if err := send(batch); err != nil {
					return err
				}
				batch = make([]coupon.Coupon, 0, opts.batchSize)
			}
		}
		if len(batch) > 0 {
			return send(batch)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return st, err
	}
	close(inserted)
	for n := range inserted {
		st.inserted += n
	}
	return st, nil
}

// parseRecord converts a CSV row into a coupon. Rows that would be
// rejected by the API, such as an expiry not after now or a cap past
// coupon.MaxUsesLimit, are invalid too.
func parseRecord(rec []string, now time.Time) (coupon.Coupon, error) {
	if len(rec) < 3 {
		return coupon.Coupon{}, errors.Errorf("want at least 3 fields, got %d", len(rec))
	}
	c := coupon.Coupon{
		ID:        uuid.New().String(),
		Code:      coupon.NormalizeCode(rec[0]),
		CreatedAt: now,
	}
	if c.Code == "" {
		return coupon.Coupon{}, errors.New("empty code")
	}

	pct, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "discount percent")
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Coupon{}, errors.Errorf("discount percent %s out of range", pct)
	}
	c.DiscountPercent = pct

	validUntil, err := parseTime(strings.TrimSpace(rec[2]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "valid until")
	}
	c.ValidUntil = validUntil

	if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(rec[3]))
		if err != nil {
			return coupon.Coupon{}, errors.Errorf("invalid max uses %q", rec[3])
		}
		c.MaxUses = &n
	}
	if err := c.CheckAttributes(now); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// Date-only values expire at the end of that day (UTC).
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(24*time.Hour - time.Nanosecond), nil
}

// streamGzFile opens a gzip-compressed CSV file and calls fn for each
// record. A header row starting with "code" is skipped.
func streamGzFile(ctx context.Context, path string, fn func(rec []string)) error {
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

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	for line := 0; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}
		fn(rec)
	}
}
