package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orders-dashboard/internal/domain/client"
)

// PhoneIndex confirms bloom filter hits against the stored clients.
type PhoneIndex interface {
	PhoneExists(ctx context.Context, phone string) (bool, error)
}

// ClientSink persists a batch of new clients.
type ClientSink interface {
	CopyClients(ctx context.Context, clients []client.Client) (int64, error)
}

// Stats summarises an import run.
type Stats struct {
	Rows       int64
	Invalid    int64
	Duplicates int64
	Imported   int64
}

// parseRecord turns full_name;phone;address;cashback into a client.
// Address and cashback may be omitted.
func parseRecord(rec []string) (*client.Client, error) {
	if len(rec) < 2 || len(rec) > 4 {
		return nil, errors.Errorf("expected 2 to 4 fields, got %d", len(rec))
	}
	p := client.Profile{
		FullName: strings.TrimSpace(rec[0]),
		Phone:    strings.TrimSpace(rec[1]),
	}
	if len(rec) > 2 {
		p.Address = strings.TrimSpace(rec[2])
	}
	cashback := decimal.Zero
	if len(rec) > 3 {
		if raw := strings.TrimSpace(rec[3]); raw != "" {
			v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
			if err != nil {
				return nil, errors.Wrapf(err, "parse cashback %q", raw)
			}
			cashback = v
		}
	}
	return client.New(p, cashback)
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "full_name")
}

// deduper admits each phone once. The bloom filter holds every stored and
// admitted phone; a hit is confirmed exactly before a row is dropped.
type deduper struct {
	filter   *bloom.BloomFilter
	admitted map[string]struct{}
	index    PhoneIndex

	falsePositives int
}

func newDeduper(capacity uint, fpr float64, index PhoneIndex) *deduper {
	return &deduper{
		filter:   bloom.NewWithEstimates(capacity, fpr),
		admitted: make(map[string]struct{}),
		index:    index,
	}
}

// seed registers a phone already present in the store.
func (d *deduper) seed(phone string) {
	d.filter.AddString(phone)
}

// admit reports whether phone has not been seen before and records it.
func (d *deduper) admit(ctx context.Context, phone string) (bool, error) {
	if d.filter.TestString(phone) {
		if _, ok := d.admitted[phone]; ok {
			return false, nil
		}
		exists, err := d.index.PhoneExists(ctx, phone)
		if err != nil {
			return false, errors.Wrap(err, "confirm phone")
		}
		if exists {
			return false, nil
		}
		d.falsePositives++
	}
	d.filter.AddString(phone)
	d.admitted[phone] = struct{}{}
	return true, nil
}

// importer streams rows from every file concurrently into a single writer
// that deduplicates and copies them in batches.
type importer struct {
	lg        *zap.Logger
	dedup     *deduper
	sink      ClientSink
	batchSize int
}

func (im *importer) run(ctx context.Context, files []string) (Stats, error) {
	var (
		stats   Stats
		rows    = make(chan client.Client, im.batchSize)
		readers sync.WaitGroup
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range files {
		readers.Add(1)
		g.Go(func() error {
			defer readers.Done()
			return im.readFile(ctx, path, rows, &stats)
		})
	}
	g.Go(func() error {
		readers.Wait()
		close(rows)
		return nil
	})
	g.Go(func() error {
		return im.write(ctx, rows, &stats)
	})

	err := g.Wait()
	return stats, err
}

func (im *importer) readFile(ctx context.Context, path string, out chan<- client.Client, stats *Stats) error {
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

	var count int64
	err = readRecords(gz, func(line int, rec []string) error {
		if line == 1 && isHeader(rec) {
			return nil
		}
		atomic.AddInt64(&stats.Rows, 1)
		count++

		c, err := parseRecord(rec)
		if err != nil {
			atomic.AddInt64(&stats.Invalid, 1)
			im.lg.Warn("Skipping invalid row",
				zap.String("file", path),
				zap.Int("line", line),
				zap.Error(err),
			)
			return nil
		}
		select {
		case out <- *c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	im.lg.Info("File read", zap.String("file", path), zap.Int64("rows", count))
	return nil
}

// readRecords calls fn for every semicolon separated record of r. Lines
// are numbered from 1.
func readRecords(r io.Reader, fn func(line int, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// Malformed quoting is reported as an empty record.
				if err := fn(parseErr.Line, nil); err != nil {
					return err
				}
				continue
			}
			return err
		}
		line, _ := cr.FieldPos(0)
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

func (im *importer) write(ctx context.Context, in <-chan client.Client, stats *Stats) error {
	batch := make([]client.Client, 0, im.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.sink.CopyClients(ctx, batch)
		if err != nil {
			return errors.Wrap(err, "copy clients")
		}
		stats.Imported += n
		im.lg.Info("Batch imported", zap.Int64("clients", n), zap.Int64("total", stats.Imported))
		batch = batch[:0]
		return nil
	}

	for c := range in {
		ok, err := im.dedup.admit(ctx, c.Phone)
		if err != nil {
			return err
		}
		if !ok {
			stats.Duplicates++
			continue
		}
		batch = append(batch, c)
		if len(batch) == im.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
