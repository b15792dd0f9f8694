package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

// --- Mock implementations ---

type memStore struct {
	mu      sync.Mutex
	phones  map[string]bool
	clients []client.Client
	lookups int
	copyErr error
}

func newMemStore(phones ...string) *memStore {
	s := &memStore{phones: make(map[string]bool)}
	for _, p := range phones {
		s.phones[p] = true
	}
	return s
}

func (s *memStore) PhoneExists(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	return s.phones[phone], nil
}

func (s *memStore) CopyClients(_ context.Context, batch []client.Client) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copyErr != nil {
		return 0, s.copyErr
	}
	for _, c := range batch {
		s.phones[c.Phone] = true
		s.clients = append(s.clients, c)
	}
	return int64(len(batch)), nil
}

// --- Helpers ---

func writeGz(t *testing.T, dir, name, content string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

// --- Tests ---

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name     string
		rec      []string
		wantErr  bool
		invalid  bool
		cashback string
		address  string
	}{
		{name: "full row", rec: []string{"Anna Ivanova", "+7900", "Lenina 1", "150.50"}, cashback: "150.5", address: "Lenina 1"},
		{name: "comma decimal", rec: []string{"Anna", "+7900", "", "12,5"}, cashback: "12.5"},
		{name: "no cashback", rec: []string{"Anna", "+7900", "Mira 2"}, cashback: "0", address: "Mira 2"},
		{name: "name and phone only", rec: []string{" Anna ", " +7900 "}, cashback: "0"},
		{name: "too few fields", rec: []string{"Anna"}, wantErr: true},
		{name: "too many fields", rec: []string{"a", "b", "c", "d", "e"}, wantErr: true},
		{name: "bad cashback", rec: []string{"Anna", "+7900", "", "lots"}, wantErr: true},
		{name: "negative cashback", rec: []string{"Anna", "+7900", "", "-1"}, wantErr: true, invalid: true},
		{name: "empty phone", rec: []string{"Anna", " ", "", "1"}, wantErr: true, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseRecord(tt.rec)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.invalid, errors.Is(err, validation.ErrInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "+7900", c.Phone)
			assert.Equal(t, tt.address, c.Address)
			assert.Equal(t, tt.cashback, c.Cashback.String())
		})
	}
}

func TestReadRecords(t *testing.T) {
	input := "full_name;phone\nAnna;+7900\n\"Boris \"\"B\"\"\";+7901;Mira 5;3\n"

	var lines []int
	var names []string
	err := readRecords(strings.NewReader(input), func(line int, rec []string) error {
		lines = append(lines, line)
		names = append(names, rec[0])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, lines)
	assert.Equal(t, []string{"full_name", "Anna", `Boris "B"`}, names)
}

func TestDeduper(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("+7000")
	d := newDeduper(1000, 0.01, store)
	d.seed("+7000")

	ok, err := d.admit(ctx, "+7000")
	require.NoError(t, err)
	assert.False(t, ok, "stored phone must be rejected")
	assert.Equal(t, 1, store.lookups, "bloom hit is confirmed against the store")

	ok, err = d.admit(ctx, "+7001")
	require.NoError(t, err)
	assert.True(t, ok)

	lookups := store.lookups
	ok, err = d.admit(ctx, "+7001")
	require.NoError(t, err)
	assert.False(t, ok, "repeated phone must be rejected")
	assert.Equal(t, lookups, store.lookups, "phones admitted in this run need no store lookup")
}

func TestImporter_Run(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.csv.gz", "full_name;phone;address;cashback\n"+
			"Anna Ivanova;+7001;Lenina 1;10\n"+
			"Boris Petrov;+7002;;0\n"+
			"Broken Row\n"+
			"Old Client;+7000;;5\n"),
		writeGz(t, dir, "b.csv.gz", "Elena Smirnova;+7003;Mira 5;1.5\n"+
			"Anna Again;+7001;;0\n"+
			"Negative;+7004;;-3\n"),
	}

	store := newMemStore("+7000")
	dedup := newDeduper(1000, 0.001, store)
	dedup.seed("+7000")

	im := &importer{lg: zap.NewNop(), dedup: dedup, sink: store, batchSize: 2}
	stats, err := im.run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, Stats{Rows: 7, Invalid: 2, Duplicates: 2, Imported: 3}, stats)

	var phones []string
	for _, c := range store.clients {
		phones = append(phones, c.Phone)
	}
	assert.ElementsMatch(t, []string{"+7001", "+7002", "+7003"}, phones)
}

func TestImporter_SinkFailure(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.csv.gz", "Anna;+7001\nBoris;+7002\nElena;+7003\n")}

	store := newMemStore()
	store.copyErr = errors.New("copy failed")

	im := &importer{lg: zap.NewNop(), dedup: newDeduper(1000, 0.001, store), sink: store, batchSize: 1}
	_, err := im.run(context.Background(), files)
	require.ErrorContains(t, err, "copy failed")
}

func TestImporter_MissingFile(t *testing.T) {
	store := newMemStore()
	im := &importer{lg: zap.NewNop(), dedup: newDeduper(1000, 0.001, store), sink: store, batchSize: 10}
	_, err := im.run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.csv.gz")})
	require.Error(t, err)
}
