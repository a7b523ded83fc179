package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IshaanNene/homestalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var fixedTime = time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewFileStore(dir, testLogger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s.SetClock(func() time.Time { return fixedTime })
	return s, dir
}

func TestFileStorePath(t *testing.T) {
	s, dir := newTestStore(t)
	got := s.Path(StageFiltered, "Bothell WA", "csv")
	want := filepath.Join(dir, "filtered_Bothell_WA_20240309_143005.csv")
	if got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}

func TestFileStoreSaveTable(t *testing.T) {
	s, _ := newTestStore(t)
	tbl := &types.Table{
		Columns: []string{"address", "price", "hoa_monthly"},
		Rows: []types.Record{
			{"address": types.String("1 Main St, Unit 2"), "price": types.Number(450000), "hoa_monthly": types.Null},
			{"address": types.String("2 Oak Ave"), "price": types.Number(612500.5)},
		},
	}

	path, err := s.SaveTable(StageFiltered, "Miami", tbl)
	if err != nil {
		t.Fatalf("SaveTable: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read CSV: %v", err)
	}
	want := [][]string{
		{"address", "price", "hoa_monthly"},
		{"1 Main St, Unit 2", "450000", ""},
		{"2 Oak Ave", "612500.5", ""},
	}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i := range want {
		for j := range want[i] {
			if records[i][j] != want[i][j] {
				t.Errorf("cell [%d][%d] = %q, want %q", i, j, records[i][j], want[i][j])
			}
		}
	}
}

func TestFileStoreSaveDetails(t *testing.T) {
	s, _ := newTestStore(t)
	details := []types.ListingDetail{
		{URL: "https://www.redfin.com/a", Description: "Nice", ImageURLs: []string{"https://ssl.cdn-redfin.com/a.jpg"}, RawData: map[string]any{"k": "v"}},
		types.EmptyDetail("https://www.redfin.com/b"),
	}

	path, err := s.SaveDetails("Miami", details)
	if err != nil {
		t.Fatalf("SaveDetails: %v", err)
	}
	if filepath.Base(path) != "details_Miami_20240309_143005.json" {
		t.Errorf("file = %q", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0]["description"] != "Nice" {
		t.Errorf("entry 0 = %v", got[0])
	}
	if _, ok := got[0]["raw_data"]; ok {
		t.Error("raw data should not be written to the JSON artifact")
	}
	imgs, ok := got[1]["image_urls"].([]any)
	if !ok || len(imgs) != 0 {
		t.Errorf("empty detail should have an empty image list, got %v", got[1]["image_urls"])
	}
}

func TestFileStoreSaveDetailsNil(t *testing.T) {
	s, _ := newTestStore(t)
	path, err := s.SaveDetails("Empty", nil)
	if err != nil {
		t.Fatalf("SaveDetails: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "[]\n" {
		t.Errorf("content = %q", data)
	}
}

func TestFileStoreSaveRaw(t *testing.T) {
	s, _ := newTestStore(t)
	raw := []byte("PRICE,BEDS\n450000,3\n")
	path, err := s.SaveRaw("Miami", raw)
	if err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}
	if filepath.Base(path) != "redfin_Miami_20240309_143005.csv" {
		t.Errorf("file = %q", filepath.Base(path))
	}
	data, _ := os.ReadFile(path)
	if string(data) != string(raw) {
		t.Errorf("content = %q", data)
	}
}

func TestFileStoreError(t *testing.T) {
	s, dir := newTestStore(t)
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	_, err := s.SaveRaw("Miami", []byte("x"))
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "file" {
		t.Errorf("expected file StorageError, got %v", err)
	}
}

// memStore records calls for MultiStore tests.
type memStore struct {
	name   string
	loc    string
	err    error
	runID  string
	saved  int
	closed bool
}

func (m *memStore) SaveTable(string, string, *types.Table) (string, error) {
	m.saved++
	return m.loc, m.err
}
func (m *memStore) SaveDetails(string, []types.ListingDetail) (string, error) {
	m.saved++
	return m.loc, m.err
}
func (m *memStore) SaveRaw(string, []byte) (string, error) {
	m.saved++
	return m.loc, m.err
}
func (m *memStore) Close() error {
	m.closed = true
	return m.err
}
func (m *memStore) Name() string { return m.name }

type scopedStore struct{ memStore }

func (s *scopedStore) SetRun(runID, _ string) { s.runID = runID }

func TestMultiStoreFanOut(t *testing.T) {
	failing := &memStore{name: "bad", err: errors.New("down")}
	quiet := &memStore{name: "quiet"}
	file := &scopedStore{memStore{name: "file", loc: "/tmp/x.csv"}}

	ms := NewMultiStore([]ArtifactStore{failing, quiet, file}, testLogger)
	ms.SetRun("run-7", "Miami")

	loc, err := ms.SaveTable(StageFiltered, "Miami", &types.Table{})
	if err == nil {
		t.Error("expected the failing backend's error")
	}
	if loc != "/tmp/x.csv" {
		t.Errorf("locator = %q", loc)
	}
	if failing.saved != 1 || quiet.saved != 1 || file.saved != 1 {
		t.Error("every backend should be called despite a failure")
	}
	if file.runID != "run-7" {
		t.Errorf("run id not forwarded: %q", file.runID)
	}

	if err := ms.Close(); err == nil {
		t.Error("expected close error")
	}
	if !failing.closed || !quiet.closed || !file.closed {
		t.Error("every backend should be closed")
	}
}

func TestBSONValue(t *testing.T) {
	if bsonValue(types.String("a")) != "a" {
		t.Error("string")
	}
	if bsonValue(types.Number(2.5)) != 2.5 {
		t.Error("number")
	}
	if bsonValue(types.Null) != nil {
		t.Error("null")
	}
}

func TestMongoSinkLive(t *testing.T) {
	uri := os.Getenv("HOMESTALK_TEST_MONGO_URI")
	if testing.Short() || uri == "" {
		t.Skip("set HOMESTALK_TEST_MONGO_URI to run against MongoDB")
	}

	s, err := NewMongoSink(uri, "homestalk_test", "details_"+time.Now().Format("150405"), testLogger)
	if err != nil {
		t.Fatalf("NewMongoSink: %v", err)
	}
	defer s.Close()
	s.SetRun("run-1", "Miami")

	if loc, err := s.SaveTable(StageRaw, "Miami", &types.Table{Rows: []types.Record{{}}}); err != nil || loc != "" {
		t.Errorf("raw stage should be skipped, got %q, %v", loc, err)
	}
	loc, err := s.SaveDetails("Miami", []types.ListingDetail{types.EmptyDetail("https://www.redfin.com/a")})
	if err != nil {
		t.Fatalf("SaveDetails: %v", err)
	}
	if loc == "" {
		t.Error("expected a locator")
	}
}
