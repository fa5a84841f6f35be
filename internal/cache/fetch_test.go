package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eventload/eventload/internal/storage"
)

// countingStorage serves fixed objects and counts backend fetches.
type countingStorage struct {
	objects map[string][]byte
	gets    int
}

func (s *countingStorage) Get(ctx context.Context, objectPath string) ([]byte, error) {
	s.gets++
	data, ok := s.objects[objectPath]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (s *countingStorage) Download(ctx context.Context, objectPath, localPath string) error {
	data, err := s.Get(ctx, objectPath)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(localPath, data)
}

func (s *countingStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, ok := s.objects[objectPath]
	return ok, nil
}

func TestFetchCache_ReadThrough(t *testing.T) {
	backend := &countingStorage{objects: map[string][]byte{
		"2021/04/events.csv": []byte(strings.Repeat("id,timestamp\n", 50)),
	}}
	c, err := New(backend, t.TempDir(), "s3://work-sample-mk", 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := c.Get(ctx, "2021/04/events.csv")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(data) != string(backend.objects["2021/04/events.csv"]) {
			t.Fatalf("content mismatch on read %d", i)
		}
	}
	if backend.gets != 1 {
		t.Errorf("backend fetched %d times, want 1", backend.gets)
	}
	hits, misses, _ := c.Metrics()
	if hits != 2 || misses != 1 {
		t.Errorf("hits=%d misses=%d, want 2 and 1", hits, misses)
	}
	if c.Size() >= int64(len(backend.objects["2021/04/events.csv"])) {
		t.Errorf("cached size %d should be compressed", c.Size())
	}
}

func TestFetchCache_ErrorsAreNotCached(t *testing.T) {
	backend := &countingStorage{objects: map[string][]byte{}}
	c, err := New(backend, t.TempDir(), "s3://b", 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), "missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
			t.Fatalf("expected ErrObjectNotFound, got %v", err)
		}
	}
	if backend.gets != 2 || c.Len() != 0 {
		t.Errorf("gets=%d len=%d, want 2 and 0", backend.gets, c.Len())
	}
}

func TestFetchCache_NamespacesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	a := &countingStorage{objects: map[string][]byte{"x.csv": []byte("from a")}}
	b := &countingStorage{objects: map[string][]byte{"x.csv": []byte("from b")}}

	ca, err := New(a, dir, "s3://a", 0)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := New(b, dir, "s3://b", 0)
	if err != nil {
		t.Fatal(err)
	}

	if data, _ := ca.Get(context.Background(), "x.csv"); string(data) != "from a" {
		t.Errorf("got %q", data)
	}
	if data, _ := cb.Get(context.Background(), "x.csv"); string(data) != "from b" {
		t.Errorf("got %q", data)
	}
}

func TestFetchCache_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	backend := &countingStorage{objects: map[string][]byte{"2021/04/events.csv": []byte("cached")}}

	first, err := New(backend, dir, "s3://b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Get(context.Background(), "2021/04/events.csv"); err != nil {
		t.Fatal(err)
	}

	second, err := New(backend, dir, "s3://b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if second.Len() != 1 {
		t.Fatalf("expected 1 indexed entry, got %d", second.Len())
	}
	data, err := second.Get(context.Background(), "2021/04/events.csv")
	if err != nil || string(data) != "cached" {
		t.Errorf("Get = %q, %v", data, err)
	}
	if backend.gets != 1 {
		t.Errorf("backend fetched %d times, want 1", backend.gets)
	}
}

func TestFetchCache_CorruptEntryRefetches(t *testing.T) {
	dir := t.TempDir()
	backend := &countingStorage{objects: map[string][]byte{"a.csv": []byte("payload")}}
	c, err := New(backend, dir, "s3://b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), "a.csv"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, c.entryName("a.csv")), []byte{0xff, 0xff, 0xff}, 0644); err != nil {
		t.Fatal(err)
	}

	data, err := c.Get(context.Background(), "a.csv")
	if err != nil || string(data) != "payload" {
		t.Errorf("Get = %q, %v", data, err)
	}
	if backend.gets != 2 {
		t.Errorf("backend fetched %d times, want 2", backend.gets)
	}
}

func TestFetchCache_Eviction(t *testing.T) {
	backend := &countingStorage{objects: map[string][]byte{
		"a.csv": []byte(strings.Repeat("a", 64)),
		"b.csv": []byte(strings.Repeat("b", 64)),
		"c.csv": []byte(strings.Repeat("c", 64)),
	}}
	c, err := New(backend, t.TempDir(), "s3://b", 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, p := range []string{"a.csv", "b.csv", "c.csv"} {
		if _, err := c.Get(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if c.Len() != 1 {
		t.Errorf("expected only the newest entry to remain, got %d", c.Len())
	}
	if _, _, evictions := c.Metrics(); evictions != 2 {
		t.Errorf("evictions = %d, want 2", evictions)
	}

	entries, _ := os.ReadDir(c.dir)
	if len(entries) != 1 {
		t.Errorf("expected 1 file on disk, got %d", len(entries))
	}
}

func TestFetchCache_Download(t *testing.T) {
	backend := &countingStorage{objects: map[string][]byte{"2021/04/events.csv": []byte("rows")}}
	c, err := New(backend, t.TempDir(), "s3://b", 0)
	if err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "2021_04.csv")
	if err := c.Download(context.Background(), "2021/04/events.csv", dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "rows" {
		t.Errorf("downloaded %q, %v", got, err)
	}

	if ok, _ := c.Exists(context.Background(), "2021/04/events.csv"); !ok {
		t.Error("expected cached object to exist")
	}
}
