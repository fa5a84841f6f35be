package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/eventload/eventload/internal/config"
	elerrors "github.com/eventload/eventload/internal/errors"
	"github.com/eventload/eventload/internal/logger"
	"github.com/eventload/eventload/internal/storage"
	"github.com/eventload/eventload/internal/store"
	"github.com/eventload/eventload/internal/tabular"
	"github.com/eventload/eventload/pkg/types"
)

const threeRows = "id,timestamp,email,country,ip,uri,action,tags\n" +
	"1,2021-04-01T10:00:00Z,a@x.io,US,10.0.0.1,/home,click,promo\n" +
	"1,2021-04-01T10:00:00Z,a@x.io,US,10.0.0.1,/home,click,promo\n" +
	"2,2021-04-02T11:30:00Z,b@x.io,FR,10.0.0.2,/cart,view,\n"

const testKey = types.SourceFileKey("s3://work-sample-mk/2021/04/events.csv")

// countingSource wraps a storage and counts Get calls.
type countingSource struct {
	storage.ObjectStorage
	gets int
}

func (c *countingSource) Get(ctx context.Context, objectPath string) ([]byte, error) {
	c.gets++
	return c.ObjectStorage.Get(ctx, objectPath)
}

// failingSource fails every fetch with err.
type failingSource struct {
	storage.ObjectStorage
	err error
}

func (f failingSource) Get(context.Context, string) ([]byte, error) { return nil, f.err }

type fixture struct {
	store  *store.Store
	source *countingSource
	spans  *tracetest.SpanRecorder
	clock  time.Time
}

func newFixture(t *testing.T, objects map[string]string) *fixture {
	t.Helper()
	base := t.TempDir()
	local := storage.NewLocalStorage(base)
	for path, body := range objects {
		if err := storage.WriteFileAtomic(filepath.Join(base, filepath.FromSlash(path)), []byte(body)); err != nil {
			t.Fatalf("failed to seed object: %v", err)
		}
	}

	s, err := store.Open(context.Background(), config.DriverSQLite, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &fixture{
		store:  s,
		source: &countingSource{ObjectStorage: local},
		spans:  tracetest.NewSpanRecorder(),
		clock:  time.Date(2021, 5, 2, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) pipeline(t *testing.T, source storage.ObjectStorage) *Pipeline {
	t.Helper()
	if source == nil {
		source = f.source
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))
	p, err := New(Config{
		Source: source,
		Ledger: f.store,
		Logger: logger.NewLogfLogger(t),
		Tracer: tp.Tracer("test"),
		Now:    func() time.Time { return f.clock },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func (f *fixture) counts(t *testing.T) (int64, int64) {
	t.Helper()
	events, files, err := f.store.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	return events, files
}

func TestPipeline_ThreeRowScenario(t *testing.T) {
	for _, tt := range []struct {
		name       string
		aggregate  bool
		wantEvents int64
	}{
		{"aggregation off", false, 3},
		{"aggregation on", true, 2},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{"2021/04/events.csv": threeRows})
			p := f.pipeline(t, nil)
			ctx := context.Background()

			res, err := p.Run(ctx, testKey, "2021/04/events.csv", Options{Aggregate: tt.aggregate})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if res.Status != StatusIngested || res.RowsParsed != 3 || int64(res.RowsAppended) != tt.wantEvents {
				t.Errorf("result = %+v", res)
			}
			if res.IngestID == "" || res.Checksum != Checksum([]byte(threeRows)) {
				t.Errorf("missing provenance metadata: %+v", res)
			}

			events, files := f.counts(t)
			if events != tt.wantEvents || files != 1 {
				t.Fatalf("counts = %d events, %d files; want %d, 1", events, files, tt.wantEvents)
			}

			if tt.aggregate {
				rows, err := f.store.Events(ctx)
				if err != nil {
					t.Fatal(err)
				}
				var counts []int64
				for _, r := range rows {
					counts = append(counts, r.Count)
				}
				sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })
				if len(counts) != 2 || counts[0] != 1 || counts[1] != 2 {
					t.Errorf("counts = %v, want [1 2]", counts)
				}
			}

			// A second run is a no-op and does not touch the source.
			res, err = p.Run(ctx, testKey, "2021/04/events.csv", Options{Aggregate: tt.aggregate})
			if err != nil {
				t.Fatalf("second Run failed: %v", err)
			}
			if res.Status != StatusAlreadyIngested {
				t.Errorf("second status = %s", res.Status)
			}
			if f.source.gets != 1 {
				t.Errorf("source fetched %d times, want 1", f.source.gets)
			}
			if events2, files2 := f.counts(t); events2 != events || files2 != files {
				t.Errorf("re-run changed counts to %d, %d", events2, files2)
			}
		})
	}
}

func TestPipeline_RoundTrip(t *testing.T) {
	f := newFixture(t, map[string]string{"2021/04/events.csv": threeRows})
	p := f.pipeline(t, nil)
	ctx := context.Background()

	if _, err := p.Run(ctx, testKey, "2021/04/events.csv", Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want, err := tabular.ParseRows([]byte(threeRows))
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.store.Events(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !sameMultiset(got, want) {
		t.Errorf("stored rows differ from parsed rows:\n got  %+v\n want %+v", got, want)
	}

	files, err := f.store.Files(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || !files[0].IngestedAt.Equal(f.clock) || files[0].RowCount != 3 || files[0].Aggregated {
		t.Errorf("ledger = %+v", files)
	}
}

func TestPipeline_FetchFailureLeavesNoTrace(t *testing.T) {
	for _, tt := range []struct {
		err  error
		code string
	}{
		{storage.ErrObjectNotFound, elerrors.CodeObjectNotFound},
		{storage.ErrPermissionDenied, elerrors.CodePermissionDenied},
		{storage.ErrInvalidPath, elerrors.CodeInvalidSource},
	} {
		f := newFixture(t, nil)
		p := f.pipeline(t, failingSource{ObjectStorage: f.source, err: tt.err})

		_, err := p.Run(context.Background(), testKey, "2021/04/events.csv", Options{})
		if elerrors.GetCode(err) != tt.code {
			t.Errorf("%v: code = %q, want %q", tt.err, elerrors.GetCode(err), tt.code)
		}
		if events, files := f.counts(t); events != 0 || files != 0 {
			t.Errorf("%v: store changed: %d events, %d files", tt.err, events, files)
		}
		exists, err := f.store.Exists(context.Background(), testKey)
		if err != nil || exists {
			t.Errorf("%v: key recorded after failed fetch", tt.err)
		}
	}
}

func TestPipeline_ParseFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t, map[string]string{"2021/04/events.csv": "id,timestamp\n1,2\n"})
	p := f.pipeline(t, nil)

	_, err := p.Run(context.Background(), testKey, "2021/04/events.csv", Options{})
	if elerrors.GetCategory(err) != elerrors.ErrCategoryParse {
		t.Fatalf("expected a parse error, got %v", err)
	}
	if events, files := f.counts(t); events != 0 || files != 0 {
		t.Errorf("store changed: %d events, %d files", events, files)
	}
}

func TestPipeline_LostRaceIsAlreadyIngested(t *testing.T) {
	f := newFixture(t, map[string]string{"2021/04/events.csv": threeRows})
	p := f.pipeline(t, nil)
	ctx := context.Background()

	// Another run records the key between the ledger check and the commit.
	racing := &racingLedger{Store: f.store}
	p.ledger = racing

	res, err := p.Run(ctx, testKey, "2021/04/events.csv", Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != StatusAlreadyIngested || res.RowsAppended != 0 {
		t.Errorf("result = %+v", res)
	}
	if events, files := f.counts(t); events != 0 || files != 1 {
		t.Errorf("counts = %d events, %d files; want 0, 1", events, files)
	}
}

// racingLedger records the key itself just before delegating Commit.
type racingLedger struct {
	*store.Store
}

func (r *racingLedger) Commit(ctx context.Context, rec *types.ProvenanceRecord, rows []types.EventRow) error {
	if err := r.Store.Record(ctx, &types.ProvenanceRecord{Key: rec.Key, Checksum: "other", IngestedAt: rec.IngestedAt}); err != nil {
		return err
	}
	return r.Store.Commit(ctx, rec, rows)
}

func TestPipeline_Spans(t *testing.T) {
	f := newFixture(t, map[string]string{"2021/04/events.csv": threeRows})
	p := f.pipeline(t, nil)

	if _, err := p.Run(context.Background(), testKey, "2021/04/events.csv", Options{Aggregate: true}); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, s := range f.spans.Ended() {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	want := []string{"aggregate", "commit", "fetch", "ingest", "ledger.lookup", "parse"}
	if len(names) != len(want) {
		t.Fatalf("spans = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("spans = %v, want %v", names, want)
			break
		}
	}
}

func TestPipeline_RejectsEmptyKey(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pipeline(t, nil)

	_, err := p.Run(context.Background(), "", "x.csv", Options{})
	if elerrors.GetCategory(err) != elerrors.ErrCategoryValidation {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected an error without source and ledger")
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	f := newFixture(t, map[string]string{"2021/04/events.csv": threeRows})
	p := f.pipeline(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, testKey, "2021/04/events.csv", Options{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, context.Canceled) && elerrors.GetCategory(err) != elerrors.ErrCategoryStore {
		t.Errorf("unexpected error %v", err)
	}
	if events, files := f.counts(t); events != 0 || files != 0 {
		t.Errorf("store changed: %d events, %d files", events, files)
	}
}

func sameMultiset(a, b []types.EventRow) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[types.EventRow]int{}
	for _, r := range a {
		seen[r]++
	}
	for _, r := range b {
		seen[r]--
		if seen[r] < 0 {
			return false
		}
	}
	return true
}
