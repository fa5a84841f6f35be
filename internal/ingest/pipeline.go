// Package ingest runs the idempotent load of one source file: ledger check,
// fetch, parse, optional aggregation, then one transaction that appends the
// rows and records provenance.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eventload/eventload/internal/aggregate"
	elerrors "github.com/eventload/eventload/internal/errors"
	"github.com/eventload/eventload/internal/logger"
	"github.com/eventload/eventload/internal/storage"
	"github.com/eventload/eventload/internal/tabular"
	"github.com/eventload/eventload/pkg/types"
)

// Status is the outcome of a successful run.
type Status string

const (
	StatusIngested        Status = "ingested"
	StatusAlreadyIngested Status = "already_ingested"
)

// debugSampleRows is how many parsed rows Options.Debug logs.
const debugSampleRows = 5

// Ledger is the store side of the pipeline.
type Ledger interface {
	Exists(ctx context.Context, key types.SourceFileKey) (bool, error)
	// Commit appends rows and records rec atomically. It returns an error
	// matching elerrors.ErrAlreadyIngested if rec.Key is already recorded.
	Commit(ctx context.Context, rec *types.ProvenanceRecord, rows []types.EventRow) error
}

// Options controls one run.
type Options struct {
	Aggregate bool
	Debug     bool
}

// Result reports a successful run.
type Result struct {
	Status       Status
	Key          types.SourceFileKey
	RowsParsed   int
	RowsAppended int
	IngestID     string
	Checksum     string
}

// Config holds the pipeline's collaborators.
type Config struct {
	Source storage.ObjectStorage
	Ledger Ledger
	Logger logger.Logger
	Tracer trace.Tracer
	// Now stamps provenance records.
	Now func() time.Time
}

// Pipeline loads source files into the ledger's store.
type Pipeline struct {
	source storage.ObjectStorage
	ledger Ledger
	logger logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a pipeline. Source and Ledger are required.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Ledger == nil {
		return nil, elerrors.NewInternalError("pipeline needs a source and a ledger", errors.New("missing collaborator"))
	}
	p := &Pipeline{
		source: cfg.Source,
		ledger: cfg.Ledger,
		logger: cfg.Logger,
		tracer: cfg.Tracer,
		now:    cfg.Now,
	}
	if p.logger == nil {
		p.logger = logger.NopLogger
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/eventload/eventload/internal/ingest")
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Run ingests the object at objectPath under key. An already recorded key is
// a success with StatusAlreadyIngested and touches neither the source nor the
// store. Any failure leaves the store unchanged.
func (p *Pipeline) Run(ctx context.Context, key types.SourceFileKey, objectPath string, opts Options) (_ *Result, err error) {
	if key == "" {
		return nil, elerrors.NewValidationError(elerrors.CodeInvalidLocator, "source file key is required")
	}

	ctx, span := p.tracer.Start(ctx, "ingest", trace.WithAttributes(
		attribute.String("eventload.source", key.String()),
		attribute.Bool("eventload.aggregate", opts.Aggregate),
	))
	defer func() { endSpan(span, err) }()

	result := &Result{Key: key}
	log := p.logger.WithPrefix(fmt.Sprintf("[%s] ", key))

	exists, err := p.exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Infof("already ingested, skipping")
		result.Status = StatusAlreadyIngested
		span.SetAttributes(attribute.String("eventload.status", string(result.Status)))
		return result, nil
	}

	data, err := p.fetch(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	log.Debugf("fetched %d bytes from %s", len(data), objectPath)

	rows, err := p.parse(ctx, data)
	if err != nil {
		return nil, err
	}
	result.RowsParsed = len(rows)
	log.Debugf("parsed %d rows", len(rows))
	if opts.Debug {
		for i, r := range rows {
			if i == debugSampleRows {
				break
			}
			log.Debugf("row %d: %v", i+1, r.Values())
		}
	}

	if opts.Aggregate {
		_, aggSpan := p.tracer.Start(ctx, "aggregate")
		rows = aggregate.Aggregate(rows)
		aggSpan.SetAttributes(attribute.Int("eventload.rows_out", len(rows)))
		aggSpan.End()
		log.Debugf("aggregated into %d rows", len(rows))
	}

	rec := &types.ProvenanceRecord{
		Key:        key,
		RowCount:   int64(len(rows)),
		Checksum:   Checksum(data),
		Aggregated: opts.Aggregate,
		IngestedAt: p.now().UTC(),
	}
	result.Checksum = rec.Checksum

	err = p.commit(ctx, rec, rows)
	if errors.Is(err, elerrors.ErrAlreadyIngested) {
		log.Warnf("recorded by a concurrent run, nothing appended")
		result.Status = StatusAlreadyIngested
		span.SetAttributes(attribute.String("eventload.status", string(result.Status)))
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Status = StatusIngested
	result.RowsAppended = len(rows)
	result.IngestID = rec.IngestID
	span.SetAttributes(
		attribute.String("eventload.status", string(result.Status)),
		attribute.String("eventload.ingest_id", rec.IngestID),
		attribute.Int("eventload.rows_appended", len(rows)),
	)
	log.Infof("appended %d rows (ingest %s)", len(rows), rec.IngestID)
	return result, nil
}

func (p *Pipeline) exists(ctx context.Context, key types.SourceFileKey) (_ bool, err error) {
	ctx, span := p.tracer.Start(ctx, "ledger.lookup")
	defer func() { endSpan(span, err) }()
	return p.ledger.Exists(ctx, key)
}

func (p *Pipeline) fetch(ctx context.Context, objectPath string) (_ []byte, err error) {
	ctx, span := p.tracer.Start(ctx, "fetch", trace.WithAttributes(attribute.String("eventload.object", objectPath)))
	defer func() { endSpan(span, err) }()

	data, err := p.source.Get(ctx, objectPath)
	if err != nil {
		return nil, storage.AsSourceError(objectPath, err)
	}
	span.SetAttributes(attribute.Int("eventload.bytes", len(data)))
	return data, nil
}

func (p *Pipeline) parse(ctx context.Context, data []byte) (_ []types.EventRow, err error) {
	_, span := p.tracer.Start(ctx, "parse")
	defer func() { endSpan(span, err) }()

	rows, err := tabular.ParseRows(data)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("eventload.rows", len(rows)))
	return rows, nil
}

func (p *Pipeline) commit(ctx context.Context, rec *types.ProvenanceRecord, rows []types.EventRow) (err error) {
	ctx, span := p.tracer.Start(ctx, "commit", trace.WithAttributes(attribute.Int("eventload.rows", len(rows))))
	defer func() {
		if errors.Is(err, elerrors.ErrAlreadyIngested) {
			span.End()
			return
		}
		endSpan(span, err)
	}()
	return p.ledger.Commit(ctx, rec, rows)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Checksum fingerprints source content for the ledger.
func Checksum(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2)
}
