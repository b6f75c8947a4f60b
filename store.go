// Package sopp is a RDF quad store with SPARQL 1.1 Query and Update
// support (spec.md §1-§2). Store is the single entry point: it owns
// the storage engine, the term dictionary and the six quad indexes
// (txn.Store), and drives a query or update text through sparql,
// optimize, exec and update. Generalized from the teacher's DB type
// (db.go's Open/Import/Dump), which owned a Bolt handle directly and
// answered only fixed SPO/OSP/POS triple lookups.
package sopp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/exec"
	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/limits"
	"github.com/boutros/quadstore/optimize"
	"github.com/boutros/quadstore/rdfio"
	"github.com/boutros/quadstore/sparql"
	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/storage/boltkv"
	"github.com/boutros/quadstore/storage/memkv"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
	"github.com/boutros/quadstore/update"
)

// Options configures Open/InMemory/OpenReadOnly (spec.md §6
// Store.open options: rdf_star, cache_bytes, max_open_files,
// bulk_load_batch_bytes, allow_writes).
type Options struct {
	// Base resolves relative IRIs parsed without an explicit BASE
	// declaration or prologue.
	Base term.IRI

	// RDFStar enables the <<s p o>> quoted-triple term grammar in both
	// SPARQL text and the rdfio N-Quads/Turtle reader.
	RDFStar bool

	CacheBytes         uint64
	MaxOpenFiles       uint32
	BulkLoadBatchBytes uint64

	// Caps bounds per-query/update resource consumption. The zero
	// value is replaced with limits.DefaultCaps().
	Caps limits.Caps

	// HTTPClient is used to dereference http(s):// LOAD sources; nil
	// defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives structured diagnostics for opens, closes and
	// failed commits. Nil defaults to zap.NewNop().
	Logger *zap.Logger
}

func (o Options) storageOptions(readOnly bool) storage.Options {
	opts := storage.DefaultOptions()
	if o.CacheBytes != 0 {
		opts.CacheBytes = o.CacheBytes
	}
	if o.MaxOpenFiles != 0 {
		opts.MaxOpenFiles = o.MaxOpenFiles
	}
	if o.BulkLoadBatchBytes != 0 {
		opts.BulkLoadBatchBytes = o.BulkLoadBatchBytes
	}
	opts.ReadOnly = readOnly
	return opts
}

// Store is a handle on one quad store. Safe for concurrent use: reads
// run against snapshots and txn.Store serializes writers internally,
// the same contract db.go's *bolt.DB gave callers.
type Store struct {
	engine   storage.Engine
	tstore   *txn.Store
	base     term.IRI
	rdfStar  bool
	caps     limits.Caps
	source   *rdfio.Source
	log      *zap.Logger
	readOnly bool
}

func newStore(engine storage.Engine, readOnly bool, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	caps := opts.Caps
	if caps == (limits.Caps{}) {
		caps = limits.DefaultCaps()
	}
	return &Store{
		engine:  engine,
		tstore:  txn.NewStore(engine, opts.Base),
		base:    opts.Base,
		rdfStar: opts.RDFStar,
		caps:    caps,
		source:  &rdfio.Source{Client: opts.HTTPClient, RDFStar: opts.RDFStar},
		log:     log.With(zap.String("path", engine.Path())),
		readOnly: readOnly,
	}
}

// Open opens (creating if absent) a durable store at path, backed by
// the teacher's own github.com/boltdb/bolt (storage/boltkv).
func Open(path string, opts Options) (*Store, error) {
	engine, err := boltkv.Open(path, opts.storageOptions(false))
	if err != nil {
		return nil, fmt.Errorf("sopp: open %s: %w", path, err)
	}
	s := newStore(engine, false, opts)
	s.log.Info("store opened")
	return s, nil
}

// OpenReadOnly opens an existing durable store at path, refusing every
// operation that would write (spec.md §6 "allow_writes": false).
func OpenReadOnly(path string, opts Options) (*Store, error) {
	engine, err := boltkv.Open(path, opts.storageOptions(true))
	if err != nil {
		return nil, fmt.Errorf("sopp: open %s read-only: %w", path, err)
	}
	s := newStore(engine, true, opts)
	s.log.Info("store opened read-only")
	return s, nil
}

// InMemory opens a store backed by storage/memkv, with no filesystem
// footprint (spec.md §6's requirement that the store work without a
// path).
func InMemory(opts Options) *Store {
	s := newStore(memkv.New(), false, opts)
	s.log.Info("in-memory store opened")
	return s
}

// Close releases the underlying storage engine. No transaction or
// bulk loader may still be open.
func (s *Store) Close() error {
	s.log.Info("store closed")
	return s.engine.Close()
}

// ReadTransaction begins a read-only, repeatable-read transaction.
func (s *Store) ReadTransaction() (*txn.ReadTxn, error) {
	return s.tstore.BeginRead()
}

// WriteTransaction begins a write transaction. Only one may be open
// at a time (txn.Store serializes writers); it fails closed on a
// store opened with OpenReadOnly.
func (s *Store) WriteTransaction() (*txn.WriteTxn, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	return s.tstore.BeginWrite()
}

// BulkLoader begins a bulk-load session (spec.md §4.4's "all-or-
// nothing at the end" durability trade-off). batchBytes is passed to
// the loader unchanged: zero makes every LoadBatch call commit its own
// batch, and Options.BulkLoadBatchBytes is not consulted.
func (s *Store) BulkLoader(batchBytes uint64, encodeJobs int) (*txn.BulkLoader, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	return s.tstore.BeginBulkLoad(batchBytes, encodeJobs)
}

// QueryOptions configures Query (spec.md §6 Store.query options).
type QueryOptions struct {
	// BaseIRI overrides the store's configured base for this query.
	BaseIRI term.IRI

	// Timeout, if nonzero, cancels the query after this duration.
	Timeout time.Duration

	// Cancellation, if set, is honored alongside Timeout; whichever
	// fires first wins.
	Cancellation context.Context

	// MaxMemoryBytes overrides the store's configured
	// Caps.MaxBufferBytes for this query only; zero keeps the default.
	MaxMemoryBytes uint64
}

// deadline bundles the token exec iterates against with the context
// it was derived from, so a cancellation error can be classified as
// Resource exceeded (the timeout fired, spec.md §7's "Timeout" row
// under that kind) or Cancelled (the caller's own context fired)
// after the fact.
type deadline struct {
	ctx context.Context
	tok *limits.Token
}

func (s *Store) newDeadline(opts QueryOptions) (deadline, context.CancelFunc) {
	ctx := opts.Cancellation
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := func() {}
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	return deadline{ctx: ctx, tok: limits.FromContext(ctx)}, cancel
}

func (d deadline) mapErr(err error) error {
	if errors.Is(err, exec.ErrCancelled) {
		if d.ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %v", ErrResourceExceeded, err)
		}
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	var re *limits.ResourceExceeded
	if errors.As(err, &re) {
		return fmt.Errorf("%w: %v", ErrResourceExceeded, re)
	}
	return err
}

func (s *Store) queryCaps(opts QueryOptions) limits.Caps {
	caps := s.caps
	if opts.MaxMemoryBytes != 0 {
		caps.MaxBufferBytes = opts.MaxMemoryBytes
	}
	return caps
}

// Solutions is the result of a SELECT query: a decoded solution
// iterator over variable bindings.
type Solutions struct {
	rtx    *txn.ReadTxn
	it     exec.Iterator
	vars   []algebra.Var
	dl     deadline
	cancel context.CancelFunc
}

// Vars returns the projected variable names, in query order.
func (r *Solutions) Vars() []string {
	out := make([]string, len(r.vars))
	for i, v := range r.vars {
		out[i] = string(v)
	}
	return out
}

// Next advances to the next solution, returning a variable-name ->
// term map. Unbound variables are absent from the map.
func (r *Solutions) Next() (map[string]term.Term, bool, error) {
	ok, err := r.it.Next(r.dl.tok)
	if err != nil {
		return nil, false, r.dl.mapErr(err)
	}
	if !ok {
		return nil, false, nil
	}
	row := r.it.Row()
	out := make(map[string]term.Term, len(row))
	for v, id := range row {
		t, err := r.rtx.Decode(id)
		if err != nil {
			return nil, false, fmt.Errorf("sopp: decode solution: %w", err)
		}
		out[string(v)] = t
	}
	return out, true, nil
}

// Close releases the iterator, its underlying read transaction and
// the deadline context backing it.
func (r *Solutions) Close() {
	r.it.Close()
	r.rtx.Close()
	r.cancel()
}

// DecodedQuad is a (subject, predicate, object, graph) quad with
// terms resolved back to their RDF surface form.
type DecodedQuad struct {
	Subject, Predicate, Object term.Term
	Graph                      term.Term // nil for the default graph
}

// Quads is the result of a CONSTRUCT or DESCRIBE query.
type Quads struct {
	rtx    *txn.ReadTxn
	it     exec.QuadIter
	dl     deadline
	cancel context.CancelFunc
}

// Next advances to the next quad.
func (r *Quads) Next() (DecodedQuad, bool, error) {
	ok, err := r.it.Next(r.dl.tok)
	if err != nil {
		return DecodedQuad{}, false, r.dl.mapErr(err)
	}
	if !ok {
		return DecodedQuad{}, false, nil
	}
	q := r.it.Quad()
	var out DecodedQuad
	var derr error
	if out.Subject, derr = r.rtx.Decode(q.Subject); derr != nil {
		return DecodedQuad{}, false, derr
	}
	if out.Predicate, derr = r.rtx.Decode(q.Predicate); derr != nil {
		return DecodedQuad{}, false, derr
	}
	if out.Object, derr = r.rtx.Decode(q.Object); derr != nil {
		return DecodedQuad{}, false, derr
	}
	if q.Graph != term.DefaultGraph {
		if out.Graph, derr = r.rtx.Decode(q.Graph); derr != nil {
			return DecodedQuad{}, false, derr
		}
	}
	return out, true, nil
}

// Close releases the iterator, its underlying read transaction and
// the deadline context backing it.
func (r *Quads) Close() {
	r.it.Close()
	r.rtx.Close()
	r.cancel()
}

// QueryResult holds the outcome of Query, exactly one field set
// depending on the query form (spec.md §6 "solution iterator |
// boolean | quad iterator, depending on query form").
type QueryResult struct {
	Solutions *Solutions
	Boolean   *bool
	Quads     *Quads
}

// Query parses and runs a SPARQL 1.1 Query (SELECT, ASK, CONSTRUCT or
// DESCRIBE). The returned QueryResult's live field must be Closed
// (Solutions/Quads hold an open read transaction); ASK's Boolean
// result needs no closing.
func (s *Store) Query(text string, opts QueryOptions) (QueryResult, error) {
	base := opts.BaseIRI
	if base == "" {
		base = s.base
	}
	n, err := sparql.ParseQuery(text, sparql.Options{Base: base, RDFStar: s.rdfStar})
	if err != nil {
		return QueryResult{}, fmt.Errorf("sopp: parse query: %w", err)
	}
	n = optimize.Optimize(n)

	rtx, err := s.tstore.BeginRead()
	if err != nil {
		return QueryResult{}, fmt.Errorf("sopp: begin read: %w", err)
	}

	env := &exec.Env{
		Rtx:  rtx,
		Caps: s.queryCaps(opts),
		Base: base,
		Now:  time.Now(),
	}
	dl, cancel := s.newDeadline(opts)

	switch top := n.(type) {
	case algebra.Ask:
		it, err := exec.Compile(env, top.Input)
		if err != nil {
			cancel()
			rtx.Close()
			return QueryResult{}, fmt.Errorf("sopp: compile query: %w", err)
		}
		ok, err := it.Next(dl.tok)
		it.Close()
		rtx.Close()
		cancel()
		if err != nil {
			return QueryResult{}, dl.mapErr(err)
		}
		return QueryResult{Boolean: &ok}, nil

	case algebra.Construct:
		it, err := exec.RunConstruct(env, top, dl.tok)
		if err != nil {
			cancel()
			rtx.Close()
			return QueryResult{}, dl.mapErr(fmt.Errorf("sopp: compile query: %w", err))
		}
		return QueryResult{Quads: &Quads{rtx: rtx, it: it, dl: dl, cancel: cancel}}, nil

	case algebra.Describe:
		it, err := exec.RunDescribe(env, top, dl.tok)
		if err != nil {
			cancel()
			rtx.Close()
			return QueryResult{}, dl.mapErr(fmt.Errorf("sopp: compile query: %w", err))
		}
		return QueryResult{Quads: &Quads{rtx: rtx, it: it, dl: dl, cancel: cancel}}, nil

	default:
		it, err := exec.Compile(env, n)
		if err != nil {
			cancel()
			rtx.Close()
			return QueryResult{}, fmt.Errorf("sopp: compile query: %w", err)
		}
		return QueryResult{Solutions: &Solutions{rtx: rtx, it: it, vars: queryVars(n), dl: dl, cancel: cancel}}, nil
	}
}

// queryVars recovers the projected variable order for a SELECT
// result, falling through to the pattern's free variables for
// SELECT * (which the parser leaves unwrapped by Project).
func queryVars(n algebra.Node) []algebra.Var {
	if p, ok := n.(algebra.Project); ok {
		return p.Vars
	}
	if lister, ok := n.(algebra.VarLister); ok {
		return lister.Vars()
	}
	return nil
}

// UpdateOptions configures Update (spec.md §6 Store.update options).
type UpdateOptions struct {
	BaseIRI      term.IRI
	Timeout      time.Duration
	Cancellation context.Context
}

// Update parses and runs a SPARQL 1.1 Update request as one
// transaction (spec.md §4.10): every statement applies against the
// same write transaction, committed only if all succeed.
func (s *Store) Update(text string, opts UpdateOptions) error {
	if s.readOnly {
		return ErrReadOnly
	}
	base := opts.BaseIRI
	if base == "" {
		base = s.base
	}
	updates, err := sparql.ParseUpdate(text, sparql.Options{Base: base, RDFStar: s.rdfStar})
	if err != nil {
		return fmt.Errorf("sopp: parse update: %w", err)
	}

	wtx, err := s.tstore.BeginWrite()
	if err != nil {
		return fmt.Errorf("sopp: begin write: %w", err)
	}

	ex := &update.Executor{
		Env:    update.Env{Base: base},
		Source: s.source,
	}
	if err := ex.Run(wtx, updates); err != nil {
		wtx.Rollback()
		return fmt.Errorf("sopp: update: %w", err)
	}
	if err := wtx.Commit(); err != nil {
		s.log.Error("update commit failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return nil
}

// QuadsForPattern returns every stored quad matching the given
// pattern, with nil meaning unbound for that position (spec.md §6
// "Store.quads_for_pattern(s?,p?,o?,g?)").
func (s *Store) QuadsForPattern(subject, predicate, object, graph term.Term) ([]DecodedQuad, error) {
	rtx, err := s.tstore.BeginRead()
	if err != nil {
		return nil, fmt.Errorf("sopp: begin read: %w", err)
	}
	defer rtx.Close()

	pat := index.Pattern{}
	bind := func(t term.Term) *term.ID {
		if t == nil {
			return nil
		}
		id, ok := rtx.EncodeExisting(t)
		if !ok {
			return nil
		}
		return &id
	}
	pat.Subject = bind(subject)
	pat.Predicate = bind(predicate)
	pat.Object = bind(object)
	pat.Graph = bind(graph)

	// A bound position absent from the dictionary cannot match
	// anything stored.
	if (subject != nil && pat.Subject == nil) ||
		(predicate != nil && pat.Predicate == nil) ||
		(object != nil && pat.Object == nil) ||
		(graph != nil && pat.Graph == nil) {
		return nil, nil
	}

	quads := rtx.Probe(pat)
	out := make([]DecodedQuad, 0, len(quads))
	for _, q := range quads {
		var d DecodedQuad
		if d.Subject, err = rtx.Decode(q.Subject); err != nil {
			return nil, err
		}
		if d.Predicate, err = rtx.Decode(q.Predicate); err != nil {
			return nil, err
		}
		if d.Object, err = rtx.Decode(q.Object); err != nil {
			return nil, err
		}
		if q.Graph != term.DefaultGraph {
			if d.Graph, err = rtx.Decode(q.Graph); err != nil {
				return nil, err
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// Dump serializes the whole store as N-Quads (spec.md §6
// "Store.dump(format, writer)"; N-Quads is the only format rdfio
// writes today).
func (s *Store) Dump(w io.Writer) error {
	rtx, err := s.tstore.BeginRead()
	if err != nil {
		return fmt.Errorf("sopp: begin read: %w", err)
	}
	defer rtx.Close()
	return rdfio.WriteQuads(w, rtx, rdfio.DumpOptions{Base: s.base})
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Graph, if set, loads every parsed quad into this named graph
	// regardless of any graph term present in the source, mirroring
	// LOAD <src> INTO GRAPH <g>.
	Graph term.Term

	// BatchBytes is the bulk loader's batch budget for this load,
	// passed to Store.BulkLoader (see there for what zero does).
	BatchBytes uint64

	// EncodeJobs bounds the concurrency of the bulk loader's term
	// encoding fan-out; zero uses the loader's own default.
	EncodeJobs int
}

// Load bulk-imports RDF quads read from r (N-Quads or the subset of
// Turtle rdfio decodes) via a BulkLoader (spec.md §4.4's bulk-load
// path, exposed at the Store level as a streaming convenience over
// Store.bulk_loader).
func (s *Store) Load(r io.Reader, opts LoadOptions) error {
	if s.readOnly {
		return ErrReadOnly
	}
	dec := rdfio.NewDecoder(r, s.base)
	dec.RDFStar = s.rdfStar

	bl, err := s.BulkLoader(opts.BatchBytes, opts.EncodeJobs)
	if err != nil {
		return err
	}

	var batch []txn.LoadTerm
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := bl.LoadBatch(batch)
		batch = batch[:0]
		return err
	}

	for {
		q, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			bl.Abort()
			return fmt.Errorf("sopp: load: %w", err)
		}
		graph := q.Graph
		if opts.Graph != nil {
			graph = opts.Graph
		}
		batch = append(batch, txn.LoadTerm{
			Subject:   q.Subject,
			Predicate: q.Predicate,
			Object:    q.Object,
			Graph:     graph,
		})
		if len(batch) >= 4096 {
			if err := flush(); err != nil {
				bl.Abort()
				return fmt.Errorf("sopp: load: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		bl.Abort()
		return fmt.Errorf("sopp: load: %w", err)
	}
	if err := bl.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return nil
}
