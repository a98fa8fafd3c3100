package sql

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/nodestore/dialect"
)

type operationKey struct{}

// WithOperation labels the statements executed with the returned context.
// A StatsDriver counts labeled statements per operation.
//
//	ctx = sql.WithOperation(ctx, "graph.save")
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFrom returns the operation label of ctx, or "".
func OperationFrom(ctx context.Context) string {
	op, _ := ctx.Value(operationKey{}).(string)
	return op
}

// OperationStats counts the statements of one operation.
type OperationStats struct {
	Statements int64         `json:"statements"`
	Errors     int64         `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

// QueryStats collects statement counters. Totals are lock-free; the
// per-operation table is guarded by mu.
type QueryStats struct {
	queries  atomic.Int64
	execs    atomic.Int64
	duration atomic.Int64 // nanoseconds
	slow     atomic.Int64
	errors   atomic.Int64

	mu  sync.Mutex
	ops map[string]*OperationStats
}

func (s *QueryStats) add(op string, query bool, d time.Duration, failed bool) {
	if query {
		s.queries.Add(1)
	} else {
		s.execs.Add(1)
	}
	s.duration.Add(int64(d))
	if failed {
		s.errors.Add(1)
	}
	if op == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ops == nil {
		s.ops = make(map[string]*OperationStats)
	}
	o, ok := s.ops[op]
	if !ok {
		o = &OperationStats{}
		s.ops[op] = o
	}
	o.Statements++
	o.Duration += d
	if failed {
		o.Errors++
	}
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	snap := StatsSnapshot{
		TotalQueries:  s.queries.Load(),
		TotalExecs:    s.execs.Load(),
		TotalDuration: time.Duration(s.duration.Load()),
		SlowQueries:   s.slow.Load(),
		Errors:        s.errors.Load(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ops) > 0 {
		snap.Operations = make(map[string]OperationStats, len(s.ops))
		for op, o := range s.ops {
			snap.Operations[op] = *o
		}
	}
	return snap
}

// Reset sets every counter to zero.
func (s *QueryStats) Reset() {
	s.queries.Store(0)
	s.execs.Store(0)
	s.duration.Store(0)
	s.slow.Store(0)
	s.errors.Store(0)
	s.mu.Lock()
	s.ops = nil
	s.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy of the statement counters.
type StatsSnapshot struct {
	TotalQueries  int64                     `json:"queries"`
	TotalExecs    int64                     `json:"execs"`
	TotalDuration time.Duration             `json:"duration"`
	SlowQueries   int64                     `json:"slow"`
	Errors        int64                     `json:"errors"`
	Operations    map[string]OperationStats `json:"operations,omitempty"`
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a one-line summary; operations are listed by name.
func (s StatsSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
	for _, op := range slices.Sorted(maps.Keys(s.Operations)) {
		fmt.Fprintf(&b, " %s=%d", op, s.Operations[op].Statements)
	}
	return b.String()
}

// SlowStatement describes a statement that ran over the slow threshold.
type SlowStatement struct {
	Operation string
	Query     string
	Args      []any
	Duration  time.Duration
}

// SlowQueryHook is called for every slow statement.
type SlowQueryHook func(context.Context, SlowStatement)

// StatsDriver wraps a Driver and counts the statements it executes.
type StatsDriver struct {
	dialect.Driver
	stats     *QueryStats
	threshold atomic.Int64 // nanoseconds
	hook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold.Store(int64(d))
	}
}

// WithSlowQueryHook sets the callback for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowQueryLog warns about slow statements on logger.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	return WithSlowQueryHook(func(ctx context.Context, s SlowStatement) {
		logger.WarnContext(ctx, "slow statement",
			"operation", s.Operation, "duration", s.Duration, "query", s.Query, "args", s.Args)
	})
}

// NewStatsDriver wraps drv with statement counters.
//
//	drv, _ := sql.Open(dialect.Postgres, dsn)
//	stats := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(slog.Default()),
//	)
//	fmt.Println(stats.QueryStats().Stats())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, stats: &QueryStats{}}
	s.threshold.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// SlowThreshold returns the slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	return time.Duration(d.threshold.Load())
}

// SetSlowThreshold updates the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.threshold.Store(int64(threshold))
}

// Query implements dialect.ExecQuerier.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err, true)
	return err
}

// Exec implements dialect.ExecQuerier.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err, false)
	return err
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, took time.Duration, err error, isQuery bool) {
	op := OperationFrom(ctx)
	d.stats.add(op, isQuery, took, err != nil)
	if took <= d.SlowThreshold() {
		return
	}
	d.stats.slow.Add(1)
	if d.hook != nil {
		list, _ := args.([]any)
		d.hook(ctx, SlowStatement{Operation: op, Query: query, Args: list, Duration: took})
	}
}

// DebugDriver wraps a Driver and describes every statement it executes.
type DebugDriver struct {
	dialect.Driver
	log func(context.Context, ...any)
}

// DebugOption configures the DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLog sets a custom log function.
func DebugWithLog(logFunc func(context.Context, ...any)) DebugOption {
	return func(d *DebugDriver) {
		d.log = logFunc
	}
}

// NewDebugDriver wraps a Driver with debug logging.
//
//	debugDriver := sql.NewDebugDriver(drv, sql.DebugWithLog(func(ctx context.Context, v ...any) {
//	    log.Println(v...)
//	}))
func NewDebugDriver(drv dialect.Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{
		Driver: drv,
		log: func(ctx context.Context, v ...any) {
			slog.DebugContext(ctx, fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Query executes a query and logs it.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log(ctx, d.describe(ctx, "query", query, args))
	return d.Driver.Query(ctx, query, args, v)
}

// Exec executes a statement and logs it.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log(ctx, d.describe(ctx, "exec", query, args))
	return d.Driver.Exec(ctx, query, args, v)
}

func (d *DebugDriver) describe(ctx context.Context, kind, query string, args any) string {
	if op := OperationFrom(ctx); op != "" {
		return fmt.Sprintf("%s [%s]: %s args: %v", kind, op, query, args)
	}
	return fmt.Sprintf("%s: %s args: %v", kind, query, args)
}

// Ensure interfaces are implemented.
var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
)
