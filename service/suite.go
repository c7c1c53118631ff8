package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"memlab/config"
	"memlab/infra/memory"
	"memlab/infra/metrics"
	"memlab/infra/sequence"
	"memlab/report"
)

const (
	ringNodes       = 3
	retiredObjects  = 4
	runtimeGCBudget = 10 * time.Second
)

// Recorder persists finished reports.
type Recorder interface {
	Put(*report.Report) error
}

// Suite runs every demonstration in order.
type Suite struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	seq     *sequence.Sequencer
	rec     Recorder
	now     func() time.Time
}

type SuiteOption func(*Suite)

func WithLogger(l *zap.Logger) SuiteOption { return func(s *Suite) { s.log = l } }

func WithMetrics(m *metrics.Metrics) SuiteOption { return func(s *Suite) { s.metrics = m } }

// WithRecorder stores every report after a successful run.
func WithRecorder(r Recorder) SuiteOption { return func(s *Suite) { s.rec = r } }

// WithSequencer sets where run ids come from. The default starts at 1.
func WithSequencer(seq *sequence.Sequencer) SuiteOption {
	return func(s *Suite) { s.seq = seq }
}

func NewSuite(cfg config.Config, opts ...SuiteOption) *Suite {
	s := &Suite{
		cfg: cfg,
		log: zap.NewNop(),
		seq: sequence.New(0),
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type section struct {
	title string
	run   func(ctx context.Context, w io.Writer, sec *report.Section) error
}

func (s *Suite) sections() []section {
	return []section{
		{"REFERENCE COUNTING DEMONSTRATION", s.referenceCounting},
		{"CIRCULAR REFERENCE DEMONSTRATION", s.circularReference},
		{"WEAK REFERENCE DEMONSTRATION", s.weakReference},
		{"DATA STRUCTURE MEMORY COMPARISON", s.dataStructures},
		{"ITERATOR VS SLICE COMPARISON", s.lazyVsEager},
		{"OBJECT POOLING DEMONSTRATION", s.objectPooling},
		{"GARBAGE COLLECTION STATISTICS", s.gcStatistics},
		{"EPOCH-BASED RECLAMATION", s.deferredReclamation},
	}
}

// Run prints the narration of every demonstration to w and returns the
// report of the run. With a recorder configured the report is stored too.
func (s *Suite) Run(ctx context.Context, w io.Writer) (*report.Report, error) {
	r := &report.Report{
		ID:        s.seq.Next(),
		Instance:  uuid.NewString(),
		StartedAt: s.now(),
		Host:      hostInfo(),
	}
	log := s.log.With(zap.Uint64("run", r.ID))
	log.Info("suite started")

	fmt.Fprintln(w, "Go Memory Management Analysis")
	fmt.Fprintln(w, "=============================")

	for i, sec := range s.sections() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "suite: before section %d", i+1)
		}
		fmt.Fprintf(w, "\n%d. %s\n", i+1, sec.title)
		fmt.Fprintln(w, strings.Repeat("-", len(sec.title)+3))

		rs := report.Section{Number: i + 1, Title: sec.title}
		var narration bytes.Buffer
		start := time.Now()
		err := sec.run(ctx, io.MultiWriter(w, &narration), &rs)
		rs.Duration = time.Since(start)
		noteLines(&rs, narration.String())
		if err != nil {
			log.Error("section failed", zap.String("section", sec.title), zap.Error(err))
			return nil, errors.Wrapf(err, "suite: section %d %s", i+1, sec.title)
		}
		r.Sections = append(r.Sections, rs)
		if s.metrics != nil {
			s.metrics.SectionDuration.WithLabelValues(sec.title).Observe(rs.Duration.Seconds())
		}
		log.Debug("section done", zap.String("section", sec.title), zap.Duration("took", rs.Duration))
	}

	fmt.Fprintln(w, "\nMemory Management Analysis Complete")

	r.Duration = s.now().Sub(r.StartedAt)
	if rss, err := memory.ProcessRSS(); err != nil {
		log.Warn("rss unavailable", zap.Error(err))
	} else {
		r.Host.RSSBytes = rss
	}
	if s.metrics != nil {
		s.metrics.Runs.Inc()
	}
	if s.rec != nil {
		if err := s.rec.Put(r); err != nil {
			return r, errors.Wrapf(err, "suite: record run %d", r.ID)
		}
		log.Info("report recorded")
	}
	log.Info("suite finished", zap.Duration("took", r.Duration))
	return r, nil
}

// noteLines keeps every non-blank narration line of a section in the report.
func noteLines(sec *report.Section, text string) {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			sec.Note(line)
		}
	}
}

func hostInfo() report.Host {
	name, _ := os.Hostname()
	return report.Host{
		Hostname:  name,
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}
}

func (s *Suite) collected(collector string, n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.ObjectsCollected.WithLabelValues(collector).Add(float64(n))
	}
}

// -------------------- Sections --------------------

func (s *Suite) referenceCounting(_ context.Context, w io.Writer, sec *report.Section) error {
	res, err := DemonstrateReferenceCounting(w)
	if err != nil {
		return err
	}
	for i, c := range res.Counts {
		sec.Add(fmt.Sprintf("refcount_step_%d", i+1), float64(c), "refs")
	}
	sec.Add("destroyed_at_release", float64(res.DestroyedAtRelease), "")
	s.collected("refcount", 1)
	return nil
}

func (s *Suite) circularReference(ctx context.Context, w io.Writer, sec *report.Section) error {
	ctx, cancel := context.WithTimeout(ctx, runtimeGCBudget)
	defer cancel()
	res, err := CreateCircularReference(ctx, w, ringNodes)
	if err != nil {
		return err
	}
	cycleMetrics(sec, res)
	s.collected("cycle", res.Collected)
	s.collected("runtime", res.RuntimeReclaimed)
	return nil
}

func (s *Suite) weakReference(ctx context.Context, w io.Writer, sec *report.Section) error {
	ctx, cancel := context.WithTimeout(ctx, runtimeGCBudget)
	defer cancel()
	res, err := FixCircularReference(ctx, w, ringNodes)
	if err != nil {
		return err
	}
	cycleMetrics(sec, res)
	s.collected("refcount", res.ReclaimedByCounting)
	s.collected("runtime", res.RuntimeReclaimed)
	return nil
}

func cycleMetrics(sec *report.Section, res CycleResult) {
	sec.Add("nodes", float64(res.Nodes), "objects").
		Add("reclaimed_by_counting", float64(res.ReclaimedByCounting), "objects").
		Add("leaked_after_release", float64(res.LeakedAfterRelease), "objects").
		Add("collected", float64(res.Collected), "objects").
		Add("runtime_reclaimed", float64(res.RuntimeReclaimed), "objects").
		Add("runtime_survivors", float64(res.RuntimeSurvivors), "objects")
}

func (s *Suite) dataStructures(_ context.Context, w io.Writer, sec *report.Section) error {
	for _, m := range CompareDataStructures(w, s.cfg.Count) {
		sec.Add(m.Name+" shallow", float64(m.Shallow), "bytes")
		sec.Add(m.Name+" allocated", float64(m.Allocated), "bytes")
	}
	return nil
}

func (s *Suite) lazyVsEager(_ context.Context, w io.Writer, sec *report.Section) error {
	res := DemonstrateLazyVsEager(w, s.cfg.LazyCount)
	if res.EagerSum != res.LazySum {
		return errors.Newf("slice and iterator disagree: %d != %d", res.EagerSum, res.LazySum)
	}
	sec.Add("eager_bytes", float64(res.EagerBytes), "bytes").
		Add("lazy_bytes", float64(res.LazyBytes), "bytes").
		Add("ratio", res.Ratio, "x").
		Add("eager_create", res.EagerCreate.Seconds(), "s").
		Add("lazy_create", res.LazyCreate.Seconds(), "s").
		Add("eager_process", res.EagerProcess.Seconds(), "s").
		Add("lazy_process", res.LazyProcess.Seconds(), "s")
	return nil
}

func (s *Suite) objectPooling(_ context.Context, w io.Writer, sec *report.Section) error {
	res, err := DemonstrateObjectPooling(w, PoolingConfig{
		Size:        s.cfg.PoolSize,
		Iterations:  s.cfg.Iterations,
		FactoryCost: s.cfg.FactoryCost,
	})
	if err != nil {
		return err
	}
	sec.Add("pooled", res.Pooled.Seconds(), "s").
		Add("unpooled", res.Unpooled.Seconds(), "s").
		Add("sync_pooled", res.SyncPooled.Seconds(), "s").
		Add("constructed", float64(res.Constructed), "objects").
		Add("pool_len", float64(res.PoolLen), "objects").
		Add("speedup", res.Speedup, "x")
	if s.metrics != nil {
		s.metrics.PoolSize.Set(float64(res.PoolLen))
	}
	return nil
}

func (s *Suite) gcStatistics(_ context.Context, w io.Writer, sec *report.Section) error {
	st := DemonstrateGCStatistics(w)
	sec.Add("objects_before", float64(st.ObjectsBefore), "objects").
		Add("objects_after", float64(st.ObjectsAfter), "objects").
		Add("objects_cleaned", float64(st.Cleaned()), "objects").
		Add("heap_alloc", float64(st.Heap.HeapAlloc), "bytes").
		Add("num_gc", float64(st.Heap.NumGC), "").
		Add("pause_total", st.Heap.PauseTotal.Seconds(), "s")
	if st.RSS > 0 {
		sec.Add("rss", float64(st.RSS), "bytes")
	}
	s.collected("runtime", int(st.Cleaned()))
	return nil
}

func (s *Suite) deferredReclamation(_ context.Context, w io.Writer, sec *report.Section) error {
	res, err := DemonstrateDeferredReclamation(w, retiredObjects)
	if err != nil {
		return err
	}
	reused := 0.0
	if res.Reused {
		reused = 1
	}
	sec.Add("retired", float64(res.Retired), "objects").
		Add("reclaimed_in_read", float64(res.ReclaimedInRead), "objects").
		Add("reclaimed_after_read", float64(res.ReclaimedAfterRead), "objects").
		Add("dropped", float64(res.Dropped), "objects").
		Add("pool_len", float64(res.PoolLen), "objects").
		Add("reused", reused, "")
	s.collected("epoch", res.ReclaimedAfterRead)
	return nil
}
