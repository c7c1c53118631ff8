package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memlab/api/grpcserver"
	"memlab/config"
	"memlab/infra/kafka"
	"memlab/infra/logging"
	"memlab/infra/metrics"
	"memlab/infra/sequence"
	"memlab/infra/store"
	"memlab/jobs/broadcaster"
	"memlab/report"
	"memlab/service"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "memlab",
		Short:         "Demonstrate and measure Go memory management",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSuite,
	}
	config.RegisterFlags(root.PersistentFlags())

	history := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		RunE:  runHistory,
	}
	history.Flags().Int("limit", 10, "number of runs to show, 0 for all")
	history.Flags().Bool("json", false, "print full reports as JSON")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve suite runs over gRPC and metrics over HTTP",
		RunE:  runServe,
	}
	config.RegisterServeFlags(serve.Flags())

	root.AddCommand(
		&cobra.Command{Use: "run", Short: "Run every demonstration once", RunE: runSuite},
		history,
		serve,
	)
	return root
}

// ------------------------------------------------
// SHARED SETUP
// ------------------------------------------------

type app struct {
	cfg   config.Config
	log   *zap.Logger
	store *store.Store
}

func setup(cmd *cobra.Command) (*app, error) {
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if cfg.RecordDir != "" {
		if a.store, err = store.Open(cfg.RecordDir); err != nil {
			log.Error("store open failed", zap.String("dir", cfg.RecordDir), zap.Error(err))
			return nil, err
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func (a *app) suite(m *metrics.Metrics) (*service.Suite, error) {
	opts := []service.SuiteOption{service.WithLogger(a.log), service.WithMetrics(m)}
	if a.store != nil {
		last, err := a.store.LastID()
		if err != nil {
			return nil, err
		}
		seq := sequence.New(last)
		a.log.Debug("run ids resume", zap.Uint64("last", seq.Current()))
		opts = append(opts, service.WithRecorder(a.store), service.WithSequencer(seq))
	}
	return service.NewSuite(a.cfg, opts...), nil
}

func (a *app) publisher() (broadcaster.Publisher, error) {
	switch a.cfg.KafkaClient {
	case config.KafkaClientKafkaGo:
		return kafka.NewProducer(a.cfg.Brokers, a.cfg.Topic), nil
	default:
		p, err := broadcaster.NewSaramaPublisher(a.cfg.Brokers, a.cfg.Topic)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// startBroadcaster publishes recorded reports until ctx is done. The
// returned stop cancels it and waits for its final drain.
func (a *app) startBroadcaster(ctx context.Context) (stop func(), err error) {
	if !a.cfg.Publishing() {
		return func() {}, nil
	}
	pub, err := a.publisher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	b := broadcaster.New(a.store, pub, a.cfg.PublishTick, a.log)
	b.Start(ctx)
	a.log.Info("publishing reports",
		zap.Strings("brokers", a.cfg.Brokers),
		zap.String("topic", a.cfg.Topic),
		zap.String("client", a.cfg.KafkaClient),
	)
	return func() {
		cancel()
		b.Wait()
		if err := pub.Close(); err != nil {
			a.log.Warn("publisher close", zap.Error(err))
		}
	}, nil
}

// ------------------------------------------------
// RUN
// ------------------------------------------------

func runSuite(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	stop, err := a.startBroadcaster(cmd.Context())
	if err != nil {
		a.log.Error("publisher init failed", zap.Error(err))
		return err
	}
	defer stop()

	s, err := a.suite(metrics.New())
	if err != nil {
		return err
	}
	if _, err := s.Run(cmd.Context(), cmd.OutOrStdout()); err != nil {
		a.log.Error("run failed", zap.Error(err))
		return err
	}
	return nil
}

// ------------------------------------------------
// HISTORY
// ------------------------------------------------

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	if a.store == nil {
		return errors.New("history needs --record")
	}

	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	entries, err := a.store.List(limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		for _, e := range entries {
			r, err := e.Report()
			if err != nil {
				return err
			}
			b, err := report.JSON(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tSTARTED\tDURATION\tSECTIONS\tRSS")
	for _, e := range entries {
		r, err := e.Report()
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, e.State, humanize.Time(r.StartedAt), r.Duration.Round(time.Millisecond),
			len(r.Sections), humanize.IBytes(r.Host.RSSBytes))
	}
	return tw.Flush()
}

// ------------------------------------------------
// SERVE
// ------------------------------------------------

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	stop, err := a.startBroadcaster(ctx)
	if err != nil {
		return err
	}
	defer stop()

	m := metrics.New()
	s, err := a.suite(m)
	if err != nil {
		return err
	}
	var reports grpcserver.Reports
	if a.store != nil {
		reports = a.store
	}
	g := grpcserver.New(grpcserver.NewServer(s, reports, a.log))

	lis, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", a.cfg.Addr)
	}

	errc := make(chan error, 2)
	go func() { errc <- errors.Wrap(g.Serve(lis), "grpc") }()
	a.log.Info("grpc listening", zap.String("addr", lis.Addr().String()))

	var hs *http.Server
	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		hs = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- errors.Wrap(err, "metrics")
			}
		}()
		a.log.Info("metrics listening", zap.String("addr", a.cfg.MetricsAddr))
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err = <-errc:
		a.log.Error("server failed", zap.Error(err))
	}

	g.GracefulStop()
	if hs != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}
	return err
}
