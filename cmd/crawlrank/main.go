package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/crawlrank/crawlrank/authority"
	"github.com/crawlrank/crawlrank/ingest"
	"github.com/crawlrank/crawlrank/query"
	"github.com/crawlrank/crawlrank/ranking"
	"github.com/crawlrank/crawlrank/service"
	"github.com/crawlrank/crawlrank/service/api"
	authoritysvc "github.com/crawlrank/crawlrank/service/authority"
	"github.com/crawlrank/crawlrank/stats"
	"github.com/crawlrank/crawlrank/tracing"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

// defaultMaxCombinations bounds the position combinations built for a
// single document when matching queries with repeated or frequent words.
const defaultMaxCombinations = 1000

var (
	appName = "crawlrank"
	appSha  = "populated-at-link-time"
	logger  *logrus.Entry

	tracerCloser io.Closer
)

func main() {
	host, _ := os.Hostname()
	rootLogger := logrus.New()
	rootLogger.SetFormatter(new(logrus.JSONFormatter))
	logger = rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"sha":  appSha,
		"host": host,
	})

	if err := makeApp().Run(os.Args); err != nil {
		logger.WithField("err", err).Error("shutting down due to error")
		_ = os.Stderr.Sync()
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "index crawled pages and rank them by proximity and authority"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "store-uri",
			Value:  "in-memory://",
			EnvVar: "STORE_URI",
			Usage:  "The URI for connecting to the store (supported URIs: in-memory://, sqlite:///path/to/db, postgresql://user@host:26257/crawlrank?sslmode=disable)",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			EnvVar: "LOG_LEVEL",
			Usage:  "The minimum level of the emitted log entries",
		},
		cli.IntFlag{
			Name:   "iterations",
			Value:  authority.DefaultIterations,
			EnvVar: "AUTHORITY_ITERATIONS",
			Usage:  "The number of propagation rounds for authority scoring",
		},
		cli.Float64Flag{
			Name:   "damping",
			Value:  authority.DefaultDampingFactor,
			EnvVar: "AUTHORITY_DAMPING",
			Usage:  "The damping factor for authority scoring",
		},
		cli.BoolFlag{
			Name:   "tracing",
			EnvVar: "TRACING_ENABLED",
			Usage:  "Report spans to a Jaeger agent configured through the JAEGER_* environment variables",
		},
		cli.IntFlag{
			Name:   "num-workers",
			Value:  runtime.NumCPU(),
			EnvVar: "NUM_WORKERS",
			Usage:  "The number of workers for ingestion and authority scoring (defaults to number of CPUs)",
		},
		cli.IntFlag{
			Name:   "max-combinations",
			Value:  defaultMaxCombinations,
			EnvVar: "MAX_COMBINATIONS",
			Usage:  "The maximum number of position combinations evaluated per matching document; 0 disables the cap. Combinations are produced starting with the earliest positions so the cap never changes the ranking",
		},
	}
	app.Before = func(appCtx *cli.Context) error {
		level, err := logrus.ParseLevel(appCtx.GlobalString("log-level"))
		if err != nil {
			return err
		}
		logger.Logger.SetLevel(level)

		if appCtx.GlobalBool("tracing") {
			if tracerCloser, err = tracing.Setup(appName); err != nil {
				return err
			}
			logger.Info("reporting spans to jaeger")
		}
		return nil
	}
	app.After = func(*cli.Context) error {
		if tracerCloser == nil {
			return nil
		}
		return tracerCloser.Close()
	}
	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "Serve the HTTP API and recompute authority scores periodically",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "listen-addr",
					Value:  ":8080",
					EnvVar: "LISTEN_ADDR",
					Usage:  "The address to listen for incoming API requests",
				},
				cli.DurationFlag{
					Name:   "update-interval",
					Value:  time.Hour,
					EnvVar: "UPDATE_INTERVAL",
					Usage:  "The time between subsequent authority score updates",
				},
			},
			Action: runServe,
		},
		{
			Name:      "ingest",
			Usage:     "Ingest crawler records encoded as JSON lines",
			ArgsUsage: "[FILE]",
			Action:    runIngest,
		},
		{
			Name:      "search",
			Usage:     "Rank the documents that contain every query term",
			ArgsUsage: "QUERY",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "limit",
					Value: 10,
					Usage: "The maximum number of results to display; 0 displays all results",
				},
			},
			Action: runSearch,
		},
		{
			Name:   "recompute",
			Usage:  "Recompute the authority scores",
			Action: runRecompute,
		},
		{
			Name:  "stats",
			Usage: "Display index statistics",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "limit",
					Value: 10,
					Usage: "The number of entries in the ranked lists",
				},
			},
			Action: runStats,
		},
	}
	return app
}

// components bundles the objects built on top of a store.
type components struct {
	store      Store
	ingester   *ingest.Ingester
	matcher    *query.Matcher
	ranker     *ranking.Ranker
	calculator *authority.Calculator
	reporter   *stats.Reporter
}

func setupComponents(appCtx *cli.Context) (*components, error) {
	st, err := openStore(appCtx.GlobalString("store-uri"), logger)
	if err != nil {
		return nil, err
	}

	cmp, err := newComponents(st, componentOptions{
		Iterations:      appCtx.GlobalInt("iterations"),
		DampingFactor:   appCtx.GlobalFloat64("damping"),
		NumWorkers:      appCtx.GlobalInt("num-workers"),
		MaxCombinations: appCtx.GlobalInt("max-combinations"),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return cmp, nil
}

// componentOptions holds the tunables that are exposed as global flags.
type componentOptions struct {
	Iterations      int
	DampingFactor   float64
	NumWorkers      int
	MaxCombinations int
}

func newComponents(st Store, opts componentOptions) (*components, error) {
	var err error
	cmp := &components{store: st, reporter: stats.NewReporter(st)}
	if cmp.ingester, err = ingest.NewIngester(ingest.Config{
		Registry: st,
		Index:    st,
		Graph:    st,
		Logger:   logger.WithField("component", "ingester"),
	}); err != nil {
		return nil, err
	}

	if cmp.matcher, err = query.NewMatcher(query.Config{
		Terms:           st,
		Index:           st,
		MaxCombinations: opts.MaxCombinations,
	}); err != nil {
		return nil, err
	}
	if cmp.ranker, err = ranking.NewRanker(ranking.Config{
		Matcher:   cmp.matcher,
		Scores:    st,
		Documents: st,
		Logger:    logger.WithField("component", "ranker"),
	}); err != nil {
		return nil, err
	}

	if cmp.calculator, err = authority.NewCalculator(authority.Config{
		Documents:      st,
		Edges:          st,
		Scores:         st,
		Iterations:     opts.Iterations,
		DampingFactor:  opts.DampingFactor,
		ComputeWorkers: opts.NumWorkers,
		Logger:         logger.WithField("component", "authority"),
	}); err != nil {
		return nil, err
	}
	return cmp, nil
}

func (cmp *components) Close() error {
	if err := cmp.calculator.Close(); err != nil {
		_ = cmp.store.Close()
		return err
	}
	return cmp.store.Close()
}

func runServe(appCtx *cli.Context) error {
	cmp, err := setupComponents(appCtx)
	if err != nil {
		return err
	}
	defer func() { _ = cmp.Close() }()

	var svcGroup service.Group
	apiSvc, err := api.NewService(api.Config{
		Searcher:   cmp.ranker,
		Ingester:   cmp.ingester,
		Recomputer: cmp.calculator,
		Stats:      cmp.reporter,
		ListenAddr: appCtx.String("listen-addr"),
		Logger:     logger.WithField("service", "api"),
	})
	if err != nil {
		return err
	}
	svcGroup = append(svcGroup, apiSvc)

	authSvc, err := authoritysvc.NewService(authoritysvc.Config{
		Recomputer:     cmp.calculator,
		UpdateInterval: appCtx.Duration("update-interval"),
		Logger:         logger.WithField("service", "authority"),
	})
	if err != nil {
		return err
	}
	svcGroup = append(svcGroup, authSvc)

	ctx, cancelFn := signalContext()
	defer cancelFn()
	return svcGroup.Run(ctx)
}

func runIngest(appCtx *cli.Context) error {
	var in io.Reader = os.Stdin
	if path := appCtx.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	cmp, err := setupComponents(appCtx)
	if err != nil {
		return err
	}
	defer func() { _ = cmp.Close() }()

	ctx, cancelFn := signalContext()
	defer cancelFn()

	res, err := ingest.NewPipeline(cmp.ingester, appCtx.GlobalInt("num-workers")).Process(ctx, ingest.NewJSONLinesSource(in))
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runSearch(appCtx *cli.Context) error {
	if !appCtx.Args().Present() {
		return xerrors.New("search: a query must be specified")
	}

	cmp, err := setupComponents(appCtx)
	if err != nil {
		return err
	}
	defer func() { _ = cmp.Close() }()

	ctx, cancelFn := signalContext()
	defer cancelFn()

	results, err := cmp.ranker.Rank(ctx, strings.Join(appCtx.Args(), " "))
	if err != nil {
		return err
	}
	if limit := appCtx.Int("limit"); limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return printJSON(results)
}

func runRecompute(appCtx *cli.Context) error {
	cmp, err := setupComponents(appCtx)
	if err != nil {
		return err
	}
	defer func() { _ = cmp.Close() }()

	ctx, cancelFn := signalContext()
	defer cancelFn()

	// Zero values select the iterations and damping configured for the
	// calculator.
	res, err := cmp.calculator.Recompute(ctx, 0, 0)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"run_id":    res.RunID.String(),
		"documents": res.Documents,
		"edges":     res.Edges,
		"elapsed":   res.Elapsed.String(),
	}).Info("recomputed authority scores")
	return nil
}

func runStats(appCtx *cli.Context) error {
	cmp, err := setupComponents(appCtx)
	if err != nil {
		return err
	}
	defer func() { _ = cmp.Close() }()

	summary, err := cmp.reporter.Summarize(appCtx.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// signalContext returns a context that gets cancelled when the process
// receives SIGINT or SIGHUP.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP)
		defer signal.Stop(sigCh)
		select {
		case s := <-sigCh:
			logger.WithField("signal", s.String()).Infof("shutting down due to signal")
			cancelFn()
		case <-ctx.Done():
		}
	}()
	return ctx, cancelFn
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return xerrors.Errorf("encode output: %w", err)
	}
	return nil
}
