// Package api exposes the search, ingestion and statistics operations over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crawlrank/crawlrank/authority"
	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/query"
	"github.com/crawlrank/crawlrank/ranking"
	"github.com/crawlrank/crawlrank/stats"
	"github.com/gorilla/mux"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/crawlrank/crawlrank/service/api Searcher,Ingester,Recomputer,StatsReporter

const (
	searchEndpoint    = "/search"
	documentsEndpoint = "/documents"
	linksEndpoint     = "/links"
	authorityEndpoint = "/authority"
	statsEndpoint     = "/stats"
	metricsEndpoint   = "/metrics"

	defaultStatsLimit = 10
)

// Searcher ranks the documents that match a query.
type Searcher interface {
	Rank(ctx context.Context, text string) ([]ranking.Result, error)
}

// Ingester records crawled documents and links.
type Ingester interface {
	IngestDocument(ctx context.Context, url string, tokens []string) (int64, error)
	IngestLink(ctx context.Context, fromURL, toURL string, anchorTokens []string) (int64, error)
}

// Recomputer rebuilds the authority score table.
type Recomputer interface {
	Recompute(ctx context.Context, iterations int, damping float64) (authority.Result, error)
}

// StatsReporter summarizes the index contents.
type StatsReporter interface {
	Summarize(limit int) (*stats.Summary, error)
}

// Config encapsulates the settings for configuring the API service.
type Config struct {
	Searcher   Searcher
	Ingester   Ingester
	Recomputer Recomputer
	Stats      StatsReporter

	// The address to listen for incoming requests.
	ListenAddr string

	// The number of entries in the ranked lists returned by the stats
	// endpoint. If not specified, a default value of 10 will be used
	// instead.
	StatsLimit int

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.ListenAddr == "" {
		err = multierror.Append(err, xerrors.Errorf("listen address has not been specified"))
	}
	if cfg.Searcher == nil {
		err = multierror.Append(err, xerrors.Errorf("searcher has not been provided"))
	}
	if cfg.Ingester == nil {
		err = multierror.Append(err, xerrors.Errorf("ingester has not been provided"))
	}
	if cfg.Recomputer == nil {
		err = multierror.Append(err, xerrors.Errorf("recomputer has not been provided"))
	}
	if cfg.Stats == nil {
		err = multierror.Append(err, xerrors.Errorf("stats reporter has not been provided"))
	}
	if cfg.StatsLimit <= 0 {
		cfg.StatsLimit = defaultStatsLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Service implements the HTTP API.
type Service struct {
	cfg    Config
	router *mux.Router
}

// NewService creates a new API service instance with the specified config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("api service: config validation failed: %w", err)
	}

	svc := &Service{
		router: mux.NewRouter(),
		cfg:    cfg,
	}

	svc.router.HandleFunc(searchEndpoint, svc.instrument("search", svc.search)).Methods("GET")
	svc.router.HandleFunc(documentsEndpoint, svc.instrument("documents", svc.addDocument)).Methods("POST")
	svc.router.HandleFunc(linksEndpoint, svc.instrument("links", svc.addLink)).Methods("POST")
	svc.router.HandleFunc(authorityEndpoint, svc.instrument("authority", svc.recompute)).Methods("POST")
	svc.router.HandleFunc(statsEndpoint, svc.instrument("stats", svc.stats)).Methods("GET")
	svc.router.Handle(metricsEndpoint, promhttp.Handler()).Methods("GET")
	svc.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, xerrors.New("endpoint not found"))
	})
	return svc, nil
}

// Name implements service.Service
func (svc *Service) Name() string { return "api" }

// Run implements service.Service
func (svc *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", svc.cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	srv := &http.Server{
		Addr:    svc.cfg.ListenAddr,
		Handler: svc.router,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	svc.cfg.Logger.WithField("addr", svc.cfg.ListenAddr).Info("starting API server")
	if err = srv.Serve(l); err == http.ErrServerClosed {
		// Ignore error when the server shuts down.
		err = nil
	}
	return err
}

// ServeHTTP implements http.Handler.
func (svc *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	svc.router.ServeHTTP(w, r)
}

type searchResponse struct {
	Query   string           `json:"query"`
	Results []ranking.Result `json:"results"`
}

func (svc *Service) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, xerrors.New("missing search query"))
		return
	}

	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		var err error
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, xerrors.Errorf("invalid limit %q", v))
			return
		}
	}

	results, err := svc.cfg.Searcher.Rank(r.Context(), q)
	if err != nil {
		if xerrors.Is(err, query.ErrTermNotIndexed) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		svc.cfg.Logger.WithField("err", err).Error("search failed")
		writeError(w, http.StatusInternalServerError, xerrors.New("search failed"))
		return
	}

	queryResults.Observe(float64(len(results)))
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Results: results})
}

type documentRequest struct {
	URL    string   `json:"url"`
	Tokens []string `json:"tokens"`
}

func (svc *Service) addDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, xerrors.New("invalid document payload"))
		return
	}

	docID, err := svc.cfg.Ingester.IngestDocument(r.Context(), req.URL, req.Tokens)
	if err != nil {
		if xerrors.Is(err, index.ErrDuplicateIngestion) {
			ingestedDocs.WithLabelValues("duplicate").Inc()
			writeError(w, http.StatusConflict, err)
			return
		}
		ingestedDocs.WithLabelValues("error").Inc()
		svc.cfg.Logger.WithFields(logrus.Fields{"url": req.URL, "err": err}).Error("document ingestion failed")
		writeError(w, http.StatusInternalServerError, xerrors.New("document ingestion failed"))
		return
	}

	ingestedDocs.WithLabelValues("indexed").Inc()
	writeJSON(w, http.StatusCreated, map[string]int64{"document_id": docID})
}

type linkRequest struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Anchor []string `json:"anchor"`
}

func (svc *Service) addLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, xerrors.New("invalid link payload"))
		return
	}

	edgeID, err := svc.cfg.Ingester.IngestLink(r.Context(), req.From, req.To, req.Anchor)
	if err != nil {
		svc.cfg.Logger.WithFields(logrus.Fields{"from": req.From, "to": req.To, "err": err}).Error("link ingestion failed")
		writeError(w, http.StatusInternalServerError, xerrors.New("link ingestion failed"))
		return
	}

	ingestedLinks.Inc()
	writeJSON(w, http.StatusOK, map[string]int64{"edge_id": edgeID})
}

type recomputeRequest struct {
	Iterations    int     `json:"iterations"`
	DampingFactor float64 `json:"damping"`
}

type recomputeResponse struct {
	RunID         string  `json:"run_id"`
	Documents     int     `json:"documents"`
	Edges         int     `json:"edges"`
	Iterations    int     `json:"iterations"`
	DampingFactor float64 `json:"damping"`
	Elapsed       string  `json:"elapsed"`
}

func (svc *Service) recompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, xerrors.New("invalid recompute payload"))
			return
		}
	}
	if req.Iterations < 0 || req.DampingFactor < 0 || req.DampingFactor > 1 {
		writeError(w, http.StatusBadRequest, xerrors.New("invalid recompute parameters"))
		return
	}

	res, err := svc.cfg.Recomputer.Recompute(r.Context(), req.Iterations, req.DampingFactor)
	if err != nil {
		svc.cfg.Logger.WithField("err", err).Error("authority recomputation failed")
		writeError(w, http.StatusInternalServerError, xerrors.New("authority recomputation failed"))
		return
	}

	writeJSON(w, http.StatusOK, recomputeResponse{
		RunID:         res.RunID.String(),
		Documents:     res.Documents,
		Edges:         res.Edges,
		Iterations:    res.Iterations,
		DampingFactor: res.DampingFactor,
		Elapsed:       res.Elapsed.String(),
	})
}

func (svc *Service) stats(w http.ResponseWriter, _ *http.Request) {
	summary, err := svc.cfg.Stats.Summarize(svc.cfg.StatsLimit)
	if err != nil {
		svc.cfg.Logger.WithField("err", err).Error("stats collection failed")
		writeError(w, http.StatusInternalServerError, xerrors.New("stats collection failed"))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// instrument wraps a handler with request count and latency metrics.
func (svc *Service) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rec, r)
		requestTime.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		requestCount.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
