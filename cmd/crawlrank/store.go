package main

import (
	"io"
	"net/url"
	"strings"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/linkgraph/graph"
	"github.com/crawlrank/crawlrank/store/cdb"
	"github.com/crawlrank/crawlrank/store/memory"
	"github.com/crawlrank/crawlrank/store/sqlite"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Store combines the index and link graph views of a backing store.
type Store interface {
	index.Indexer
	graph.Graph
	io.Closer
}

func openStore(storeURI string, logger *logrus.Entry) (Store, error) {
	if storeURI == "" {
		return nil, xerrors.Errorf("store URI must be specified with --store-uri")
	}

	uri, err := url.Parse(storeURI)
	if err != nil {
		return nil, xerrors.Errorf("could not parse store URI: %w", err)
	}

	switch uri.Scheme {
	case "in-memory":
		logger.Info("using in-memory store")
		return memory.NewInMemoryStore(), nil
	case "sqlite":
		path := strings.TrimPrefix(storeURI, "sqlite://")
		logger.WithField("path", path).Info("using SQLite store")
		return sqlite.NewSQLiteStore(path)
	case "postgresql":
		logger.Info("using CockroachDB store")
		return cdb.NewCockroachDBStore(storeURI)
	default:
		return nil, xerrors.Errorf("unsupported store URI scheme: %q", uri.Scheme)
	}
}
