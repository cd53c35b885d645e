package fbclient

import (
	"net/http"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/interfaces"
)

// Config holds the configurable options of the client. The zero value of any field
// means "use the default"; DefaultConfig lists the defaults explicitly.
type Config struct {
	// StreamURI is the base URI of the streaming control plane. The client connects to
	// StreamURI + "/all".
	StreamURI string

	// InitialReconnectDelay is the delay before the first stream reconnection attempt.
	// Subsequent attempts back off exponentially, with jitter, up to a fixed maximum.
	InitialReconnectDelay time.Duration

	// Offline disables all network activity. Evaluations return default values with a
	// CLIENT_NOT_READY error reason, even when a persistent store already holds data.
	Offline bool

	// PersistentDataStore, if set, is a database integration (such as fbredis,
	// fbconsul, or fbdynamodb) that mirrors the ruleset. The client always accesses it
	// through a caching wrapper configured by PersistentDataStoreCacheTTL.
	PersistentDataStore interfaces.PersistentDataStore

	// PersistentDataStoreCacheTTL controls the wrapper cache when PersistentDataStore
	// is set. Zero disables caching; a negative value means cached data never expires
	// and the in-memory view survives database outages.
	PersistentDataStoreCacheTTL time.Duration

	// HTTPClient, if set, is used for the streaming connection.
	HTTPClient *http.Client

	// Loggers receives the SDK's log output. The zero value logs to standard error at
	// Info level.
	Loggers ldlog.Loggers

	// DataStore, if set, replaces the SDK's own data store entirely. Intended for
	// tests; it takes precedence over PersistentDataStore.
	DataStore interfaces.DataStore

	// DataSourceFactory, if set, replaces the streaming data source. Intended for
	// tests.
	DataSourceFactory func(store interfaces.DataStore) interfaces.DataSource
}

// DefaultConfig holds the values used for fields left as their zero value. The cache
// TTL is not defaulted: a zero TTL is a meaningful setting (no caching).
var DefaultConfig = Config{
	StreamURI:             "https://stream.featurebridge.com",
	InitialReconnectDelay: time.Second,
}

func (c Config) withDefaults() Config {
	if c.StreamURI == "" {
		c.StreamURI = DefaultConfig.StreamURI
	}
	if c.InitialReconnectDelay <= 0 {
		c.InitialReconnectDelay = DefaultConfig.InitialReconnectDelay
	}
	return c
}
