package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	es "github.com/launchdarkly/eventsource"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/interfaces"
)

// StreamProcessor is the streaming data source: a single consumer loop over a
// server-sent-event channel that translates put/patch/delete messages into data store
// mutations. The lower-level SSE mechanics, including reconnection with capped
// exponential backoff and jitter, live in the eventsource package.
//
// Error handling:
//  1. A malformed event means updates may have been missed, so the stream is dropped
//     and restarted.
//  2. A data store failure likewise means an update was lost; the stream is restarted
//     so the store can be repopulated once it recovers.
//  3. An unrecoverable HTTP error (any 4xx status other than 400, 408, or 429, such as
//     401 or 403) permanently stops the processor. All other HTTP or network errors
//     are retried.
//  4. The closeWhenReady channel is closed as soon as the first full data set has been
//     stored, or when the processor has permanently failed, whichever comes first.
type StreamProcessor struct {
	store                 interfaces.DataStore
	streamURI             string
	initialReconnectDelay time.Duration
	client                *http.Client
	headers               http.Header
	loggers               ldlog.Loggers
	setInitializedOnce    sync.Once
	isInitialized         bool
	initLock              sync.RWMutex
	halt                  chan struct{}
	readyOnce             sync.Once
	closeOnce             sync.Once
}

const (
	putEvent                 = "put"
	patchEvent               = "patch"
	deleteEvent              = "delete"
	streamingPath            = "/all"
	streamReadTimeout        = 5 * time.Minute // the stream sends a heartbeat comment every 3 minutes
	streamMaxRetryDelay      = 30 * time.Second
	streamRetryResetInterval = 60 * time.Second
	streamJitterRatio        = 0.5
	defaultStreamRetryDelay  = 1 * time.Second

	streamingErrorContext     = "in stream connection"
	streamingWillRetryMessage = "will retry"
)

// NewStreamProcessor creates the streaming data source. The store may be the in-memory
// store or a persistent-store wrapper; the processor does not care which.
func NewStreamProcessor(
	store interfaces.DataStore,
	httpClient *http.Client,
	headers http.Header,
	loggers ldlog.Loggers,
	streamURI string,
	initialReconnectDelay time.Duration,
) *StreamProcessor {
	sp := &StreamProcessor{
		store:                 store,
		streamURI:             strings.TrimSuffix(streamURI, "/"),
		initialReconnectDelay: initialReconnectDelay,
		client:                httpClient,
		headers:               headers,
		loggers:               loggers,
		halt:                  make(chan struct{}),
	}
	if sp.client == nil {
		sp.client = &http.Client{}
	}
	// A nonzero Client.Timeout would break the connection when no full response
	// arrives within that time, which on a stream is always. Read timeouts are
	// enforced per-event by the eventsource options instead.
	sp.client.Timeout = 0
	return sp
}

// IsInitialized returns true once a put event has been successfully stored. A later
// stream restart does not clear it; stale-but-present data keeps serving evaluations
// during a reconnect.
func (sp *StreamProcessor) IsInitialized() bool {
	sp.initLock.RLock()
	defer sp.initLock.RUnlock()
	return sp.isInitialized
}

// Start begins consuming the stream on a background goroutine.
func (sp *StreamProcessor) Start(closeWhenReady chan<- struct{}) {
	sp.loggers.Info("Starting streaming connection")
	go sp.subscribe(closeWhenReady)
}

type parsedPath struct {
	key  string
	kind interfaces.StoreDataKind
}

type putData struct {
	Path string  `json:"path"`
	Data allData `json:"data"`
}

type patchData struct {
	Path string `json:"path"`
	// Data is a flag or a segment, depending on the path.
	Data json.RawMessage `json:"data"`
}

type deleteData struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
}

func parsePath(path string) (parsedPath, error) {
	parsedPath := parsedPath{}
	switch {
	case strings.HasPrefix(path, "/segments/"):
		parsedPath.kind = interfaces.DataKindSegments()
		parsedPath.key = strings.TrimPrefix(path, "/segments/")
	case strings.HasPrefix(path, "/flags/"):
		parsedPath.kind = interfaces.DataKindFeatures()
		parsedPath.key = strings.TrimPrefix(path, "/flags/")
	default:
		return parsedPath, fmt.Errorf("unrecognized path %s", path)
	}
	return parsedPath, nil
}

func (sp *StreamProcessor) consumeStream(stream *es.Stream, closeWhenReady chan<- struct{}) {
	// Drain remaining events and errors on the way out so the stream's goroutines can
	// finish.
	defer func() {
		for range stream.Events {
		}
		if stream.Errors != nil {
			for range stream.Errors {
			}
		}
	}()

	for {
		select {
		case event, ok := <-stream.Events:
			if !ok {
				// The only way the channel closes without an error is an external
				// shutdown.
				sp.loggers.Info("Event stream closed")
				return
			}

			shouldRestart := false

			gotMalformedEvent := func(event es.Event, err error) {
				sp.loggers.Errorf(
					`Received streaming "%s" event with malformed JSON data (%s); will restart stream`,
					event.Event(), err)
				shouldRestart = true
			}

			storeUpdateFailed := func(updateDesc string, err error) {
				sp.loggers.Errorf("Failed to store %s in data store (%s); will restart stream until successful",
					updateDesc, err)
				shouldRestart = true
			}

			switch event.Event() {
			case putEvent:
				var put putData
				if err := json.Unmarshal([]byte(event.Data()), &put); err != nil {
					gotMalformedEvent(event, err)
					break
				}
				if err := sp.store.Init(makeAllStoreData(put.Data.Flags, put.Data.Segments)); err == nil {
					sp.setInitializedAndNotifyClient(closeWhenReady)
				} else {
					storeUpdateFailed("initial streaming data", err)
				}

			case patchEvent:
				var patch patchData
				if err := json.Unmarshal([]byte(event.Data()), &patch); err != nil {
					gotMalformedEvent(event, err)
					break
				}
				path, err := parsePath(patch.Path)
				if err != nil {
					sp.loggers.Warnf("Ignoring patch for unrecognized path %s", patch.Path)
					break
				}
				item, err := path.kind.Deserialize(patch.Data)
				if err != nil {
					gotMalformedEvent(event, err)
					break
				}
				if _, err := sp.store.Upsert(path.kind, path.key, item); err != nil {
					storeUpdateFailed("streaming update of "+path.key, err)
				}

			case deleteEvent:
				var data deleteData
				if err := json.Unmarshal([]byte(event.Data()), &data); err != nil {
					gotMalformedEvent(event, err)
					break
				}
				path, err := parsePath(data.Path)
				if err != nil {
					sp.loggers.Warnf("Ignoring deletion for unrecognized path %s", data.Path)
					break
				}
				tombstone := interfaces.StoreItemDescriptor{Version: data.Version, Item: nil}
				if _, err := sp.store.Upsert(path.kind, path.key, tombstone); err != nil {
					storeUpdateFailed("streaming deletion of "+path.key, err)
				}

			default:
				sp.loggers.Infof("Unexpected event found in stream: %s", event.Event())
			}

			if shouldRestart {
				stream.Restart()
			}

		case <-sp.halt:
			stream.Close()
			return
		}
	}
}

func (sp *StreamProcessor) subscribe(closeWhenReady chan<- struct{}) {
	req, _ := http.NewRequest("GET", sp.streamURI+streamingPath, nil)
	for k, vv := range sp.headers {
		req.Header[k] = vv
	}
	sp.loggers.Infof("Connecting to stream at %s", req.URL)

	initialRetryDelay := sp.initialReconnectDelay
	if initialRetryDelay <= 0 {
		initialRetryDelay = defaultStreamRetryDelay
	}

	errorHandler := func(err error) es.StreamErrorHandlerResult {
		if se, ok := err.(es.SubscriptionError); ok {
			recoverable := checkIfErrorIsRecoverableAndLog(
				sp.loggers,
				httpErrorDescription(se.Code),
				streamingErrorContext,
				se.Code,
				streamingWillRetryMessage,
			)
			if recoverable {
				return es.StreamErrorHandlerResult{CloseNow: false}
			}
			sp.readyOnce.Do(func() { close(closeWhenReady) })
			return es.StreamErrorHandlerResult{CloseNow: true}
		}

		checkIfErrorIsRecoverableAndLog(
			sp.loggers,
			err.Error(),
			streamingErrorContext,
			0,
			streamingWillRetryMessage,
		)
		return es.StreamErrorHandlerResult{CloseNow: false}
	}

	stream, err := es.SubscribeWithRequestAndOptions(req,
		es.StreamOptionHTTPClient(sp.client),
		es.StreamOptionReadTimeout(streamReadTimeout),
		es.StreamOptionInitialRetry(initialRetryDelay),
		es.StreamOptionUseBackoff(streamMaxRetryDelay),
		es.StreamOptionUseJitter(streamJitterRatio),
		es.StreamOptionRetryResetInterval(streamRetryResetInterval),
		es.StreamOptionErrorHandler(errorHandler),
		es.StreamOptionCanRetryFirstConnection(-1),
		es.StreamOptionLogger(sp.loggers.ForLevel(ldlog.Info)),
	)

	if err != nil {
		sp.readyOnce.Do(func() { close(closeWhenReady) })
		return
	}

	sp.consumeStream(stream, closeWhenReady)
}

func (sp *StreamProcessor) setInitializedAndNotifyClient(closeWhenReady chan<- struct{}) {
	sp.setInitializedOnce.Do(func() {
		sp.loggers.Info("Streaming connection is active")
		sp.initLock.Lock()
		sp.isInitialized = true
		sp.initLock.Unlock()
	})
	sp.readyOnce.Do(func() { close(closeWhenReady) })
}

// Close permanently shuts down the stream. In-flight store writes complete; no further
// events are processed.
func (sp *StreamProcessor) Close() error {
	sp.closeOnce.Do(func() {
		sp.loggers.Info("Closing event stream")
		close(sp.halt)
	})
	return nil
}

// GetBaseURI returns the configured streaming base URI, for testing.
func (sp *StreamProcessor) GetBaseURI() string {
	return sp.streamURI
}
