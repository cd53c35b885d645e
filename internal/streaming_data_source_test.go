package internal

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/interfaces"
)

const testInitialPutData = `{"path": "/", "data": {"flags": {"my-flag": {"key": "my-flag", "version": 1, "on": true}}, "segments": {"my-segment": {"key": "my-segment", "version": 2}}}}`

func runStreamProcessorTest(
	t *testing.T,
	initialEvent *httphelpers.SSEEvent,
	action func(store interfaces.DataStore, sp *StreamProcessor, control httphelpers.SSEStreamControl, ready <-chan struct{}),
) {
	handler, control := httphelpers.SSEHandler(initialEvent)
	defer control.Close()
	server := httptest.NewServer(handler)
	defer server.Close()

	store := makeInMemoryStore()
	sp := NewStreamProcessor(store, nil, nil, ldlog.NewDisabledLoggers(), server.URL, time.Millisecond)
	defer sp.Close()

	ready := make(chan struct{})
	sp.Start(ready)

	action(store, sp, control, ready)
}

func requireReady(t *testing.T, ready <-chan struct{}) {
	t.Helper()
	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		require.Fail(t, "timed out waiting for stream to become ready")
	}
}

func storedVersion(t *testing.T, store interfaces.DataStore, kind interfaces.StoreDataKind, key string) func() int {
	t.Helper()
	return func() int {
		item, err := store.Get(kind, key)
		require.NoError(t, err)
		return item.Version
	}
}

func TestStreamProcessorInitializesStoreFromPutEvent(t *testing.T) {
	initialEvent := httphelpers.SSEEvent{Event: "put", Data: testInitialPutData}
	runStreamProcessorTest(t, &initialEvent,
		func(store interfaces.DataStore, sp *StreamProcessor, control httphelpers.SSEStreamControl, ready <-chan struct{}) {
			requireReady(t, ready)
			assert.True(t, sp.IsInitialized())
			assert.True(t, store.IsInitialized())

			flagItem, err := store.Get(interfaces.DataKindFeatures(), "my-flag")
			require.NoError(t, err)
			require.NotNil(t, flagItem.Item)
			assert.Equal(t, 1, flagItem.Item.(*fbmodel.FeatureFlag).Version)

			segmentItem, err := store.Get(interfaces.DataKindSegments(), "my-segment")
			require.NoError(t, err)
			require.NotNil(t, segmentItem.Item)
			assert.Equal(t, 2, segmentItem.Item.(*fbmodel.Segment).Version)
		})
}

func TestStreamProcessorAppliesPatchAndDeleteEvents(t *testing.T) {
	initialEvent := httphelpers.SSEEvent{Event: "put", Data: testInitialPutData}
	runStreamProcessorTest(t, &initialEvent,
		func(store interfaces.DataStore, sp *StreamProcessor, control httphelpers.SSEStreamControl, ready <-chan struct{}) {
			requireReady(t, ready)

			control.Enqueue(httphelpers.SSEEvent{Event: "patch", Data: `{"path": "/flags/my-flag", "data": {"key": "my-flag", "version": 2, "on": false}}`})
			assert.Eventually(t, func() bool {
				return storedVersion(t, store, interfaces.DataKindFeatures(), "my-flag")() == 2
			}, 3*time.Second, 10*time.Millisecond)

			control.Enqueue(httphelpers.SSEEvent{Event: "delete", Data: `{"path": "/flags/my-flag", "version": 3}`})
			assert.Eventually(t, func() bool {
				item, err := store.Get(interfaces.DataKindFeatures(), "my-flag")
				return err == nil && item.Item == nil && item.Version == 3
			}, 3*time.Second, 10*time.Millisecond)

			// A stale patch older than the tombstone must not resurrect the flag. Send
			// a sentinel patch afterward so there is something to wait for.
			control.Enqueue(httphelpers.SSEEvent{Event: "patch", Data: `{"path": "/flags/my-flag", "data": {"key": "my-flag", "version": 2, "on": true}}`})
			control.Enqueue(httphelpers.SSEEvent{Event: "patch", Data: `{"path": "/flags/sentinel", "data": {"key": "sentinel", "version": 1}}`})
			assert.Eventually(t, func() bool {
				return storedVersion(t, store, interfaces.DataKindFeatures(), "sentinel")() == 1
			}, 3*time.Second, 10*time.Millisecond)

			item, err := store.Get(interfaces.DataKindFeatures(), "my-flag")
			require.NoError(t, err)
			assert.Nil(t, item.Item)
			assert.Equal(t, 3, item.Version)
		})
}

func TestStreamProcessorAppliesSegmentPatch(t *testing.T) {
	initialEvent := httphelpers.SSEEvent{Event: "put", Data: testInitialPutData}
	runStreamProcessorTest(t, &initialEvent,
		func(store interfaces.DataStore, sp *StreamProcessor, control httphelpers.SSEStreamControl, ready <-chan struct{}) {
			requireReady(t, ready)

			control.Enqueue(httphelpers.SSEEvent{Event: "patch", Data: `{"path": "/segments/my-segment", "data": {"key": "my-segment", "version": 7}}`})
			assert.Eventually(t, func() bool {
				return storedVersion(t, store, interfaces.DataKindSegments(), "my-segment")() == 7
			}, 3*time.Second, 10*time.Millisecond)
		})
}

func TestStreamProcessorIgnoresUnknownPathsAndEvents(t *testing.T) {
	initialEvent := httphelpers.SSEEvent{Event: "put", Data: testInitialPutData}
	runStreamProcessorTest(t, &initialEvent,
		func(store interfaces.DataStore, sp *StreamProcessor, control httphelpers.SSEStreamControl, ready <-chan struct{}) {
			requireReady(t, ready)

			control.Enqueue(httphelpers.SSEEvent{Event: "patch", Data: `{"path": "/unknown/x", "data": {"key": "x", "version": 1}}`})
			control.Enqueue(httphelpers.SSEEvent{Event: "mystery-event", Data: `{}`})
			// A later well-formed event is still processed, proving the stream was not
			// dropped.
			control.Enqueue(httphelpers.SSEEvent{Event: "patch", Data: `{"path": "/flags/after", "data": {"key": "after", "version": 1}}`})
			assert.Eventually(t, func() bool {
				return storedVersion(t, store, interfaces.DataKindFeatures(), "after")() == 1
			}, 3*time.Second, 10*time.Millisecond)
		})
}

func TestStreamProcessorRestartsAfterMalformedEvent(t *testing.T) {
	// The initial event on every (re)connection is a valid put, so after the malformed
	// event forces a restart the processor is fed valid data again and stays initialized.
	initialEvent := httphelpers.SSEEvent{Event: "put", Data: testInitialPutData}
	runStreamProcessorTest(t, &initialEvent,
		func(store interfaces.DataStore, sp *StreamProcessor, control httphelpers.SSEStreamControl, ready <-chan struct{}) {
			requireReady(t, ready)
			control.Enqueue(httphelpers.SSEEvent{Event: "put", Data: `{not json`})

			// After the restart the processor remains initialized and functional.
			assert.Eventually(t, sp.IsInitialized, 3*time.Second, 10*time.Millisecond)
		})
}

func TestStreamProcessorStopsPermanentlyOnUnauthorized(t *testing.T) {
	for _, status := range []int{401, 403} {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			server := httptest.NewServer(httphelpers.HandlerWithStatus(status))
			defer server.Close()

			store := makeInMemoryStore()
			sp := NewStreamProcessor(store, nil, nil, ldlog.NewDisabledLoggers(), server.URL, time.Millisecond)
			defer sp.Close()

			ready := make(chan struct{})
			sp.Start(ready)

			requireReady(t, ready)
			assert.False(t, sp.IsInitialized())
		})
	}
}

func TestStreamProcessorRetriesOnRecoverableHTTPError(t *testing.T) {
	initialEvent := httphelpers.SSEEvent{Event: "put", Data: testInitialPutData}
	streamHandler, control := httphelpers.SSEHandler(&initialEvent)
	defer control.Close()
	// The first request gets a 429; the retry connects to the stream.
	handler := httphelpers.SequentialHandler(httphelpers.HandlerWithStatus(429), streamHandler)
	server := httptest.NewServer(handler)
	defer server.Close()

	store := makeInMemoryStore()
	sp := NewStreamProcessor(store, nil, nil, ldlog.NewDisabledLoggers(), server.URL, time.Millisecond)
	defer sp.Close()

	ready := make(chan struct{})
	sp.Start(ready)

	requireReady(t, ready)
	assert.True(t, sp.IsInitialized())
}

func TestParsePath(t *testing.T) {
	path, err := parsePath("/flags/some-flag")
	require.NoError(t, err)
	assert.Equal(t, interfaces.DataKindFeatures(), path.kind)
	assert.Equal(t, "some-flag", path.key)

	path, err = parsePath("/segments/some-segment")
	require.NoError(t, err)
	assert.Equal(t, interfaces.DataKindSegments(), path.kind)
	assert.Equal(t, "some-segment", path.key)

	_, err = parsePath("/other/x")
	assert.Error(t, err)
}

func TestStreamProcessorRequestsCorrectPath(t *testing.T) {
	initialEvent := httphelpers.SSEEvent{Event: "put", Data: testInitialPutData}
	streamHandler, control := httphelpers.SSEHandler(&initialEvent)
	defer control.Close()
	handler, requestsCh := httphelpers.RecordingHandler(streamHandler)
	server := httptest.NewServer(handler)
	defer server.Close()

	store := makeInMemoryStore()
	sp := NewStreamProcessor(store, nil, nil, ldlog.NewDisabledLoggers(), server.URL, time.Millisecond)
	defer sp.Close()

	ready := make(chan struct{})
	sp.Start(ready)
	requireReady(t, ready)

	request := <-requestsCh
	assert.Equal(t, "/all", request.Request.URL.Path)
}
