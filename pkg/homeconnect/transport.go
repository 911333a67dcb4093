package homeconnect

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// StreamSink receives transport callbacks. Implemented by the actor layer,
// which serializes delivery into the StreamManager.
type StreamSink interface {
	OnData(chunk []byte)
	OnStatus(signal StreamSignal)
}

// SSETransport opens the long-lived events request against the vendor API and
// pumps raw body chunks into a StreamSink. It enforces at most one open
// stream: Open closes any previous one first.
type SSETransport struct {
	baseURL string
	locale  string
	sink    StreamSink
	logger  *zap.Logger

	// No client timeout: the events response never ends on purpose.
	http *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSSETransport(baseURL, locale string, sink StreamSink, logger *zap.Logger) *SSETransport {
	return &SSETransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		locale:  locale,
		sink:    sink,
		logger:  logger,
		http:    &http.Client{},
	}
}

// Open starts the stream in the background. Progress is reported exclusively
// through the sink: a start signal once the response is established, data
// chunks while it lives, and a stop/error signal when it ends.
func (t *SSETransport) Open(token string) {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx, token)
}

// Close tears down the current stream, if any. The read loop reports the
// resulting termination as a stop signal.
func (t *SSETransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *SSETransport) run(ctx context.Context, token string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.baseURL+"/api/homeappliances/events", nil)
	if err != nil {
		t.sink.OnStatus(StreamSignal{Kind: SignalError, Reason: err.Error()})
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Accept-Language", t.locale)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.http.Do(req)
	if err != nil {
		t.sink.OnStatus(StreamSignal{Kind: SignalError, Reason: err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.sink.OnStatus(StreamSignal{Kind: SignalError,
			Reason: "stream request returned " + resp.Status})
		return
	}

	t.sink.OnStatus(StreamSignal{Kind: SignalStart})

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.sink.OnData(chunk)
		}
		if err != nil {
			reason := err.Error()
			if ctx.Err() != nil {
				reason = "closed"
			}
			t.sink.OnStatus(StreamSignal{Kind: SignalStop, Reason: reason})
			return
		}
	}
}
