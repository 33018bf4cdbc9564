package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeClient is an in-memory Client. Tests push inbound frames with deliver
// and read outbound frames from sent.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	closed     bool
	connectErr error
	sendErr    error

	sent     chan []byte
	messages chan TimestampedMessage
	errors   chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		sent:     make(chan []byte, 100),
		messages: make(chan TimestampedMessage, 100),
		errors:   make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeClient) ForceDisconnect() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.errors <- ErrForcedDisconnect
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent <- append([]byte(nil), data...)
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errors }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) deliver(msg string) {
	f.messages <- TimestampedMessage{Data: []byte(msg), ReceivedAt: time.Now()}
}

// fakeDialer hands out fake clients in order. failAfter > 0 makes every
// client after the first failAfter ones fail to connect.
type fakeDialer struct {
	mu        sync.Mutex
	clients   []*fakeClient
	failAfter int
}

func (d *fakeDialer) factory(cfg ClientConfig, logger *slog.Logger) Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	fc := newFakeClient()
	if d.failAfter > 0 && len(d.clients) >= d.failAfter {
		fc.connectErr = errors.New("dial refused")
	}
	d.clients = append(d.clients, fc)
	return fc
}

func (d *fakeDialer) client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func testConfig() Config {
	return Config{
		URL:                  "wss://example.invalid/websockets/v3?app_id=1",
		RequestTimeout:       time.Second,
		SubscribeTimeout:     time.Second,
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}
}

func openTestChannel(t *testing.T, cfg Config) (*Channel, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	ch := New(cfg, nil, WithClientFactory(d.factory))
	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch, d
}

// nextSent waits for the next outbound frame and decodes it.
func nextSent(t *testing.T, fc *fakeClient) map[string]any {
	t.Helper()
	select {
	case data := <-fc.sent:
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("outbound frame is not JSON: %s", data)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for outbound frame")
		return nil
	}
}

func reqIDOf(t *testing.T, msg map[string]any) int64 {
	t.Helper()
	v, ok := msg["req_id"].(float64)
	if !ok {
		t.Fatalf("outbound frame has no numeric req_id: %v", msg)
	}
	return int64(v)
}

type sendResult struct {
	resp *Response
	err  error
}

func sendAsync(ch *Channel, payload Request, timeout time.Duration) <-chan sendResult {
	out := make(chan sendResult, 1)
	go func() {
		resp, err := ch.Send(context.Background(), payload, timeout)
		out <- sendResult{resp, err}
	}()
	return out
}

func subscribeAsync(ch *Channel, payload Request, field string, timeout time.Duration) <-chan sendResult {
	out := make(chan sendResult, 1)
	go func() {
		resp, err := ch.SubscribeOnce(context.Background(), payload, field, timeout)
		out <- sendResult{resp, err}
	}()
	return out
}

func waitResult(t *testing.T, ch <-chan sendResult) sendResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for result")
		return sendResult{}
	}
}

func TestChannel_SendResolvesByReqID(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	ch.mu.Lock()
	ch.lastID = 6
	ch.mu.Unlock()

	res := sendAsync(ch, Request{"ping": 1}, 0)

	out := nextSent(t, fc)
	if id := reqIDOf(t, out); id != 7 {
		t.Fatalf("req_id = %d, want 7", id)
	}

	fc.deliver(`{"echo_req":{"ping":1,"req_id":7},"msg_type":"ping","ping":"pong"}`)

	r := waitResult(t, res)
	if r.err != nil {
		t.Fatalf("Send failed: %v", r.err)
	}
	if r.resp.MsgType != "ping" {
		t.Errorf("MsgType = %q, want %q", r.resp.MsgType, "ping")
	}
	if r.resp.ReqID != 7 {
		t.Errorf("ReqID = %d, want 7", r.resp.ReqID)
	}
	if st := ch.Stats(); st.PendingRequests != 0 {
		t.Errorf("PendingRequests = %d, want 0", st.PendingRequests)
	}
}

func TestChannel_SendResolvesRemoteError(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	res := sendAsync(ch, Request{"authorize": "bad-token"}, 0)
	id := reqIDOf(t, nextSent(t, fc))

	fc.deliver(fmt.Sprintf(`{"echo_req":{"authorize":"bad-token","req_id":%d},"msg_type":"authorize","error":{"code":"InvalidToken","message":"The token is invalid."}}`, id))

	r := waitResult(t, res)
	if r.err != nil {
		t.Fatalf("remote error must resolve normally, got %v", r.err)
	}
	if r.resp.Error == nil {
		t.Fatal("expected Error to be populated")
	}
	if r.resp.Error.Code != "InvalidToken" {
		t.Errorf("Error.Code = %q, want %q", r.resp.Error.Code, "InvalidToken")
	}

	var remote *RemoteError
	if !errors.As(r.resp.Err(), &remote) {
		t.Errorf("Err() = %v, want *RemoteError", r.resp.Err())
	}
}

func TestChannel_SendTimeout(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	res := sendAsync(ch, Request{"authorize": "tok"}, 100*time.Millisecond)
	id := reqIDOf(t, nextSent(t, fc))
	if id != 1 {
		t.Fatalf("req_id = %d, want 1", id)
	}

	r := waitResult(t, res)
	if !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", r.err)
	}

	ch.mu.Lock()
	_, stillPending := ch.requests[1]
	ch.mu.Unlock()
	if stillPending {
		t.Error("timed out request still in pending map")
	}

	// A late reply is discarded, not delivered twice.
	dropped := ch.Stats().Dropped
	fc.deliver(`{"echo_req":{"authorize":"tok","req_id":1},"msg_type":"authorize","authorize":{}}`)
	deadline := time.Now().Add(time.Second)
	for ch.Stats().Dropped == dropped && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := ch.Stats().Dropped; got != dropped+1 {
		t.Errorf("Dropped = %d, want %d", got, dropped+1)
	}
	if got := ch.Stats().Timeouts; got != 1 {
		t.Errorf("Timeouts = %d, want 1", got)
	}
}

func TestChannel_SubscribeOnceResolvesAndForgets(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	ch.mu.Lock()
	ch.lastID = 4
	ch.mu.Unlock()

	res := subscribeAsync(ch, Request{"ticks": "R_100"}, "", 0)

	out := nextSent(t, fc)
	if id := reqIDOf(t, out); id != 5 {
		t.Fatalf("req_id = %d, want 5", id)
	}
	if out["subscribe"] != float64(1) {
		t.Errorf("subscribe = %v, want 1", out["subscribe"])
	}

	fc.deliver(`{"echo_req":{"ticks":"R_100","subscribe":1,"req_id":5},"msg_type":"tick","tick":{"id":"f4c3-tick","quote":101.23,"symbol":"R_100"}}`)

	r := waitResult(t, res)
	if r.err != nil {
		t.Fatalf("SubscribeOnce failed: %v", r.err)
	}
	var tick struct {
		Quote float64 `json:"quote"`
	}
	if err := r.resp.Decode("tick", &tick); err != nil {
		t.Fatalf("Decode tick: %v", err)
	}
	if tick.Quote != 101.23 {
		t.Errorf("quote = %v, want 101.23", tick.Quote)
	}

	forget := nextSent(t, fc)
	if forget["forget"] != "f4c3-tick" {
		t.Errorf("cancellation = %v, want forget f4c3-tick", forget)
	}
	if st := ch.Stats(); st.PendingSubscriptions != 0 {
		t.Errorf("PendingSubscriptions = %d, want 0", st.PendingSubscriptions)
	}
}

func TestChannel_SubscribeOncePrefersSubscriptionID(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	res := subscribeAsync(ch, Request{"ticks": "R_50"}, "tick", 0)
	id := reqIDOf(t, nextSent(t, fc))

	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"tick","tick":{"id":"inner","quote":1},"subscription":{"id":"outer"}}`, id))

	if r := waitResult(t, res); r.err != nil {
		t.Fatalf("SubscribeOnce failed: %v", r.err)
	}
	if forget := nextSent(t, fc); forget["forget"] != "outer" {
		t.Errorf("cancellation = %v, want forget outer", forget)
	}
}

func TestChannel_SubscribeOnceIgnoresNonTerminal(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	res := subscribeAsync(ch, Request{"ticks": "R_100"}, "", 0)
	id := reqIDOf(t, nextSent(t, fc))

	// Correlated but without the tick field: tolerated, not terminal.
	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"tick"}`, id))

	select {
	case r := <-res:
		t.Fatalf("resolved on non-terminal message: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"tick","tick":{"id":"x","quote":2}}`, id))
	if r := waitResult(t, res); r.err != nil {
		t.Fatalf("SubscribeOnce failed: %v", r.err)
	}
}

func TestChannel_SubscribeOnceRemoteError(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	res := subscribeAsync(ch, Request{"ticks": "NOPE"}, "", 0)
	id := reqIDOf(t, nextSent(t, fc))

	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"tick","error":{"code":"MarketIsClosed","message":"This market is presently closed."}}`, id))

	r := waitResult(t, res)
	var remote *RemoteError
	if !errors.As(r.err, &remote) {
		t.Fatalf("expected *RemoteError, got %v", r.err)
	}
	if remote.Code != "MarketIsClosed" {
		t.Errorf("Code = %q, want %q", remote.Code, "MarketIsClosed")
	}
}

func TestChannel_SubscribeOnceTimeoutSendsForgetAll(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	res := subscribeAsync(ch, Request{"ticks": "R_100"}, "", 50*time.Millisecond)
	nextSent(t, fc)

	forget := nextSent(t, fc)
	if forget["forget_all"] != "ticks" {
		t.Errorf("cancellation = %v, want forget_all ticks", forget)
	}

	r := waitResult(t, res)
	if !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", r.err)
	}
}

func TestChannel_SubscribeOnceTimeoutSparesConcurrentStream(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	long := subscribeAsync(ch, Request{"ticks": "R_100"}, "", 5*time.Second)
	longID := reqIDOf(t, nextSent(t, fc))
	short := subscribeAsync(ch, Request{"ticks": "R_50"}, "", 50*time.Millisecond)
	shortID := reqIDOf(t, nextSent(t, fc))

	if r := waitResult(t, short); !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("short subscription: got %v, want ErrTimeout", r.err)
	}
	select {
	case data := <-fc.sent:
		t.Fatalf("sent %s while another ticks subscription was pending", data)
	case <-time.After(50 * time.Millisecond):
	}

	// The expired stream's first tick names it, so only it is forgotten.
	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"tick","tick":{"id":"r50-stream","quote":1},"subscription":{"id":"r50-stream"}}`, shortID))
	if forget := nextSent(t, fc); forget["forget"] != "r50-stream" {
		t.Errorf("late cancellation = %v, want forget r50-stream", forget)
	}

	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"tick","tick":{"id":"r100-stream","quote":2},"subscription":{"id":"r100-stream"}}`, longID))
	if r := waitResult(t, long); r.err != nil {
		t.Fatalf("long subscription failed: %v", r.err)
	}
	if forget := nextSent(t, fc); forget["forget"] != "r100-stream" {
		t.Errorf("cancellation = %v, want forget r100-stream", forget)
	}

	ch.mu.Lock()
	expired := len(ch.expired)
	ch.mu.Unlock()
	if expired != 0 {
		t.Errorf("expired streams = %d, want 0", expired)
	}
}

func TestChannel_SubscribeOnceTimeoutForgetsKnownStream(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	res := subscribeAsync(ch, Request{"ticks": "R_75"}, "", 100*time.Millisecond)
	id := reqIDOf(t, nextSent(t, fc))

	// Non-terminal, but it carries the stream id.
	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"tick","subscription":{"id":"r75-stream"}}`, id))

	if r := waitResult(t, res); !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", r.err)
	}
	if forget := nextSent(t, fc); forget["forget"] != "r75-stream" {
		t.Errorf("cancellation = %v, want forget r75-stream", forget)
	}
}

func TestChannel_SubscribeOnceUnknownStream(t *testing.T) {
	ch, _ := openTestChannel(t, testConfig())

	if _, err := ch.SubscribeOnce(context.Background(), Request{"buy": "id"}, "", 0); err == nil {
		t.Fatal("expected error for command without a stream field")
	}
}

func TestChannel_ConcurrentSendsOutOfOrder(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	first := sendAsync(ch, Request{"balance": 1}, 0)
	idA := reqIDOf(t, nextSent(t, fc))
	second := sendAsync(ch, Request{"time": 1}, 0)
	idB := reqIDOf(t, nextSent(t, fc))

	if idA == idB {
		t.Fatalf("both requests got req_id %d", idA)
	}

	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"time","time":1700000000}`, idB))
	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"balance","balance":{"balance":10,"currency":"USD"}}`, idA))

	rA := waitResult(t, first)
	rB := waitResult(t, second)
	if rA.err != nil || rB.err != nil {
		t.Fatalf("unexpected errors: %v, %v", rA.err, rB.err)
	}
	if rA.resp.MsgType != "balance" || rA.resp.ReqID != idA {
		t.Errorf("first resolved with %s/%d, want balance/%d", rA.resp.MsgType, rA.resp.ReqID, idA)
	}
	if rB.resp.MsgType != "time" || rB.resp.ReqID != idB {
		t.Errorf("second resolved with %s/%d, want time/%d", rB.resp.MsgType, rB.resp.ReqID, idB)
	}
}

func TestChannel_UniqueIDsUnderConcurrency(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch.Send(context.Background(), Request{"ping": 1}, 200*time.Millisecond)
		}()
	}

	seen := make(map[int64]bool)
	for i := 0; i < n; i++ {
		id := reqIDOf(t, nextSent(t, fc))
		if seen[id] {
			t.Fatalf("req_id %d issued twice", id)
		}
		seen[id] = true
	}
	wg.Wait()
}

func TestChannel_DropsUnroutableMessages(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	res := sendAsync(ch, Request{"ping": 1}, 0)
	id := reqIDOf(t, nextSent(t, fc))

	fc.deliver(`not json at all`)
	fc.deliver(`{"msg_type":"ping","ping":"pong"}`)
	fc.deliver(`{"echo_req":{"req_id":99999},"msg_type":"ping"}`)

	deadline := time.Now().Add(time.Second)
	for ch.Stats().Dropped < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	st := ch.Stats()
	if st.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", st.Dropped)
	}
	if st.PendingRequests != 1 {
		t.Errorf("PendingRequests = %d, want 1 (unroutable messages must not touch it)", st.PendingRequests)
	}

	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"ping","ping":"pong"}`, id))
	if r := waitResult(t, res); r.err != nil {
		t.Fatalf("Send failed: %v", r.err)
	}
}

func TestChannel_SendNotConnected(t *testing.T) {
	ch := New(testConfig(), nil)
	defer ch.Close()

	if _, err := ch.Send(context.Background(), Request{"ping": 1}, 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := ch.SubscribeOnce(context.Background(), Request{"ticks": "R_100"}, "", 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestChannel_SendTransmitFailure(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	fc.mu.Lock()
	fc.sendErr = errors.New("broken pipe")
	fc.mu.Unlock()

	if _, err := ch.Send(context.Background(), Request{"ping": 1}, 0); err == nil {
		t.Fatal("expected transmit error")
	}
	if st := ch.Stats(); st.PendingRequests != 0 {
		t.Errorf("PendingRequests = %d, want 0", st.PendingRequests)
	}
}

func TestChannel_SendEncodeFailure(t *testing.T) {
	ch, _ := openTestChannel(t, testConfig())

	_, err := ch.Send(context.Background(), Request{"ping": make(chan int)}, 0)
	if !errors.Is(err, ErrEncode) {
		t.Errorf("expected ErrEncode, got %v", err)
	}
}

func TestChannel_SendContextCancel(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ch.Send(ctx, Request{"ping": 1}, 5*time.Second)
		done <- err
	}()
	nextSent(t, fc)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not return after cancel")
	}
	if st := ch.Stats(); st.PendingRequests != 0 {
		t.Errorf("PendingRequests = %d, want 0", st.PendingRequests)
	}
}

func TestChannel_OpenClearsAuthorizationKeepsCounter(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	var opens sync.WaitGroup
	opens.Add(1)
	var mu sync.Mutex
	openCount := 0
	ch.OnOpen(func() {
		mu.Lock()
		openCount++
		mu.Unlock()
		opens.Done()
	})

	if !ch.MarkAuthorized("tok", ch.Generation()) {
		t.Fatal("MarkAuthorized on the live connection was rejected")
	}
	if got := ch.Authorized(); got != "tok" {
		t.Fatalf("Authorized() = %q, want %q", got, "tok")
	}

	pending := sendAsync(ch, Request{"balance": 1}, 5*time.Second)
	firstID := reqIDOf(t, nextSent(t, fc))

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	opens.Wait()

	if got := ch.Authorized(); got != "" {
		t.Errorf("Authorized() after open = %q, want empty", got)
	}
	if !fc.isClosed() {
		t.Error("previous client was not closed")
	}

	r := waitResult(t, pending)
	if !errors.Is(r.err, ErrConnectionLost) {
		t.Errorf("pending request on superseded connection: got %v, want ErrConnectionLost", r.err)
	}

	second := d.client(1)
	sendAsync(ch, Request{"ping": 1}, 100*time.Millisecond)
	if id := reqIDOf(t, nextSent(t, second)); id != firstID+1 {
		t.Errorf("req_id after reopen = %d, want %d", id, firstID+1)
	}
}

func TestChannel_MarkAuthorizedIgnoresStaleConnection(t *testing.T) {
	ch, _ := openTestChannel(t, testConfig())

	stale := ch.Generation()
	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if ch.Generation() == stale {
		t.Fatal("Generation() did not change on reopen")
	}

	if ch.MarkAuthorized("tok", stale) {
		t.Error("MarkAuthorized accepted a superseded connection")
	}
	if got := ch.Authorized(); got != "" {
		t.Errorf("Authorized() = %q, want empty", got)
	}

	if !ch.MarkAuthorized("tok", ch.Generation()) {
		t.Error("MarkAuthorized rejected the live connection")
	}
	if got := ch.Authorized(); got != "tok" {
		t.Errorf("Authorized() = %q, want %q", got, "tok")
	}
}

func TestChannel_DisconnectDeliversBufferedReply(t *testing.T) {
	ch, d := openTestChannel(t, testConfig())
	fc := d.client(0)

	pending := sendAsync(ch, Request{"balance": 1}, 5*time.Second)
	id := reqIDOf(t, nextSent(t, fc))

	// Park the dispatch loop on the mutex so the reply and the read error
	// are both ready when it next selects.
	ch.mu.Lock()
	fc.deliver(`{"echo_req":{"req_id":9999},"msg_type":"balance"}`)
	time.Sleep(20 * time.Millisecond)
	fc.deliver(fmt.Sprintf(`{"echo_req":{"req_id":%d},"msg_type":"balance","balance":{"balance":10,"currency":"USD"}}`, id))
	fc.errors <- errors.New("read: connection reset by peer")
	ch.mu.Unlock()

	r := waitResult(t, pending)
	if r.err != nil {
		t.Fatalf("reply buffered before the disconnect was lost: %v", r.err)
	}
	if r.resp.MsgType != "balance" {
		t.Errorf("MsgType = %q, want balance", r.resp.MsgType)
	}
}

func TestNew_PingIntervalDefaults(t *testing.T) {
	tests := []struct {
		name        string
		interval    time.Duration
		wantPing    time.Duration
		wantTimeout time.Duration
	}{
		{"unset uses default", 0, DefaultPingInterval, 3 * DefaultPingInterval},
		{"explicit", 10 * time.Second, 10 * time.Second, 30 * time.Second},
		{"negative disables", -1, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ClientConfig
			factory := func(cfg ClientConfig, logger *slog.Logger) Client {
				got = cfg
				return newFakeClient()
			}
			ch := New(Config{URL: "wss://example.invalid", PingInterval: tt.interval}, nil, WithClientFactory(factory))
			if err := ch.Open(context.Background()); err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer ch.Close()

			if ch.cfg.PingInterval != tt.wantPing {
				t.Errorf("PingInterval = %v, want %v", ch.cfg.PingInterval, tt.wantPing)
			}
			if got.PongTimeout != tt.wantTimeout {
				t.Errorf("PongTimeout = %v, want %v", got.PongTimeout, tt.wantTimeout)
			}
		})
	}
}

func TestChannel_KeepalivePing(t *testing.T) {
	cfg := testConfig()
	cfg.PingInterval = 20 * time.Millisecond
	_, d := openTestChannel(t, cfg)
	fc := d.client(0)

	msg := nextSent(t, fc)
	if msg["ping"] != float64(1) {
		t.Errorf("keep-alive = %v, want ping 1", msg)
	}
	if _, ok := msg["req_id"]; ok {
		t.Error("keep-alive ping must not carry a req_id")
	}
}

func TestChannel_CloseFailsPending(t *testing.T) {
	d := &fakeDialer{}
	ch := New(testConfig(), nil, WithClientFactory(d.factory))
	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	fc := d.client(0)

	res := sendAsync(ch, Request{"ping": 1}, 5*time.Second)
	nextSent(t, fc)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if r := waitResult(t, res); !errors.Is(r.err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", r.err)
	}
	if ch.State() != StateClosed {
		t.Errorf("State = %v, want closed", ch.State())
	}
	if err := ch.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close = %v, want ErrClosed", err)
	}
	// Double close is a no-op.
	if err := ch.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantOK    bool
		wantReqID int64
		wantType  string
		wantErr   bool
	}{
		{
			name:      "echo req_id",
			data:      `{"echo_req":{"ping":1,"req_id":3},"msg_type":"ping","ping":"pong"}`,
			wantOK:    true,
			wantReqID: 3,
			wantType:  "ping",
		},
		{
			name:      "top-level req_id fallback",
			data:      `{"echo_req":{"ping":1},"msg_type":"ping","req_id":4}`,
			wantOK:    true,
			wantReqID: 4,
			wantType:  "ping",
		},
		{
			name:      "no correlation",
			data:      `{"msg_type":"tick","tick":{"quote":1}}`,
			wantOK:    true,
			wantReqID: -1,
			wantType:  "tick",
		},
		{
			name:      "error payload",
			data:      `{"echo_req":{"req_id":9},"msg_type":"buy","error":{"code":"InvalidPrice","message":"bad"}}`,
			wantOK:    true,
			wantReqID: 9,
			wantType:  "buy",
			wantErr:   true,
		},
		{
			name:   "not json",
			data:   `<html>`,
			wantOK: false,
		},
		{
			name:   "json array",
			data:   `[1,2,3]`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := parseResponse([]byte(tt.data), time.Now())
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if resp.ReqID != tt.wantReqID {
				t.Errorf("ReqID = %d, want %d", resp.ReqID, tt.wantReqID)
			}
			if resp.MsgType != tt.wantType {
				t.Errorf("MsgType = %q, want %q", resp.MsgType, tt.wantType)
			}
			if (resp.Error != nil) != tt.wantErr {
				t.Errorf("Error = %v, wantErr %v", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestRequest_Command(t *testing.T) {
	tests := []struct {
		req  Request
		want string
	}{
		{Request{"ticks": "R_100", "subscribe": 1}, "ticks"},
		{Request{"buy": "abc", "price": 10}, "buy"},
		{Request{"proposal": 1, "amount": 5, "symbol": "R_10"}, "proposal"},
		{Request{"unknown_call": 1}, ""},
	}
	for _, tt := range tests {
		if got := tt.req.Command(); got != tt.want {
			t.Errorf("Command(%v) = %q, want %q", tt.req, got, tt.want)
		}
	}
}
