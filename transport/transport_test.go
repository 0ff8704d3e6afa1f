package transport

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"relaygate/protocol"
)

var (
	gatewayAddr = protocol.Address{Role: protocol.RoleGateway, Node: "gw-test"}
	usersAddr   = protocol.Address{Role: protocol.RoleBackend, Node: protocol.DomainUsers}
)

type missingErr struct{ id int64 }

func (e missingErr) Error() string  { return "missing" }
func (e missingErr) NotFound() bool { return true }

// --- gRPC ---

func startGRPC(t *testing.T, h Handler) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(h, usersAddr)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", gatewayAddr, usersAddr, time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGRPCValue(t *testing.T) {
	c := startGRPC(t, HandlerFunc(func(_ context.Context, env *protocol.Envelope) (any, error) {
		var id int64
		if err := env.DecodePayload(&id); err != nil {
			return nil, err
		}
		return &protocol.User{ID: id, Name: "Ada"}, nil
	}))

	reply := c.Send(context.Background(), protocol.FindOneUser, 7)
	if reply.Outcome != OutcomeValue {
		t.Fatalf("outcome = %s, want value (err=%v)", reply.Outcome, reply.Err)
	}
	var u protocol.User
	if err := reply.Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.ID != 7 || u.Name != "Ada" {
		t.Errorf("user = %+v", u)
	}
}

func TestGRPCNilIsAbsent(t *testing.T) {
	c := startGRPC(t, HandlerFunc(func(context.Context, *protocol.Envelope) (any, error) {
		return nil, nil
	}))
	if reply := c.Send(context.Background(), protocol.RemoveUser, 1); reply.Outcome != OutcomeAbsent {
		t.Errorf("outcome = %s, want absent", reply.Outcome)
	}
}

func TestGRPCNotFoundIsAbsent(t *testing.T) {
	c := startGRPC(t, HandlerFunc(func(context.Context, *protocol.Envelope) (any, error) {
		return nil, missingErr{id: 9}
	}))
	if reply := c.Send(context.Background(), protocol.FindOneUser, 9); reply.Outcome != OutcomeAbsent {
		t.Errorf("outcome = %s, want absent", reply.Outcome)
	}
}

func TestGRPCHandlerErrorIsFault(t *testing.T) {
	c := startGRPC(t, HandlerFunc(func(context.Context, *protocol.Envelope) (any, error) {
		return nil, errors.New("disk full")
	}))
	reply := c.Send(context.Background(), protocol.CreateUser, protocol.CreateUserInput{Name: "a", Email: "a@b.c"})
	if reply.Outcome != OutcomeFault {
		t.Fatalf("outcome = %s, want fault", reply.Outcome)
	}
	if reply.Err.Kind != FaultRemote {
		t.Errorf("kind = %s, want %s", reply.Err.Kind, FaultRemote)
	}
	if reply.Err.Command != protocol.CreateUser {
		t.Errorf("command = %s, want %s", reply.Err.Command, protocol.CreateUser)
	}
}

func TestGRPCPayloadRoundTrip(t *testing.T) {
	var got protocol.UpdateProductRequest
	c := startGRPC(t, HandlerFunc(func(_ context.Context, env *protocol.Envelope) (any, error) {
		if env.Command() != protocol.UpdateProduct {
			t.Errorf("command = %s, want %s", env.Command(), protocol.UpdateProduct)
		}
		return protocol.Product{ID: 1}, env.DecodePayload(&got)
	}))

	name := "Renamed"
	price := 12.5
	c.Send(context.Background(), protocol.UpdateProduct, protocol.UpdateProductRequest{
		ID:    1,
		Patch: protocol.ProductPatch{Name: &name, Price: &price},
	})

	if got.ID != 1 {
		t.Errorf("id = %d, want 1", got.ID)
	}
	if got.Patch.Name == nil || *got.Patch.Name != "Renamed" {
		t.Errorf("name = %v, want Renamed", got.Patch.Name)
	}
	if got.Patch.Price == nil || *got.Patch.Price != 12.5 {
		t.Errorf("price = %v, want 12.5", got.Patch.Price)
	}
	if got.Patch.Stock != nil {
		t.Errorf("stock = %v, want unset", *got.Patch.Stock)
	}
}

func TestGRPCTimeout(t *testing.T) {
	c := startGRPC(t, HandlerFunc(func(ctx context.Context, _ *protocol.Envelope) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	c.timeout = 50 * time.Millisecond

	reply := c.Send(context.Background(), protocol.FindAllUsers, protocol.Empty{})
	if reply.Outcome != OutcomeFault {
		t.Fatalf("outcome = %s, want fault", reply.Outcome)
	}
	if reply.Err.Kind != FaultTimeout {
		t.Errorf("kind = %s, want %s", reply.Err.Kind, FaultTimeout)
	}
}

func TestGRPCUnreachable(t *testing.T) {
	c, err := NewGRPCClient("passthrough:///nowhere", gatewayAddr, usersAddr, time.Second,
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer c.Close()

	reply := c.Send(context.Background(), protocol.FindAllUsers, protocol.Empty{})
	if reply.Outcome != OutcomeFault {
		t.Fatalf("outcome = %s, want fault", reply.Outcome)
	}
	if reply.Err.Kind != FaultConnect {
		t.Errorf("kind = %s, want %s", reply.Err.Kind, FaultConnect)
	}
}

func TestGRPCPing(t *testing.T) {
	c := startGRPC(t, HandlerFunc(func(context.Context, *protocol.Envelope) (any, error) { return nil, nil }))
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestRespondDropsExpired(t *testing.T) {
	called := false
	h := HandlerFunc(func(context.Context, *protocol.Envelope) (any, error) {
		called = true
		return nil, nil
	})
	env, _ := protocol.NewCommand(protocol.FindAllUsers, gatewayAddr, usersAddr, protocol.Empty{})
	env.ExpiresAt = time.Now().UTC().Add(-time.Second)

	reply := respond(context.Background(), h, usersAddr, env)
	if called {
		t.Error("handler should not run for an expired command")
	}
	if reply.Status != protocol.StatusError {
		t.Errorf("status = %q, want %q", reply.Status, protocol.StatusError)
	}
}

func TestFromReplyRejectsWrongCorrelation(t *testing.T) {
	req, _ := protocol.NewCommand(protocol.FindOneUser, gatewayAddr, usersAddr, 1)
	other, _ := protocol.NewCommand(protocol.FindOneUser, gatewayAddr, usersAddr, 2)
	reply, _ := protocol.NewReply(other, usersAddr, protocol.User{ID: 2})

	r := fromReply(req, reply)
	if r.Outcome != OutcomeFault || r.Err.Kind != FaultProtocol {
		t.Errorf("reply = %+v, want protocol fault", r)
	}
}

// --- broker ---

// memBus delivers messages to every subscriber of a topic. Delivery is
// synchronous unless async is set, in which case each message is handed over
// on its own goroutine after a random delay, so replies arrive out of order.
// With stall set, Publish blocks until ctx is done.
type memBus struct {
	mu        sync.Mutex
	subs      map[string][]func([]byte)
	published []string
	fail      error
	async     bool
	stall     bool
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[string][]func([]byte))}
}

func (b *memBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	if b.stall {
		b.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	if b.fail != nil {
		b.mu.Unlock()
		return b.fail
	}
	b.published = append(b.published, topic)
	handlers := append([]func([]byte){}, b.subs[topic]...)
	async := b.async
	b.mu.Unlock()
	for _, h := range handlers {
		if async {
			go func() {
				time.Sleep(time.Duration(rand.IntN(2000)) * time.Microsecond)
				h(payload)
			}()
			continue
		}
		h(payload)
	}
	return nil
}

func (b *memBus) Subscribe(topic string, handler func([]byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
	return nil
}

func (b *memBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.published {
		if p == topic {
			n++
		}
	}
	return n
}

const (
	testCommandTopic = "relaygate.users.commands"
	testReplyTopic   = "relaygate.replies.gw-test"
)

func startBroker(t *testing.T, bus *memBus, h Handler) *BrokerClient {
	t.Helper()
	if h != nil {
		if err := NewBrokerServer(bus, testCommandTopic, h, usersAddr).Start(); err != nil {
			t.Fatalf("server start: %v", err)
		}
	}
	c, err := NewBrokerClient(bus, testCommandTopic, testReplyTopic, gatewayAddr, usersAddr, time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestBrokerValue(t *testing.T) {
	bus := newMemBus()
	c := startBroker(t, bus, HandlerFunc(func(_ context.Context, env *protocol.Envelope) (any, error) {
		var in protocol.CreateUserInput
		if err := env.DecodePayload(&in); err != nil {
			return nil, err
		}
		return protocol.User{ID: 1, Name: in.Name, Email: in.Email, IsActive: true}, nil
	}))

	reply := c.Send(context.Background(), protocol.CreateUser, protocol.CreateUserInput{Name: "Test User", Email: "test@example.com"})
	if reply.Outcome != OutcomeValue {
		t.Fatalf("outcome = %s, want value (err=%v)", reply.Outcome, reply.Err)
	}
	var u protocol.User
	reply.Decode(&u)
	if u.Email != "test@example.com" {
		t.Errorf("email = %q", u.Email)
	}
	if n := bus.count(testCommandTopic); n != 1 {
		t.Errorf("commands published = %d, want 1", n)
	}
	if n := c.pending.len(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestBrokerAbsent(t *testing.T) {
	bus := newMemBus()
	c := startBroker(t, bus, HandlerFunc(func(context.Context, *protocol.Envelope) (any, error) {
		return nil, missingErr{}
	}))
	if reply := c.Send(context.Background(), protocol.FindOneUser, 3); reply.Outcome != OutcomeAbsent {
		t.Errorf("outcome = %s, want absent", reply.Outcome)
	}
}

func TestBrokerRemoteFault(t *testing.T) {
	bus := newMemBus()
	c := startBroker(t, bus, HandlerFunc(func(context.Context, *protocol.Envelope) (any, error) {
		return nil, errors.New("constraint violated")
	}))
	reply := c.Send(context.Background(), protocol.RemoveUser, 3)
	if reply.Outcome != OutcomeFault || reply.Err.Kind != FaultRemote {
		t.Errorf("reply = %+v, want remote fault", reply)
	}
}

func TestBrokerTimeout(t *testing.T) {
	bus := newMemBus()
	c := startBroker(t, bus, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	reply := c.Send(ctx, protocol.FindAllUsers, protocol.Empty{})
	if reply.Outcome != OutcomeFault || reply.Err.Kind != FaultTimeout {
		t.Errorf("reply = %+v, want timeout fault", reply)
	}
	if n := c.pending.len(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestBrokerPublishFailure(t *testing.T) {
	bus := newMemBus()
	c := startBroker(t, bus, nil)
	bus.fail = errors.New("broker down")

	reply := c.Send(context.Background(), protocol.FindAllUsers, protocol.Empty{})
	if reply.Outcome != OutcomeFault || reply.Err.Kind != FaultConnect {
		t.Errorf("reply = %+v, want connect fault", reply)
	}
}

func TestBrokerPublishStallIsBounded(t *testing.T) {
	bus := newMemBus()
	bus.stall = true
	c, err := NewBrokerClient(bus, testCommandTopic, testReplyTopic, gatewayAddr, usersAddr, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	start := time.Now()
	reply := c.Send(context.Background(), protocol.FindAllUsers, protocol.Empty{})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("send took %v, want it bounded by the 50ms timeout", elapsed)
	}
	if reply.Outcome != OutcomeFault || reply.Err.Kind != FaultTimeout {
		t.Errorf("reply = %+v, want timeout fault", reply)
	}
}

// echoUser answers find_one_user with a user carrying the requested id.
var echoUser = HandlerFunc(func(_ context.Context, env *protocol.Envelope) (any, error) {
	var id int64
	if err := env.DecodePayload(&id); err != nil {
		return nil, err
	}
	return protocol.User{ID: id}, nil
})

// sendConcurrently fires n parallel find_one_user calls on t and reports
// every call whose reply does not carry its own id.
func sendConcurrently(t *testing.T, tr Transport, n int) {
	t.Helper()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var mismatched []int64
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			reply := tr.Send(context.Background(), protocol.FindOneUser, id)
			var u protocol.User
			if reply.Outcome != OutcomeValue || reply.Decode(&u) != nil || u.ID != id {
				mu.Lock()
				mismatched = append(mismatched, id)
				mu.Unlock()
			}
		}(int64(i))
	}
	wg.Wait()
	if len(mismatched) != 0 {
		t.Errorf("%d of %d calls got the wrong reply: %v", len(mismatched), n, mismatched)
	}
}

func TestBrokerConcurrentSendsReordered(t *testing.T) {
	bus := newMemBus()
	bus.async = true
	c := startBroker(t, bus, echoUser)

	sendConcurrently(t, c, 200)
	if n := c.pending.len(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestGRPCConcurrentSends(t *testing.T) {
	c := startGRPC(t, echoUser)
	sendConcurrently(t, c, 200)
}

func TestBrokerServerIgnoresReplies(t *testing.T) {
	bus := newMemBus()
	called := false
	startBroker(t, bus, HandlerFunc(func(context.Context, *protocol.Envelope) (any, error) {
		called = true
		return nil, nil
	}))

	req, _ := protocol.NewCommand(protocol.FindAllUsers, gatewayAddr, usersAddr, protocol.Empty{})
	reply, _ := protocol.NewReply(req, usersAddr, []protocol.User{})
	data, _ := reply.Encode()
	bus.Publish(context.Background(), testCommandTopic, data)

	if called {
		t.Error("server should ignore reply envelopes on its command topic")
	}
}

func TestCorrelatorDropsUnmatched(t *testing.T) {
	c := newCorrelator()
	if c.resolve(&protocol.Envelope{CorID: "nobody"}) {
		t.Error("resolve should report false without a waiter")
	}

	wait := c.register("abc")
	if !c.resolve(&protocol.Envelope{CorID: "abc", Status: protocol.StatusAbsent}) {
		t.Fatal("resolve should deliver to a waiter")
	}
	if got := <-wait; got.Status != protocol.StatusAbsent {
		t.Errorf("status = %q", got.Status)
	}
	if c.resolve(&protocol.Envelope{CorID: "abc"}) {
		t.Error("duplicate reply should not be delivered")
	}
}

// --- instrumentation ---

type recordingObserver struct {
	commands []string
	outcomes []string
}

func (r *recordingObserver) ObserveDispatch(command, outcome string, _ time.Duration) {
	r.commands = append(r.commands, command)
	r.outcomes = append(r.outcomes, outcome)
}

type fixedTransport struct{ reply Reply }

func (f fixedTransport) Send(context.Context, protocol.Command, any) Reply { return f.reply }

func TestInstrument(t *testing.T) {
	obs := &recordingObserver{}
	Instrument(fixedTransport{Value(json.RawMessage(`[]`))}, obs).Send(context.Background(), protocol.FindAllProducts, protocol.Empty{})
	Instrument(fixedTransport{Fault(FaultTimeout, protocol.FindOneProduct, context.DeadlineExceeded)}, obs).Send(context.Background(), protocol.FindOneProduct, 1)

	want := []string{"value", "fault_timeout"}
	if len(obs.outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", obs.outcomes, want)
	}
	for i := range want {
		if obs.outcomes[i] != want[i] {
			t.Errorf("outcome[%d] = %q, want %q", i, obs.outcomes[i], want[i])
		}
	}
	if obs.commands[0] != "find_all_products" {
		t.Errorf("command = %q", obs.commands[0])
	}
}

func TestInstrumentNilObserver(t *testing.T) {
	base := &fixedTransport{Absent()}
	if got := Instrument(base, nil); got != Transport(base) {
		t.Error("nil observer should return the transport unchanged")
	}
}
