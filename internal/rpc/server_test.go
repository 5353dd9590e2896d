package rpc

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/RowanDark/magiccipher/internal/cipher"
	"github.com/RowanDark/magiccipher/internal/keystore"
	"github.com/RowanDark/magiccipher/internal/logging"
	"github.com/RowanDark/magiccipher/internal/magic"
	"github.com/RowanDark/magiccipher/internal/metrics"
)

type testEnv struct {
	client *Client
	audit  *bytes.Buffer
	store  *keystore.Store
}

func newTestEnv(t *testing.T, defaults cipher.Options, withStore bool) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditBuf := &bytes.Buffer{}
	audit, err := logging.NewAuditLogger("rpc_test", logging.WithoutStdout(), logging.WithWriter(auditBuf))
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}

	opts := []ServerOption{WithLogger(logger), WithAuditLogger(audit)}
	var store *keystore.Store
	if withStore {
		store, err = keystore.Open(filepath.Join(t.TempDir(), "keys.db"), logger)
		if err != nil {
			t.Fatalf("keystore.Open: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		opts = append(opts, WithKeystore(store))
	}

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, lis, NewServer(defaults, opts...), 4)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to create gRPC client: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("serve returned error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("server did not shut down after context cancellation")
		}
	})

	return &testEnv{client: NewClient(conn), audit: auditBuf, store: store}
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEncryptDecryptHello(t *testing.T) {
	env := newTestEnv(t, cipher.DefaultOptions(), false)
	ctx := callCtx(t)
	before := metrics.TotalRequests()

	enc, err := env.client.Encrypt(ctx, EncryptRequest{Text: "HELLO"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc.Key != "8/1/6/3/5/7/4/9/2" || enc.Ciphertext != "_H_LO_L_E" {
		t.Fatalf("unexpected result %+v", enc)
	}
	if enc.Order != 3 || enc.Filler != "_" {
		t.Fatalf("unexpected order/filler %+v", enc)
	}

	dec, err := env.client.Decrypt(ctx, DecryptRequest{Ciphertext: enc.Ciphertext, Key: enc.Key})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec.Text != "HELLO" {
		t.Fatalf("expected HELLO, got %q", dec.Text)
	}

	if strings.Contains(env.audit.String(), enc.Key) {
		t.Fatalf("audit log leaked the key: %s", env.audit.String())
	}
	if !strings.Contains(env.audit.String(), string(logging.EventKeyIssued)) {
		t.Fatalf("expected key_issued audit event: %s", env.audit.String())
	}
	if got := metrics.TotalRequests() - before; got < 2 {
		t.Fatalf("expected both calls to be counted, got %d", got)
	}
}

func TestEnhancedRoundTripWithOverrides(t *testing.T) {
	defaults := cipher.DefaultOptions()
	defaults.Rand = magic.NewSeededRand(5)
	env := newTestEnv(t, defaults, false)
	ctx := callCtx(t)

	amount := -1
	enc, err := env.client.Encrypt(ctx, EncryptRequest{
		Text:            "Meet me at the usual place",
		Mode:            "enhanced",
		Transformations: &amount,
		Delimiter:       "|",
	})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.Contains(enc.Key, "|") {
		t.Fatalf("expected custom delimiter in key %q", enc.Key)
	}

	dec, err := env.client.Decrypt(ctx, DecryptRequest{
		Ciphertext: enc.Ciphertext,
		Key:        enc.Key,
		Mode:       "enhanced",
		Filler:     enc.Filler,
		Delimiter:  "|",
	})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec.Text != "Meet me at the usual place" {
		t.Fatalf("unexpected plaintext %q", dec.Text)
	}
}

func TestDecryptRejectsBadKey(t *testing.T) {
	env := newTestEnv(t, cipher.DefaultOptions(), false)
	ctx := callCtx(t)

	_, err := env.client.Decrypt(ctx, DecryptRequest{Ciphertext: "_H_LO_L_E", Key: "8/1/6/3/5/7/4/9/8"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if !strings.Contains(status.Convert(err).Message(), "Wrong key contents") {
		t.Fatalf("unexpected message %q", status.Convert(err).Message())
	}
	if !strings.Contains(env.audit.String(), string(logging.EventDecryptRejected)) {
		t.Fatalf("expected decrypt_rejected audit event: %s", env.audit.String())
	}
}

func TestEncryptValidation(t *testing.T) {
	env := newTestEnv(t, cipher.DefaultOptions(), false)
	ctx := callCtx(t)

	tests := []struct {
		name string
		req  EncryptRequest
		code codes.Code
	}{
		{"empty text", EncryptRequest{}, codes.InvalidArgument},
		{"unknown mode", EncryptRequest{Text: "x", Mode: "quantum"}, codes.InvalidArgument},
		{"enhanced decimal", EncryptRequest{Text: "x", Mode: "enhanced", Encoding: "decimal"}, codes.InvalidArgument},
		{"long filler", EncryptRequest{Text: "x", Filler: "ab"}, codes.InvalidArgument},
		{"store without keystore", EncryptRequest{Text: "x", Store: true}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.Encrypt(ctx, tt.req)
			if status.Code(err) != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestStoredEnvelopeRoundTrip(t *testing.T) {
	env := newTestEnv(t, cipher.DefaultOptions(), true)
	ctx := callCtx(t)

	enc, err := env.client.Encrypt(ctx, EncryptRequest{Text: "keep this", Store: true})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc.EnvelopeID == "" {
		t.Fatal("expected an envelope id")
	}

	stored, err := env.store.Get(ctx, enc.EnvelopeID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if stored.Key != enc.Key || stored.Ciphertext != enc.Ciphertext {
		t.Fatalf("stored envelope mismatch: %+v vs %+v", stored, enc)
	}

	dec, err := env.client.Decrypt(ctx, DecryptRequest{EnvelopeID: enc.EnvelopeID})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec.Text != "keep this" {
		t.Fatalf("unexpected plaintext %q", dec.Text)
	}

	_, err = env.client.Decrypt(ctx, DecryptRequest{EnvelopeID: "01J00000000000000000000000"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSquare(t *testing.T) {
	env := newTestEnv(t, cipher.DefaultOptions(), false)
	ctx := callCtx(t)

	resp, err := env.client.Square(ctx, SquareRequest{Order: 3})
	if err != nil {
		t.Fatalf("Square: %v", err)
	}
	want := [][]int{{8, 1, 6}, {3, 5, 7}, {4, 9, 2}}
	if len(resp.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %v", resp.Rows)
	}
	for r := range want {
		for c := range want[r] {
			if resp.Rows[r][c] != want[r][c] {
				t.Fatalf("unexpected square %v", resp.Rows)
			}
		}
	}
	if !resp.Magic || !resp.Symmetric || resp.Constant != 15 {
		t.Fatalf("unexpected flags %+v", resp)
	}

	seed := uint64(1<<63 + 7)
	a, err := env.client.Square(ctx, SquareRequest{Order: 8, Transformations: 10, Seed: &seed})
	if err != nil {
		t.Fatalf("Square seeded: %v", err)
	}
	b, err := env.client.Square(ctx, SquareRequest{Order: 8, Transformations: 10, Seed: &seed})
	if err != nil {
		t.Fatalf("Square seeded: %v", err)
	}
	if !a.Magic || !a.Symmetric {
		t.Fatalf("transformed square lost its properties: %+v", a)
	}
	for r := range a.Rows {
		for c := range a.Rows[r] {
			if a.Rows[r][c] != b.Rows[r][c] {
				t.Fatal("same seed should give the same square")
			}
		}
	}

	if _, err := env.client.Square(ctx, SquareRequest{Order: MaxSquareOrder + 1}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for oversized order, got %v", err)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, cipher.DefaultOptions(), false)
	ctx := metadata.AppendToOutgoingContext(callCtx(t), RequestIDHeader, "req-42")

	var header metadata.MD
	if _, err := env.client.Encrypt(ctx, EncryptRequest{Text: "HELLO"}, grpc.Header(&header)); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if got := header.Get(RequestIDHeader); len(got) != 1 || got[0] != "req-42" {
		t.Fatalf("expected request id echoed, got %v", got)
	}
	if !strings.Contains(env.audit.String(), `"request_id":"req-42"`) {
		t.Fatalf("expected request id in audit log: %s", env.audit.String())
	}

	header = nil
	if _, err := env.client.Encrypt(callCtx(t), EncryptRequest{Text: "HELLO"}, grpc.Header(&header)); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if got := header.Get(RequestIDHeader); len(got) != 1 || len(got[0]) != 36 {
		t.Fatalf("expected generated uuid request id, got %v", got)
	}
}

func TestTransformationLimit(t *testing.T) {
	env := newTestEnv(t, cipher.DefaultOptions(), false)
	ctx := callCtx(t)

	squares := []struct {
		name   string
		req    SquareRequest
		reject bool
	}{
		{"at cap", SquareRequest{Order: 8, Transformations: 8 * MaxTransformationsPerOrder}, false},
		{"negative means order", SquareRequest{Order: 8, Transformations: -1}, false},
		{"over cap", SquareRequest{Order: 8, Transformations: 8*MaxTransformationsPerOrder + 1}, true},
		{"largest order", SquareRequest{Order: MaxSquareOrder, Transformations: 20000}, true},
		{"int32 max", SquareRequest{Order: 3, Transformations: math.MaxInt32}, true},
	}
	for _, tt := range squares {
		t.Run("square "+tt.name, func(t *testing.T) {
			_, err := env.client.Square(ctx, tt.req)
			if tt.reject && status.Code(err) != codes.InvalidArgument {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
			if !tt.reject && err != nil {
				t.Fatalf("Square: %v", err)
			}
		})
	}

	// "HELLO" needs an order 3 square.
	allowed := 3 * MaxTransformationsPerOrder
	if _, err := env.client.Encrypt(ctx, EncryptRequest{Text: "HELLO", Transformations: &allowed}); err != nil {
		t.Fatalf("Encrypt at cap: %v", err)
	}
	tooMany := allowed + 1
	if _, err := env.client.Encrypt(ctx, EncryptRequest{Text: "HELLO", Transformations: &tooMany}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument over cap, got %v", err)
	}
}

type zeroRand struct{}

func (zeroRand) IntN(int) int { return 0 }

func TestDecryptRejectsStaleFiller(t *testing.T) {
	defaults := cipher.DefaultOptions()
	defaults.Rand = zeroRand{}
	env := newTestEnv(t, defaults, false)
	ctx := callCtx(t)

	// A zero offset leaves '_' in the text, so the filler has to move.
	enc, err := env.client.Encrypt(ctx, EncryptRequest{Text: "a_b", Mode: "enhanced"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc.Filler == "_" {
		t.Fatalf("expected the filler to move, got %+v", enc)
	}

	_, err = env.client.Decrypt(ctx, DecryptRequest{Ciphertext: enc.Ciphertext, Key: enc.Key, Mode: "enhanced"})
	if status.Code(err) != codes.InvalidArgument || !strings.Contains(status.Convert(err).Message(), "filler") {
		t.Fatalf("expected InvalidArgument filler error, got %v", err)
	}

	dec, err := env.client.Decrypt(ctx, DecryptRequest{Ciphertext: enc.Ciphertext, Key: enc.Key, Mode: "enhanced", Filler: enc.Filler})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec.Text != "a_b" {
		t.Fatalf("expected a_b, got %q", dec.Text)
	}
}

func TestServeReturnsWhenListenerFails(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	_ = lis.Close()

	auditBuf := &bytes.Buffer{}
	audit, err := logging.NewAuditLogger("rpc_test", logging.WithoutStdout(), logging.WithWriter(auditBuf))
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	srv := NewServer(cipher.DefaultOptions(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditLogger(audit),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(context.Background(), lis, srv, 0)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected the listener error to be returned")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after its listener failed")
	}
	if !strings.Contains(auditBuf.String(), `"action":"stop"`) {
		t.Fatalf("expected a stop lifecycle event: %s", auditBuf.String())
	}
}
