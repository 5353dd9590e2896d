package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/RowanDark/magiccipher/internal/cipher"
	"github.com/RowanDark/magiccipher/internal/keycodec"
	"github.com/RowanDark/magiccipher/internal/keystore"
	"github.com/RowanDark/magiccipher/internal/logging"
	"github.com/RowanDark/magiccipher/internal/magic"
	"github.com/RowanDark/magiccipher/internal/metrics"
)

// RequestIDHeader carries the per-call request id in both directions.
const RequestIDHeader = "x-request-id"

// MaxSquareOrder bounds the squares the Square method will build.
const MaxSquareOrder = 256

// MaxTransformationsPerOrder caps requested transformation steps at this
// multiple of the square's order, keeping each call O(order³).
const MaxTransformationsPerOrder = 4

type requestIDKey struct{}

// Server implements the MagicCipher service on top of cipher.Engine.
type Server struct {
	defaults cipher.Options
	logger   *slog.Logger
	audit    *logging.AuditLogger
	store    *keystore.Store
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditLogger records issued keys and rejected decrypts.
func WithAuditLogger(logger *logging.AuditLogger) ServerOption {
	return func(s *Server) {
		s.audit = logger
	}
}

// WithKeystore enables Encrypt store requests and Decrypt by envelope id.
func WithKeystore(store *keystore.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// NewServer returns a server whose requests fall back to defaults.
func NewServer(defaults cipher.Options, opts ...ServerOption) *Server {
	srv := &Server{
		defaults: defaults,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Encrypt implements MagicCipherServer.
func (s *Server) Encrypt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := encryptRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	if req.Store && s.store == nil {
		return nil, status.Error(codes.FailedPrecondition, "key store is not configured")
	}

	opts, err := s.options(req.Mode, req.Encoding, req.Filler, req.Delimiter)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Transformations != nil {
		order := opts.Generator.Order(cipher.OrderFor(utf8.RuneCountInString(req.Text)))
		if err := checkTransformations(*req.Transformations, order); err != nil {
			return nil, err
		}
		opts.Transformations = *req.Transformations
	}
	engine, err := cipher.NewEngine(opts)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := engine.Encrypt(req.Text)
	if err != nil {
		if errors.Is(err, cipher.ErrEmptyText) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error("encrypt failed", "request_id", requestID(ctx), "error", err)
		return nil, status.Error(codes.Internal, "encrypt")
	}

	resp := EncryptResponse{
		Key:        res.Key,
		Ciphertext: res.Ciphertext,
		Filler:     string(res.Filler),
		Order:      res.Order,
	}
	if req.Store {
		env := keystore.NewEnvelope(res, engine.Options())
		if err := s.store.Save(ctx, &env); err != nil {
			s.logger.Error("store envelope failed", "request_id", requestID(ctx), "error", err)
			return nil, status.Error(codes.Internal, "store envelope")
		}
		resp.EnvelopeID = env.ID
		s.emit(ctx, logging.KeyStored(env.ID))
	}

	resolved := engine.Options()
	metrics.RecordKeyIssued(string(resolved.Mode), string(resolved.Encoding), res.Order)
	s.emit(ctx, logging.KeyIssued(logging.KeyInfo{
		Fingerprint: keycodec.Fingerprint(res.Key),
		Mode:        string(resolved.Mode),
		Encoding:    string(resolved.Encoding),
		Order:       res.Order,
		EnvelopeID:  resp.EnvelopeID,
	}))
	return resp.toStruct()
}

// Decrypt implements MagicCipherServer.
func (s *Server) Decrypt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := decryptRequestFromStruct(in)

	var (
		opts cipher.Options
		err  error
	)
	if req.EnvelopeID != "" {
		if s.store == nil {
			return nil, status.Error(codes.FailedPrecondition, "key store is not configured")
		}
		env, getErr := s.store.Get(ctx, req.EnvelopeID)
		if getErr != nil {
			if errors.Is(getErr, keystore.ErrNotFound) {
				return nil, status.Error(codes.NotFound, getErr.Error())
			}
			s.logger.Error("load envelope failed", "request_id", requestID(ctx), "error", getErr)
			return nil, status.Error(codes.Internal, "load envelope")
		}
		opts, err = env.EngineOptions()
		if err != nil {
			return nil, status.Error(codes.DataLoss, err.Error())
		}
		req.Key = env.Key
		if req.Ciphertext == "" {
			req.Ciphertext = env.Ciphertext
		}
	} else {
		if req.Key == "" {
			return nil, status.Error(codes.InvalidArgument, "key or envelope_id is required")
		}
		opts, err = s.options(req.Mode, req.Encoding, req.Filler, req.Delimiter)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	engine, err := cipher.NewEngine(opts)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	keyInfo := logging.KeyInfo{
		Fingerprint: keycodec.Fingerprint(req.Key),
		Mode:        string(engine.Options().Mode),
		EnvelopeID:  req.EnvelopeID,
	}
	text, err := engine.DecryptWithFiller(req.Ciphertext, req.Key, engine.Options().Filler)
	if err != nil {
		s.emit(ctx, logging.Decrypted(keyInfo, cipher.RejectionReason(err)))
		var keyErr *keycodec.KeyError
		switch {
		case errors.As(err, &keyErr):
			metrics.RecordKeyRejection(keyErr.Kind.String())
			return nil, status.Error(codes.InvalidArgument, keyErr.Error())
		case errors.Is(err, cipher.ErrFillerMismatch):
			metrics.RecordKeyRejection("Filler mismatch")
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error("decrypt failed", "request_id", requestID(ctx), "error", err)
		return nil, status.Error(codes.Internal, "decrypt")
	}

	s.emit(ctx, logging.Decrypted(keyInfo, ""))
	return DecryptResponse{Text: text}.toStruct()
}

// Square implements MagicCipherServer.
func (s *Server) Square(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := squareRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Order < 1 || req.Order > MaxSquareOrder {
		return nil, status.Errorf(codes.InvalidArgument, "order must be between 1 and %d", MaxSquareOrder)
	}

	if err := checkTransformations(req.Transformations, s.defaults.Generator.Order(req.Order)); err != nil {
		return nil, err
	}

	rng := s.defaults.Rand
	if req.Seed != nil {
		rng = magic.NewSeededRand(*req.Seed)
	}
	sq := s.defaults.Generator.Create(req.Order)
	if req.Transformations != 0 {
		sq = magic.Transform(sq, req.Transformations, rng)
	}

	s.emit(ctx, logging.SquareIssued(sq.Order(), req.Transformations))
	return SquareResponse{
		Order:     sq.Order(),
		Constant:  magic.MagicConstant(sq.Order()),
		Rows:      sq.Rows(),
		Magic:     magic.IsMagic(sq),
		Symmetric: magic.IsSymmetric(sq),
	}.toStruct()
}

// checkTransformations rejects step counts above the per-order cap. Negative
// counts mean one step per row and are always allowed.
func checkTransformations(amount, order int) error {
	if limit := MaxTransformationsPerOrder * order; amount > limit {
		return status.Errorf(codes.InvalidArgument, "transformations must not exceed %d for order %d", limit, order)
	}
	return nil
}

// options merges request overrides into the server defaults.
func (s *Server) options(mode, encoding, filler, delimiter string) (cipher.Options, error) {
	opts := s.defaults
	if strings.TrimSpace(mode) != "" {
		m, err := cipher.ParseMode(mode)
		if err != nil {
			return cipher.Options{}, err
		}
		opts.Mode = m
		// A mode override picks that mode's default encoding unless one is given.
		opts.Encoding = ""
	}
	if strings.TrimSpace(encoding) != "" {
		enc, err := keycodec.ParseEncoding(encoding)
		if err != nil {
			return cipher.Options{}, err
		}
		opts.Encoding = enc
	}
	if filler != "" {
		if utf8.RuneCountInString(filler) != 1 {
			return cipher.Options{}, errors.New("filler must be exactly one character")
		}
		opts.Filler, _ = utf8.DecodeRuneInString(filler)
	}
	if delimiter != "" {
		opts.Delimiter = delimiter
	}
	return opts, nil
}

func (s *Server) emit(ctx context.Context, event logging.AuditEvent) {
	if s.audit == nil {
		return
	}
	event.RequestID = requestID(ctx)
	if err := s.audit.Emit(event); err != nil {
		s.logger.Warn("audit log error", "error", err)
	}
}

// UnaryInterceptor assigns each call a request id, echoes it to the client
// as a header and logs the outcome.
func (s *Server) UnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDHeader); len(vals) > 0 {
			id = strings.TrimSpace(vals[0])
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	metrics.RecordRPC(info.FullMethod, code.String(), time.Since(start))
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "rpc call",
		"method", info.FullMethod,
		"request_id", id,
		"code", code.String(),
		"duration", time.Since(start),
	)
	if code == codes.InvalidArgument || code == codes.FailedPrecondition {
		s.emit(ctx, logging.RPCDenied(info.FullMethod, status.Convert(err).Message()))
	}
	return resp, err
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewGRPCServer builds a grpc.Server with srv registered and its interceptor
// installed.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(srv.UnaryInterceptor)}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterMagicCipherServer(gs, srv)
	return gs
}

// Serve runs srv on lis until ctx is cancelled or lis fails. A positive
// maxConns caps the number of simultaneously accepted connections.
func Serve(ctx context.Context, lis net.Listener, srv *Server, maxConns int) error {
	if maxConns > 0 {
		lis = netutil.LimitListener(lis, maxConns)
	}
	gs := NewGRPCServer(srv)

	srv.emit(ctx, logging.ServerLifecycle("start", map[string]any{"addr": lis.Addr().String(), "max_conns": maxConns}))
	srv.logger.Info("magiccipher rpc listening", "addr", lis.Addr().String(), "max_conns", maxConns)

	serveDone := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-serveDone:
			// The listener failed; nothing is left to drain.
			gs.Stop()
			return
		}

		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			gs.Stop()
		}
	}()

	err := gs.Serve(lis)
	close(serveDone)
	<-stopped

	srv.emit(context.Background(), logging.ServerLifecycle("stop", nil))
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		srv.logger.Error("magiccipher rpc stopped", "error", err)
		return err
	}
	return nil
}
