// Package grpcstream is the network-facing remotestore.Datastore
// implementation: it dials a gRPC server and opens the watch/write duplex
// streams the coordinator drives. There is no generated protobuf client for
// this service; messages are framed with a small JSON codec registered
// below, carried over grpc.ClientConn's generic streaming API.
package grpcstream

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/teranos/docsync/errors"
	"github.com/teranos/docsync/remotestore"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

var _ remotestore.Datastore = (*Datastore)(nil)

const (
	watchMethod = "/docsync.RemoteStore/Watch"
	writeMethod = "/docsync.RemoteStore/Write"
)

// CredentialsProvider mints the token attached to every RPC. A JWT-backed
// implementation lives in credentials.go.
type CredentialsProvider interface {
	Token(ctx context.Context) (string, error)
}

// Datastore dials addr and implements remotestore.Datastore against it.
type Datastore struct {
	addr   string
	logger *zap.SugaredLogger
	creds  CredentialsProvider

	conn *grpc.ClientConn

	watchBackoff *backoff.ExponentialBackOff
	writeBackoff *backoff.ExponentialBackOff
	mu           sync.Mutex
}

// New constructs a Datastore bound to addr. Start must be called before any
// dial is attempted.
func New(addr string, logger *zap.SugaredLogger, creds CredentialsProvider) *Datastore {
	return &Datastore{
		addr:         addr,
		logger:       logger,
		creds:        creds,
		watchBackoff: newBackoff(),
		writeBackoff: newBackoff(),
	}
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // never give up; the coordinator decides when to stop retrying
	return b
}

func (d *Datastore) Start(ctx context.Context) error {
	conn, err := grpc.DialContext(ctx, d.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return errors.Wrapf(err, "dial %s", d.addr)
	}
	d.conn = conn
	return nil
}

func (d *Datastore) Shutdown() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func (d *Datastore) callOptions(ctx context.Context) ([]grpc.CallOption, error) {
	if d.creds == nil {
		return nil, nil
	}
	token, err := d.creds.Token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "mint credential token")
	}
	return []grpc.CallOption{grpc.PerRPCCredentials(tokenCreds{token: token})}, nil
}

func (d *Datastore) DialWatch(ctx context.Context) (remotestore.WatchConnection, error) {
	if err := d.wait(ctx, d.watchBackoff); err != nil {
		return nil, err
	}
	opts, err := d.callOptions(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := d.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Watch", ClientStreams: true, ServerStreams: true}, watchMethod, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "open watch stream")
	}
	return &watchConn{stream: stream}, nil
}

func (d *Datastore) DialWrite(ctx context.Context) (remotestore.WriteConnection, error) {
	if err := d.wait(ctx, d.writeBackoff); err != nil {
		return nil, err
	}
	opts, err := d.callOptions(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := d.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Write", ClientStreams: true, ServerStreams: true}, writeMethod, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "open write stream")
	}
	return &writeConn{stream: stream}, nil
}

func (d *Datastore) wait(ctx context.Context, b *backoff.ExponentialBackOff) error {
	d.mu.Lock()
	delay := b.NextBackOff()
	d.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InhibitWriteBackoff resets the write-stream backoff, so the next dial
// waits only the backoff's initial interval instead of the grown delay; the
// wait itself is not skipped.
func (d *Datastore) InhibitWriteBackoff() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeBackoff.Reset()
}

// IsPermanentError classifies a write-stream handshake error (the watch
// stream does not consult it): InvalidArgument, FailedPrecondition and
// PermissionDenied are permanent; everything else, Unauthenticated included,
// is treated as transient and retried under backoff, each dial minting a
// fresh credential token.
func (d *Datastore) IsPermanentError(s remotestore.Status) bool {
	if s.OK {
		return false
	}
	code := status.Code(s.Err)
	switch code {
	case 3 /* InvalidArgument */, 9 /* FailedPrecondition */, 7 /* PermissionDenied */:
		return true
	default:
		return false
	}
}

// IsPermanentWriteError classifies a write error using the same table as
// IsPermanentError; mutation payload problems surface as InvalidArgument or
// FailedPrecondition exactly like listen errors do.
func (d *Datastore) IsPermanentWriteError(s remotestore.Status) bool {
	return d.IsPermanentError(s)
}

func (d *Datastore) NewTransaction(ctx context.Context) (remotestore.Transaction, error) {
	return struct{}{}, nil
}

type tokenCreds struct{ token string }

func (c tokenCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.token}, nil
}
func (c tokenCreds) RequireTransportSecurity() bool { return false }
