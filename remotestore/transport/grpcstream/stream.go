package grpcstream

import (
	"google.golang.org/grpc"

	"github.com/teranos/docsync/errors"
	"github.com/teranos/docsync/remotestore"
)

// watchConn adapts a raw grpc.ClientStream to remotestore.WatchConnection.
type watchConn struct {
	stream grpc.ClientStream
}

func (c *watchConn) Send(req remotestore.WatchRequest) error {
	if err := c.stream.SendMsg(requestToEnvelope(req)); err != nil {
		return errors.Wrap(err, "send watch request")
	}
	return nil
}

func (c *watchConn) Recv() (remotestore.WatchFrame, error) {
	var env watchEnvelope
	if err := c.stream.RecvMsg(&env); err != nil {
		return remotestore.WatchFrame{}, errors.Wrap(err, "recv watch frame")
	}
	return envelopeToFrame(&env), nil
}

func (c *watchConn) Close() error {
	return c.stream.CloseSend()
}

// writeConn adapts a raw grpc.ClientStream to remotestore.WriteConnection.
type writeConn struct {
	stream grpc.ClientStream
}

func (c *writeConn) Send(req remotestore.WriteRequest) error {
	if err := c.stream.SendMsg(writeRequestToEnvelope(req)); err != nil {
		return errors.Wrap(err, "send write request")
	}
	return nil
}

func (c *writeConn) Recv() (remotestore.WriteFrame, error) {
	var env writeEnvelope
	if err := c.stream.RecvMsg(&env); err != nil {
		return remotestore.WriteFrame{}, errors.Wrap(err, "recv write frame")
	}
	return writeEnvelopeToFrame(&env), nil
}

func (c *writeConn) Close() error {
	return c.stream.CloseSend()
}
