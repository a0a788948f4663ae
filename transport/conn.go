package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/fluxgrid/silo/envelope"
	"github.com/fluxgrid/silo/log"
)

// maxFrameBytes bounds a single envelope's wire size, guarding the reader
// against an unbounded allocation from a corrupt or hostile length prefix.
const maxFrameBytes = 64 << 20

// peerConn owns one TCP connection to a peer silo and frames envelopes
// onto it as a 4-byte big-endian length prefix followed by that many bytes
// of envelope.MarshalBinary output.
type peerConn struct {
	peerID  string
	conn    net.Conn
	onRecv  func(from string, e *envelope.Envelope)
	logger  log.Logger
	writeMu sync.Mutex
	closed  chan struct{}
}

func newPeerConn(peerID string, conn net.Conn, onRecv func(string, *envelope.Envelope), logger log.Logger) *peerConn {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &peerConn{
		peerID: peerID,
		conn:   conn,
		onRecv: onRecv,
		logger: logger,
		closed: make(chan struct{}),
	}
}

func (pc *peerConn) write(e *envelope.Envelope) error {
	data, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))

	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if _, err := pc.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = pc.conn.Write(data)
	return err
}

// readLoop runs until the connection is closed (by either side) or ctx is
// canceled, returning nil for any expected-shutdown condition and a non-nil
// error only for a genuine read failure, so the errgroup tracking it in
// netTransport surfaces real faults through Wait without flagging an
// ordinary Stop-triggered close as one.
func (pc *peerConn) readLoop(ctx context.Context) error {
	defer pc.close()
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(pc.conn, lenBuf[:]); err != nil {
			if isExpectedCloseErr(err) {
				return nil
			}
			pc.logger.Warn("transport: peer read failed", zap.String("peer", pc.peerID), zap.Error(err))
			return err
		}
		frameLen := binary.BigEndian.Uint32(lenBuf[:])
		if frameLen > maxFrameBytes {
			pc.logger.Error("transport: oversized frame, closing connection",
				zap.String("peer", pc.peerID), zap.Uint32("bytes", frameLen))
			return nil
		}

		buf := make([]byte, frameLen)
		if _, err := io.ReadFull(pc.conn, buf); err != nil {
			if isExpectedCloseErr(err) {
				return nil
			}
			pc.logger.Warn("transport: peer frame read failed", zap.String("peer", pc.peerID), zap.Error(err))
			return err
		}

		e := &envelope.Envelope{}
		if err := e.UnmarshalBinary(buf); err != nil {
			pc.logger.Warn("transport: malformed envelope from peer", zap.String("peer", pc.peerID), zap.Error(err))
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
		pc.onRecv(pc.peerID, e)
	}
}

func isExpectedCloseErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

func (pc *peerConn) close() error {
	select {
	case <-pc.closed:
		return nil
	default:
		close(pc.closed)
	}
	return pc.conn.Close()
}
