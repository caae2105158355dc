package admin

import (
	"context"
	"io"
	"net"
	"os"

	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/serializer"
	"github.com/ValentinKolb/vKV/rpc/transport"
	"github.com/ValentinKolb/vKV/rpc/transport/base"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("admin")

// NewSessionHandler returns the session handler of the admin channel. Every frame holds
// one serialized message, requests are answered in order. Messages that cannot be decoded
// are answered with an error message, framing errors end the session.
func NewSessionHandler(adapter IAdminAdapter, ser serializer.IRPCSerializer, maxFrameBytes int) transport.SessionHandler {
	return func(ctx context.Context, conn net.Conn) {
		if err := Serve(ctx, conn, adapter, ser, maxFrameBytes); err != nil {
			log.Warningf("admin session from %s ended: %v", conn.RemoteAddr(), err)
		}
	}
}

// Serve runs the admin request loop on conn until the stream ends or ctx is cancelled
func Serve(ctx context.Context, conn net.Conn, adapter IAdminAdapter, ser serializer.IRPCSerializer, maxFrameBytes int) error {
	for ctx.Err() == nil {
		frame, err := base.ReadFrame(conn, maxFrameBytes)
		if err != nil {
			if errors.Is(err, io.EOF) || (ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded)) {
				return nil
			}
			return errors.Wrap(err, "read admin frame")
		}

		var req common.Message
		var resp *common.Message
		if err := ser.Deserialize(frame, &req); err != nil {
			resp = common.NewErrorResponse(errors.Wrap(err, "failed to deserialize request"))
		} else {
			log.Debugf("admin request %s", req.MsgType)
			resp = adapter.Handle(&req)
		}

		out, err := ser.Serialize(*resp)
		if err != nil {
			out, err = ser.Serialize(*common.NewErrorResponse(errors.Wrap(err, "failed to serialize response")))
			if err != nil {
				return errors.Wrap(err, "serialize admin error response")
			}
		}
		if err := base.WriteFrame(conn, out); err != nil {
			return errors.Wrap(err, "write admin frame")
		}
	}
	return nil
}
