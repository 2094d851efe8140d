package webrtc

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"voxhub/internal/domain"
)

// ForwardMetrics is the subset of internal/metrics.Collector the
// forwarding loop needs; kept as a narrow interface so this package does
// not import the metrics package directly.
type ForwardMetrics interface {
	PacketForwarded(room domain.RoomID)
	ForwardingError(room domain.RoomID)
}

const (
	forwardWriteMaxRetries  = 5
	forwardWriteInitialWait = 20 * time.Millisecond
	forwardWriteMaxWait     = 500 * time.Millisecond
)

// ForwardTrack is the RTP forwarding loop (§4.4): it reads packets from
// source in arrival order and writes them verbatim to sink until source
// ends, ctx is cancelled, or a write proves permanently unrecoverable.
// Sequence numbers, timestamps, SSRC, marker bits, and payload pass
// through untouched — no decoding, re-encoding, or rewriting.
func ForwardTrack(ctx context.Context, logger *zap.SugaredLogger, metrics ForwardMetrics, room domain.RoomID, source *webrtc.TrackRemote, sink *webrtc.TrackLocalStaticRTP) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, err := source.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Infow("forwarding loop: source track ended", "room", room, "track", sink.ID())
			} else {
				logger.Warnw("forwarding loop: source read error", "room", room, "track", sink.ID(), "error", err)
			}
			return
		}

		if err := writeWithBackoff(ctx, sink, pkt); err != nil {
			logger.Warnw("forwarding loop: giving up on sink write", "room", room, "track", sink.ID(), "error", err)
			metrics.ForwardingError(room)
			return
		}
		metrics.PacketForwarded(room)
	}
}

func writeWithBackoff(ctx context.Context, sink *webrtc.TrackLocalStaticRTP, pkt *rtp.Packet) error {
	wait := forwardWriteInitialWait
	var lastErr error
	for attempt := 0; attempt < forwardWriteMaxRetries; attempt++ {
		if err := sink.WriteRTP(pkt); err != nil {
			lastErr = err
			if !isTransientWriteError(err) {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if wait > forwardWriteMaxWait {
				wait = forwardWriteMaxWait
			}
			continue
		}
		return nil
	}
	return lastErr
}

// isTransientWriteError reports whether err is the kind produced when the
// consumer's peer connection has not yet reached the connected state
// (worth a bounded retry) as opposed to a permanent failure such as the
// track or connection having been closed.
func isTransientWriteError(err error) bool {
	return !errors.Is(err, io.ErrClosedPipe)
}
