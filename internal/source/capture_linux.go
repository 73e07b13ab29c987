// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package source

import (
	"context"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/mdlayher/packet"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
)

// captureBufferSize fits any frame the kernel hands to a packet socket,
// including GRO-merged segments.
const captureBufferSize = 64 * 1024

// Capture reads every frame seen on one interface and hands it to a FrameHandler.
type Capture struct {
	iface   string
	handler FrameHandler
	logger  *logging.Logger
	metrics *metrics.Metrics

	running atomic.Bool
	read    atomic.Uint64
	errors  atomic.Uint64
}

// NewCapture creates a capture source for iface.
func NewCapture(iface string, h FrameHandler, logger *logging.Logger, m *metrics.Metrics) *Capture {
	if logger == nil {
		logger = logging.WithComponent("capture")
	}
	return &Capture{
		iface:   iface,
		handler: h,
		logger:  logger.With("iface", iface),
		metrics: m,
	}
}

// Run opens the packet socket and reads until ctx is cancelled.
func (c *Capture) Run(ctx context.Context) error {
	ifi, err := resolveInterface(c.iface)
	if err != nil {
		return err
	}

	conn, err := packet.Listen(ifi, packet.Raw, unix.ETH_P_ALL, nil)
	if err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to open packet socket"), "iface", c.iface)
	}
	defer conn.Close()

	c.running.Store(true)
	defer c.running.Store(false)
	c.logger.Info("Capture started", "index", ifi.Index, "mtu", ifi.MTU)

	buf := make([]byte, captureBufferSize)
	var backoff readBackoff
	for {
		if ctx.Err() != nil {
			c.logger.Info("Capture stopped", "frames", c.read.Load())
			return nil
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return errors.Wrap(err, errors.KindInternal, "failed to set read deadline")
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			c.errors.Add(1)
			c.metrics.ObserveSourceError("capture")
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Debug("Packet read failed", "error", err)
			wait, ok := backoff.fail()
			if !ok {
				return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "packet reads keep failing"), "iface", c.iface)
			}
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}
		backoff.reset()

		c.read.Add(1)
		c.handler.HandleFrame(buf[:n])
	}
}

// Stats returns the capture counters.
func (c *Capture) Stats() Stats {
	return Stats{Running: c.running.Load(), Read: c.read.Load(), Errors: c.errors.Load()}
}

// resolveInterface looks the link up over netlink and requires it to be up.
func resolveInterface(name string) (*net.Interface, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindNotFound, "interface not found"), "iface", name)
	}

	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		return nil, errors.Attr(errors.New(errors.KindUnavailable, "interface is down"), "iface", name)
	}

	ifi, err := net.InterfaceByIndex(attrs.Index)
	if err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindNotFound, "interface not found"), "iface", name)
	}
	return ifi, nil
}
