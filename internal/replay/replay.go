// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package replay feeds recorded Ethernet captures through a frame handler.
package replay

import (
	"context"
	"io"
	"os"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/source"
)

// Result counts what a replay processed.
type Result struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// File replays a pcap or pcapng file.
func File(ctx context.Context, path string, h source.FrameHandler) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, errors.Attr(errors.Wrap(err, errors.KindNotFound, "capture file not found"), "path", path)
		}
		return Result{}, errors.Attr(errors.Wrap(err, errors.KindInternal, "failed to open capture file"), "path", path)
	}
	defer f.Close()

	res, err := Reader(ctx, f, h)
	if err != nil {
		return res, errors.Attr(err, "path", path)
	}
	return res, nil
}

// Reader replays a pcap or pcapng stream. Only Ethernet captures are accepted.
func Reader(ctx context.Context, r io.ReadSeeker, h source.FrameHandler) (Result, error) {
	pr, err := open(r)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		data, _, err := pr.ReadPacketData()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, errors.Wrap(err, errors.KindMalformed, "failed to read packet")
		}

		res.Packets++
		res.Bytes += uint64(len(data))
		h.HandleFrame(data)
	}
}

func open(r io.ReadSeeker) (packetReader, error) {
	if pr, err := pcapgo.NewReader(r); err == nil {
		if lt := pr.LinkType(); lt != layers.LinkTypeEthernet {
			return nil, errors.Attr(errors.New(errors.KindUnsupported, "capture is not Ethernet"), "link_type", lt.String())
		}
		return pr, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to rewind capture")
	}
	ng, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindMalformed, "not a pcap or pcapng capture")
	}
	if lt := ng.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, errors.Attr(errors.New(errors.KindUnsupported, "capture is not Ethernet"), "link_type", lt.String())
	}
	return ng, nil
}
