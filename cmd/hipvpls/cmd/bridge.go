package cmd

import (
	"os"

	"github.com/pkg/errors"
)

// fileBridge adapts an already-configured character device (a TAP
// interface an operator created out-of-band) to hip.BridgeConn. Creating
// and configuring the TAP device itself is platform plumbing and stays
// out of scope here; this just reads and writes the frames it carries.
type fileBridge struct {
	f *os.File
}

func openFileBridge(path string) (*fileBridge, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open bridge device")
	}
	return &fileBridge{f: f}, nil
}

func (b *fileBridge) ReadFrame() ([]byte, error) {
	buf := make([]byte, 9000)
	n, err := b.f.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (b *fileBridge) WriteFrame(frame []byte) error {
	_, err := b.f.Write(frame)
	return err
}

func (b *fileBridge) Close() error { return b.f.Close() }
