package builder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/xdlrc"
)

// Build reads a device description from r and returns the routing-ready
// device.
func Build(ctx context.Context, r io.Reader, opts Options) (*device.Device, error) {
	b := New(opts)
	if err := xdlrc.NewParser(r, opts.Filename).Parse(b); err != nil {
		return nil, err
	}
	return b.Finish(ctx)
}

// BuildFile is Build for a file on disk. Unless opts.Name is set the device
// is named after the file, without its extension.
func BuildFile(ctx context.Context, path string, opts Options) (*device.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open device description")
	}
	defer f.Close()

	if opts.Filename == "" {
		opts.Filename = path
	}
	if opts.Name == "" {
		base := filepath.Base(path)
		opts.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return Build(ctx, f, opts)
}
