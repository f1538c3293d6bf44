package blob

import (
	"context"
	"fmt"

	"kolcrm/internal/infra/blob/fs"
	"kolcrm/internal/infra/blob/memory"
	"kolcrm/internal/infra/blob/s3"
)

// Config selects a backend. Only the fields of the chosen driver are read.
type Config struct {
	Driver Driver
	FSRoot string
	S3     s3.Config
}

// Open constructs the configured store. An empty driver selects the
// filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
