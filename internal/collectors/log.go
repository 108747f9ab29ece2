package collectors

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/ports"
)

// LogCollector resolves a log-scan job's input ref to the uploaded content.
type LogCollector struct {
	Uploads ports.UploadStore
}

func (c *LogCollector) Collect(ctx context.Context, job domain.Job) (io.ReadCloser, error) {
	id, err := uuid.Parse(job.InputRef)
	if err != nil {
		return nil, fmt.Errorf("invalid input ref %q: %w", job.InputRef, err)
	}
	content, err := c.Uploads.GetUpload(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load upload %s: %w", id, err)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}
