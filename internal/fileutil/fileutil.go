package fileutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

const chunkSize = 4 << 20

// ProgressFunc receives the running byte count and the expected total.
type ProgressFunc func(written, total int64)

// ErrExists is returned when the destination exists and overwrite is off.
var ErrExists = errors.New("destination exists")

// CopyOptions controls CopyFileVerified.
type CopyOptions struct {
	Mode      os.FileMode
	Overwrite bool
	Progress  ProgressFunc
}

// CopyFileVerified streams src into a ".partial" file beside dst, re-reads the
// partial file to compare its size and SHA256 against the source, then renames
// it into place. The partial file is removed
// on any failure, including context cancellation between chunks.
func CopyFileVerified(ctx context.Context, src, dst string, opts CopyOptions) error {
	if opts.Mode == 0 {
		opts.Mode = 0o644
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	if !opts.Overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, dst)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	partial := dst + ".partial"
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, opts.Mode)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		_ = out.Close()
		if !committed {
			_ = os.Remove(partial)
		}
	}()

	srcHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.CopyN(out, tee, chunkSize)
		written += n
		if opts.Progress != nil && n > 0 {
			opts.Progress(written, srcSize)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := out.Sync(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcSize {
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}
	if err := verifyCopy(ctx, partial, srcSize, srcHasher.Sum(nil)); err != nil {
		return err
	}
	if err := os.Rename(partial, dst); err != nil {
		return err
	}
	committed = true
	return nil
}

// verifyCopy hashes the file at path as stored on disk and compares it with
// the expected size and SHA256 digest.
func verifyCopy(ctx context.Context, path string, size int64, sum []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open copy for verification: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	var read int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.CopyN(hasher, f, chunkSize)
		read += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read copy for verification: %w", err)
		}
	}
	if read != size {
		return fmt.Errorf("copy size mismatch: source %d bytes, destination %d bytes", size, read)
	}
	if !bytes.Equal(sum, hasher.Sum(nil)) {
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
