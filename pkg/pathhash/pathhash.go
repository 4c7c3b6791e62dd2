// Package pathhash computes fixed-width content digests over file bytes.
// Files are streamed in fixed-size chunks so memory usage stays constant
// regardless of file size, and cancellation is observed at chunk boundaries.
package pathhash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"pixelgardenlabs.io/janus/pkg/pool"
)

// DigestSize is the width of a content digest in bytes (SHA-256).
const DigestSize = sha256.Size

// DefaultChunkSize is the read granularity for streaming hash computation.
const DefaultChunkSize int64 = 64 * 1024

// Digest is a fixed-width content hash. Being a value type it works directly
// as a map key, which the planner's content index relies on.
type Digest [DigestSize]byte

// String returns the lowercase hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns an abbreviated hex form for log output.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}

// ParseDigest decodes a full-width hex digest string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("invalid digest %q: want %d bytes, got %d", s, DigestSize, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// EmptyDigest returns the digest of zero-length input. All zero-byte files
// share this identity, which lets rename detection treat them uniformly.
func EmptyDigest() Digest {
	return sha256.Sum256(nil)
}

// Sum hashes an in-memory byte slice. Intended for tests and small payloads.
func Sum(b []byte) Digest {
	return sha256.Sum256(b)
}

// Hasher streams files through SHA-256 using pooled chunk buffers.
// It is safe for concurrent use; each call borrows its own buffer.
type Hasher struct {
	chunkSize int64
	buffers   *pool.FixedBufferPool
}

// New creates a Hasher with the given chunk size. A non-positive size
// selects DefaultChunkSize.
func New(chunkSize int64) *Hasher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Hasher{
		chunkSize: chunkSize,
		buffers:   pool.NewFixedBuffer(chunkSize),
	}
}

// HashFile computes the content digest of the file at absPath.
// It returns the digest and the number of bytes hashed.
func (h *Hasher) HashFile(ctx context.Context, absPath string) (Digest, uint64, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("failed to open %s for hashing: %w", absPath, err)
	}
	defer f.Close()

	return h.HashReader(ctx, f)
}

// HashReader streams r to completion and returns its digest and length.
// Cancellation is checked between chunks.
func (h *Hasher) HashReader(ctx context.Context, r io.Reader) (Digest, uint64, error) {
	bufPtr := h.buffers.Get()
	defer h.buffers.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	sum := sha256.New()
	var total uint64
	for {
		if err := ctx.Err(); err != nil {
			return Digest{}, total, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			// hash.Hash.Write never returns an error.
			sum.Write(buf[:n])
			total += uint64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, total, err
		}
	}

	var d Digest
	sum.Sum(d[:0])
	return d, total, nil
}
