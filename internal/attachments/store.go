// Package attachments keeps uploaded blobs on the local filesystem,
// addressed by the sha256 of their content.
package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

const refPrefix = "sha256:"

// ErrInvalidRef is returned for references this store did not issue.
var ErrInvalidRef = errors.New("attachments: invalid reference")

// Store writes blobs under root/<2 hex>/<64 hex>.
type Store struct {
	root string
}

var _ requisition.AttachmentStore = (*Store)(nil)

// New prepares root for use.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("attachments: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Put streams body to disk. Identical content yields the same reference.
func (s *Store) Put(ctx context.Context, name, contentType string, body io.Reader) (requisition.StoredBlob, error) {
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return requisition.StoredBlob{}, fmt.Errorf("attachments: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), contextReader{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return requisition.StoredBlob{}, fmt.Errorf("attachments: write %s: %w", name, err)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	dest := s.path(sum)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return requisition.StoredBlob{}, fmt.Errorf("attachments: create dir: %w", err)
	}
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(tmpName, dest); err != nil {
			return requisition.StoredBlob{}, fmt.Errorf("attachments: commit %s: %w", name, err)
		}
	} else {
		// a re-upload restarts the grace period Prune honours
		now := time.Now()
		if err := os.Chtimes(dest, now, now); err != nil {
			return requisition.StoredBlob{}, fmt.Errorf("attachments: touch %s: %w", name, err)
		}
	}
	return requisition.StoredBlob{Ref: refPrefix + sum, Checksum: sum, Size: size}, nil
}

// Open returns the blob behind ref.
func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	sum, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || len(sum) != sha256.Size*2 {
		return nil, ErrInvalidRef
	}
	if _, err := hex.DecodeString(sum); err != nil {
		return nil, ErrInvalidRef
	}
	f, err := os.Open(s.path(sum))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("attachments: %s: %w", ref, requisition.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("attachments: open %s: %w", ref, err)
	}
	return f, nil
}

// Prune removes blobs last written before cutoff that keep does not claim.
// Uploads of an action that was never committed, such as one whose signature
// was not confirmed, are left behind with no requisition pointing at them.
func (s *Store) Prune(ctx context.Context, keep func(ref string) bool, cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasPrefix(name, ".") || len(name) != sha256.Size*2 {
			return nil
		}
		ref := refPrefix + name
		if keep(ref) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("attachments: prune: %w", err)
	}
	return removed, nil
}

func (s *Store) path(sum string) string {
	return filepath.Join(s.root, sum[:2], sum)
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
