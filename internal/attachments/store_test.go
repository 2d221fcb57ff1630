package attachments

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

func TestPutIsContentAddressed(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	first, err := store.Put(ctx, "quote.pdf", "application/pdf", strings.NewReader("quotation body"))
	require.NoError(t, err)
	require.Equal(t, int64(len("quotation body")), first.Size)
	require.Equal(t, "sha256:"+first.Checksum, first.Ref)

	again, err := store.Put(ctx, "copy.pdf", "application/pdf", strings.NewReader("quotation body"))
	require.NoError(t, err)
	require.Equal(t, first.Ref, again.Ref)

	rc, err := store.Open(ctx, first.Ref)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "quotation body", string(body))
}

func TestOpenRejectsForeignRefs(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidRef)
	_, err = store.Open(ctx, "sha256:"+strings.Repeat("zz", 32))
	require.ErrorIs(t, err, ErrInvalidRef)
	_, err = store.Open(ctx, "sha256:"+strings.Repeat("ab", 32))
	require.ErrorIs(t, err, requisition.ErrNotFound)
}

func TestPutHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(ctx, "late.png", "image/png", strings.NewReader("png"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPruneKeepsReferencedAndRecentBlobs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	kept, err := store.Put(ctx, "quote.pdf", "application/pdf", strings.NewReader("referenced"))
	require.NoError(t, err)
	orphan, err := store.Put(ctx, "sig.png", "image/png", strings.NewReader("never signed"))
	require.NoError(t, err)
	fresh, err := store.Put(ctx, "new.pdf", "application/pdf", strings.NewReader("in flight"))
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	for _, blob := range []requisition.StoredBlob{kept, orphan} {
		require.NoError(t, os.Chtimes(store.path(blob.Checksum), old, old))
	}

	keep := func(ref string) bool { return ref == kept.Ref }
	removed, err := store.Prune(ctx, keep, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.Open(ctx, orphan.Ref)
	require.ErrorIs(t, err, requisition.ErrNotFound)
	for _, blob := range []requisition.StoredBlob{kept, fresh} {
		rc, err := store.Open(ctx, blob.Ref)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	}
}

func TestPutAgainRestartsGracePeriod(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	blob, err := store.Put(ctx, "a.pdf", "application/pdf", strings.NewReader("same"))
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.path(blob.Checksum), old, old))

	_, err = store.Put(ctx, "b.pdf", "application/pdf", strings.NewReader("same"))
	require.NoError(t, err)

	removed, err := store.Prune(ctx, func(string) bool { return false }, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)
}
