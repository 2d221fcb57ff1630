package requisition

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SignatureInput is the artifact offered to confirm a pending action.
// Exactly one of Image or Password must be set.
type SignatureInput struct {
	Image    *Upload
	Password string
}

var signatureImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// MintStamp produces the textual signature for a re-verified user.
func MintStamp(user User, pendingID string, at time.Time) string {
	sum := sha256.Sum256([]byte(user.ID + "|" + pendingID + "|" + at.UTC().Format(time.RFC3339Nano)))
	return fmt.Sprintf("Signed electronically by %s (%s) on %s ref %s",
		user.Name, user.Role, at.UTC().Format("2006-01-02 15:04 MST"), strings.ToUpper(hex.EncodeToString(sum[:4])))
}

// sign turns in into a Signature bound to actor.
func (s *Service) sign(ctx context.Context, actor User, pendingID string, in SignatureInput) (*Signature, error) {
	hasImage := in.Image != nil && in.Image.Body != nil
	hasPassword := in.Password != ""
	switch {
	case hasImage == hasPassword:
		return nil, invalid("signature", "provide either a signature image or your password")
	case hasImage:
		if s.attachments == nil {
			return nil, invalid("signature", "image signatures are not available")
		}
		if !signatureImageTypes[strings.ToLower(in.Image.ContentType)] {
			return nil, invalid("signature", "signature image must be PNG or JPEG")
		}
		name := in.Image.Name
		if name == "" {
			name = "signature-" + pendingID
		}
		blob, err := s.attachments.Put(ctx, name, in.Image.ContentType, in.Image.Body)
		if err != nil {
			return nil, fmt.Errorf("store signature image: %w", err)
		}
		return &Signature{Kind: SignatureImage, ImageRef: blob.Ref}, nil
	default:
		if s.directory == nil {
			return nil, invalid("signature", "password signatures are not available")
		}
		verified, err := s.directory.Reverify(ctx, actor.ID, in.Password)
		if errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
			return nil, &AuthorizationError{UserID: actor.ID, Role: actor.Role, Action: "SIGN"}
		}
		if err != nil {
			return nil, fmt.Errorf("reverify: %w", err)
		}
		return &Signature{Kind: SignatureStamp, Stamp: MintStamp(verified, pendingID, s.now())}, nil
	}
}
