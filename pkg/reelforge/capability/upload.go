package capability

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zalando/go-keyring"
)

// keyringService and keyringUser namespace the stored credential the
// same way the teacher's provider API-key resolution does: one
// service/user pair per logical credential, never a raw blob shared
// across concerns.
const (
	keyringService = "reelforge-youtube-uploader"
	keyringUser    = "oauth-refresh-token"
)

// KeyringCredentialStore resolves the uploader's OAuth refresh token
// from the OS keyring, falling back to the REELFORGE_YOUTUBE_TOKEN
// environment variable for headless/CI environments where no keyring
// backend is available.
type KeyringCredentialStore struct{}

// Token implements CredentialStore.
func (KeyringCredentialStore) Token(ctx context.Context) (string, error) {
	if v := os.Getenv("REELFORGE_YOUTUBE_TOKEN"); v != "" {
		return v, nil
	}
	token, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		return "", fmt.Errorf("resolve youtube credential: %w", err)
	}
	return token, nil
}

// SetToken implements CredentialStore.
func (KeyringCredentialStore) SetToken(ctx context.Context, token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("store youtube credential: %w", err)
	}
	return nil
}

// StubYouTubeUploader is a side-effect-free uploader for local/dev and
// test use: it checks the credential when Credentials is set, reports
// progress, and returns a synthetic time-based id/url, never reaching
// the network. It keeps no record of its calls. Production deployments
// supply a real YouTubeUploader backed by the Data API.
type StubYouTubeUploader struct {
	Credentials CredentialStore
}

// Upload implements YouTubeUploader.
func (u StubYouTubeUploader) Upload(ctx context.Context, artifact VideoArtifact, metadata UploadMetadata, publishAt *time.Time, progress ProgressFunc) (UploadResult, error) {
	if u.Credentials != nil {
		if _, err := u.Credentials.Token(ctx); err != nil {
			return UploadResult{}, fmt.Errorf("%w: %v", errMissingCredential, err)
		}
	}

	for _, pct := range []int{25, 50, 75, 100} {
		select {
		case <-ctx.Done():
			return UploadResult{}, ctx.Err()
		default:
		}
		if progress != nil {
			progress(pct)
		}
	}

	id := fmt.Sprintf("stub-%d", time.Now().UnixNano())
	return UploadResult{VideoID: id, URL: "https://youtube.com/watch?v=" + id}, nil
}

var errMissingCredential = fmt.Errorf("youtube uploader: missing credential")
