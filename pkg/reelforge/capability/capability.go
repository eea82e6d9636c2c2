// Package capability defines the narrow external interfaces the core
// calls through — script generation, video assembly, and upload — plus
// default implementations suitable for local/dev use. The core never
// assumes these are idempotent across retries.
package capability

import (
	"context"
	"time"
)

// ProgressFunc reports 0-100 progress of a long-running capability call.
type ProgressFunc func(percent int)

// Script is the artifact produced by ScriptGenerator.
type Script struct {
	ID   string
	Text string
}

// ScriptGenerator turns a topic into a script. Must be cancellable via
// ctx.
type ScriptGenerator interface {
	Generate(ctx context.Context, topic, style string, durationSeconds int, tags []string) (Script, error)
}

// Asset is a reference to a media asset usable during assembly (image,
// clip, audio bed). Opaque to the core.
type Asset struct {
	Path string
	Kind string
}

// VideoArtifact is the output of VideoAssembler.
type VideoArtifact struct {
	Path            string
	DurationSeconds int
}

// VideoAssembler turns a script plus assets into a rendered video file.
type VideoAssembler interface {
	Assemble(ctx context.Context, script Script, assets []Asset, voice string, progress ProgressFunc) (VideoArtifact, error)
}

// UploadMetadata carries the publish-facing fields forwarded from the
// job's production parameters.
type UploadMetadata struct {
	Title    string
	Tags     []string
	Category string
	Privacy  string
}

// UploadResult is returned by a successful upload.
type UploadResult struct {
	VideoID string
	URL     string
}

// YouTubeUploader publishes a rendered video. publishAt, if non-nil,
// requests scheduled (rather than immediate) publication.
type YouTubeUploader interface {
	Upload(ctx context.Context, artifact VideoArtifact, metadata UploadMetadata, publishAt *time.Time, progress ProgressFunc) (UploadResult, error)
}

// CredentialStore resolves the OAuth refresh token the uploader needs,
// from the OS keyring.
type CredentialStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
}
