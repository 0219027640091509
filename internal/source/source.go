// Package source resolves an input reference (local path, file://, http(s)://
// or s3://) into a local file the rasterizer can open.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is matched by every "input does not exist" failure.
var ErrNotFound = errors.New("input not found")

// NotFoundError reports a missing input with the reference the user gave.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string { return "PDF file not found: " + e.Ref }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// S3Downloader is the subset of the transfer manager used here.
type S3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// Options configures a Resolver.
type Options struct {
	HTTPClient      *http.Client
	HTTPTimeout     time.Duration
	DecryptPassword string
	// S3 is created from the default AWS config chain on first use when nil.
	S3 S3Downloader
}

// Resolved is a local file backing a reference. Release removes any temp copy.
type Resolved struct {
	Ref    string
	Path   string
	Remote bool

	cleanup func()
}

// Release deletes downloaded temp files. It is safe to call more than once.
func (r *Resolved) Release() {
	if r == nil || r.cleanup == nil {
		return
	}
	r.cleanup()
	r.cleanup = nil
}

// Resolver turns references into local files.
type Resolver struct {
	opts Options

	s3Once sync.Once
	s3     S3Downloader
	s3Err  error
}

// New creates a resolver.
func New(opts Options) *Resolver {
	if opts.HTTPClient == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &Resolver{opts: opts, s3: opts.S3}
}

// Resolve returns a local file for ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Resolved, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return r.fromS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return r.fromHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		return local(ref, strings.TrimPrefix(ref, "file://"))
	default:
		return local(ref, ref)
	}
}

func local(ref, p string) (*Resolved, error) {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, fmt.Errorf("error accessing input file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", p)
	}
	return &Resolved{Ref: ref, Path: p}, nil
}

func (r *Resolver) fromHTTP(ctx context.Context, url string) (*Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Ref: url}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("download %s: http %d", url, resp.StatusCode)
	}

	f, err := os.CreateTemp("", "dmscan-http-*"+tempExt(url))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	log.Debug().Str("url", url).Str("file", f.Name()).Msg("downloaded input to temp")
	return remote(url, f.Name()), nil
}

func (r *Resolver) fromS3(ctx context.Context, ref string) (*Resolved, error) {
	bucket, key, err := parseS3(ref)
	if err != nil {
		return nil, err
	}

	dl, err := r.downloader(ctx)
	if err != nil {
		return nil, err
	}

	buf := manager.NewWriteAtBuffer([]byte{})
	if _, err := dl.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, fmt.Errorf("download %s: %w", ref, err)
	}

	data := buf.Bytes()
	if r.opts.DecryptPassword != "" {
		plain, format, err := Decrypt(data, r.opts.DecryptPassword)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", ref, err)
		}
		log.Debug().Str("bucket", bucket).Str("key", key).Str("encryption_format", format).Msg("decrypted s3 object")
		data = plain
	}

	f, err := os.CreateTemp("", "dmscan-s3-*"+tempExt(key))
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	log.Info().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("downloaded s3 input to temp")
	return remote(ref, f.Name()), nil
}

func (r *Resolver) downloader(ctx context.Context) (S3Downloader, error) {
	r.s3Once.Do(func() {
		if r.s3 != nil {
			return
		}
		cfg, err := awscfg.LoadDefaultConfig(ctx)
		if err != nil {
			r.s3Err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		r.s3 = manager.NewDownloader(s3.NewFromConfig(cfg))
	})
	return r.s3, r.s3Err
}

func remote(ref, p string) *Resolved {
	return &Resolved{Ref: ref, Path: p, Remote: true, cleanup: func() { _ = os.Remove(p) }}
}

// parseS3 splits s3://bucket/key.
func parseS3(ref string) (bucket, key string, err error) {
	p := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return p[:slash], p[slash+1:], nil
}

// tempExt keeps a short extension so type sniffing and logs stay readable.
func tempExt(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ext := strings.ToLower(path.Ext(ref))
	if len(ext) > 6 {
		return ""
	}
	return ext
}
