package predictor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"paprika/core"
	"paprika/stylize"
)

// Input errors, reported as stylize validation failures.
var (
	ErrEmptyInput       = errors.New("predictor: image reference is empty")
	ErrInputTooLarge    = errors.New("predictor: input exceeds size limit")
	ErrMalformedDataURL = errors.New("predictor: malformed data URL")
	ErrFetchInput       = errors.New("predictor: could not fetch input image")
	ErrLocalInput       = errors.New("predictor: local file inputs are not accepted; send a data URL or an http(s) URL")
	ErrURLInputDisabled = errors.New("predictor: URL inputs are disabled; send a data URL")
	ErrTooManyPixels    = errors.New("predictor: image dimensions exceed pixel limit")
)

// Input is a decoded request image.
type Input struct {
	Image  image.Image
	Format string
	Bytes  int
	// Ref is the reference as recorded in history: data URLs are
	// summarized and URLs lose credentials and query strings.
	Ref string
}

// InputResolver turns an image reference into a decoded image. A reference
// is a data URL or an http(s) URL; file:// URLs and local paths are read only
// when AllowLocalPaths is set.
type InputResolver struct {
	client     *http.Client
	maxBytes   int64
	maxPixels  int64
	localPaths bool
	urls       bool
}

// InputOption configures an InputResolver.
type InputOption func(*InputResolver)

// AllowLocalPaths lets references name files on this machine. Only callers
// that already have filesystem access, like the CLI, should set it.
func AllowLocalPaths() InputOption {
	return func(r *InputResolver) { r.localPaths = true }
}

// AllowURLs controls whether http(s) references are fetched. Default true.
func AllowURLs(allow bool) InputOption {
	return func(r *InputResolver) { r.urls = allow }
}

// WithMaxPixels rejects images whose width*height exceeds n before they are
// decoded. Non-positive n removes the limit.
func WithMaxPixels(n int64) InputOption {
	return func(r *InputResolver) { r.maxPixels = n }
}

// NewInputResolver returns a resolver that rejects inputs larger than
// maxBytes. A nil client uses http.DefaultClient.
func NewInputResolver(client *http.Client, maxBytes int64, opts ...InputOption) *InputResolver {
	if client == nil {
		client = http.DefaultClient
	}
	r := &InputResolver{client: client, maxBytes: maxBytes, maxPixels: stylize.DefaultMaxPixels, urls: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve loads and decodes ref.
func (r *InputResolver) Resolve(ctx context.Context, ref string) (*Input, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalidInput(ErrEmptyInput)
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "data:"):
		data, err = r.decodeDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if !r.urls {
			return nil, invalidInput(ErrURLInputDisabled)
		}
		data, err = r.fetch(ctx, ref)
	default:
		// Rejected without touching the filesystem so the error says
		// nothing about which paths exist.
		if !r.localPaths {
			return nil, invalidInput(ErrLocalInput)
		}
		data, err = r.readFile(strings.TrimPrefix(ref, "file://"))
	}
	if err != nil {
		return nil, invalidInput(err)
	}

	if err := r.checkPixels(data); err != nil {
		return nil, invalidInput(err)
	}
	img, format, err := stylize.DecodeImage(data)
	if err != nil {
		return nil, invalidInput(err)
	}
	return &Input{Image: img, Format: format, Bytes: len(data), Ref: DescribeRef(ref)}, nil
}

func (r *InputResolver) decodeDataURL(ref string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing comma", ErrMalformedDataURL)
	}

	if !strings.HasSuffix(header, ";base64") {
		text, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataURL, err)
		}
		if err := r.checkSize(int64(len(text))); err != nil {
			return nil, err
		}
		return []byte(text), nil
	}

	if err := r.checkSize(int64(base64.StdEncoding.DecodedLen(len(payload)))); err != nil {
		return nil, err
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(payload); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: payload is not valid base64", ErrMalformedDataURL)
}

func (r *InputResolver) fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchInput, err)
	}
	req.Header.Set("User-Agent", core.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchInput, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetchInput, DescribeRef(ref), resp.Status)
	}
	if resp.ContentLength > 0 {
		if err := r.checkSize(resp.ContentLength); err != nil {
			return nil, err
		}
	}
	return r.readLimited(resp.Body)
}

func (r *InputResolver) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open input: %s is a directory", path)
	}
	if err := r.checkSize(info.Size()); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return r.readLimited(f)
}

func (r *InputResolver) readLimited(rd io.Reader) ([]byte, error) {
	if r.maxBytes <= 0 {
		return io.ReadAll(rd)
	}
	data, err := io.ReadAll(io.LimitReader(rd, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if err := r.checkSize(int64(len(data))); err != nil {
		return nil, err
	}
	return data, nil
}

func (r *InputResolver) checkSize(n int64) error {
	if r.maxBytes > 0 && n > r.maxBytes {
		return fmt.Errorf("%w: %s > %s", ErrInputTooLarge, core.FormatBytes(n), core.FormatBytes(r.maxBytes))
	}
	return nil
}

// checkPixels reads only the image header.
func (r *InputResolver) checkPixels(data []byte) error {
	if r.maxPixels <= 0 {
		return nil
	}
	conf, _, err := stylize.DecodeImageConfig(data)
	if err != nil {
		return err
	}
	if px := int64(conf.Width) * int64(conf.Height); px > r.maxPixels {
		return fmt.Errorf("%w: %dx%d is %d pixels, limit %d", ErrTooManyPixels, conf.Width, conf.Height, px, r.maxPixels)
	}
	return nil
}

// DescribeRef returns a loggable form of an image reference.
func DescribeRef(ref string) string {
	switch {
	case strings.HasPrefix(ref, "data:"):
		header, payload, _ := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
		return fmt.Sprintf("data:%s,(%d chars)", header, len(payload))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil {
			return "(invalid url)"
		}
		u.User = nil
		u.RawQuery = ""
		u.Fragment = ""
		return u.String()
	default:
		return ref
	}
}

func invalidInput(err error) error {
	return &stylize.Error{Kind: stylize.KindValidation, Op: "input", Err: err}
}
