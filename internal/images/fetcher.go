package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"syscall"
	"time"

	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

const (
	// DefaultMaxBytes caps a single download, matching the upload limit.
	DefaultMaxBytes = 10 * 1024 * 1024

	defaultTimeout = 30 * time.Second
	dialTimeout    = 10 * time.Second
	maxRedirects   = 3
)

// ErrPrivateAddress is returned when a URL resolves to a loopback,
// private or link-local address and private hosts are not allowed.
var ErrPrivateAddress = errors.New("address is not publicly routable")

// Fetcher retrieves remote images over HTTP
type Fetcher struct {
	HTTPClient *http.Client
	MaxBytes   int64
	UserAgent  string
}

// NewFetcher creates a new image fetcher. Unless allowPrivate is set,
// connections to non-public addresses are refused at dial time, which also
// covers redirects and DNS names pointing inward.
func NewFetcher(timeout time.Duration, maxBytes int64, allowPrivate bool) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !allowPrivate {
		dialer.Control = rejectPrivateAddress
		// a proxy would dial the target on our behalf
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		MaxBytes:  maxBytes,
		UserAgent: "imagepicker/1.0",
	}
}

// Fetch downloads imageURL into a blob. The blob's content type comes from
// the response header, or is sniffed from the body when the header is
// missing or generic.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) (*source.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("image too large (max %d bytes)", f.MaxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body")
	}

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err != nil || mt == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	slog.Debug("Fetched image", "url", imageURL, "bytes", len(data), "content_type", contentType)

	return &source.Blob{
		Name:        filenameFromURL(imageURL),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func rejectPrivateAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	ip = ip.Unmap()
	if !ip.IsGlobalUnicast() || ip.IsPrivate() {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
	}
	return nil
}

func filenameFromURL(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil || u.Opaque != "" {
		return "image"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	return name
}
