package balrog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/version"
)

const (
	// SchemaVersion is the blob schema of system add-on releases.
	SchemaVersion = 5000

	// HashFunction names the hash used for HashValue.
	HashFunction = "sha512"

	// DefaultPlatform is the platform entry every client falls back to.
	DefaultPlatform = "default"

	csrfHeader        = "X-CSRF-Token"
	dataVersionHeader = "X-Data-Version"
	errorBodyLimit    = 1024
)

var (
	errAPIRootRequired     = errors.New("api root must be provided")
	errCredentialsRequired = errors.New("credentials must be provided")
	errNoCSRFToken         = errors.New("update server returned no csrf token")
	errIncompleteRelease   = errors.New("submission is incomplete")
)

// StatusError reports an unexpected HTTP status from the update server.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Submission describes a release to register.
type Submission struct {
	// ReleaseName is the update-server release, e.g. SystemAddons-browser_beta.
	ReleaseName string
	// AddonID identifies the extension.
	AddonID string
	// Version is the released extension version.
	Version string
	// URL is where clients download the archive.
	URL string
	// HashValue is the hex-encoded SHA-512 of the archive.
	HashValue string
	// Size is the archive size in bytes.
	Size int64
}

// validate checks that every field the blob needs is set.
func (s *Submission) validate() error {
	for field, value := range map[string]string{
		"release name": s.ReleaseName,
		"addon id":     s.AddonID,
		"version":      s.Version,
		"url":          s.URL,
	} {
		if value == "" {
			return fmt.Errorf("%s: %w", field, errIncompleteRelease)
		}
	}

	return nil
}

// Blob is the release document stored by the update server.
type Blob struct {
	Name          string           `json:"name"`
	SchemaVersion int              `json:"schema_version"`
	HashFunction  string           `json:"hashFunction"`
	Addons        map[string]Addon `json:"addons"`
}

// Addon is a single add-on entry of a Blob.
type Addon struct {
	Version   string              `json:"version"`
	Platforms map[string]Platform `json:"platforms"`
}

// Platform points a platform at a downloadable archive.
type Platform struct {
	FileURL   string `json:"fileUrl"`
	HashValue string `json:"hashValue,omitempty"`
	Filesize  int64  `json:"filesize,omitempty"`
}

// Blob builds the release document for the submission.
func (s *Submission) Blob() *Blob {
	return &Blob{
		Name:          s.ReleaseName,
		SchemaVersion: SchemaVersion,
		HashFunction:  HashFunction,
		Addons: map[string]Addon{
			s.AddonID: {
				Version: s.Version,
				Platforms: map[string]Platform{
					DefaultPlatform: {
						FileURL:   s.URL,
						HashValue: s.HashValue,
						Filesize:  s.Size,
					},
				},
			},
		},
	}
}

// Client talks to the update-server admin API.
type Client struct {
	apiRoot     *url.URL
	product     string
	credentials config.Credentials
	httpClient  *http.Client

	// callTimeout is the default timeout for individual requests.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for each request.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New creates a client for the admin API rooted at apiRoot.
func New(apiRoot, product string, credentials *config.Credentials, opts ...Option) (*Client, error) {
	if apiRoot == "" {
		return nil, errAPIRootRequired
	}

	if credentials == nil || credentials.Username == "" || credentials.Password == "" {
		return nil, errCredentialsRequired
	}

	root, err := url.Parse(apiRoot)
	if err != nil {
		return nil, fmt.Errorf("parse api root: %w", err)
	}

	client := &Client{
		apiRoot:     root,
		product:     product,
		credentials: *credentials,
		httpClient:  http.DefaultClient,
		callTimeout: config.DefaultUpdateServerTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Submit creates the release, or updates it when it already exists.
func (c *Client) Submit(ctx context.Context, s *Submission) error {
	if err := s.validate(); err != nil {
		return err
	}

	token, err := c.csrfToken(ctx)
	if err != nil {
		return err
	}

	dataVersion, err := c.dataVersion(ctx, s.ReleaseName)
	if err != nil {
		return err
	}

	blob, err := json.Marshal(s.Blob())
	if err != nil {
		return fmt.Errorf("encode blob: %w", err)
	}

	form := url.Values{
		"name":       {s.ReleaseName},
		"product":    {c.product},
		"csrf_token": {token},
		"blob":       {string(blob)},
	}
	if dataVersion != "" {
		form.Set("data_version", dataVersion)
	}

	logger.InfoKV(ctx, "Submitting release",
		"release", s.ReleaseName, "version", s.Version, "url", s.URL, "data_version", dataVersion)

	resp, err := c.do(ctx, http.MethodPut, c.releaseURL(s.ReleaseName), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError(resp)
	}

	return nil
}

// csrfToken fetches the token the API requires on modifying requests.
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodHead, c.endpoint("csrf_token"), nil)
	if err != nil {
		return "", err
	}

	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	token := resp.Header.Get(csrfHeader)
	if token == "" {
		return "", errNoCSRFToken
	}

	return token, nil
}

// dataVersion returns the current data version of an existing release,
// or an empty string when the release does not exist yet.
func (c *Client) dataVersion(ctx context.Context, releaseName string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.releaseURL(releaseName), nil)
	if err != nil {
		return "", err
	}

	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Header.Get(dataVersionHeader), nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", statusError(resp)
	}
}

// do sends an authenticated request bounded by the call timeout. Only the
// first errorBodyLimit bytes of the body are kept, which is all error
// reporting needs; the call context is released before returning.
func (c *Client) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}

	req.SetBasicAuth(c.credentials.Username, c.credentials.Password)
	req.Header.Set("User-Agent", version.UserAgent())

	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	_ = resp.Body.Close()

	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, target, err)
	}

	resp.Body = io.NopCloser(strings.NewReader(string(data)))

	return resp, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Client) endpoint(elems ...string) string {
	u := *c.apiRoot
	u.Path = path.Join(append([]string{u.Path}, elems...)...)

	return u.String()
}

func (c *Client) releaseURL(releaseName string) string {
	return c.endpoint("releases", releaseName)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.String(),
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func closeBody(resp *http.Response) {
	_ = resp.Body.Close()
}
