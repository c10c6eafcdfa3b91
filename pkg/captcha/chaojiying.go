package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultChaojiyingURL is the Chaojiying recognition endpoint.
	DefaultChaojiyingURL = "http://upload.chaojiying.net/Upload/Processing.php"

	// DefaultCodeType asks for a 4 to 6 character alphanumeric reading.
	DefaultCodeType = "1902"

	defaultMinLength   = "4"
	defaultHTTPTimeout = 60 * time.Second
	userAgent          = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.8; rv:24.0) Gecko/20100101 Firefox/24.0"
)

// ChaojiyingClient recognizes captchas with the Chaojiying OCR service.
type ChaojiyingClient struct {
	httpClient *http.Client
	endpoint   string
	user       string
	pass2      string
	softID     string
	codeType   string
}

// ChaojiyingOption configures a ChaojiyingClient.
type ChaojiyingOption func(*ChaojiyingClient)

// WithEndpoint overrides the recognition URL.
func WithEndpoint(endpoint string) ChaojiyingOption {
	return func(c *ChaojiyingClient) {
		c.endpoint = endpoint
	}
}

// WithCodeType overrides the captcha type sent to the service.
func WithCodeType(codeType string) ChaojiyingOption {
	return func(c *ChaojiyingClient) {
		c.codeType = codeType
	}
}

// WithHTTPClient replaces the HTTP client. Its Timeout bounds a whole
// recognition.
func WithHTTPClient(hc *http.Client) ChaojiyingOption {
	return func(c *ChaojiyingClient) {
		c.httpClient = hc
	}
}

// NewChaojiyingClient creates a client for the given account. pass2 is the
// account password as the service expects it in the pass2 field.
func NewChaojiyingClient(user, pass2, softID string, opts ...ChaojiyingOption) (*ChaojiyingClient, error) {
	if user == "" || pass2 == "" {
		return nil, fmt.Errorf("chaojiying user and password are required")
	}
	if softID == "" {
		return nil, fmt.Errorf("chaojiying softid is required")
	}

	c := &ChaojiyingClient{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		endpoint:   DefaultChaojiyingURL,
		user:       user,
		pass2:      pass2,
		softID:     softID,
		codeType:   DefaultCodeType,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type chaojiyingReply struct {
	ErrNo  int    `json:"err_no"`
	ErrStr string `json:"err_str"`
	PicID  string `json:"pic_id"`
	PicStr string `json:"pic_str"`
	MD5    string `json:"md5"`
}

// Recognize uploads image and returns the service's reading.
func (c *ChaojiyingClient) Recognize(ctx context.Context, image []byte) (Recognition, error) {
	form := url.Values{}
	form.Set("user", c.user)
	form.Set("pass2", c.pass2)
	form.Set("softid", c.softID)
	form.Set("codetype", c.codeType)
	form.Set("len_min", defaultMinLength)
	form.Set("file_base64", base64.StdEncoding.EncodeToString(image))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Recognition{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Recognition{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Recognition{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Recognition{}, &ServiceError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var reply chaojiyingReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return Recognition{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if reply.ErrNo != 0 {
		return Recognition{}, &ServiceError{Code: reply.ErrNo, Message: reply.ErrStr}
	}

	return Recognition{Text: reply.PicStr, ID: reply.PicID}, nil
}

// String identifies the client in logs without its password.
func (c *ChaojiyingClient) String() string {
	return fmt.Sprintf("chaojiying(user=%s codetype=%s)", c.user, c.codeType)
}
