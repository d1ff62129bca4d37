package ogc

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxBody caps the size of a capabilities or schema document.
const maxBody = 32 << 20

// ErrInvalidDocument is returned when a response cannot be decoded.
var ErrInvalidDocument = errors.New("invalid OGC document")

// HTTPError is a response with a non-2xx status. Errors that are not an
// HTTPError never reached the server (offline, DNS, CORS at a proxy).
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s", e.StatusCode, e.Status)
}

// ServiceException is an OGC exception report returned with a 200 status.
type ServiceException struct {
	Code    string
	Message string
}

func (e *ServiceException) Error() string {
	if e.Code == "" {
		return "service exception: " + e.Message
	}
	return fmt.Sprintf("service exception %s: %s", e.Code, e.Message)
}

// Client performs OGC requests.
type Client struct {
	HTTP      *http.Client
	UserAgent string
}

// NewClient creates a client with a request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: "plat-geo-ogc/0.1",
	}
}

func (c *Client) httpClient() *http.Client {
	if c == nil || c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

// get issues a GET with params merged over the query already in rawURL.
func (c *Client) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k := range params {
		// OGC parameter names are case-insensitive; drop any existing spelling.
		for existing := range q {
			if strings.EqualFold(existing, k) {
				q.Del(existing)
			}
		}
		q[k] = params[k]
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c != nil && c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: statusText(resp)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	return body, nil
}

// statusText returns the reason phrase, falling back to the standard text.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

type exceptionReport struct {
	XMLName    xml.Name
	Exceptions []struct {
		Code    string `xml:"code,attr"`
		OWSCode string `xml:"exceptionCode,attr"`
		Text    string `xml:",chardata"`
		Message string `xml:"ExceptionText"`
	} `xml:",any"`
}

// checkException turns an OGC exception report into an error.
func checkException(body []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "ServiceExceptionReport", "ExceptionReport":
		default:
			return nil
		}
		var report exceptionReport
		if err := dec.DecodeElement(&report, &start); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		exc := &ServiceException{}
		if len(report.Exceptions) > 0 {
			e := report.Exceptions[0]
			exc.Code = e.Code
			if exc.Code == "" {
				exc.Code = e.OWSCode
			}
			exc.Message = strings.TrimSpace(e.Message)
			if exc.Message == "" {
				exc.Message = strings.TrimSpace(e.Text)
			}
		}
		return exc
	}
}

// toWFS derives the WFS endpoint from a WMS endpoint by replacing the first
// "wms" in the URL.
func toWFS(rawURL string) string {
	return strings.Replace(rawURL, "wms", "wfs", 1)
}
