// Package ucm implements a thin AXL client for the call manager's SQL
// interface. Requests are hand built SOAP envelopes; the schema version is
// negotiated by probing getCCMVersion across known majors.
package ucm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acme/dialplan-sync/pkg/logger"
)

var schemaMajors = []int{14, 12, 11, 10, 9, 8}

var versionRe = regexp.MustCompile(`<version>(\d+)\.(\d+)\.`)

// Client talks to the AXL service of a single call manager node.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	logger   *logger.Logger

	// negotiated schema version, e.g. "12.5"; empty until Connect
	schema string
}

// Option adjusts client construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURL overrides the AXL endpoint URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// New creates an AXL client for the given host. The default port 8443 is
// appended when host carries no port. Lab systems usually run self signed
// certificates, hence the insecure switch.
func New(host, user, password string, insecure bool, timeout time.Duration, lg *logger.Logger, opts ...Option) *Client {
	if !strings.Contains(host, ":") {
		host += ":8443"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &Client{
		baseURL:  fmt.Sprintf("https://%s/axl/", host),
		user:     user,
		password: password,
		http:     &http.Client{Timeout: timeout, Transport: transport},
		logger:   lg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect negotiates the AXL schema version. The service answers 599 when
// asked for a version it does not speak, so majors are probed newest first.
func (c *Client) Connect(ctx context.Context) error {
	for _, major := range schemaMajors {
		envelope := fmt.Sprintf(
			`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" `+
				`xmlns:ns="http://www.cisco.com/AXL/API/%d.0"><soapenv:Header/>`+
				`<soapenv:Body><ns:getCCMVersion></ns:getCCMVersion></soapenv:Body></soapenv:Envelope>`,
			major)

		body, status, err := c.post(ctx, envelope, fmt.Sprintf("CUCM:DB ver=%d.0 getCCMVersion", major))
		if err != nil {
			return fmt.Errorf("ucm: version probe: %w", err)
		}
		if status == 599 {
			continue
		}
		if status != http.StatusOK {
			return fmt.Errorf("ucm: version probe: unexpected status %d", status)
		}

		m := versionRe.FindStringSubmatch(body)
		if m == nil {
			return fmt.Errorf("ucm: version probe: no version in response")
		}
		c.schema = m[1] + "." + m[2]
		c.logger.Debug("ucm: negotiated schema version", zap.String("version", c.schema))
		return nil
	}
	return fmt.Errorf("ucm: no supported AXL schema version found")
}

// SQLQuery runs query through executeSQLQuery and returns one map per row,
// keyed by column name.
func (c *Client) SQLQuery(ctx context.Context, query string) ([]map[string]string, error) {
	if c.schema == "" {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(query)); err != nil {
		return nil, fmt.Errorf("ucm: escape query: %w", err)
	}

	envelope := fmt.Sprintf(
		`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" `+
			`xmlns:ns="http://www.cisco.com/AXL/API/%s"><soapenv:Header/>`+
			`<soapenv:Body><ns:executeSQLQuery><sql>%s</sql></ns:executeSQLQuery></soapenv:Body></soapenv:Envelope>`,
		c.schema, escaped.String())

	body, status, err := c.post(ctx, envelope, fmt.Sprintf("CUCM:DB ver=%s executeSQLQuery", c.schema))
	if err != nil {
		return nil, fmt.Errorf("ucm: executeSQLQuery: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("ucm: executeSQLQuery: status %d: %s", status, firstLine(body))
	}

	rows, err := parseRows(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ucm: executeSQLQuery: %w", err)
	}
	return rows, nil
}

func (c *Client) post(ctx context.Context, envelope, soapAction string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(envelope))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	return string(body), resp.StatusCode, nil
}

// parseRows walks the response for <row> elements and flattens each row's
// child elements into a column-to-text map.
func parseRows(r io.Reader) ([]map[string]string, error) {
	dec := xml.NewDecoder(r)
	var rows []map[string]string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "row" {
			continue
		}

		row := make(map[string]string)
		var column string
		var text strings.Builder
	rowLoop:
		for {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				column = t.Name.Local
				text.Reset()
			case xml.CharData:
				if column != "" {
					text.Write(t)
				}
			case xml.EndElement:
				if t.Name.Local == "row" {
					break rowLoop
				}
				if column != "" {
					row[column] = text.String()
					column = ""
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
