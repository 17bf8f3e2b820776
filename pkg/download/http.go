package download

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/serverkit/pkg/config"
	"github.com/cuemby/serverkit/pkg/log"
	"github.com/cuemby/serverkit/pkg/metrics"
	"github.com/cuemby/serverkit/pkg/platform"
)

// HTTPStatusError reports a non-200, non-403 response from the mirror.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("download: unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// NotAvailableError reports an HTTP 403, which the mirror uses to mean
// "no artifact for this version/platform combination".
type NotAvailableError struct {
	URL string
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("download: %s is not available for this platform/version", e.URL)
}

// proxyEnvVars are checked in order; the first non-empty wins. The
// ordering mirrors the precedence a package-manager-spawned install
// script would use, where the manager's own proxy settings outrank the
// ambient shell environment.
var proxyEnvVars = []string{
	"yarn_https-proxy", "yarn_proxy",
	"npm_config_https-proxy", "npm_config_proxy",
	"https_proxy", "http_proxy",
	"HTTPS_PROXY", "HTTP_PROXY",
}

func resolveProxy() string {
	for _, v := range proxyEnvVars {
		if p := strings.TrimSpace(os.Getenv(v)); p != "" {
			return p
		}
	}
	return ""
}

// strictSSL mirrors npm's npm_config_strict_ssl toggle: certificate
// verification is enforced unless that variable is explicitly set to
// a falsy value. Unset or unparseable means strict (the safe default).
func strictSSL() bool {
	v := strings.TrimSpace(os.Getenv("npm_config_strict_ssl"))
	if v == "" {
		return true
	}
	return config.ParseBool(v)
}

func httpClient(maxRedirects int) (*http.Client, error) {
	transport := &http.Transport{}

	if !strictSSL() {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		log.WithComponent("download").Warn().Msg("npm_config_strict_ssl is false, skipping TLS certificate verification")
	}

	if proxy := resolveProxy(); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("download: invalid proxy URL %q: %w", proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{Transport: transport}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("download: stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return client, nil
}

func forceScheme(rawURL string, useHTTP bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("download: invalid URL %q: %w", rawURL, err)
	}
	if useHTTP {
		u.Scheme = "http"
	} else if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String(), nil
}

// fetchToFile downloads rawURL to destPath, requiring a Content-Length
// header and rejecting short reads unless allowShortRead is set (used
// for the small, unsized .md5 sidecar files). Progress is logged at
// most once every two seconds.
func fetchToFile(ctx context.Context, rawURL, destPath string, opts Options, allowShortRead bool) error {
	finalURL, err := forceScheme(rawURL, opts.UseHTTP)
	if err != nil {
		return err
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 2
	}
	client, err := httpClient(maxRedirects)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return fmt.Errorf("download: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download: fetch %s: %w", finalURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return &NotAvailableError{URL: finalURL}
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{URL: finalURL, StatusCode: resp.StatusCode}
	}

	declared := int64(-1)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			declared = n
		}
	}
	if declared < 0 && !allowShortRead {
		return fmt.Errorf("download: %s did not return a Content-Length header", finalURL)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("download: create %s: %w", destPath, err)
	}
	defer out.Close()

	counter := &progressCounter{total: declared, lastLog: time.Now()}
	written, err := io.Copy(out, io.TeeReader(resp.Body, counter))
	if err != nil {
		return fmt.Errorf("download: write %s: %w", destPath, err)
	}
	metrics.DownloadBytesTotal.Add(float64(written))

	if declared >= 0 && written < declared && !allowShortRead {
		return fmt.Errorf("download: short read from %s: got %d of %d bytes", finalURL, written, declared)
	}
	return nil
}

// progressCounter logs download progress at most once every two
// seconds, avoiding a log line per chunk on a fast connection.
type progressCounter struct {
	total   int64
	written int64
	lastLog time.Time
}

func (c *progressCounter) Write(p []byte) (int, error) {
	c.written += int64(len(p))
	if time.Since(c.lastLog) >= 2*time.Second {
		c.lastLog = time.Now()
		log.Logger.Info().Int64("bytes", c.written).Int64("total", c.total).Msg("downloading")
	}
	return len(p), nil
}

func archiveURLFor(req platform.BinaryRequest, opts Options) (string, error) {
	return platform.ArchiveURL(req, opts.Mirror, opts.DownloadURL)
}
