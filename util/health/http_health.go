package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpCheckTimeout = 2 * time.Second

var httpCheckClient = &http.Client{Timeout: httpCheckTimeout}

// CheckHTTPServer returns a check that GETs address+healthPath and reports 200
// for any 2xx answer. address is a base URL such as http://localhost:8095.
func CheckHTTPServer(address string, healthPath string) func(context.Context, bool) (int, string, error) {
	url := strings.TrimSuffix(address, "/") + "/" + strings.TrimPrefix(healthPath, "/")

	return func(ctx context.Context, _ bool) (int, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return http.StatusServiceUnavailable, fmt.Sprintf("HTTP server at %s failed to create request", address), err
		}

		resp, err := httpCheckClient.Do(req)
		if err != nil {
			return http.StatusServiceUnavailable, fmt.Sprintf("HTTP server at %s not accepting connections", address), err
		}

		defer resp.Body.Close()

		// drain so the connection can be reused by the next check
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return http.StatusOK, fmt.Sprintf("HTTP server at %s is listening and accepting requests", address), nil
		}

		return http.StatusServiceUnavailable, fmt.Sprintf("HTTP server at %s returned status %d", address, resp.StatusCode), nil
	}
}
