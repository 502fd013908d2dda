// Command healthcheck probes a local credrelay service and exits non-zero when
// it is not healthy. Both the issuer and the verifier images use it as their
// container HEALTHCHECK; CREDRELAY_HEALTH_SERVICE pins which one must answer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	defaultAddr  = "127.0.0.1:3001"
	probeTimeout = 2 * time.Second
)

var errUnhealthy = errors.New("service unhealthy")

type healthBody struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func main() {
	url := fmt.Sprintf("http://%s/health", normalizeAddr(os.Getenv("CREDRELAY_LISTEN_ADDR")))

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	if err := probe(ctx, &http.Client{Timeout: probeTimeout}, url, os.Getenv("CREDRELAY_HEALTH_SERVICE")); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		os.Exit(1)
	}
}

// probe fetches url and requires a 200 with status "healthy". When service is
// set the body must also name that service, so a verifier answering on the
// issuer's port fails the check.
func probe(ctx context.Context, client *http.Client, url, service string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", errUnhealthy, resp.StatusCode)
	}

	var body healthBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode health body: %w", err)
	}
	if body.Status != "healthy" {
		return fmt.Errorf("%w: reported %q", errUnhealthy, body.Status)
	}
	if service != "" && body.Service != service {
		return fmt.Errorf("%w: expected %s, got %q", errUnhealthy, service, body.Service)
	}
	return nil
}

// normalizeAddr points the probe at loopback when the service binds every
// interface; the probe runs inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
