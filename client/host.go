package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// deviceConfig is the part of the controller's config.json used here
type deviceConfig struct {
	MDNSHostname string `json:"mdns_hostname"`
}

// FetchMDNSHostname reads the mDNS hostname the controller advertises in
// http://<host>/config.json
func FetchMDNSHostname(ctx context.Context, httpClient *http.Client, host string) (string, error) {
	u := (&url.URL{Scheme: "http", Host: host, Path: "/config.json"}).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status fetching %s: %s", u, resp.Status)
	}
	var cfg deviceConfig
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&cfg); err != nil {
		return "", fmt.Errorf("error decoding %s: %w", u, err)
	}
	return strings.TrimSpace(cfg.MDNSHostname), nil
}

// ResolveHost returns the controller's advertised mDNS hostname, or host
// itself when the lookup fails or advertises nothing
func ResolveHost(ctx context.Context, httpClient *http.Client, host string) string {
	name, err := FetchMDNSHostname(ctx, httpClient, host)
	if err != nil {
		slog.Warn("Could not resolve controller hostname, using configured host", "host", host, "err", err)
		return host
	}
	if name == "" {
		return host
	}
	slog.Info("Resolved controller hostname", "host", host, "mdns_hostname", name)
	return name
}
