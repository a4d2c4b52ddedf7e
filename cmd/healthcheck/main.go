// Command healthcheck probes the status server's /healthz and exits non-zero unless the
// chat session is alive. It is meant for container HEALTHCHECK lines where no shell or
// curl is available.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/healthz"

func main() {
	url := os.Getenv("HEALTHCHECK_URL")
	if url == "" {
		url = defaultURL
	}
	os.Exit(probe(context.Background(), &http.Client{Timeout: 3 * time.Second}, url))
}

func probe(ctx context.Context, client *http.Client, url string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("build request: %v", err)
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("probe %s: %v", url, err)
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		log.Printf("probe %s: status %d", url, resp.StatusCode)
		return 1
	}
	return 0
}
