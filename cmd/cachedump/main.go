// Command cachedump fetches and prints the operator-facing dump() text
// format from a running hydradns instance's admin surface.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:8080", "Admin surface HOST:PORT")
		apiKey  = flag.String("api-key", "", "X-API-Key header, if the admin surface requires one")
		timeout = flag.Duration("timeout", 5*time.Second, "Request timeout")
	)
	flag.Parse()

	body, err := fetchDump(*addr, *apiKey, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachedump: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(body)
}

func fetchDump(addr, apiKey string, timeout time.Duration) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/dump", nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin surface returned %s: %s", resp.Status, body)
	}
	return body, nil
}
