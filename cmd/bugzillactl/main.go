// Package main provides the bugzillactl binary for managing the mirror
// server. It is a management-plane tool speaking to the server HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	serverURL    string
	outputFlag   string
	globalClient *mirrorClient
)

// mirrorClient wraps an HTTP client and the server base URL.
type mirrorClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newMirrorClient(baseURL string) *mirrorClient {
	return &mirrorClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
}

// doRequest performs an HTTP request and returns the response body bytes.
// It returns an error if the status code indicates a failure.
func (c *mirrorClient) doRequest(method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("sending request", "method", method, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to mirror server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, errBody.Error)
		}
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}

	return data, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "bugzillactl",
		Short:   "Manage the Bugzilla mirror server",
		Long:    "bugzillactl is a CLI for inspecting mirrored bugs and managing sync runs on a running mirror server.",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			globalClient = newMirrorClient(serverURL)
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Mirror server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format (table or json)")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newBugsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
