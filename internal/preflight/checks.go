package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"gavel/internal/config"
	"gavel/internal/deps"
	"gavel/internal/roster"
)

const serviceCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the path exists, is a directory, and is
// readable, writable, and traversable by the current process.
func CheckDirectoryAccess(name, path string) Result {
	result := Result{Name: name}
	if strings.TrimSpace(path) == "" {
		result.Detail = "path not configured"
		return result
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Detail = fmt.Sprintf("%s (error: does not exist)", path)
		} else {
			result.Detail = fmt.Sprintf("%s (error: %v)", path, err)
		}
		return result
	}
	if !info.IsDir() {
		result.Detail = fmt.Sprintf("%s (error: not a directory)", path)
		return result
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		result.Detail = fmt.Sprintf("%s (error: insufficient permissions)", path)
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%s (read/write ok)", path)
	return result
}

// CheckRoster verifies the speaker roster catalog exists and parses. A
// catalog with zero committees fails because labeling cannot resolve any
// speaker against it.
func CheckRoster(name, path string) Result {
	result := Result{Name: name}
	if strings.TrimSpace(path) == "" {
		result.Detail = "roster path not configured"
		return result
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			result.Detail = fmt.Sprintf("%s (error: does not exist)", path)
		} else {
			result.Detail = fmt.Sprintf("%s (error: %v)", path, err)
		}
		return result
	}

	catalog, err := roster.Load(path)
	if err != nil {
		result.Detail = fmt.Sprintf("%s (error: %v)", path, err)
		return result
	}
	if catalog.Len() == 0 {
		result.Detail = fmt.Sprintf("%s (error: no committees defined)", path)
		return result
	}

	members := 0
	for _, committee := range catalog.Committees() {
		members += len(committee.Members)
	}
	result.Passed = true
	result.Detail = fmt.Sprintf("%s (%d committees, %d members)", path, catalog.Len(), members)
	return result
}

// CheckTranscription verifies the transcription service answers HTTP requests
// at the configured base URL. Any response other than an authentication
// rejection counts as reachable since the service only exposes POST
// endpoints.
func CheckTranscription(ctx context.Context, baseURL, apiToken string) Result {
	result := Result{Name: "Transcription service"}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		result.Detail = "base URL not configured"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		result.Detail = fmt.Sprintf("invalid URL: %v", err)
		return result
	}
	if token := strings.TrimSpace(apiToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: serviceCheckTimeout}
	resp, err := client.Do(req)
	if err != nil {
		result.Detail = fmt.Sprintf("unreachable: %v", err)
		return result
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		result.Detail = "authentication failed"
	default:
		result.Passed = true
		result.Detail = "reachable"
	}
	return result
}

// CheckSystemDeps reports availability of the external binaries the pipeline
// shells out to.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Required(cfg))
}
