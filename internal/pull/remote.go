package pull

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/mricon/grokmirror-go/internal/errkind"
	"github.com/mricon/grokmirror-go/internal/manifest"
)

// fetchRemoteManifest performs the HEAD-check/download step of spec.md
// §4.6 steps 1-2: an If-Modified-Since GET, treating 304 as "nothing
// changed" rather than an error.
func fetchRemoteManifest(ctx context.Context, client *http.Client, url string, ifModifiedSince time.Time) (*manifest.Manifest, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building manifest request: %w", errkind.ErrManifestFetchFailed)
	}
	if !ifModifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", ifModifiedSince.UTC().Format(http.TimeFormat))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetching manifest from %s: %w", url, errkind.ErrManifestFetchFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("manifest fetch from %s returned %s: %w", url, resp.Status, errkind.ErrManifestFetchFailed)
	}

	m, err := manifest.Decode(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return m, false, nil
}

// fetchRemoteManifestViaCommand runs cmdline (split on whitespace, no
// shell) instead of an HTTP GET, for replicas that reach the origin only
// over ssh. Exit code 127 means the remote side determined nothing
// changed; 1 is fatal; any other non-zero exit is a non-fatal skip for
// this pass, mirroring the original's manifest_command contract.
func fetchRemoteManifestViaCommand(ctx context.Context, cmdline string, force bool) (*manifest.Manifest, bool, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, false, fmt.Errorf("manifest_command is empty: %w", errkind.ErrConfigInvalid)
	}
	if force {
		fields = append(fields, "--force")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, false, fmt.Errorf("running manifest_command %q: %w", cmdline, err)
	}

	switch exitCode {
	case 0:
		m, decErr := manifest.Decode(&stdout)
		if decErr != nil {
			return nil, false, decErr
		}
		return m, false, nil
	case 127:
		return nil, true, nil
	case 1:
		return nil, false, fmt.Errorf("manifest_command %q failed: %s: %w", cmdline, strings.TrimSpace(stderr.String()), errkind.ErrManifestFetchFailed)
	default:
		return nil, true, nil
	}
}
