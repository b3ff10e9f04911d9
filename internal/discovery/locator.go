package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearings"
)

// maxPageBytes caps how much of a fetched page is scanned for manifests.
const maxPageBytes = 4 << 20

// maxPlayerFollows bounds how many player embeds are fetched per page.
const maxPlayerFollows = 3

const defaultPageTimeout = 30 * time.Second

// Candidate is a stream manifest located on a hearing page.
type Candidate struct {
	URL        string
	Kind       string
	Confidence float64
	// PlayerURL is set when the manifest was found on a followed player
	// page rather than the hearing page itself.
	PlayerURL string
}

// Locator scans hearing pages for stream manifest URLs.
type Locator struct {
	cfg    config.Discovery
	client *http.Client
}

// NewLocator builds a Locator from repository configuration.
func NewLocator(cfg *config.Config) *Locator {
	timeout := defaultPageTimeout
	if cfg.Discovery.PageTimeout > 0 {
		timeout = time.Duration(cfg.Discovery.PageTimeout) * time.Second
	}
	return &Locator{
		cfg:    cfg.Discovery,
		client: &http.Client{Timeout: timeout},
	}
}

// manifestRef is a raw scan hit before dedupe and classification.
type manifestRef struct {
	url       string
	playerURL string
}

// Locate fetches the hearing page and returns manifest candidates ordered
// archive-first, then by descending confidence. An empty result is not an
// error; the stage handler decides how to treat it.
func (l *Locator) Locate(ctx context.Context, pageURL string) ([]Candidate, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, fmt.Errorf("locate streams: page URL is empty")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("locate streams: parse page URL: %w", err)
	}

	body, err := l.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var refs []manifestRef
	for _, found := range scanManifestURLs(body) {
		refs = append(refs, manifestRef{url: found})
	}

	if l.cfg.FollowPlayerLinks {
		for _, playerURL := range playerReferences(body, base, maxPlayerFollows) {
			embedded, err := l.fetch(ctx, playerURL)
			if err != nil {
				// Player fetch failures are non-fatal; the page scan stands.
				continue
			}
			for _, found := range scanManifestURLs(embedded) {
				refs = append(refs, manifestRef{url: found, playerURL: playerURL})
			}
		}
	}

	candidates := classifyAll(dedupe(refs))
	orderCandidates(candidates)
	if max := l.cfg.MaxCandidates; max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates, nil
}

func (l *Locator) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("locate streams: build request for %s: %w", target, err)
	}
	if ua := strings.TrimSpace(l.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("locate streams: fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("locate streams: fetch %s: unexpected status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("locate streams: read %s: %w", target, err)
	}
	return string(body), nil
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+`)

// unescapeEmbeddedJSON reverses the escaping used when manifest URLs are
// buried in inline JSON blobs.
func unescapeEmbeddedJSON(body string) string {
	replacer := strings.NewReplacer(`\/`, "/", `\u0026`, "&", `\u003d`, "=")
	return replacer.Replace(body)
}

// scanManifestURLs collects manifest-shaped URLs from the raw body and from
// a copy with common JSON escapes undone.
func scanManifestURLs(body string) []string {
	var found []string
	for _, source := range []string{body, unescapeEmbeddedJSON(body)} {
		for _, match := range urlPattern.FindAllString(source, -1) {
			cleaned := trimURLArtifacts(match)
			if isManifestURL(cleaned) {
				found = append(found, cleaned)
			}
		}
	}
	return found
}

// trimURLArtifacts strips HTML entities and punctuation that the broad URL
// pattern drags along from surrounding markup.
func trimURLArtifacts(raw string) string {
	for _, stop := range []string{"&quot;", "&#34;", "&amp;quot;", "&#39;"} {
		if idx := strings.Index(raw, stop); idx >= 0 {
			raw = raw[:idx]
		}
	}
	return strings.TrimRight(raw, `),.;'"`)
}

func isManifestURL(raw string) bool {
	lower := strings.ToLower(raw)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	return strings.HasSuffix(lower, ".m3u8") ||
		strings.HasSuffix(lower, ".mpd") ||
		strings.Contains(lower, "/manifest")
}

var iframePattern = regexp.MustCompile(`(?i)<iframe[^>]+src=["']([^"']+)["']`)

// playerReferences extracts embed and player URLs worth following one hop.
func playerReferences(body string, base *url.URL, limit int) []string {
	var refs []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		if len(refs) >= limit {
			return
		}
		resolved := resolveURL(base, raw)
		if resolved == "" || isManifestURL(resolved) {
			return
		}
		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		refs = append(refs, resolved)
	}

	for _, match := range iframePattern.FindAllStringSubmatch(body, -1) {
		add(match[1])
	}
	for _, match := range urlPattern.FindAllString(body, -1) {
		lower := strings.ToLower(match)
		if strings.Contains(lower, "/embed/") || strings.Contains(lower, "/player/") {
			add(trimURLArtifacts(match))
		}
	}
	return refs
}

func resolveURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// dedupe keeps the first reference for each normalized URL so a manifest
// found in both HTML and JSON yields one candidate.
func dedupe(refs []manifestRef) []manifestRef {
	seen := make(map[string]struct{}, len(refs))
	var out []manifestRef
	for _, ref := range refs {
		key := normalizeURL(ref.url)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// normalizeURL lowercases the scheme and host and drops the fragment.
func normalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String()
}

var liveMarkers = []string{"/live/", "livestream", "live-", "-live", "live."}

var archiveMarkers = []string{"/vod/", "archive", "recording", "replay", "ondemand", "on-demand"}

func classifyAll(refs []manifestRef) []Candidate {
	candidates := make([]Candidate, 0, len(refs))
	for _, ref := range refs {
		candidate := classify(ref.url)
		candidate.PlayerURL = ref.playerURL
		candidates = append(candidates, candidate)
	}
	return candidates
}

// classify assigns a manifest kind and confidence from URL shape alone.
// Explicit HLS and DASH extensions score higher than bare /manifest paths,
// and archive markers nudge confidence up. A URL with no live marker is
// treated as archive since hearing pages overwhelmingly post replays.
func classify(raw string) Candidate {
	lower := strings.ToLower(raw)

	confidence := 0.5
	switch {
	case strings.Contains(lower, ".m3u8"), strings.Contains(lower, ".mpd"):
		confidence = 0.9
	case strings.Contains(lower, "/manifest"):
		confidence = 0.7
	}

	kind := hearings.ManifestKindArchive
	if containsAnyMarker(lower, liveMarkers) && !containsAnyMarker(lower, archiveMarkers) {
		kind = hearings.ManifestKindLive
	}
	if kind == hearings.ManifestKindArchive && containsAnyMarker(lower, archiveMarkers) {
		confidence += 0.05
	}
	if confidence > 1 {
		confidence = 1
	}
	return Candidate{URL: raw, Kind: kind, Confidence: confidence}
}

func containsAnyMarker(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// orderCandidates sorts archive manifests ahead of live ones, then by
// confidence, then URL so repeated scans of the same page pick the same
// winner.
func orderCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Kind != candidates[j].Kind {
			return candidates[i].Kind == hearings.ManifestKindArchive
		}
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].URL < candidates[j].URL
	})
}
