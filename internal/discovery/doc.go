// Package discovery locates stream manifests for recorded hearings.
//
// The locator fetches a hearing page with the configured user agent, scans
// both the raw HTML and inline JSON blobs for manifest URLs, and optionally
// follows player embeds one hop deep. Candidates are deduplicated by
// normalized URL, classified live or archive by URL shape, and ordered
// archive-first so replays win over in-progress streams.
//
// The stage handler records the winning candidate on the hearing. A page
// with no manifests fails the stage with services.ErrDiscovery so the
// scheduler retries it later.
package discovery
