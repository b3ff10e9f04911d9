// Package notifications pushes pipeline milestones to operators via ntfy.
//
// The default implementation posts to the topic configured in config.toml
// and degrades to a no-op when no topic is set. Per-event toggles and a
// dedup window keep repeated stall and error reports from flooding the
// topic. Workflow code depends only on the Service interface.
package notifications
