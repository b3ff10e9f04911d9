package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"gavel/internal/config"
)

const rosterFixture = `
[[committee]]
code = "JUD"
name = "Judiciary"
chamber = "senate"

  [[committee.member]]
  name = "Dana Whitfield"
  role = "chair"

  [[committee.member]]
  name = "Priya Natarajan"
  role = "ranking"

  [[committee.member]]
  name = "Lee Castillo"
  role = "member"
  seniority_rank = 1

  [[committee.member]]
  name = "Sam Okafor"
  role = "member"
  seniority_rank = 2
`

// WriteRoster places a small committee catalog at cfg.Paths.RosterPath and
// returns the path. Labeling tests rely on the JUD committee it defines.
func WriteRoster(t testing.TB, cfg *config.Config) string {
	t.Helper()

	path := cfg.Paths.RosterPath
	if path == "" {
		path = filepath.Join(t.TempDir(), "roster.toml")
		cfg.Paths.RosterPath = path
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir roster dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(rosterFixture), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}
