package roster_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gavel/internal/roster"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

const sampleCatalog = `
[[committee]]
code = "jud"
name = "Judiciary"
chamber = "Senate"

  [[committee.member]]
  name = "Dana Whitfield"
  role = "chair"

  [[committee.member]]
  name = "Priya Natarajan"
  role = "ranking"

  [[committee.member]]
  name = "Sam Okafor"
  seniority_rank = 2

  [[committee.member]]
  name = "Lee Castillo"
  role = "member"
  seniority_rank = 1

[[committee]]
code = "FIN"
name = "Finance"
chamber = "senate"

  [[committee.member]]
  name = "Morgan Hale"
  role = "chair"
`

func TestLoadParsesCatalog(t *testing.T) {
	r, err := roster.Load(writeRoster(t, sampleCatalog))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 committees, got %d", r.Len())
	}

	jud, ok := r.Committee("JUD")
	if !ok {
		t.Fatal("expected JUD lookup to succeed")
	}
	if jud.Code != "JUD" {
		t.Fatalf("expected normalized code, got %q", jud.Code)
	}
	if jud.Chamber != "senate" {
		t.Fatalf("expected normalized chamber, got %q", jud.Chamber)
	}
	if len(jud.Members) != 4 {
		t.Fatalf("expected 4 members, got %d", len(jud.Members))
	}
	if jud.Members[2].Role != roster.RoleMember {
		t.Fatalf("expected blank role to default to member, got %q", jud.Members[2].Role)
	}

	if _, ok := r.Committee("  fin "); !ok {
		t.Fatal("expected case-insensitive lookup to succeed")
	}
	if _, ok := r.Committee("AGR"); ok {
		t.Fatal("expected unknown code lookup to fail")
	}
}

func TestSpeakingOrderPrecedence(t *testing.T) {
	r, err := roster.Load(writeRoster(t, sampleCatalog))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	jud, _ := r.Committee("JUD")

	order := jud.SpeakingOrder()
	want := []string{"Dana Whitfield", "Priya Natarajan", "Lee Castillo", "Sam Okafor"}
	for i, name := range want {
		if order[i].Name != name {
			t.Fatalf("position %d = %q, want %q", i, order[i].Name, name)
		}
	}

	chair, ok := jud.FindByRole(roster.RoleChair)
	if !ok || chair.Name != "Dana Whitfield" {
		t.Fatalf("unexpected chair lookup: %v %v", chair, ok)
	}
}

func TestLoadRejectsDuplicateCodes(t *testing.T) {
	_, err := roster.Load(writeRoster(t, `
[[committee]]
code = "jud"
[[committee]]
code = "JUD"
`))
	if err == nil || !strings.Contains(err.Error(), "duplicate committee code") {
		t.Fatalf("expected duplicate code error, got %v", err)
	}
}

func TestLoadRejectsUnknownRole(t *testing.T) {
	_, err := roster.Load(writeRoster(t, `
[[committee]]
code = "JUD"
  [[committee.member]]
  name = "Dana Whitfield"
  role = "vice-chair"
`))
	if err == nil || !strings.Contains(err.Error(), "unknown role") {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestLoadRejectsSecondChair(t *testing.T) {
	_, err := roster.Load(writeRoster(t, `
[[committee]]
code = "JUD"
  [[committee.member]]
  name = "A"
  role = "chair"
  [[committee.member]]
  name = "B"
  role = "chair"
`))
	if err == nil || !strings.Contains(err.Error(), "multiple chairs") {
		t.Fatalf("expected multiple chairs error, got %v", err)
	}
}

func TestLoadRequiresMemberNames(t *testing.T) {
	_, err := roster.Load(writeRoster(t, `
[[committee]]
code = "JUD"
  [[committee.member]]
  role = "member"
`))
	if err == nil || !strings.Contains(err.Error(), "missing name") {
		t.Fatalf("expected missing name error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := roster.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing roster file")
	}
}
