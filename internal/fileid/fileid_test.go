package fileid

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

var hex24 = regexp.MustCompile(`^[0-9a-f]{24}$`)

func TestThesisID(t *testing.T) {
	id := ThesisID("/theses/2021/graph-networks.pdf")
	if !hex24.MatchString(id) {
		t.Errorf("id %q should be 24 lowercase hex characters", id)
	}
	if ThesisID("/theses/2021/graph-networks.pdf") != id {
		t.Error("same path should give same id")
	}
	if ThesisID("/theses/2021/other.pdf") == id {
		t.Error("different paths should give different ids")
	}
}

func TestThesisID_normalized(t *testing.T) {
	tests := []string{"/a/b/thesis.pdf/", "/a/./b/thesis.pdf", "/a/c/../b/thesis.pdf"}
	want := ThesisID("/a/b/thesis.pdf")
	for _, p := range tests {
		if got := ThesisID(p); got != want {
			t.Errorf("ThesisID(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestThesisID_relativeResolvesAgainstWorkingDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if ThesisID("thesis.pdf") != ThesisID(filepath.Join(wd, "thesis.pdf")) {
		t.Error("relative path should resolve to the same id as its absolute form")
	}
}
