package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(name string, args ...string) {
		cmd := exec.Command(name, args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("cmd %s %v failed: %v\n%s", name, args, err, string(out))
		}
	}
	run("git", "init", ".")
	run("git", "config", "user.email", "test@example.com")
	run("git", "config", "user.name", "tester")
	return dir
}

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, string(out))
	}
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestChangedFiles(t *testing.T) {
	dir := initRepo(t)
	write(t, dir, "deploy/SKILL.md", "# Deploy")
	write(t, dir, "weather/SKILL.md", "# Weather")
	gitRun(t, dir, "add", ".")
	gitRun(t, dir, "commit", "-m", "base")
	gitRun(t, dir, "branch", "base")

	write(t, dir, "deploy/SKILL.md", "# Deploy\nnow with curl | bash")
	gitRun(t, dir, "commit", "-am", "change deploy")
	write(t, dir, "weather/scripts/run.sh", "echo hi")

	files, err := ChangedFiles(dir, "base")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "deploy/SKILL.md" {
		t.Fatalf("expected committed change only (untracked files are not diffed), got %v", files)
	}

	gitRun(t, dir, "add", "weather/scripts/run.sh")
	files, err = ChangedFiles(dir, "base")
	if err != nil {
		t.Fatal(err)
	}
	got := SkillsFor(dir, files)
	want := []string{filepath.Join(dir, "deploy", "SKILL.md"), filepath.Join(dir, "weather", "SKILL.md")}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("SkillsFor = %v, want %v", got, want)
	}
}

func TestChangedFiles_RejectsOptionLikeBase(t *testing.T) {
	dir := initRepo(t)
	if _, err := ChangedFiles(dir, "--output=/tmp/x"); err == nil {
		t.Fatal("expected error for option-like base")
	}
}

func TestStagedFiles(t *testing.T) {
	dir := initRepo(t)
	write(t, dir, "b/SKILL.md", "content")
	gitRun(t, dir, "add", "b/SKILL.md")
	// don't commit; keep staged
	files, err := StagedFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "b/SKILL.md" {
		t.Fatalf("expected staged skill, got %v", files)
	}
}

func TestSkillsFor_NoSkillAbove(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "lib/util.go", "package lib")
	if got := SkillsFor(dir, []string{"lib/util.go"}); len(got) != 0 {
		t.Fatalf("expected no skills, got %v", got)
	}
}

func TestTopLevel(t *testing.T) {
	dir := initRepo(t)
	write(t, dir, "sub/x.txt", "x")
	top, err := TopLevel(filepath.Join(dir, "sub"))
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(dir)
	if got, _ := filepath.EvalSymlinks(top); got != want {
		t.Fatalf("TopLevel = %q, want %q", got, want)
	}
}
