package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

var (
	opfsxBin string
	projRoot string
)

func TestMain(m *testing.M) {
	// Build the CLI once for all tests
	tmpBinDir, err := os.MkdirTemp("", "opfsx-bin")
	if err != nil {
		panic(err)
	}

	opfsxBin = filepath.Join(tmpBinDir, "opfsx")

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot determine current file path")
	}
	projRoot = filepath.Join(filepath.Dir(thisFile), "..", "..")

	cmd := exec.Command("go", "build", "-o", opfsxBin, "-gcflags=all=-N -l", "./cmd/opfsx")
	cmd.Dir = projRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic(string(out))
	}

	code := m.Run()
	if err := os.RemoveAll(tmpBinDir); err != nil {
		panic(err)
	}
	os.Exit(code)
}

// CLIEnvironment runs opfsx against a private data directory
type CLIEnvironment struct {
	DataDir string
}

func NewCLIEnvironment(t *testing.T) *CLIEnvironment {
	t.Helper()
	return &CLIEnvironment{DataDir: t.TempDir()}
}

// Run executes opfsx with the given arguments and stdin
func (env *CLIEnvironment) Run(stdin string, args ...string) (stdout, stderr string, err error) {
	full := append([]string{"--backend", "os", "--data-dir", env.DataDir, "-v", "1"}, args...)
	cmd := exec.Command(opfsxBin, full...)
	cmd.Stdin = strings.NewReader(stdin)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err = cmd.Run()
	return out.String(), errOut.String(), err
}

// MustRun fails the test when opfsx exits non-zero
func (env *CLIEnvironment) MustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := env.Run("", args...)
	if err != nil {
		t.Fatalf("opfsx %s failed: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return stdout
}

// MustFail fails the test when opfsx exits zero and returns stderr
func (env *CLIEnvironment) MustFail(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := env.Run("", args...)
	if err == nil {
		t.Fatalf("opfsx %s succeeded unexpectedly:\n%s", strings.Join(args, " "), stdout)
	}
	return stderr
}

type treeNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Kind     string     `json:"kind"`
	Root     string     `json:"root"`
	Size     int64      `json:"size"`
	Children []treeNode `json:"children"`
}

func (env *CLIEnvironment) Trees(t *testing.T, args ...string) []treeNode {
	t.Helper()
	out := env.MustRun(t, append([]string{"--json", "tree"}, args...)...)
	var nodes []treeNode
	if err := json.Unmarshal([]byte(out), &nodes); err != nil {
		t.Fatalf("decode tree output: %v\n%s", err, out)
	}
	return nodes
}

func childNames(n treeNode) []string {
	names := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		names = append(names, c.Name)
	}
	return names
}

func TestE2EDefaultRootWriteAndRead(t *testing.T) {
	env := NewCLIEnvironment(t)

	env.MustRun(t, "write", "root", "notes/todo.txt", "buy milk")
	got := env.MustRun(t, "cat", "root", "notes/todo.txt")
	if got != "buy milk" {
		t.Fatalf("content mismatch:\nexpected: %q\ngot:      %q", "buy milk", got)
	}

	// Content from stdin replaces the whole file
	if _, stderr, err := env.Run("second version", "write", "root", "notes/todo.txt"); err != nil {
		t.Fatalf("write from stdin failed: %v\n%s", err, stderr)
	}
	if got := env.MustRun(t, "cat", "root", "notes/todo.txt"); got != "second version" {
		t.Fatalf("content after overwrite: %q", got)
	}

	nodes := env.Trees(t, "root")
	if len(nodes) != 1 || nodes[0].Kind != "bucket" {
		t.Fatalf("unexpected tree: %+v", nodes)
	}
	notes := nodes[0].Children
	if len(notes) != 1 || notes[0].Name != "notes" || notes[0].Kind != "directory" {
		t.Fatalf("unexpected root children: %+v", notes)
	}
	if len(notes[0].Children) != 1 || notes[0].Children[0].Path != "notes/todo.txt" {
		t.Fatalf("unexpected notes children: %+v", notes[0].Children)
	}
	if size := notes[0].Children[0].Size; size != int64(len("second version")) {
		t.Fatalf("size mismatch: %d", size)
	}
}

func TestE2EBucketLifecycle(t *testing.T) {
	env := NewCLIEnvironment(t)

	env.MustRun(t, "bucket", "create", "cache1", "--quota", "1024", "--expires-in", "60s")
	stderr := env.MustFail(t, "bucket", "create", "cache1")
	if !strings.Contains(stderr, "already") {
		t.Fatalf("expected an already-exists error, got: %s", stderr)
	}

	out := env.MustRun(t, "--json", "roots")
	var roots []struct {
		Name    string    `json:"name"`
		Default bool      `json:"default"`
		Quota   int64     `json:"quota"`
		Expires time.Time `json:"expires"`
	}
	if err := json.Unmarshal([]byte(out), &roots); err != nil {
		t.Fatalf("decode roots: %v\n%s", err, out)
	}
	if len(roots) != 2 || roots[0].Name != "root" || !roots[0].Default {
		t.Fatalf("unexpected roots: %+v", roots)
	}
	if roots[1].Name != "cache1" || roots[1].Quota != 1024 || roots[1].Expires.IsZero() {
		t.Fatalf("unexpected bucket: %+v", roots[1])
	}

	env.MustRun(t, "write", "cache1", "small.txt", "fits")
	stderr = env.MustFail(t, "write", "cache1", "big.bin", strings.Repeat("x", 2048))
	if !strings.Contains(stderr, "quota") {
		t.Fatalf("expected a quota error, got: %s", stderr)
	}
	env.MustFail(t, "cat", "cache1", "big.bin")

	env.MustRun(t, "bucket", "delete", "cache1")
	stderr = env.MustFail(t, "cat", "cache1", "small.txt")
	if !strings.Contains(stderr, "does not exist") {
		t.Fatalf("expected a not-found error, got: %s", stderr)
	}
	env.MustFail(t, "bucket", "delete", "root")
}

func TestE2EDeleteEntries(t *testing.T) {
	env := NewCLIEnvironment(t)

	env.MustRun(t, "mkdir", "root", "a/b")
	env.MustRun(t, "touch", "root", "a/b/c.txt")
	env.MustRun(t, "touch", "root", "keep.txt")

	// Deleting a directory as a file is a type mismatch
	env.MustFail(t, "rm", "root", "a")
	env.MustRun(t, "rm", "-r", "root", "a")

	nodes := env.Trees(t, "root")
	if names := childNames(nodes[0]); len(names) != 1 || names[0] != "keep.txt" {
		t.Fatalf("unexpected children after delete: %v", names)
	}
	env.MustFail(t, "rm", "root", "a/b/c.txt")
}

func TestE2EBucketApply(t *testing.T) {
	env := NewCLIEnvironment(t)

	def := filepath.Join(t.TempDir(), "buckets.yaml")
	content := `
- name: seeded
  quota: 4096
  nodes:
    - path: docs
      type: dir
    - path: docs/readme.md
      content: hello
- name: root
  nodes:
    - path: welcome.txt
      content: hi
`
	if err := os.WriteFile(def, []byte(content), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}

	out := env.MustRun(t, "bucket", "apply", def)
	for _, want := range []string{"seeded: created, 2 entries", "root: exists, 1 entries"} {
		if !strings.Contains(out, want) {
			t.Fatalf("apply output missing %q:\n%s", want, out)
		}
	}
	if got := env.MustRun(t, "cat", "seeded", "docs/readme.md"); got != "hello" {
		t.Fatalf("seeded content mismatch: %q", got)
	}

	// Applying again keeps the existing bucket
	out = env.MustRun(t, "bucket", "apply", def)
	if !strings.Contains(out, "seeded: exists") {
		t.Fatalf("reapply output: %s", out)
	}

	nodes := env.Trees(t)
	var names []string
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	if fmt.Sprint(names) != "[root seeded]" {
		t.Fatalf("unexpected root order: %v", names)
	}
}

func TestE2ELocalDirectory(t *testing.T) {
	env := NewCLIEnvironment(t)
	local := t.TempDir()
	if err := os.WriteFile(filepath.Join(local, "existing.txt"), []byte("on disk"), 0o644); err != nil {
		t.Fatalf("seed local dir: %v", err)
	}

	// Without a grant the local root does not exist
	env.MustFail(t, "cat", "local", "existing.txt")

	// Declining the prompt grants nothing
	if _, _, err := env.Run("\n", "local", "grant"); err == nil {
		t.Fatalf("declined grant succeeded")
	}

	env.MustRun(t, "local", "grant", local)
	if got := env.MustRun(t, "cat", "local", "existing.txt"); got != "on disk" {
		t.Fatalf("local content mismatch: %q", got)
	}

	env.MustRun(t, "write", "local", "sub/new.txt", "from opfsx")
	data, err := os.ReadFile(filepath.Join(local, "sub", "new.txt"))
	if err != nil {
		t.Fatalf("file not written to disk: %v", err)
	}
	if string(data) != "from opfsx" {
		t.Fatalf("disk content mismatch: %q", data)
	}

	nodes := env.Trees(t, "--local")
	if last := nodes[len(nodes)-1]; last.Name != "local" {
		t.Fatalf("local root should be listed last: %+v", nodes)
	}

	// Removing the directory revokes access but keeps the grant
	if err := os.RemoveAll(local); err != nil {
		t.Fatalf("remove local dir: %v", err)
	}
	stderr := env.MustFail(t, "cat", "local", "existing.txt")
	if !strings.Contains(stderr, "grant it again") {
		t.Fatalf("expected a permission error, got: %s", stderr)
	}

	env.MustRun(t, "local", "forget")
	env.MustFail(t, "cat", "local", "existing.txt")
}

func TestE2EShell(t *testing.T) {
	env := NewCLIEnvironment(t)

	script := strings.Join([]string{
		"touch root notes.txt",
		"open root notes.txt",
		`edit hello\nworld`,
		"save",
		"open root missing.txt",
		"quit",
	}, "\n")
	stdout, stderr, err := env.Run(script, "shell")
	if err != nil {
		t.Fatalf("shell failed: %v\n%s", err, stderr)
	}
	for _, want := range []string{"Saved root:notes.txt", "Cannot read root:missing.txt"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("shell output missing %q:\n%s", want, stdout)
		}
	}
	if got := env.MustRun(t, "cat", "root", "notes.txt"); got != "hello\nworld" {
		t.Fatalf("saved content mismatch: %q", got)
	}
}

func TestE2EMount(t *testing.T) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("FUSE is not available")
	}
	if _, err := exec.LookPath("fusermount"); err != nil {
		t.Skip("fusermount is not installed")
	}

	env := NewCLIEnvironment(t)
	env.MustRun(t, "write", "root", "docs/readme.md", "mounted content")

	mountDir := t.TempDir()
	cmd := exec.Command(opfsxBin, "--backend", "os", "--data-dir", env.DataDir, "mount", "root", mountDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start mount: %v", err)
	}
	defer stopMount(cmd)

	if err := waitForMount(mountDir, 15*time.Second); err != nil {
		t.Fatalf("mount failed: %v\nstderr: %s", err, stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(mountDir, "docs", "readme.md"))
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "mounted content" {
		t.Fatalf("content mismatch: %q", data)
	}

	if err := os.WriteFile(filepath.Join(mountDir, "new.txt"), []byte("via fuse"), 0o644); err != nil {
		t.Fatalf("failed to write through mount: %v", err)
	}
	stopMount(cmd)

	if got := env.MustRun(t, "cat", "root", "new.txt"); got != "via fuse" {
		t.Fatalf("content written through mount: %q", got)
	}
}

// stopMount interrupts the mount process and waits for it to exit
func stopMount(cmd *exec.Cmd) {
	if cmd.Process == nil || cmd.ProcessState != nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt) // Process may have already exited

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill() // Process may have already exited
		<-done
	}
}

// waitForMount waits until the mounted tree shows entries
func waitForMount(dir string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if files, err := os.ReadDir(dir); err == nil && len(files) > 0 {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for mount to be ready")
}
