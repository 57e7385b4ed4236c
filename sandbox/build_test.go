//go:build linux

package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)

	err := os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}

	return path
}

// ============================================================================
// Build tests - filesystem rule resolution
// ============================================================================

func Test_Build_Resolves_Directory_Declaration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	caps := CapabilitiesForABI(HighestKnownABI)

	ruleset, err := Build(&Config{Paths: []PathDecl{{Path: dir, Level: ReadOnly}}}, caps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	rules := ruleset.PathRules()
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}

	rule := rules[0]
	if !rule.IsDir {
		t.Errorf("rule for %s not detected as directory", dir)
	}

	if want := AccessFSReadFile | AccessFSReadDir; rule.Access != want {
		t.Errorf("rule access = %s, want %s", rule.Access, want)
	}

	if !ruleset.ConfinesFilesystem() {
		t.Error("ruleset must confine the filesystem category")
	}
}

func Test_Build_Resolves_File_Declaration(t *testing.T) {
	t.Parallel()

	file := writeTestFile(t, t.TempDir(), "data.txt", "x")
	caps := CapabilitiesForABI(HighestKnownABI)

	ruleset, err := Build(&Config{Paths: []PathDecl{{Path: file, Level: ReadWrite}}}, caps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	rules := ruleset.PathRules()
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}

	if rules[0].IsDir {
		t.Errorf("rule for %s wrongly detected as directory", file)
	}

	if want := AccessFSReadFile | AccessFSWriteFile | AccessFSTruncate; rules[0].Access != want {
		t.Errorf("rule access = %s, want %s", rules[0].Access, want)
	}
}

func Test_Build_Handles_Every_Supported_Right(t *testing.T) {
	t.Parallel()

	caps := CapabilitiesForABI(3)

	ruleset, err := Build(&Config{Paths: []PathDecl{{Path: t.TempDir(), Level: ReadOnly}}}, caps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	if ruleset.handledFS != caps.SupportedFS {
		t.Errorf("handled filesystem rights = %s, want %s", ruleset.handledFS, caps.SupportedFS)
	}
}

func Test_Build_Keeps_Overlapping_Declarations_Separate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")

	err := os.Mkdir(nested, 0o755)
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cfg := &Config{Paths: []PathDecl{
		{Path: dir, Level: ReadOnly},
		{Path: nested, Level: ReadWrite},
	}}

	ruleset, err := Build(cfg, CapabilitiesForABI(HighestKnownABI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	if got := len(ruleset.PathRules()); got != 2 {
		t.Errorf("got %d rules, want 2 (nested declarations are not merged)", got)
	}
}

func Test_Build_Fails_On_Missing_Path(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := Build(&Config{Paths: []PathDecl{{Path: missing, Level: ReadOnly}}}, CapabilitiesForABI(HighestKnownABI))

	if !errors.Is(err, ErrPathUnresolvable) {
		t.Errorf("got %v, want ErrPathUnresolvable", err)
	}
}

func Test_Build_Fails_On_Relative_Path(t *testing.T) {
	t.Parallel()

	_, err := Build(&Config{Paths: []PathDecl{{Path: "relative/path", Level: ReadOnly}}}, CapabilitiesForABI(HighestKnownABI))

	if err == nil || !strings.Contains(err.Error(), "not absolute") {
		t.Errorf("got %v, want validation error about absolute paths", err)
	}
}

func Test_Build_Skips_Declaration_Degraded_To_Nothing(t *testing.T) {
	t.Parallel()

	file := writeTestFile(t, t.TempDir(), "data.txt", "x")

	// Synthetic capability set that supports only directory listing: a
	// read-only file grant degrades to the empty set.
	caps := CapabilitySet{ABI: 1, SupportedFS: AccessFSReadDir}

	ruleset, err := Build(&Config{Paths: []PathDecl{{Path: file, Level: ReadOnly}}}, caps)
	if err != nil {
		t.Fatalf("degraded declaration must not be an error, got: %v", err)
	}
	defer ruleset.Close()

	if got := len(ruleset.PathRules()); got != 0 {
		t.Errorf("got %d rules, want 0", got)
	}

	if len(ruleset.Diagnostics()) == 0 {
		t.Error("expected a diagnostic for the skipped declaration")
	}
}

func Test_Build_Records_Degraded_Rights_As_Diagnostic(t *testing.T) {
	t.Parallel()

	// v1 cannot enforce truncate or refer; a rw grant still succeeds but the
	// narrowing is reported.
	ruleset, err := Build(&Config{Paths: []PathDecl{{Path: t.TempDir(), Level: ReadWrite}}}, CapabilitiesForABI(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	found := false

	for _, diag := range ruleset.Diagnostics() {
		if strings.Contains(diag, "truncate") && strings.Contains(diag, "refer") {
			found = true
		}
	}

	if !found {
		t.Errorf("diagnostics %v should name the narrowed rights", ruleset.Diagnostics())
	}
}

// ============================================================================
// Build tests - absent subsystem
// ============================================================================

func Test_Build_Fails_Closed_When_Landlock_Absent(t *testing.T) {
	t.Parallel()

	_, err := Build(&Config{Paths: []PathDecl{{Path: t.TempDir(), Level: ReadOnly}}}, CapabilitiesForABI(0))

	if !errors.Is(err, ErrCapabilityAbsent) {
		t.Errorf("got %v, want ErrCapabilityAbsent", err)
	}
}

func Test_Build_Fails_Closed_When_Landlock_Absent_Even_Without_Declarations(t *testing.T) {
	t.Parallel()

	// Zero declarations still means "confine everything, allow nothing";
	// that cannot be honored without the subsystem.
	_, err := Build(&Config{}, CapabilitiesForABI(0))

	if !errors.Is(err, ErrCapabilityAbsent) {
		t.Errorf("got %v, want ErrCapabilityAbsent", err)
	}
}

func Test_Build_Allows_Absent_Landlock_When_Fully_Unrestricted(t *testing.T) {
	t.Parallel()

	ruleset, err := Build(&Config{
		UnrestrictedFilesystem: true,
		UnrestrictedNetwork:    true,
	}, CapabilitiesForABI(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ruleset.ConfinesFilesystem() || ruleset.ConfinesNetwork() {
		t.Error("fully unrestricted ruleset must not confine any category")
	}
}

// ============================================================================
// Build tests - network rules
// ============================================================================

func Test_Build_Resolves_Network_Declarations(t *testing.T) {
	t.Parallel()

	cfg := &Config{Networks: []NetworkDecl{
		{Port: 443, Direction: ConnectTCP},
		{Port: 8080, Direction: BindTCP},
	}}

	ruleset, err := Build(cfg, CapabilitiesForABI(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	if !ruleset.ConfinesNetwork() {
		t.Fatal("ruleset must confine the network category")
	}

	rules := ruleset.NetworkRules()
	if len(rules) != 2 {
		t.Fatalf("got %d network rules, want 2", len(rules))
	}

	if rules[0].Port != 443 || rules[0].Direction != ConnectTCP {
		t.Errorf("rule 0 = %+v, want connect-tcp 443", rules[0])
	}
}

func Test_Build_Fails_On_Network_Rules_Below_V4(t *testing.T) {
	t.Parallel()

	cfg := &Config{Networks: []NetworkDecl{{Port: 443, Direction: ConnectTCP}}}

	_, err := Build(cfg, CapabilitiesForABI(3))

	if !errors.Is(err, ErrNetworkUnsupported) {
		t.Errorf("got %v, want ErrNetworkUnsupported", err)
	}
}

func Test_Build_Drops_Network_Rules_When_Unrestricted_Network_Set(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Networks:            []NetworkDecl{{Port: 443, Direction: ConnectTCP}},
		UnrestrictedNetwork: true,
	}

	ruleset, err := Build(cfg, CapabilitiesForABI(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	if ruleset.ConfinesNetwork() {
		t.Error("unrestricted network must not be confined")
	}

	if len(ruleset.Diagnostics()) == 0 {
		t.Error("expected a diagnostic for the dropped declarations")
	}
}

func Test_Build_Leaves_Network_Unconfined_Below_V4_Without_Declarations(t *testing.T) {
	t.Parallel()

	ruleset, err := Build(&Config{Paths: []PathDecl{{Path: t.TempDir(), Level: ReadOnly}}}, CapabilitiesForABI(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	if ruleset.ConfinesNetwork() {
		t.Error("network category must stay undeclared on a v3 kernel")
	}
}

func Test_Build_Confines_Network_By_Default_At_V4(t *testing.T) {
	t.Parallel()

	// Zero port declarations with network support: the category is handled
	// with an empty allow-list, denying all TCP binds and connects.
	ruleset, err := Build(&Config{Paths: []PathDecl{{Path: t.TempDir(), Level: ReadOnly}}}, CapabilitiesForABI(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	if !ruleset.ConfinesNetwork() {
		t.Error("network category must be confined by default on a v4 kernel")
	}

	if got := len(ruleset.NetworkRules()); got != 0 {
		t.Errorf("got %d network rules, want 0", got)
	}
}

func Test_Build_Rejects_Port_Zero(t *testing.T) {
	t.Parallel()

	_, err := Build(&Config{Networks: []NetworkDecl{{Port: 0, Direction: BindTCP}}}, CapabilitiesForABI(4))

	if err == nil || !strings.Contains(err.Error(), "port") {
		t.Errorf("got %v, want validation error about ports", err)
	}
}

// ============================================================================
// Build tests - unrestricted filesystem
// ============================================================================

func Test_Build_Drops_Path_Rules_When_Unrestricted_Filesystem_Set(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Paths:                  []PathDecl{{Path: t.TempDir(), Level: ReadWrite}},
		UnrestrictedFilesystem: true,
	}

	ruleset, err := Build(cfg, CapabilitiesForABI(HighestKnownABI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ruleset.Close()

	if ruleset.ConfinesFilesystem() {
		t.Error("unrestricted filesystem must not be confined")
	}

	if got := len(ruleset.PathRules()); got != 0 {
		t.Errorf("got %d rules, want 0", got)
	}

	if len(ruleset.Diagnostics()) == 0 {
		t.Error("expected a diagnostic for the dropped declarations")
	}
}

// ============================================================================
// Build tests - environment directive validation
// ============================================================================

func Test_Build_Rejects_Env_Directive_Name_Containing_Equals(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Env:                    []EnvDirective{{Name: "FOO=bar", Value: "x"}},
		UnrestrictedFilesystem: true,
		UnrestrictedNetwork:    true,
	}

	_, err := Build(cfg, CapabilitiesForABI(HighestKnownABI))

	if err == nil || !strings.Contains(err.Error(), "'='") {
		t.Errorf("got %v, want validation error about '=' in name", err)
	}
}

func Test_Build_Rejects_Empty_Env_Directive_Name(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Env:                    []EnvDirective{{Name: "", Value: "x"}},
		UnrestrictedFilesystem: true,
		UnrestrictedNetwork:    true,
	}

	_, err := Build(cfg, CapabilitiesForABI(HighestKnownABI))

	if err == nil || !strings.Contains(err.Error(), "empty name") {
		t.Errorf("got %v, want validation error about empty name", err)
	}
}

// ============================================================================
// Build tests - monotonicity
// ============================================================================

func Test_Build_Adding_Declarations_Only_Enlarges_The_Ruleset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := writeTestFile(t, dir, "data.txt", "x")
	caps := CapabilitiesForABI(HighestKnownABI)

	smaller := &Config{Paths: []PathDecl{{Path: dir, Level: ReadOnly}}}
	larger := &Config{
		Paths:    []PathDecl{{Path: dir, Level: ReadOnly}, {Path: file, Level: ReadWrite}},
		Networks: []NetworkDecl{{Port: 443, Direction: ConnectTCP}},
	}

	smallRS, err := Build(smaller, caps)
	if err != nil {
		t.Fatalf("building smaller config: %v", err)
	}
	defer smallRS.Close()

	largeRS, err := Build(larger, caps)
	if err != nil {
		t.Fatalf("building larger config: %v", err)
	}
	defer largeRS.Close()

	// Every rule of the smaller ruleset must appear, with at least the same
	// rights, in the larger one.
	for _, small := range smallRS.PathRules() {
		found := false

		for _, large := range largeRS.PathRules() {
			if large.Path == small.Path && large.Access&small.Access == small.Access {
				found = true

				break
			}
		}

		if !found {
			t.Errorf("rule for %s (%s) lost or narrowed in the larger ruleset", small.Path, small.Access)
		}
	}
}
