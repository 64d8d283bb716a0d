package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"droplet/crypto"
)

type cliHarness struct {
	t      *testing.T
	config string
}

func newCLIHarness(t *testing.T, extra string) *cliHarness {
	t.Helper()
	return newCLIHarnessIn(t, t.TempDir(), "droplet.prom", extra)
}

// newCLIHarnessIn writes a config rooted at dir; metrics is resolved
// relative to dir.
func newCLIHarnessIn(t *testing.T, dir, metrics, extra string) *cliHarness {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	contents := fmt.Sprintf(`DataDir = %q
NetworkName = "droplet-test"
Environment = "test"
KeystorePath = %q
MinTTL = 16
MaxTTL = 1000
MetricsFile = %q
%s
`, filepath.Join(dir, "data"), filepath.Join(dir, "owner.keystore"), filepath.Join(dir, metrics), extra)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DROPLET_KEYSTORE_PASS", "correct horse battery staple")
	return &cliHarness{t: t, config: path}
}

func (h *cliHarness) run(args ...string) (string, string, int) {
	h.t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	full := append([]string{args[0], "--config", h.config}, args[1:]...)
	code := run(full, stdout, stderr)
	return stdout.String(), stderr.String(), code
}

func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	stdout, stderr, code := h.run(args...)
	if code != 0 {
		h.t.Fatalf("%s exited %d: %s", args[0], code, stderr)
	}
	return stdout
}

func randomIdentity(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return crypto.FormatIdentity(key.Identity())
}

func TestCLIWalletLifecycle(t *testing.T) {
	h := newCLIHarness(t, "")

	out := h.mustRun("generate-key", "--light")
	idx := strings.Index(out, "Identity: ")
	if idx < 0 {
		t.Fatalf("identity missing from %q", out)
	}
	owner := strings.TrimSpace(out[idx+len("Identity: "):])

	wallet := strings.TrimSpace(h.mustRun("deploy"))
	token := strings.TrimSpace(h.mustRun("register-token"))
	if !strings.HasPrefix(wallet, "dropc1") || !strings.HasPrefix(token, "dropc1") || wallet == token {
		t.Fatalf("unexpected contract addresses %q, %q", wallet, token)
	}

	bob := randomIdentity(t)
	charity := randomIdentity(t)

	h.mustRun("init", "--wallet", wallet)
	h.mustRun("mint", "--token", token, "--to", owner, "--amount", "1000")
	h.mustRun("fund", "--wallet", wallet, "--token", token, "--amount", "1000")
	h.mustRun("setup-charity", "--wallet", wallet, "--charity", charity, "--fee-bps", "100")
	receipt := h.mustRun("transfer", "--wallet", wallet, "--token", token, "--to", bob, "--amount", "800")
	if !strings.Contains(receipt, `"status": "committed"`) || !strings.Contains(receipt, "wallet.donated") {
		t.Fatalf("unexpected receipt %s", receipt)
	}

	for holder, want := range map[string]string{bob: "792", charity: "8", wallet: "200", owner: "0"} {
		if got := strings.TrimSpace(h.mustRun("balance", "--token", token, "--holder", holder)); got != want {
			t.Fatalf("balance of %s = %s, want %s", holder, got, want)
		}
	}

	info := h.mustRun("info", "--wallet", wallet)
	if !strings.Contains(info, owner) || !strings.Contains(info, "Fee (bps):  100") {
		t.Fatalf("unexpected info %q", info)
	}

	stdout, stderr, code := h.run("setup-charity", "--wallet", wallet, "--charity", charity, "--fee-bps", "10050")
	if code != 1 || !strings.Contains(stderr, "fee") || !strings.Contains(stdout, `"status": "failed"`) {
		t.Fatalf("expected failed fee update, got code %d stdout %q stderr %q", code, stdout, stderr)
	}

	stdout, stderr, code = h.run("init", "--wallet", wallet, "--owner", bob)
	if code != 1 || !strings.Contains(stderr, "already initialized") {
		t.Fatalf("expected init rejection, got code %d stdout %q stderr %q", code, stdout, stderr)
	}

	metrics, err := os.ReadFile(filepath.Join(filepath.Dir(h.config), "droplet.prom"))
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(metrics), "droplet_host_invocations_total") {
		t.Fatalf("metrics file missing invocation counter:\n%s", metrics)
	}
}

func TestCLIArgumentErrors(t *testing.T) {
	h := newCLIHarness(t, "")
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing wallet", []string{"init"}, "--wallet is required"},
		{"bad amount", []string{"fund", "--wallet", crypto.FormatContract([20]byte{1}), "--token", crypto.FormatContract([20]byte{2}), "--amount", "ten"}, "--amount must be a base-10 integer"},
		{"bad address", []string{"balance", "--token", "nope", "--holder", randomIdentity(t)}, "--token"},
		{"positional", []string{"info", "--wallet", crypto.FormatContract([20]byte{1}), "extra"}, "unexpected positional arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, code := h.run(tc.args...)
			if code != 1 {
				t.Fatalf("exit code = %d", code)
			}
			if !strings.Contains(stderr, tc.want) {
				t.Fatalf("stderr %q does not mention %q", stderr, tc.want)
			}
		})
	}
}

func TestRunUsage(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	if code := run(nil, stdout, stderr); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "setup-charity") {
		t.Fatalf("usage missing commands: %q", stderr.String())
	}
	stderr.Reset()
	if code := run([]string{"explode"}, stdout, stderr); code != 1 || !strings.HasPrefix(stderr.String(), "Unknown command: explode") {
		t.Fatalf("unexpected unknown-command output %q", stderr.String())
	}
}

func TestCLIBoltBackend(t *testing.T) {
	h := newCLIHarness(t, `Backend = "bolt"`)
	out := h.mustRun("generate-key", "--light")
	owner := strings.TrimSpace(out[strings.Index(out, "Identity: ")+len("Identity: "):])
	token := strings.TrimSpace(h.mustRun("register-token", "--salt", "bolt"))
	h.mustRun("mint", "--token", token, "--to", owner, "--amount", "1000")

	if got := strings.TrimSpace(h.mustRun("balance", "--token", token, "--holder", owner)); got != "1000" {
		t.Fatalf("balance = %s, want 1000", got)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(h.config), "data", "droplet.db")); err != nil {
		t.Fatalf("bolt file missing: %v", err)
	}
	if _, stderr, code := h.run("register-token", "--salt", "bolt"); code != 1 || !strings.Contains(stderr, "already registered") {
		t.Fatalf("expected duplicate registration failure, got %d %q", code, stderr)
	}
}

func TestCLIReportsMetricsFileFailure(t *testing.T) {
	h := newCLIHarnessIn(t, t.TempDir(), filepath.Join("missing", "droplet.prom"), "")
	h.mustRun("generate-key", "--light")

	stdout, stderr, code := h.run("register-token")
	if code != 1 || !strings.Contains(stderr, "write metrics file") {
		t.Fatalf("expected metrics write failure, got code %d stdout %q stderr %q", code, stdout, stderr)
	}
}
