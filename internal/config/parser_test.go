package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interface != "tap0" {
		t.Errorf("Interface = %q, want tap0", cfg.Interface)
	}
	if cfg.Polling.Active != time.Second || cfg.Polling.Idle != 2500*time.Millisecond {
		t.Errorf("Polling = %+v", cfg.Polling)
	}
	if cfg.Shell.Mode != ShellModeExec || !reflect.DeepEqual(cfg.Shell.Command, []string{"su"}) {
		t.Errorf("Shell = %+v", cfg.Shell)
	}
	if err := ValidateConfig(&cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}

	// The default command must not alias the package variable.
	cfg.Shell.Command[0] = "changed"
	if DefaultShellCommand[0] != "su" {
		t.Error("DefaultConfig() shares the DefaultShellCommand slice")
	}
}

func TestLegacyParser(t *testing.T) {
	content := `# tapwatch settings
interface br-lan
poll_active 0.5
poll_idle 3s
shell_command sudo -n sh
command_timeout 2
log_level debug
listen 127.0.0.1:9100
unknown_directive whatever
`
	cfg, err := NewLegacyParser().Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Interface != "br-lan" {
		t.Errorf("Interface = %q", cfg.Interface)
	}
	if cfg.Polling.Active != 500*time.Millisecond || cfg.Polling.Idle != 3*time.Second {
		t.Errorf("Polling = %+v", cfg.Polling)
	}
	if !reflect.DeepEqual(cfg.Shell.Command, []string{"sudo", "-n", "sh"}) {
		t.Errorf("Shell.Command = %v", cfg.Shell.Command)
	}
	if cfg.Shell.CommandTimeout != 2*time.Second {
		t.Errorf("CommandTimeout = %v", cfg.Shell.CommandTimeout)
	}
	if cfg.Log.Level != "debug" || cfg.Server.Listen != "127.0.0.1:9100" {
		t.Errorf("Log/Server = %+v / %+v", cfg.Log, cfg.Server)
	}
}

func TestLegacyParserBareFlag(t *testing.T) {
	cfg, err := NewLegacyParser().Parse([]byte("ssh_agent\nssh_insecure no\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Shell.SSH.UseAgent || cfg.Shell.SSH.InsecureIgnoreHostKey {
		t.Errorf("SSH = %+v", cfg.Shell.SSH)
	}
}

func TestLegacyParserErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad duration", "interface tap0\npoll_active soon\n", "line 2"},
		{"bad mode", "shell_mode sudo\n", "unknown shell mode"},
		{"bad port", "ssh_port twenty-two\n", "invalid ssh_port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLegacyParser().Parse([]byte(tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLuaParser(t *testing.T) {
	content := `
local name = "tap" .. tostring(1)
tapwatch.config = {
    interface = name,
    poll_active = 0.25,
    poll_idle = 5,
    shell_mode = "ssh",
    shell_command = { "sudo", "-n", "sh -l" },
    ssh_host = "router.lan",
    ssh_port = 2222,
    ssh_agent = true,
}
`
	p, err := NewLuaConfigParser()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	cfg, err := p.Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Interface != "tap1" {
		t.Errorf("Interface = %q, want tap1", cfg.Interface)
	}
	if cfg.Polling.Active != 250*time.Millisecond || cfg.Polling.Idle != 5*time.Second {
		t.Errorf("Polling = %+v", cfg.Polling)
	}
	if cfg.Shell.Mode != ShellModeSSH || cfg.Shell.SSH.Host != "router.lan" || cfg.Shell.SSH.Port != 2222 || !cfg.Shell.SSH.UseAgent {
		t.Errorf("Shell = %+v", cfg.Shell)
	}
	if !reflect.DeepEqual(cfg.Shell.Command, []string{"sudo", "-n", "sh -l"}) {
		t.Errorf("Shell.Command = %q", cfg.Shell.Command)
	}
}

func TestLuaParserIsolatesRuns(t *testing.T) {
	p, err := NewLuaConfigParser()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err := p.Parse([]byte(`tapwatch.config = { interface = "eth9" }`)); err != nil {
		t.Fatal(err)
	}
	cfg, err := p.Parse([]byte(`local x = 1`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interface != DefaultInterface {
		t.Errorf("Interface = %q, want the default", cfg.Interface)
	}
}

func TestLuaParserConcurrentRuntimes(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := NewLuaConfigParser()
			if err != nil {
				errs <- err
				return
			}
			defer p.Close()
			if _, err := p.Parse([]byte(`tapwatch.config = { interface = "tap3" }`)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestLuaParserErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `tapwatch.config = {`},
		{"runtime", `error("boom")`},
		{"not a table", `tapwatch.config = 5`},
		{"bad value", `tapwatch.config = { interface = { "a" } }`},
		{"runaway", `while true do end`},
	}
	p, err := NewLuaConfigParser()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Parse([]byte(tt.content)); err == nil {
				t.Error("Parse() succeeded, want error")
			}
		})
	}
}

func TestYAMLParser(t *testing.T) {
	content := `
interface: wg0
polling:
  active: 500ms
  idle: 4s
shell:
  mode: none
log:
  format: json
  file: /var/log/tapwatch.log
server:
  listen: ":9100"
`
	cfg, err := NewYAMLParser().Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Interface != "wg0" || cfg.Polling.Active != 500*time.Millisecond || cfg.Polling.Idle != 4*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Shell.Mode != ShellModeNone {
		t.Errorf("Shell.Mode = %q", cfg.Shell.Mode)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != DefaultLogLevel || cfg.Log.File != "/var/log/tapwatch.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Server.MetricsPath != DefaultMetricsPath {
		t.Errorf("MetricsPath = %q, want default kept", cfg.Server.MetricsPath)
	}
}

func TestYAMLParserRejectsUnknownFields(t *testing.T) {
	if _, err := NewYAMLParser().Parse([]byte("interfaces: tap0\n")); err == nil {
		t.Error("Parse() accepted an unknown field")
	}
	if _, err := NewYAMLParser().Parse([]byte("shell:\n  mode: sudo\n")); err == nil {
		t.Error("Parse() accepted an unknown shell mode")
	}
	if cfg, err := NewYAMLParser().Parse(nil); err != nil || cfg.Interface != DefaultInterface {
		t.Errorf("empty YAML = %+v, %v", cfg, err)
	}
}

func TestEncodeYAMLRoundTripMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interface = "tap7"
	cfg.Shell.SSH.Password = "hunter2"

	out, err := EncodeYAML(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "hunter2") {
		t.Error("password leaked into YAML output")
	}
	back, err := NewYAMLParser().Parse(out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if back.Interface != "tap7" || back.Polling != cfg.Polling {
		t.Errorf("round trip = %+v", back)
	}
	if cfg.Shell.SSH.Password != "hunter2" {
		t.Error("EncodeYAML() modified its argument")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    Format
	}{
		{"lua extension", "x.lua", "", FormatLua},
		{"yaml extension", "x.yml", "interface tap0", FormatYAML},
		{"lua content", "tapwatch.conf", "-- cfg\ntapwatch.config = {}", FormatLua},
		{"lua mention in comment", "", "# tapwatch.config = {}\ninterface tap0", FormatLegacy},
		{"yaml content", "", "interface: tap0\n", FormatYAML},
		{"legacy content", "", "interface tap0\npoll_active 1\n", FormatLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.path, []byte(tt.content)); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParserParseFileAndFS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tapwatch.yaml")
	if err := os.WriteFile(path, []byte("interface: tap3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := NewParser()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	cfg, err := p.ParseFile(path)
	if err != nil || cfg.Interface != "tap3" {
		t.Errorf("ParseFile() = %+v, %v", cfg, err)
	}
	if _, err := p.ParseFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("ParseFile() of missing file succeeded")
	}

	fsys := fstest.MapFS{"etc/tapwatch.lua": {Data: []byte(`tapwatch.config = { interface = "tap4" }`)}}
	cfg, err = p.ParseFromFS(fsys, "etc/tapwatch.lua")
	if err != nil || cfg.Interface != "tap4" {
		t.Errorf("ParseFromFS() = %+v, %v", cfg, err)
	}

	cfg, err = p.ParseReader(strings.NewReader("interface tap5"), FormatLegacy)
	if err != nil || cfg.Interface != "tap5" {
		t.Errorf("ParseReader() = %+v, %v", cfg, err)
	}
	if _, err := p.ParseReader(strings.NewReader(""), "toml"); err == nil {
		t.Error("ParseReader() accepted an unknown format")
	}
}

func TestKeysSorted(t *testing.T) {
	keys := Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("Keys() not sorted at %d: %v", i, keys)
		}
	}
}
