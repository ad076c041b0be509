package service

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recorder struct {
	calls   []string
	outputs map[string]string
	fail    map[string]bool
}

func (r *recorder) run(name string, args ...string) ([]byte, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, call)
	var err error
	if r.fail[call] {
		err = errors.New("exit status 1")
	}
	return []byte(r.outputs[call]), err
}

func testUnit(t *testing.T) Unit {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("cannot determine executable: %v", err)
	}
	dir := t.TempDir()
	return Unit{
		Name:       "tutor-ai",
		BinaryPath: exe,
		ConfigPath: "/etc/tutor-ai/config.yaml",
		EnvFile:    "/etc/tutor-ai/env",
		WorkDir:    filepath.Join(dir, "work"),
		User:       "tutor",
		LogDir:     filepath.Join(dir, "logs"),
		HomeDir:    "/home/tutor",
	}
}

func TestRenderSystemd(t *testing.T) {
	u := Unit{
		Name:       "tutor-ai",
		BinaryPath: "/usr/local/bin/tutor",
		ConfigPath: "/etc/tutor-ai/config.yaml",
		EnvFile:    "/etc/tutor-ai/env",
		WorkDir:    "/var/lib/tutor-ai",
		User:       "tutor",
		LogDir:     "/var/log/tutor-ai",
		HomeDir:    "/home/tutor",
	}
	content, err := RenderSystemd(u)
	if err != nil {
		t.Fatalf("RenderSystemd: %v", err)
	}
	for _, want := range []string{
		"ExecStart=/usr/local/bin/tutor serve --config /etc/tutor-ai/config.yaml",
		"EnvironmentFile=-/etc/tutor-ai/env",
		"User=tutor",
		"StandardOutput=append:/var/log/tutor-ai/tutor-ai.log",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("unit missing %q:\n%s", want, content)
		}
	}

	u.EnvFile = ""
	content, _ = RenderSystemd(u)
	if strings.Contains(content, "EnvironmentFile") {
		t.Errorf("EnvironmentFile rendered without an env file:\n%s", content)
	}
}

func TestRenderLaunchd(t *testing.T) {
	content, err := RenderLaunchd(Unit{
		Name:       "tutor-ai",
		BinaryPath: "/usr/local/bin/tutor",
		ConfigPath: "/Users/an/.config/tutor-ai/config.yaml",
		LogDir:     "/Users/an/.local/share/tutor-ai/logs",
		HomeDir:    "/Users/an",
	})
	if err != nil {
		t.Fatalf("RenderLaunchd: %v", err)
	}
	for _, want := range []string{
		"<string>io.tutorai.tutor-ai</string>",
		"<string>serve</string>",
		"/Users/an/.config/tutor-ai/config.yaml",
		"KeepAlive",
		"tutor-ai.log",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("plist missing %q:\n%s", want, content)
		}
	}
}

func TestInstallSystemd(t *testing.T) {
	u := testUnit(t)
	rec := &recorder{}
	m := &Manager{goos: "linux", run: rec.run, root: t.TempDir()}

	if err := m.Install(u); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := os.Stat(m.systemdPath(u)); err != nil {
		t.Errorf("unit file not written: %v", err)
	}
	for _, dir := range []string{u.LogDir, u.WorkDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
	want := []string{"systemctl daemon-reload", "systemctl enable tutor-ai", "systemctl start tutor-ai"}
	if strings.Join(rec.calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestInstallSystemd_CommandFails(t *testing.T) {
	u := testUnit(t)
	rec := &recorder{fail: map[string]bool{"systemctl enable tutor-ai": true}}
	m := &Manager{goos: "linux", run: rec.run, root: t.TempDir()}

	err := m.Install(u)
	if err == nil || !strings.Contains(err.Error(), "systemctl enable") {
		t.Fatalf("expected enable failure, got %v", err)
	}
}

func TestUninstallSystemd(t *testing.T) {
	u := testUnit(t)
	rec := &recorder{fail: map[string]bool{"systemctl stop tutor-ai": true}}
	m := &Manager{goos: "linux", run: rec.run, root: t.TempDir()}
	if err := writeFile(m.systemdPath(u), "x"); err != nil {
		t.Fatal(err)
	}

	if err := m.Uninstall(u); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(m.systemdPath(u)); !os.IsNotExist(err) {
		t.Errorf("unit file still present: %v", err)
	}
	// A second uninstall has nothing to remove.
	if err := m.Uninstall(u); err != nil {
		t.Errorf("second Uninstall: %v", err)
	}
}

func TestStatusSystemd(t *testing.T) {
	u := testUnit(t)
	rec := &recorder{outputs: map[string]string{
		"systemctl is-active tutor-ai":               "active\n",
		"systemctl show --property=MainPID tutor-ai": "MainPID=4242\n",
	}}
	m := &Manager{goos: "linux", run: rec.run}

	st, err := m.Status(u)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Running || st.PID != 4242 {
		t.Errorf("status = %+v", st)
	}

	rec.outputs["systemctl is-active tutor-ai"] = "inactive\n"
	st, _ = m.Status(u)
	if st.Running {
		t.Error("expected not running")
	}
}

func TestInstallLaunchd(t *testing.T) {
	u := testUnit(t)
	rec := &recorder{outputs: map[string]string{}}
	m := &Manager{goos: "darwin", run: rec.run, root: t.TempDir()}

	if err := m.Install(u); err != nil {
		t.Fatalf("Install: %v", err)
	}
	path := m.launchdPath(u)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("plist not written: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "launchctl load "+path {
		t.Errorf("calls = %v", rec.calls)
	}

	rec.outputs["launchctl list io.tutorai.tutor-ai"] = "{\n\t\"PID\" = 77;\n\t\"Label\" = \"io.tutorai.tutor-ai\";\n};\n"
	st, err := m.Status(u)
	if err != nil || !st.Running || st.PID != 77 {
		t.Errorf("status = %+v, %v", st, err)
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	u := testUnit(t)
	m := &Manager{goos: "plan9", run: (&recorder{}).run}
	if err := m.Install(u); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Install: expected ErrUnsupported, got %v", err)
	}
	if err := m.Uninstall(u); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Uninstall: expected ErrUnsupported, got %v", err)
	}
	if _, err := m.Status(u); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Status: expected ErrUnsupported, got %v", err)
	}
}

func TestUnitValidate(t *testing.T) {
	if err := (Unit{}).Validate(); err == nil {
		t.Error("expected error for empty name")
	}
	if err := (Unit{Name: "x"}).Validate(); err == nil {
		t.Error("expected error for empty binary")
	}
	if err := (Unit{Name: "x", BinaryPath: "/nonexistent/tutor"}).Validate(); err == nil {
		t.Error("expected error for missing binary")
	}

	notExec := filepath.Join(t.TempDir(), "tutor")
	if err := os.WriteFile(notExec, []byte("#!/bin/sh"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := (Unit{Name: "x", BinaryPath: notExec}).Validate()
	if err == nil || !strings.Contains(err.Error(), "not executable") {
		t.Errorf("expected not executable error, got %v", err)
	}
}

func TestDefaultUnit(t *testing.T) {
	u := DefaultUnit()
	if u.Name != "tutor-ai" || u.BinaryPath == "" || u.HomeDir == "" || u.User == "" {
		t.Errorf("unexpected defaults: %+v", u)
	}
	if !strings.HasSuffix(u.ConfigPath, filepath.Join("tutor-ai", "config.yaml")) {
		t.Errorf("config path = %s", u.ConfigPath)
	}
}
