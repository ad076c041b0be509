// Package service installs the gateway as a background service: a system
// systemd unit on Linux, a per-user launchd agent on macOS.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"text/template"
)

// ErrUnsupported is returned on platforms without a service backend.
var ErrUnsupported = errors.New("unsupported platform")

// Unit describes the installed gateway service.
type Unit struct {
	Name       string
	BinaryPath string
	ConfigPath string
	// EnvFile holds secrets such as GEMINI_API_KEY. It is optional.
	EnvFile string
	WorkDir string
	User    string
	LogDir  string
	HomeDir string
}

// Status is the state of an installed service.
type Status struct {
	Running bool
	PID     int
}

// DefaultUnit returns a unit for the running binary and current user.
func DefaultUnit() Unit {
	const name = "tutor-ai"
	binary, _ := os.Executable()
	if binary == "" {
		binary = "/usr/local/bin/tutor"
	}
	username, home := "root", "/root"
	if u, err := user.Current(); err == nil {
		username, home = u.Username, u.HomeDir
	}
	data := filepath.Join(home, ".local", "share", name)
	return Unit{
		Name:       name,
		BinaryPath: binary,
		ConfigPath: filepath.Join(home, ".config", name, "config.yaml"),
		EnvFile:    filepath.Join(home, ".config", name, "env"),
		WorkDir:    data,
		User:       username,
		LogDir:     filepath.Join(data, "logs"),
		HomeDir:    home,
	}
}

// Validate checks that the unit names an executable binary.
func (u Unit) Validate() error {
	if u.Name == "" {
		return errors.New("service name is required")
	}
	if u.BinaryPath == "" {
		return errors.New("binary path is required")
	}
	info, err := os.Stat(u.BinaryPath)
	if err != nil {
		return fmt.Errorf("binary %q: %w", u.BinaryPath, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("binary %q is not executable", u.BinaryPath)
	}
	return nil
}

// Runner executes a command and returns its combined output.
type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Manager installs and inspects the service on one platform.
type Manager struct {
	goos string
	run  Runner
	// root is prepended to absolute system paths. Empty outside tests.
	root string
}

// NewManager returns a manager for the current platform.
func NewManager() *Manager {
	return &Manager{goos: runtime.GOOS, run: execRunner}
}

// Install writes the service definition and starts it.
func (m *Manager) Install(u Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}
	for _, dir := range []string{u.LogDir, u.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	switch m.goos {
	case "linux":
		return m.installSystemd(u)
	case "darwin":
		return m.installLaunchd(u)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, m.goos)
	}
}

// Uninstall stops the service and removes its definition. Stop failures
// are ignored so a half-installed service can still be removed.
func (m *Manager) Uninstall(u Unit) error {
	switch m.goos {
	case "linux":
		m.run("systemctl", "stop", u.Name)
		m.run("systemctl", "disable", u.Name)
		if err := removeIfExists(m.systemdPath(u)); err != nil {
			return err
		}
		_, err := m.run("systemctl", "daemon-reload")
		return err
	case "darwin":
		path := m.launchdPath(u)
		m.run("launchctl", "unload", path)
		return removeIfExists(path)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, m.goos)
	}
}

// Status reports whether the service is running.
func (m *Manager) Status(u Unit) (*Status, error) {
	switch m.goos {
	case "linux":
		out, _ := m.run("systemctl", "is-active", u.Name)
		st := &Status{Running: strings.TrimSpace(string(out)) == "active"}
		if !st.Running {
			return st, nil
		}
		if out, err := m.run("systemctl", "show", "--property=MainPID", u.Name); err == nil {
			if _, pid, ok := strings.Cut(strings.TrimSpace(string(out)), "="); ok {
				st.PID, _ = strconv.Atoi(pid)
			}
		}
		return st, nil
	case "darwin":
		out, err := m.run("launchctl", "list", launchdLabel(u))
		if err != nil {
			return &Status{}, nil
		}
		st := &Status{Running: true}
		for _, line := range strings.Split(string(out), "\n") {
			if !strings.Contains(line, `"PID"`) {
				continue
			}
			f := strings.Fields(strings.TrimSuffix(strings.TrimSpace(line), ";"))
			if len(f) > 0 {
				st.PID, _ = strconv.Atoi(f[len(f)-1])
			}
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, m.goos)
	}
}

const systemdTemplate = `[Unit]
Description={{.Name}} tutoring gateway
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.BinaryPath}} serve --config {{.ConfigPath}}
WorkingDirectory={{.WorkDir}}
User={{.User}}
Restart=on-failure
RestartSec=5
{{- if .EnvFile}}
EnvironmentFile=-{{.EnvFile}}
{{- end}}
Environment=HOME={{.HomeDir}}
StandardOutput=append:{{.LogDir}}/{{.Name}}.log
StandardError=append:{{.LogDir}}/{{.Name}}.log

[Install]
WantedBy=multi-user.target
`

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{label .}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.BinaryPath}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.WorkDir}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.LogDir}}/{{.Name}}.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogDir}}/{{.Name}}.log</string>
    <key>EnvironmentVariables</key>
    <dict>
        <key>HOME</key>
        <string>{{.HomeDir}}</string>
    </dict>
</dict>
</plist>
`

var (
	systemdTmpl = template.Must(template.New("systemd").Parse(systemdTemplate))
	launchdTmpl = template.Must(template.New("launchd").
		Funcs(template.FuncMap{"label": launchdLabel}).
		Parse(launchdTemplate))
)

func render(t *template.Template, u Unit) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, u); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// RenderSystemd renders the systemd unit file.
func RenderSystemd(u Unit) (string, error) { return render(systemdTmpl, u) }

// RenderLaunchd renders the launchd property list.
func RenderLaunchd(u Unit) (string, error) { return render(launchdTmpl, u) }

func launchdLabel(u Unit) string { return "io.tutorai." + u.Name }

func (m *Manager) systemdPath(u Unit) string {
	return filepath.Join(m.root, "/etc/systemd/system", u.Name+".service")
}

func (m *Manager) launchdPath(u Unit) string {
	return filepath.Join(m.root, u.HomeDir, "Library", "LaunchAgents", launchdLabel(u)+".plist")
}

func (m *Manager) installSystemd(u Unit) error {
	content, err := RenderSystemd(u)
	if err != nil {
		return err
	}
	if err := writeFile(m.systemdPath(u), content); err != nil {
		return err
	}
	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", u.Name},
		{"start", u.Name},
	} {
		if out, err := m.run("systemctl", args...); err != nil {
			return fmt.Errorf("systemctl %s: %s: %w", strings.Join(args, " "), bytes.TrimSpace(out), err)
		}
	}
	return nil
}

func (m *Manager) installLaunchd(u Unit) error {
	content, err := RenderLaunchd(u)
	if err != nil {
		return err
	}
	path := m.launchdPath(u)
	if err := writeFile(path, content); err != nil {
		return err
	}
	if out, err := m.run("launchctl", "load", path); err != nil {
		return fmt.Errorf("launchctl load: %s: %w", bytes.TrimSpace(out), err)
	}
	return nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
