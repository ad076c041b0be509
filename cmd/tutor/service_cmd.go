package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"tutor-ai/cmd/tutor/service"
)

func runService(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tutor service <install|uninstall|status> [--config PATH]")
	}

	unit := service.DefaultUnit()
	if p := configPath(args); p != "config.yaml" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		unit.ConfigPath = abs
	}

	m := service.NewManager()
	switch args[0] {
	case "install":
		if err := m.Install(unit); err != nil {
			return err
		}
		fmt.Printf("Installed %s (config %s).\n", unit.Name, unit.ConfigPath)
		fmt.Printf("Put GEMINI_API_KEY=... in %s to keep the key out of the config file.\n", unit.EnvFile)
	case "uninstall":
		if err := m.Uninstall(unit); err != nil {
			return err
		}
		fmt.Printf("Removed %s.\n", unit.Name)
	case "status":
		st, err := m.Status(unit)
		if err != nil {
			return err
		}
		if !st.Running {
			fmt.Printf("%s is not running\n", unit.Name)
			return nil
		}
		fmt.Printf("%s is running (pid %d)\n", unit.Name, st.PID)
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
	return nil
}
