package led

import (
	"fmt"
	"os"
	"path/filepath"
)

// SysfsRoot is where the kernel exposes LED class devices.
const SysfsRoot = "/sys/class/leds"

// sysfs drives one LED through its trigger and brightness files.
type sysfs struct {
	dir  string
	name string
}

// NewSysfs returns the LED called name under root. It fails when the LED
// does not exist.
func NewSysfs(root, name string) (Indicator, error) {
	dir := filepath.Join(root, name)
	if _, err := os.Stat(filepath.Join(dir, "brightness")); err != nil {
		return nil, fmt.Errorf("LED %q not found at %s: %w", name, dir, err)
	}
	return &sysfs{dir: dir, name: name}, nil
}

func (s *sysfs) Name() string {
	return s.name
}

func (s *sysfs) Show(p Pattern) error {
	trigger, brightness := "none", "0"
	switch p {
	case PatternOff:
	case PatternSolid:
		brightness = "1"
	case PatternBlink:
		trigger, brightness = "heartbeat", "1"
	default:
		return fmt.Errorf("unknown LED pattern %q", p)
	}

	// The trigger must be written first, it resets brightness
	if err := s.write("trigger", trigger); err != nil {
		return err
	}
	return s.write("brightness", brightness)
}

func (s *sysfs) write(file, value string) error {
	if err := os.WriteFile(filepath.Join(s.dir, file), []byte(value), 0o644); err != nil {
		return fmt.Errorf("set LED %s: %w", file, err)
	}
	return nil
}
