package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// Auto selects the LED from the board model.
const Auto = "auto"

// boardLEDs maps a device tree model fragment to its user LED.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// New returns the indicator for name under SysfsRoot. Auto picks the LED
// from the board model; an unknown board or a missing LED yields nil.
func New(name string, logger *slog.Logger) Indicator {
	return open(SysfsRoot, deviceTreeModelPath, name, logger)
}

func open(root, modelPath, name string, logger *slog.Logger) Indicator {
	if name == Auto {
		model := detectBoard(modelPath)
		name = ledForBoard(model)
		if name == "" {
			logger.Info("No recording indicator for this board", "board_model", model)
			return nil
		}
		logger.Info("Detected board LED", "board_model", model, "led", name)
	}

	ind, err := NewSysfs(root, name)
	if err != nil {
		logger.Warn("Recording indicator unavailable", "error", err)
		return nil
	}
	return ind
}

func ledForBoard(model string) string {
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			return b.led
		}
	}
	return ""
}

// detectBoard reads the device tree model, or "unknown".
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated
	return strings.TrimRight(string(data), "\x00")
}
