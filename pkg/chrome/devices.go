package chrome

import (
	"sort"

	"github.com/chromedp/chromedp/device"
)

// DefaultDevice is used when a session does not name one.
const DefaultDevice = "Desktop 1920x1080"

const (
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.2 Mobile/15E148 Safari/604.1"
)

// Devices are the emulation presets a session can ask for. Scale stays at 1
// so form text renders at its natural size.
var Devices = map[string]device.Info{
	"iPhone 12 Pro": {
		Name:      "iPhone 12 Pro",
		UserAgent: iphoneUA,
		Width:     390,
		Height:    844,
		Scale:     1.0,
		Mobile:    true,
		Touch:     true,
	},
	"iPhone X": {
		Name:      "iPhone X",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 11_0 like Mac OS X) AppleWebKit/604.1.38 (KHTML, like Gecko) Version/11.0 Mobile/15A372 Safari/604.1",
		Width:     375,
		Height:    812,
		Scale:     1.0,
		Mobile:    true,
		Touch:     true,
	},
	"iPad Pro": {
		Name:      "iPad Pro",
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 13_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/87.0.4280.77 Mobile/15E148 Safari/604.1",
		Width:     1024,
		Height:    1366,
		Scale:     1.0,
		Mobile:    true,
		Touch:     true,
	},
	"Galaxy S5": {
		Name:      "Galaxy S5",
		UserAgent: "Mozilla/5.0 (Linux; Android 5.0; SM-G900P Build/LRX21T) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Mobile Safari/537.36",
		Width:     360,
		Height:    640,
		Scale:     1.0,
		Mobile:    true,
		Touch:     true,
	},
	"Desktop 1280x800": {
		Name:      "Desktop 1280x800",
		UserAgent: desktopUA,
		Width:     1280,
		Height:    800,
		Scale:     1.0,
	},
	"Desktop 1920x1080": {
		Name:      "Desktop 1920x1080",
		UserAgent: desktopUA,
		Width:     1920,
		Height:    1080,
		Scale:     1.0,
	},
}

// LookupDevice returns the preset called name. An empty name selects
// DefaultDevice; an unknown one reports false along with the default.
func LookupDevice(name string) (device.Info, bool) {
	if name == "" {
		return Devices[DefaultDevice], true
	}
	if dev, ok := Devices[name]; ok {
		return dev, true
	}
	return Devices[DefaultDevice], false
}

// DeviceNames lists the presets alphabetically.
func DeviceNames() []string {
	names := make([]string, 0, len(Devices))
	for name := range Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
