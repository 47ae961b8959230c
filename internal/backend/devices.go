package backend

import (
	"fmt"
	"sort"
	"strings"
)

// Device is an emulation preset applied to a browsing context.
type Device struct {
	Name      string
	UserAgent string
	Width     int
	Height    int
	Scale     float64
	Mobile    bool
	Touch     bool
}

// Viewport dimensions and user agents follow the Playwright device registry
// so screenshots match across backends.
var devices = map[string]Device{
	"desktop chrome": {
		Name:      "Desktop Chrome",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Width:     1280,
		Height:    720,
		Scale:     1,
	},
	"iphone 12": {
		Name:      "iPhone 12",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Mobile/15E148 Safari/604.1",
		Width:     390,
		Height:    664,
		Scale:     3,
		Mobile:    true,
		Touch:     true,
	},
	"iphone 13": {
		Name:      "iPhone 13",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
		Width:     390,
		Height:    664,
		Scale:     3,
		Mobile:    true,
		Touch:     true,
	},
	"pixel 5": {
		Name:      "Pixel 5",
		UserAgent: "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.91 Mobile Safari/537.36",
		Width:     393,
		Height:    727,
		Scale:     2.75,
		Mobile:    true,
		Touch:     true,
	},
	"ipad mini": {
		Name:      "iPad Mini",
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 12_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/12.1 Mobile/15E148 Safari/604.1",
		Width:     768,
		Height:    1024,
		Scale:     2,
		Mobile:    true,
		Touch:     true,
	},
}

// LookupDevice resolves a preset by name, ignoring case. An empty name
// returns nil, meaning no emulation.
func LookupDevice(name string) (*Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	d, ok := devices[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown device profile %q (known: %s)", name, strings.Join(DeviceNames(), ", "))
	}
	return &d, nil
}

// DeviceNames lists the known presets.
func DeviceNames() []string {
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}
