// Package browser provides the concrete automation backends: chromedp (the
// default), playwright-go and go-rod.
package browser

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/backend"
)

// DefaultBackend is used when no backend name is configured.
const DefaultBackend = "chromedp"

var constructors = map[string]func(*zap.Logger) backend.Backend{
	"chromedp":   func(l *zap.Logger) backend.Backend { return NewChromedp(l) },
	"playwright": func(l *zap.Logger) backend.Backend { return NewPlaywright(l) },
	"rod":        func(l *zap.Logger) backend.Backend { return NewRod(l) },
}

// New returns the backend registered under name.
func New(name string, logger *zap.Logger) (backend.Backend, error) {
	if name == "" {
		name = DefaultBackend
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctor, ok := constructors[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", backend.ErrUnknownBackend, name, strings.Join(Names(), ", "))
	}
	return ctor(logger.Named(strings.ToLower(name))), nil
}

// Names lists the registered backends.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Install fetches the browser binaries a backend needs. chromedp uses the
// system Chrome and has nothing to install.
func Install(name string, logger *zap.Logger) error {
	switch strings.ToLower(name) {
	case "", "chromedp":
		logger.Info("chromedp uses the system Chrome; nothing to install")
		return nil
	case "playwright":
		logger.Info("installing playwright driver and chromium")
		return InstallPlaywright()
	case "rod":
		path, err := InstallRod()
		if err != nil {
			return err
		}
		logger.Info("chromium installed for rod", zap.String("path", path))
		return nil
	default:
		return fmt.Errorf("%w %q", backend.ErrUnknownBackend, name)
	}
}
