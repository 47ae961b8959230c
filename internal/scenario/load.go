package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a scenario set. JSON files are accepted too,
// since every JSON document is valid YAML.
type File struct {
	BaseURL   string     `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Device    string     `json:"device,omitempty" yaml:"device,omitempty"`
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`
}

// LoadFile reads and validates a scenario file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a scenario set. Unknown fields are rejected so that a typo
// in a step does not silently turn into a no-op.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario file is empty")
		}
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	if err := ValidateAll(f.Scenarios); err != nil {
		return nil, err
	}
	return &f, nil
}
