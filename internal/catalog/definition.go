package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultHealthPath is probed when a definition does not set one.
const DefaultHealthPath = "/health"

// Definition is the static launch description of one supervised service.
//
// A Definition never changes once the catalog is loaded; the supervisor only
// reads it.
type Definition struct {
	// Name identifies the service (e.g. "whisper").
	Name string `yaml:"name" json:"name"`

	// Dir is the working directory the process is started in.
	Dir string `yaml:"dir" json:"dir"`

	// Command is the executable path.
	Command string `yaml:"command" json:"command"`

	// Args are the launch arguments passed after Command.
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// Port is the TCP port the service listens on.
	Port int `yaml:"port" json:"port"`

	// Env holds extra KEY=VALUE pairs appended to the daemon's environment.
	Env []string `yaml:"env,omitempty" json:"env,omitempty"`

	// HealthPath is the HTTP path probed by health checks.
	HealthPath string `yaml:"health_path,omitempty" json:"health_path,omitempty"`

	// Descriptive metadata served by /api/models.
	Model    string `yaml:"model,omitempty" json:"model,omitempty"`
	Task     string `yaml:"task,omitempty" json:"task,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Input    string `yaml:"input,omitempty" json:"input,omitempty"`
	Output   string `yaml:"output,omitempty" json:"output,omitempty"`
}

// Validate reports the first problem with the definition.
func (d Definition) Validate() error {
	if d.Name == "" {
		return errors.New("name is required")
	}
	if d.Command == "" {
		return fmt.Errorf("service %q: command is required", d.Name)
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("service %q: port %d out of range", d.Name, d.Port)
	}
	return nil
}

// Catalog is the immutable set of known service definitions.
type Catalog struct {
	defs  map[string]Definition
	names []string
}

// New builds a catalog, rejecting invalid or duplicate definitions.
func New(defs ...Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, errors.New("catalog has no services")
	}

	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("service %q defined twice", d.Name)
		}
		if d.HealthPath == "" {
			d.HealthPath = DefaultHealthPath
		}
		c.defs[d.Name] = d
		c.names = append(c.names, d.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Names returns the service names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// All returns every definition in name order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.defs[n])
	}
	return out
}
