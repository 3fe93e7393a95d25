// Package persona holds the coaching scenarios and builds the system prompt
// and persona payload sent to the video provider.
package persona

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"sigs.k8s.io/yaml"
)

// DefaultScenarioKey is used when a caller does not pick a scenario.
const DefaultScenarioKey = "pip_swe"

// ErrUnknownScenario is returned by Get for keys not in the catalog.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario describes one difficult-conversation setup.
type Scenario struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	EmployeeType string `json:"employee_type"`
	Description  string `json:"description"`
}

// builtinScenarios are always present; a scenarios file may override them.
var builtinScenarios = []Scenario{
	{
		Key:          "pip_swe",
		Label:        "Performance Conversation – SWE PIP",
		EmployeeType: "backend software engineer (individual contributor)",
		Description: "The engineer has missed multiple sprint commitments, left stories half-finished or " +
			"under-tested, and rarely surfaces blockers until very late. You need to walk them " +
			"through a Performance Improvement Plan (PIP) in a way that is clear but supportive. " +
			"They will likely start off sounding casual or detached about the situation, but may " +
			"suddenly become sad, tearful, or angry once the consequences land. Your job is to " +
			"keep them regulated, empathize, and help them engage with the plan.",
	},
}

type scenarioFile struct {
	Scenarios []Scenario `json:"scenarios"`
}

// Catalog is a concurrency-safe set of scenarios.
type Catalog struct {
	path      string
	scenarios map[string]Scenario
	mu        sync.RWMutex
}

// NewCatalog returns a catalog seeded with the built-in scenarios. When path
// is non-empty, Load reads additional scenarios from that YAML file.
func NewCatalog(path string) *Catalog {
	c := &Catalog{path: path}
	c.reset()
	return c
}

func (c *Catalog) reset() {
	c.scenarios = make(map[string]Scenario, len(builtinScenarios))
	for _, s := range builtinScenarios {
		c.scenarios[s.Key] = s
	}
}

// Load merges scenarios from the configured file. A missing file is not an
// error.
func (c *Catalog) Load() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", c.path).Msg("scenarios file does not exist; using built-in scenarios")
			return nil
		}
		return fmt.Errorf("failed to read scenarios file: %w", err)
	}
	return c.LoadYAML(data)
}

// LoadYAML merges scenarios from a YAML (or JSON) document of the form
// {scenarios: [{key, label, employee_type, description}]}.
func (c *Catalog) LoadYAML(data []byte) error {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse scenarios: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range file.Scenarios {
		s.Key = strings.TrimSpace(s.Key)
		if s.Key == "" {
			return fmt.Errorf("scenario %d missing 'key' field", i)
		}
		if s.EmployeeType == "" || s.Description == "" {
			return fmt.Errorf("scenario %s requires employee_type and description", s.Key)
		}
		if s.Label == "" {
			s.Label = s.Key
		}
		c.scenarios[s.Key] = s
		log.Debug().Str("scenario", s.Key).Msg("loaded scenario")
	}
	return nil
}

// Reload drops file-provided scenarios and reads the file again.
func (c *Catalog) Reload() error {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
	return c.Load()
}

// Get returns the scenario for key. An empty key selects the default.
func (c *Catalog) Get(key string) (Scenario, error) {
	if key == "" {
		key = DefaultScenarioKey
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.scenarios[key]
	if !ok {
		return Scenario{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownScenario, key, strings.Join(c.keysLocked(), ", "))
	}
	return s, nil
}

// Default returns the built-in default scenario, or its override.
func (c *Catalog) Default() Scenario {
	s, _ := c.Get(DefaultScenarioKey)
	return s
}

// List returns all scenarios sorted by key.
func (c *Catalog) List() []Scenario {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Scenario, 0, len(c.scenarios))
	for _, key := range c.keysLocked() {
		out = append(out, c.scenarios[key])
	}
	return out
}

// Count returns the number of scenarios.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scenarios)
}

func (c *Catalog) keysLocked() []string {
	keys := make([]string, 0, len(c.scenarios))
	for k := range c.scenarios {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
