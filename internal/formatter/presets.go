package formatter

import "fmt"

// Preset represents a template preset with name, template string, and description.
type Preset struct {
	Name        string
	Template    string
	Description string
}

// PresetRegistry manages template presets.
type PresetRegistry interface {
	Get(name string) (*Preset, error)
	List() []Preset
	Register(preset Preset) error
}

type presetRegistry struct {
	presets map[string]Preset
	order   []string
}

// NewPresetRegistry creates a registry holding the default presets.
func NewPresetRegistry() PresetRegistry {
	registry := &presetRegistry{presets: make(map[string]Preset)}
	for _, preset := range defaultPresets {
		_ = registry.Register(preset)
	}
	return registry
}

var defaultPresets = []Preset{
	{
		Name:        "compact",
		Template:    "[{{failed-count}}/{{total-count}}] {{latest-title}}",
		Description: "Failed and total jobs with the newest title",
	},
	{
		Name:        "detailed",
		Template:    "{{pending-count}} pending, {{running-count}} running, {{failed-count}} failed | Latest: {{latest-title}}",
		Description: "Per-status counts and the newest title",
	},
	{
		Name:        "json",
		Template:    `{"total":{{total-count}},"active":{{active-count}},"failed":{{failed-count}}}`,
		Description: "Counts as JSON for scripts",
	},
	{
		Name:        "count-only",
		Template:    "{{total-count}}",
		Description: "Only the total",
	},
	{
		Name:        "failures",
		Template:    "{{failed-count}} failed",
		Description: "Only failed jobs",
	},
	{
		Name:        "account",
		Template:    "{{account}}: {{active-count}} active",
		Description: "Account with pending and running jobs",
	},
}

func (pr *presetRegistry) Get(name string) (*Preset, error) {
	preset, ok := pr.presets[name]
	if !ok {
		return nil, fmt.Errorf("preset not found: %s", name)
	}
	return &preset, nil
}

// List returns all presets in registration order.
func (pr *presetRegistry) List() []Preset {
	result := make([]Preset, 0, len(pr.order))
	for _, name := range pr.order {
		result = append(result, pr.presets[name])
	}
	return result
}

// Register adds a new preset or overwrites an existing one.
func (pr *presetRegistry) Register(preset Preset) error {
	if preset.Name == "" {
		return fmt.Errorf("preset name cannot be empty")
	}
	if preset.Template == "" {
		return fmt.Errorf("preset template cannot be empty")
	}
	if _, exists := pr.presets[preset.Name]; !exists {
		pr.order = append(pr.order, preset.Name)
	}
	pr.presets[preset.Name] = preset
	return nil
}

// Resolve returns the preset template for name, or name itself when it
// contains a variable and is therefore a literal template.
func Resolve(registry PresetRegistry, name string) (string, error) {
	if preset, err := registry.Get(name); err == nil {
		return preset.Template, nil
	}
	vars, _ := NewTemplateEngine().Parse(name)
	if len(vars) > 0 {
		return name, nil
	}
	return "", fmt.Errorf("unknown preset %q and no {{variable}} in template", name)
}
