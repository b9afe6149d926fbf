package risk

// ComponentHealth is the positional health figure shown next to a critical component.
type ComponentHealth struct {
	Name          string `json:"name"`
	HealthPercent int    `json:"health_percentage"`
	Placeholder   bool   `json:"placeholder"`
}

// PlaceholderComponentHealth returns 100 - index*15 for each component, floored at
// zero. It is a positional stub with no sensor input and must not be read as
// measured component health.
func PlaceholderComponentHealth(components []string) []ComponentHealth {
	out := make([]ComponentHealth, 0, len(components))
	for i, name := range components {
		health := 100 - i*15
		if health < 0 {
			health = 0
		}
		out = append(out, ComponentHealth{Name: name, HealthPercent: health, Placeholder: true})
	}
	return out
}
