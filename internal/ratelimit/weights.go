package ratelimit

// Weight tiers billed by the Hyperliquid info endpoint.
const (
	LightWeight = 2
	HeavyWeight = 20
)

// WeightTable resolves an info request type to its weight.
// Types not listed as light and not overridden are billed as heavy.
type WeightTable struct {
	light     map[string]struct{}
	overrides map[string]int
	lightW    int
	heavyW    int
}

// NewWeightTable builds a table from the light type list and explicit overrides.
func NewWeightTable(lightWeight, heavyWeight int, lightTypes []string, overrides map[string]int) WeightTable {
	t := WeightTable{
		light:     make(map[string]struct{}, len(lightTypes)),
		overrides: make(map[string]int, len(overrides)),
		lightW:    lightWeight,
		heavyW:    heavyWeight,
	}
	for _, typ := range lightTypes {
		t.light[typ] = struct{}{}
	}
	for typ, w := range overrides {
		t.overrides[typ] = w
	}
	return t
}

// Resolve returns the weight for the request type.
func (t WeightTable) Resolve(reqType string) int {
	if w, ok := t.overrides[reqType]; ok {
		return w
	}
	if _, ok := t.light[reqType]; ok {
		return t.lightW
	}
	return t.heavyW
}

// Max returns the largest weight the table can produce.
func (t WeightTable) Max() int {
	m := t.heavyW
	if t.lightW > m {
		m = t.lightW
	}
	for _, w := range t.overrides {
		if w > m {
			m = w
		}
	}
	return m
}
