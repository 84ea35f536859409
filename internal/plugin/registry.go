package plugin

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// EnabledLookup answers whether the user has enabled a plugin. It is keyed
// by GUID so that renaming or moving a module keeps the preference.
type EnabledLookup interface {
	IsPluginEnabled(guid string) bool
}

// Registry holds loaded plugins grouped by capability.
//
// A registry is populated single-threaded by the Loader and is read-only
// afterwards, so concurrent readers need no locking.
type Registry struct {
	entries  []Entry
	byGUID   map[string]int
	failures []LoadFailure
	lookup   EnabledLookup
}

// NewRegistry returns an empty registry consulting lookup for enabled state.
// A nil lookup treats every plugin as enabled.
func NewRegistry(lookup EnabledLookup) *Registry {
	return &Registry{byGUID: make(map[string]int), lookup: lookup}
}

// Add registers a plugin. The descriptor's LoadIndex is assigned from the
// insertion position. Duplicate GUIDs are rejected.
func (r *Registry) Add(desc Descriptor, p Plugin) (Entry, error) {
	if p == nil {
		return Entry{}, fmt.Errorf("register %q: nil plugin", desc.Name)
	}
	desc.GUID = strings.ToLower(strings.TrimSpace(desc.GUID))
	if desc.GUID == "" {
		return Entry{}, fmt.Errorf("register %q: missing guid", desc.Name)
	}
	if !desc.Capability.Valid() {
		return Entry{}, fmt.Errorf("register %q: invalid capability %q", desc.Name, desc.Capability)
	}
	if idx, ok := r.byGUID[desc.GUID]; ok {
		return Entry{}, fmt.Errorf("register %q: guid %s already used by %q", desc.Name, desc.GUID, r.entries[idx].Name)
	}
	desc.LoadIndex = len(r.entries)
	entry := Entry{Descriptor: desc, Plugin: p}
	r.byGUID[desc.GUID] = len(r.entries)
	r.entries = append(r.entries, entry)
	return entry, nil
}

// ByCapability returns the plugins of one capability sorted by RunOrder, ties
// broken by load order.
func (r *Registry) ByCapability(c Capability) []Entry {
	if r == nil {
		return nil
	}
	var out []Entry
	for _, e := range r.entries {
		if e.Capability == c {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		if n := cmp.Compare(a.RunOrder, b.RunOrder); n != 0 {
			return n
		}
		return cmp.Compare(a.LoadIndex, b.LoadIndex)
	})
	return out
}

// All returns every plugin grouped in pipeline capability order.
func (r *Registry) All() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.entries))
	for _, c := range Capabilities() {
		out = append(out, r.ByCapability(c)...)
	}
	return out
}

// Lookup returns the plugin with the given GUID.
func (r *Registry) Lookup(guid string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	idx, ok := r.byGUID[strings.ToLower(strings.TrimSpace(guid))]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// FindByName returns the first plugin, in load order, whose name matches
// case-insensitively.
func (r *Registry) FindByName(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	name = strings.TrimSpace(name)
	for _, e := range r.entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolve finds a plugin by GUID, falling back to its name.
func (r *Registry) Resolve(ref string) (Entry, bool) {
	if e, ok := r.Lookup(ref); ok {
		return e, true
	}
	return r.FindByName(ref)
}

// IsEnabled reports the user preference for guid.
func (r *Registry) IsEnabled(guid string) bool {
	if r == nil || r.lookup == nil {
		return true
	}
	return r.lookup.IsPluginEnabled(strings.ToLower(strings.TrimSpace(guid)))
}

// Count returns the number of loaded plugins.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// CountByCapability returns the number of loaded plugins with capability c.
func (r *Registry) CountByCapability(c Capability) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, e := range r.entries {
		if e.Capability == c {
			n++
		}
	}
	return n
}

// Failures returns the candidates that could not be loaded.
func (r *Registry) Failures() []LoadFailure {
	if r == nil {
		return nil
	}
	return slices.Clone(r.failures)
}

func (r *Registry) recordFailure(f LoadFailure) {
	r.failures = append(r.failures, f)
}

// missing returns the required capabilities with no loaded plugin.
func (r *Registry) missing() []Capability {
	var out []Capability
	for _, c := range RequiredCapabilities() {
		if r.CountByCapability(c) == 0 {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) clear() {
	r.entries = nil
	r.byGUID = make(map[string]int)
	r.failures = nil
}
