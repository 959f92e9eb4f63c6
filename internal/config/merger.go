package config

import "maps"

// MergeSettings layers overlay over base: scalars win when set,
// permission lists union, and maps merge key-by-key with overlay
// replacing base entries. Used to fold global -> project -> local
// settings into one effective object.
func MergeSettings(base, overlay *Settings) *Settings {
	if base == nil {
		return overlay
	}
	if overlay == nil {
		return base
	}

	result := NewSettings()
	result.Permissions = PermissionSettings{
		Allow: unionStrings(base.Permissions.Allow, overlay.Permissions.Allow),
		Deny:  unionStrings(base.Permissions.Deny, overlay.Permissions.Deny),
		Ask:   unionStrings(base.Permissions.Ask, overlay.Permissions.Ask),
	}

	result.Model = base.Model
	if overlay.Model != "" {
		result.Model = overlay.Model
	}

	result.Hooks = mergeHookMaps(base.Hooks, overlay.Hooks)
	result.Env = mergeFlatMaps(base.Env, overlay.Env)
	result.EnabledPlugins = mergeFlatMaps(base.EnabledPlugins, overlay.EnabledPlugins)
	result.DisabledTools = mergeFlatMaps(base.DisabledTools, overlay.DisabledTools)
	return result
}

// unionStrings concatenates base then overlay, dropping duplicates while
// preserving first-seen order.
func unionStrings(base, overlay []string) []string {
	seen := make(map[string]bool, len(base)+len(overlay))
	var result []string
	for _, s := range append(append([]string{}, base...), overlay...) {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}

// mergeHookMaps merges per-event hook lists; an event key present in
// overlay replaces the base list wholesale rather than appending, so a
// project can override a global hook rather than run both.
func mergeHookMaps(base, overlay map[string][]Hook) map[string][]Hook {
	result := make(map[string][]Hook, len(base)+len(overlay))
	for k, v := range base {
		result[k] = append([]Hook{}, v...)
	}
	for k, v := range overlay {
		result[k] = append([]Hook{}, v...)
	}
	return result
}

// mergeFlatMaps merges two maps, overlay entries winning.
func mergeFlatMaps[V any](base, overlay map[string]V) map[string]V {
	result := make(map[string]V, len(base)+len(overlay))
	maps.Copy(result, base)
	maps.Copy(result, overlay)
	return result
}
