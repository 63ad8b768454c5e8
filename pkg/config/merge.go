package config

// mergeLayers folds a sequence of config layers into one map, later layers
// taking precedence. Nested maps are merged key-by-key (deep merge); any
// other value type, including arrays, is replaced wholesale by the later
// layer.
func mergeLayers(layers []map[string]any) map[string]any {
	result := map[string]any{}
	for _, layer := range layers {
		result = mergeInto(result, layer)
	}
	return result
}

func mergeInto(base, overlay map[string]any) map[string]any {
	for k, v := range overlay {
		if overlayMap, ok := v.(map[string]any); ok {
			if baseMap, ok := base[k].(map[string]any); ok {
				base[k] = mergeInto(cloneMap(baseMap), overlayMap)
				continue
			}
		}
		base[k] = v
	}
	return base
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
