package qdrant

type filter struct {
	Must []any
}

func (f filter) asMap() map[string]any {
	if len(f.Must) == 0 {
		return nil
	}
	return map[string]any{"must": f.Must}
}

func (f filter) and(cond map[string]any) filter {
	must := make([]any, 0, len(f.Must)+1)
	must = append(must, f.Must...)
	return filter{Must: append(must, cond)}
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func rangeGTECondition(key string, gte int) map[string]any {
	return map[string]any{
		"key":   key,
		"range": map[string]any{"gte": gte},
	}
}
