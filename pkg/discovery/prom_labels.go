package discovery

import "github.com/prometheus/common/model"

// extractPromLabel pulls the distinct values of one label out of every
// series in a discovery query's result vector, sorted for deterministic
// iteration.
func extractPromLabel(vec model.Vector, labelName string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range vec {
		v := string(s.Metric[model.LabelName(labelName)])
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
