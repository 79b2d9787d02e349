package discovery

import (
	"sort"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
)

// groupedJob is one synthesized GroupedJob bucket: every Job whose labels
// carry all of the configured grouping keys, with matching values.
type groupedJob struct {
	key      string
	labels   map[string]string
	jobs     []batchv1.Job
}

// groupJobs buckets jobs by the configured grouping keys, per spec.md §4.3
// step 1 and the open-question decision in §9: a Job is folded into a group
// only when its label set contains every configured key (not a subset);
// labels outside the key set are ignored. A Job missing one or more
// grouping keys cannot be placed in any group and is returned as
// standalone so it is discovered as an ordinary Job workload instead; no
// warning is recorded for it.
func groupJobs(jobs []batchv1.Job, groupingKeys []string) (groups []groupedJob, standalone []batchv1.Job) {
	if len(groupingKeys) == 0 {
		return nil, jobs
	}
	sortedKeys := append([]string(nil), groupingKeys...)
	sort.Strings(sortedKeys)

	byKey := make(map[string]*groupedJob)
	var order []string

	for _, j := range jobs {
		values := make([]string, 0, len(sortedKeys))
		complete := true
		labels := make(map[string]string, len(sortedKeys))
		for _, k := range sortedKeys {
			v, ok := j.Labels[k]
			if !ok {
				complete = false
				break
			}
			values = append(values, k+"="+v)
			labels[k] = v
		}
		if !complete {
			standalone = append(standalone, j)
			continue
		}
		key := strings.Join(values, ",")
		g, exists := byKey[key]
		if !exists {
			g = &groupedJob{key: key, labels: labels}
			byKey[key] = g
			order = append(order, key)
		}
		g.jobs = append(g.jobs, j)
	}

	for _, k := range order {
		groups = append(groups, *byKey[k])
	}
	return groups, standalone
}

// groupName derives a stable, human-readable name for a GroupedJob workload
// from its grouping-key values, e.g. "team=payments,tier=batch".
func (g groupedJob) groupName() string {
	return g.key
}

// jobNames returns the individual Job names folded into the group, sorted
// for deterministic output.
func (g groupedJob) jobNames() []string {
	names := make([]string, 0, len(g.jobs))
	for _, j := range g.jobs {
		names = append(names, j.Name)
	}
	sort.Strings(names)
	return names
}
