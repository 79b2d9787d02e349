package metricsvc

import (
	"sort"

	"github.com/prometheus/common/model"
)

// Sample is one (timestamp, value) point on a series.
type Sample struct {
	Timestamp int64 // unix seconds
	Value     float64
}

// Series is one (pod, container, samples) triple, with pod/container labels
// already normalized to the standard names regardless of dialect.
type Series struct {
	Pod       string
	Container string
	Job       string
	Samples   []Sample
}

// key identifies a series by the dimension callers merge/dedup on.
func (s Series) key() string { return s.Pod + "\x00" + s.Container }

// seriesFromMatrix converts a range-query result into normalized Series,
// one per (pod, container) pair found in the matrix's metric labels.
func seriesFromMatrix(m model.Matrix) []Series {
	out := make([]Series, 0, len(m))
	for _, stream := range m {
		s := Series{
			Pod:       string(stream.Metric["pod"]),
			Container: string(stream.Metric["container"]),
			Job:       string(stream.Metric["job"]),
		}
		s.Samples = make([]Sample, 0, len(stream.Values))
		for _, v := range stream.Values {
			s.Samples = append(s.Samples, Sample{
				Timestamp: v.Timestamp.Unix(),
				Value:     float64(v.Value),
			})
		}
		out = append(out, s)
	}
	return out
}

// seriesFromVector converts an instant-query result the same way, with one
// sample per series.
func seriesFromVector(v model.Vector) []Series {
	out := make([]Series, 0, len(v))
	for _, sample := range v {
		out = append(out, Series{
			Pod:       string(sample.Metric["pod"]),
			Container: string(sample.Metric["container"]),
			Job:       string(sample.Metric["job"]),
			Samples:   []Sample{{Timestamp: sample.Timestamp.Unix(), Value: float64(sample.Value)}},
		})
	}
	return out
}

// filterDuplicateJobs resolves duplicate series for the same (pod,
// container) exposed by more than one scrape job: it prefers the "kubelet"
// job and otherwise picks the alphabetically first job, for deterministic,
// idempotent results (spec.md §8 "Idempotence of Runner").
func filterDuplicateJobs(series []Series) []Series {
	byKey := make(map[string][]Series)
	var order []string
	for _, s := range series {
		k := s.key()
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], s)
	}

	out := make([]Series, 0, len(order))
	for _, k := range order {
		group := byKey[k]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		var kubelet *Series
		for i := range group {
			if group[i].Job == "kubelet" {
				kubelet = &group[i]
				break
			}
		}
		if kubelet != nil {
			out = append(out, *kubelet)
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Job < group[j].Job })
		out = append(out, group[0])
	}
	return out
}

// mergeSeries combines two series sets (e.g. the two halves of a
// range-split retry) by (pod, container), concatenating and
// timestamp-sorting samples so the merged result is byte-identical
// regardless of split order.
func mergeSeries(a, b []Series) []Series {
	byKey := make(map[string]*Series)
	var order []string

	add := func(list []Series) {
		for _, s := range list {
			k := s.key()
			existing, ok := byKey[k]
			if !ok {
				cp := s
				byKey[k] = &cp
				order = append(order, k)
				continue
			}
			existing.Samples = append(existing.Samples, s.Samples...)
		}
	}
	add(a)
	add(b)

	out := make([]Series, 0, len(order))
	for _, k := range order {
		s := *byKey[k]
		sort.Slice(s.Samples, func(i, j int) bool { return s.Samples[i].Timestamp < s.Samples[j].Timestamp })
		out = append(out, s)
	}
	return out
}
