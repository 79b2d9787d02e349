package dialect

// Anthos reuses gcpBuilder with the "anthos/" metric-name prefix; its query
// templates are the GCP ones in gcp.go.

// NewAnthosBuilder is a convenience constructor equivalent to
// New(Anthos, label).
func NewAnthosBuilder(label ClusterLabel) Builder {
	return &gcpBuilder{label: label, prefix: "kubernetes.io/anthos/"}
}
