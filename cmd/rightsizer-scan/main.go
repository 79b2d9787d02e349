// Command rightsizer-scan wires a single Kubernetes/Prometheus pair into the
// scan pipeline and prints the resulting recommendations. It is a thin
// illustration of how a caller assembles the core: the core itself never
// authenticates or constructs these clients.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/costlens/rightsizer/internal/rslog"
	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/discovery"
	"github.com/costlens/rightsizer/pkg/metricsvc"
	"github.com/costlens/rightsizer/pkg/rsconfig"
	"github.com/costlens/rightsizer/pkg/scan"
	"github.com/costlens/rightsizer/pkg/strategy"
)

var (
	kubeconfig     string
	clusterName    string
	namespace      string
	allNamespaces  bool
	prometheusURL  string
	dialectOverride string
	strategyName   string
	outputFormat   string
	verbose        bool
	anthosMode     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rightsizer-scan",
		Short: "Scan a Kubernetes cluster and recommend container CPU/memory sizing",
		Long:  "Discovers workloads, pulls historical CPU/memory metrics from Prometheus, and runs a pluggable sizing strategy over them.",
		RunE:  runScan,
	}

	rootCmd.Flags().StringVar(&kubeconfig, "kubeconfig", defaultKubeconfig(), "Path to kubeconfig")
	rootCmd.Flags().StringVar(&clusterName, "cluster-name", "default", "Logical name for this cluster in output")
	rootCmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Single namespace glob to scan (empty with --all-namespaces means every namespace)")
	rootCmd.Flags().BoolVarP(&allNamespaces, "all-namespaces", "A", true, "Scan every namespace")
	rootCmd.Flags().StringVar(&prometheusURL, "prometheus-url", "http://localhost:9090", "Prometheus-compatible backend URL")
	rootCmd.Flags().StringVar(&dialectOverride, "dialect", rsconfig.DialectAuto, "Prometheus dialect: standard, gcp, anthos (auto-detected by default)")
	rootCmd.Flags().BoolVar(&anthosMode, "anthos", false, "Prefer the Anthos dialect when auto-detecting GCP Managed Prometheus")
	rootCmd.Flags().StringVar(&strategyName, "strategy", "simple", "Sizing strategy: simple, simple-limit")
	rootCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultKubeconfig() string {
	if home := homedir.HomeDir(); home != "" {
		return filepath.Join(home, ".kube", "config")
	}
	return ""
}

func runScan(cmd *cobra.Command, args []string) error {
	if verbose {
		rslog.Init("debug")
	}

	cfg := rsconfig.NewConfig()
	cfg.PrometheusURL = prometheusURL
	cfg.PrometheusDialectOverride = dialectOverride
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	restConfig, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to build kube config: %w", err)
	}
	kubeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create kube client: %w", err)
	}
	// Best-effort: metrics-server isn't always installed, and it only
	// corroborates pod liveness when the core Pods API call fails. Left as
	// the nil interface value (not a typed nil *Clientset) when unavailable.
	var metricsClient metricsclientset.Interface
	if mc, err := metricsclientset.NewForConfig(restConfig); err != nil {
		rslog.Warn("metrics.k8s.io client unavailable, liveness fallback disabled: %v", err)
	} else {
		metricsClient = mc
	}

	promClient, err := api.NewClient(api.Config{Address: cfg.PrometheusURL})
	if err != nil {
		return fmt.Errorf("failed to create prometheus client: %w", err)
	}
	promAPI := v1.NewAPI(promClient)
	promService := metricsvc.NewService(
		promAPI,
		metricsvc.WithRequestTimeout(cfg.PrometheusRequestTimeout),
		metricsvc.WithRateLimit(cfg.PrometheusMaxRatePerMinute),
	)

	d := resolveDialect(cfg.PrometheusDialectOverride, cfg.PrometheusURL, anthosMode)
	label := dialect.ClusterLabel{Key: cfg.ClusterLabelKey, Value: cfg.ClusterLabelValue}
	builder := dialect.New(d, label)

	cluster := &discovery.Cluster{
		Name:          clusterName,
		KubeClient:    kubeClient,
		MetricsClient: metricsClient,
		PromService:   promService,
		Builder:       builder,
		Window:        dialect.Window{History: cfg.HistoryWindow(), Step: cfg.Step()},
	}

	strat, err := buildStrategy(strategyName, cfg)
	if err != nil {
		return err
	}

	filter := discovery.Filter{AllowHPA: cfg.AllowHPA}
	if !allNamespaces && namespace != "" {
		filter.Namespaces = []string{namespace}
	}

	runner := scan.NewRunner(cfg, strat, []*discovery.Cluster{cluster}, filter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, fatalErrs := runner.Run(ctx)
	for _, err := range fatalErrs {
		rslog.Error("scan: %v", err)
	}

	return printResults(results, outputFormat)
}

// resolveDialect honors an explicit --dialect override and otherwise falls
// back to URL-based auto-detection (spec.md §4.2).
func resolveDialect(override, prometheusURL string, anthosRequested bool) dialect.Dialect {
	switch override {
	case rsconfig.DialectStandard:
		return dialect.Standard
	case rsconfig.DialectGCP:
		return dialect.GCPManaged
	case rsconfig.DialectAnthos:
		return dialect.Anthos
	default:
		return dialect.DetectDialect(prometheusURL, anthosRequested)
	}
}

func buildStrategy(name string, cfg *rsconfig.Config) (strategy.Strategy, error) {
	switch name {
	case "simple":
		s := strategy.NewSimple()
		s.Percentile = cfg.Percentile
		s.MemoryBufferPercentage = cfg.MemoryBufferPercentage
		s.OOMMemoryBufferPercentage = cfg.OOMMemoryBufferPercentage
		return s, nil
	case "simple-limit":
		s := strategy.NewSimpleLimit()
		s.RequestPercentile = cfg.RequestPercentile
		s.LimitPercentile = cfg.LimitPercentile
		s.MemoryBufferPercentage = cfg.MemoryBufferPercentage
		s.OOMMemoryBufferPercentage = cfg.OOMMemoryBufferPercentage
		return s, nil
	default:
		return nil, fmt.Errorf("unrecognized strategy %q (want simple or simple-limit)", name)
	}
}

func printResults(results []scan.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "text":
		for _, r := range results {
			fmt.Printf("%s/%s/%s/%s container=%s cpu=%s(%s) mem=%s(%s)\n",
				r.Cluster, r.Namespace, r.Kind, r.Workload, r.Container,
				formatMillicores(r.Recommendation.CPURequestMillicores), r.States["cpu"],
				formatBytes(r.Recommendation.MemRequestBytes), r.States["memory"])
		}
		return nil
	default:
		return fmt.Errorf("unrecognized output format %q (want text or json)", format)
	}
}

func formatMillicores(v *int64) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprintf("%dm", *v)
}

func formatBytes(v *int64) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprintf("%dMi", *v/(1024*1024))
}
