// file: cmd/release-labeler/cmd/run.go

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fx147/release-labeler/internal/release-labeler/util"
	"github.com/fx147/release-labeler/pkg/controller"
	"github.com/fx147/release-labeler/pkg/informer"
	"github.com/fx147/release-labeler/pkg/matcher"
	"github.com/fx147/release-labeler/pkg/metrics"
	"github.com/fx147/release-labeler/pkg/reconciler"
	"github.com/fx147/release-labeler/pkg/registry"
	"github.com/fx147/release-labeler/pkg/report"
	"github.com/fx147/release-labeler/pkg/resolver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// newRunCmd 创建 run 命令，启动控制器直到收到 SIGINT 或 SIGTERM。
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch releases and label the objects they own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := util.LoadConfig(viper.GetViper())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringP("namespace", "n", "", "Only watch releases in this namespace (default all namespaces)")
	flags.Bool("debug", false, "Log full error details for failed events")
	flags.StringSlice("kinds", registry.DefaultBuiltinKinds(), "Built-in kinds to resolve (see 'release-labeler kinds')")
	flags.String("matcher", matcher.SubstringName, "Ownership matcher: substring or prefix")
	flags.String("resolve-policy", string(resolver.FailFast), "How failed kinds are handled: FailFast or BestEffort")
	flags.Int("resolve-max-concurrency", 0, "Maximum concurrent list calls per event (0 = unbounded)")
	flags.Int("patch-max-concurrency", 0, "Maximum concurrent label writes per event (0 = unbounded)")
	flags.Float64("patch-qps", 0, "Client side rate limit for label writes (0 = unlimited)")
	flags.Int("patch-burst", 0, "Burst for the label write rate limit")
	flags.Bool("optimistic-concurrency", true, "Reject a label write if the object changed since it was read")
	flags.Duration("resync-period", 10*time.Minute, "Informer resync period")
	flags.Int("workers", 1, "Number of events processed in parallel")
	flags.Int("history-keep", 1000, "Number of history records to keep (0 = keep all)")
	flags.Bool("follow-history", false, "Stream finished label writes to stdout as JSON lines (requires --history-db)")
	flags.String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090 (empty disables)")

	for key, flag := range map[string]string{
		"namespace":                   "namespace",
		"debug":                       "debug",
		"kinds":                       "kinds",
		"matcher":                     "matcher",
		"resolve.policy":              "resolve-policy",
		"resolve.maxConcurrency":      "resolve-max-concurrency",
		"patch.maxConcurrency":        "patch-max-concurrency",
		"patch.qps":                   "patch-qps",
		"patch.burst":                 "patch-burst",
		"patch.optimisticConcurrency": "optimistic-concurrency",
		"resyncPeriod":                "resync-period",
		"workers":                     "workers",
		"historyKeep":                 "history-keep",
		"followHistory":               "follow-history",
		"metricsAddr":                 "metrics-addr",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

func run(ctx context.Context, cfg *util.Config) error {
	clients, err := util.NewClientsFromConfig(cfg)
	if err != nil {
		return err
	}

	reg, err := registry.New(clients.Kubernetes, clients.Dynamic, cfg.RegistryConfig())
	if err != nil {
		return fmt.Errorf("failed to build resource registry: %w", err)
	}
	klog.Infof("Resolving kinds %v", reg.Kinds())

	m := metrics.New()

	policy, err := resolver.ParsePolicy(cfg.Resolve.Policy)
	if err != nil {
		return err
	}
	res := resolver.New(reg, resolver.Options{
		Policy:         policy,
		MaxConcurrency: cfg.Resolve.MaxConcurrency,
		Observer:       m,
	})

	match, err := matcher.ForName(cfg.Matcher)
	if err != nil {
		return err
	}

	rec := reconciler.New(reg, reconciler.Options{
		Labels:                cfg.Labels,
		OptimisticConcurrency: cfg.Patch.OptimisticConcurrency,
		QPS:                   cfg.Patch.QPS,
		Burst:                 cfg.Patch.Burst,
	})

	reporters := report.Multi{&report.LogReporter{OwnershipLabel: cfg.Labels.Ownership}, m}
	var store *report.Store
	if cfg.HistoryDB != "" {
		store, err = report.Open(cfg.HistoryDB, false)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.HistoryKeep > 0 {
			if n, err := store.Prune(cfg.HistoryKeep); err != nil {
				klog.Warningf("Failed to prune label history: %v", err)
			} else if n > 0 {
				klog.Infof("Pruned %d old history records", n)
			}
		}
		reporters = append(reporters, store)
	}

	releaseInformer, err := informer.NewInformer(clients.Dynamic, informer.Options{
		Release:      cfg.Release,
		Namespace:    cfg.Namespace,
		ResyncPeriod: cfg.ResyncPeriod,
		TokenLabel:   cfg.Labels.Token,
	})
	if err != nil {
		return err
	}

	c := controller.NewReleaseController(res, match, rec, releaseInformer, controller.Options{
		Labels:              cfg.Labels,
		MaxPatchConcurrency: cfg.Patch.MaxConcurrency,
		Debug:               cfg.Debug,
		Reporter:            reporters,
		Observer:            m,
	})

	eg, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(m)}
		eg.Go(func() error {
			klog.Infof("Serving metrics on %s", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if cfg.FollowHistory && store != nil {
		records := store.Watch(ctx, report.ListOptions{Namespace: cfg.Namespace})
		eg.Go(func() error {
			return util.StreamRecords(os.Stdout, records)
		})
	}

	eg.Go(func() error {
		releaseInformer.Run(ctx.Done())
		return nil
	})
	eg.Go(func() error {
		c.Run(ctx, cfg.Workers)
		return nil
	})

	return eg.Wait()
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}
