/*
Copyright 2026 jr42.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command pad runs the prefix assignment daemon as a Kubernetes
// controller: it wires the distributed prefix assignment engine
// (internal/pa) to the PrefixLink/DelegatedPrefix/AssignmentRule CRDs and
// to the Cilium sync reconcilers.
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	homenetpaiov1alpha1 "github.com/jr42/homenet-pa/api/v1alpha1"
	"github.com/jr42/homenet-pa/internal/controller"
	"github.com/jr42/homenet-pa/internal/pa"
	"github.com/jr42/homenet-pa/internal/prefix"
	"github.com/jr42/homenet-pa/internal/storage"
)

var scheme = runtime.NewScheme()

func init() {
	utilmust(clientgoscheme.AddToScheme(scheme))
	utilmust(homenetpaiov1alpha1.AddToScheme(scheme))
	for _, gvk := range []schema.GroupVersionKind{
		controller.CiliumLBIPPoolGVK,
		controller.CiliumCIDRGroupGVK,
		controller.CiliumBGPAdvertisementGVK,
	} {
		registerUnstructured(scheme, gvk)
	}
}

func utilmust(err error) {
	if err != nil {
		panic(err)
	}
}

func registerUnstructured(s *runtime.Scheme, gvk schema.GroupVersionKind) {
	listGVK := schema.GroupVersionKind{Group: gvk.Group, Version: gvk.Version, Kind: gvk.Kind + "List"}
	s.AddKnownTypeWithName(gvk, &unstructured.Unstructured{})
	s.AddKnownTypeWithName(listGVK, &unstructured.UnstructuredList{})
}

func main() {
	var (
		metricsAddr          string
		probeAddr            string
		enableLeaderElection bool
		storagePath          string
	)
	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8443", "Address the metrics endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "Address the health probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager.")
	flag.StringVar(&storagePath, "storage-path", "/var/lib/homenet-pa/prefixes.db", "Path to the stable-storage cache file.")
	flag.Parse()

	zapLog, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLog.Sync() //nolint:errcheck
	log := zapr.NewLogger(zapLog)
	logf.SetLogger(log)

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "homenet-pa.io",
	})
	if err != nil {
		log.Error(err, "unable to start manager")
		os.Exit(1)
	}

	core := &pa.Core{}
	core.Init(pa.Config{})
	core.SetLogger(log.WithName("pa"))

	// The node ID must be stable across restarts (precedence tie-breaks
	// depend on it); the hostname hash is stable and distinct per node.
	hostname, err := os.Hostname()
	if err != nil {
		log.Error(err, "unable to determine hostname for node ID")
		os.Exit(1)
	}
	sum := sha256.Sum256([]byte(hostname))
	var nodeID pa.NodeID
	copy(nodeID[:], sum[:])
	core.SetNodeID(nodeID)

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		log.Error(err, "unable to seed random rule")
		os.Exit(1)
	}

	store := storage.New(storage.Config{
		Path:       storagePath,
		SaveDelay:  storage.DefaultSaveDelay,
		TokenDelay: storage.DefaultTokenDelay,
		Log:        log.WithName("storage"),
	})
	if err := store.Load(); err != nil {
		log.Error(err, "unable to load storage cache, starting empty", "path", storagePath)
	}
	stopWatch, err := store.Watch()
	if err != nil {
		log.Error(err, "unable to watch storage cache", "path", storagePath)
	} else {
		defer stopWatch() //nolint:errcheck
	}
	core.UserRegister(store)

	appliedCache := controller.NewAppliedPrefixCache()
	core.UserRegister(appliedCache)

	if err = (&controller.LinkReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Core:   core,
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "PrefixLink")
		os.Exit(1)
	}
	if err = (&controller.DPReconciler{
		Client:          mgr.GetClient(),
		Scheme:          mgr.GetScheme(),
		Core:            core,
		ReceiverFactory: prefix.NewReceiverFactory(),
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "DelegatedPrefix")
		os.Exit(1)
	}
	if err = (&controller.RuleReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Core:   core,
		Store:  store,
		Seed:   seed,
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "AssignmentRule")
		os.Exit(1)
	}
	if err = (&controller.PoolSyncReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Cache:  appliedCache,
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "PoolSync")
		os.Exit(1)
	}
	if err = (&controller.BGPSyncReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Cache:  appliedCache,
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "BGPSync")
		os.Exit(1)
	}
	if err = (&controller.ServiceSyncReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "ServiceSync")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		log.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		log.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The manager and the final storage flush run under one errgroup so a
	// failure in either cancels the other and main returns a single error;
	// shutdown only completes once the last dirty prefix has been saved.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mgr.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := store.Save(); err != nil {
			log.Error(err, "final storage flush failed")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error(err, "problem running manager")
		os.Exit(1)
	}
}
