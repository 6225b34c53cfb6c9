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

package controller

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
)

const (
	// AnnotationLink references the PrefixLink whose converged assignment
	// this resource should track.
	AnnotationLink = "homenet-pa.io/link"
	// AnnotationLastSync is the timestamp set by the operator after update.
	AnnotationLastSync = "homenet-pa.io/last-sync"
	// resyncInterval bounds how long a stale annotated resource can go
	// without picking up a prefix change recorded only in AppliedPrefixCache.
	resyncInterval = 30 * time.Second
)

var (
	// CiliumLBIPPoolGVK is the GroupVersionKind for CiliumLoadBalancerIPPool.
	CiliumLBIPPoolGVK = schema.GroupVersionKind{
		Group:   "cilium.io",
		Version: "v2alpha1",
		Kind:    "CiliumLoadBalancerIPPool",
	}

	// CiliumCIDRGroupGVK is the GroupVersionKind for CiliumCIDRGroup.
	CiliumCIDRGroupGVK = schema.GroupVersionKind{
		Group:   "cilium.io",
		Version: "v2alpha1",
		Kind:    "CiliumCIDRGroup",
	}
)

// PoolSyncReconciler reconciles Cilium pool resources annotated with
// homenet-pa.io/link into the converged prefix pa.Core has applied to
// that Link, read from AppliedPrefixCache.
type PoolSyncReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Cache  *AppliedPrefixCache
}

// +kubebuilder:rbac:groups=cilium.io,resources=ciliumloadbalancerippools,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=cilium.io,resources=ciliumcidrgroups,verbs=get;list;watch;update;patch

func (r *PoolSyncReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	pool := &unstructured.Unstructured{}
	pool.SetGroupVersionKind(CiliumLBIPPoolGVK)
	if err := r.Get(ctx, req.NamespacedName, pool); err != nil {
		pool = &unstructured.Unstructured{}
		pool.SetGroupVersionKind(CiliumCIDRGroupGVK)
		if err := r.Get(ctx, req.NamespacedName, pool); err != nil {
			return ctrl.Result{}, client.IgnoreNotFound(err)
		}
	}

	linkName, ok := pool.GetAnnotations()[AnnotationLink]
	if !ok {
		return ctrl.Result{}, nil
	}

	prefix, ok := r.Cache.Get(linkName)
	if !ok {
		return ctrl.Result{RequeueAfter: 10 * time.Second}, nil
	}

	var updateErr error
	switch pool.GetObjectKind().GroupVersionKind().Kind {
	case "CiliumLoadBalancerIPPool":
		updateErr = unstructured.SetNestedSlice(pool.Object,
			[]interface{}{map[string]interface{}{"cidr": prefix.String()}}, "spec", "blocks")
	case "CiliumCIDRGroup":
		updateErr = unstructured.SetNestedStringSlice(pool.Object, []string{prefix.String()}, "spec", "externalCIDRs")
	default:
		return ctrl.Result{}, nil
	}
	if updateErr != nil {
		return ctrl.Result{}, fmt.Errorf("failed to set pool spec: %w", updateErr)
	}

	r.setLastSyncAnnotation(pool)
	if err := r.Update(ctx, pool); err != nil {
		return ctrl.Result{RequeueAfter: 10 * time.Second}, err
	}

	return ctrl.Result{RequeueAfter: resyncInterval}, nil
}

func (r *PoolSyncReconciler) setLastSyncAnnotation(pool *unstructured.Unstructured) {
	annotations := pool.GetAnnotations()
	if annotations == nil {
		annotations = make(map[string]string)
	}
	annotations[AnnotationLastSync] = time.Now().UTC().Format(time.RFC3339)
	pool.SetAnnotations(annotations)
}

// SetupWithManager sets up the controller with the Manager.
func (r *PoolSyncReconciler) SetupWithManager(mgr ctrl.Manager) error {
	hasLinkAnnotation := predicate.NewPredicateFuncs(func(obj client.Object) bool {
		_, ok := obj.GetAnnotations()[AnnotationLink]
		return ok
	})

	lbIPPool := &unstructured.Unstructured{}
	lbIPPool.SetGroupVersionKind(CiliumLBIPPoolGVK)

	cidrGroup := &unstructured.Unstructured{}
	cidrGroup.SetGroupVersionKind(CiliumCIDRGroupGVK)

	return ctrl.NewControllerManagedBy(mgr).
		Named("poolsync").
		For(lbIPPool, builder.WithPredicates(hasLinkAnnotation)).
		Watches(cidrGroup, &handler.EnqueueRequestForObject{}, builder.WithPredicates(hasLinkAnnotation)).
		Complete(r)
}
