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
	"sigs.k8s.io/controller-runtime/pkg/predicate"
)

// CiliumBGPAdvertisementGVK is the GroupVersionKind for CiliumBGPAdvertisement.
var CiliumBGPAdvertisementGVK = schema.GroupVersionKind{
	Group:   "cilium.io",
	Version: "v2alpha1",
	Kind:    "CiliumBGPAdvertisement",
}

const (
	// AnnotationBGPCommunity optionally attaches a BGP community to the advertisement.
	AnnotationBGPCommunity = "homenet-pa.io/bgp-community"
)

// BGPSyncReconciler reconciles CiliumBGPAdvertisement resources annotated
// with homenet-pa.io/link, announcing the Link's converged prefix as
// read from AppliedPrefixCache.
type BGPSyncReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Cache  *AppliedPrefixCache
}

// +kubebuilder:rbac:groups=cilium.io,resources=ciliumbgpadvertisements,verbs=get;list;watch;update;patch

func (r *BGPSyncReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	adv := &unstructured.Unstructured{}
	adv.SetGroupVersionKind(CiliumBGPAdvertisementGVK)
	if err := r.Get(ctx, req.NamespacedName, adv); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	annotations := adv.GetAnnotations()
	linkName, ok := annotations[AnnotationLink]
	if !ok {
		return ctrl.Result{}, nil
	}

	prefix, ok := r.Cache.Get(linkName)
	if !ok {
		return ctrl.Result{RequeueAfter: 10 * time.Second}, nil
	}

	advertisement := map[string]interface{}{
		"advertisementType": "CIDR",
		"cidr": map[string]interface{}{
			"cidrs": []interface{}{prefix.String()},
		},
	}
	if community, ok := annotations[AnnotationBGPCommunity]; ok && community != "" {
		advertisement["attributes"] = map[string]interface{}{
			"communities": map[string]interface{}{
				"standard": []interface{}{community},
			},
		}
	}

	if err := unstructured.SetNestedSlice(adv.Object, []interface{}{advertisement}, "spec", "advertisements"); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to set advertisement spec: %w", err)
	}

	if err := r.Update(ctx, adv); err != nil {
		return ctrl.Result{RequeueAfter: 10 * time.Second}, err
	}

	return ctrl.Result{RequeueAfter: resyncInterval}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *BGPSyncReconciler) SetupWithManager(mgr ctrl.Manager) error {
	hasLinkAnnotation := predicate.NewPredicateFuncs(func(obj client.Object) bool {
		_, ok := obj.GetAnnotations()[AnnotationLink]
		return ok
	})

	bgpAdv := &unstructured.Unstructured{}
	bgpAdv.SetGroupVersionKind(CiliumBGPAdvertisementGVK)

	return ctrl.NewControllerManagedBy(mgr).
		Named("bgpsync").
		For(bgpAdv, builder.WithPredicates(hasLinkAnnotation)).
		Complete(r)
}
