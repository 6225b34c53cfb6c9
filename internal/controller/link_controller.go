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
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	homenetpaiov1alpha1 "github.com/jr42/homenet-pa/api/v1alpha1"
	"github.com/jr42/homenet-pa/internal/pa"
)

const linkFinalizer = "homenet-pa.io/finalizer"

// LinkReconciler reconciles PrefixLink resources into the entity
// registry's Link set (pa.Core.LinkAdd/LinkDel).
type LinkReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Core   *pa.Core

	mu    sync.Mutex
	links map[string]*pa.Link
}

// +kubebuilder:rbac:groups=homenet-pa.io,resources=prefixlinks,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=homenet-pa.io,resources=prefixlinks/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=homenet-pa.io,resources=prefixlinks/finalizers,verbs=update

func (r *LinkReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	var cr homenetpaiov1alpha1.PrefixLink
	if err := r.Get(ctx, req.NamespacedName, &cr); err != nil {
		r.removeLink(req.Name)
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	if !cr.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(&cr, linkFinalizer) {
			r.removeLink(cr.Name)
			controllerutil.RemoveFinalizer(&cr, linkFinalizer)
			if err := r.Update(ctx, &cr); err != nil {
				return ctrl.Result{}, err
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&cr, linkFinalizer) {
		controllerutil.AddFinalizer(&cr, linkFinalizer)
		if err := r.Update(ctx, &cr); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	r.mu.Lock()
	existing, ok := r.links[cr.Name]
	r.mu.Unlock()
	if ok && existing.Type == cr.Spec.Type {
		return ctrl.Result{}, nil
	}
	if ok {
		r.Core.LinkDel(existing)
	}

	link := &pa.Link{Name: cr.Name, Type: cr.Spec.Type}
	if err := r.Core.LinkAdd(link); err != nil {
		logf.FromContext(ctx).Error(err, "failed to register link")
		r.setCondition(&cr, metav1.ConditionFalse, "RegisterFailed", err.Error())
		_ = r.Status().Update(ctx, &cr)
		return ctrl.Result{}, nil
	}

	r.mu.Lock()
	if r.links == nil {
		r.links = make(map[string]*pa.Link)
	}
	r.links[cr.Name] = link
	r.mu.Unlock()

	r.setCondition(&cr, metav1.ConditionTrue, "Registered", "link registered")
	if err := r.Status().Update(ctx, &cr); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *LinkReconciler) removeLink(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[name]
	if !ok {
		return
	}
	r.Core.LinkDel(link)
	delete(r.links, name)
}

func (r *LinkReconciler) setCondition(cr *homenetpaiov1alpha1.PrefixLink, status metav1.ConditionStatus, reason, message string) {
	meta.SetStatusCondition(&cr.Status.Conditions, metav1.Condition{
		Type:               homenetpaiov1alpha1.ConditionTypeRegistered,
		Status:             status,
		ObservedGeneration: cr.Generation,
		LastTransitionTime: metav1.Now(),
		Reason:             reason,
		Message:            message,
	})
}

// SetupWithManager sets up the controller with the Manager.
func (r *LinkReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&homenetpaiov1alpha1.PrefixLink{}).
		Named("prefixlink").
		Complete(r)
}
