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
	"net/netip"
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
	"github.com/jr42/homenet-pa/internal/storage"
)

const ruleFinalizer = "homenet-pa.io/finalizer"

// RuleReconciler reconciles AssignmentRule resources into the rule
// dispatch engine's registry (pa.Core.RuleAdd/RuleDel).
type RuleReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Core   *pa.Core
	Store  *storage.Store
	// Seed is mixed into every Random rule's pseudo-random tentatives so
	// distinct nodes probe distinct candidates.
	Seed []byte

	mu    sync.Mutex
	rules map[string]*pa.Rule
}

// +kubebuilder:rbac:groups=homenet-pa.io,resources=assignmentrules,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=homenet-pa.io,resources=assignmentrules/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=homenet-pa.io,resources=assignmentrules/finalizers,verbs=update

func (r *RuleReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := logf.FromContext(ctx)

	var cr homenetpaiov1alpha1.AssignmentRule
	if err := r.Get(ctx, req.NamespacedName, &cr); err != nil {
		r.removeRule(req.Name)
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	if !cr.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(&cr, ruleFinalizer) {
			r.removeRule(cr.Name)
			controllerutil.RemoveFinalizer(&cr, ruleFinalizer)
			if err := r.Update(ctx, &cr); err != nil {
				return ctrl.Result{}, err
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&cr, ruleFinalizer) {
		controllerutil.AddFinalizer(&cr, ruleFinalizer)
		if err := r.Update(ctx, &cr); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	rule, err := r.buildRule(&cr)
	if err != nil {
		log.Error(err, "failed to build rule")
		r.setCondition(&cr, homenetpaiov1alpha1.ConditionTypeDegraded, metav1.ConditionTrue, "BuildFailed", err.Error())
		_ = r.Status().Update(ctx, &cr)
		return ctrl.Result{}, nil
	}

	r.removeRule(cr.Name)
	if err := r.Core.RuleAdd(rule); err != nil {
		log.Error(err, "failed to register rule")
		r.setCondition(&cr, homenetpaiov1alpha1.ConditionTypeDegraded, metav1.ConditionTrue, "RegisterFailed", err.Error())
		_ = r.Status().Update(ctx, &cr)
		return ctrl.Result{}, nil
	}

	r.mu.Lock()
	if r.rules == nil {
		r.rules = make(map[string]*pa.Rule)
	}
	r.rules[cr.Name] = rule
	r.mu.Unlock()

	r.setCondition(&cr, homenetpaiov1alpha1.ConditionTypeRegistered, metav1.ConditionTrue, "Registered", "rule registered")
	r.setCondition(&cr, homenetpaiov1alpha1.ConditionTypeDegraded, metav1.ConditionFalse, "Healthy", "rule operating normally")
	if err := r.Status().Update(ctx, &cr); err != nil {
		return ctrl.Result{}, err
	}

	return ctrl.Result{}, nil
}

func (r *RuleReconciler) removeRule(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[name]
	if !ok {
		return
	}
	r.Core.RuleDel(rule)
	delete(r.rules, name)
}

// buildRule translates an AssignmentRuleSpec into the matching
// internal/pa rule constructor.
func (r *RuleReconciler) buildRule(cr *homenetpaiov1alpha1.AssignmentRule) (*pa.Rule, error) {
	spec := cr.Spec
	var rule *pa.Rule
	switch spec.Type {
	case homenetpaiov1alpha1.RuleTypeAdopt:
		rule = pa.NewAdoptRule(cr.Name, spec.RulePriority, uint8(spec.PAPriority))
	case homenetpaiov1alpha1.RuleTypeStatic:
		if spec.Static == nil {
			return nil, fmt.Errorf("static rule %q missing .spec.static", cr.Name)
		}
		prefix, err := netip.ParsePrefix(spec.Static.Prefix)
		if err != nil {
			return nil, fmt.Errorf("static rule %q: %w", cr.Name, err)
		}
		rule = pa.NewStaticRule(pa.StaticRuleConfig{
			Name:                 cr.Name,
			Prefix:               prefix,
			PAPriority:           uint8(spec.PAPriority),
			RulePriority:         spec.RulePriority,
			OverridePriority:     uint8(spec.Static.OverridePriority),
			OverrideRulePriority: uint16(spec.Static.OverrideRulePriority),
			Safety:               spec.Static.Safety,
		})
	case homenetpaiov1alpha1.RuleTypeRandom:
		if spec.Random == nil {
			return nil, fmt.Errorf("random rule %q missing .spec.random", cr.Name)
		}
		rule = pa.NewRandomRule(pa.RandomRuleConfig{
			Name:                   cr.Name,
			RulePriority:           spec.RulePriority,
			PAPriority:             uint8(spec.PAPriority),
			DesiredPrefixLen:       spec.Random.DesiredPrefixLength,
			RandomSetSize:          uint32(spec.Random.RandomSetSize),
			PseudoRandomTentatives: spec.Random.PseudoRandomTentatives,
			Seed:                   append(append([]byte{}, r.Seed...), cr.Name...),
		})
	case homenetpaiov1alpha1.RuleTypeStorage:
		if r.Store == nil {
			return nil, fmt.Errorf("storage rule %q: no Store configured", cr.Name)
		}
		rule = storage.NewStorageRule(r.Store, spec.RulePriority, uint8(spec.PAPriority))
	default:
		return nil, fmt.Errorf("unknown rule type %q", spec.Type)
	}

	if spec.LinkType != "" || spec.DPType != "" {
		rule.Filter = &pa.TypeFilter{LinkType: spec.LinkType, DPType: spec.DPType}
	}
	return rule, nil
}

func (r *RuleReconciler) setCondition(cr *homenetpaiov1alpha1.AssignmentRule, condType string, status metav1.ConditionStatus, reason, message string) {
	meta.SetStatusCondition(&cr.Status.Conditions, metav1.Condition{
		Type:               condType,
		Status:             status,
		ObservedGeneration: cr.Generation,
		LastTransitionTime: metav1.Now(),
		Reason:             reason,
		Message:            message,
	})
}

// SetupWithManager sets up the controller with the Manager.
func (r *RuleReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&homenetpaiov1alpha1.AssignmentRule{}).
		Named("assignmentrule").
		Complete(r)
}
