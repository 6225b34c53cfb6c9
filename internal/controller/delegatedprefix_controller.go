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
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	homenetpaiov1alpha1 "github.com/jr42/homenet-pa/api/v1alpha1"
	"github.com/jr42/homenet-pa/internal/pa"
	"github.com/jr42/homenet-pa/internal/prefix"
)

// delegatedPrefixFinalizer is distinct from linkFinalizer/ruleFinalizer so
// each resource kind's cleanup can be driven independently, even though
// the literal value happens to match.
const delegatedPrefixFinalizer = "homenet-pa.io/finalizer"

// DPReconciler reconciles DelegatedPrefix resources into the entity
// registry's DP set (pa.Core.DPAdd/DPDel), running a receiver per
// dynamically-acquired DelegatedPrefix.
type DPReconciler struct {
	client.Client
	Scheme          *runtime.Scheme
	Core            *pa.Core
	ReceiverFactory prefix.ReceiverFactory

	mu sync.Mutex
	// dps holds the registered pa.DP set per DelegatedPrefix resource; a
	// single lease can delegate several prefixes.
	dps       map[string][]*pa.DP
	receivers map[string]prefix.Receiver
}

// +kubebuilder:rbac:groups=homenet-pa.io,resources=delegatedprefixes,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=homenet-pa.io,resources=delegatedprefixes/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=homenet-pa.io,resources=delegatedprefixes/finalizers,verbs=update

func (r *DPReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	var cr homenetpaiov1alpha1.DelegatedPrefix
	if err := r.Get(ctx, req.NamespacedName, &cr); err != nil {
		r.cleanup(cr.Name)
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	if !cr.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(&cr, delegatedPrefixFinalizer) {
			r.cleanup(cr.Name)
			controllerutil.RemoveFinalizer(&cr, delegatedPrefixFinalizer)
			if err := r.Update(ctx, &cr); err != nil {
				return ctrl.Result{}, err
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&cr, delegatedPrefixFinalizer) {
		controllerutil.AddFinalizer(&cr, delegatedPrefixFinalizer)
		if err := r.Update(ctx, &cr); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	if cr.Spec.Static != "" {
		return r.reconcileStatic(ctx, &cr)
	}
	return r.reconcileDynamic(ctx, &cr)
}

func (r *DPReconciler) reconcileStatic(ctx context.Context, cr *homenetpaiov1alpha1.DelegatedPrefix) (ctrl.Result, error) {
	network, err := netip.ParsePrefix(cr.Spec.Static)
	if err != nil {
		r.setCondition(cr, homenetpaiov1alpha1.ConditionTypePrefixAcquired, metav1.ConditionFalse, "InvalidStaticPrefix", err.Error())
		_ = r.Status().Update(ctx, cr)
		return ctrl.Result{}, nil
	}
	r.applyDelegation(cr, &prefix.Delegation{
		Prefixes:   []prefix.Delegated{{Network: network.Masked()}},
		Source:     prefix.SourceStatic,
		ReceivedAt: cr.CreationTimestamp.Time,
	})
	r.setCondition(cr, homenetpaiov1alpha1.ConditionTypePrefixAcquired, metav1.ConditionTrue, "PrefixAcquired",
		fmt.Sprintf("static prefix %s", network))
	if err := r.Status().Update(ctx, cr); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *DPReconciler) reconcileDynamic(ctx context.Context, cr *homenetpaiov1alpha1.DelegatedPrefix) (ctrl.Result, error) {
	log := logf.FromContext(ctx)

	receiver, err := r.getOrCreateReceiver(ctx, cr)
	if err != nil {
		log.Error(err, "failed to create receiver")
		r.setCondition(cr, homenetpaiov1alpha1.ConditionTypePrefixAcquired, metav1.ConditionFalse, "ReceiverCreationFailed", err.Error())
		if statusErr := r.Status().Update(ctx, cr); statusErr != nil {
			log.Error(statusErr, "failed to update status")
		}
		return ctrl.Result{RequeueAfter: 30 * time.Second}, nil
	}

	current := receiver.Current()
	if current == nil {
		r.setCondition(cr, homenetpaiov1alpha1.ConditionTypePrefixAcquired, metav1.ConditionFalse, "WaitingForPrefix", "waiting to receive delegation from upstream")
		if err := r.Status().Update(ctx, cr); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: 10 * time.Second}, nil
	}

	if cr.Status.CurrentPrefix != current.Primary().Network.String() {
		r.handlePrefixChange(cr)
	}
	r.applyDelegation(cr, current)

	if expiry := current.Expiry(); !expiry.IsZero() {
		expiresAt := metav1.NewTime(expiry)
		cr.Status.LeaseExpiresAt = &expiresAt
	}

	r.setCondition(cr, homenetpaiov1alpha1.ConditionTypePrefixAcquired, metav1.ConditionTrue, "PrefixAcquired",
		fmt.Sprintf("%d prefix(es) acquired via %s", len(current.Prefixes), receiver.Source()))
	if err := r.Status().Update(ctx, cr); err != nil {
		return ctrl.Result{}, err
	}

	return ctrl.Result{RequeueAfter: r.calculateRequeueTime(current)}, nil
}

// applyDelegation reconciles the pa.DP set for cr against the delegated
// networks and computes downstream address ranges/subnets from the
// primary prefix.
func (r *DPReconciler) applyDelegation(cr *homenetpaiov1alpha1.DelegatedPrefix, d *prefix.Delegation) {
	networks := d.Networks()

	r.mu.Lock()
	registered := r.dps[cr.Name]
	r.mu.Unlock()

	// Drop registrations the upstream no longer delegates, keep the ones
	// it still does, add the rest.
	wanted := make(map[netip.Prefix]bool, len(networks))
	for _, n := range networks {
		wanted[n] = true
	}
	kept := registered[:0:0]
	have := make(map[netip.Prefix]bool, len(registered))
	for _, dp := range registered {
		if wanted[dp.Prefix] {
			kept = append(kept, dp)
			have[dp.Prefix] = true
		} else {
			r.Core.DPDel(dp)
		}
	}
	for _, n := range networks {
		if have[n] {
			continue
		}
		dp := &pa.DP{Name: fmt.Sprintf("%s/%s", cr.Name, n), Prefix: n}
		if err := r.Core.DPAdd(dp); err != nil {
			r.setCondition(cr, homenetpaiov1alpha1.ConditionTypeDegraded, metav1.ConditionTrue, "DPAddFailed", err.Error())
			continue
		}
		kept = append(kept, dp)
	}

	r.mu.Lock()
	if r.dps == nil {
		r.dps = make(map[string][]*pa.DP)
	}
	r.dps[cr.Name] = kept
	r.mu.Unlock()

	primary := d.Primary().Network
	cr.Status.CurrentPrefix = primary.String()
	cr.Status.DelegatedPrefixes = make([]string, len(networks))
	for i, n := range networks {
		cr.Status.DelegatedPrefixes[i] = n.String()
	}
	cr.Status.PrefixSource = sourceToPrefixSource(d.Source)

	if ranges, err := r.calculateAddressRanges(primary, cr.Spec.AddressRanges); err != nil {
		r.setCondition(cr, homenetpaiov1alpha1.ConditionTypeDegraded, metav1.ConditionTrue, "AddressRangeCalculationFailed", err.Error())
	} else {
		cr.Status.AddressRanges = ranges
	}

	if subnets, err := r.calculateSubnets(primary, cr.Spec.Subnets); err != nil {
		r.setCondition(cr, homenetpaiov1alpha1.ConditionTypeDegraded, metav1.ConditionTrue, "SubnetCalculationFailed", err.Error())
	} else {
		cr.Status.Subnets = subnets
		r.setCondition(cr, homenetpaiov1alpha1.ConditionTypeDegraded, metav1.ConditionFalse, "Healthy", "delegated prefix operating normally")
	}
}

func (r *DPReconciler) calculateAddressRanges(base netip.Prefix, specs []homenetpaiov1alpha1.AddressRangeSpec) ([]homenetpaiov1alpha1.AddressRangeStatus, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	configs := make([]prefix.AddressRangeConfig, len(specs))
	for i, s := range specs {
		configs[i] = prefix.AddressRangeConfig{Name: s.Name, Start: s.Start, End: s.End}
	}
	ranges, err := prefix.CalculateAddressRanges(base, configs)
	if err != nil {
		return nil, err
	}
	result := make([]homenetpaiov1alpha1.AddressRangeStatus, len(ranges))
	for i, ar := range ranges {
		result[i] = homenetpaiov1alpha1.AddressRangeStatus{
			Name:  ar.Name,
			Start: ar.Start.String(),
			End:   ar.End.String(),
			CIDR:  prefix.RangeToCIDR(ar.Start, ar.End).String(),
		}
	}
	return result, nil
}

func (r *DPReconciler) calculateSubnets(base netip.Prefix, specs []homenetpaiov1alpha1.SubnetSpec) ([]homenetpaiov1alpha1.SubnetStatus, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	configs := make([]prefix.SubnetConfig, len(specs))
	for i, s := range specs {
		configs[i] = prefix.SubnetConfig{Name: s.Name, Offset: s.Offset, PrefixLength: s.PrefixLength}
	}
	subnets, err := prefix.CalculateSubnets(base, configs)
	if err != nil {
		return nil, err
	}
	result := make([]homenetpaiov1alpha1.SubnetStatus, len(subnets))
	for i, s := range subnets {
		result[i] = homenetpaiov1alpha1.SubnetStatus{Name: s.Name, CIDR: s.CIDR.String()}
	}
	return result, nil
}

func (r *DPReconciler) getOrCreateReceiver(ctx context.Context, cr *homenetpaiov1alpha1.DelegatedPrefix) (prefix.Receiver, error) {
	r.mu.Lock()
	receiver, exists := r.receivers[cr.Name]
	r.mu.Unlock()
	if exists {
		return receiver, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if receiver, exists = r.receivers[cr.Name]; exists {
		return receiver, nil
	}

	if cr.Spec.Acquisition == nil {
		return nil, fmt.Errorf("delegated prefix %q has neither .spec.static nor .spec.acquisition", cr.Name)
	}

	factory := r.ReceiverFactory
	if factory == nil {
		factory = prefix.NewReceiverFactory()
	}
	spec := toAcquisitionSpec(cr.Spec.Acquisition)
	var err error
	receiver, err = factory.CreateReceiver(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create receiver: %w", err)
	}
	if err := receiver.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start receiver: %w", err)
	}

	if r.receivers == nil {
		r.receivers = make(map[string]prefix.Receiver)
	}
	r.receivers[cr.Name] = receiver
	return receiver, nil
}

func toAcquisitionSpec(spec *homenetpaiov1alpha1.AcquisitionSpec) prefix.AcquisitionSpec {
	out := prefix.AcquisitionSpec{}
	if spec.DHCPv6PD != nil {
		out.DHCPv6PD = &prefix.DHCPv6PDSpec{
			Interface:             spec.DHCPv6PD.Interface,
			RequestedPrefixLength: spec.DHCPv6PD.RequestedPrefixLength,
		}
	}
	if spec.RouterAdvertisement != nil {
		out.RouterAdvertisement = &prefix.RouterAdvertisementSpec{
			Interface: spec.RouterAdvertisement.Interface,
			Enabled:   spec.RouterAdvertisement.Enabled,
		}
	}
	return out
}

func (r *DPReconciler) cleanup(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if receiver, ok := r.receivers[name]; ok {
		if err := receiver.Stop(); err != nil {
			logf.Log.Error(err, "failed to stop receiver", "name", name)
		}
		delete(r.receivers, name)
	}
	for _, dp := range r.dps[name] {
		r.Core.DPDel(dp)
	}
	delete(r.dps, name)
}

// handlePrefixChange records the outgoing prefix in history before it's overwritten.
func (r *DPReconciler) handlePrefixChange(cr *homenetpaiov1alpha1.DelegatedPrefix) {
	if cr.Status.CurrentPrefix == "" {
		return
	}
	now := metav1.Now()
	entry := homenetpaiov1alpha1.PrefixHistoryEntry{
		Prefix:       cr.Status.CurrentPrefix,
		AcquiredAt:   cr.CreationTimestamp,
		DeprecatedAt: &now,
		State:        homenetpaiov1alpha1.PrefixStateDraining,
	}
	cr.Status.History = append(cr.Status.History, entry)

	maxHistory := 2
	if cr.Spec.Transition != nil && cr.Spec.Transition.MaxPrefixHistory > 0 {
		maxHistory = cr.Spec.Transition.MaxPrefixHistory
	}
	if len(cr.Status.History) > maxHistory {
		cr.Status.History = cr.Status.History[len(cr.Status.History)-maxHistory:]
	}
}

func (r *DPReconciler) setCondition(cr *homenetpaiov1alpha1.DelegatedPrefix, condType string, status metav1.ConditionStatus, reason, message string) {
	meta.SetStatusCondition(&cr.Status.Conditions, metav1.Condition{
		Type:               condType,
		Status:             status,
		ObservedGeneration: cr.Generation,
		LastTransitionTime: metav1.Now(),
		Reason:             reason,
		Message:            message,
	})
}

func (r *DPReconciler) calculateRequeueTime(d *prefix.Delegation) time.Duration {
	expiry := d.Expiry()
	if expiry.IsZero() {
		return 5 * time.Minute
	}
	requeue := time.Duration(float64(time.Until(expiry)) * 0.8)
	if requeue < time.Minute {
		requeue = time.Minute
	}
	if requeue > 5*time.Minute {
		requeue = 5 * time.Minute
	}
	return requeue
}

func sourceToPrefixSource(s prefix.Source) homenetpaiov1alpha1.PrefixSource {
	switch s {
	case prefix.SourceDHCPv6PD:
		return homenetpaiov1alpha1.PrefixSourceDHCPv6PD
	case prefix.SourceRouterAdvertisement:
		return homenetpaiov1alpha1.PrefixSourceRouterAdvertisement
	case prefix.SourceStatic:
		return homenetpaiov1alpha1.PrefixSourceStatic
	default:
		return homenetpaiov1alpha1.PrefixSourceUnknown
	}
}

// SetupWithManager sets up the controller with the Manager.
func (r *DPReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&homenetpaiov1alpha1.DelegatedPrefix{}).
		Named("delegatedprefix").
		Complete(r)
}
