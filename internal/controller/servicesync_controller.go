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
	"encoding/binary"
	"math/bits"
	"net/netip"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	homenetpaiov1alpha1 "github.com/jr42/homenet-pa/api/v1alpha1"
	"github.com/jr42/homenet-pa/internal/prefix"
)

const (
	// AnnotationDelegatedPrefix names the DelegatedPrefix a Service's IP
	// is carved from, and triggers HA-mode tracking for that Service.
	AnnotationDelegatedPrefix = "homenet-pa.io/delegated-prefix"

	// AnnotationCiliumIPs is the Cilium LB-IPAM annotation for requesting specific IPs.
	AnnotationCiliumIPs = "lbipam.cilium.io/ips"

	// AnnotationExternalDNSTarget is the external-dns annotation for overriding DNS target.
	AnnotationExternalDNSTarget = "external-dns.alpha.kubernetes.io/target"

	// AnnotationServiceAddressRange selects which .spec.addressRanges entry
	// to carve the Service's IP from (Mode 1).
	AnnotationServiceAddressRange = "homenet-pa.io/service-address-range"

	// AnnotationServiceSubnet selects which .spec.subnets entry to carve
	// the Service's IP from (Mode 2).
	AnnotationServiceSubnet = "homenet-pa.io/service-subnet"
)

// ServiceSyncReconciler reconciles LoadBalancer Services during
// ha-mode DelegatedPrefix transitions, keyed off
// DelegatedPrefix.Status.History (populated by
// DPReconciler.handlePrefixChange). While a prefix is draining, both
// the outgoing and incoming addresses are published via
// lbipam.cilium.io/ips so existing connections survive the cutover,
// while external-dns is pointed only at the new address.
type ServiceSyncReconciler struct {
	client.Client
	Scheme *runtime.Scheme
}

// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=homenet-pa.io,resources=delegatedprefixes,verbs=get;list;watch

func (r *ServiceSyncReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := logf.FromContext(ctx)

	var svc corev1.Service
	if err := r.Get(ctx, req.NamespacedName, &svc); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
		return ctrl.Result{}, nil
	}

	annotations := svc.GetAnnotations()
	if annotations == nil {
		return ctrl.Result{}, nil
	}

	dpName, hasDP := annotations[AnnotationDelegatedPrefix]
	if !hasDP {
		return ctrl.Result{}, nil
	}

	var dp homenetpaiov1alpha1.DelegatedPrefix
	if err := r.Get(ctx, types.NamespacedName{Name: dpName}, &dp); err != nil {
		log.Error(err, "failed to get DelegatedPrefix", "name", dpName)
		return ctrl.Result{RequeueAfter: 30 * time.Second}, nil
	}

	if dp.Spec.Transition == nil || dp.Spec.Transition.Mode != homenetpaiov1alpha1.TransitionModeHA {
		return ctrl.Result{}, nil
	}

	log.V(1).Info("syncing service for ha-mode transition", "service", req.NamespacedName, "delegatedPrefix", dpName)

	currentServiceIP := r.getCurrentServiceIP(&svc)
	if currentServiceIP == "" {
		return ctrl.Result{RequeueAfter: 5 * time.Second}, nil
	}

	allIPs, currentIP, err := r.calculateServiceIPs(&dp, &svc, currentServiceIP)
	if err != nil {
		log.Error(err, "failed to calculate service IPs")
		return ctrl.Result{RequeueAfter: 10 * time.Second}, nil
	}

	updated := false
	newAnnotations := make(map[string]string, len(annotations)+2)
	for k, v := range annotations {
		newAnnotations[k] = v
	}

	allIPsStr := strings.Join(allIPs, ",")
	if annotations[AnnotationCiliumIPs] != allIPsStr {
		newAnnotations[AnnotationCiliumIPs] = allIPsStr
		updated = true
	}

	if annotations[AnnotationExternalDNSTarget] != currentIP {
		newAnnotations[AnnotationExternalDNSTarget] = currentIP
		updated = true
	}

	if updated {
		newAnnotations[AnnotationLastSync] = time.Now().UTC().Format(time.RFC3339)
		svc.SetAnnotations(newAnnotations)
		if err := r.Update(ctx, &svc); err != nil {
			return ctrl.Result{RequeueAfter: 5 * time.Second}, err
		}
		log.Info("service annotations updated", "service", req.NamespacedName, "allIPs", allIPsStr, "dnsTarget", currentIP)
	}

	return ctrl.Result{}, nil
}

// getCurrentServiceIP returns the current IPv6 ingress IP, preferring it
// over any IPv4 ingress recorded alongside it.
func (r *ServiceSyncReconciler) getCurrentServiceIP(svc *corev1.Service) string {
	for _, ingress := range svc.Status.LoadBalancer.Ingress {
		if ingress.IP == "" {
			continue
		}
		if addr, err := netip.ParseAddr(ingress.IP); err == nil && addr.Is6() {
			return ingress.IP
		}
	}
	for _, ingress := range svc.Status.LoadBalancer.Ingress {
		if ingress.IP != "" {
			return ingress.IP
		}
	}
	return ""
}

// calculateServiceIPs returns the set of IPs (current plus up to
// Transition.MaxPrefixHistory historical) that correspond to the
// Service's current address, and the address within the current
// prefix specifically. The Service's offset from its range/subnet
// anchor is preserved across every historical prefix, so the historical
// addresses are the "same" address renumbered.
func (r *ServiceSyncReconciler) calculateServiceIPs(
	dp *homenetpaiov1alpha1.DelegatedPrefix,
	svc *corev1.Service,
	currentServiceIP string,
) ([]string, string, error) {
	annotations := svc.GetAnnotations()

	maxHistory := 2
	if dp.Spec.Transition != nil && dp.Spec.Transition.MaxPrefixHistory > 0 {
		maxHistory = dp.Spec.Transition.MaxPrefixHistory
	}

	currentAddr, err := netip.ParseAddr(currentServiceIP)
	if err != nil {
		return nil, "", err
	}

	anchor := r.anchorFor(dp, annotations)
	if anchor == nil {
		return []string{currentServiceIP}, currentServiceIP, nil
	}
	allIPs, err := r.historicalIPs(dp, currentAddr, anchor, maxHistory)
	if err != nil || allIPs == nil {
		return []string{currentServiceIP}, currentServiceIP, nil
	}
	return allIPs, currentAddr.String(), nil
}

// anchorFor resolves the Service's annotations to a function yielding,
// for any delegated prefix, the base address its offset is measured
// from: an address range's start (Mode 1) or a subnet's network address
// (Mode 2). Nil when the Service doesn't pin either.
func (r *ServiceSyncReconciler) anchorFor(
	dp *homenetpaiov1alpha1.DelegatedPrefix,
	annotations map[string]string,
) func(netip.Prefix) (netip.Addr, error) {
	if rangeName := annotations[AnnotationServiceAddressRange]; rangeName != "" {
		for _, spec := range dp.Spec.AddressRanges {
			if spec.Name != rangeName {
				continue
			}
			cfg := prefix.AddressRangeConfig{Name: spec.Name, Start: spec.Start, End: spec.End}
			return func(base netip.Prefix) (netip.Addr, error) {
				ar, err := prefix.CalculateAddressRange(base, cfg)
				return ar.Start, err
			}
		}
	}
	if subnetName := annotations[AnnotationServiceSubnet]; subnetName != "" {
		for _, spec := range dp.Spec.Subnets {
			if spec.Name != subnetName {
				continue
			}
			cfg := prefix.SubnetConfig{Name: spec.Name, Offset: spec.Offset, PrefixLength: spec.PrefixLength}
			return func(base netip.Prefix) (netip.Addr, error) {
				s, err := prefix.CalculateSubnet(base, cfg)
				return s.CIDR.Addr(), err
			}
		}
	}
	return nil
}

// historicalIPs carries currentAddr's offset from the current prefix's
// anchor over onto each drained prefix still in the history window.
func (r *ServiceSyncReconciler) historicalIPs(
	dp *homenetpaiov1alpha1.DelegatedPrefix,
	currentAddr netip.Addr,
	anchor func(netip.Prefix) (netip.Addr, error),
	maxHistory int,
) ([]string, error) {
	currentPrefix, err := netip.ParsePrefix(dp.Status.CurrentPrefix)
	if err != nil {
		return nil, err
	}
	currentAnchor, err := anchor(currentPrefix)
	if err != nil {
		return nil, err
	}

	offHi, offLo := addrOffset(currentAnchor, currentAddr)
	allIPs := []string{currentAddr.String()}

	for i, hist := range dp.Status.History {
		if i >= maxHistory {
			break
		}
		histPrefix, err := netip.ParsePrefix(hist.Prefix)
		if err != nil {
			continue
		}
		histAnchor, err := anchor(histPrefix)
		if err != nil {
			continue
		}
		if histIP := addrAdd(histAnchor, offHi, offLo); histIP.IsValid() {
			allIPs = append(allIPs, histIP.String())
		}
	}
	return allIPs, nil
}

// addrOffset returns target-base as a 128-bit value in two uint64
// halves.
func addrOffset(base, target netip.Addr) (hi, lo uint64) {
	b, t := base.As16(), target.As16()
	var borrow uint64
	lo, borrow = bits.Sub64(binary.BigEndian.Uint64(t[8:]), binary.BigEndian.Uint64(b[8:]), 0)
	hi, _ = bits.Sub64(binary.BigEndian.Uint64(t[:8]), binary.BigEndian.Uint64(b[:8]), borrow)
	return hi, lo
}

// addrAdd adds a two-uint64 offset to base, wrapping at 2^128.
func addrAdd(base netip.Addr, hi, lo uint64) netip.Addr {
	b := base.As16()
	newLo, carry := bits.Add64(binary.BigEndian.Uint64(b[8:]), lo, 0)
	newHi, _ := bits.Add64(binary.BigEndian.Uint64(b[:8]), hi, carry)
	binary.BigEndian.PutUint64(b[:8], newHi)
	binary.BigEndian.PutUint64(b[8:], newLo)
	return netip.AddrFrom16(b)
}

// SetupWithManager sets up the controller with the Manager.
func (r *ServiceSyncReconciler) SetupWithManager(mgr ctrl.Manager) error {
	hasAnnotation := predicate.NewPredicateFuncs(func(obj client.Object) bool {
		svc, ok := obj.(*corev1.Service)
		if !ok || svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
			return false
		}
		_, ok = svc.GetAnnotations()[AnnotationDelegatedPrefix]
		return ok
	})

	return ctrl.NewControllerManagedBy(mgr).
		Named("servicesync").
		For(&corev1.Service{}, builder.WithPredicates(hasAnnotation)).
		Watches(&homenetpaiov1alpha1.DelegatedPrefix{}, handler.EnqueueRequestsFromMapFunc(r.findReferencingServices)).
		Complete(r)
}

// findReferencingServices maps a DelegatedPrefix change to the
// LoadBalancer Services whose homenet-pa.io/delegated-prefix
// annotation names it, so a prefix rollover enqueues their reconciles
// immediately rather than waiting on the next Service resync.
func (r *ServiceSyncReconciler) findReferencingServices(ctx context.Context, obj client.Object) []reconcile.Request {
	dp, ok := obj.(*homenetpaiov1alpha1.DelegatedPrefix)
	if !ok {
		return nil
	}
	if dp.Spec.Transition == nil || dp.Spec.Transition.Mode != homenetpaiov1alpha1.TransitionModeHA {
		return nil
	}

	log := logf.FromContext(ctx)

	var services corev1.ServiceList
	if err := r.List(ctx, &services); err != nil {
		log.V(1).Info("failed to list services", "error", err)
		return nil
	}

	var requests []reconcile.Request
	for _, svc := range services.Items {
		if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
			continue
		}
		if svc.GetAnnotations()[AnnotationDelegatedPrefix] == dp.Name {
			requests = append(requests, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: svc.Name, Namespace: svc.Namespace},
			})
		}
	}

	if len(requests) > 0 {
		log.Info("delegated prefix changed, enqueuing referencing services", "delegatedPrefix", dp.Name, "count", len(requests))
	}
	return requests
}
