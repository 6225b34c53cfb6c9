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
	"net/netip"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	homenetpaiov1alpha1 "github.com/jr42/homenet-pa/api/v1alpha1"
)

var _ = Describe("ServiceSync Controller", func() {
	const (
		serviceName   = "web"
		serviceNS     = "default"
		dpName        = "wan-delegated"
		rangeName     = "lb-range"
		currentPrefix = "2001:db8:1::/48"
		histPrefix    = "2001:db8:2::/48"
		currentIP     = "2001:db8:1:0:f000::10"
		historicalIP  = "2001:db8:2:0:f000::10"
	)

	ctx := context.Background()

	Context("in ha-mode with an address range", func() {
		var fc client.Client

		BeforeEach(func() {
			dp := &homenetpaiov1alpha1.DelegatedPrefix{
				ObjectMeta: metav1.ObjectMeta{Name: dpName},
				Spec: homenetpaiov1alpha1.DelegatedPrefixSpec{
					AddressRanges: []homenetpaiov1alpha1.AddressRangeSpec{
						{Name: rangeName, Start: "::f000:0:0:1", End: "::f000:0:0:ff"},
					},
					Transition: &homenetpaiov1alpha1.TransitionSpec{
						Mode:             homenetpaiov1alpha1.TransitionModeHA,
						MaxPrefixHistory: 2,
					},
				},
			}
			fc = newFakeClient(dp)
			Expect(fc.Get(ctx, types.NamespacedName{Name: dpName}, dp)).To(Succeed())
			dp.Status = homenetpaiov1alpha1.DelegatedPrefixStatus{
				CurrentPrefix: currentPrefix,
				History: []homenetpaiov1alpha1.PrefixHistoryEntry{
					{Prefix: histPrefix, AcquiredAt: metav1.Now(), State: homenetpaiov1alpha1.PrefixStateDraining},
				},
			}
			Expect(fc.Status().Update(ctx, dp)).To(Succeed())

			svc := &corev1.Service{
				ObjectMeta: metav1.ObjectMeta{
					Name:      serviceName,
					Namespace: serviceNS,
					Annotations: map[string]string{
						AnnotationDelegatedPrefix:     dpName,
						AnnotationServiceAddressRange: rangeName,
					},
				},
				Spec: corev1.ServiceSpec{
					Type:  corev1.ServiceTypeLoadBalancer,
					Ports: []corev1.ServicePort{{Port: 80}},
				},
			}
			Expect(fc.Create(ctx, svc)).To(Succeed())
			svc.Status = corev1.ServiceStatus{
				LoadBalancer: corev1.LoadBalancerStatus{Ingress: []corev1.LoadBalancerIngress{{IP: currentIP}}},
			}
			Expect(fc.Status().Update(ctx, svc)).To(Succeed())
		})

		It("should publish both the current and historical IPs", func() {
			reconciler := &ServiceSyncReconciler{Client: fc, Scheme: testScheme}

			_, err := reconciler.Reconcile(ctx, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: serviceName, Namespace: serviceNS},
			})
			Expect(err).NotTo(HaveOccurred())

			var svc corev1.Service
			Expect(fc.Get(ctx, types.NamespacedName{Name: serviceName, Namespace: serviceNS}, &svc)).To(Succeed())

			annotations := svc.GetAnnotations()
			Expect(annotations[AnnotationExternalDNSTarget]).To(Equal(currentIP))
			Expect(annotations).To(HaveKey(AnnotationCiliumIPs))
			Expect(annotations[AnnotationCiliumIPs]).To(ContainSubstring(currentIP))
			Expect(annotations[AnnotationCiliumIPs]).To(ContainSubstring(historicalIP))
			Expect(annotations).To(HaveKey(AnnotationLastSync))
		})
	})

	Context("in simple mode", func() {
		It("should leave the Service annotations untouched", func() {
			dp := &homenetpaiov1alpha1.DelegatedPrefix{
				ObjectMeta: metav1.ObjectMeta{Name: "wan-simple"},
				Spec: homenetpaiov1alpha1.DelegatedPrefixSpec{
					Transition: &homenetpaiov1alpha1.TransitionSpec{Mode: homenetpaiov1alpha1.TransitionModeSimple},
				},
			}
			svc := &corev1.Service{
				ObjectMeta: metav1.ObjectMeta{
					Name:        "simple-svc",
					Namespace:   serviceNS,
					Annotations: map[string]string{AnnotationDelegatedPrefix: "wan-simple"},
				},
				Spec: corev1.ServiceSpec{Type: corev1.ServiceTypeLoadBalancer},
			}
			fc := newFakeClient(dp, svc)
			reconciler := &ServiceSyncReconciler{Client: fc, Scheme: testScheme}

			_, err := reconciler.Reconcile(ctx, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: "simple-svc", Namespace: serviceNS},
			})
			Expect(err).NotTo(HaveOccurred())

			var got corev1.Service
			Expect(fc.Get(ctx, types.NamespacedName{Name: "simple-svc", Namespace: serviceNS}, &got)).To(Succeed())
			Expect(got.GetAnnotations()).NotTo(HaveKey(AnnotationCiliumIPs))
			Expect(got.GetAnnotations()).NotTo(HaveKey(AnnotationExternalDNSTarget))
		})
	})
})

func TestAddrOffsetRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		target string
		rebase string
		want   string
	}{
		{
			name: "same address", base: "2001:db8::1", target: "2001:db8::1",
			rebase: "2001:db8:9::1", want: "2001:db8:9::1",
		},
		{
			name: "offset within low half", base: "2001:db8::1", target: "2001:db8::10",
			rebase: "2001:db8:2::1", want: "2001:db8:2::10",
		},
		{
			name: "offset spanning the halves", base: "2001:db8::", target: "2001:db8:0:1::ff",
			rebase: "2001:db8:9::", want: "2001:db8:9:1::ff",
		},
		{
			name: "range-anchored offset", base: "2001:db8::f000:0:0:1", target: "2001:db8::f000:0:0:ff",
			rebase: "2001:db8:2::f000:0:0:1", want: "2001:db8:2::f000:0:0:ff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hi, lo := addrOffset(netip.MustParseAddr(tt.base), netip.MustParseAddr(tt.target))
			got := addrAdd(netip.MustParseAddr(tt.rebase), hi, lo)
			if got != netip.MustParseAddr(tt.want) {
				t.Errorf("rebased address = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceSyncAnnotationConstants(t *testing.T) {
	tests := map[string]string{
		AnnotationDelegatedPrefix:     "homenet-pa.io/delegated-prefix",
		AnnotationCiliumIPs:           "lbipam.cilium.io/ips",
		AnnotationExternalDNSTarget:   "external-dns.alpha.kubernetes.io/target",
		AnnotationServiceAddressRange: "homenet-pa.io/service-address-range",
		AnnotationServiceSubnet:       "homenet-pa.io/service-subnet",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("annotation constant = %q, want %q", got, want)
		}
	}
}
