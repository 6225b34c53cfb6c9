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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	homenetpaiov1alpha1 "github.com/jr42/homenet-pa/api/v1alpha1"
	"github.com/jr42/homenet-pa/internal/pa"
	"github.com/jr42/homenet-pa/internal/prefix"
)

var _ = Describe("DelegatedPrefix Controller", func() {
	const dpName = "wan-dp"
	var ctx = context.Background()

	Context("with a static prefix", func() {
		It("registers a pa.DP with the core and sets PrefixAcquired", func() {
			cr := &homenetpaiov1alpha1.DelegatedPrefix{}
			cr.SetName(dpName)
			cr.Spec.Static = "2001:db8::/56"

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &DPReconciler{Client: fc, Scheme: testScheme, Core: core}

			// First pass adds the finalizer and requeues.
			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: dpName}})
			Expect(err).NotTo(HaveOccurred())
			// Second pass acquires the static prefix.
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: dpName}})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.dps).To(HaveKey(dpName))
			Expect(reconciler.dps[dpName]).To(HaveLen(1))
			Expect(reconciler.dps[dpName][0].Prefix.String()).To(Equal("2001:db8::/56"))

			var got homenetpaiov1alpha1.DelegatedPrefix
			Expect(fc.Get(ctx, types.NamespacedName{Name: dpName}, &got)).To(Succeed())
			Expect(got.Status.CurrentPrefix).To(Equal("2001:db8::/56"))
			Expect(got.Status.DelegatedPrefixes).To(Equal([]string{"2001:db8::/56"}))
			Expect(got.Status.PrefixSource).To(Equal(homenetpaiov1alpha1.PrefixSourceStatic))
		})

		It("rejects an unparseable static prefix without registering a DP", func() {
			cr := &homenetpaiov1alpha1.DelegatedPrefix{}
			cr.SetName("bad-dp")
			cr.Spec.Static = "not-a-prefix"

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &DPReconciler{Client: fc, Scheme: testScheme, Core: core}

			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: "bad-dp"}})
			Expect(err).NotTo(HaveOccurred())
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: "bad-dp"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.dps).NotTo(HaveKey("bad-dp"))

			var got homenetpaiov1alpha1.DelegatedPrefix
			Expect(fc.Get(ctx, types.NamespacedName{Name: "bad-dp"}, &got)).To(Succeed())
			found := false
			for _, c := range got.Status.Conditions {
				if c.Type == homenetpaiov1alpha1.ConditionTypePrefixAcquired {
					found = true
					Expect(string(c.Status)).To(Equal("False"))
				}
			}
			Expect(found).To(BeTrue())
		})
	})

	Context("with a dynamically acquired delegation", func() {
		It("registers one pa.DP per delegated prefix and lists them all in status", func() {
			cr := &homenetpaiov1alpha1.DelegatedPrefix{}
			cr.SetName(dpName)
			cr.Spec.Acquisition = &homenetpaiov1alpha1.AcquisitionSpec{
				DHCPv6PD: &homenetpaiov1alpha1.DHCPv6PDSpec{Interface: "eth0"},
			}

			receiver := prefix.NewMockReceiver(prefix.SourceDHCPv6PD)
			receiver.Delegate(time.Hour,
				netip.MustParsePrefix("2001:db8:100::/56"),
				netip.MustParsePrefix("2001:db8:200::/60"))

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &DPReconciler{
				Client: fc, Scheme: testScheme, Core: core,
				ReceiverFactory: fixedReceiverFactory{receiver},
			}

			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: dpName}})
			Expect(err).NotTo(HaveOccurred())
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: dpName}})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.dps[dpName]).To(HaveLen(2))

			var got homenetpaiov1alpha1.DelegatedPrefix
			Expect(fc.Get(ctx, types.NamespacedName{Name: dpName}, &got)).To(Succeed())
			Expect(got.Status.CurrentPrefix).To(Equal("2001:db8:100::/56"))
			Expect(got.Status.DelegatedPrefixes).To(Equal([]string{"2001:db8:100::/56", "2001:db8:200::/60"}))

			// A renumber drops the stale registration and adds the new one.
			receiver.Delegate(time.Hour, netip.MustParsePrefix("2001:db8:300::/56"))
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: dpName}})
			Expect(err).NotTo(HaveOccurred())
			Expect(reconciler.dps[dpName]).To(HaveLen(1))
			Expect(reconciler.dps[dpName][0].Prefix.String()).To(Equal("2001:db8:300::/56"))
		})
	})

	Context("when a registered DelegatedPrefix is deleted", func() {
		It("removes every pa.DP from the core", func() {
			cr := &homenetpaiov1alpha1.DelegatedPrefix{}
			cr.SetName(dpName)
			cr.Finalizers = []string{delegatedPrefixFinalizer}

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &DPReconciler{Client: fc, Scheme: testScheme, Core: core}
			dp := &pa.DP{Name: dpName, Prefix: netip.MustParsePrefix("2001:db8::/56")}
			reconciler.dps = map[string][]*pa.DP{dpName: {dp}}
			Expect(core.DPAdd(dp)).To(Succeed())

			Expect(fc.Delete(ctx, cr)).To(Succeed())
			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: dpName}})
			Expect(err).NotTo(HaveOccurred())
			Expect(reconciler.dps).NotTo(HaveKey(dpName))
		})
	})
})

// fixedReceiverFactory hands back a pre-built receiver, sidestepping the
// real DHCPv6/NDP clients in tests.
type fixedReceiverFactory struct {
	receiver prefix.Receiver
}

func (f fixedReceiverFactory) CreateReceiver(prefix.AcquisitionSpec) (prefix.Receiver, error) {
	return f.receiver, nil
}
