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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	homenetpaiov1alpha1 "github.com/jr42/homenet-pa/api/v1alpha1"
	"github.com/jr42/homenet-pa/internal/pa"
)

var _ = Describe("Link Controller", func() {
	const linkName = "lan0"
	var ctx = context.Background()

	Context("when a new PrefixLink is created", func() {
		It("registers a pa.Link with the core and sets Registered", func() {
			cr := &homenetpaiov1alpha1.PrefixLink{}
			cr.SetName(linkName)
			cr.Spec.Type = "lan"

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &LinkReconciler{Client: fc, Scheme: testScheme, Core: core}

			// First pass adds the finalizer and requeues.
			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: linkName}})
			Expect(err).NotTo(HaveOccurred())

			// Second pass registers the link.
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: linkName}})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.links).To(HaveKey(linkName))
			Expect(reconciler.links[linkName].Type).To(Equal("lan"))

			var got homenetpaiov1alpha1.PrefixLink
			Expect(fc.Get(ctx, types.NamespacedName{Name: linkName}, &got)).To(Succeed())
			found := false
			for _, c := range got.Status.Conditions {
				if c.Type == homenetpaiov1alpha1.ConditionTypeRegistered {
					found = true
					Expect(string(c.Status)).To(Equal("True"))
				}
			}
			Expect(found).To(BeTrue())
		})
	})

	Context("when a registered PrefixLink is deleted", func() {
		It("removes the pa.Link from the core", func() {
			cr := &homenetpaiov1alpha1.PrefixLink{}
			cr.SetName(linkName)
			cr.Finalizers = []string{linkFinalizer}

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &LinkReconciler{Client: fc, Scheme: testScheme, Core: core}
			reconciler.links = map[string]*pa.Link{linkName: {Name: linkName}}
			Expect(core.LinkAdd(reconciler.links[linkName])).To(Succeed())

			Expect(fc.Delete(ctx, cr)).To(Succeed())

			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: linkName}})
			Expect(err).NotTo(HaveOccurred())
			Expect(reconciler.links).NotTo(HaveKey(linkName))
		})
	})
})
