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

var _ = Describe("Rule Controller", func() {
	var ctx = context.Background()

	Context("with a static rule", func() {
		It("registers a pa.Rule filtered by LinkType/DPType", func() {
			const ruleName = "static-wan"
			cr := &homenetpaiov1alpha1.AssignmentRule{}
			cr.SetName(ruleName)
			cr.Spec.Type = homenetpaiov1alpha1.RuleTypeStatic
			cr.Spec.RulePriority = 10
			cr.Spec.PAPriority = 1
			cr.Spec.LinkType = "wan"
			cr.Spec.Static = &homenetpaiov1alpha1.StaticRuleSpec{
				Prefix:           "2001:db8::/56",
				OverridePriority: 5,
			}

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &RuleReconciler{Client: fc, Scheme: testScheme, Core: core}

			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ruleName}})
			Expect(err).NotTo(HaveOccurred())
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ruleName}})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.rules).To(HaveKey(ruleName))
			rule := reconciler.rules[ruleName]
			Expect(rule.Filter).NotTo(BeNil())
			tf, ok := rule.Filter.(*pa.TypeFilter)
			Expect(ok).To(BeTrue())
			Expect(tf.LinkType).To(Equal("wan"))

			var got homenetpaiov1alpha1.AssignmentRule
			Expect(fc.Get(ctx, types.NamespacedName{Name: ruleName}, &got)).To(Succeed())
			found := false
			for _, c := range got.Status.Conditions {
				if c.Type == homenetpaiov1alpha1.ConditionTypeRegistered {
					found = true
					Expect(string(c.Status)).To(Equal("True"))
				}
			}
			Expect(found).To(BeTrue())
		})

		It("rejects a static rule missing .spec.static", func() {
			const ruleName = "broken-static"
			cr := &homenetpaiov1alpha1.AssignmentRule{}
			cr.SetName(ruleName)
			cr.Spec.Type = homenetpaiov1alpha1.RuleTypeStatic

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &RuleReconciler{Client: fc, Scheme: testScheme, Core: core}

			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ruleName}})
			Expect(err).NotTo(HaveOccurred())
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ruleName}})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.rules).NotTo(HaveKey(ruleName))
		})
	})

	Context("with a storage rule but no Store configured", func() {
		It("declines to register and marks the rule Degraded", func() {
			const ruleName = "favourite"
			cr := &homenetpaiov1alpha1.AssignmentRule{}
			cr.SetName(ruleName)
			cr.Spec.Type = homenetpaiov1alpha1.RuleTypeStorage
			cr.Spec.RulePriority = 1
			cr.Spec.PAPriority = 1

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &RuleReconciler{Client: fc, Scheme: testScheme, Core: core}

			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ruleName}})
			Expect(err).NotTo(HaveOccurred())
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ruleName}})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.rules).NotTo(HaveKey(ruleName))

			var got homenetpaiov1alpha1.AssignmentRule
			Expect(fc.Get(ctx, types.NamespacedName{Name: ruleName}, &got)).To(Succeed())
			found := false
			for _, c := range got.Status.Conditions {
				if c.Type == homenetpaiov1alpha1.ConditionTypeDegraded {
					found = true
					Expect(string(c.Status)).To(Equal("True"))
				}
			}
			Expect(found).To(BeTrue())
		})
	})

	Context("when a registered AssignmentRule is deleted", func() {
		It("removes the pa.Rule from the core", func() {
			const ruleName = "adopt-default"
			cr := &homenetpaiov1alpha1.AssignmentRule{}
			cr.SetName(ruleName)
			cr.Finalizers = []string{ruleFinalizer}

			fc := newFakeClient(cr)
			core := &pa.Core{}
			core.Init(pa.Config{})
			reconciler := &RuleReconciler{Client: fc, Scheme: testScheme, Core: core}
			rule := pa.NewAdoptRule(ruleName, 1, 1)
			reconciler.rules = map[string]*pa.Rule{ruleName: rule}
			Expect(core.RuleAdd(rule)).To(Succeed())

			Expect(fc.Delete(ctx, cr)).To(Succeed())
			_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ruleName}})
			Expect(err).NotTo(HaveOccurred())
			Expect(reconciler.rules).NotTo(HaveKey(ruleName))
		})
	})
})
