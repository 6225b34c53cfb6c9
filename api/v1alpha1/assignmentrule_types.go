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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// RuleType selects which built-in rule (internal/pa.Rule constructor) an
// AssignmentRule configures.
// +kubebuilder:validation:Enum=static;random;adopt;storage
type RuleType string

const (
	RuleTypeStatic  RuleType = "static"
	RuleTypeRandom  RuleType = "random"
	RuleTypeAdopt   RuleType = "adopt"
	RuleTypeStorage RuleType = "storage"
)

// AssignmentRuleSpec configures one entry in the rule dispatch engine.
type AssignmentRuleSpec struct {
	// Type selects the rule implementation.
	// +required
	Type RuleType `json:"type"`

	// RulePriority is this rule's tie-breaking priority among rules that
	// accept the same pair.
	// +required
	RulePriority uint16 `json:"rulePriority"`

	// PAPriority is the advertised priority the rule assigns to its
	// accepted prefixes.
	// +optional
	// +kubebuilder:default=1
	PAPriority int32 `json:"paPriority,omitempty"`

	// LinkType and DPType, when set, restrict this rule to Links/DPs
	// carrying the matching PrefixLink/DelegatedPrefix type tag.
	// +optional
	LinkType string `json:"linkType,omitempty"`
	// +optional
	DPType string `json:"dpType,omitempty"`

	// Static configures a Type: static rule.
	// +optional
	Static *StaticRuleSpec `json:"static,omitempty"`

	// Random configures a Type: random rule.
	// +optional
	Random *RandomRuleSpec `json:"random,omitempty"`
}

// StaticRuleSpec pins a pair to a fixed prefix.
type StaticRuleSpec struct {
	// Prefix is the fixed CIDR this rule proposes, when it fits inside
	// the LDP's DP.
	// +required
	Prefix string `json:"prefix"`

	// OverridePriority is the ADVP priority at or above which this rule
	// declines in favor of the peer's Best Assignment.
	// +optional
	// +kubebuilder:default=0
	OverridePriority int32 `json:"overridePriority,omitempty"`

	// OverrideRulePriority is the published RulePriority at or above
	// which this rule declines to re-propose once already published.
	// +optional
	OverrideRulePriority int32 `json:"overrideRulePriority,omitempty"`

	// Safety, when true, makes this rule decline whenever any Best
	// Assignment exists at all, regardless of priority.
	// +optional
	Safety bool `json:"safety,omitempty"`
}

// RandomRuleSpec configures pseudo-random prefix selection.
type RandomRuleSpec struct {
	// DesiredPrefixLength is the prefix length to aim for.
	// +required
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=128
	DesiredPrefixLength int `json:"desiredPrefixLength"`

	// RandomSetSize is the minimum candidate-address space to accumulate
	// before sampling (pa_conf.h random_set_size).
	// +optional
	// +kubebuilder:default=256
	RandomSetSize int `json:"randomSetSize,omitempty"`

	// PseudoRandomTentatives bounds the deterministic prand() attempts
	// before falling back to a uniform pick (pa_conf.h pseudo_random_tentatives).
	// +optional
	// +kubebuilder:default=10
	PseudoRandomTentatives int `json:"pseudoRandomTentatives,omitempty"`
}

// AssignmentRuleStatus reports the rule's registration state.
type AssignmentRuleStatus struct {
	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster,shortName=arule
// +kubebuilder:printcolumn:name="Type",type=string,JSONPath=`.spec.type`
// +kubebuilder:printcolumn:name="Priority",type=integer,JSONPath=`.spec.rulePriority`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// AssignmentRule is the Schema for the assignmentrules API.
type AssignmentRule struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// +required
	Spec AssignmentRuleSpec `json:"spec"`
	// +optional
	Status AssignmentRuleStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// AssignmentRuleList contains a list of AssignmentRule.
type AssignmentRuleList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []AssignmentRule `json:"items"`
}

func init() {
	SchemeBuilder.Register(&AssignmentRule{}, &AssignmentRuleList{})
}
