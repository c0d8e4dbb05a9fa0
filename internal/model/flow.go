package model

import (
	"time"
)

// FlowKind identifies which wizard is active. Exactly one flow is active at a
// time; FlowIdle means no step-specific state applies.
type FlowKind string

const (
	FlowIdle          FlowKind = "idle"
	FlowCreateProduct FlowKind = "create-product"
	FlowUpdateProduct FlowKind = "update-product"
	FlowExpireProduct FlowKind = "expire-product"
	FlowViewProduct   FlowKind = "view-product"
)

// CreateStep enumerates the create-product wizard. The scripted handler for
// this flow is a placeholder; the remote chat service drives creation.
type CreateStep string

const (
	CreateStepName CreateStep = "name"
)

// UpdateStep enumerates the update-product wizard.
type UpdateStep string

const (
	UpdateStepIdentify         UpdateStep = "identify"
	UpdateStepShowSummary      UpdateStep = "show-summary"
	UpdateStepSelectAttribute  UpdateStep = "select-attribute"
	UpdateStepUpdateValue      UpdateStep = "update-value"
	UpdateStepConfirm          UpdateStep = "confirm"
	UpdateStepExecute          UpdateStep = "execute"
	UpdateStepAnotherAttribute UpdateStep = "another-attribute"
)

// ExpireStep enumerates the expire-product wizard.
type ExpireStep string

const (
	ExpireStepIdentify        ExpireStep = "identify"
	ExpireStepShowDetails     ExpireStep = "show-details"
	ExpireStepSelectMethod    ExpireStep = "select-method"
	ExpireStepSetDate         ExpireStep = "set-date"
	ExpireStepDependencyCheck ExpireStep = "dependency-check"
	ExpireStepConfirm         ExpireStep = "confirm"
	ExpireStepExecute         ExpireStep = "execute"
)

// ViewStep enumerates the view-product wizard.
type ViewStep string

const (
	ViewStepChooseScope    ViewStep = "choose-scope"
	ViewStepIdentify       ViewStep = "identify"
	ViewStepShowSummary    ViewStep = "show-summary"
	ViewStepSelectDetail   ViewStep = "select-detail"
	ViewStepShowDetail     ViewStep = "show-detail"
	ViewStepAnotherProduct ViewStep = "another-product"
)

// ProductSummary is the scripted catalog record used by identify steps.
type ProductSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SKU            string `json:"sku"`
	Description    string `json:"description"`
	EffectiveStart string `json:"effective_start"`
	EffectiveEnd   string `json:"effective_end"`
	Currency       string `json:"currency,omitempty"`
	OrgUnits       string `json:"org_units,omitempty"`
}

// FlowState is the whole scripted-wizard state for one conversation, a tagged
// union over Kind. Only the step field matching Kind is meaningful; the rest
// hold their zero values. Keeping the union in one struct replaced by value
// rules out inconsistent cross-flow state.
type FlowState struct {
	Kind FlowKind `json:"kind"`

	CreateStep CreateStep `json:"create_step,omitempty"`
	UpdateStep UpdateStep `json:"update_step,omitempty"`
	ExpireStep ExpireStep `json:"expire_step,omitempty"`
	ViewStep   ViewStep   `json:"view_step,omitempty"`

	Product      *ProductSummary `json:"product,omitempty"`
	Attribute    string          `json:"attribute,omitempty"`
	NewValue     string          `json:"new_value,omitempty"`
	ExpireMethod string          `json:"expire_method,omitempty"`
	ExpireDate   string          `json:"expire_date,omitempty"`
	ViewScope    string          `json:"view_scope,omitempty"`
	ViewDetail   string          `json:"view_detail,omitempty"`
}

// IdleFlow returns the zero flow state.
func IdleFlow() FlowState {
	return FlowState{Kind: FlowIdle}
}

// CompletedFlow archives a finished or cancelled wizard: the transcript minus
// the opening greeting, plus a one-line summary of what happened.
type CompletedFlow struct {
	ID        string        `json:"id"`
	Kind      FlowKind      `json:"kind"`
	Title     string        `json:"title"`
	Summary   string        `json:"summary,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Messages  []ChatMessage `json:"messages"`
}
