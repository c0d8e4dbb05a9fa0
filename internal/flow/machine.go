// Package flow implements the scripted wizard state machine. Advance is pure:
// it consumes the current flow state and one line of user input and returns
// the next state plus the scripted assistant replies. Unrecognized input at a
// decision point re-prompts with the same menu rather than erroring.
package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/zuora-seed/catalog-assistant/internal/model"
)

// Result is the outcome of one scripted transition.
type Result struct {
	State   model.FlowState
	Replies []string
	Toast   *model.Toast
	// Completed marks the flow finished or cancelled; the caller archives the
	// transcript and returns the conversation to idle.
	Completed bool
	Summary   string
}

// StarterPrompt maps a quick action to the user prompt sent through the chat
// path when the action is started from the sidebar.
func StarterPrompt(kind model.FlowKind) string {
	switch kind {
	case model.FlowCreateProduct:
		return "I want to create a product."
	case model.FlowUpdateProduct:
		return "I want to update an existing product."
	case model.FlowExpireProduct:
		return "I want to expire a product by setting an end date."
	case model.FlowViewProduct:
		return "I want to view product details from my catalog."
	}
	return ""
}

// ActionName is the human name of a flow.
func ActionName(kind model.FlowKind) string {
	switch kind {
	case model.FlowCreateProduct:
		return "Create Product"
	case model.FlowUpdateProduct:
		return "Update Product"
	case model.FlowExpireProduct:
		return "Expire Product"
	case model.FlowViewProduct:
		return "View Product"
	}
	return ""
}

// Title is the archive title of a completed flow.
func Title(kind model.FlowKind) string {
	switch kind {
	case model.FlowCreateProduct:
		return "Product Creation Flow"
	case model.FlowUpdateProduct:
		return "Product Update Flow"
	case model.FlowExpireProduct:
		return "Product Expiration Flow"
	case model.FlowViewProduct:
		return "Product View Flow"
	}
	return "Completed Flow"
}

// Start enters a flow at its initial step and returns the opening scripted
// replies.
func Start(kind model.FlowKind) (model.FlowState, []string) {
	state := model.FlowState{Kind: kind}
	replies := []string{
		fmt.Sprintf("Understood. Let's start with %s. I'm fetching relevant details from Zuora.", ActionName(kind)),
	}

	switch kind {
	case model.FlowCreateProduct:
		state.CreateStep = model.CreateStepName
	case model.FlowUpdateProduct:
		state.UpdateStep = model.UpdateStepIdentify
	case model.FlowExpireProduct:
		state.ExpireStep = model.ExpireStepIdentify
	case model.FlowViewProduct:
		state.ViewStep = model.ViewStepChooseScope
		replies = append(replies,
			"Would you like to view details of a specific product or all products in the catalog?")
	}

	return state, replies
}

// Advance applies one line of user input to the active flow.
func Advance(state model.FlowState, input string) Result {
	switch state.Kind {
	case model.FlowUpdateProduct:
		return advanceUpdate(state, input)
	case model.FlowExpireProduct:
		return advanceExpire(state, input)
	case model.FlowViewProduct:
		return advanceView(state, input)
	case model.FlowCreateProduct:
		// Creation is driven by the remote chat service; the scripted handler
		// is intentionally a no-op.
		return Result{State: state}
	}
	return Result{State: state}
}

func isYes(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	return s == "yes" || s == "y"
}

func productLabel(p *model.ProductSummary) string {
	if p == nil {
		return "product"
	}
	return p.Description
}

const attributeMenu = "Please select what you'd like to update:\n" +
	"1. Name\n2. SKU\n3. Description\n4. Effective Start Date\n5. Effective End Date\n6. Custom Fields\n7. Product Rate Plans\n\n" +
	"Type the number or name."

var updateAttributes = map[string]string{
	"1":             "Name",
	"2":             "SKU",
	"3":             "Description",
	"4":             "Effective Start Date",
	"5":             "Effective End Date",
	"6":             "Custom Fields",
	"7":             "Product Rate Plans",
	"name":          "Name",
	"sku":           "SKU",
	"description":   "Description",
	"start date":    "Effective Start Date",
	"end date":      "Effective End Date",
	"custom fields": "Custom Fields",
	"rate plans":    "Product Rate Plans",
}

func advanceUpdate(state model.FlowState, input string) Result {
	switch state.UpdateStep {
	case model.UpdateStepIdentify:
		product := lookupUpdateProduct(input)
		state.Product = product
		state.UpdateStep = model.UpdateStepShowSummary
		return Result{State: state, Replies: []string{fmt.Sprintf(
			"Found product: %s\n\nProduct ID: %s\nSKU: %s\nEffective Start: %s\nEffective End: %s\nCurrency: %s\n\nWhat would you like to update?",
			product.Description, product.ID, product.SKU, product.EffectiveStart, product.EffectiveEnd, product.Currency)}}

	case model.UpdateStepShowSummary:
		state.UpdateStep = model.UpdateStepSelectAttribute
		return Result{State: state, Replies: []string{attributeMenu}}

	case model.UpdateStepSelectAttribute:
		selected, ok := updateAttributes[strings.ToLower(strings.TrimSpace(input))]
		if !ok {
			return Result{State: state, Replies: []string{
				"Please select a valid option (1-7 or type the attribute name)."}}
		}
		state.Attribute = selected
		state.UpdateStep = model.UpdateStepUpdateValue
		return Result{State: state, Replies: []string{fmt.Sprintf("What's the new value for %s?", selected)}}

	case model.UpdateStepUpdateValue:
		state.NewValue = input
		state.UpdateStep = model.UpdateStepConfirm
		return Result{State: state, Replies: []string{fmt.Sprintf(
			"⚠️ Note: This change will be effective for new subscriptions only.\n\n✅ Product: %s\n🔁 Change: %s → %s\n\nDo you want me to proceed with this update?",
			productLabel(state.Product), state.Attribute, input)}}

	case model.UpdateStepConfirm:
		state.UpdateStep = model.UpdateStepAnotherAttribute
		if isYes(input) {
			return Result{State: state, Replies: []string{
				"✅ Update submitted successfully.",
				"Would you like to update another attribute?"}}
		}
		return Result{State: state, Replies: []string{
			"Okay, no changes applied. Would you like to update a different attribute?"}}

	case model.UpdateStepAnotherAttribute:
		if isYes(input) {
			state.UpdateStep = model.UpdateStepSelectAttribute
			return Result{State: state, Replies: []string{attributeMenu}}
		}
		return Result{
			State:     state,
			Replies:   []string{"Update complete! What would you like to do next?"},
			Completed: true,
			Summary:   fmt.Sprintf("Updated %s for %s", state.Attribute, productLabel(state.Product)),
		}
	}
	return Result{State: state}
}

func advanceExpire(state model.FlowState, input string) Result {
	switch state.ExpireStep {
	case model.ExpireStepIdentify:
		product := lookupExpireProduct(input)
		state.Product = product
		state.ExpireStep = model.ExpireStepShowDetails
		return Result{State: state, Replies: []string{fmt.Sprintf(
			"Found product: %s\n\nProduct ID: %s\nEffective Start: %s\nEffective End: %s\n\nWould you like to change its End Date to expire it?",
			product.Description, product.ID, product.EffectiveStart, product.EffectiveEnd)}}

	case model.ExpireStepShowDetails:
		if !isYes(input) {
			return Result{
				State:     state,
				Replies:   []string{"Okay, no changes will be made. Returning to main menu."},
				Completed: true,
				Summary:   fmt.Sprintf("Viewed expiration details for %s", productLabel(state.Product)),
			}
		}
		state.ExpireStep = model.ExpireStepSelectMethod
		return Result{State: state, Replies: []string{
			"Choose expiration method:\n1️⃣ Set a new Effective End Date\n2️⃣ Expire immediately (today's date)\n3️⃣ Schedule for a future date\n\nType 1, 2, or 3."}}

	case model.ExpireStepSelectMethod:
		methods := map[string]string{"1": "new-date", "2": "immediate", "3": "scheduled"}
		method, ok := methods[strings.TrimSpace(input)]
		if !ok {
			return Result{State: state, Replies: []string{"Please choose a valid option (1, 2, or 3)."}}
		}
		state.ExpireMethod = method
		if method == "immediate" {
			today := time.Now().Format("2006-01-02")
			state.ExpireDate = today
			state.ExpireStep = model.ExpireStepDependencyCheck
			return Result{State: state, Replies: []string{fmt.Sprintf(
				"Setting End Date to today (%s).\n\nBefore expiring the product, I'll check if there are any active or future-dated rate plans linked to it. Continue even if active rate plans exist?",
				today)}}
		}
		state.ExpireStep = model.ExpireStepSetDate
		return Result{State: state, Replies: []string{
			"Please provide the date in YYYY-MM-DD format (e.g., 2025-10-30)."}}

	case model.ExpireStepSetDate:
		state.ExpireDate = strings.TrimSpace(input)
		state.ExpireStep = model.ExpireStepDependencyCheck
		return Result{State: state, Replies: []string{fmt.Sprintf(
			"Setting End Date to %s.\n\nBefore expiring the product, I'll check if there are any active or future-dated rate plans linked to it. Continue even if active rate plans exist?",
			state.ExpireDate)}}

	case model.ExpireStepDependencyCheck:
		if !isYes(input) {
			return Result{
				State:     state,
				Replies:   []string{"Okay, canceling expiration. No changes applied."},
				Completed: true,
				Summary:   fmt.Sprintf("Cancelled expiration of %s", productLabel(state.Product)),
			}
		}
		state.ExpireStep = model.ExpireStepConfirm
		return Result{State: state, Replies: []string{fmt.Sprintf(
			"✅ Product: %s\n🗓️ New Effective End Date: %s\n\nDo you confirm this update?",
			productLabel(state.Product), state.ExpireDate)}}

	case model.ExpireStepConfirm:
		if isYes(input) {
			return Result{
				State:     state,
				Replies:   []string{"✅ Product expired successfully."},
				Toast:     &model.Toast{Message: "Product expired successfully", Type: model.ToastSuccess},
				Completed: true,
				Summary:   fmt.Sprintf("Expired %s with end date %s", productLabel(state.Product), state.ExpireDate),
			}
		}
		return Result{
			State:     state,
			Replies:   []string{"Okay, no changes applied."},
			Completed: true,
			Summary:   fmt.Sprintf("Cancelled expiration of %s", productLabel(state.Product)),
		}
	}
	return Result{State: state}
}

func advanceView(state model.FlowState, input string) Result {
	lower := strings.ToLower(strings.TrimSpace(input))

	switch state.ViewStep {
	case model.ViewStepChooseScope:
		switch {
		case strings.Contains(lower, "specific"):
			state.ViewScope = "specific"
			state.ViewStep = model.ViewStepIdentify
			return Result{State: state, Replies: []string{"Please provide the Product Name, ID, or SKU."}}
		case strings.Contains(lower, "all"):
			state.ViewScope = "all"
			state.ViewStep = model.ViewStepShowSummary
			return Result{State: state, Replies: []string{
				"Here are all products in your catalog:\n\n1. Solar Plan Basic (SOLAR-001)\n2. Solar Plan Premium (SOLAR-PREM-001)\n3. Enterprise SaaS Plan (ENT-SAAS-001)\n\nWould you like to view details of a specific product?"}}
		default:
			return Result{State: state, Replies: []string{"Please specify 'specific product' or 'all products'."}}
		}

	case model.ViewStepIdentify:
		product := lookupViewProduct(input)
		state.Product = product
		state.ViewStep = model.ViewStepShowSummary
		return Result{State: state, Replies: []string{fmt.Sprintf(
			"Product ID: %s\nSKU: %s\nEffective Start: %s\nEffective End: %s\nOrg Units: %s\n\nWould you like to view more details?",
			product.ID, product.SKU, product.EffectiveStart, product.EffectiveEnd, product.OrgUnits)}}

	case model.ViewStepShowSummary:
		if isYes(input) {
			state.ViewStep = model.ViewStepSelectDetail
			return Result{State: state, Replies: []string{viewDetailMenu}}
		}
		state.ViewStep = model.ViewStepAnotherProduct
		return Result{State: state, Replies: []string{
			"Okay. Would you like to view another product or return to the catalog list?"}}

	case model.ViewStepSelectDetail:
		details := map[string]string{"1": "Product Info", "2": "Rate Plans & Charges", "3": "Custom Fields"}
		detail, ok := details[strings.TrimSpace(input)]
		if !ok {
			return Result{State: state, Replies: []string{"Please choose a valid option (1, 2, or 3)."}}
		}
		state.ViewDetail = detail
		state.ViewStep = model.ViewStepShowDetail
		return Result{State: state, Replies: []string{viewDetailReply(detail, state.Product)}}

	case model.ViewStepShowDetail:
		if isYes(input) {
			state.ViewStep = model.ViewStepSelectDetail
			return Result{State: state, Replies: []string{viewDetailMenu}}
		}
		state.ViewStep = model.ViewStepAnotherProduct
		return Result{State: state, Replies: []string{
			"Would you like to view another product or return to the catalog list?"}}

	case model.ViewStepAnotherProduct:
		if isYes(input) || strings.Contains(lower, "another") {
			state.ViewStep = model.ViewStepIdentify
			return Result{State: state, Replies: []string{"Please provide the Product Name, ID, or SKU."}}
		}
		return Result{
			State:     state,
			Replies:   []string{"Returning to main menu."},
			Completed: true,
			Summary:   fmt.Sprintf("Viewed details for %s", productLabel(state.Product)),
		}
	}
	return Result{State: state}
}

const viewDetailMenu = "What would you like to view?\n1️⃣ Product Info (Name, SKU, Description, Dates)\n2️⃣ Rate Plans & Charges (nested list view)\n3️⃣ Custom Fields\n\nType 1, 2, or 3."

func viewDetailReply(detail string, product *model.ProductSummary) string {
	switch detail {
	case "Product Info":
		return fmt.Sprintf(
			"Product Information:\n\nName: %s\nSKU: %s\nDescription: Premium solar energy plan with advanced features\nEffective Start: %s\nEffective End: %s\n\nWould you like to view another detail type?",
			productLabel(product), product.SKU, product.EffectiveStart, product.EffectiveEnd)
	case "Rate Plans & Charges":
		return "Rate Plans & Charges:\n\n📋 Annual Plan\n  └─ Flat Fee: $999/year\n  └─ Setup Fee: $100 (one-time)\n\n📋 Monthly Plan\n  └─ Per-Unit: $5/unit\n  └─ Usage: $0.10/API call\n\nWould you like to view another detail type?"
	default:
		return "Custom Fields:\n\nRegion: North America\nTier: Premium\nContract Type: Enterprise\n\nWould you like to view another detail type?"
	}
}

// Summary builds the archive summary for a flow that was abandoned without a
// terminal transition (e.g. reset mid-flow).
func Summary(state model.FlowState) string {
	label := productLabel(state.Product)
	switch state.Kind {
	case model.FlowUpdateProduct:
		return fmt.Sprintf("Updated %s for %s", state.Attribute, label)
	case model.FlowExpireProduct:
		return fmt.Sprintf("Expired %s with end date %s", label, state.ExpireDate)
	case model.FlowViewProduct:
		return fmt.Sprintf("Viewed details for %s", label)
	case model.FlowCreateProduct:
		return "Created product draft"
	}
	return ""
}
