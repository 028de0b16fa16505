package notify

import (
	"strings"
	"time"
)

// Default template bodies, used when a tenant has none configured for a
// channel.
const (
	DefaultSMSTemplate  = "[{{account_name}}] Order received. Delivery: {{delivery_date}} {{delivery_time}}"
	DefaultChatTemplate = "Purchase order from {{account_name}} confirmed. Expected delivery {{delivery_date}} ({{delivery_time}})."
)

// TemplateVars are the values substituted into a notification template.
type TemplateVars struct {
	AccountName  string
	DeliveryDate time.Time
	DeliveryTime string
}

// RenderTemplate substitutes {{account_name}}, {{delivery_date}} and
// {{delivery_time}} placeholders. Unknown placeholders pass through
// untouched so a typo in a tenant template is visible, not silent.
func RenderTemplate(body string, vars TemplateVars) string {
	replacer := strings.NewReplacer(
		"{{account_name}}", vars.AccountName,
		"{{delivery_date}}", vars.DeliveryDate.Format("2006-01-02"),
		"{{delivery_time}}", vars.DeliveryTime,
	)
	return replacer.Replace(body)
}
