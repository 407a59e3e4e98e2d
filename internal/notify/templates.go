package notify

import (
	"html/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const layout = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f7; padding: 20px;">
<div style="max-width: 600px; margin: auto; background-color: #ffffff; padding: 24px; border-radius: 8px;">
{{template "content" .}}
<p style="margin-top: 32px; color: #888888; font-size: 12px;">KeyVault Marketplace</p>
</div>
</body>
</html>`

func page(content string) *template.Template {
	return template.Must(template.Must(template.New("layout").Parse(layout)).New("content").Parse(content))
}

// RefundData is the view model of every refund email.
type RefundData struct {
	RefundID    uuid.UUID
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	Status      string
	AdminNotes  string
	Deadline    time.Time
	ProductName string
}

var (
	RefundSubmittedTemplate = page(`<h2>New refund request</h2>
<p>A refund of <strong>R$ {{.Amount.StringFixed 2}}</strong> was requested for order {{.OrderID}} ({{.ProductName}}).</p>
<p>The seller has until {{.Deadline.Format "02/01/2006 15:04 MST"}} to respond.</p>`)

	RefundMoreInfoTemplate = page(`<h2>More information needed</h2>
<p>Your refund request {{.RefundID}} for order {{.OrderID}} needs more information.</p>
{{if .AdminNotes}}<p style="background-color: #f0f0f0; padding: 12px;">{{.AdminNotes}}</p>{{end}}
<p>Reply in the refund conversation so the review can continue.</p>`)

	RefundDecidedTemplate = page(`<h2>Refund request {{.Status}}</h2>
<p>Your refund request {{.RefundID}} for order {{.OrderID}} was <strong>{{.Status}}</strong>.</p>
{{if eq .Status "approved"}}<p>R$ {{.Amount.StringFixed 2}} will be sent to your PIX key.</p>{{end}}
{{if .AdminNotes}}<p>{{.AdminNotes}}</p>{{end}}`)

	RefundEscalatedTemplate = page(`<h2>Refund escalated</h2>
<p>The seller did not answer refund request {{.RefundID}} (order {{.OrderID}}, R$ {{.Amount.StringFixed 2}}) before {{.Deadline.Format "02/01/2006 15:04 MST"}}.</p>
<p>The request is waiting for an admin decision.</p>`)
)
