// Package render produces the printable requisition document. The output is
// derived from the aggregate and never written back to it.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

//go:embed templates/*.html
var templateFS embed.FS

// Converter turns HTML into PDF bytes. report.Client satisfies it.
type Converter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer implements requisition.DocumentRenderer.
type Renderer struct {
	converter       Converter
	secondAuditorID string
	tmpl            *template.Template
	now             func() time.Time
}

var _ requisition.DocumentRenderer = (*Renderer)(nil)

// New parses the document template. secondAuditorID picks the identity whose
// entries fill the second audit signature block.
func New(converter Converter, secondAuditorID string) (*Renderer, error) {
	funcs := template.FuncMap{
		"amount": requisition.FormatAmount,
		"label":  func(v any) string { return requisition.Label(fmt.Sprint(v)) },
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"qty": func(v float64) string { return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".") },
	}
	tmpl, err := template.New("requisition.html").Funcs(funcs).ParseFS(templateFS, "templates/requisition.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}
	return &Renderer{converter: converter, secondAuditorID: secondAuditorID, tmpl: tmpl, now: time.Now}, nil
}

// HTML renders the document markup.
func (r *Renderer) HTML(req requisition.Requisition) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, r.view(req)); err != nil {
		return "", fmt.Errorf("render: execute template: %w", err)
	}
	return buf.String(), nil
}

// Render converts the document to PDF.
func (r *Renderer) Render(ctx context.Context, req requisition.Requisition) ([]byte, error) {
	html, err := r.HTML(req)
	if err != nil {
		return nil, err
	}
	if r.converter == nil {
		return nil, fmt.Errorf("render: no converter configured")
	}
	pdf, err := r.converter.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render: convert %s: %w", req.ID, err)
	}
	return pdf, nil
}

type documentView struct {
	Req         requisition.Requisition
	Kind        requisition.ItemKind
	Lines       []lineView
	Signatures  []signatureBlock
	Outstanding float64
	GeneratedAt time.Time
}

type lineView struct {
	No   int
	Item requisition.Item
	Cost float64
	// one of these is set according to Kind
	Pharmacy  *requisition.PharmacyDetail
	Histology *requisition.HistologyDetail
}

type signatureBlock struct {
	Title  string
	Name   string
	Role   requisition.Role
	Action requisition.Action
	At     time.Time
	Stamp  string
	Image  string
	Note   string
}

func (r *Renderer) view(req requisition.Requisition) documentView {
	v := documentView{
		Req:         req,
		Kind:        requisition.KindFor(req.Type),
		Outstanding: req.Outstanding(),
		GeneratedAt: r.now().UTC(),
	}
	for i, item := range req.Items {
		line := lineView{No: i + 1, Item: item, Cost: requisition.LineCost(item)}
		switch d := item.Detail.(type) {
		case requisition.PharmacyDetail:
			line.Pharmacy = &d
		case requisition.HistologyDetail:
			line.Histology = &d
		}
		v.Lines = append(v.Lines, line)
	}
	v.Signatures = r.signatures(req)
	return v
}

var approving = []requisition.Action{
	requisition.ActionApprove,
	requisition.ActionAdvise,
	requisition.ActionFulfill,
	requisition.ActionRouteToAudit,
	requisition.ActionRouteToStore,
}

// signatures lists one block per signing party that appears in the trail.
func (r *Renderer) signatures(req requisition.Requisition) []signatureBlock {
	trail := req.AuditTrail
	var blocks []signatureBlock
	add := func(title string, entry requisition.AuditEntry, ok bool) {
		if ok {
			blocks = append(blocks, block(title, entry))
		}
	}

	entry, ok := requisition.LatestByActor(trail, req.Requester.ID, requisition.ActionCreate, requisition.ActionResubmit)
	add("Requested by", entry, ok)
	entry, ok = requisition.LatestByRole(trail, requisition.RoleChairman, requisition.ActionApprove)
	add("Chairman review", entry, ok)
	entry, ok = requisition.LatestByRole(trail, requisition.RoleStore, requisition.ActionFulfill)
	add("Store", entry, ok)
	entry, ok = requisition.LatestByRole(trail, requisition.RolePharmacy, requisition.ActionFulfill)
	add("Pharmacy", entry, ok)
	entry, ok = r.firstAudit(trail)
	add("Audit", entry, ok)
	if r.secondAuditorID != "" {
		entry, ok = requisition.LatestByActor(trail, r.secondAuditorID, requisition.ActionApprove)
		add("Second audit", entry, ok)
	}
	entry, ok = requisition.LatestByRole(trail, requisition.RoleChairman, requisition.ActionFinalApprove)
	add("Final approval", entry, ok)
	entry, ok = requisition.LatestByRole(trail, requisition.RoleFinance, requisition.ActionFinalApprove)
	add("Finance", entry, ok)
	return blocks
}

// firstAudit is the newest auditor entry not made by the second auditor.
func (r *Renderer) firstAudit(trail []requisition.AuditEntry) (requisition.AuditEntry, bool) {
	for i := len(trail) - 1; i >= 0; i-- {
		entry := trail[i]
		if entry.ActorRole != requisition.RoleAuditor {
			continue
		}
		if r.secondAuditorID != "" && entry.ActorID == r.secondAuditorID {
			continue
		}
		for _, a := range approving {
			if entry.Action == a {
				return entry, true
			}
		}
	}
	return requisition.AuditEntry{}, false
}

func block(title string, entry requisition.AuditEntry) signatureBlock {
	b := signatureBlock{
		Title:  title,
		Name:   entry.ActorName,
		Role:   entry.ActorRole,
		Action: entry.Action,
		At:     entry.At,
		Note:   entry.Comment,
	}
	if entry.Signature != nil {
		switch entry.Signature.Kind {
		case requisition.SignatureStamp:
			b.Stamp = entry.Signature.Stamp
		case requisition.SignatureImage:
			b.Image = entry.Signature.ImageRef
		}
	}
	return b
}
