// Package export reads and writes requisition workbooks.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

const (
	registerSheet = "Register"
	itemsSheet    = "Items"
	dateLayout    = "2006-01-02 15:04"
)

// ErrNoHeader is returned when an import sheet has no recognisable name column.
var ErrNoHeader = errors.New("export: sheet has no item name column")

// Workbook implements requisition.Spreadsheet on XLSX files.
type Workbook struct{}

var _ requisition.Spreadsheet = Workbook{}

// WriteRegister writes one register row per requisition and one row per line item.
func (Workbook) WriteRegister(w io.Writer, reqs []requisition.Requisition) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), registerSheet); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return fmt.Errorf("export: add sheet: %w", err)
	}

	header := []any{"ID", "Parent", "Type", "Stage", "Requester", "Department", "Urgency",
		"Items", "Total", "Paid", "Outstanding", "Payment status", "Reminders", "Created", "Updated"}
	if err := f.SetSheetRow(registerSheet, "A1", &header); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	itemHeader := []any{"Requisition", "Item", "Supplier", "Quantity", "Unit cost", "Line total"}
	if err := f.SetSheetRow(itemsSheet, "A1", &itemHeader); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}

	itemRow := 2
	for i, req := range reqs {
		row := []any{
			req.ID, req.ParentID, requisition.Label(req.Type), requisition.Label(req.Stage),
			req.Requester.Name, req.Department, requisition.Label(req.Urgency),
			len(req.Items), req.TotalCost, req.AmountPaid, req.Outstanding(),
			requisition.Label(req.PaymentStatus), req.ReminderCount,
			req.CreatedAt.UTC().Format(dateLayout), req.UpdatedAt.UTC().Format(dateLayout),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(registerSheet, cell, &row); err != nil {
			return fmt.Errorf("export: row %s: %w", req.ID, err)
		}
		for _, item := range req.Items {
			line := []any{req.ID, item.Name, item.Supplier, item.Quantity, item.UnitCost, requisition.LineCost(item)}
			cell, err := excelize.CoordinatesToCellName(1, itemRow)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(itemsSheet, cell, &line); err != nil {
				return fmt.Errorf("export: item row %s: %w", req.ID, err)
			}
			itemRow++
		}
	}
	if err := f.SetPanes(registerSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("export: freeze header: %w", err)
	}
	return f.Write(w)
}

type column func(raw *requisition.RawItem, value string)

// columns maps normalised header captions to item fields.
var columns = map[string]column{
	"name":           func(r *requisition.RawItem, v string) { r.Name = v },
	"item":           func(r *requisition.RawItem, v string) { r.Name = v },
	"description":    func(r *requisition.RawItem, v string) { r.Name = v },
	"quantity":       func(r *requisition.RawItem, v string) { r.Quantity = requisition.Number(v) },
	"qty":            func(r *requisition.RawItem, v string) { r.Quantity = requisition.Number(v) },
	"unit cost":      func(r *requisition.RawItem, v string) { r.UnitCost = requisition.Number(v) },
	"price":          func(r *requisition.RawItem, v string) { r.UnitCost = requisition.Number(v) },
	"fee":            func(r *requisition.RawItem, v string) { r.UnitCost = requisition.Number(v) },
	"estimated cost": func(r *requisition.RawItem, v string) { r.EstimatedCost = requisition.Number(v) },
	"supplier":       setSupplier,
	"vendor":         setSupplier,
	"stock level":    func(r *requisition.RawItem, v string) { r.StockLevel = requisition.Number(v) },
	"category":       func(r *requisition.RawItem, v string) { r.Category = v },
	"kind":           func(r *requisition.RawItem, v string) { r.Kind = requisition.ItemKind(strings.ToUpper(v)) },
	"dosage form":    func(r *requisition.RawItem, v string) { r.DosageForm = v },
	"strength":       func(r *requisition.RawItem, v string) { r.Strength = v },
	"pack size":      func(r *requisition.RawItem, v string) { r.PackSize = requisition.Number(v) },
	"patient name":   func(r *requisition.RawItem, v string) { r.PatientName = v },
	"patient id":     func(r *requisition.RawItem, v string) { r.PatientID = v },
	"lab number":     func(r *requisition.RawItem, v string) { r.LabNumber = v },
	"specimen":       func(r *requisition.RawItem, v string) { r.Specimen = v },
	"surcharge":      func(r *requisition.RawItem, v string) { r.Surcharge = requisition.Number(v) },
}

func setSupplier(r *requisition.RawItem, v string) {
	if v == "" {
		return
	}
	r.Supplier = &v
}

func normaliseHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ", ".", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ReadItems reads line items from the active sheet. The first row is the header;
// unknown columns are ignored and blank rows skipped.
func (Workbook) ReadItems(r io.Reader) ([]requisition.RawItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("export: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("export: read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}

	setters := make([]column, len(rows[0]))
	named := false
	for i, caption := range rows[0] {
		key := normaliseHeader(caption)
		setters[i] = columns[key]
		if key == "name" || key == "item" || key == "description" || key == "patient name" {
			named = true
		}
	}
	if !named {
		return nil, ErrNoHeader
	}

	var out []requisition.RawItem
	for _, row := range rows[1:] {
		var (
			raw   requisition.RawItem
			blank = true
		)
		for i, cell := range row {
			if i >= len(setters) || setters[i] == nil {
				continue
			}
			value := strings.TrimSpace(cell)
			if value != "" {
				blank = false
			}
			setters[i](&raw, value)
		}
		if blank {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}
