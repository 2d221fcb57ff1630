package requisition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnassignedSupplier is the grouping key for items without a supplier.
const UnassignedSupplier = "Unassigned"

// ItemKind tags the type-specific detail carried by an item.
type ItemKind string

const (
	KindGeneral   ItemKind = "GENERAL"
	KindPharmacy  ItemKind = "PHARMACY"
	KindHistology ItemKind = "HISTOLOGY"
)

// KindFor returns the only item kind a requisition type accepts.
func KindFor(t Type) ItemKind {
	switch t {
	case TypePharmacyPurchaseOrder:
		return KindPharmacy
	case TypeHistologyPayment:
		return KindHistology
	default:
		return KindGeneral
	}
}

// ItemDetail is a closed union; only the detail types in this package implement it.
type ItemDetail interface {
	Kind() ItemKind
	sanitize() ItemDetail
}

// GeneralDetail carries no extra fields.
type GeneralDetail struct{}

// Kind implements ItemDetail.
func (GeneralDetail) Kind() ItemKind { return KindGeneral }

func (d GeneralDetail) sanitize() ItemDetail { return d }

// PharmacyDetail describes a drug line.
type PharmacyDetail struct {
	DosageForm string  `json:"dosage_form,omitempty"`
	Strength   string  `json:"strength,omitempty"`
	PackSize   float64 `json:"pack_size"`
}

// Kind implements ItemDetail.
func (PharmacyDetail) Kind() ItemKind { return KindPharmacy }

func (d PharmacyDetail) sanitize() ItemDetail {
	d.DosageForm = strings.TrimSpace(d.DosageForm)
	d.Strength = strings.TrimSpace(d.Strength)
	d.PackSize = safeNumber(d.PackSize)
	return d
}

// HistologyDetail describes one outsourced histology case.
type HistologyDetail struct {
	PatientName string  `json:"patient_name"`
	PatientID   string  `json:"patient_id"`
	LabNumber   string  `json:"lab_number"`
	Specimen    string  `json:"specimen,omitempty"`
	Surcharge   float64 `json:"surcharge"`
}

// Kind implements ItemDetail.
func (HistologyDetail) Kind() ItemKind { return KindHistology }

func (d HistologyDetail) sanitize() ItemDetail {
	d.PatientName = strings.TrimSpace(d.PatientName)
	d.PatientID = strings.TrimSpace(d.PatientID)
	d.LabNumber = strings.TrimSpace(d.LabNumber)
	d.Specimen = strings.TrimSpace(d.Specimen)
	d.Surcharge = safeNumber(d.Surcharge)
	return d
}

// Item is one requisition line.
type Item struct {
	Name          string
	Quantity      float64
	UnitCost      float64
	EstimatedCost float64
	Supplier      string
	StockLevel    float64
	Category      string
	Detail        ItemDetail
}

type itemJSON struct {
	Name          string          `json:"name"`
	Quantity      float64         `json:"quantity"`
	UnitCost      float64         `json:"unit_cost"`
	EstimatedCost float64         `json:"estimated_cost"`
	Supplier      string          `json:"supplier"`
	StockLevel    float64         `json:"stock_level"`
	Category      string          `json:"category,omitempty"`
	Kind          ItemKind        `json:"kind"`
	Detail        json.RawMessage `json:"detail,omitempty"`
}

// MarshalJSON encodes the detail under an explicit kind discriminator.
func (i Item) MarshalJSON() ([]byte, error) {
	out := itemJSON{
		Name:          i.Name,
		Quantity:      i.Quantity,
		UnitCost:      i.UnitCost,
		EstimatedCost: i.EstimatedCost,
		Supplier:      i.Supplier,
		StockLevel:    i.StockLevel,
		Category:      i.Category,
		Kind:          KindGeneral,
	}
	if i.Detail != nil {
		out.Kind = i.Detail.Kind()
		raw, err := json.Marshal(i.Detail)
		if err != nil {
			return nil, err
		}
		out.Detail = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the detail variant selected by kind.
func (i *Item) UnmarshalJSON(data []byte) error {
	var in itemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*i = Item{
		Name:          in.Name,
		Quantity:      in.Quantity,
		UnitCost:      in.UnitCost,
		EstimatedCost: in.EstimatedCost,
		Supplier:      in.Supplier,
		StockLevel:    in.StockLevel,
		Category:      in.Category,
	}
	detail, err := decodeDetail(in.Kind, in.Detail)
	if err != nil {
		return err
	}
	i.Detail = detail
	return nil
}

func decodeDetail(kind ItemKind, raw json.RawMessage) (ItemDetail, error) {
	empty := len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
	switch kind {
	case "":
		return nil, nil
	case KindGeneral:
		return GeneralDetail{}, nil
	case KindPharmacy:
		var d PharmacyDetail
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	case KindHistology:
		var d HistologyDetail
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("requisition: unknown item kind %q", kind)
	}
}

// SanitizeItem returns a copy whose numeric fields are safe to aggregate.
func SanitizeItem(item Item) Item {
	item.Name = strings.TrimSpace(item.Name)
	item.Quantity = safeNumber(item.Quantity)
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	item.UnitCost = safeNumber(item.UnitCost)
	item.EstimatedCost = safeNumber(item.EstimatedCost)
	item.StockLevel = safeNumber(item.StockLevel)
	item.Supplier = strings.TrimSpace(item.Supplier)
	item.Category = strings.TrimSpace(item.Category)
	if item.Detail != nil {
		item.Detail = item.Detail.sanitize()
	}
	return item
}

// SanitizeItems sanitizes every item into a new slice.
func SanitizeItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = SanitizeItem(item)
	}
	return out
}

// LineCost is (unit cost, or estimated cost when no unit cost) × quantity, plus any surcharge.
func LineCost(item Item) float64 {
	base := item.UnitCost
	if base <= 0 {
		base = item.EstimatedCost
	}
	cost := base * item.Quantity
	if d, ok := item.Detail.(HistologyDetail); ok {
		cost += d.Surcharge
	}
	return round2(cost)
}

// TotalOf sums LineCost over items.
func TotalOf(items []Item) float64 {
	var total float64
	for _, item := range items {
		total += LineCost(item)
	}
	return round2(total)
}

// SupplierKey returns the grouping key used by the splitter.
func SupplierKey(item Item) string {
	if s := strings.TrimSpace(item.Supplier); s != "" {
		return s
	}
	return UnassignedSupplier
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	return append([]Item(nil), items...)
}

func safeNumber(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Number accepts JSON numbers, numeric strings, empty strings and null.
type Number string

// UnmarshalJSON keeps the raw textual value; parsing happens in Float.
func (n *Number) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		*n = ""
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*n = Number(s)
	default:
		*n = Number(trimmed)
	}
	return nil
}

// Float parses the value; anything unparseable is 0.
func (n Number) Float() float64 {
	s := strings.TrimSpace(string(n))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return safeNumber(f)
}

// RawItem is loosely typed line-item input from forms, JSON or spreadsheets.
type RawItem struct {
	Name          string   `json:"name"`
	Quantity      Number   `json:"quantity"`
	UnitCost      Number   `json:"unit_cost"`
	EstimatedCost Number   `json:"estimated_cost"`
	Supplier      *string  `json:"supplier"`
	StockLevel    Number   `json:"stock_level"`
	Category      string   `json:"category"`
	Kind          ItemKind `json:"kind"`
	DosageForm    string   `json:"dosage_form"`
	Strength      string   `json:"strength"`
	PackSize      Number   `json:"pack_size"`
	PatientName   string   `json:"patient_name"`
	PatientID     string   `json:"patient_id"`
	LabNumber     string   `json:"lab_number"`
	Specimen      string   `json:"specimen"`
	Surcharge     Number   `json:"surcharge"`
	// Detail accepts the nested form items are returned in.
	Detail *RawDetail `json:"detail"`
}

// RawDetail is the loosely typed nested detail of a RawItem.
type RawDetail struct {
	DosageForm  string `json:"dosage_form"`
	Strength    string `json:"strength"`
	PackSize    Number `json:"pack_size"`
	PatientName string `json:"patient_name"`
	PatientID   string `json:"patient_id"`
	LabNumber   string `json:"lab_number"`
	Specimen    string `json:"specimen"`
	Surcharge   Number `json:"surcharge"`
}

func firstText(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNumber(values ...Number) Number {
	for _, v := range values {
		if strings.TrimSpace(string(v)) != "" {
			return v
		}
	}
	return ""
}

// ItemFromRaw converts raw input into a sanitized item.
func ItemFromRaw(raw RawItem) Item {
	item := Item{
		Name:          raw.Name,
		Quantity:      raw.Quantity.Float(),
		UnitCost:      raw.UnitCost.Float(),
		EstimatedCost: raw.EstimatedCost.Float(),
		StockLevel:    raw.StockLevel.Float(),
		Category:      raw.Category,
	}
	if raw.Supplier != nil {
		item.Supplier = *raw.Supplier
	}
	var nested RawDetail
	if raw.Detail != nil {
		nested = *raw.Detail
	}
	switch ItemKind(strings.ToUpper(strings.TrimSpace(string(raw.Kind)))) {
	case KindPharmacy:
		item.Detail = PharmacyDetail{
			DosageForm: firstText(raw.DosageForm, nested.DosageForm),
			Strength:   firstText(raw.Strength, nested.Strength),
			PackSize:   firstNumber(raw.PackSize, nested.PackSize).Float(),
		}
	case KindHistology:
		item.Detail = HistologyDetail{
			PatientName: firstText(raw.PatientName, nested.PatientName),
			PatientID:   firstText(raw.PatientID, nested.PatientID),
			LabNumber:   firstText(raw.LabNumber, nested.LabNumber),
			Specimen:    firstText(raw.Specimen, nested.Specimen),
			Surcharge:   firstNumber(raw.Surcharge, nested.Surcharge).Float(),
		}
	case KindGeneral:
		item.Detail = GeneralDetail{}
	}
	return SanitizeItem(item)
}

// ItemsFromRaw converts a batch of raw items. A nil batch stays nil.
func ItemsFromRaw(raws []RawItem) []Item {
	if raws == nil {
		return nil
	}
	out := make([]Item, 0, len(raws))
	for _, raw := range raws {
		out = append(out, ItemFromRaw(raw))
	}
	return out
}
