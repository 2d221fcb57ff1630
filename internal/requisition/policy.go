package requisition

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AuditMode controls whether an audit step can approve or only advise.
type AuditMode string

const (
	AuditAdvisory AuditMode = "advisory"
	AuditApproval AuditMode = "approval"
)

// TypePolicy holds per-type switches.
type TypePolicy struct {
	AuditMode     AuditMode `yaml:"audit_mode,omitempty"`
	SplitOnCreate bool      `yaml:"split_on_create"`
}

// Policy is the configurable part of the workflow.
type Policy struct {
	// SecondAuditorID is the identity that holds AUDIT_2. Empty lets any auditor act there.
	SecondAuditorID string              `yaml:"second_auditor_id"`
	Types           map[Type]TypePolicy `yaml:"types"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		Types: map[Type]TypePolicy{
			TypeLabPurchaseOrder:      {SplitOnCreate: true},
			TypeEquipmentRequest:      {AuditMode: AuditAdvisory},
			TypePharmacyPurchaseOrder: {SplitOnCreate: true},
		},
	}
}

// For returns the policy of t.
func (p Policy) For(t Type) TypePolicy {
	tp := p.Types[t]
	if t == TypeEquipmentRequest && tp.AuditMode == "" {
		tp.AuditMode = AuditAdvisory
	}
	return tp
}

// Validate rejects unknown types and modes.
func (p Policy) Validate() error {
	for t, tp := range p.Types {
		if !t.Valid() {
			return fmt.Errorf("policy: unknown requisition type %q", t)
		}
		switch tp.AuditMode {
		case "":
		case AuditAdvisory, AuditApproval:
			if t != TypeEquipmentRequest {
				return fmt.Errorf("policy: audit_mode is only configurable for %s", TypeEquipmentRequest)
			}
		default:
			return fmt.Errorf("policy: unknown audit_mode %q", tp.AuditMode)
		}
		if tp.SplitOnCreate && t.IsEmergency() {
			return fmt.Errorf("policy: %s carries no supplier items to split", t)
		}
	}
	return nil
}

// ParsePolicy decodes YAML on top of DefaultPolicy.
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	var file Policy
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("policy: decode: %w", err)
	}
	if file.SecondAuditorID != "" {
		policy.SecondAuditorID = file.SecondAuditorID
	}
	for t, tp := range file.Types {
		policy.Types[t] = tp
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// LoadPolicy reads a policy file. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return ParsePolicy(data)
}
