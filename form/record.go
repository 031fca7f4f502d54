package form

import (
	"fmt"
	"strings"
	"time"
)

// Record is one partially-filled contract request. Every field is nullable:
// the zero value means "not yet known", never a fabricated default.
type Record struct {
	ProjectName              string     `json:"project_name,omitempty"`
	CounterpartyName         string     `json:"counterparty_name,omitempty"`
	AmountJPY                int64      `json:"amount_jpy,omitempty"`
	Affiliation              string     `json:"affiliation,omitempty"`
	TargetProduct            string     `json:"target_product,omitempty"`
	ActivityBackground       string     `json:"activity_background,omitempty"`
	CounterpartyRelationship string     `json:"counterparty_relationship,omitempty"`
	ActivityDetails          string     `json:"activity_details,omitempty"`
	CounterpartyType         string     `json:"counterparty_type,omitempty"`
	ContractForm             string     `json:"contract_form,omitempty"`
	RequestDate              *time.Time `json:"request_date,omitempty"`
	DesiredDueDate           *time.Time `json:"desired_due_date,omitempty"`
	ReceivedDate             *time.Time `json:"received_date,omitempty"`
	InfoFromUs               []string   `json:"info_from_us,omitempty"`
	InfoFromThem             []string   `json:"info_from_them,omitempty"`
	DesiredContract          string     `json:"desired_contract,omitempty"`

	// SourceText carries the original meeting notes for provenance.
	// It is audit metadata, not a form field.
	SourceText string `json:"source_text,omitempty"`
}

// Get returns the raw value of a field. Unknown names return (nil, false).
func (r *Record) Get(name string) (any, bool) {
	switch name {
	case FieldProjectName:
		return r.ProjectName, true
	case FieldCounterpartyName:
		return r.CounterpartyName, true
	case FieldAmountJPY:
		return r.AmountJPY, true
	case FieldAffiliation:
		return r.Affiliation, true
	case FieldTargetProduct:
		return r.TargetProduct, true
	case FieldActivityBackground:
		return r.ActivityBackground, true
	case FieldCounterpartyRelationship:
		return r.CounterpartyRelationship, true
	case FieldActivityDetails:
		return r.ActivityDetails, true
	case FieldCounterpartyType:
		return r.CounterpartyType, true
	case FieldContractForm:
		return r.ContractForm, true
	case FieldRequestDate:
		return r.RequestDate, true
	case FieldDesiredDueDate:
		return r.DesiredDueDate, true
	case FieldReceivedDate:
		return r.ReceivedDate, true
	case FieldInfoFromUs:
		return r.InfoFromUs, true
	case FieldInfoFromThem:
		return r.InfoFromThem, true
	case FieldDesiredContract:
		return r.DesiredContract, true
	}
	return nil, false
}

// Set assigns a typed value to a field. The value must already be
// schema-conformant (see package normalize); a type mismatch is an error.
func (r *Record) Set(name string, value any) error {
	def := Lookup(name)
	if def == nil {
		return fmt.Errorf("form: unknown field %q", name)
	}

	switch def.Kind {
	case KindShortText, KindLongText, KindEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("form: field %s wants string, got %T", name, value)
		}
		r.setString(name, s)
	case KindAmountJPY:
		n, ok := toInt64(value)
		if !ok {
			return fmt.Errorf("form: field %s wants integer, got %T", name, value)
		}
		r.AmountJPY = n
	case KindDate:
		t, ok := value.(time.Time)
		if !ok {
			if pt, okp := value.(*time.Time); okp && pt != nil {
				t, ok = *pt, true
			}
		}
		if !ok {
			return fmt.Errorf("form: field %s wants date, got %T", name, value)
		}
		tt := t
		switch name {
		case FieldRequestDate:
			r.RequestDate = &tt
		case FieldDesiredDueDate:
			r.DesiredDueDate = &tt
		case FieldReceivedDate:
			r.ReceivedDate = &tt
		}
	case KindMultiChoice:
		vs, ok := value.([]string)
		if !ok {
			return fmt.Errorf("form: field %s wants string list, got %T", name, value)
		}
		if name == FieldInfoFromUs {
			r.InfoFromUs = vs
		} else {
			r.InfoFromThem = vs
		}
	}
	return nil
}

func (r *Record) setString(name, s string) {
	switch name {
	case FieldProjectName:
		r.ProjectName = s
	case FieldCounterpartyName:
		r.CounterpartyName = s
	case FieldAffiliation:
		r.Affiliation = s
	case FieldTargetProduct:
		r.TargetProduct = s
	case FieldActivityBackground:
		r.ActivityBackground = s
	case FieldCounterpartyRelationship:
		r.CounterpartyRelationship = s
	case FieldActivityDetails:
		r.ActivityDetails = s
	case FieldCounterpartyType:
		r.CounterpartyType = s
	case FieldContractForm:
		r.ContractForm = s
	case FieldDesiredContract:
		r.DesiredContract = s
	}
}

// Clear resets a field to its zero value. Unknown names are ignored.
func (r *Record) Clear(name string) {
	def := Lookup(name)
	if def == nil {
		return
	}
	switch def.Kind {
	case KindShortText, KindLongText, KindEnum:
		r.setString(name, "")
	case KindAmountJPY:
		r.AmountJPY = 0
	case KindDate:
		switch name {
		case FieldRequestDate:
			r.RequestDate = nil
		case FieldDesiredDueDate:
			r.DesiredDueDate = nil
		case FieldReceivedDate:
			r.ReceivedDate = nil
		}
	case KindMultiChoice:
		if name == FieldInfoFromUs {
			r.InfoFromUs = nil
		} else {
			r.InfoFromThem = nil
		}
	}
}

// IsEmpty reports whether a field holds no information yet.
func (r *Record) IsEmpty(name string) bool {
	v, ok := r.Get(name)
	if !ok {
		return true
	}
	switch tv := v.(type) {
	case string:
		return strings.TrimSpace(tv) == ""
	case int64:
		return tv == 0
	case *time.Time:
		return tv == nil
	case []string:
		return len(tv) == 0
	}
	return true
}

// DisplayValue renders a field as the string shown in the form UI.
// Empty fields render as "".
func (r *Record) DisplayValue(name string) string {
	v, ok := r.Get(name)
	if !ok {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	case int64:
		if tv == 0 {
			return ""
		}
		return fmt.Sprintf("%d", tv)
	case *time.Time:
		if tv == nil {
			return ""
		}
		return tv.Format("2006-01-02")
	case []string:
		return strings.Join(tv, "、")
	}
	return ""
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.RequestDate != nil {
		t := *r.RequestDate
		c.RequestDate = &t
	}
	if r.DesiredDueDate != nil {
		t := *r.DesiredDueDate
		c.DesiredDueDate = &t
	}
	if r.ReceivedDate != nil {
		t := *r.ReceivedDate
		c.ReceivedDate = &t
	}
	c.InfoFromUs = append([]string(nil), r.InfoFromUs...)
	c.InfoFromThem = append([]string(nil), r.InfoFromThem...)
	return &c
}

// Map flattens the record into a field name keyed map for export and audit.
// Empty fields are omitted; dates stay as time.Time for the writers to format.
func (r *Record) Map() map[string]any {
	m := make(map[string]any)
	for _, name := range FieldNames() {
		if r.IsEmpty(name) {
			continue
		}
		v, _ := r.Get(name)
		if pt, ok := v.(*time.Time); ok {
			m[name] = *pt
			continue
		}
		m[name] = v
	}
	return m
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
