package ruletable

import (
	"github.com/ehr/comorbidity/internal/domain/comorbidity"
)

// Document is the on-disk form of one rule set.
type Document struct {
	Scheme     string             `yaml:"scheme" json:"scheme"`
	Version    string             `yaml:"version" json:"version"`
	Year       comorbidity.Year   `yaml:"year" json:"year"`
	Categories []CategoryDocument `yaml:"categories" json:"categories"`
}

// CategoryDocument declares one category. Exactly one of Codes or Both is set.
type CategoryDocument struct {
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Weight       int           `yaml:"weight" json:"weight"`
	Codes        []string      `yaml:"codes,omitempty" json:"codes,omitempty"`
	Both         *BothDocument `yaml:"both,omitempty" json:"both,omitempty"`
	OverriddenBy []string      `yaml:"overridden_by,omitempty" json:"overridden_by,omitempty"`
}

// BothDocument declares the two code groups of a co-occurrence category.
type BothDocument struct {
	GroupA []string `yaml:"group_a" json:"group_a"`
	GroupB []string `yaml:"group_b" json:"group_b"`
}

// RuleSet builds and validates the rule set described by the document.
func (d *Document) RuleSet() (*comorbidity.RuleSet, error) {
	rules := make([]comorbidity.CategoryRule, 0, len(d.Categories))
	for _, c := range d.Categories {
		rule := comorbidity.CategoryRule{
			Name:         c.Name,
			Description:  c.Description,
			Weight:       c.Weight,
			OverriddenBy: c.OverriddenBy,
		}
		switch {
		case c.Both != nil:
			rule.Match = comorbidity.Both{GroupA: c.Both.GroupA, GroupB: c.Both.GroupB}
		case len(c.Codes) > 0:
			rule.Match = comorbidity.AnyOf{Codes: c.Codes}
		}
		rules = append(rules, rule)
	}
	return comorbidity.NewRuleSet(d.Scheme, d.Version, int(d.Year), rules)
}

// FromRuleSet renders a rule set back into its document form.
func FromRuleSet(rs *comorbidity.RuleSet) *Document {
	doc := &Document{
		Scheme:  rs.Scheme,
		Version: rs.Version,
		Year:    comorbidity.Year(rs.Year),
	}
	for _, r := range rs.Categories() {
		c := CategoryDocument{
			Name:         r.Name,
			Description:  r.Description,
			Weight:       r.Weight,
			OverriddenBy: r.OverriddenBy,
		}
		switch m := r.Match.(type) {
		case comorbidity.AnyOf:
			c.Codes = m.Codes
		case comorbidity.Both:
			c.Both = &BothDocument{GroupA: m.GroupA, GroupB: m.GroupB}
		}
		doc.Categories = append(doc.Categories, c)
	}
	return doc
}
