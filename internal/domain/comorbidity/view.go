package comorbidity

import "encoding/json"

type matchView struct {
	Kind   MatchKind `json:"kind"`
	Codes  []string  `json:"codes,omitempty"`
	GroupA []string  `json:"group_a,omitempty"`
	GroupB []string  `json:"group_b,omitempty"`
}

type categoryView struct {
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Weight       int       `json:"weight"`
	Match        matchView `json:"match"`
	OverriddenBy []string  `json:"overridden_by,omitempty"`
}

func (r CategoryRule) MarshalJSON() ([]byte, error) {
	v := categoryView{
		Name:         r.Name,
		Description:  r.Description,
		Weight:       r.Weight,
		OverriddenBy: r.OverriddenBy,
	}
	switch m := r.Match.(type) {
	case AnyOf:
		v.Match = matchView{Kind: KindAnyOf, Codes: m.Codes}
	case Both:
		v.Match = matchView{Kind: KindBoth, GroupA: m.GroupA, GroupB: m.GroupB}
	}
	return json.Marshal(v)
}

func (rs *RuleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RuleSetInfo
		Rules []CategoryRule `json:"rules"`
	}{
		RuleSetInfo: rs.Info(),
		Rules:       rs.categories,
	})
}
