package extract

import "regexp"

// fieldRule pairs a schema field with its ordered patterns. Rules are
// evaluated in fixed order and the first matching pattern wins per field.
// This path is deliberately independent of the completion service so either
// extraction strategy can be tested in isolation.
type fieldRule struct {
	field    string
	patterns []*regexp.Regexp
}

var fallbackRules = []fieldRule{
	{
		field: "project_name",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:案件名|案件|プロジェクト名)[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "counterparty_name",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:相手先|契約先|相手方の名称)[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "amount_jpy",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:金額|予算|費用)[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "affiliation",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:所属|所属部署|部署名?)[:：][\t 　]*([^\n]+)`),
			regexp.MustCompile(`部署(?:は|：)[\t 　]*([^\n]+)`),
		},
	},
	{
		field: "target_product",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:対象商材|商材|対象プロダクト|プロダクト|製品)[:：][\t 　]*([^\n]+)`),
			regexp.MustCompile(`対象は[\t 　]*([^\n]+)`),
		},
	},
	{
		field: "activity_background",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:活動背景|背景|目的|狙い)[:：][\t 　]*([^\n]+)`),
			regexp.MustCompile(`(?:活動の背景|背景と目的)[\t 　]*[:：]?[\t 　]*([^\n]+)`),
		},
	},
	{
		field: "counterparty_relationship",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:相手方|相手|取引先|カウンターパーティ)[^\n]*[:：][\t 　]*([^\n]+)`),
			regexp.MustCompile(`(?:既締結|既存)の?(?:契約|合意)[^\n]*[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "activity_details",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:活動内容|予定している活動|実施内容|対応内容)[:：][\t 　]*([^\n]+)`),
			regexp.MustCompile(`(?:実施予定|進め方)[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "counterparty_type",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`相手方区分[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "contract_form",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:契約書式|書式)[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "request_date",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`依頼日[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "desired_due_date",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:希望納期|納期|期限)[:：][\t 　]*([^\n]+)`),
		},
	},
	{
		field: "received_date",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`受領日[:：][\t 　]*([^\n]+)`),
		},
	},
}

// scanWithRules extracts a raw field map from text using the pattern rules.
// Values are untyped strings; the normalizer handles amounts, dates, and
// vocabulary filtering.
func scanWithRules(text string) map[string]any {
	raw := make(map[string]any)
	for _, rule := range fallbackRules {
		for _, p := range rule.patterns {
			m := p.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if v := trimMatch(m[1]); v != "" {
				raw[rule.field] = v
				break
			}
		}
	}
	return raw
}

var trailingSpace = regexp.MustCompile(`^[\t 　]+|[\t 　]+$`)

func trimMatch(s string) string {
	return trailingSpace.ReplaceAllString(s, "")
}
