// Package form defines the contract request record: the fixed field schema,
// the typed record itself, and required-field validation.
package form

// Kind describes how a field is typed and normalized.
type Kind string

const (
	KindShortText   Kind = "short_text"
	KindLongText    Kind = "long_text"
	KindEnum        Kind = "enum"
	KindDate        Kind = "date"
	KindAmountJPY   Kind = "amount_jpy"
	KindMultiChoice Kind = "multi_choice"
)

// FieldDef describes one schema field.
type FieldDef struct {
	Name     string
	Label    string // Japanese label shown to the user
	Kind     Kind
	Required bool
	Choices  []string // vocabulary for enum / multi-choice fields
	Keywords []string // used to route follow-up questions and answers
	Priority int      // follow-up ordering, lower comes first
	Guidance string   // per-field extraction instruction embedded in the prompt
}

// Field name constants. The set is fixed; there is no dynamic schema.
const (
	FieldProjectName              = "project_name"
	FieldCounterpartyName         = "counterparty_name"
	FieldAmountJPY                = "amount_jpy"
	FieldAffiliation              = "affiliation"
	FieldTargetProduct            = "target_product"
	FieldActivityBackground       = "activity_background"
	FieldCounterpartyRelationship = "counterparty_relationship"
	FieldActivityDetails          = "activity_details"
	FieldCounterpartyType         = "counterparty_type"
	FieldContractForm             = "contract_form"
	FieldRequestDate              = "request_date"
	FieldDesiredDueDate           = "desired_due_date"
	FieldReceivedDate             = "received_date"
	FieldInfoFromUs               = "info_from_us"
	FieldInfoFromThem             = "info_from_them"
	FieldDesiredContract          = "desired_contract"
)

var disclosureChoices = []string{"要求仕様", "図面", "サンプル", "ノウハウ", "評価データ", "その他"}

var fieldDefs = []FieldDef{
	{
		Name: FieldProjectName, Label: "案件名", Kind: KindShortText, Required: true,
		Keywords: []string{"案件名", "案件", "プロジェクト名"},
		Priority: 6,
		Guidance: "案件の名称をそのまま抜き出してください。",
	},
	{
		Name: FieldCounterpartyName, Label: "相手先", Kind: KindShortText, Required: true,
		Keywords: []string{"相手先", "相手方の名称", "契約先", "会社名"},
		Priority: 7,
		Guidance: "契約の相手方となる企業・団体名を記載してください。",
	},
	{
		Name: FieldAmountJPY, Label: "金額", Kind: KindAmountJPY, Required: true,
		Keywords: []string{"金額", "予算", "費用", "対価"},
		Priority: 8,
		Guidance: "契約金額を円単位の整数で記載してください（例: 3500000）。",
	},
	{
		Name: FieldAffiliation, Label: "所属(部署名まで)", Kind: KindShortText,
		Keywords: []string{"所属", "部署"},
		Priority: 5,
		Guidance: "依頼者の所属・部署をそのまま抜き出してください。",
	},
	{
		Name: FieldTargetProduct, Label: "対象商材", Kind: KindShortText,
		Keywords: []string{"商材", "プロダクト", "製品", "サービス名"},
		Priority: 4,
		Guidance: "対象となる商材/プロダクト/サービス名を記載してください。",
	},
	{
		Name: FieldActivityBackground, Label: "活動背景・目的", Kind: KindLongText,
		Keywords: []string{"背景", "目的", "狙い"},
		Priority: 2,
		Guidance: "活動の背景や目的を要約してください。",
	},
	{
		Name: FieldCounterpartyRelationship, Label: "相手方との関係・既締結の関連契約など", Kind: KindLongText,
		Keywords: []string{"相手方", "取引先", "関係", "既締結", "既存の契約"},
		Priority: 3,
		Guidance: "相手方との関係性や既存の契約状況をまとめてください。",
	},
	{
		Name: FieldActivityDetails, Label: "活動内容", Kind: KindLongText,
		Keywords: []string{"活動内容", "実施内容", "対応内容", "進め方"},
		Priority: 1,
		Guidance: "実際に行う活動内容を具体的に記載してください。",
	},
	{
		Name: FieldCounterpartyType, Label: "相手方区分", Kind: KindEnum,
		Choices:  []string{"民間", "官公庁", "大学・研究機関", "海外", "その他"},
		Keywords: []string{"相手方区分", "区分"},
		Priority: 9,
		Guidance: "相手方の区分を選択肢の中から一つ選んでください。",
	},
	{
		Name: FieldContractForm, Label: "契約書式", Kind: KindEnum,
		Choices:  []string{"当社書式", "相手方書式", "その他"},
		Keywords: []string{"書式", "契約書式", "雛形"},
		Priority: 10,
		Guidance: "使用する契約書式を選択肢の中から一つ選んでください。",
	},
	{
		Name: FieldRequestDate, Label: "依頼日", Kind: KindDate,
		Keywords: []string{"依頼日"},
		Priority: 11,
		Guidance: "依頼日を YYYY-MM-DD 形式で記載してください。",
	},
	{
		Name: FieldDesiredDueDate, Label: "希望納期", Kind: KindDate,
		Keywords: []string{"希望納期", "納期", "期限"},
		Priority: 12,
		Guidance: "希望納期を YYYY-MM-DD 形式で記載してください。",
	},
	{
		Name: FieldReceivedDate, Label: "受領日", Kind: KindDate,
		Keywords: []string{"受領日"},
		Priority: 13,
		Guidance: "書類の受領日を YYYY-MM-DD 形式で記載してください。",
	},
	{
		Name: FieldInfoFromUs, Label: "当社からの開示情報", Kind: KindMultiChoice,
		Choices:  disclosureChoices,
		Keywords: []string{"当社からの開示", "当社から開示"},
		Priority: 14,
		Guidance: "当社から相手方へ開示する情報を選択肢の配列で記載してください。",
	},
	{
		Name: FieldInfoFromThem, Label: "相手からの開示情報", Kind: KindMultiChoice,
		Choices:  disclosureChoices,
		Keywords: []string{"相手からの開示", "相手から開示"},
		Priority: 15,
		Guidance: "相手方から当社へ開示される情報を選択肢の配列で記載してください。",
	},
	{
		Name: FieldDesiredContract, Label: "どんな契約にしたいか", Kind: KindLongText,
		Keywords: []string{"どんな契約", "契約にしたい", "契約方針"},
		Priority: 16,
		Guidance: "どのような契約を望むかの記載があればまとめてください。",
	},
}

var fieldIndex = func() map[string]*FieldDef {
	m := make(map[string]*FieldDef, len(fieldDefs))
	for i := range fieldDefs {
		m[fieldDefs[i].Name] = &fieldDefs[i]
	}
	return m
}()

// Fields returns the schema definitions in declaration order.
func Fields() []FieldDef {
	out := make([]FieldDef, len(fieldDefs))
	copy(out, fieldDefs)
	return out
}

// Lookup returns the definition for a field name, or nil for unknown names.
func Lookup(name string) *FieldDef {
	return fieldIndex[name]
}

// FieldNames returns all schema field names in declaration order.
func FieldNames() []string {
	names := make([]string, len(fieldDefs))
	for i, d := range fieldDefs {
		names[i] = d.Name
	}
	return names
}

// RequiredFields returns the names of required fields in declaration order.
func RequiredFields() []string {
	var names []string
	for _, d := range fieldDefs {
		if d.Required {
			names = append(names, d.Name)
		}
	}
	return names
}

// Labels returns the field name to Japanese label mapping.
func Labels() map[string]string {
	m := make(map[string]string, len(fieldDefs))
	for _, d := range fieldDefs {
		m[d.Name] = d.Label
	}
	return m
}

// AllowedChoice reports whether v is in the field's vocabulary.
// Fields without a vocabulary accept any value.
func AllowedChoice(name, v string) bool {
	def := Lookup(name)
	if def == nil {
		return false
	}
	if len(def.Choices) == 0 {
		return true
	}
	for _, c := range def.Choices {
		if c == v {
			return true
		}
	}
	return false
}
