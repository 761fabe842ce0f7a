package textnorm

// ScriptLabel 词元的文字类别标签
type ScriptLabel string

const (
	// LabelSanskrit 梵文转写（IAST）词元
	LabelSanskrit ScriptLabel = "sanskrit"
	// LabelEnglish 英文词元
	LabelEnglish ScriptLabel = "english"
	// LabelNoise 噪声词元（OCR残留、标点、低置信度结果）
	LabelNoise ScriptLabel = "noise"
)

// CorrectionAction 词元处理动作
type CorrectionAction string

const (
	// ActionUnchanged 词元保持原样（含纠错弃权的情况）
	ActionUnchanged CorrectionAction = "unchanged"
	// ActionCorrected 词元被替换为词典中的规范形式
	ActionCorrected CorrectionAction = "corrected"
	// ActionDiscarded 词元被判定为噪声并丢弃
	ActionDiscarded CorrectionAction = "discarded"
)

// Classification 分类器输出
type Classification struct {
	Label      ScriptLabel // 类别标签
	Confidence float64     // 置信度，范围[0,1]
}

// CorrectionResult 纠错器输出
// Changed为false时Corrected等于输入原文，Distance为0
type CorrectionResult struct {
	Corrected string // 纠正后的词形
	Changed   bool   // 是否发生了替换
	Distance  int    // 与原词的编辑距离（在音译折叠形式上计算）
}

// Corrector 纠错器接口
// 两个纠错引擎除契约形状外不共享任何行为
type Corrector interface {
	// Correct 对单个词元做纠错，超出距离阈值时原样返回（弃权）
	Correct(token string) CorrectionResult
	// Name 返回纠错器名称
	Name() string
}

// Token 归一化过程中产生的词元
// 一旦写入清洗结果即不可变，原始词形与纠正结果并存以便审计
type Token struct {
	Surface    string           `json:"surface"`              // 原始词形
	Start      int              `json:"start"`                // 在清洗前页面文本中的起始字节偏移
	End        int              `json:"end"`                  // 结束字节偏移（不含）
	Label      ScriptLabel      `json:"label"`                // 分类标签
	Confidence float64          `json:"confidence"`           // 分类置信度
	Action     CorrectionAction `json:"action"`               // 处理动作
	Corrected  string           `json:"corrected,omitempty"`  // 纠正后的词形（Action为corrected时有效）
	Distance   int              `json:"distance,omitempty"`   // 编辑距离
}

// LogEntry 单条纠错日志
// 日志只追加，不回流到同一文档的纠错决策
type LogEntry struct {
	Page       int              `json:"page"`                 // 页码
	Token      string           `json:"token"`                // 原始词形
	Label      ScriptLabel      `json:"label"`                // 分类标签
	Confidence float64          `json:"confidence"`           // 分类置信度
	Action     CorrectionAction `json:"action"`               // 处理动作
	Corrected  string           `json:"corrected,omitempty"`  // 纠正后的词形
	Distance   int              `json:"distance,omitempty"`   // 编辑距离
}

// Page OCR引擎产出的单页原始文本
type Page struct {
	Number int    `json:"page"`    // 页码，从1开始
	Text   string `json:"content"` // 原始OCR文本，UTF-8，可能包含乱码和控制字符
}

// NormalizedPage 归一化后的单页
type NormalizedPage struct {
	Number int     `json:"page"`   // 页码
	Text   string  `json:"text"`   // 清洗后的文本
	Tokens []Token `json:"tokens"` // 词元序列
}

// NormalizedDocument 归一化后的完整文档
type NormalizedDocument struct {
	DocumentID string           `json:"document_id"` // 文档ID
	Pages      []NormalizedPage `json:"pages"`       // 页序列
	Log        []LogEntry       `json:"log"`         // 纠错日志，只追加
	Entities   []string         `json:"entities"`    // 识别出的阿育吠陀术语
}

// Text 拼接所有页面的清洗后文本
func (d *NormalizedDocument) Text() string {
	if len(d.Pages) == 0 {
		return ""
	}
	out := d.Pages[0].Text
	for _, p := range d.Pages[1:] {
		if p.Text == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += p.Text
	}
	return out
}
