package textnorm

import (
	"sort"
	"strings"
)

// defaultAyurvedaTerms 内置的阿育吠陀规范术语表
// 头尾行过滤时这些术语所在的行受保护，实体提取也基于该表
var defaultAyurvedaTerms = []string{
	"agni", "ama", "asana", "ayurveda", "basti", "charaka", "dhatu",
	"dinacharya", "dosha", "guna", "kapha", "mala", "nadi", "nasya",
	"ojas", "panchakarma", "pitta", "prakriti", "prana", "rasa",
	"rasayana", "ritucharya", "sattva", "srotas", "sushruta", "tejas",
	"tridosha", "vagbhata", "vata", "vikriti", "vipaka", "virya",
}

// DefaultAyurvedaTerms 返回内置术语表的副本
func DefaultAyurvedaTerms() []string {
	terms := make([]string, len(defaultAyurvedaTerms))
	copy(terms, defaultAyurvedaTerms)
	return terms
}

// ExtractEntities 扫描文本中出现的规范术语
// 返回结果按字典序排序且去重
func ExtractEntities(text string, terms []string) []string {
	if text == "" || len(terms) == 0 {
		return nil
	}

	lower := strings.ToLower(FoldDiacritics(text))
	found := make(map[string]bool)
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			found[term] = true
		}
	}

	if len(found) == 0 {
		return nil
	}

	entities := make([]string, 0, len(found))
	for term := range found {
		entities = append(entities, term)
	}
	sort.Strings(entities)
	return entities
}
