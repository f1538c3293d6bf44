package domain

// Products is the fixed product vocabulary a visit may mention.
var Products = []string{
	"司美格鲁肽",
	"替尔泊肽",
	"达格列净",
	"非奈利酮",
	"肠内营养制剂",
}

// DiseaseAreas is the fixed disease-area vocabulary a visit may mention.
var DiseaseAreas = []string{
	"肥胖症",
	"2型糖尿病",
	"慢性肾病",
	"心力衰竭",
	"代谢相关脂肪性肝病",
	"围手术期营养",
}

// NormalizeTags returns the members of vocabulary present in tags, deduplicated
// and in vocabulary order, plus any tags that are not vocabulary members.
func NormalizeTags(tags, vocabulary []string) (known, unknown []string) {
	wanted := make(map[string]bool, len(tags))
	for _, t := range tags {
		wanted[t] = true
	}
	known = make([]string, 0, len(tags))
	for _, v := range vocabulary {
		if wanted[v] {
			known = append(known, v)
			delete(wanted, v)
		}
	}
	seen := make(map[string]bool)
	for _, t := range tags {
		if wanted[t] && !seen[t] {
			unknown = append(unknown, t)
			seen[t] = true
		}
	}
	return known, unknown
}

// Contains reports whether vocabulary holds term.
func Contains(vocabulary []string, term string) bool {
	for _, v := range vocabulary {
		if v == term {
			return true
		}
	}
	return false
}
