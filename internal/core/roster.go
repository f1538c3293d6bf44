package core

import (
	"fmt"
	"strings"

	"kolcrm/pkg/domain"
)

// Built-in roster loaded into an empty store.
var (
	defaultSurgeryRoster = []string{
		"韩晓东", "姚立彬", "梁辉", "朱孝成", "姚琪远", "孙喜太", "顾岩", "毛忠琦",
		"朱江帆", "管蔚", "花荣", "王兵", "杨建军", "楼文晖", "张频", "申晓军", "刘伟杰", "谢晓峰",
	}
	defaultNutritionRoster = []string{
		"吴江", "徐冬连", "汤庆娅", "高键", "徐仁应", "葛声", "韩婷", "孙文广",
		"施咏梅", "冯颖", "陈洁文", "王静", "冯一", "马向华", "金晖",
	}
)

const (
	surgeryDepartment   = "代谢外科"
	nutritionDepartment = "营养科"
)

// DefaultRoster returns the seed experts at the baseline level. Ids are stable
// so that visits recorded against a seeded roster survive a reseed.
func DefaultRoster() []Expert {
	out := make([]Expert, 0, len(defaultSurgeryRoster)+len(defaultNutritionRoster))
	for i, name := range defaultSurgeryRoster {
		out = append(out, rosterExpert(fmt.Sprintf("s_%d", i), name, domain.UnknownHospital, surgeryDepartment))
	}
	for i, name := range defaultNutritionRoster {
		out = append(out, rosterExpert(fmt.Sprintf("n_%d", i), name, domain.UnknownHospital, nutritionDepartment))
	}
	return out
}

// ParseRoster turns pasted text into experts, one per line. Tokens are split
// on runs of whitespace:
//
//	name
//	name department
//	name hospital department [ignored...]
//
// Blank lines are dropped.
func ParseRoster(text string) []Expert {
	var out []Expert
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		switch len(fields) {
		case 0:
			continue
		case 1:
			out = append(out, rosterExpert("", fields[0], domain.UnknownHospital, domain.UnknownDepartment))
		case 2:
			out = append(out, rosterExpert("", fields[0], domain.UnknownHospital, fields[1]))
		default:
			out = append(out, rosterExpert("", fields[0], fields[1], fields[2]))
		}
	}
	return out
}

func rosterExpert(id, name, hospital, department string) Expert {
	return Expert{
		Base:       domain.Base{ID: id},
		Name:       name,
		Hospital:   hospital,
		Department: department,
		Level:      domain.BaselineLevel,
	}
}
