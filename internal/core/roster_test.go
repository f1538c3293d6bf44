package core

import (
	"testing"

	"kolcrm/pkg/domain"
)

func TestParseRoster(t *testing.T) {
	cases := []struct {
		in   string
		want []Expert
	}{
		{"", nil},
		{" \n\t \n", nil},
		{"王五", []Expert{{Name: "王五", Hospital: domain.UnknownHospital, Department: domain.UnknownDepartment}}},
		{"李四 外科", []Expert{{Name: "李四", Hospital: domain.UnknownHospital, Department: "外科"}}},
		{"张三 某医院 内科", []Expert{{Name: "张三", Hospital: "某医院", Department: "内科"}}},
		{"张三\t\t某医院   内科 主任", []Expert{{Name: "张三", Hospital: "某医院", Department: "内科"}}},
		{"甲\r\n乙 科\r\n", []Expert{
			{Name: "甲", Hospital: domain.UnknownHospital, Department: domain.UnknownDepartment},
			{Name: "乙", Hospital: domain.UnknownHospital, Department: "科"},
		}},
	}
	for _, tc := range cases {
		got := ParseRoster(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("%q: want %d experts, got %+v", tc.in, len(tc.want), got)
		}
		for i, w := range tc.want {
			g := got[i]
			if g.Name != w.Name || g.Hospital != w.Hospital || g.Department != w.Department || g.Level != domain.BaselineLevel {
				t.Fatalf("%q[%d]: got %+v", tc.in, i, g)
			}
		}
	}
}

func TestDefaultRoster(t *testing.T) {
	roster := DefaultRoster()
	if len(roster) != 33 {
		t.Fatalf("expected 33 experts, got %d", len(roster))
	}
	seen := map[string]bool{}
	for _, e := range roster {
		if seen[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
	if roster[18].ID != "n_0" || roster[18].Name != "吴江" || roster[18].Department != "营养科" {
		t.Fatalf("unexpected first nutrition expert %+v", roster[18])
	}
}
