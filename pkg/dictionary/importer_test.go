package dictionary

import (
	"strings"
	"testing"
)

const sampleCEDICT = `# CC-CEDICT sample
中 中 [zhong1] {zung1} /middle/
中 中 [zhong4] {zung3} /to hit (the mark)/
國 国 [guo2] {gwok3} /country/
中國 中国 [Zhong1 guo2] {zung1 gwok3} /China/
人 人 [ren2] {jan4} /person/
學生 学生 [xue2 sheng5] {hok6 saang1} /student/
`

func TestParseCEDICTLine(t *testing.T) {
	e, ok, err := ParseCEDICTLine("學生 学生 [xue2 sheng5] {hok6 saang1} /student/schoolchild/")
	if err != nil || !ok {
		t.Fatalf("parse: ok=%v err=%v", ok, err)
	}
	if e.Traditional != "學生" || e.Simplified != "学生" {
		t.Errorf("headwords = %q/%q", e.Traditional, e.Simplified)
	}
	if e.Pinyin != "xue2 sheng5" || e.Jyutping != "hok6 saang1" {
		t.Errorf("readings = %q/%q", e.Pinyin, e.Jyutping)
	}
	if len(e.Senses) != 2 || e.Senses[1] != "schoolchild" {
		t.Errorf("senses = %v", e.Senses)
	}

	if _, ok, err := ParseCEDICTLine("# comment"); ok || err != nil {
		t.Errorf("comment line: ok=%v err=%v", ok, err)
	}
	if _, _, err := ParseCEDICTLine("broken"); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestImporterSimplifiedPinyin(t *testing.T) {
	dict, readings, err := Importer{Form: Simplified, Reading: PinyinField}.Import(strings.NewReader(sampleCEDICT))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	for _, w := range []string{"中", "国", "中国", "人", "学生"} {
		if !dict.Contains(w) {
			t.Errorf("expected %q in dictionary", w)
		}
	}
	if dict.Contains("中國") {
		t.Error("traditional headword leaked into simplified dictionary")
	}
	if got := readings.Pronounce("中国"); got != "zhong1(zhong4) guo2" {
		t.Errorf("Pronounce(中国) = %q", got)
	}
	// 生 only appears inside a longer word so it comes from the fallback pass.
	if got := readings.Pronounce("生"); got != "sheng5" {
		t.Errorf("Pronounce(生) = %q", got)
	}
}

func TestImporterTraditionalJyutping(t *testing.T) {
	dict, readings, err := Importer{Form: Traditional, Reading: JyutpingField}.Import(strings.NewReader(sampleCEDICT))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !dict.Contains("中國") || !dict.Contains("學生") {
		t.Error("expected traditional headwords")
	}
	if got := readings.Pronounce("中國人"); got != "zung1(zung3) gwok3 jan4" {
		t.Errorf("Pronounce(中國人) = %q", got)
	}
}
