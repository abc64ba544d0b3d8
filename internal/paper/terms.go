package paper

import "strconv"

// ExamTime is printed on every paper.
const ExamTime = "90 Min."

// ClosingLine ends every paper.
const ClosingLine = "****ALL THE BEST****"

// COForUnit maps a syllabus unit to its course outcome code.
func COForUnit(unit int) string {
	if unit < 1 || unit > 5 {
		return ""
	}
	return "CO" + strconv.Itoa(unit)
}

// TermLabel returns the examination name shown in the title line.
func TermLabel(paperType string) string {
	switch paperType {
	case TypeMid1:
		return "Mid I"
	case TypeMid2:
		return "Mid II"
	case TypeSpecial:
		return "Special Mid"
	default:
		return "Mid"
	}
}

// ValidPaperType reports whether the generator accepts t.
func ValidPaperType(t string) bool {
	return t == TypeMid1 || t == TypeMid2 || t == TypeSpecial
}
