package paper

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Part identifies the section of a two-part paper.
type Part string

const (
	PartA Part = "A"
	PartB Part = "B"
)

// Paper type constants accepted by the generator.
const (
	TypeMid1    = "mid1"
	TypeMid2    = "mid2"
	TypeSpecial = "special"
)

// Layout names the exam template a question set was generated for.
type Layout string

const (
	LayoutPlain       Layout = "plain"
	LayoutPartitioned Layout = "partitioned"
)

// Question is one generated question. Label, Part and Unit are fixed once generated;
// Text, BTLevel and the image fields may be edited.
type Question struct {
	Label        string `json:"label,omitempty"`
	Part         Part   `json:"part,omitempty"`
	Text         string `json:"question"`
	Unit         int    `json:"unit"`
	BTLevel      string `json:"btLevel"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ImageDataURL string `json:"imageDataUrl,omitempty"`
}

// HasImage reports whether a resolved image is attached.
func (q Question) HasImage() bool {
	return q.ImageDataURL != ""
}

// Details is the paper metadata returned by generation.
type Details struct {
	Subject     FlexString `json:"subject"`
	SubjectCode FlexString `json:"subjectCode"`
	Branch      FlexString `json:"branch"`
	Year        FlexString `json:"year"`
	Semester    FlexString `json:"semester"`
	Regulation  FlexString `json:"regulation"`
	PaperType   string     `json:"paperType"`
}

// Header holds the resolved values of the user-editable header fields.
type Header struct {
	SubjectCode string `json:"subjectCode"`
	Branch      string `json:"branch"`
	ExamDate    string `json:"examDate"`
	MonthYear   string `json:"monthyear"`
}

// FlexString accepts either a JSON string or a JSON number; the backend is not
// consistent about year and semester.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = FlexString(num.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

var lineBreaks = strings.NewReplacer(
	"\r\n", "\n",
	"<br>", "\n",
	"<br/>", "\n",
	"<br />", "\n",
	"<BR>", "\n",
)

// Lines splits question text on its embedded line-break markers.
func Lines(text string) []string {
	text = strings.TrimSpace(lineBreaks.Replace(text))
	if text == "" {
		return []string{""}
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}
