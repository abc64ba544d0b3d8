package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

type wireQuestion struct {
	Label    string  `json:"label"`
	Part     string  `json:"part" validate:"omitempty,oneof=A B a b"`
	// Blank text is kept; the paper shows an empty row for it.
	Question string  `json:"question"`
	Unit     flexInt `json:"unit" validate:"gte=0"`
	BTLevel  string  `json:"btLevel"`
	ImageURL string  `json:"imageUrl"`
}

type generateResponse struct {
	Questions    []wireQuestion `json:"questions"`
	PartA        []wireQuestion `json:"partA"`
	PartB        []wireQuestion `json:"partB"`
	PaperDetails *paper.Details `json:"paperDetails"`
}

var (
	ErrNoQuestions    = errors.New("response contains no questions")
	ErrMissingDetails = errors.New("response has no paperDetails")
)

// DecodeGenerateResponse parses a /generate body. The presence of partA or partB selects
// the partitioned layout; each question's part comes from the list it was found in.
// A nil validator gets a default one.
func DecodeGenerateResponse(raw []byte, paperType string, validate *validator.Validate) (Generated, error) {
	if validate == nil {
		validate = validator.New()
	}
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Generated{}, fmt.Errorf("decode generate response: %w", err)
	}
	if resp.PaperDetails == nil {
		return Generated{}, ErrMissingDetails
	}

	gen := Generated{Details: *resp.PaperDetails}
	gen.Details.PaperType = paperType

	if resp.PartA != nil || resp.PartB != nil {
		gen.Layout = paper.LayoutPartitioned
		seen := map[string]bool{}
		for _, list := range []struct {
			part paper.Part
			qs   []wireQuestion
		}{{paper.PartA, resp.PartA}, {paper.PartB, resp.PartB}} {
			for i, wq := range list.qs {
				q, err := convert(validate, wq, list.part)
				if err != nil {
					return Generated{}, fmt.Errorf("part %s question %d: %w", list.part, i, err)
				}
				key := string(q.Part) + ":" + strings.ToLower(q.Label)
				if seen[key] {
					return Generated{}, fmt.Errorf("part %s question %d: duplicate label %q", list.part, i, q.Label)
				}
				seen[key] = true
				gen.Questions = append(gen.Questions, q)
			}
		}
	} else {
		gen.Layout = paper.LayoutPlain
		for i, wq := range resp.Questions {
			q, err := convert(validate, wq, "")
			if err != nil {
				return Generated{}, fmt.Errorf("question %d: %w", i, err)
			}
			gen.Questions = append(gen.Questions, q)
		}
	}

	if len(gen.Questions) == 0 {
		return Generated{}, ErrNoQuestions
	}
	return gen, nil
}

func convert(validate *validator.Validate, wq wireQuestion, part paper.Part) (paper.Question, error) {
	if err := validate.Struct(wq); err != nil {
		return paper.Question{}, err
	}
	if part != "" {
		if strings.TrimSpace(wq.Label) == "" {
			return paper.Question{}, errors.New("label is required")
		}
		if wq.Part != "" && paper.Part(strings.ToUpper(wq.Part)) != part {
			return paper.Question{}, fmt.Errorf("labelled part %q found in part %s", wq.Part, part)
		}
	}
	return paper.Question{
		Label:    strings.TrimSpace(wq.Label),
		Part:     part,
		Text:     wq.Question,
		Unit:     int(wq.Unit),
		BTLevel:  wq.BTLevel,
		ImageURL: strings.TrimSpace(wq.ImageURL),
	}, nil
}

// flexInt accepts 3, "3" or null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("unit %q is not a number", s)
	}
	*f = flexInt(n)
	return nil
}
