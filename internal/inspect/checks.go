package inspect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/dot11gate/internal/dot11"
)

const (
	RuleTruncatedHeader     = "TRUNCATED_HEADER"
	RuleTruncatedElement    = "TRUNCATED_ELEMENT"
	RuleUnrecognizedSubtype = "UNRECOGNIZED_SUBTYPE"
	RuleUnrecognizedElement = "UNRECOGNIZED_ELEMENT"
	RuleShortElement        = "SHORT_ELEMENT"
)

func (e *Engine) RegisterBuiltins() {
	e.Register("CheckTruncatedHeader", CheckTruncatedHeader)
	e.Register("CheckTruncatedElements", CheckTruncatedElements)
	e.Register("CheckUnrecognizedSubtype", CheckUnrecognizedSubtype)
	e.Register("CheckUnrecognizedElements", CheckUnrecognizedElements)
	e.Register("CheckShortElements", CheckShortElements)
}

// DefaultRulePack enables every builtin check at its standard severity.
func DefaultRulePack() RulePack {
	return RulePack{
		RulePackId: "dot11-default",
		Version:    "1",
		Rules: []Rule{
			{RuleId: RuleTruncatedHeader, Name: "Truncated header", Severity: ERROR, Check: "CheckTruncatedHeader",
				Refs: []string{"802.11-2016 9.2.3"}, Message: "frame shorter than its header layout"},
			{RuleId: RuleTruncatedElement, Name: "Truncated element", Severity: ERROR, Check: "CheckTruncatedElements",
				Refs: []string{"802.11-2016 9.4.2.1"}, Message: "information element overruns the frame"},
			{RuleId: RuleUnrecognizedSubtype, Name: "Unrecognized subtype", Severity: WARN, Check: "CheckUnrecognizedSubtype",
				Refs: []string{"802.11-2016 9.2.4.1.3"}, Message: "no body layout for type/subtype"},
			{RuleId: RuleUnrecognizedElement, Name: "Unrecognized element", Severity: INFO, Check: "CheckUnrecognizedElements",
				Refs: []string{"802.11-2016 9.4.2.1"}, Message: "element decoded generically"},
			{RuleId: RuleShortElement, Name: "Short element", Severity: INFO, Check: "CheckShortElements",
				Refs: []string{"802.11-2016 9.4.2"}, Message: "element payload shorter than its layout"},
		},
	}
}

// LoadRulePack reads a rule pack from JSON or, for .yaml/.yml files, YAML.
func LoadRulePack(path string) (RulePack, error) {
	var rp RulePack
	b, err := os.ReadFile(path)
	if err != nil {
		return rp, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(bytes.NewReader(b)).Decode(&rp)
	default:
		err = json.Unmarshal(b, &rp)
	}
	if err != nil {
		return rp, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rp, rp.Validate()
}

var ErrInvalidRulePack = errors.New("invalid rule pack")

func (rp RulePack) Validate() error {
	seen := make(map[string]struct{}, len(rp.Rules))
	for i, r := range rp.Rules {
		if r.RuleId == "" {
			return fmt.Errorf("%w: rules[%d] has no ruleId", ErrInvalidRulePack, i)
		}
		if _, dup := seen[r.RuleId]; dup {
			return fmt.Errorf("%w: duplicate ruleId %s", ErrInvalidRulePack, r.RuleId)
		}
		seen[r.RuleId] = struct{}{}
		switch r.Severity {
		case ERROR, WARN, INFO:
		default:
			return fmt.Errorf("%w: %s: severity %q", ErrInvalidRulePack, r.RuleId, r.Severity)
		}
	}
	return nil
}

func CheckTruncatedHeader(ctx *Context, fr *FrameResult, rule Rule) []Diagnostic {
	if fr.Err == nil || !errors.Is(fr.Err, dot11.ErrTruncatedHeader) {
		return nil
	}
	return []Diagnostic{{Message: fmt.Sprintf("%s: %v (%d bytes)", rule.Message, fr.Err, len(fr.Record.Data))}}
}

// CheckTruncatedElements reports a truncated element sequence, whether the
// decoder rejected the frame (strict mode) or kept the elements parsed so far.
func CheckTruncatedElements(ctx *Context, fr *FrameResult, rule Rule) []Diagnostic {
	err := fr.ElemErr
	if err == nil && errors.Is(fr.Err, dot11.ErrTruncatedElement) {
		err = fr.Err
	}
	if err == nil {
		return nil
	}
	d := Diagnostic{Message: fmt.Sprintf("%s: %v", rule.Message, err)}
	var te *dot11.TruncatedElementError
	if errors.As(err, &te) {
		d.Offset = fmt.Sprintf("elements+0x%X", te.Offset)
		if fr.Err == nil {
			d.Message = fmt.Sprintf("%s: %v; kept %d elements", rule.Message, err, len(fr.Elements))
		}
	}
	return []Diagnostic{d}
}

func CheckUnrecognizedSubtype(ctx *Context, fr *FrameResult, rule Rule) []Diagnostic {
	if fr.Frame == nil || fr.Frame.Recognized() {
		return nil
	}
	fc := fr.Frame.Control
	msg := fmt.Sprintf("%s: %s/%s", rule.Message, fc.Type(), dot11.SubtypeName(fc.Type(), fc.Subtype()))
	if fc.Protected() {
		msg += " (protected)"
	}
	if key, ok := fr.Frame.Key(); ok {
		msg += fmt.Sprintf(" key %d", key)
	}
	return []Diagnostic{{Message: msg}}
}

// CheckUnrecognizedElements emits one finding per frame listing the element
// ids without a dedicated layout.
func CheckUnrecognizedElements(ctx *Context, fr *FrameResult, rule Rule) []Diagnostic {
	var ids []int
	seen := make(map[dot11.ElementID]struct{})
	for _, el := range fr.Elements {
		if el.Known() {
			continue
		}
		if _, ok := seen[el.ID]; ok {
			continue
		}
		seen[el.ID] = struct{}{}
		ids = append(ids, int(el.ID))
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return []Diagnostic{{Message: fmt.Sprintf("%s: ids %s", rule.Message, strings.Join(parts, ","))}}
}

func CheckShortElements(ctx *Context, fr *FrameResult, rule Rule) []Diagnostic {
	var out []Diagnostic
	off := 0
	for _, el := range fr.Elements {
		if el.Short() {
			out = append(out, Diagnostic{
				Offset:  fmt.Sprintf("elements+0x%X", off),
				Message: fmt.Sprintf("%s: %s has %d bytes", rule.Message, el.Name(), len(el.Payload)),
			})
		}
		off += len(el.Bytes())
	}
	return out
}
