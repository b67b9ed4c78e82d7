package inspect

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"example.com/dot11gate/internal/capture"
	"example.com/dot11gate/internal/common"
	"example.com/dot11gate/internal/dict"
	"example.com/dot11gate/internal/dot11"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

// Rule binds a check function to a rule id and severity.
type Rule struct {
	RuleId   string   `json:"ruleId" yaml:"ruleId"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Severity Severity `json:"severity" yaml:"severity"`
	Check    string   `json:"check" yaml:"check"`
	Refs     []string `json:"refs,omitempty" yaml:"refs,omitempty"`
	Message  string   `json:"message" yaml:"message"`
	Disabled bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

type RulePack struct {
	RulePackId string `json:"rulePackId" yaml:"rulePackId"`
	Version    string `json:"version" yaml:"version"`
	Rules      []Rule `json:"rules" yaml:"rules"`
}

type Diagnostic struct {
	Ts          time.Time `json:"ts"`
	File        string    `json:"file"`
	FrameIndex  int       `json:"frameIndex"`
	Offset      string    `json:"offset,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	RuleId      string    `json:"ruleId"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Refs        []string  `json:"refs"`
	TimestampUs *int64    `json:"timestamp_us"`
}

// Context carries the inputs of one inspection run.
type Context struct {
	InputFile string
	Stations  *dict.Store
	Metrics   *common.Metrics
}

// FrameResult is the decode outcome of one capture record.
type FrameResult struct {
	Record   capture.Record
	Frame    *dot11.Frame
	Err      error
	Elements []dot11.Element
	ElemErr  error
}

// CheckFunc inspects one decoded frame and returns zero or more findings.
// The engine fills in the file, index, timestamp and rule metadata.
type CheckFunc func(ctx *Context, fr *FrameResult, rule Rule) []Diagnostic

const batchPerWorker = 256

type Engine struct {
	rulePack               RulePack
	registry               map[string]CheckFunc
	decoder                *dot11.Decoder
	concurrency            int
	diagnostics            []Diagnostic
	callback               func(Diagnostic) error
	includeTimestampFields bool
	stats                  *stats
}

func NewEngine(rp RulePack) *Engine {
	return &Engine{
		rulePack:               rp,
		registry:               make(map[string]CheckFunc),
		decoder:                dot11.NewDecoder(nil),
		concurrency:            runtime.NumCPU(),
		includeTimestampFields: true,
	}
}

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

// SetDecoder replaces the frame decoder shared by all workers.
func (e *Engine) SetDecoder(d *dot11.Decoder) {
	if d != nil {
		e.decoder = d
	}
}

// SetConcurrency bounds the number of decode workers. Values below one mean a
// single worker.
func (e *Engine) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	e.concurrency = n
}

// SetDiagnosticCallback registers fn to receive each diagnostic as soon as it
// is produced. A callback error aborts Eval.
func (e *Engine) SetDiagnosticCallback(fn func(Diagnostic) error) {
	e.callback = fn
}

func (e *Engine) Diagnostics() []Diagnostic {
	return e.diagnostics
}

// Eval decodes every frame of ctx.InputFile and applies the rule pack to it.
// Diagnostics are produced in capture order regardless of concurrency.
func (e *Engine) Eval(ctx *Context) ([]Diagnostic, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	if ctx.InputFile == "" {
		return nil, errors.New("no input file")
	}
	reader, err := capture.Open(ctx.InputFile)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	if ctx.Metrics != nil {
		reader.SetMetrics(ctx.Metrics)
		ctx.Metrics.Start()
		defer ctx.Metrics.Stop()
	}

	e.diagnostics = nil
	e.stats = newStats(ctx.InputFile, reader.Format())
	if sum, _, err := common.Sha256OfFile(ctx.InputFile); err == nil {
		e.stats.sha256 = sum
	}

	rules, err := e.activeRules(ctx)
	if err != nil {
		return e.diagnostics, err
	}

	batch := make([]capture.Record, 0, batchPerWorker*e.concurrency)
	next := 0
	for {
		rec, rerr := reader.Next()
		if rerr == nil {
			next++
			batch = append(batch, rec)
			if len(batch) < cap(batch) {
				continue
			}
		}
		if err := e.processBatch(ctx, rules, batch); err != nil {
			return e.diagnostics, err
		}
		batch = batch[:0]
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			return e.diagnostics, nil
		case errors.Is(rerr, capture.ErrRadiotap):
			next++
			if err := e.emit(captureDiagnostic(ctx, rec.Index, rerr)); err != nil {
				return e.diagnostics, err
			}
			e.stats.frames++
			e.stats.malformed++
		case errors.Is(rerr, io.ErrUnexpectedEOF):
			if err := e.emit(captureDiagnostic(ctx, next, rerr)); err != nil {
				return e.diagnostics, err
			}
			return e.diagnostics, nil
		default:
			return e.diagnostics, rerr
		}
	}
}

func (e *Engine) activeRules(ctx *Context) ([]Rule, error) {
	var active []Rule
	for _, r := range e.rulePack.Rules {
		if r.Disabled || r.Check == "" {
			continue
		}
		if _, ok := e.registry[r.Check]; !ok {
			d := Diagnostic{
				Ts: time.Now(), File: ctx.InputFile, FrameIndex: -1, RuleId: r.RuleId, Severity: WARN,
				Message: "no check for rule: " + r.Check, Refs: r.Refs,
			}
			if err := e.emit(d); err != nil {
				return nil, err
			}
			continue
		}
		active = append(active, r)
	}
	return active, nil
}

func (e *Engine) processBatch(ctx *Context, rules []Rule, batch []capture.Record) error {
	if len(batch) == 0 {
		return nil
	}
	results := e.decodeBatch(batch)
	for i := range results {
		fr := &results[i]
		e.stats.add(fr)
		if ctx.Metrics != nil {
			switch {
			case fr.Err != nil:
				ctx.Metrics.IncMalformed()
			case !fr.Frame.Recognized():
				ctx.Metrics.IncUnknown()
			}
		}
		for _, rule := range rules {
			for _, d := range e.registry[rule.Check](ctx, fr, rule) {
				if err := e.emit(e.finish(ctx, fr, rule, d)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// decodeBatch decodes records on up to e.concurrency goroutines. Results are
// stored by position so the caller sees them in capture order.
func (e *Engine) decodeBatch(recs []capture.Record) []FrameResult {
	out := make([]FrameResult, len(recs))
	workers := e.concurrency
	if workers > len(recs) {
		workers = len(recs)
	}
	if workers <= 1 {
		for i := range recs {
			out[i] = e.decodeOne(recs[i])
		}
		return out
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = e.decodeOne(recs[i])
			}
		}()
	}
	for i := range recs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

func (e *Engine) decodeOne(rec capture.Record) FrameResult {
	fr := FrameResult{Record: rec}
	fr.Frame, fr.Err = e.decoder.Decode(rec.Data)
	if fr.Err == nil && fr.Frame.Body.Elements != nil {
		fr.Elements, fr.ElemErr = fr.Frame.Body.Elements.All()
	}
	return fr
}

func (e *Engine) finish(ctx *Context, fr *FrameResult, rule Rule, d Diagnostic) Diagnostic {
	if d.Ts.IsZero() {
		d.Ts = time.Now()
	}
	d.File = ctx.InputFile
	d.FrameIndex = fr.Record.Index
	d.RuleId = rule.RuleId
	if d.Severity == "" {
		d.Severity = rule.Severity
	}
	if d.Message == "" {
		d.Message = rule.Message
	}
	if d.Refs == nil {
		d.Refs = rule.Refs
	}
	if d.Kind == "" && fr.Frame != nil {
		d.Kind = fr.Frame.Body.Kind.String()
	}
	if d.TimestampUs == nil && !fr.Record.Timestamp.IsZero() {
		us := fr.Record.Timestamp.UnixMicro()
		d.TimestampUs = &us
	}
	return d
}

func (e *Engine) emit(d Diagnostic) error {
	e.diagnostics = append(e.diagnostics, d)
	if e.stats != nil {
		e.stats.addDiagnostic(d)
	}
	if e.callback != nil {
		return e.callback(d)
	}
	return nil
}

func captureDiagnostic(ctx *Context, index int, err error) Diagnostic {
	id := "CAPTURE_TRUNCATED"
	if errors.Is(err, capture.ErrRadiotap) {
		id = "RADIOTAP_MALFORMED"
	}
	return Diagnostic{
		Ts:         time.Now(),
		File:       ctx.InputFile,
		FrameIndex: index,
		RuleId:     id,
		Severity:   ERROR,
		Message:    err.Error(),
		Refs:       []string{"pcap"},
	}
}

// WriteDiagnosticsNDJSON writes one JSON object per diagnostic to w.
func (e *Engine) WriteDiagnosticsNDJSON(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, d := range e.diagnostics {
		var b []byte
		var err error
		if e.includeTimestampFields {
			b, err = json.Marshal(d)
		} else {
			b, err = json.Marshal(d.toNoTimestamp())
		}
		if err != nil {
			return err
		}
		bw.Write(b)
		bw.WriteString("\n")
	}
	return bw.Flush()
}

func (e *Engine) WriteDiagnosticsNDJSONFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := e.WriteDiagnosticsNDJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type diagnosticNoTimestamp struct {
	Ts         time.Time `json:"ts"`
	File       string    `json:"file"`
	FrameIndex int       `json:"frameIndex"`
	Offset     string    `json:"offset,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	RuleId     string    `json:"ruleId"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	Refs       []string  `json:"refs"`
}

func (d Diagnostic) toNoTimestamp() diagnosticNoTimestamp {
	return diagnosticNoTimestamp{
		Ts:         d.Ts,
		File:       d.File,
		FrameIndex: d.FrameIndex,
		Offset:     d.Offset,
		Kind:       d.Kind,
		RuleId:     d.RuleId,
		Severity:   d.Severity,
		Message:    d.Message,
		Refs:       d.Refs,
	}
}

// SetConfigValue applies a string-keyed engine option.
func (e *Engine) SetConfigValue(key string, value any) {
	if e == nil {
		return
	}
	switch key {
	case "diag.include_timestamps":
		if b, ok := parseBool(value); ok {
			e.includeTimestampFields = b
		}
	case "decode.strict_elements":
		if b, ok := parseBool(value); ok {
			var opts []dot11.Option
			if b {
				opts = append(opts, dot11.WithStrictElements())
			}
			e.decoder = dot11.NewDecoder(e.decoder.Registry(), opts...)
		}
	case "workers":
		switch v := value.(type) {
		case int:
			e.SetConcurrency(v)
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				e.SetConcurrency(n)
			}
		}
	}
}

func parseBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	case fmt.Stringer:
		b, err := strconv.ParseBool(v.String())
		return b, err == nil
	}
	return false, false
}
