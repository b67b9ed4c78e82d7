package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/dot11gate/internal/capture"
	"example.com/dot11gate/internal/common"
	"example.com/dot11gate/internal/dict"
	"example.com/dot11gate/internal/dot11"
	"example.com/dot11gate/internal/inspect"
	"example.com/dot11gate/internal/manifest"
	"example.com/dot11gate/internal/report"
	"example.com/dot11gate/internal/samples"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// defaultStationsFile is looked up next to the capture when --stations is not
// given.
const defaultStationsFile = "stations.yaml"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "decode":
		decodeCmd(os.Args[2:])
	case "inspect":
		inspectCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "samples":
		samplesCmd(os.Args[2:])
	case "registry":
		registryCmd(os.Args[2:])
	case "manifest":
		manifestCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`dot11ctl %s (built %s) <command> [options]

Commands:
  decode    (--hex <frame> | --in <capture> [--index <n>] [--limit <n>]) [--strict] [--stations <file>] [--json]
  inspect   --in <capture> [--rules <rulepack>] [--stations <file>] --out <diagnostics.ndjson> --report <inspection.json>
  report    --report <inspection.json> --pdf <report.pdf> [--lang en|tr]
  batch     --in <dir> --out-dir <dir> [--rules <rulepack>] [--pdf] [--manifest] [--sign-key <key.pem>]
  samples   --out <dir>
  registry
  manifest  --out <manifest.json> [--sign-key <key.pem>] <files...>
  manifest  --verify <manifest.json> [--key <key.pem>]
`, version, buildDate)
}

func decodeCmd(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	hexFrame := fs.String("hex", "", "frame bytes as hex")
	in := fs.String("in", "", "input capture (pcap or pcapng)")
	index := fs.Int("index", -1, "decode only this frame index")
	limit := fs.Int("limit", 0, "stop after this many frames (0 = all)")
	strict := fs.Bool("strict", false, "fail frames whose element sequence is truncated")
	stationsPath := fs.String("stations", "", "station dictionary (yaml or json)")
	asJSON := fs.Bool("json", false, "print JSON instead of text")
	fs.Parse(args)

	if (*hexFrame == "") == (*in == "") {
		fmt.Println("exactly one of --hex or --in is required")
		os.Exit(1)
	}
	var opts []dot11.Option
	if *strict {
		opts = append(opts, dot11.WithStrictElements())
	}
	dec := dot11.NewDecoder(nil, opts...)
	stations, err := loadStations(*in, *stationsPath)
	if err != nil {
		fmt.Println("stations:", err)
		os.Exit(1)
	}

	if *hexFrame != "" {
		buf, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "").Replace(*hexFrame))
		if err != nil {
			fmt.Println("hex:", err)
			os.Exit(1)
		}
		f, err := dec.Decode(buf)
		if err != nil {
			fmt.Println("decode:", err)
			os.Exit(1)
		}
		printFrame(os.Stdout, -1, inspect.Describe(f, stations), *asJSON)
		return
	}

	rd, err := capture.Open(*in)
	if err != nil {
		fmt.Println("open capture:", err)
		os.Exit(1)
	}
	defer rd.Close()
	printed := 0
	failed := 0
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, capture.ErrRadiotap) {
			fmt.Println("read:", err)
			os.Exit(1)
		}
		if *index >= 0 && rec.Index != *index {
			continue
		}
		if err != nil {
			fmt.Printf("#%d: %v\n", rec.Index, err)
			failed++
		} else if f, derr := dec.Decode(rec.Data); derr != nil {
			fmt.Printf("#%d: %v\n", rec.Index, derr)
			failed++
		} else {
			printFrame(os.Stdout, rec.Index, inspect.Describe(f, stations), *asJSON)
		}
		printed++
		if *index >= 0 || (*limit > 0 && printed >= *limit) {
			break
		}
	}
	if *index >= 0 && printed == 0 {
		fmt.Printf("frame %d not found\n", *index)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func printFrame(w io.Writer, index int, v inspect.FrameView, asJSON bool) {
	if asJSON {
		b, _ := json.Marshal(v)
		fmt.Fprintln(w, string(b))
		return
	}
	if index >= 0 {
		fmt.Fprintf(w, "#%d ", index)
	}
	fmt.Fprintf(w, "%s %s/%s kind=%s dur=%d", v.Control, v.Type, v.SubtypeName, v.Kind, v.Duration)
	if v.Flags != "" {
		fmt.Fprintf(w, " flags=%s", v.Flags)
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range v.Fields {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Name, f.Value, f.Label)
	}
	for _, el := range v.Elements {
		val := el.Value
		for _, f := range el.Fields {
			val += fmt.Sprintf(" %s=%s", f.Name, f.Value)
		}
		fmt.Fprintf(tw, "  [%d] %s\t%s\t%s\n", el.ID, el.Name, strings.TrimSpace(val), shortMark(el.Short))
	}
	tw.Flush()
	if v.ElementError != "" {
		fmt.Fprintf(w, "  elements: %s\n", v.ElementError)
	}
	if v.PayloadLen > 0 {
		fmt.Fprintf(w, "  payload %d bytes\n", v.PayloadLen)
	}
}

func shortMark(short bool) string {
	if short {
		return "(short)"
	}
	return ""
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	in := fs.String("in", "", "input capture (pcap or pcapng)")
	rulesPath := fs.String("rules", "", "rule pack (json or yaml); built-in pack when empty")
	stationsPath := fs.String("stations", "", "station dictionary (yaml or json)")
	outDiag := fs.String("out", "diagnostics.ndjson", "diagnostics output")
	outRep := fs.String("report", "inspection.json", "inspection report json")
	includeTimestamps := fs.Bool("diag-include-timestamps", true, "include capture timestamps in diagnostics output")
	strict := fs.Bool("strict", false, "fail frames whose element sequence is truncated")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "decode workers")
	metricsFlag := fs.Bool("metrics", false, "print decode throughput metrics")
	progressFlag := fs.Bool("progress", false, "display decode progress updates")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
	}
	opts := runOptions{
		rulesPath:         *rulesPath,
		stationsPath:      *stationsPath,
		includeTimestamps: *includeTimestamps,
		strict:            *strict,
		concurrency:       *concurrency,
		metrics:           metrics,
		progress:          *progressFlag,
	}
	rep, diags, err := runInspection(*in, *outDiag, *outRep, opts)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Printf("PASS=%v, frames=%d, errors=%d, warnings=%d, diagnostics=%d\n",
		rep.Summary.Pass, rep.Summary.Frames, rep.Summary.Errors, rep.Summary.Warnings, diags)
	if metrics != nil && *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Printf("Metrics: duration=%s frames=%d malformed=%d unknown=%d processed=%s rate=%.0f frames/s\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Frames,
			snap.Malformed,
			snap.Unknown,
			common.FormatBytes(snap.Bytes),
			snap.FramesPerSecond(),
		)
	}
}

type runOptions struct {
	rulesPath         string
	stationsPath      string
	includeTimestamps bool
	strict            bool
	concurrency       int
	metrics           *common.Metrics
	progress          bool
}

// runInspection evaluates one capture and writes its diagnostics and report.
func runInspection(in, outDiag, outRep string, opts runOptions) (inspect.Report, int, error) {
	rp := inspect.DefaultRulePack()
	if opts.rulesPath != "" {
		var err error
		if rp, err = inspect.LoadRulePack(opts.rulesPath); err != nil {
			return inspect.Report{}, 0, fmt.Errorf("load rulepack: %w", err)
		}
	}
	engine := inspect.NewEngine(rp)
	engine.RegisterBuiltins()
	engine.SetConfigValue("diag.include_timestamps", opts.includeTimestamps)
	engine.SetConfigValue("decode.strict_elements", opts.strict)
	engine.SetConcurrency(opts.concurrency)

	stations, err := loadStations(in, opts.stationsPath)
	if err != nil {
		return inspect.Report{}, 0, fmt.Errorf("stations: %w", err)
	}
	ctx := &inspect.Context{InputFile: in, Stations: stations, Metrics: opts.metrics}
	var stopProgress func()
	if opts.metrics != nil && opts.progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, opts.metrics, 500*time.Millisecond)
	}
	diags, err := engine.Eval(ctx)
	if stopProgress != nil {
		stopProgress()
	}
	if err != nil {
		return inspect.Report{}, 0, fmt.Errorf("eval: %w", err)
	}
	if err := engine.WriteDiagnosticsNDJSONFile(outDiag); err != nil {
		return inspect.Report{}, 0, fmt.Errorf("write diags: %w", err)
	}
	rep := engine.MakeReport(ctx)
	if err := report.SaveInspectionJSON(rep, outRep); err != nil {
		return inspect.Report{}, 0, fmt.Errorf("write report: %w", err)
	}
	return rep, len(diags), nil
}

// loadStations loads the dictionary named by flagValue, or a stations.yaml
// sitting next to the capture. A missing default file is not an error.
func loadStations(input, flagValue string) (*dict.Store, error) {
	path := strings.TrimSpace(flagValue)
	if path != "" {
		store, err := dict.EnsureLoaded(path)
		if err != nil {
			return nil, fmt.Errorf("load dictionary %s: %w", path, err)
		}
		return store, nil
	}
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	resolved := dict.ResolvePath(input, defaultStationsFile)
	if _, err := os.Stat(resolved); err != nil {
		return nil, nil
	}
	store, err := dict.EnsureLoaded(resolved)
	if err != nil {
		return nil, fmt.Errorf("load dictionary %s: %w", resolved, err)
	}
	return store, nil
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	repPath := fs.String("report", "", "inspection.json")
	pdfPath := fs.String("pdf", "", "output report PDF")
	langFlag := fs.String("lang", os.Getenv("LANG"), "report language (en, tr)")
	maxFindings := fs.Int("max-findings", 0, "findings listed in the PDF (0 = default)")
	fs.Parse(args)

	if *repPath == "" {
		fmt.Println("required: --report")
		os.Exit(1)
	}
	rep, err := report.LoadInspectionJSON(*repPath)
	if err != nil {
		fmt.Println("load report:", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, rep)
	if *pdfPath == "" {
		return
	}
	lang, err := report.ParseLanguage(*langFlag)
	if err != nil {
		fmt.Printf("%v; using %s\n", err, lang)
	}
	if err := report.SaveInspectionPDF(rep, *pdfPath, report.PDFOptions{Lang: lang, MaxFindings: *maxFindings}); err != nil {
		fmt.Println("write pdf:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote PDF:", *pdfPath)
}

func printSummary(w io.Writer, rep inspect.Report) {
	fmt.Fprintf(w, "Input: %s (%s)\n", rep.Input, rep.Format)
	fmt.Fprintf(w, "SHA256: %s\n", rep.Sha256)
	s := rep.Summary
	fmt.Fprintf(w, "PASS=%v frames=%d decoded=%d malformed=%d unrecognized=%d errors=%d warnings=%d infos=%d\n",
		s.Pass, s.Frames, s.Decoded, s.Malformed, s.Unrecognized, s.Errors, s.Warnings, s.Infos)
	kinds := make([]string, 0, len(rep.Kinds))
	for k := range rep.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tFRAMES")
	for _, k := range kinds {
		fmt.Fprintf(tw, "%s\t%d\n", k, rep.Kinds[k])
	}
	if len(rep.RuleMatrix) > 0 {
		fmt.Fprintln(tw, "\nRULE\tSEVERITY\tCOUNT")
		for _, rc := range rep.RuleMatrix {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", rc.RuleId, rc.Severity, rc.Count)
		}
	}
	tw.Flush()
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory")
	rulesPath := fs.String("rules", "", "rule pack (json or yaml)")
	outDir := fs.String("out-dir", "out", "results directory")
	pdf := fs.Bool("pdf", false, "also render a PDF per capture")
	langFlag := fs.String("lang", os.Getenv("LANG"), "report language (en, tr)")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "decode workers")
	withManifest := fs.Bool("manifest", false, "write manifest.json per capture")
	signKey := fs.String("sign-key", "", "RSA private key (PEM) used to sign manifests")
	fs.Parse(args)

	var keyPEM []byte
	if *signKey != "" {
		b, err := os.ReadFile(*signKey)
		if err != nil {
			fmt.Println("read signing key:", err)
			os.Exit(1)
		}
		keyPEM = b
		*withManifest = true
	}

	inputs, err := findCaptures(*inDir)
	if err != nil {
		fmt.Println("scan inputs:", err)
		os.Exit(1)
	}
	if len(inputs) == 0 {
		fmt.Println("no captures found in", *inDir)
		return
	}
	lang, _ := report.ParseLanguage(*langFlag)
	failed := 0
	for _, in := range inputs {
		name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		dir := filepath.Join(*outDir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Println("create output dir:", err)
			os.Exit(1)
		}
		outputs := []string{in, filepath.Join(dir, "diagnostics.ndjson"), filepath.Join(dir, "inspection.json")}
		rep, diags, err := runInspection(in, outputs[1], outputs[2],
			runOptions{rulesPath: *rulesPath, includeTimestamps: true, concurrency: *concurrency})
		if err != nil {
			fmt.Printf("%s: %v\n", in, err)
			failed++
			continue
		}
		if *pdf {
			pdfPath := filepath.Join(dir, "inspection.pdf")
			if err := report.SaveInspectionPDF(rep, pdfPath, report.PDFOptions{Lang: lang}); err != nil {
				fmt.Printf("%s: write pdf: %v\n", in, err)
				failed++
				continue
			}
			outputs = append(outputs, pdfPath)
		}
		if *withManifest {
			if err := writeManifest(outputs, filepath.Join(dir, "manifest.json"), keyPEM); err != nil {
				fmt.Printf("%s: manifest: %v\n", in, err)
				failed++
				continue
			}
		}
		fmt.Printf("%s: PASS=%v frames=%d diagnostics=%d\n", in, rep.Summary.Pass, rep.Summary.Frames, diags)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func findCaptures(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pcap", ".pcapng", ".cap":
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func samplesCmd(args []string) {
	fs := flag.NewFlagSet("samples", flag.ExitOnError)
	outDir := fs.String("out", ".", "output directory for generated sample files")
	fs.Parse(args)

	if err := samples.WriteFiles(*outDir); err != nil {
		fmt.Println("generate samples:", err)
		os.Exit(1)
	}
	for _, name := range []string{samples.CleanFileName, samples.FaultyFileName, samples.StationsFileName} {
		fmt.Println("Wrote", filepath.Join(*outDir, name))
	}
}

func registryCmd(args []string) {
	fs := flag.NewFlagSet("registry", flag.ExitOnError)
	fs.Parse(args)

	reg := dot11.DefaultRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTYPE\tSUBTYPE\tPROTECTED\tKIND")
	for _, key := range reg.Keys() {
		kind, _ := reg.LookupKey(key)
		t, sub, prot := key.Split()
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\n", key, t, dot11.SubtypeName(t, sub), prot, kind)
	}
	w.Flush()
}

func manifestCmd(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	out := fs.String("out", "manifest.json", "manifest output path")
	signKey := fs.String("sign-key", "", "RSA private key (PEM) for a detached JWS")
	verify := fs.String("verify", "", "manifest to verify instead of building one")
	keyPath := fs.String("key", "", "public or private key (PEM) used with --verify")
	fs.Parse(args)

	if *verify != "" {
		verifyManifest(*verify, *keyPath)
		return
	}
	if fs.NArg() == 0 {
		fmt.Println("manifest: no input files")
		os.Exit(1)
	}
	var keyPEM []byte
	if *signKey != "" {
		b, err := os.ReadFile(*signKey)
		if err != nil {
			fmt.Println("read signing key:", err)
			os.Exit(1)
		}
		keyPEM = b
	}
	if err := writeManifest(fs.Args(), *out, keyPEM); err != nil {
		fmt.Println("manifest:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote", *out)
	if keyPEM != nil {
		fmt.Println("Wrote", *out+manifest.SignatureExt)
	}
}

func writeManifest(paths []string, out string, keyPEM []byte) error {
	m, err := manifest.Build(paths)
	if err != nil {
		return err
	}
	if keyPEM == nil {
		return manifest.Save(m, out)
	}
	_, err = manifest.SignAndSave(m, out, keyPEM)
	return err
}

func verifyManifest(path, keyPath string) {
	var (
		m   manifest.Manifest
		err error
	)
	if keyPath != "" {
		keyPEM, rerr := os.ReadFile(keyPath)
		if rerr != nil {
			fmt.Println("read key:", rerr)
			os.Exit(1)
		}
		m, err = manifest.VerifyFile(path, keyPEM)
		if err == nil {
			fmt.Printf("signature OK (kid %s)\n", m.Signature.KeyID)
		}
	} else {
		m, err = manifest.Load(path)
	}
	if err != nil {
		fmt.Println("verify:", err)
		os.Exit(1)
	}
	bad := manifest.Check(m, "")
	for _, b := range bad {
		fmt.Printf("%s: %s\n", b.Path, b.Reason)
	}
	if len(bad) > 0 {
		os.Exit(1)
	}
	fmt.Printf("%d items OK\n", len(m.Items))
}
