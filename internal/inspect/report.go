package inspect

import (
	"net"
	"sort"

	"example.com/dot11gate/internal/capture"
)

// Report summarises one inspection run.
type Report struct {
	Input   string `json:"input"`
	Format  string `json:"format,omitempty"`
	Sha256  string `json:"sha256,omitempty"`
	Summary struct {
		Frames       int  `json:"frames"`
		Decoded      int  `json:"decoded"`
		Malformed    int  `json:"malformed"`
		Unrecognized int  `json:"unrecognized"`
		Diagnostics  int  `json:"diagnostics"`
		Errors       int  `json:"errors"`
		Warnings     int  `json:"warnings"`
		Infos        int  `json:"infos"`
		Pass         bool `json:"pass"`
	} `json:"summary"`
	Kinds      map[string]int `json:"kinds"`
	Elements   map[string]int `json:"elements"`
	Networks   []NetworkSeen  `json:"networks"`
	Stations   []StationCount `json:"stations"`
	RuleMatrix []RuleCount    `json:"ruleMatrix"`
	Findings   []Diagnostic   `json:"findings,omitempty"`
}

type NetworkSeen struct {
	SSID   string `json:"ssid"`
	Name   string `json:"name,omitempty"`
	Frames int    `json:"frames"`
}

type StationCount struct {
	MAC    string `json:"mac"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
	Frames int    `json:"frames"`
}

type RuleCount struct {
	RuleId   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
}

type stats struct {
	input     string
	format    capture.Format
	sha256    string
	frames    int
	decoded   int
	malformed int
	unknown   int
	kinds     map[string]int
	elements  map[string]int
	ssids     map[string]int
	stations  map[string]int
	rules     map[string]*RuleCount
	bySev     map[Severity]int
}

func newStats(input string, format capture.Format) *stats {
	return &stats{
		input:    input,
		format:   format,
		kinds:    make(map[string]int),
		elements: make(map[string]int),
		ssids:    make(map[string]int),
		stations: make(map[string]int),
		rules:    make(map[string]*RuleCount),
		bySev:    make(map[Severity]int),
	}
}

func (s *stats) add(fr *FrameResult) {
	s.frames++
	if fr.Err != nil {
		s.malformed++
		return
	}
	s.decoded++
	f := fr.Frame
	s.kinds[f.Body.Kind.String()]++
	if !f.Recognized() {
		s.unknown++
	}
	seen := make(map[string]struct{}, 4)
	for _, addr := range f.Body.Addresses() {
		mac := addr.MAC()
		if isGroup(mac) {
			continue
		}
		key := mac.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		s.stations[key]++
	}
	for _, el := range fr.Elements {
		s.elements[el.Name()]++
		if ssid, ok := el.SSID(); ok && ssid != "" {
			s.ssids[ssid]++
		}
	}
}

func (s *stats) addDiagnostic(d Diagnostic) {
	s.bySev[d.Severity]++
	rc, ok := s.rules[d.RuleId]
	if !ok {
		rc = &RuleCount{RuleId: d.RuleId, Severity: d.Severity}
		s.rules[d.RuleId] = rc
	}
	rc.Count++
}

func isGroup(mac net.HardwareAddr) bool {
	return len(mac) == 0 || mac[0]&0x01 != 0
}

// MakeReport builds the summary of the last Eval. ERROR and WARN findings are
// listed; INFO findings are only counted.
func (e *Engine) MakeReport(ctx *Context) Report {
	var rep Report
	rep.Kinds = make(map[string]int)
	rep.Elements = make(map[string]int)
	s := e.stats
	if s == nil {
		rep.Summary.Pass = true
		return rep
	}
	rep.Input = s.input
	rep.Format = string(s.format)
	rep.Sha256 = s.sha256
	rep.Summary.Frames = s.frames
	rep.Summary.Decoded = s.decoded
	rep.Summary.Malformed = s.malformed
	rep.Summary.Unrecognized = s.unknown
	rep.Summary.Diagnostics = len(e.diagnostics)
	rep.Summary.Errors = s.bySev[ERROR]
	rep.Summary.Warnings = s.bySev[WARN]
	rep.Summary.Infos = s.bySev[INFO]
	rep.Summary.Pass = s.bySev[ERROR] == 0
	for k, v := range s.kinds {
		rep.Kinds[k] = v
	}
	for k, v := range s.elements {
		rep.Elements[k] = v
	}

	for ssid, n := range s.ssids {
		ns := NetworkSeen{SSID: ssid, Frames: n}
		if ctx != nil {
			if entry, ok := ctx.Stations.LookupNetwork(ssid); ok {
				ns.Name = entry.Name
			}
		}
		rep.Networks = append(rep.Networks, ns)
	}
	sort.Slice(rep.Networks, func(i, j int) bool { return rep.Networks[i].SSID < rep.Networks[j].SSID })

	for key, n := range s.stations {
		sc := StationCount{MAC: key, Frames: n}
		if ctx != nil {
			if mac, err := net.ParseMAC(key); err == nil {
				if entry, ok := ctx.Stations.LookupStation(mac); ok {
					sc.Name, sc.Role = entry.Name, entry.Role
				}
			}
		}
		rep.Stations = append(rep.Stations, sc)
	}
	sort.Slice(rep.Stations, func(i, j int) bool {
		a, b := rep.Stations[i], rep.Stations[j]
		if a.Frames != b.Frames {
			return a.Frames > b.Frames
		}
		return a.MAC < b.MAC
	})

	for _, rc := range s.rules {
		rep.RuleMatrix = append(rep.RuleMatrix, *rc)
	}
	sort.Slice(rep.RuleMatrix, func(i, j int) bool { return rep.RuleMatrix[i].RuleId < rep.RuleMatrix[j].RuleId })

	for _, d := range e.diagnostics {
		if d.Severity == ERROR || d.Severity == WARN {
			rep.Findings = append(rep.Findings, d)
		}
	}
	return rep
}
