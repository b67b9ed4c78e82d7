package report

import (
	"encoding/json"
	"os"

	"example.com/dot11gate/internal/common"
	"example.com/dot11gate/internal/inspect"
)

func SaveInspectionJSON(rep inspect.Report, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(out, append(b, '\n'), 0o644)
}

func LoadInspectionJSON(path string) (inspect.Report, error) {
	var rep inspect.Report
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
