package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"port-policy-auditor/internal/model"
)

var header = []string{"role", "address", "server", "port", "expected", "actual", "verdict", "reason"}

// WriteCSV writes one record per verdict (and one per unresolved server) to
// all, and the violating records again to violations when it is non-nil.
func WriteCSV(all, violations io.Writer, report *model.FleetReport) error {
	allWriter := csv.NewWriter(all)
	var violationWriter *csv.Writer
	if violations != nil {
		violationWriter = csv.NewWriter(violations)
		if err := violationWriter.Write(header); err != nil {
			return err
		}
	}
	if err := allWriter.Write(header); err != nil {
		return err
	}

	for _, role := range report.Roles {
		for _, result := range role.Servers {
			switch server := result.(type) {
			case *model.UnresolvedServer:
				record := []string{role.Name, "", server.Name, "", "", "", "UNRESOLVED", server.Err.Error()}
				if err := allWriter.Write(record); err != nil {
					return err
				}
			case *model.ServerReport:
				for _, port := range role.Policy.Ports() {
					verdict := server.Verdicts[port]
					expected := role.Policy[port]
					actual := expected
					reason := "MATCH_POLICY"
					if verdict.IsViolation() {
						actual = verdict.Actual
						reason = "UNEXPECTED_" + stateUpper(actual)
					}
					record := []string{
						role.Name,
						server.Address.String(),
						server.Name,
						strconv.Itoa(int(port)),
						state(expected),
						state(actual),
						string(verdict.Kind),
						reason,
					}
					if err := allWriter.Write(record); err != nil {
						return err
					}
					if violationWriter != nil && verdict.IsViolation() {
						if err := violationWriter.Write(record); err != nil {
							return err
						}
					}
				}
			}
		}
	}

	allWriter.Flush()
	if err := allWriter.Error(); err != nil {
		return err
	}
	if violationWriter != nil {
		violationWriter.Flush()
		return violationWriter.Error()
	}
	return nil
}

func stateUpper(open bool) string {
	if open {
		return "OPEN"
	}
	return "CLOSED"
}
