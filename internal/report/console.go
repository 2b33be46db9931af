package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"port-policy-auditor/internal/model"
)

// Matrix cell labels.
const (
	cellMatched       = "ok"
	cellViolated      = "FAIL"
	cellNotApplicable = ""
)

// RenderConsole writes the port matrix, then violations and unresolved servers.
func RenderConsole(w io.Writer, report *model.FleetReport) error {
	ports := report.AllPorts()

	header := []string{"ROLE", "ADDRESS", "SERVER"}
	for _, port := range ports {
		header = append(header, strconv.Itoa(int(port)))
	}
	matrix := pterm.TableData{header}

	for _, role := range report.Roles {
		for _, result := range role.Servers {
			row := []string{role.Name}
			switch server := result.(type) {
			case *model.ServerReport:
				row = append(row, server.Address.String(), server.Name)
			case *model.UnresolvedServer:
				row = append(row, pterm.Yellow("unresolved"), server.Name)
			}
			for _, port := range ports {
				row = append(row, cell(model.VerdictFor(result, port)))
			}
			matrix = append(matrix, row)
		}
	}
	if err := renderTable(w, matrix); err != nil {
		return err
	}

	if len(report.Violations) > 0 {
		fmt.Fprintln(w)
		violations := pterm.TableData{{"ROLE", "ADDRESS", "SERVER", "PORT", "EXPECTED", "ACTUAL"}}
		for _, v := range report.Violations {
			violations = append(violations, []string{
				v.Role, v.Address.String(), v.Server, strconv.Itoa(int(v.Port)), state(v.Expected), state(v.Actual),
			})
		}
		if err := renderTable(w, violations); err != nil {
			return err
		}
	}

	unresolved := report.Unresolved()
	if len(unresolved) > 0 {
		fmt.Fprintln(w)
		rows := pterm.TableData{{"SERVER", "ERROR"}}
		for _, u := range unresolved {
			rows = append(rows, []string{u.Name, u.Err.Error()})
		}
		if err := renderTable(w, rows); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\n%d violation(s), %d unresolved server(s)\n", len(report.Violations), len(unresolved))
	return nil
}

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.
		WithHasHeader(true).
		WithData(data).
		Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func cell(v model.Verdict) string {
	switch v.Kind {
	case model.Matched:
		return pterm.Green(cellMatched)
	case model.Violated:
		return pterm.Red(cellViolated)
	default:
		return cellNotApplicable
	}
}

func state(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}
