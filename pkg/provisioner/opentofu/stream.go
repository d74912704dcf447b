package opentofu

import (
	"encoding/json"
	"strings"

	"github.com/terrazzo-io/tzctl/pkg/provisioner"
)

// streamResult accumulates what a tofu/terraform -json run emitted.
type streamResult struct {
	changes  []provisioner.PlannedChange
	summary  provisioner.ChangeSummary
	drift    bool
	warnings []provisioner.Diagnostic
	errors   []provisioner.Diagnostic
	logs     []string
}

// streamMessage is the subset of the machine-readable UI protocol we use.
type streamMessage struct {
	Level   string `json:"@level"`
	Message string `json:"@message"`
	Type    string `json:"type"`

	Change *struct {
		Resource struct {
			Addr         string `json:"addr"`
			Provider     string `json:"implied_provider"`
			ResourceType string `json:"resource_type"`
		} `json:"resource"`
		Action string `json:"action"`
	} `json:"change"`

	Changes *struct {
		Add    int `json:"add"`
		Change int `json:"change"`
		Remove int `json:"remove"`
	} `json:"changes"`

	Diagnostic *struct {
		Severity string `json:"severity"`
		Summary  string `json:"summary"`
		Detail   string `json:"detail"`
	} `json:"diagnostic"`
}

// parseStream parses the line-delimited JSON output of a -json run. Lines
// that are not valid JSON (e.g. init chatter) are kept as plain logs.
func parseStream(output string) streamResult {
	var result streamResult

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var msg streamMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			result.logs = append(result.logs, line)
			continue
		}

		if msg.Message != "" {
			result.logs = append(result.logs, msg.Message)
		}

		switch msg.Type {
		case "planned_change":
			if msg.Change == nil || msg.Change.Action == "noop" {
				continue
			}
			actions := splitAction(msg.Change.Action)
			result.changes = append(result.changes, provisioner.PlannedChange{
				Address:      msg.Change.Resource.Addr,
				Actions:      actions,
				ProviderName: msg.Change.Resource.Provider,
				ResourceType: msg.Change.Resource.ResourceType,
			})
			for _, action := range actions {
				switch action {
				case "create":
					result.summary.Add++
				case "update":
					result.summary.Change++
				case "delete":
					result.summary.Destroy++
				}
			}

		case "resource_drift":
			result.drift = true

		case "change_summary":
			if msg.Changes != nil {
				result.summary.Add = msg.Changes.Add
				result.summary.Change = msg.Changes.Change
				result.summary.Destroy = msg.Changes.Remove
			}

		case "diagnostic":
			if msg.Diagnostic == nil {
				continue
			}
			diag := provisioner.Diagnostic{
				Code:    "TF_DIAGNOSTIC",
				Message: msg.Diagnostic.Summary,
			}
			if msg.Diagnostic.Detail != "" {
				diag.Message += ": " + msg.Diagnostic.Detail
			}
			if msg.Diagnostic.Severity == "error" {
				result.errors = append(result.errors, diag)
			} else {
				result.warnings = append(result.warnings, diag)
			}
		}
	}

	return result
}

// splitAction maps the protocol's action string to the actions list. A
// replace is reported as the create/delete pair it performs.
func splitAction(action string) []string {
	if action == "replace" {
		return []string{"delete", "create"}
	}
	return []string{action}
}
