package plan

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pgcompose/pgcompose/internal/color"
	"github.com/pgcompose/pgcompose/internal/version"
	"github.com/pgcompose/pgcompose/ir"
)

// PlanJSON represents the structured JSON output format
type PlanJSON struct {
	Version           string                    `json:"version"`
	PgcomposeVersion  string                    `json:"pgcompose_version"`
	CreatedAt         time.Time                 `json:"created_at"`
	DryRun            bool                      `json:"dry_run"`
	SourceFingerprint string                    `json:"source_fingerprint,omitempty"`
	TargetFingerprint string                    `json:"target_fingerprint,omitempty"`
	Summary           PlanSummary               `json:"summary"`
	ObjectChanges     []ObjectChange            `json:"object_changes"`
	Steps             []Step                    `json:"steps"`
	Warnings          []string                  `json:"warnings,omitempty"`
	Unsupported       []*UnsupportedChangeError `json:"unsupported,omitempty"`
	Absorbed          []ir.QualifiedName        `json:"absorbed,omitempty"`
}

// PlanSummary provides counts of changes by type
type PlanSummary struct {
	Add     int                    `json:"add"`
	Change  int                    `json:"change"`
	Destroy int                    `json:"destroy"`
	Total   int                    `json:"total"`
	ByType  map[string]TypeSummary `json:"by_type"`
}

// TypeSummary provides counts for a specific object type
type TypeSummary struct {
	Add     int `json:"add"`
	Change  int `json:"change"`
	Destroy int `json:"destroy"`
}

// kindOrder is the display order of object types in human output.
var kindOrder = []ir.ObjectKind{
	ir.KindTable,
	ir.KindView,
	ir.KindMaterializedView,
	ir.KindFunction,
	ir.KindProcedure,
	ir.KindIndex,
	ir.KindPolicy,
	ir.KindGrant,
}

// ToJSON returns the plan as structured JSON
func (p *Plan) ToJSON() (string, error) {
	data, err := json.MarshalIndent(p.structured(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan to JSON: %w", err)
	}
	return string(data), nil
}

// MarshalJSON renders the plan in its structured JSON form.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.structured())
}

// Human returns a human-readable summary of the plan. Color is used only
// when enableColor is set and stdout is a terminal.
func (p *Plan) Human(enableColor bool) string {
	return p.human(color.New(enableColor))
}

func (p *Plan) human(c *color.Color) string {
	var out strings.Builder
	planJSON := p.structured()

	if planJSON.Summary.Total == 0 && len(p.Unsupported) == 0 {
		out.WriteString("No changes detected.\n")
		return out.String()
	}

	out.WriteString(c.FormatPlanHeader(planJSON.Summary.Add, planJSON.Summary.Change, planJSON.Summary.Destroy) + "\n\n")

	out.WriteString(c.Bold("Summary by type:") + "\n")
	for _, kind := range kindOrder {
		if ts, ok := planJSON.Summary.ByType[string(kind)]; ok {
			out.WriteString(c.FormatSummaryLine(string(kind), ts.Add, ts.Change, ts.Destroy) + "\n")
		}
	}
	out.WriteString("\n")

	for _, kind := range kindOrder {
		var changes []ObjectChange
		for _, ch := range planJSON.ObjectChanges {
			if ch.Type == kind {
				changes = append(changes, ch)
			}
		}
		if len(changes) == 0 {
			continue
		}
		display := strings.ReplaceAll(string(kind), "_", " ")
		fmt.Fprintf(&out, "%s:\n", c.Bold(strings.ToUpper(display[:1])+display[1:]+"s"))
		for _, ch := range changes {
			symbol := c.PlanSymbol("change")
			switch ch.Action {
			case "create":
				symbol = c.PlanSymbol("add")
			case "delete":
				symbol = c.PlanSymbol("destroy")
			}
			suffix := ""
			if ch.Action == "replace" {
				suffix = " (replace)"
			}
			fmt.Fprintf(&out, "  %s %s%s\n", symbol, ch.Address, suffix)
		}
		out.WriteString("\n")
	}

	if len(p.Warnings) > 0 {
		out.WriteString(c.Bold("Warnings:") + "\n")
		for _, w := range p.Warnings {
			fmt.Fprintf(&out, "  %s %s\n", c.Change("!"), w.Error())
		}
		out.WriteString("\n")
	}

	if len(p.Unsupported) > 0 {
		out.WriteString(c.Bold("Unsupported changes (not in the DDL below):") + "\n")
		for _, u := range p.Unsupported {
			fmt.Fprintf(&out, "  %s %s\n", c.Destroy("x"), u.Error())
		}
		out.WriteString("\n")
	}

	if p.DryRun {
		out.WriteString("Dry run: nothing will be executed.\n\n")
	}

	out.WriteString(c.Bold("DDL to be executed:") + "\n")
	out.WriteString(strings.Repeat("-", 50) + "\n\n")
	if sql := p.SQL(); sql != "" {
		out.WriteString(sql)
	} else {
		out.WriteString("-- No DDL statements generated\n")
	}
	return out.String()
}

func (p *Plan) structured() *PlanJSON {
	planJSON := &PlanJSON{
		Version:          version.PlanFormat(),
		PgcomposeVersion: version.App(),
		CreatedAt:        p.CreatedAt.Truncate(time.Second),
		DryRun:           p.DryRun,
		Summary:          PlanSummary{ByType: make(map[string]TypeSummary)},
		ObjectChanges:    slices.Clone(p.Changes),
		Steps:            slices.Clone(p.Steps),
		Unsupported:      p.Unsupported,
		Absorbed:         p.Absorbed,
	}
	if planJSON.ObjectChanges == nil {
		planJSON.ObjectChanges = []ObjectChange{}
	}
	if planJSON.Steps == nil {
		planJSON.Steps = []Step{}
	}
	if p.SourceFingerprint != nil {
		planJSON.SourceFingerprint = p.SourceFingerprint.Hash
	}
	if p.TargetFingerprint != nil {
		planJSON.TargetFingerprint = p.TargetFingerprint.Hash
	}
	for _, w := range p.Warnings {
		planJSON.Warnings = append(planJSON.Warnings, w.Error())
	}

	slices.SortFunc(planJSON.ObjectChanges, func(a, b ObjectChange) int {
		return strings.Compare(a.Address, b.Address)
	})

	for _, ch := range planJSON.ObjectChanges {
		stats := planJSON.Summary.ByType[string(ch.Type)]
		switch ch.Action {
		case "create":
			stats.Add++
			planJSON.Summary.Add++
		case "delete":
			stats.Destroy++
			planJSON.Summary.Destroy++
		default:
			stats.Change++
			planJSON.Summary.Change++
		}
		planJSON.Summary.ByType[string(ch.Type)] = stats
	}
	planJSON.Summary.Total = planJSON.Summary.Add + planJSON.Summary.Change + planJSON.Summary.Destroy
	return planJSON
}
