// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jeranaias/glance/internal/telemetry"
	"github.com/jeranaias/glance/internal/util"
)

// recentHistory is how many history entries stats prints.
const recentHistory = 10

// HandleStats shows or resets usage statistics.
func HandleStats(ctx context.Context, args Args, out io.Writer) error {
	a, err := openApp(ctx, args)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args.Subcommand {
	case "", "show":
		rec := a.tracker.Snapshot()
		if args.JSON {
			return NewJSONResponse("stats", rec).Print(out)
		}
		fmt.Fprint(out, formatStats(rec))
		return nil

	case "reset", "clear":
		if err := a.tracker.Reset(ctx); err != nil {
			return &CommandError{Command: "stats", Action: "reset", Err: err}
		}
		if args.JSON {
			return NewJSONResponse("stats", map[string]bool{"reset": true}).Print(out)
		}
		fmt.Fprintln(out, SuccessStyle.Render("Usage statistics reset."))
		return nil

	default:
		return usageErrorf("stats: unknown subcommand %q (want show or reset)", args.Subcommand)
	}
}

// formatStats renders the usage aggregate for the terminal.
func formatStats(rec telemetry.Record) string {
	var sb strings.Builder

	sb.WriteString(TitleStyle.Render("Usage"))
	sb.WriteString("\n")
	sb.WriteString(RenderField("Requests", fmt.Sprintf("%d", rec.TotalRequests)) + "\n")
	sb.WriteString(RenderField("Successful", fmt.Sprintf("%d", rec.SuccessfulRequests)) + "\n")
	sb.WriteString(RenderField("Failed", fmt.Sprintf("%d", rec.FailedRequests)) + "\n")
	sb.WriteString(RenderField("Success rate", fmt.Sprintf("%.1f%%", rec.SuccessRate()*100)) + "\n")
	sb.WriteString(RenderField("Avg response time", fmt.Sprintf("%.0fms", rec.AverageResponseTime)) + "\n")

	writeCounts(&sb, "Providers", rec.ProviderUsage)
	writeCounts(&sb, "Models", rec.ModelUsage)
	writeCounts(&sb, "Content types", rec.ContentTypeUsage)

	if len(rec.History) > 0 {
		sb.WriteString(SectionStyle.Render("Recent"))
		sb.WriteString("\n")
		start := max(0, len(rec.History)-recentHistory)
		for i := len(rec.History) - 1; i >= start; i-- {
			sb.WriteString("  " + formatHistoryEntry(rec.History[i]) + "\n")
		}
	}
	return sb.String()
}

func formatHistoryEntry(h telemetry.HistoryEntry) string {
	status := SuccessStyle.Render("ok  ")
	detail := ""
	if h.LatencyMs != nil {
		detail = fmt.Sprintf("%dms", *h.LatencyMs)
	}
	if !h.Success {
		status = ErrorStyle.Render("fail")
		detail = util.TruncateRunes(util.SingleLine(h.Error), 60)
	}
	return fmt.Sprintf("%s %s %s %s %s",
		DimStyle.Render(h.Timestamp.Local().Format("Jan 02 15:04")),
		status,
		ValueStyle.Render(h.Provider+"/"+h.Model),
		DimStyle.Render(h.ContentType),
		detail)
}

// writeCounts writes a section of name/count pairs, highest first.
func writeCounts(sb *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	sb.WriteString(SectionStyle.Render(title))
	sb.WriteString("\n")
	for _, name := range names {
		sb.WriteString("  " + RenderField(name, fmt.Sprintf("%d", counts[name])) + "\n")
	}
}
