// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/jeranaias/glance/internal/thread"
)

// =============================================================================
// MARKDOWN TO HTML
// =============================================================================

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)

	// SECURITY: Answers are untrusted model output; only user-generated
	// content markup survives.
	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "div", "span")
	return p
}

// HTML renders an answer as sanitized HTML suitable for the overlay.
func HTML(answer string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(answer), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return string(policy.SanitizeBytes(buf.Bytes())), nil
}

// =============================================================================
// THREAD PAGE
// =============================================================================

// ThreadHTML renders a whole thread as a standalone HTML page.
// theme is "dark" or "light"; anything else selects dark.
func ThreadHTML(t thread.Thread, theme string) (string, error) {
	if len(t.Turns) == 0 {
		return "", fmt.Errorf("thread %s has no turns", t.ID)
	}
	if theme != "light" {
		theme = "dark"
	}

	title := html.EscapeString(t.Title())

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", title)
	sb.WriteString("    <meta name=\"generator\" content=\"glance\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", t.CreatedAt.Format(time.RFC3339))
	sb.WriteString(pageCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(&sb, "            <h1>%s</h1>\n", title)
	sb.WriteString("            <div class=\"metadata\">\n")
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Turns:</strong> %d</span>\n", len(t.Turns))
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, turn := range t.Turns {
		msg, err := renderTurn(turn)
		if err != nil {
			return "", err
		}
		sb.WriteString(msg)
	}
	sb.WriteString("        </main>\n")
	sb.WriteString("    </div>\n</body>\n</html>\n")

	return sb.String(), nil
}

func renderTurn(turn thread.Turn) (string, error) {
	var sb strings.Builder

	label := "[User]"
	if turn.Role == thread.RoleAssistant {
		label = "[Assistant]"
	}

	fmt.Fprintf(&sb, "            <div class=\"message %s-message\">\n", turn.Role)
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(&sb, "                    <span class=\"role-label\">%s</span>\n", label)
	fmt.Fprintf(&sb, "                    <span class=\"timestamp\">%s</span>\n", turn.CreatedAt.Format("15:04:05"))
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	if turn.Image.IsImage() {
		fmt.Fprintf(&sb, "<p class=\"image\">[image: %s, %d bytes]</p>\n", html.EscapeString(turn.Image.MediaType), len(turn.Image.Data))
	}
	if turn.Text != "" {
		body, err := HTML(turn.Text)
		if err != nil {
			return "", err
		}
		sb.WriteString(body)
	}
	sb.WriteString("                </div>\n")

	if turn.Confidence != nil {
		fmt.Fprintf(&sb, "                <div class=\"message-stats\"><span class=\"stat\">Confidence: %d%%</span></div>\n", *turn.Confidence)
	}
	sb.WriteString("            </div>\n")

	return sb.String(), nil
}

const pageCSS = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", monospace;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --bg-tertiary: #414868;
            --text-primary: #c0caf5;
            --text-muted: #565f89;
            --user-bg: #1f2335;
            --assistant-bg: #24283b;
            --code-bg: #1a1b26;
            --accent: #7aa2f7;
        }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --bg-tertiary: #e1e4e8;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --user-bg: #f6f8fa;
            --assistant-bg: #ffffff;
            --code-bg: #f6f8fa;
            --accent: #0366d6;
        }

        body {
            font-family: var(--font-sans);
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 20px;
        }

        .container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 32px; background: var(--bg-tertiary); }
        .header h1 { font-size: 24px; margin-bottom: 12px; }
        .metadata { display: flex; gap: 16px; font-size: 14px; color: var(--text-muted); }
        .conversation { padding: 24px; }
        .message { padding: 16px 20px; margin-bottom: 16px; border-radius: 8px; }
        .user-message { background: var(--user-bg); border-left: 3px solid var(--accent); }
        .assistant-message { background: var(--assistant-bg); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 8px; font-size: 13px; color: var(--text-muted); }
        .message-content pre { background: var(--code-bg); padding: 12px; border-radius: 6px; overflow-x: auto; font-family: var(--font-mono); }
        .message-content code { font-family: var(--font-mono); }
        .message-stats { margin-top: 8px; font-size: 12px; color: var(--text-muted); }

        @media (max-width: 768px) {
            body { padding: 10px; }
            .header, .conversation { padding: 16px; }
        }
    </style>
`
