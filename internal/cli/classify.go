// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/glance/internal/classify"
	"github.com/jeranaias/glance/internal/prompt"
)

// ClassifyData is the classify command result.
type ClassifyData struct {
	Descriptor  classify.Descriptor `json:"descriptor"`
	Category    string              `json:"category"`
	Temperature float64             `json:"temperature"`
}

// classifyText classifies text using the configured temperature for
// non-math content.
func classifyText(text string, temperature float64) ClassifyData {
	d := classify.Classify(text)
	temp := prompt.Temperature(d)
	if !d.IsMath {
		temp = temperature
	}
	return ClassifyData{Descriptor: d, Category: d.Category().String(), Temperature: temp}
}

// HandleClassify prints how text would be handled. No provider is called.
func HandleClassify(args Args, out io.Writer) error {
	text := strings.TrimSpace(args.Query)
	if text == "" {
		if stdin, ok := readPipedStdin(); ok {
			text = stdin
		}
	}
	if text == "" {
		return usageErrorf("classify: text is required")
	}

	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	data := classifyText(text, cfg.Temperature)

	if args.JSON {
		return NewJSONResponse("classify", data).Print(out)
	}

	d := data.Descriptor
	fmt.Fprintln(out, TitleStyle.Render("Classification"))
	fmt.Fprintln(out, RenderField("Category", data.Category))
	fmt.Fprintln(out, RenderField("Temperature", fmt.Sprintf("%.1f", data.Temperature)))
	fmt.Fprintln(out, RenderField("Words", fmt.Sprintf("%d", d.WordCount)))
	fmt.Fprintln(out, SectionStyle.Render("Flags"))
	for _, f := range []struct {
		name string
		on   bool
	}{
		{"math", d.IsMath},
		{"code", d.IsCode},
		{"question", d.IsQuestion},
		{"fill-in-the-blank", d.IsFillBlank},
		{"command", d.IsCommand},
		{"statement", d.IsStatement},
		{"long text", d.IsLongText},
	} {
		fmt.Fprintf(out, "  %s %s\n", RenderFlag(f.on), f.name)
	}
	return nil
}
