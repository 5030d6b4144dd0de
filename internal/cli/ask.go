// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/glance/internal/assistant"
	"github.com/jeranaias/glance/internal/render"
	"github.com/jeranaias/glance/internal/storage"
	"github.com/jeranaias/glance/internal/thread"
)

// maxImageBytes bounds --image files.
const maxImageBytes = 20 << 20

// HandleAsk runs one analysis and prints the answer to out. Progress and
// the result footer go to errOut.
func HandleAsk(ctx context.Context, args Args, out, errOut io.Writer) error {
	in, err := askInput(args)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, args)
	if err != nil {
		return err
	}
	defer a.Close()

	if in.FollowUp && in.ThreadID == "" {
		latest, err := a.history.Latest(ctx)
		if errors.Is(err, storage.ErrThreadNotFound) {
			return usageErrorf("no previous thread to follow up on")
		}
		if err != nil {
			return &CommandError{Command: "ask", Action: "load latest thread", Err: err}
		}
		in.ThreadID = latest.ID
	}

	if args.JSON {
		return outputJSON(out, "ask", func() (any, error) {
			res := a.assistant.Analyze(ctx, in)
			if !res.Success {
				return res, res.Err
			}
			return res, nil
		})
	}

	events, err := a.assistant.AnalyzeStream(ctx, in)
	if err != nil {
		return err
	}

	tty := isTerminal(out) && !args.Plain
	if tty && !args.Quiet {
		fmt.Fprintln(errOut, DimStyle.Render("Thinking..."))
	}

	var done *assistant.Event
	for ev := range events {
		switch ev.Kind {
		case assistant.EventChunk:
			// Non-terminal output streams raw so pipes see text as it arrives.
			if !tty && !args.Plain {
				io.WriteString(out, ev.Chunk)
			}
		case assistant.EventDone, assistant.EventError:
			e := ev
			done = &e
		}
	}

	if done == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.Canceled
	}
	if done.Kind == assistant.EventError {
		return done.Err
	}

	switch {
	case args.Plain:
		fmt.Fprintln(out, render.Plain(done.FullAnswer))
	case tty:
		r, err := render.NewTerminal(a.cfg.Output.Style, min(a.cfg.Output.Width, terminalWidth(out)))
		if err != nil {
			fmt.Fprintln(out, done.FullAnswer)
		} else {
			fmt.Fprint(out, r.Render(done.FullAnswer))
		}
	default:
		fmt.Fprintln(out)
	}

	if !args.Quiet {
		fmt.Fprintf(errOut, "%s %s\n",
			RenderConfidence(done.Confidence),
			DimStyle.Render(fmt.Sprintf("%d%% · %s · %dms · thread %s",
				done.Confidence, done.Category, done.LatencyMs, done.ThreadID)))
	}
	return nil
}

// askInput builds the analysis input from flags.
func askInput(args Args) (assistant.Input, error) {
	in := assistant.Input{
		Text:     strings.TrimSpace(args.Query),
		FollowUp: args.FollowUp,
		ThreadID: args.ThreadID,
	}

	if in.Text == "" && args.ImagePath == "" {
		if stdin, ok := readPipedStdin(); ok {
			in.Text = stdin
		}
	}

	if args.ImagePath != "" {
		img, err := readImage(args.ImagePath)
		if err != nil {
			return in, err
		}
		in.Image = img
	}

	if in.Text == "" && in.Image == nil {
		return in, usageErrorf("ask: nothing to analyze (pass text, --image, or pipe text on stdin)")
	}
	return in, nil
}

// readImage loads and sniffs an image file.
func readImage(path string) (*thread.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &CommandError{Command: "ask", Action: "read image", Err: err}
	}
	if info.Size() > maxImageBytes {
		return nil, usageErrorf("ask: image %s is larger than %d MB", path, maxImageBytes>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CommandError{Command: "ask", Action: "read image", Err: err}
	}
	img := thread.NewImage(data)
	if !img.IsImage() {
		return nil, usageErrorf("ask: %s is not an image (detected %s)", path, img.MediaType)
	}
	return img, nil
}

// readPipedStdin returns stdin when it is piped rather than a terminal.
func readPipedStdin() (string, bool) {
	if isTerminalFile(os.Stdin) {
		return "", false
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, assistant.MaxInputBytes+1))
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(string(data))
	return text, text != ""
}
