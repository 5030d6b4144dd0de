// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/glance/internal/render"
	"github.com/jeranaias/glance/internal/storage"
	"github.com/jeranaias/glance/internal/thread"
	"github.com/jeranaias/glance/internal/util"
)

// HandleThreads lists, shows or deletes stored threads.
func HandleThreads(ctx context.Context, args Args, out io.Writer) error {
	a, err := openApp(ctx, args)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args.Subcommand {
	case "", "list", "ls":
		list, err := a.history.List(ctx)
		if err != nil {
			return &CommandError{Command: "threads", Action: "list", Err: err}
		}
		if args.JSON {
			if list == nil {
				list = []storage.ThreadMeta{}
			}
			return NewJSONResponse("threads", list).Print(out)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, DimStyle.Render("No threads yet."))
			return nil
		}
		width := terminalWidth(out)
		for _, m := range list {
			fmt.Fprintf(out, "%s  %s  %s\n",
				ValueStyle.Render(m.ID),
				DimStyle.Render(fmt.Sprintf("%s · %d turns", m.UpdatedAt.Local().Format("Jan 02 15:04"), m.Turns)),
				util.TruncateWidth(m.Title, max(20, width-len(m.ID)-30)))
		}
		return nil

	case "show":
		t, err := a.history.Get(ctx, firstArg(args))
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("threads", t).Print(out)
		}
		fmt.Fprint(out, storage.ExportMarkdown(t))
		return nil

	case "delete", "rm":
		id := firstArg(args)
		if id == "" {
			return usageErrorf("threads delete: thread id is required")
		}
		if err := a.history.Delete(ctx, id); err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("threads", map[string]string{"deleted": id}).Print(out)
		}
		fmt.Fprintln(out, SuccessStyle.Render("Deleted thread "+id))
		return nil

	case "clear":
		if err := a.history.Clear(ctx); err != nil {
			return &CommandError{Command: "threads", Action: "clear", Err: err}
		}
		if args.JSON {
			return NewJSONResponse("threads", map[string]bool{"cleared": true}).Print(out)
		}
		fmt.Fprintln(out, SuccessStyle.Render("All threads deleted."))
		return nil

	default:
		return usageErrorf("threads: unknown subcommand %q", args.Subcommand)
	}
}

func firstArg(args Args) string {
	if len(args.Raw) == 0 {
		return ""
	}
	return args.Raw[0]
}

// HandleExport writes a thread in the requested format.
func HandleExport(ctx context.Context, args Args, out io.Writer) error {
	a, err := openApp(ctx, args)
	if err != nil {
		return err
	}
	defer a.Close()

	var t thread.Thread
	if args.ThreadID != "" {
		t, err = a.history.Get(ctx, args.ThreadID)
	} else {
		t, err = a.history.Latest(ctx)
	}
	if errors.Is(err, storage.ErrThreadNotFound) && args.ThreadID == "" {
		return usageErrorf("export: no threads to export")
	}
	if err != nil {
		return err
	}

	data, err := exportThread(t, args.Format, args.Theme)
	if err != nil {
		return err
	}

	if args.Output == "" {
		_, err := out.Write(data)
		return err
	}
	if err := util.AtomicWriteFile(args.Output, data, 0644); err != nil {
		return &CommandError{Command: "export", Action: "write " + args.Output, Err: err}
	}
	if !args.Quiet {
		fmt.Fprintln(os.Stderr, SuccessStyle.Render("Exported thread "+t.ID+" to "+args.Output))
	}
	return nil
}

// exportThread encodes t as markdown, yaml, html or json.
func exportThread(t thread.Thread, format, theme string) ([]byte, error) {
	switch format {
	case "", "markdown", "md":
		return []byte(storage.ExportMarkdown(t)), nil
	case "yaml", "yml":
		return storage.ExportYAML(t)
	case "html":
		page, err := render.ThreadHTML(t, theme)
		if err != nil {
			return nil, err
		}
		return []byte(page), nil
	case "json":
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, usageErrorf("export: unknown format %q (want markdown, yaml, html or json)", format)
	}
}
