package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tsawler/trainchart/history"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <tensorboard-dir|event-file|history.json>",
	Short: "List the scalar tags and epochs found in a training run",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() || history.IsEventFile(path) {
		files, err := eventFilesUnder(path, info.IsDir())
		if err != nil {
			return err
		}
		if err := printTags(out, files); err != nil {
			return err
		}
	}

	h, err := loadHistory(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nepochs: %d", h.Len())
	if h.Len() > 0 {
		fmt.Fprintf(out, " (%d..%d)", h.Epochs[0], h.Epochs[h.Len()-1])
	}
	fmt.Fprintf(out, "\nchartable metrics: %s\n", strings.Join(h.MetricNames(), ", "))
	return nil
}

// eventFilesUnder returns path itself, or every event file below it
func eventFilesUnder(path string, dir bool) ([]string, error) {
	if !dir {
		return []string{path}, nil
	}
	var files []string
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && history.IsEventFile(p) {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func printTags(out io.Writer, files []string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTAG\tSTEPS\tFIRST\tLAST")

	for _, file := range files {
		events, err := history.ReadEventFile(file)
		if err != nil {
			return err
		}

		type span struct{ n, first, last int64 }
		tags := make(map[string]*span)
		for _, ev := range events {
			for tag := range ev.Scalars {
				sp, ok := tags[tag]
				if !ok {
					tags[tag] = &span{n: 1, first: ev.Step, last: ev.Step}
					continue
				}
				sp.n++
				sp.first = min(sp.first, ev.Step)
				sp.last = max(sp.last, ev.Step)
			}
		}

		names := make([]string, 0, len(tags))
		for tag := range tags {
			names = append(names, tag)
		}
		sort.Strings(names)
		for _, tag := range names {
			sp := tags[tag]
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", file, tag, sp.n, sp.first, sp.last)
		}
	}
	return tw.Flush()
}
