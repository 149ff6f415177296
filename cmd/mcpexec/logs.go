package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

func newLogsCmd(root *rootOptions) *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect stored run logs",
	}
	logsCmd.AddCommand(newLogsListCmd(root))
	logsCmd.AddCommand(newLogsShowCmd(root))
	logsCmd.AddCommand(newLogsExportCmd(root))
	return logsCmd
}

// kindForID maps a process identifier back to the server that produced it.
func kindForID(id string) string {
	if strings.HasPrefix(id, "py_") {
		return "python"
	}
	return "bash"
}

func newLogsListCmd(root *rootOptions) *cobra.Command {
	var serverKind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored run logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds := []string{"bash", "python"}
			if serverKind != "" {
				if serverKind != "bash" && serverKind != "python" {
					return fmt.Errorf("invalid server %q (bash|python)", serverKind)
				}
				kinds = []string{serverKind}
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVER\tPROCESS ID\tSIZE\tMODIFIED")
			for _, kind := range kinds {
				sink, err := sinkFor(root, kind)
				if err != nil {
					return err
				}
				entries, err := sink.List()
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", kind, e.ID, e.Size, e.ModTime.Format(time.RFC3339))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&serverKind, "server", "", "restrict to one server kind (bash|python)")
	return cmd
}

func newLogsShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <process-id>",
		Short: "Print a run log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			sink, err := sinkFor(root, kindForID(id))
			if err != nil {
				return err
			}
			contents, ok, err := sink.Read(id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no log for process %s", id)
			}
			fmt.Print(contents)
			return nil
		},
	}
}

func newLogsExportCmd(root *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <process-id>",
		Short: "Compress a run log for archival",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			sink, err := sinkFor(root, kindForID(id))
			if err != nil {
				return err
			}
			contents, ok, err := sink.Read(id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no log for process %s", id)
			}
			dst := outPath
			if dst == "" {
				dst = id + ".log.zst"
			}
			f, err := os.Create(dst)
			if err != nil {
				return err
			}
			enc, err := zstd.NewWriter(f)
			if err != nil {
				f.Close()
				return err
			}
			if _, err := enc.Write([]byte(contents)); err != nil {
				enc.Close()
				f.Close()
				return err
			}
			if err := enc.Close(); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("Exported %s to %s\n", id, dst)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default <process-id>.log.zst)")
	return cmd
}
