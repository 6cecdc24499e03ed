package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Shailesh-Murmu/AutoMpp/internal/fsutil"
	"github.com/Shailesh-Murmu/AutoMpp/internal/logger"
)

func newLogCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show or clear the activity log",
	}

	var limit int
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the activity log, newest entry first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			lines, err := readLogLines(cfg.Log.File)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(lines) == 0 {
				fmt.Fprintln(out, "activity log is empty")
				return nil
			}
			return writeNewestFirst(out, lines, limit)
		},
	}
	show.Flags().IntVarP(&limit, "lines", "n", 0, "show at most N entries (0 shows all)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Truncate the activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Log.File == "" {
				return errors.New("no activity log file is configured")
			}
			if err := fsutil.WriteFileAtomic(cfg.Log.File, nil, 0o644); err != nil {
				return err
			}
			log, err := logger.New(logger.ConfigParams{Cfg: cfg})
			if err != nil {
				return err
			}
			log.Info("activity log cleared by user")
			_ = log.Sync()
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", cfg.Log.File)
			return nil
		},
	}

	cmd.AddCommand(show, clearCmd)
	return cmd
}

func readLogLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func writeNewestFirst(w io.Writer, lines []string, limit int) error {
	count := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if limit > 0 && count == limit {
			break
		}
		if _, err := fmt.Fprintln(w, lines[i]); err != nil {
			return err
		}
		count++
	}
	return nil
}
