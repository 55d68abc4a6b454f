package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/semmidev/sqlkeep/internal/app"
	"github.com/semmidev/sqlkeep/internal/domain"
)

var downloadDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled backups and cleanup until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		return application.Run(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run [database...]",
	Short: "Create a backup now",
	Long: `Create a backup of the named databases, or of every enabled database when
none is named. Progress is printed as each object is written.`,
	RunE: runBackup,
}

var listCmd = &cobra.Command{
	Use:   "list [database...]",
	Short: "List backups, newest first",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <database> <file>",
	Short: "Delete one backup",
	Args:  cobra.ExactArgs(2),
	RunE: withService(func(cmd *cobra.Command, svc *app.Service, file string) error {
		result := svc.DeleteBackup(cmd.Context(), file)
		return report(cmd.OutOrStdout(), result, result.Success, result.Message)
	}),
}

var downloadCmd = &cobra.Command{
	Use:   "download <database> <file>",
	Short: "Copy one backup into a directory",
	Args:  cobra.ExactArgs(2),
	RunE: withService(func(cmd *cobra.Command, svc *app.Service, file string) error {
		result := svc.PrepareDownload(cmd.Context(), file)
		if !result.Success {
			return report(cmd.OutOrStdout(), result, false, result.Message)
		}
		dst := filepath.Join(downloadDir, result.FileName)
		if err := copyFile(result.FilePath, dst); err != nil {
			return err
		}
		result.FilePath = dst
		return report(cmd.OutOrStdout(), result, true, fmt.Sprintf("Saved %s (%s)", dst, result.MimeType))
	}),
}

var uploadCmd = &cobra.Command{
	Use:   "upload <database> <file>",
	Short: "Send one backup to every configured upload target",
	Args:  cobra.ExactArgs(2),
	RunE: withService(func(cmd *cobra.Command, svc *app.Service, file string) error {
		result := svc.UploadBackup(cmd.Context(), file)
		return report(cmd.OutOrStdout(), result, result.Success, result.Message)
	}),
}

var verifyCmd = &cobra.Command{
	Use:   "verify <database> <file>",
	Short: "Check that a backup is complete",
	Args:  cobra.ExactArgs(2),
	RunE: withService(func(cmd *cobra.Command, svc *app.Service, file string) error {
		result := svc.Verify(cmd.Context(), file)
		msg := result.Message
		if result.Checksum != "" {
			msg += " sha256:" + result.Checksum
		}
		return report(cmd.OutOrStdout(), result, result.Success, msg)
	}),
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [database...]",
	Short: "Apply the retention policy now",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(serveCmd, runCmd, listCmd, deleteCmd, downloadCmd, uploadCmd, verifyCmd, cleanupCmd)

	downloadCmd.Flags().StringVarP(&downloadDir, "output", "o", ".", "directory to copy the backup into")
}

func runBackup(cmd *cobra.Command, args []string) error {
	application, err := openApp(cmd, args...)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	out := cmd.OutOrStdout()
	failed := 0
	for _, svc := range application.Services() {
		name := svc.Name
		var observer domain.ProgressObserver
		if !jsonOutput {
			observer = domain.ProgressFunc(func(step string, current, total int) {
				fmt.Fprintf(out, "[%s] %3d/%-3d %s\n", name, current, total, step)
			})
		}
		result := svc.CreateBackup(cmd.Context(), observer)
		if err := report(out, result, result.Success, fmt.Sprintf("[%s] %s", name, result.Message)); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d backup(s) failed", failed)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	application, err := openApp(cmd, args...)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	listing := make(map[string][]domain.BackupEntry)
	for _, svc := range application.Services() {
		entries, err := svc.ListBackups(cmd.Context())
		if err != nil {
			return fmt.Errorf("list %s: %w", svc.Name, err)
		}
		listing[svc.Name] = entries
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, listing)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATABASE\tFILE\tSIZE\tDATE")
	for _, svc := range application.Services() {
		for _, e := range listing[svc.Name] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", svc.Name, e.FileName, e.Size, e.Date)
		}
	}
	return tw.Flush()
}

func runCleanup(cmd *cobra.Command, args []string) error {
	application, err := openApp(cmd, args...)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	out := cmd.OutOrStdout()
	reports := make(map[string]domain.CleanupReport)
	for _, svc := range application.Services() {
		rep, err := svc.Cleanup(cmd.Context())
		if err != nil {
			return fmt.Errorf("cleanup %s: %w", svc.Name, err)
		}
		reports[svc.Name] = rep
		if jsonOutput {
			continue
		}
		color.New(color.FgGreen).Fprintf(out, "[%s] Deleted %d backup(s)\n", svc.Name, len(rep.Deleted))
		for file, reason := range rep.Failed {
			color.New(color.FgRed).Fprintf(out, "[%s] Could not delete %s: %s\n", svc.Name, file, reason)
		}
	}
	if jsonOutput {
		return writeJSON(out, reports)
	}
	return nil
}

// withService adapts a "<database> <file>" command to a single service.
func withService(fn func(cmd *cobra.Command, svc *app.Service, file string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		application, err := openApp(cmd, args[0])
		if err != nil {
			return err
		}
		defer application.Shutdown()

		svc, ok := application.Service(args[0])
		if !ok {
			return fmt.Errorf("unknown database %q", args[0])
		}
		return fn(cmd, svc, args[1])
	}
}

func report(out io.Writer, result any, ok bool, msg string) error {
	if jsonOutput {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else if ok {
		color.New(color.FgGreen).Fprintln(out, msg)
	} else {
		color.New(color.FgRed).Fprintln(out, msg)
	}
	if !ok {
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy backup: %w", err)
	}
	return out.Close()
}
