package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mailspend/mailspend/internal/cli"
	"github.com/mailspend/mailspend/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import emails from a JSON or JSONL file",
		Long: `Import emails into the local database for later processing.

A .json file holds an array of email objects; a .jsonl file holds one
object per line. Each object looks like:

  {"id": "...", "subject": "...", "from": "...", "body": "...", "timestamp": "2024-06-01T12:00:00Z"}

Emails are deduplicated automatically on (user, id).`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().StringP("user", "u", "", "User the emails belong to")
	cmd.Flags().Bool("dry-run", false, "Show what would be imported without saving")

	_ = viper.BindPFlag("import.dry_run", cmd.Flags().Lookup("dry-run"))

	return cmd
}

// emailImport is the on-disk shape of one imported email.
type emailImport struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Snippet   string    `json:"snippet,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	user, err := requireUser(cmd)
	if err != nil {
		return err
	}

	path := args[0]
	slog.Info(cli.FormatTitle("Importing emails"))
	slog.Info("Reading file", "path", path)

	emails, err := readEmailFile(path)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		slog.Info(cli.FormatWarning("No emails found in file"))
		return nil
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("Parsed %d emails", len(emails))))

	if viper.GetBool("import.dry_run") {
		slog.Info(cli.FormatWarning("Dry run mode - not saving to database"))
		displayImportSummary(emails)
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveEmails(ctx, user, emails); err != nil {
		return fmt.Errorf("failed to save emails: %w", err)
	}

	slog.Info(cli.FormatSuccess("Import complete!"))
	displayImportSummary(emails)

	return nil
}

func readEmailFile(path string) ([]model.EmailMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var raw []emailImport
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		raw, err = decodeJSONL(f)
	case ".json":
		err = json.NewDecoder(f).Decode(&raw)
	default:
		return nil, fmt.Errorf("unsupported file type %q (want .json or .jsonl)", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	emails := make([]model.EmailMessage, 0, len(raw))
	for i, r := range raw {
		if r.ID == "" {
			return nil, fmt.Errorf("email %d has no id", i+1)
		}
		emails = append(emails, model.EmailMessage{
			ID:        r.ID,
			Subject:   r.Subject,
			From:      r.From,
			Body:      r.Body,
			Snippet:   r.Snippet,
			Timestamp: r.Timestamp,
		})
	}
	return emails, nil
}

func decodeJSONL(r io.Reader) ([]emailImport, error) {
	var out []emailImport
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e emailImport
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func displayImportSummary(emails []model.EmailMessage) {
	if len(emails) == 0 {
		return
	}

	senders := make(map[string]int)
	oldest, newest := emails[0].Timestamp, emails[0].Timestamp
	for _, e := range emails {
		senders[e.From]++
		if !e.Timestamp.IsZero() {
			if oldest.IsZero() || e.Timestamp.Before(oldest) {
				oldest = e.Timestamp
			}
			if e.Timestamp.After(newest) {
				newest = e.Timestamp
			}
		}
	}

	content := fmt.Sprintf(`Emails: %d
Unique senders: %d
Date range: %s to %s

Top senders:
`, len(emails), len(senders), oldest.Format("2006-01-02"), newest.Format("2006-01-02"))

	for i, s := range topSenders(senders, 5) {
		content += fmt.Sprintf("%d. %s (%d emails)\n", i+1, s.name, s.count)
	}

	slog.Info(cli.RenderBox("Import Summary", content))
}

type senderCount struct {
	name  string
	count int
}

func topSenders(senders map[string]int, limit int) []senderCount {
	counts := make([]senderCount, 0, len(senders))
	for name, count := range senders {
		counts = append(counts, senderCount{name: name, count: count})
	}

	for i := 0; i < len(counts) && i < limit; i++ {
		for j := i + 1; j < len(counts); j++ {
			if counts[j].count > counts[i].count {
				counts[i], counts[j] = counts[j], counts[i]
			}
		}
	}

	if len(counts) > limit {
		counts = counts[:limit]
	}

	return counts
}
