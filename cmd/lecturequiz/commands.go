package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/lecturequiz/internal/export"
	appI18n "github.com/pavelanni/lecturequiz/internal/i18n"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/notify"
	"github.com/pavelanni/lecturequiz/internal/results"
	"github.com/pavelanni/lecturequiz/internal/store"
	"github.com/pavelanni/lecturequiz/internal/upload"
	"github.com/pavelanni/lecturequiz/internal/workflow"
)

// consoleNotifier prints notifications, translated, one per line.
type consoleNotifier struct {
	ctx context.Context
	w   io.Writer
}

func (n consoleNotifier) Notify(m notify.Notification) {
	fmt.Fprintf(n.w, "%s: %s\n", m.Level, appI18n.Td(n.ctx, m.MessageID, m.Data))
}

func localized(lang string) (context.Context, error) {
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang)), nil
}

// openOutput returns stdout for "" or "-", otherwise a created file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process VIDEO",
		Short: "Process a local MP4 file and print its segments",
		Args:  cobra.ExactArgs(1),
		RunE:  runProcess,
	}
	f := cmd.Flags()
	addBackendFlags(cmd)
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	f.Int64("max-upload-bytes", upload.DefaultMaxBytes, "Largest accepted video in bytes")
	f.String("out-dir", "", "Write segment and question exports into this directory")
	addLogFlags(cmd)
	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, err := localized(v.GetString("lang"))
	if err != nil {
		return err
	}
	client, err := newBackend(v)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	n := consoleNotifier{ctx: ctx, w: cmd.ErrOrStderr()}

	file, err := upload.LocalFile(args[0])
	if err != nil {
		return err
	}
	gate := upload.NewGate("", v.GetInt64("max-upload-bytes"), n)
	if _, err := gate.Select(file); err != nil {
		return err
	}
	c, err := gate.Take()
	if err != nil {
		return err
	}

	res := results.New()
	wf := workflow.New(client, res, n, 0)
	events, err := wf.Start(ctx, c)
	if err != nil {
		_ = c.Release()
		return err
	}
	for s := range events {
		fmt.Fprintf(out, "[%3d%%] %s\n", s.Progress, appI18n.T(ctx, s.Stage.MessageID()))
	}
	if err := wf.Wait(ctx); err != nil {
		return err
	}

	segments := res.Get()
	fmt.Fprintln(out, appI18n.Tp(ctx, "SegmentsCount", len(segments)))
	for i, seg := range segments {
		fmt.Fprintf(out, "  %3d  %s  %s\n", i+1, export.TimeRange(seg.StartTime, seg.EndTime), appI18n.Tp(ctx, "QuestionsCount", len(seg.MCQs)))
	}

	if dir := v.GetString("out-dir"); dir != "" {
		return writeExports(dir, segments)
	}
	return nil
}

// writeExports saves the segment document and, when there are questions,
// the quiz-set document for every segment.
func writeExports(dir string, segments []model.Segment) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	ex := export.New(0)
	for _, seg := range segments {
		docs := make([]export.Document, 0, 2)
		doc, err := ex.Segment(seg)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		if len(seg.MCQs) > 0 {
			doc, err := ex.QuizSet(seg.MCQs, seg.ID)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		for _, d := range docs {
			path := filepath.Join(dir, d.Filename)
			if err := os.WriteFile(path, d.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			slog.Info("wrote export", "path", path, "size", humanize.IBytes(uint64(len(d.Data))))
		}
	}
	return nil
}

func lecturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lectures",
		Short: "List processed lectures from the backend catalog",
		RunE:  runLectures,
	}
	addBackendFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the raw catalog as JSON")
	addLogFlags(cmd)
	return cmd
}

func runLectures(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	client, err := newBackend(v)
	if err != nil {
		return err
	}
	lectures, err := client.ListLectures(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(lectures)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCREATED\tDURATION\tSEGMENTS")
	for _, l := range lectures {
		created := "-"
		if !l.CreatedAt.IsZero() {
			created = humanize.Time(l.CreatedAt.Time)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", l.ID, l.ShortTitle(), created, export.FormatTime(l.Duration()), len(l.Chunks))
	}
	return tw.Flush()
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a segment or its questions from the catalog as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addBackendFlags(cmd)
	f.String("lecture-id", "", "Lecture identifier (required)")
	f.String("segment-id", "", "Segment identifier (required)")
	f.String("kind", "segment", "What to export (segment, quiz)")
	f.StringP("output", "o", "", "Output file path (- for stdout, default: the download file name)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("lecture-id")
	_ = cmd.MarkFlagRequired("segment-id")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	client, err := newBackend(v)
	if err != nil {
		return err
	}
	lecture, err := client.GetLecture(cmd.Context(), model.ObjectID(v.GetString("lecture-id")))
	if err != nil {
		return err
	}
	seg, ok := lecture.FindSegment(model.ObjectID(v.GetString("segment-id")))
	if !ok {
		return fmt.Errorf("segment %s not found in lecture %s", v.GetString("segment-id"), lecture.ID)
	}

	ex := export.New(0)
	var doc export.Document
	switch kind := strings.ToLower(v.GetString("kind")); kind {
	case "segment":
		doc, err = ex.Segment(seg)
	case "quiz":
		doc, err = ex.QuizSet(seg.MCQs, seg.ID)
	default:
		return fmt.Errorf("unknown export kind %q (want segment or quiz)", kind)
	}
	if err != nil {
		return err
	}

	outPath := v.GetString("output")
	if outPath == "" {
		outPath = doc.Filename
	}
	w, err := openOutput(outPath)
	if err != nil {
		return err
	}
	defer w.Close()

	if _, err := w.Write(doc.Data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	slog.Info("exported", "file", outPath, "size", humanize.IBytes(uint64(len(doc.Data))))
	return nil
}

func attemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Export recorded quiz attempts as JSON",
		RunE:  runAttempts,
	}
	f := cmd.Flags()
	f.String("db", "lecturequiz.db", "SQLite database path")
	f.String("since", "", "Only attempts on or after this date (YYYY-MM-DD)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func runAttempts(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	var since time.Time
	if s := v.GetString("since"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		since = t
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	attempts, err := db.ExportAttempts(since)
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.AttemptExport{}
	}

	data, err := json.MarshalIndent(attempts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	w, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer w.Close()
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		RunE:  runUserAdd,
	}
	f := add.Flags()
	f.String("db", "lecturequiz.db", "SQLite database path")
	f.String("username", "", "Login name (required)")
	f.String("display-name", "", "Name shown in the header (default: username)")
	f.String("password", "", "Password (or set LECTUREQUIZ_PASSWORD)")
	addLogFlags(add)
	_ = add.MarkFlagRequired("username")

	cmd.AddCommand(add)
	return cmd
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	username := strings.TrimSpace(v.GetString("username"))
	password := v.GetString("password")
	if username == "" {
		return errors.New("username is required")
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters: set --password or LECTUREQUIZ_PASSWORD")
	}
	displayName := strings.TrimSpace(v.GetString("display-name"))
	if displayName == "" {
		displayName = username
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	id, err := db.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	slog.Info("created user", "id", id, "username", username)
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with the configuration file",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective serve settings to a YAML config file",
		RunE:  runConfigInit,
	}
	f := initCmd.Flags()
	f.String("path", "lecturequiz.yaml", "Where to write the file")
	f.Bool("force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	data, err := configYAML(viperForCmd(serveCmd()).AllSettings())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

// configYAML renders settings as a YAML document with sorted keys. Durations
// are written in their string form so viper can read them back.
func configYAML(settings map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		val := settings[k]
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		var node yaml.Node
		if err := node.Encode(val); err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &node)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal YAML: %w", err)
	}
	return data, nil
}
