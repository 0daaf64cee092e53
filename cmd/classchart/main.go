package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/classchart/internal/models"
	"github.com/noah-isme/classchart/internal/store"
	"github.com/noah-isme/classchart/internal/store/backend"
	"github.com/noah-isme/classchart/pkg/config"
	"github.com/noah-isme/classchart/pkg/export"
	"github.com/noah-isme/classchart/pkg/logger"
	"github.com/noah-isme/classchart/pkg/metrics"
)

type options struct {
	classID   string
	newClass  string
	students  string
	avatarDir string
	exportTo  string
	fromFile  string
}

type rosterEntry struct {
	name   string
	avatar string
}

func registerFlags(fs *flag.FlagSet, opts *options) {
	fs.StringVar(&opts.classID, "class", "", "show the class with this id")
	fs.StringVar(&opts.newClass, "new", "", "create a class with this name")
	fs.StringVar(&opts.students, "students", "", "comma separated student names for -new")
	fs.StringVar(&opts.avatarDir, "avatars", "", "directory holding <student>.png avatars for -new")
	fs.StringVar(&opts.fromFile, "from", "", "xlsx roster for -new: student name in column A, optional avatar path in column B")
	fs.StringVar(&opts.exportTo, "export", "", "write the -class roster to this "+formatList(export.Formats)+" file")
}

// formatList renders extensions as ".a, .b or .c".
func formatList(exts []string) string {
	if len(exts) < 2 {
		return strings.Join(exts, "")
	}
	return strings.Join(exts[:len(exts)-1], ", ") + " or " + exts[len(exts)-1]
}

func main() {
	var opts options
	registerFlags(flag.CommandLine, &opts)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(context.Background(), cfg, logr, opts, os.Stdout); err != nil {
		logr.Sugar().Fatalw("classchart failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, opts options, out io.Writer) (err error) {
	storeMetrics := metrics.NewStoreMetrics()
	db, err := backend.Default().Open(ctx, cfg, logr, storeMetrics)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if !cfg.Metrics.Enabled || cfg.Metrics.File == "" {
			return
		}
		if werr := storeMetrics.WriteTextfile(cfg.Metrics.File); werr != nil {
			logr.Warn("metrics not written", zap.String("file", cfg.Metrics.File), zap.Error(werr))
			return
		}
		logr.Debug("metrics written", zap.String("file", cfg.Metrics.File))
	}()

	switch {
	case opts.newClass != "":
		id, err := createClass(ctx, db, cfg.Storage.StagingDir, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created %q with id %s\n", opts.newClass, id)
		return nil
	case opts.classID != "" && opts.exportTo != "":
		return exportClass(ctx, db, models.ID(opts.classID), opts.exportTo, out)
	case opts.classID != "":
		return showClass(ctx, db, models.ID(opts.classID), out)
	default:
		return listClasses(ctx, db, out)
	}
}

func listClasses(ctx context.Context, db store.Database, out io.Writer) error {
	classes, err := db.GetClasses(ctx)
	if err != nil {
		return err
	}
	if len(classes) == 0 {
		fmt.Fprintln(out, "no classes")
		return nil
	}
	for _, c := range classes {
		fmt.Fprintf(out, "%s\t%s\n", c.ID(), c.Name())
	}
	return nil
}

func showClass(ctx context.Context, db store.Database, id models.ID, out io.Writer) error {
	class, err := db.LoadClass(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%d students, %d avatars)\n", class.Name, len(class.Students), class.AvatarCount())
	for _, student := range class.Students {
		avatar, err := store.ResolveStudentAvatar(ctx, db, class, student)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s\t%s\n", student.Name, avatar)
	}
	return nil
}

func exportClass(ctx context.Context, db store.Database, id models.ID, path string, out io.Writer) error {
	class, err := db.LoadClass(ctx, id)
	if err != nil {
		return err
	}
	data := export.Dataset{Title: class.Name, Headers: []string{"Student", "Avatar"}}
	for _, student := range class.Students {
		avatar, err := store.ResolveStudentAvatar(ctx, db, class, student)
		if err != nil {
			return err
		}
		data.Rows = append(data.Rows, []string{student.Name, avatar})
	}
	if err := export.WriteFile(path, data); err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d students to %s\n", len(data.Rows), path)
	return nil
}

func createClass(ctx context.Context, db store.Database, stagingDir string, opts options) (models.ID, error) {
	exists, err := db.ClassNameExists(ctx, opts.newClass)
	if err != nil {
		return models.NoID, err
	}
	if exists {
		return models.NoID, fmt.Errorf("class %q already exists", opts.newClass)
	}

	nc, err := models.BeginNewClass(opts.newClass, stagingDir)
	if err != nil {
		return models.NoID, err
	}
	defer nc.Close() //nolint:errcheck

	entries, err := rosterEntries(opts)
	if err != nil {
		return models.NoID, err
	}
	for _, entry := range entries {
		var studentOpts []models.StudentOption
		if entry.avatar != "" {
			avatarID, err := nc.StageAvatar(entry.avatar)
			if err != nil {
				return models.NoID, err
			}
			studentOpts = append(studentOpts, models.WithAvatar(avatarID))
		}
		student, err := models.NewStudent(entry.name, studentOpts...)
		if err != nil {
			return models.NoID, err
		}
		if err := nc.AddStudent(student); err != nil {
			return models.NoID, err
		}
	}
	return db.CreateClass(ctx, nc)
}

// rosterEntries collects students from the workbook first, then -students.
// Avatars for -students are looked up as <name>.png in -avatars.
func rosterEntries(opts options) ([]rosterEntry, error) {
	var entries []rosterEntry
	if opts.fromFile != "" {
		data, err := export.ReadXLSX(opts.fromFile)
		if err != nil {
			return nil, err
		}
		base := filepath.Dir(opts.fromFile)
		for _, row := range data.Rows {
			entry := rosterEntry{name: strings.TrimSpace(row[0])}
			if entry.name == "" {
				continue
			}
			if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
				entry.avatar = strings.TrimSpace(row[1])
				if !filepath.IsAbs(entry.avatar) {
					entry.avatar = filepath.Join(base, entry.avatar)
				}
			}
			entries = append(entries, entry)
		}
	}

	for _, name := range strings.Split(opts.students, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		entry := rosterEntry{name: name}
		if opts.avatarDir != "" {
			src := filepath.Join(opts.avatarDir, name+".png")
			if _, err := os.Stat(src); err == nil {
				entry.avatar = src
			} else if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
