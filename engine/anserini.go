package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const (
	anseriniIndexClass  = "io.anserini.index.IndexCollection"
	anseriniSearchClass = "io.anserini.search.SearchCollection"
)

// Anserini runs the Anserini fatjar in a JVM subprocess.
type Anserini struct {
	java     string
	jar      string
	javaOpts []string
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
}

var _ Engine = (*Anserini)(nil)

// NewAnserini returns an engine launching `java [opts] -cp jar <class> args`.
// Process output streams through to the current stdout and stderr.
func NewAnserini(logger *slog.Logger, java, jar string, javaOpts []string) *Anserini {
	if java == "" {
		java = "java"
	}
	return &Anserini{
		java:     java,
		jar:      jar,
		javaOpts: javaOpts,
		logger:   logger,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

func (a *Anserini) Name() string {
	return "anserini"
}

func (a *Anserini) Index(ctx context.Context, req IndexRequest) error {
	return a.run(ctx, anseriniIndexClass, req.Args())
}

func (a *Anserini) Search(ctx context.Context, req SearchRequest) error {
	return a.run(ctx, anseriniSearchClass, req.Args())
}

func (a *Anserini) command(ctx context.Context, class string, args []string) *exec.Cmd {
	argv := append([]string{}, a.javaOpts...)
	argv = append(argv, "-cp", a.jar, class)
	argv = append(argv, args...)
	cmd := exec.CommandContext(ctx, a.java, argv...)
	cmd.Stdout = a.stdout
	cmd.Stderr = a.stderr
	return cmd
}

func (a *Anserini) run(ctx context.Context, class string, args []string) error {
	if a.jar == "" {
		return fmt.Errorf("no anserini fatjar configured, set ATOMIC_ANSERINI_JAR")
	}

	start := time.Now()
	cmd := a.command(ctx, class, args)
	a.logger.Debug("launching anserini", slog.String("class", class), slog.Any("args", args))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Class: class, Code: exitErr.ExitCode(), Err: err}
		}
		return fmt.Errorf("running %s: %w", class, err)
	}
	a.logger.Info("anserini finished", slog.String("class", class), slog.Duration("took", time.Since(start)))
	return nil
}
