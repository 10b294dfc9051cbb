package loader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Extractor turns one PDF file into plain text.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return nil, fmt.Errorf("%s: %w; stderr=%s", name, err, s)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// PDFToText shells out to poppler's pdftotext and reads the text from stdout.
type PDFToText struct {
	Runner  CommandRunner
	Timeout time.Duration
}

func NewPDFToText(timeout time.Duration) *PDFToText {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &PDFToText{Runner: ExecRunner{}, Timeout: timeout}
}

func (p *PDFToText) Name() string { return "pdftotext" }

func (p *PDFToText) Extract(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("pdf path required")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := p.Runner.Run(callCtx, "pdftotext", "-enc", "UTF-8", "-q", path, "-")
	if err != nil {
		return "", err
	}
	// pdftotext separates pages with form feeds.
	txt := strings.ReplaceAll(string(out), "\f", "\n")
	return strings.TrimSpace(txt), nil
}
