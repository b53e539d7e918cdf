package export

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// pandocDOCX pipes the rendered HTML through pandoc.
func pandocDOCX(ctx context.Context, html, title string) (*Result, error) {
	bin, err := exec.LookPath("pandoc")
	if err != nil {
		return nil, ErrDOCXDependencyMissing
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--from=html", "--to=docx", "--standalone", "--output=-")
	cmd.Stdin = strings.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("pandoc: %s: %w", msg, err)
		}
		return nil, fmt.Errorf("pandoc: %w", err)
	}
	return newResult(FormatDOCX, title, stdout.Bytes()), nil
}
