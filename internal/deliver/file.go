package deliver

import (
	"context"
	"fmt"
	"os"

	"github-summary/internal/report"
)

// FileTarget writes the report as one UTF-8 markdown document,
// overwriting any previous run's output.
type FileTarget struct {
	Path string
}

func (t *FileTarget) Name() string { return "file:" + t.Path }

func (t *FileTarget) Deliver(_ context.Context, rep *report.Report) error {
	if err := os.WriteFile(t.Path, []byte(rep.Render()), 0o644); err != nil {
		return fmt.Errorf("writing report to %s: %w", t.Path, err)
	}
	return nil
}
