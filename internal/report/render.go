package report

import (
	"fmt"
	"strings"
)

const blockSeparator = "\n---\n\n"

const timeLayout = "2006-01-02 15:04 UTC"

// Render produces the full markdown document as one payload.
func (r *Report) Render() string {
	return strings.Join(r.blocks(), blockSeparator)
}

// blocks returns the document as ordered chunkable units: a header block,
// one block per compact section, a heading block plus one block per entry
// for regular sections, and a statistics footer.
func (r *Report) blocks() []string {
	blocks := []string{r.headerBlock()}

	for _, sec := range r.Sections {
		if sec.Compact {
			blocks = append(blocks, sec.Heading+"\n\n"+strings.Join(sec.Entries, "\n\n"))
			continue
		}
		heading := sec.Heading
		if sec.Lead != "" {
			heading += "\n\n" + sec.Lead
		}
		blocks = append(blocks, heading)
		blocks = append(blocks, sec.Entries...)
	}

	if r.Stats.TotalPRs > 0 {
		blocks = append(blocks, r.statsBlock())
	}
	return blocks
}

func (r *Report) headerBlock() string {
	var b strings.Builder
	b.WriteString("# GitHub Summary\n\n")

	if r.Empty() {
		b.WriteString("**Total PRs:** 0\n\n")
	}

	fmt.Fprintf(&b, "**Report Period:** %s to %s\n\n",
		r.Window.Start.Format(timeLayout), r.Window.End.Format(timeLayout))

	links := make([]string, 0, len(r.Repositories))
	for _, repo := range r.Repositories {
		links = append(links, fmt.Sprintf("[%s](https://github.com/%s)", repo, repo))
	}
	fmt.Fprintf(&b, "**Repositories:** %s", strings.Join(links, ", "))

	if len(r.Notes) > 0 {
		b.WriteString("\n\n**Warnings:**")
		for _, note := range r.Notes {
			fmt.Fprintf(&b, "\n- %s", note)
		}
	}

	if r.Empty() {
		fmt.Fprintf(&b, "\n\n**Filters:** %s", r.Criteria.describe())
		b.WriteString("\n\nNo merged pull requests found matching the specified criteria.")
	}
	return b.String()
}

func (r *Report) statsBlock() string {
	return fmt.Sprintf(`## Summary Statistics

- **Total Merged PRs:** %d
- **Authors:** %d unique contributors
- **Files Changed:** %d files across all PRs`,
		r.Stats.TotalPRs, r.Stats.UniqueAuthors, r.Stats.FilesChanged)
}
