package summary

import (
	"fmt"
	"strings"

	"github-summary/internal/report"
)

const maxPromptFiles = 20

// buildPrompt assembles the summarization prompt for one PR. The
// instruction block scales with the size of the change so small PRs get
// a couple of sentences and large ones two paragraphs.
func buildPrompt(pr *report.PullRequest) string {
	var files strings.Builder
	shown := pr.Files
	if len(shown) > maxPromptFiles {
		shown = shown[:maxPromptFiles]
	}
	for i, path := range shown {
		if i > 0 {
			files.WriteString("\n")
		}
		files.WriteString("- " + path)
	}
	if rest := len(pr.Files) - maxPromptFiles; rest > 0 {
		fmt.Fprintf(&files, "\n... and %d more files", rest)
	}

	body := pr.Body
	if body == "" {
		body = "No description provided"
	}

	return fmt.Sprintf(`Generate a human-readable summary of this pull request. The summary should be understandable by someone unfamiliar with this area of the codebase.

**PR Title:** %s

**PR Description:**
%s

**Changed Files (%d files):**
%s

**Repository:** %s

---

%s

Also, extract any links to GitHub issues or project trackers mentioned in the description.

Format your response as:

## Summary

[Your summary here]

## Related Resources

- [Link text](url) - if found

If no related resources found, write "None found in PR description"`,
		pr.Title, body, len(pr.Files), files.String(), pr.Repository, instructions(len(pr.Files)))
}

func instructions(numFiles int) string {
	switch {
	case numFiles <= 2:
		return `Write a concise 2-3 sentence summary that covers:
- What changed and why
- Any notable impact or considerations`
	case numFiles <= 10:
		return `Write a single paragraph (4-5 sentences) covering:
- What problem was being solved or feature was needed
- What changes were made and which components were modified
- Who is affected and any notable considerations`
	default:
		return `Write a 2-paragraph summary:

**Paragraph 1 (4-5 sentences):**
- What problem was being solved or what feature was needed?
- What was the state of things before this change?
- Include any relevant context from the PR description

**Paragraph 2 (4-5 sentences):**
- What changes were made to address this?
- Which components or files were modified?
- Who is affected by this change?
- Any notable side effects or follow-up work?`
	}
}
