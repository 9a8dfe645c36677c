package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
)

// ExportMarkdown writes the comments as a Markdown document grouped by file,
// in stable export order.
func ExportMarkdown(w io.Writer, prURL string, comments []ReviewComment) error {
	ordered := make([]ReviewComment, len(comments))
	copy(ordered, comments)
	SortCommentsForExport(ordered)

	if _, err := fmt.Fprintf(w, "# Review comments for %s\n", prURL); err != nil {
		return err
	}

	currentFile := "\x00" // sentinel that matches no real path
	for _, comment := range ordered {
		if comment.FilePath != currentFile {
			currentFile = comment.FilePath
			heading := currentFile
			if heading == "" {
				heading = "(no file)"
			}
			if _, err := fmt.Fprintf(w, "\n## %s\n", heading); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintf(w, "\n### Comment %d", comment.ID); err != nil {
			return err
		}
		if comment.Author != "" {
			if _, err := fmt.Fprintf(w, " by @%s", comment.Author); err != nil {
				return err
			}
		}
		if comment.LineNumber > 0 {
			if _, err := fmt.Fprintf(w, " (line %d)", comment.LineNumber); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}

		if comment.Body != "" {
			if _, err := fmt.Fprintf(w, "\n%s\n", strings.TrimRight(comment.Body, "\n")); err != nil {
				return err
			}
		}
		if comment.DiffHunk != "" {
			if _, err := fmt.Fprintf(w, "\n```diff\n%s\n```\n", strings.TrimRight(comment.DiffHunk, "\n")); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExportJSONL writes one comment per line as JSON, in stable export order.
func ExportJSONL(w io.Writer, comments []ReviewComment) error {
	ordered := make([]ReviewComment, len(comments))
	copy(ordered, comments)
	SortCommentsForExport(ordered)

	encoder := json.NewEncoder(w)
	for _, comment := range ordered {
		if err := encoder.Encode(comment); err != nil {
			return err
		}
	}
	return nil
}

// exportTemplateData is the root object visible to a user export template.
type exportTemplateData struct {
	PRURL    string
	Comments []ReviewComment
}

// ExportTemplate renders a user-supplied text/template over the ordered
// comments. The template sees {{.PRURL}} and {{.Comments}}.
func ExportTemplate(w io.Writer, templatePath, prURL string, comments []ReviewComment) error {
	source, err := os.ReadFile(templatePath)
	if err != nil {
		return &ConfigError{Message: fmt.Sprintf("could not read export template %s: %v", templatePath, err)}
	}

	tmpl, err := template.New("export").Parse(string(source))
	if err != nil {
		return &ConfigError{Message: fmt.Sprintf("export template %s has invalid syntax: %v", templatePath, err)}
	}

	ordered := make([]ReviewComment, len(comments))
	copy(ordered, comments)
	SortCommentsForExport(ordered)

	return tmpl.Execute(w, exportTemplateData{PRURL: prURL, Comments: ordered})
}
