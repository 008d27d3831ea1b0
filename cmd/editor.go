package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/streed/notesai/internal/logger"
)

var editorName string

const editorPlaceholder = "[Write your note content here]"

// readContent picks the note body from, in order, the flag value, piped
// stdin, or the user's editor.
func readContent(flagValue, title string, forceEditor bool) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if stdinPiped() {
		return readAll(os.Stdin)
	}
	if forceEditor || isTerminalAvailable() {
		content, err := editTemplate(title, "")
		if err == nil || forceEditor {
			return content, err
		}
		logger.Debug("Editor failed, falling back to stdin input: %v", err)
	}

	fmt.Println("Enter note content (press Ctrl+D when finished):")
	return readAll(os.Stdin)
}

func readAll(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return strings.Join(lines, "\n"), scanner.Err()
}

// editTemplate opens existing (or a placeholder) in the editor and returns
// what the user saved, minus the template lines.
func editTemplate(title, existing string) (string, error) {
	tempFile, err := os.CreateTemp("", "notesai-*.md")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	body := existing
	if body == "" {
		body = editorPlaceholder
	}
	template := fmt.Sprintf("# %s\n\n%s\n\n<!--\n  Save and close the editor when done.\n  To cancel, exit without saving.\n-->\n", title, body)
	if _, err := tempFile.WriteString(template); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	tempFile.Close()

	if err := openEditor(tempFile.Name()); err != nil {
		return "", err
	}

	edited, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return "", fmt.Errorf("failed to read edited file: %w", err)
	}
	if strings.Contains(string(edited), editorPlaceholder) {
		return "", fmt.Errorf("no content provided (template unchanged)")
	}
	return stripTemplate(string(edited), title), nil
}

func stripTemplate(edited, title string) string {
	var kept []string
	inComment := false
	for _, line := range strings.Split(edited, "\n") {
		switch {
		case strings.HasPrefix(line, "<!--"):
			inComment = true
			continue
		case strings.HasPrefix(line, "-->"):
			inComment = false
			continue
		case inComment:
			continue
		case line == "# "+title:
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// openEditor opens a file in the user's preferred editor
func openEditor(filename string) error {
	// --editor-cmd, then config, then $EDITOR/$VISUAL, then whatever is installed
	editorCmd := editorName
	if editorCmd == "" && appConfig != nil {
		editorCmd = appConfig.Editor
	}
	if editorCmd == "" {
		editorCmd = os.Getenv("EDITOR")
	}
	if editorCmd == "" {
		editorCmd = os.Getenv("VISUAL")
	}
	if editorCmd == "" {
		for _, e := range []string{"vim", "vi", "nano", "emacs", "code"} {
			if _, err := exec.LookPath(e); err == nil {
				editorCmd = e
				break
			}
		}
	}
	if editorCmd == "" {
		return fmt.Errorf("no editor found. Set $EDITOR, use --editor-cmd, or run: notesai config set editor <editor>")
	}

	logger.Debug("Opening file in editor: %s %s", editorCmd, filename)

	// Editors may carry arguments, e.g. "code --wait"
	parts := strings.Fields(editorCmd)
	cmd := exec.Command(parts[0], append(parts[1:], filename)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor %s: %w", editorCmd, err)
	}
	return nil
}

func stdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// isTerminalAvailable checks if we're running in an interactive terminal
func isTerminalAvailable() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
