package notebook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// taskPlaceholder is replaced with the run's task description when seeding.
const taskPlaceholder = "{{TASK_DESCRIPTION}}"

// DefaultTemplate is the starter notebook used when no template file is
// configured: a markdown cell stating the goal and one empty code cell.
const DefaultTemplate = `{
 "cells": [
  {
   "cell_type": "markdown",
   "metadata": {},
   "source": [
    "# Notebook Goal\n",
    "\n",
    "{{TASK_DESCRIPTION}}"
   ]
  },
  {
   "cell_type": "code",
   "metadata": {},
   "source": [
    "// TODO cell: implement the task here"
   ],
   "outputs": []
  }
 ],
 "metadata": {
  "kernelspec": {
   "name": "csharp",
   "language": "csharp"
  }
 },
 "nbformat": 4,
 "nbformat_minor": 5
}
`

// SeedFromTemplate writes a fresh working notebook to path, substituting
// the task description into the template. An existing notebook at path is
// reused as the template so that interrupted runs keep their progress;
// templatePath == "" selects the built-in starter.
func SeedFromTemplate(path, templatePath, taskDescription string) error {
	content := DefaultTemplate
	switch {
	case fileExists(path):
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing notebook %s: %w", path, err)
		}
		content = string(raw)
	case templatePath != "":
		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("failed to read notebook template %s: %w", templatePath, err)
		}
		content = string(raw)
	}

	content = strings.ReplaceAll(content, taskPlaceholder, jsonEscape(taskDescription))

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create notebook directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to seed notebook %s: %w", path, err)
	}
	return nil
}

// ResetFromTemplate discards the current notebook and seeds again. Used by
// the retry wrapper to restart a failed run from a clean document.
func ResetFromTemplate(path, templatePath, taskDescription string) error {
	if fileExists(path) {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove notebook %s: %w", path, err)
		}
	}
	return SeedFromTemplate(path, templatePath, taskDescription)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// jsonEscape makes the task description safe for direct substitution into
// the template's JSON string context.
func jsonEscape(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}
