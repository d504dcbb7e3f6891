package main

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Run formats input["text"] into a dated note. With no text it returns an
// empty note skeleton so the launcher can demo the module without input.
func Run(input map[string]interface{}) (map[string]interface{}, error) {
	text, _ := input["text"].(string)
	text = strings.TrimSpace(text)

	title := "Untitled"
	body := ""
	if text != "" {
		lines := strings.SplitN(text, "\n", 2)
		title = titleCase(lines[0])
		if len(lines) > 1 {
			body = strings.TrimSpace(lines[1])
		}
	}

	note := fmt.Sprintf("# %s\n_%s_\n\n%s", title, time.Now().Format("2006-01-02"), body)
	return map[string]interface{}{
		"note":  strings.TrimRight(note, "\n") + "\n",
		"title": title,
		"words": len(strings.Fields(text)),
	}, nil
}

// ValidateInput accepts an empty input or a string "text" field.
func ValidateInput(input map[string]interface{}) (bool, []string) {
	if raw, ok := input["text"]; ok {
		if _, isString := raw.(string); !isString {
			return false, []string{"text must be a string"}
		}
	}
	return true, nil
}

// ValidateOutput requires the note and a non-negative word count.
func ValidateOutput(output map[string]interface{}) (bool, []string) {
	var problems []string
	if note, ok := output["note"].(string); !ok || note == "" {
		problems = append(problems, "note must be a non-empty string")
	}
	if _, ok := output["words"].(int); !ok {
		problems = append(problems, "words must be an int")
	}
	return len(problems) == 0, problems
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}

// main keeps the file buildable as a standalone program; the hub resolves
// and calls the contract functions directly.
func main() {}
