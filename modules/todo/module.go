package main

import (
	"strings"
)

// Run parses input["list"] as a markdown task list ("- [ ] item",
// "- [x] item") and reports open and done counts plus the open items.
func Run(input map[string]interface{}) (map[string]interface{}, error) {
	list, _ := input["list"].(string)

	open := []interface{}{}
	done := 0
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "- [ ]"):
			open = append(open, strings.TrimSpace(line[5:]))
		case strings.HasPrefix(line, "- [x]"), strings.HasPrefix(line, "- [X]"):
			done++
		}
	}

	return map[string]interface{}{
		"open":  open,
		"done":  done,
		"total": len(open) + done,
	}, nil
}

// ValidateInput accepts an empty input or a string "list" field.
func ValidateInput(input map[string]interface{}) (bool, []string) {
	if raw, ok := input["list"]; ok {
		if _, isString := raw.(string); !isString {
			return false, []string{"list must be a string"}
		}
	}
	return true, nil
}

// ValidateOutput checks the count fields agree with the open items.
func ValidateOutput(output map[string]interface{}) (bool, []string) {
	open, okOpen := output["open"].([]interface{})
	done, okDone := output["done"].(int)
	total, okTotal := output["total"].(int)
	if !okOpen || !okDone || !okTotal {
		return false, []string{"output must carry open ([]interface{}), done (int) and total (int)"}
	}
	if len(open)+done != total {
		return false, []string{"total must equal open + done"}
	}
	return true, nil
}

// SelfTest parses a fixture list and checks the counts line up.
func SelfTest() (bool, string) {
	out, err := Run(map[string]interface{}{
		"list": "- [ ] water plants\n- [x] pay rent\n- [ ] call dentist\nnot a task",
	})
	if err != nil {
		return false, "run failed: " + err.Error()
	}
	open, _ := out["open"].([]interface{})
	done, _ := out["done"].(int)
	if len(open) != 2 || done != 1 {
		return false, "fixture counts are off"
	}
	return true, ""
}

// main keeps the file buildable as a standalone program; the hub resolves
// and calls the contract functions directly.
func main() {}
