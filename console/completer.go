package console

import (
	"strings"

	"github.com/c-bata/go-prompt"

	"gdaytreva/program"
)

// Complete is the go-prompt completer. It suggests command names for the
// first word and delegates later words to the command's Candidates.
func (c *Console) Complete(d prompt.Document) []prompt.Suggest {
	words := splitWords(d.TextBeforeCursor())
	if len(words) == 0 {
		return []prompt.Suggest{}
	}
	current := words[len(words)-1]

	var candidates []Suggestion
	if len(words) == 1 {
		candidates = commandSuggestions()
	} else if def, ok := lookupCommand(words[0]); ok && def.Candidates != nil {
		candidates = def.Candidates(c, words[1:])
	}

	suggests := make([]prompt.Suggest, 0, len(candidates))
	for _, s := range candidates {
		suggests = append(suggests, prompt.Suggest{Text: s.Text, Description: s.Description})
	}
	return prompt.FilterHasPrefix(suggests, current, true)
}

func commandSuggestions() []Suggestion {
	out := make([]Suggestion, 0, len(CommandTable))
	for _, def := range CommandTable {
		out = append(out, Suggestion{Text: def.Name, Description: def.Summary})
	}
	return out
}

// programCandidates suggests slot ids for the first argument, labelled with
// the cached program names
func programCandidates(allowNew bool) func(c *Console, args []string) []Suggestion {
	return func(c *Console, args []string) []Suggestion {
		if len(args) != 1 {
			return nil
		}
		programs := c.dev.Snapshot().Programs
		out := make([]Suggestion, 0, program.MaxPrograms+1)
		if allowNew {
			out = append(out, Suggestion{Text: "new", Description: "controller picks a free slot"})
		}
		for _, id := range program.AllIDs() {
			desc := ""
			if d, ok := programs[id]; ok {
				desc = d.Name
			}
			out = append(out, Suggestion{Text: id.String(), Description: desc})
		}
		return out
	}
}

// fixedCandidates suggests the given options for the first argument
func fixedCandidates(options ...Suggestion) func(c *Console, args []string) []Suggestion {
	return func(c *Console, args []string) []Suggestion {
		if len(args) != 1 {
			return nil
		}
		return options
	}
}

// splitCommand separates the command name from the rest of the line
func splitCommand(line string) (name, rest string) {
	line = strings.TrimLeft(line, " \t")
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}

// splitArgs is splitWords without the trailing empty word
func splitArgs(s string) []string {
	words := splitWords(s)
	if n := len(words); n > 0 && words[n-1] == "" {
		words = words[:n-1]
	}
	return words
}

// splitWords splits a line on blanks. Quotes group words and are removed.
// A trailing blank yields a final empty word so the completer knows a new
// argument has started.
func splitWords(line string) []string {
	if line == "" {
		return []string{}
	}

	words := make([]string, 0)
	var word []rune
	inQuote := false
	lastWasSpace := true

	for _, r := range line {
		switch r {
		case ' ', '\t':
			if inQuote {
				word = append(word, r)
				lastWasSpace = false
				continue
			}
			if !lastWasSpace && len(word) > 0 {
				words = append(words, string(word))
				word = word[:0]
			}
			lastWasSpace = true
		case '"', '\'':
			inQuote = !inQuote
			lastWasSpace = false
		default:
			word = append(word, r)
			lastWasSpace = false
		}
	}
	if len(word) > 0 {
		words = append(words, string(word))
	}
	if lastWasSpace {
		words = append(words, "")
	}
	return words
}
