package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/redlinehq/redline/internal/types"
)

type decision int

const (
	undecided decision = iota
	accepted
	rejected
)

// runWalkthrough steps through the comments one at a time, showing each
// comment in its surrounding document context and collecting accept/reject
// decisions.
func runWalkthrough(doc *types.Document, comments []types.Comment) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "redline> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("\nWalkthrough: %d comments. Commands: a(ccept), r(eject), n(ext), p(rev), <number>, q(uit)\n\n", len(comments))

	decisions := make([]decision, len(comments))
	current := 0
	showComment(doc, comments, decisions, current)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch cmd := strings.TrimSpace(strings.ToLower(line)); cmd {
		case "a", "accept":
			decisions[current] = accepted
			if current < len(comments)-1 {
				current++
			}
			showComment(doc, comments, decisions, current)
		case "r", "reject":
			decisions[current] = rejected
			if current < len(comments)-1 {
				current++
			}
			showComment(doc, comments, decisions, current)
		case "", "n", "next":
			if current >= len(comments)-1 {
				fmt.Printf("%s\n", gray("Already at the last comment."))
				continue
			}
			current++
			showComment(doc, comments, decisions, current)
		case "p", "prev":
			if current == 0 {
				fmt.Printf("%s\n", gray("Already at the first comment."))
				continue
			}
			current--
			showComment(doc, comments, decisions, current)
		case "q", "quit", "exit":
			printDecisions(comments, decisions)
			return nil
		default:
			n, err := strconv.Atoi(cmd)
			if err != nil || n < 1 || n > len(comments) {
				fmt.Printf("%s\n", gray("Enter a, r, n, p, q, or a comment number."))
				continue
			}
			current = n - 1
			showComment(doc, comments, decisions, current)
		}
	}

	printDecisions(comments, decisions)
	return nil
}

// printDecisions summarizes the walkthrough outcome
func printDecisions(comments []types.Comment, decisions []decision) {
	var nAccepted, nRejected int
	for _, d := range decisions {
		switch d {
		case accepted:
			nAccepted++
		case rejected:
			nRejected++
		}
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s accepted, %s rejected, %s undecided\n",
		green(fmt.Sprintf("%d", nAccepted)),
		red(fmt.Sprintf("%d", nRejected)),
		gray(fmt.Sprintf("%d", len(comments)-nAccepted-nRejected)))

	for i, d := range decisions {
		if d == rejected {
			fmt.Printf("  %s [%d] %s\n", red("✗"), i+1, comments[i].Header)
		}
	}
	fmt.Println()
}

// showComment prints one comment with the document text around its range
func showComment(doc *types.Document, comments []types.Comment, decisions []decision, i int) {
	c := comments[i]
	gray := color.New(color.FgHiBlack).SprintFunc()
	highlight := color.New(color.Underline).Add(colorAttr(c.Level)).SprintFunc()

	mark := ""
	switch decisions[i] {
	case accepted:
		mark = color.New(color.FgGreen).Sprint(" ✓")
	case rejected:
		mark = color.New(color.FgRed).Sprint(" ✗")
	}
	fmt.Printf("\n%s %s%s\n", levelColor(c.Level)(fmt.Sprintf("[%d/%d]", i+1, len(comments))), c.Header, mark)

	before, quoted, after := contextWindow(doc.Content, c.StartOffset, c.EndOffset, 120)
	fmt.Printf("\n%s%s%s\n\n", gray(before), highlight(quoted), gray(after))
	fmt.Printf("%s\n\n", c.Description)
}

// colorAttr is the base color attribute for a level
func colorAttr(level types.Level) color.Attribute {
	switch level {
	case types.LevelCritical:
		return color.FgRed
	case types.LevelWarning:
		return color.FgYellow
	case types.LevelSuggestion:
		return color.FgCyan
	default:
		return color.FgHiBlack
	}
}

// contextWindow slices the text around [start,end) with up to radius runes of
// context on each side, snapping to rune boundaries.
func contextWindow(text string, start, end, radius int) (before, quoted, after string) {
	runes := []rune(text[:start])
	from := len(runes) - radius
	if from < 0 {
		from = 0
	}
	before = string(runes[from:])

	quoted = text[start:end]

	tail := []rune(text[end:])
	to := radius
	if to > len(tail) {
		to = len(tail)
	}
	after = string(tail[:to])
	return before, quoted, after
}
