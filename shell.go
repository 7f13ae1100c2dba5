package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"
)

// Shell is an interactive prompt over the commands.
type Shell struct {
	app *App
	ctx context.Context

	tokens []string
}

func NewShell(ctx context.Context, app *App) *Shell {
	return &Shell{app: app, ctx: ctx}
}

var operationFlagSuggestions = []prompt.Suggest{
	{Text: "-to", Description: "Recipient address"},
	{Text: "-amount", Description: "Amount in token units"},
	{Text: "-token", Description: "Token symbol"},
	{Text: "-fee", Description: "Fee in token units"},
	{Text: "-wait", Description: "none, committed or verified"},
}

func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	return prompt.FilterHasPrefix(s.complete(d), d.GetWordBeforeCursor(), true)
}

func (s *Shell) complete(d prompt.Document) []prompt.Suggest {
	args := strings.Split(d.TextBeforeCursor(), " ")

	if len(args) < 2 {
		suggestions := make([]prompt.Suggest, 0, len(commandList())+1)
		for _, c := range commandList() {
			if c.name == "watch" {
				continue
			}
			suggestions = append(suggestions, prompt.Suggest{Text: c.name, Description: c.description})
		}
		return append(suggestions, prompt.Suggest{Text: "exit", Description: "Exit the shell"})
	}

	switch prev := args[len(args)-2]; prev {
	case "-token":
		return s.tokenSuggestions()
	case "-wait":
		return []prompt.Suggest{
			{Text: string(WaitNone), Description: "Return after submission"},
			{Text: string(WaitCommitted), Description: "Wait for a layer-2 block"},
			{Text: string(WaitVerified), Description: "Wait for the block proof on layer 1"},
		}
	case "-status":
		return []prompt.Suggest{
			{Text: string(RecordPending)},
			{Text: string(RecordSubmitted)},
			{Text: string(RecordCommitted)},
			{Text: string(RecordVerified)},
			{Text: string(RecordFailed)},
		}
	}

	switch args[0] {
	case "deposit":
		return append(operationFlagSuggestions, prompt.Suggest{Text: "-approve", Description: "Approve the ERC-20 allowance first"})
	case "transfer", "withdraw":
		return operationFlagSuggestions
	case "receipt":
		if len(args) == 2 {
			return s.recordSuggestions()
		}
		return []prompt.Suggest{{Text: "-wait", Description: "committed or verified"}}
	case "journal":
		return []prompt.Suggest{
			{Text: "-status", Description: "Comma separated statuses"},
			{Text: "-limit", Description: "Maximum number of records"},
			{Text: "-wallet", Description: "Only records of this wallet"},
		}
	case "export":
		return []prompt.Suggest{
			{Text: "-dir", Description: "Output directory"},
			{Text: "-status", Description: "Comma separated statuses"},
			{Text: "-wallet", Description: "Only records of this wallet"},
		}
	}
	return nil
}

// tokenSuggestions fetches the token list once. Failures are retried on the
// next completion.
func (s *Shell) tokenSuggestions() []prompt.Suggest {
	if s.tokens == nil {
		provider, err := s.app.provider(s.ctx)
		if err != nil {
			return nil
		}
		tokens, err := provider.SupportedTokens(s.ctx)
		if err != nil {
			return nil
		}
		s.tokens = tokens
	}
	suggestions := make([]prompt.Suggest, 0, len(s.tokens))
	for _, t := range s.tokens {
		suggestions = append(suggestions, prompt.Suggest{Text: t})
	}
	return suggestions
}

func (s *Shell) recordSuggestions() []prompt.Suggest {
	records, err := ListRecords(s.app.db, RecordFilter{
		Statuses: []RecordStatus{RecordSubmitted, RecordCommitted},
		Limit:    20,
	})
	if err != nil {
		return nil
	}
	suggestions := make([]prompt.Suggest, 0, len(records))
	for _, r := range records {
		suggestions = append(suggestions, prompt.Suggest{
			Text:        r.ID.String(),
			Description: fmt.Sprintf("%s %s %s (%s)", r.Type, r.Amount, r.TokenSymbol, r.Status),
		})
	}
	return suggestions
}

func (s *Shell) Execute(line string) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "exit", "quit":
		s.exit(0)
	case "help":
		printUsage(s.app.out)
		return
	case "watch", "shell":
		fmt.Fprintf(s.app.out, "%s is not available in the shell\n", args[0])
		return
	}

	if err := s.app.runCommand(s.ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(s.app.out, "Error: %s\n", err)
	}
}

var shellTermState *term.State

func (s *Shell) exit(code int) {
	if shellTermState != nil {
		term.Restore(int(os.Stdin.Fd()), shellTermState)
	}
	exec.Command("stty", "sane").Run()
	os.Exit(code)
}

// Run blocks until the user exits.
func (s *Shell) Run() {
	shellTermState, _ = term.GetState(int(os.Stdin.Fd()))

	options := append(shellStyleOptions(),
		prompt.OptionPrefix(fmt.Sprintf("%s/%s> ", s.app.cfg.vendor, s.app.cfg.network)),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlC,
			Fn: func(buf *prompt.Buffer) {
				fmt.Fprintln(s.app.out, "Exiting.")
				s.exit(0)
			},
		}),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlD,
			Fn:  func(buf *prompt.Buffer) {},
		}),
	)
	prompt.New(s.Execute, s.Complete, options...).Run()
}

func shellStyleOptions() []prompt.Option {
	return []prompt.Option{
		prompt.OptionTitle("layer2"),
		prompt.OptionPrefixTextColor(prompt.Yellow),
		prompt.OptionPreviewSuggestionTextColor(prompt.Cyan),

		prompt.OptionSuggestionTextColor(prompt.White),
		prompt.OptionSuggestionBGColor(prompt.DarkBlue),

		prompt.OptionDescriptionTextColor(prompt.Black),
		prompt.OptionDescriptionBGColor(prompt.Yellow),

		prompt.OptionSelectedSuggestionTextColor(prompt.Black),
		prompt.OptionSelectedSuggestionBGColor(prompt.Yellow),

		prompt.OptionSelectedDescriptionTextColor(prompt.White),
		prompt.OptionSelectedDescriptionBGColor(prompt.DarkBlue),
	}
}
