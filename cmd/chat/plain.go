package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/localchat/ragchat/internal/client"
	"github.com/localchat/ragchat/internal/core"
)

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

func runPlain(ctx context.Context, conv *client.Conversation, commands *client.Commands, in io.Reader) error {
	color.Cyan("Chat with the local model (/help for commands, /quit to exit)")
	if name, chars, ok := conv.Document(); ok {
		color.Cyan("Document: %s (%d characters)", name, chars)
	}
	for _, t := range conv.Turns() {
		printTurn(t)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if cmd, ok := client.ParseCommand(line); ok {
			out, err := commands.Execute(ctx, cmd)
			if errors.Is(err, client.ErrQuit) {
				return nil
			}
			if err != nil {
				color.Red("%v", err)
				continue
			}
			fmt.Println(out)
			if cmd.Name == client.CmdOpen {
				for _, t := range conv.Turns() {
					printTurn(t)
				}
			}
			continue
		}

		if err := sendPlain(ctx, conv, line); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

func sendPlain(ctx context.Context, conv *client.Conversation, line string) error {
	ex, err := conv.Begin(ctx, line)
	if err != nil {
		color.Red("%v", err)
		return err
	}
	defer ex.Close()

	spinner := getSpinner("Waiting for the model...")
	assistant := color.New(color.FgCyan)
	printed := ""
	started := false

	for {
		update, err := ex.Step()
		text := update.Turn.Text
		if !started && (text != "" || update.Done) {
			spinner.Finish()
			fmt.Println()
			assistant.Print("Assistant: ")
			started = true
		}
		if started && !update.Failed {
			printed = printDelta(printed, text)
		}
		if !update.Done {
			continue
		}

		if update.Failed {
			color.Red("%s", text)
			return err
		}
		fmt.Println()
		if r := update.Turn.Reasoning; r != "" && conv.Reasoning() {
			color.New(color.Faint, color.Italic).Printf("(reasoning) %s\n", r)
		}
		if status := conv.Status(); status != "" {
			color.Yellow("%s", status)
		}
		return nil
	}
}

// printDelta prints the part of text not yet on screen. The answer only ever
// grows from its printed prefix except when leading whitespace is trimmed.
func printDelta(printed, text string) string {
	if strings.HasPrefix(text, printed) {
		fmt.Print(text[len(printed):])
		return text
	}
	fmt.Print("\n" + text)
	return text
}

func printTurn(t client.Turn) {
	if t.Role == core.RoleUser {
		color.Green("You: %s", t.Text)
		return
	}
	color.Cyan("Assistant: %s", t.Text)
}
