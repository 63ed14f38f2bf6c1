package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mikeboe/luma/pkg/extract"
	"github.com/mikeboe/luma/pkg/router"
	"github.com/mikeboe/luma/pkg/settings"
	"github.com/mikeboe/luma/pkg/tasks"
	"github.com/spf13/cobra"
)

type pageFlags struct {
	url  string
	file string
}

func (p *pageFlags) register(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVarP(&p.url, "url", "u", "", "Page URL to fetch")
	cmd.Flags().StringVarP(&p.file, "file", "f", "", "Saved HTML file to read")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
	if required {
		cmd.MarkFlagsOneRequired("url", "file")
	}
}

func (p *pageFlags) set() bool {
	return p.url != "" || p.file != ""
}

// article runs the page through the content router.
func (p *pageFlags) article(ctx context.Context, a *app) (*extract.Article, error) {
	var html string
	if p.url != "" {
		body, err := a.fetcher.Fetch(ctx, p.url)
		if err != nil {
			return nil, err
		}
		html = body
	} else {
		body, err := os.ReadFile(p.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p.file, err)
		}
		html = string(body)
	}

	env := a.content.Call(ctx, router.ExtractRequest{HTML: html, URL: p.url})
	if !env.Success {
		return nil, errors.New(env.Error)
	}
	return env.Data.(*extract.Article), nil
}

func newExtractCmd() *cobra.Command {
	var page pageFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print the readable article of a page",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			article, err := page.article(ctx, a)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, article)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", article.Title)
			if article.SiteName != "" {
				fmt.Fprintf(out, "Site: %s\n", article.SiteName)
			}
			fmt.Fprintf(out, "Length: %d\n\n%s\n", article.Length, strings.TrimSpace(article.Content))
			return nil
		}),
	}
	page.register(cmd, true)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the article as JSON")
	return cmd
}

func newSummarizeCmd() *cobra.Command {
	var page pageFlags

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a page with the configured provider",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			article, err := page.article(ctx, a)
			if err != nil {
				return err
			}
			env := a.background.Call(ctx, router.SummarizeRequest{Content: article.Content})
			if !env.Success {
				return errors.New(env.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), env.Data)
			return nil
		}),
	}
	page.register(cmd, true)
	return cmd
}

func newMindMapCmd() *cobra.Command {
	var page pageFlags

	cmd := &cobra.Command{
		Use:   "mindmap",
		Short: "Build a mind-map graph of a page and print it as JSON",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			article, err := page.article(ctx, a)
			if err != nil {
				return err
			}
			env := a.background.Call(ctx, router.MindMapRequest{Content: article.Content})
			if !env.Success {
				return errors.New(env.Error)
			}
			return printJSON(cmd, env.Data)
		}),
	}
	page.register(cmd, true)
	return cmd
}

func newChatCmd() *cobra.Command {
	var page pageFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation, optionally about a page",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var history []tasks.ChatMessage
			if page.set() {
				article, err := page.article(ctx, a)
				if err != nil {
					return err
				}
				history = append(history, tasks.ChatMessage{
					Role:    "system",
					Content: "The user is reading this page:\n\n" + tasks.Truncate(article.Content, tasks.MaxContentChars),
				})
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %q (%d characters)\n", article.Title, article.Length)
			}

			out := cmd.OutOrStdout()
			reader := bufio.NewReader(cmd.InOrStdin())
			fmt.Fprintln(out, "Type a message, or /exit to quit.")
			for {
				fmt.Fprint(out, "> ")
				input, err := reader.ReadString('\n')
				input = strings.TrimSpace(input)
				if input == "/exit" || (input == "" && err != nil) {
					return nil
				}
				if input == "" {
					continue
				}

				history = append(history, tasks.ChatMessage{Role: "user", Content: input})
				env := a.background.Call(ctx, router.ChatRequest{Messages: history})
				if !env.Success {
					fmt.Fprintln(cmd.ErrOrStderr(), "Error:", env.Error)
					history = history[:len(history)-1]
					continue
				}
				reply, _ := env.Data.(string)
				history = append(history, tasks.ChatMessage{Role: "assistant", Content: reply})
				fmt.Fprintf(out, "%s\n\n", reply)
			}
		}),
	}
	page.register(cmd, false)
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return printJSON(cmd, a.store.Settings())
		}),
	}

	var (
		providerName string
		apiKey       string
		baseURL      string
		model        string
		language     string
		theme        string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change individual settings",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			next := a.store.Settings()
			flags := cmd.Flags()
			if flags.Changed("provider") {
				next.LLM.Provider = settings.Provider(providerName)
			}
			if flags.Changed("api-key") {
				next.LLM.APIKey = apiKey
			}
			if flags.Changed("base-url") {
				next.LLM.BaseURL = baseURL
			}
			if flags.Changed("model") {
				next.LLM.Model = model
			}
			if flags.Changed("language") {
				next.Language = language
			}
			if flags.Changed("theme") {
				next.Theme = settings.Theme(theme)
			}
			if err := next.Validate(); err != nil {
				return err
			}
			if err := a.store.Save(ctx, next); err != nil {
				return err
			}
			return printJSON(cmd, next)
		}),
	}
	set.Flags().StringVar(&providerName, "provider", "", "openai, gemini, claude or custom")
	set.Flags().StringVar(&apiKey, "api-key", "", "Provider API key")
	set.Flags().StringVar(&baseURL, "base-url", "", "Endpoint for the custom provider")
	set.Flags().StringVar(&model, "model", "", "Model name")
	set.Flags().StringVar(&language, "language", "", "Output language code, e.g. en or zh-CN")
	set.Flags().StringVar(&theme, "theme", "", "light, dark or system")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if err := a.store.Reset(ctx); err != nil {
				return err
			}
			return printJSON(cmd, a.store.Settings())
		}),
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
