package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MustafaMerchant21/Nova/internal/app"
	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// errNotSafe makes `nova validate` exit non-zero for anything above Safe.
var errNotSafe = errors.New("input is not safe")

func newValidateCommand(container *app.Container) *cobra.Command {
	var (
		file    string
		asJSON  bool
		exitErr bool
	)
	cmd := &cobra.Command{
		Use:   "validate <command|script|ai> [text...]",
		Short: "Classify a command, script or AI response without running it",
		Long: "Classify untrusted text. The text comes from the arguments, --file, or stdin.\n" +
			"  command  a single shell command line\n" +
			"  script   a multi-line script, checked statement by statement\n" +
			"  ai       a whole AI response: code blocks, prompt lines and prose",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"command", "script", "ai"},
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[1:], file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var result domain.ValidationResult
			switch args[0] {
			case "command", "cmd":
				result = container.Gate.ValidateCommand(ctx, text)
			case "script":
				result = container.Gate.ValidateScript(ctx, text)
			case "ai", "response":
				result = container.Gate.ValidateAIResponse(ctx, text)
			default:
				return fmt.Errorf("unknown input type %q (want command, script or ai)", args[0])
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				RenderValidation(cmd.OutOrStdout(), result)
			}
			if exitErr && !result.IsSafe() {
				return fmt.Errorf("%w: %s", errNotSafe, result.ThreatLevel)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the text from a file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the verdict as JSON")
	cmd.Flags().BoolVar(&exitErr, "exit-code", true, "Exit non-zero when the verdict is not safe")
	// Flags go before the text so "validate command ls -la" keeps -la.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newExecCommand(container *app.Container, prompter *Prompter) *cobra.Command {
	var force, yes bool
	cmd := &cobra.Command{
		Use:   "exec <command...>",
		Short: "Validate a command and run it if it passes",
		Long: "Validate a command against the command threshold and run it when allowed.\n" +
			"With --force the looser forced threshold applies and you are asked to confirm\n" +
			"anything that is not safe.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompter.AutoApprove = yes
			command := strings.Join(args, " ")
			resp, err := container.Gate.ExecuteValidatedCommand(cmd.Context(), command, force)
			RenderExecution(cmd.OutOrStdout(), resp)
			if err != nil {
				return err
			}
			return exitStatus(resp.Result)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Use the forced threshold (asks for confirmation)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm forced execution without asking")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newScriptCommand(container *app.Container) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "script [--file script.sh]",
		Short: "Validate a multi-line script and run it as one unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readInput(cmd, nil, file)
			if err != nil {
				return err
			}
			resp, err := container.Gate.ExecuteScript(cmd.Context(), script)
			RenderExecution(cmd.OutOrStdout(), resp)
			if err != nil {
				return err
			}
			return exitStatus(resp.Result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Script file (default: stdin)")
	return cmd
}

func newRunCommand(container *app.Container) *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run [--file automation.yaml]",
		Short: "Validate and run an automation, streaming each step",
		Long: "Run an automation: either {\"script\": \"...\"} or {\"commands\": [{\"command\": ..., \"timeout_seconds\": ...}]}.\n" +
			"JSON and YAML are accepted. The whole automation is validated before the first step runs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, nil, file)
			if err != nil {
				return err
			}
			req, err := decodeAutomationRequest(raw, file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var events chan domain.ExecutionEvent
			done := make(chan struct{})
			if asJSON {
				close(done)
			} else {
				events = make(chan domain.ExecutionEvent, 64)
				writer := newStreamWriter(out, cmd.ErrOrStderr())
				go func() {
					defer close(done)
					writer.Consume(events)
				}()
			}

			report, runErr := container.Gate.ExecuteAutomation(cmd.Context(), req, events)
			if events != nil {
				close(events)
			}
			<-done

			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else if report.Results != nil {
				RenderReport(out, report)
			} else {
				RenderValidation(out, report.Validation)
			}
			if runErr != nil {
				return runErr
			}
			if !report.Succeeded() {
				return errors.New("automation did not complete successfully")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Automation file, .json or .yaml (default: stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON instead of streaming")
	return cmd
}

// readInput takes the text from args, then file, then stdin.
func readInput(cmd *cobra.Command, args []string, file string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no input: pass text, --file, or pipe it on stdin")
	}
	return string(data), nil
}

// decodeAutomationRequest parses JSON or YAML. YAML is a superset of JSON, so
// anything without a .json extension goes through the YAML decoder.
func decodeAutomationRequest(raw, file string) (domain.AutomationRequest, error) {
	var req domain.AutomationRequest
	if strings.EqualFold(filepath.Ext(file), ".json") {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return req, fmt.Errorf("parse automation: %w", err)
		}
		return req, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &req); err != nil {
		return req, fmt.Errorf("parse automation: %w", err)
	}
	return req, nil
}

func exitStatus(res *domain.ExecutionResult) error {
	if res == nil || res.Success {
		return nil
	}
	if res.TimedOut {
		return errors.New("command timed out")
	}
	return fmt.Errorf("command exited with status %d", res.ExitCode)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
