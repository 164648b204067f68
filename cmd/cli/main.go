package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cpp-snippet-runner/internal/api"
	"cpp-snippet-runner/internal/config"
	"cpp-snippet-runner/internal/pipeline"
)

var (
	serverURL      string
	input          string
	inputFile      string
	compilerFlags  []string
	compileTimeout string
	runTimeout     string
	jsonOut        bool
	verbose        bool
	scratchDir     string
)

func main() {
	root := &cobra.Command{
		Use:   "snippet-cli",
		Short: "Compile and run C++ snippets, locally or against a cpp-snippet-runner server",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")

	// Local run, no server involved
	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Compile and run a snippet in-process (reads stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLocal,
	}
	runCmd.Flags().StringVarP(&input, "input", "i", "", "Stdin text for the program")
	runCmd.Flags().StringVar(&inputFile, "input-file", "", "File fed to the program as stdin")
	runCmd.Flags().StringArrayVarP(&compilerFlags, "flag", "f", nil, "Compiler flag (repeatable)")
	runCmd.Flags().StringVar(&compileTimeout, "compile-timeout", "", "Compile timeout (e.g. 30s)")
	runCmd.Flags().StringVar(&runTimeout, "run-timeout", "", "Run timeout (e.g. 10s)")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full result as JSON")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show pipeline logs")
	runCmd.Flags().StringVar(&scratchDir, "scratch-dir", "", "Workspace scratch directory")
	root.AddCommand(runCmd)

	// Submit to a running server
	submitCmd := &cobra.Command{
		Use:   "submit [file]",
		Short: "Submit a snippet to a running server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSubmit,
	}
	submitCmd.Flags().StringVarP(&input, "input", "i", "", "Stdin text for the program")
	submitCmd.Flags().StringVar(&inputFile, "input-file", "", "File fed to the program as stdin")
	submitCmd.Flags().StringArrayVarP(&compilerFlags, "flag", "f", nil, "Compiler flag (repeatable)")
	submitCmd.Flags().StringVar(&compileTimeout, "compile-timeout", "", "Compile timeout (e.g. 30s)")
	submitCmd.Flags().StringVar(&runTimeout, "run-timeout", "", "Run timeout (e.g. 10s)")
	root.AddCommand(submitCmd)

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	// Example catalog
	root.AddCommand(&cobra.Command{
		Use:   "examples",
		Short: "List the server's example snippets",
		RunE:  runExamples,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLocal(cmd *cobra.Command, args []string) error {
	source, err := readSource(args)
	if err != nil {
		return err
	}
	stdin, err := readInput()
	if err != nil {
		return err
	}
	ct, rt, err := parseTimeouts()
	if err != nil {
		return err
	}

	if verbose {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	cfg := config.DefaultConfig()
	cfg.ApplyEnv()
	if scratchDir != "" {
		cfg.Pipeline.ScratchDir = scratchDir
	}
	if err := api.ValidateFlags(compilerFlags, cfg.Pipeline.AllowedFlags); err != nil {
		return err
	}

	pl, err := pipeline.New(cfg.Pipeline, nil)
	if err != nil {
		return err
	}
	defer pl.Close()

	res, err := pl.Execute(cmd.Context(), pipeline.Request{
		Source:         source,
		Stdin:          stdin,
		Flags:          compilerFlags,
		CompileTimeout: ct,
		RunTimeout:     rt,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		formatted, _ := json.MarshalIndent(api.ToRunResponse(res), "", "  ")
		fmt.Println(string(formatted))
		if !res.Success() {
			os.Exit(exitCodeFor(res))
		}
		return nil
	}

	switch res.Status {
	case pipeline.StatusSuccess:
		fmt.Print(res.Output)
		fmt.Fprint(os.Stderr, res.Stderr)
	case pipeline.StatusCompileError:
		fmt.Fprintln(os.Stderr, res.Diagnostics)
		os.Exit(1)
	case pipeline.StatusRuntimeError:
		fmt.Fprint(os.Stderr, res.Stderr)
		fmt.Fprintln(os.Stderr, res.Message)
		os.Exit(exitCodeFor(res))
	default:
		fmt.Fprintln(os.Stderr, res.Message)
		os.Exit(1)
	}
	return nil
}

func exitCodeFor(res pipeline.Result) int {
	if res.ExitCode > 0 {
		return res.ExitCode
	}
	return 1
}

func runSubmit(cmd *cobra.Command, args []string) error {
	source, err := readSource(args)
	if err != nil {
		return err
	}
	stdin, err := readInput()
	if err != nil {
		return err
	}
	ct, rt, err := parseTimeouts()
	if err != nil {
		return err
	}

	payload := api.RunRequest{
		Source: source,
		Stdin:  stdin,
		Flags:  compilerFlags,
	}
	if ct > 0 {
		payload.CompileTimeout = api.Duration{Duration: ct}
	}
	if rt > 0 {
		payload.RunTimeout = api.Duration{Duration: rt}
	}

	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, serverURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	// Pretty print
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	// Exit with the program's exit code
	if exitCode, ok := result["exit_code"].(float64); ok && exitCode != 0 {
		os.Exit(int(exitCode))
	}

	return nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func runExamples(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/examples")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func readSource(args []string) (string, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func readInput() (string, error) {
	if inputFile == "" {
		return input, nil
	}
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return "", fmt.Errorf("reading input file: %w", err)
	}
	return string(data), nil
}

func parseTimeouts() (compile, run time.Duration, err error) {
	if compileTimeout != "" {
		compile, err = time.ParseDuration(compileTimeout)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing compile timeout: %w", err)
		}
	}
	if runTimeout != "" {
		run, err = time.ParseDuration(runTimeout)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing run timeout: %w", err)
		}
	}
	return compile, run, nil
}
