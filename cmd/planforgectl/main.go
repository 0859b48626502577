package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/planforge-io/planforge/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "ticket":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: planforgectl ticket <key>")
			os.Exit(1)
		}
		cmdTicket(os.Args[2])
	case "recent":
		cmdRecent()
	case "generate":
		cmdGenerate(os.Args[2:])
	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: planforgectl history <list|show>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdHistoryList()
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: planforgectl history show <id>")
				os.Exit(1)
			}
			cmdHistoryShow(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown history subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "export":
		cmdExport(os.Args[2:])
	case "templates":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: planforgectl templates <list|upload|delete>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTemplatesList()
		case "upload":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: planforgectl templates upload <path>")
				os.Exit(1)
			}
			cmdTemplatesUpload(os.Args[3])
		case "delete":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: planforgectl templates delete <id>")
				os.Exit(1)
			}
			cmdTemplatesDelete(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown templates subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: planforgectl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdTicket(key string) {
	payload, _ := json.Marshal(map[string]string{"ticketId": key})
	body, err := apiPost("/api/jira/fetch", "application/json", bytes.NewReader(payload))
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdRecent() {
	body, err := apiGet("/api/jira/recent")
	if err != nil {
		fatal(err)
	}
	var resp struct {
		Tickets []map[string]any `json:"tickets"`
	}
	json.Unmarshal(body, &resp)
	for _, t := range resp.Tickets {
		fmt.Printf("%-12s %s\n", t["ticket_id"], t["summary"])
	}
}

func cmdGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	ticketID := fs.String("ticket", "", "Ticket key (e.g. PROJ-123)")
	templateID := fs.String("template", "", "Template ID to guide the plan")
	providerName := fs.String("provider", "", "Override provider: hosted or local")
	fs.Parse(args)

	if *ticketID == "" {
		fmt.Fprintln(os.Stderr, "error: --ticket is required")
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{
		"ticket_id":   *ticketID,
		"template_id": *templateID,
		"provider":    *providerName,
	})

	body, err := apiPost("/api/testplan/generate", "application/json", bytes.NewReader(payload))
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdHistoryList() {
	body, err := apiGet("/api/testplan/history")
	if err != nil {
		fatal(err)
	}
	var resp struct {
		History []map[string]any `json:"history"`
	}
	json.Unmarshal(body, &resp)
	for _, h := range resp.History {
		fmt.Printf("%-38s %-12s %-8s %s\n", h["id"], h["ticket_id"], h["provider_used"], h["ticket_summary"])
	}
}

func cmdHistoryShow(id string) {
	body, err := apiGet("/api/testplan/history/" + id)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "markdown", "Export format: markdown or json")
	out := fs.String("out", "", "Output path (default: server-suggested filename)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: planforgectl export [--format markdown|json] [--out path] <history-id>")
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{"format": *format})
	body, err := apiPost("/api/testplan/export/"+fs.Arg(0), "application/json", bytes.NewReader(payload))
	if err != nil {
		fatal(err)
	}

	var resp struct {
		Content  string `json:"content"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		fatal(err)
	}

	path := *out
	if path == "" {
		path = resp.Filename
	}
	if err := os.WriteFile(path, []byte(resp.Content), 0o644); err != nil {
		fatal(err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", path, len(resp.Content))
}

func cmdTemplatesList() {
	body, err := apiGet("/api/templates")
	if err != nil {
		fatal(err)
	}
	var resp struct {
		Templates []map[string]any `json:"templates"`
	}
	json.Unmarshal(body, &resp)
	for _, t := range resp.Templates {
		fmt.Printf("%-38s %s\n", t["id"], t["name"])
	}
}

func cmdTemplatesUpload(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		fatal(err)
	}
	part.Write(content)
	mw.Close()

	body, err := apiPost("/api/templates/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTemplatesDelete(id string) {
	body, err := apiDo(http.MethodDelete, "/api/templates/"+id, "", nil)
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiGet(path string) ([]byte, error) {
	return apiDo(http.MethodGet, path, "", nil)
}

func apiPost(path, contentType string, body io.Reader) ([]byte, error) {
	return apiDo(http.MethodPost, path, contentType, body)
}

func apiDo(method, path, contentType string, body io.Reader) ([]byte, error) {
	base := envOr("PLANFORGE_API_URL", "http://localhost:8080")

	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	// Generation can take a while against a local backend.
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("planforgectl — test plan generator CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                     Check daemon health")
	fmt.Println("  ticket <key>               Fetch a Jira ticket")
	fmt.Println("  recent                     List recently fetched tickets")
	fmt.Println("  generate --ticket <key>    Generate a test plan (--template, --provider)")
	fmt.Println("  history list               List generation history")
	fmt.Println("  history show <id>          Show a stored test plan")
	fmt.Println("  export <id>                Export a plan (--format, --out)")
	fmt.Println("  templates list             List uploaded templates")
	fmt.Println("  templates upload <path>    Upload a template file")
	fmt.Println("  templates delete <id>      Delete a template")
	fmt.Println("  config validate <path>     Validate a config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  PLANFORGE_API_URL  Daemon URL (default: http://localhost:8080)")
}
