// trfctl is a small operator CLI against a running intake daemon.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "trfctl",
		Short:         "Operate a TRF intake daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", envOr("TRF_BASE_URL", "http://localhost:8080"), "daemon base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(
		registerCmd(),
		processCmd(),
		statusCmd(),
		docsCmd(),
		reviewCmd(),
		caseCmd(),
		setFieldCmd(),
		suggestCmd(),
		queryCmd(),
		guidanceCmd(),
		exportCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func registerCmd() *cobra.Command {
	var caseID, mimeType string
	var process bool
	cmd := &cobra.Command{
		Use:   "register <file-path>",
		Short: "Register an uploaded document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			name := path
			if i := strings.LastIndexByte(path, '/'); i >= 0 {
				name = path[i+1:]
			}
			return call(http.MethodPost, "/v1/documents", map[string]any{
				"case_id":   caseID,
				"file_name": name,
				"file_path": path,
				"mime_type": mimeType,
				"process":   process,
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "attach to an existing case")
	cmd.Flags().StringVar(&mimeType, "mime", "", "document MIME type")
	cmd.Flags().BoolVar(&process, "process", false, "queue processing immediately")
	return cmd
}

func processCmd() *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "process <document-id>",
		Short: "Run the pipeline for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/documents/" + args[0] + "/process"
			if async {
				path += "?async=true"
			}
			return call(http.MethodPost, path, nil)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "queue instead of waiting")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's pipeline status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/v1/documents/"+args[0]+"/status", nil)
		},
	}
}

func docsCmd() *cobra.Command {
	var caseID string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List registered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/documents"
			if caseID != "" {
				path += "?case_id=" + caseID
			}
			return call(http.MethodGet, path, nil)
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "limit to one case")
	return cmd
}

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <document-id>",
		Short: "Mark a document reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPost, "/v1/documents/"+args[0]+"/review", nil)
		},
	}
}

func caseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "case <case-id>",
		Short: "Show a case's canonical record and violations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/v1/cases/"+args[0], nil)
		},
	}
}

func setFieldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-field <case-id> <field> <value>",
		Short: "Manually override one field of a case",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPatch,
				"/v1/cases/"+args[0]+"/fields/"+args[1],
				map[string]any{"value": args[2]})
		},
	}
}

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <case-id>",
		Short: "Ask the agent for field suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/v1/cases/"+args[0]+"/suggestions", nil)
		},
	}
}

func queryCmd() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "query <case-id> <question>",
		Short: "Ask the agent about one field",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPost, "/v1/cases/"+args[0]+"/query", map[string]any{
				"field":    field,
				"question": strings.Join(args[1:], " "),
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "field the question is about")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func guidanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guidance <case-id>",
		Short: "Show completion guidance for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/v1/cases/"+args[0]+"/guidance", nil)
		},
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <case-id>",
		Short: "Download a case's review worklist as XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := fetch(http.MethodGet, "/v1/cases/"+args[0]+"/export", nil)
			if err != nil {
				return err
			}
			if out == "" {
				out = "worklist-" + args[0] + ".xlsx"
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}

// call performs the request and pretty-prints the JSON response.
func call(method, path string, body any) error {
	data, err := fetch(method, path, body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	return nil
}

func fetch(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, strings.TrimRight(baseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
