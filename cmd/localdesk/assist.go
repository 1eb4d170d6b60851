package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/localdesk/internal/api"
)

// assistOutcome mirrors the JSON of GET /assist/{id}.
type assistOutcome struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	EntityID   string `json:"entityId"`
	Status     string `json:"status"`
	Result     *struct {
		Kind  string         `json:"kind"`
		Patch map[string]any `json:"patch"`
		Text  string         `json:"text"`
	} `json:"result"`
	Error string `json:"error"`
}

var assistCmd = &cobra.Command{
	Use:   "assist <collection> [text...]",
	Short: "Fill a record from free text or a file using the AI backend",
	Long: `Ask the AI backend to fill a form of a collection from a description,
a receipt image, a PDF or a web page. The proposed fields are printed;
--save stores them.

Examples:
  localdesk assist transactions "coffee at Corner Cafe, 7.25"
  localdesk assist transactions --file receipt.jpg --save
  localdesk assist tasks --id 2 "push the deadline to Friday" --save`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		entityID, _ := cmd.Flags().GetString("id")
		save, _ := cmd.Flags().GetBool("save")

		collection := args[0]
		input := strings.Join(args[1:], " ")
		if strings.TrimSpace(input) == "" && file == "" {
			return fmt.Errorf("give a description or --file")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var body bytes.Buffer
		contentType := "application/json"
		if file != "" {
			contentType, err = assistMultipart(&body, collection, entityID, input, file)
		} else {
			err = writeJSONBody(&body, api.AssistRequest{Collection: collection, EntityID: entityID, Input: input})
		}
		if err != nil {
			return err
		}

		resp, err := client.send(ctx, "POST", "/assist", contentType, &body)
		if err != nil {
			return err
		}
		var out assistOutcome
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printStep("Waiting for the AI backend...")
		for out.Status == "loading" {
			resp, err := client.get(ctx, "/assist/"+url.PathEscape(out.ID)+"?wait=60s")
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
		}

		if out.Status == "error" {
			return fmt.Errorf("assist failed: %s", out.Error)
		}
		if out.Result == nil {
			return fmt.Errorf("assist %s finished without a result", out.ID)
		}

		if out.Result.Kind != "structured" {
			printWarning("The response did not match the %s form", collection)
			fmt.Fprint(stdout, renderMarkdown(out.Result.Text))
			if save {
				printWarning("Nothing saved")
			}
			return nil
		}

		fmt.Fprint(stdout, renderMarkdown(patchTable(out.Result.Patch)))
		if !save {
			return nil
		}

		if entityID != "" {
			resp, err = client.patch(ctx, recordPath(collection, entityID), out.Result.Patch)
		} else {
			resp, err = client.post(ctx, "/collections/"+url.PathEscape(collection), out.Result.Patch)
		}
		if err != nil {
			return err
		}
		var saved map[string]any
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}
		printSuccess("Saved %s %s", collection, cell(saved["id"]))
		return nil
	},
}

func init() {
	assistCmd.Flags().StringP("file", "f", "", "attach an image, PDF, HTML or text file")
	assistCmd.Flags().String("id", "", "edit this record instead of creating one")
	assistCmd.Flags().Bool("save", false, "store the proposed fields")
}

// assistMultipart writes a multipart POST /assist body with the file attached
// and returns its content type.
func assistMultipart(w io.Writer, collection, entityID, input, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening attachment: %w", err)
	}
	defer f.Close()

	mw := multipart.NewWriter(w)
	fields := map[string]string{"collection": collection, "entityId": entityID, "input": input}
	for _, k := range []string{"collection", "entityId", "input"} {
		if fields[k] == "" {
			continue
		}
		if err := mw.WriteField(k, fields[k]); err != nil {
			return "", err
		}
	}
	part, err := mw.CreateFormFile("attachment", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}

// patchTable renders proposed fields as a two-column markdown table.
func patchTable(patch map[string]any) string {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, cell(patch[k])}
	}
	return markdownTable([]string{"Field", "Value"}, rows)
}
