package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/localdesk/internal/api"
)

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list [collection]",
	Short: "List collections, or the records of one collection",
	Long: `List collections, or the records of one collection.

Examples:
  localdesk list
  localdesk list tasks --eq status=todo --sort dueDate
  localdesk list transactions -q milk
  localdesk list transactions --min amount=30 --sort amount --desc`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/collections")
		if err != nil {
			return err
		}
		var infos []api.CollectionInfo
		if err := decodeJSON(resp, &infos); err != nil {
			return err
		}

		if len(args) == 0 {
			rows := make([][]string, len(infos))
			for i, info := range infos {
				rows[i] = []string{info.Name, strconv.Itoa(info.Count), strings.Join(info.Fields, ", ")}
			}
			fmt.Fprint(stdout, renderMarkdown(markdownTable([]string{"Collection", "Records", "Fields"}, rows)))
			return nil
		}

		q, err := viewQuery(cmd)
		if err != nil {
			return err
		}
		resp, err = client.get(cmd.Context(), "/collections/"+url.PathEscape(args[0])+encodeQuery(q))
		if err != nil {
			return err
		}
		var view struct {
			Collection string           `json:"collection"`
			Count      int              `json:"count"`
			Total      int              `json:"total"`
			Items      []map[string]any `json:"items"`
			Summary    []struct {
				Label string `json:"label"`
				Value string `json:"value"`
			} `json:"summary"`
		}
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view.Items)
		}

		if view.Count == 0 {
			fmt.Fprintln(stdout, "No records found.")
		} else {
			var fields []string
			for _, info := range infos {
				if info.Name == view.Collection {
					fields = info.Fields
				}
			}
			headers := append([]string{"id"}, fields...)
			rows := make([][]string, len(view.Items))
			for i, item := range view.Items {
				row := make([]string, len(headers))
				for j, h := range headers {
					row[j] = cell(item[h])
				}
				rows[i] = row
			}
			fmt.Fprint(stdout, renderMarkdown(markdownTable(headers, rows)))
		}

		printStatus("Shown", "%d of %d", view.Count, view.Total)
		for _, s := range view.Summary {
			printStatus(s.Label, "%s", s.Value)
		}
		return nil
	},
}

func init() {
	addViewFlags(listCmd)
	listCmd.Flags().Bool("json", false, "print records as JSON")
}

// --- add / update / rm ---

var addCmd = &cobra.Command{
	Use:   "add <collection> <field=value>...",
	Short: "Create a record",
	Long: `Create a record. Fields not given take their defaults.

Use field=value for text and field:=json for numbers, lists and other JSON values.

Examples:
  localdesk add tasks title="Call the bank" priority=high estimatedTime:=15
  localdesk add transactions vendor="Corner Cafe" amount:=7.25 'tags:=["coffee"]'`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/collections/"+url.PathEscape(args[0]), fields)
		if err != nil {
			return err
		}
		var created map[string]any
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Created %s %s", args[0], cell(created["id"]))
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <collection> <id> <field=value>...",
	Short: "Change fields of a record",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseAssignments(args[2:])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), recordPath(args[0], args[1]), fields)
		if err != nil {
			return err
		}
		var updated map[string]any
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}

		printSuccess("Updated %s %s", args[0], args[1])
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <collection> <id>...",
	Short: "Delete records",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		failed := 0
		for _, id := range args[1:] {
			resp, err := client.delete(cmd.Context(), recordPath(args[0], id))
			if err == nil {
				var result map[string]string
				err = decodeJSON(resp, &result)
			}
			if err != nil {
				printError("Failed to delete %s: %v", id, err)
				failed++
				continue
			}
			printSuccess("Deleted %s %s", args[0], id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d deletes failed", failed, len(args)-1)
		}
		return nil
	},
}

// --- export / import ---

var exportCmd = &cobra.Command{
	Use:   "export <collection>",
	Short: "Export records as CSV",
	Long: `Export the records of a collection as CSV. The view flags of "list"
narrow the export the same way.

Examples:
  localdesk export transactions -o ledger.csv
  localdesk export tasks --eq status=done`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		q, err := viewQuery(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/collections/"+url.PathEscape(args[0])+"/export.csv"+encodeQuery(q))
		if err != nil {
			return err
		}
		if err := checkStatus(resp); err != nil {
			return err
		}
		defer resp.Body.Close()

		var w io.Writer = stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("writing CSV: %w", err)
		}

		if output != "" {
			printSuccess("Exported %s to %s", args[0], output)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <collection> <file.csv>",
	Short: "Import records from CSV",
	Long: `Import records from a CSV file with a header row. Columns are read by
position in the order "export" writes them. Rows that do not parse are
skipped; imported records get new ids.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("opening CSV: %w", err)
		}
		defer f.Close()

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.send(cmd.Context(), "POST", "/collections/"+url.PathEscape(args[0])+"/import", "text/csv", f)
		if err != nil {
			return err
		}
		var report struct {
			Imported int `json:"imported"`
			Skipped  int `json:"skipped"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printSuccess("Imported %d %s", report.Imported, args[0])
		if report.Skipped > 0 {
			printWarning("Skipped %d malformed rows", report.Skipped)
		}
		return nil
	},
}

func init() {
	addViewFlags(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
}

// --- helpers ---

func addViewFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("query", "q", "", "search text fields")
	cmd.Flags().StringArray("eq", nil, "exact match, field=value (repeatable)")
	cmd.Flags().StringArray("min", nil, "lower bound, field=value (repeatable)")
	cmd.Flags().StringArray("max", nil, "upper bound, field=value (repeatable)")
	cmd.Flags().String("sort", "", "field to sort by")
	cmd.Flags().Bool("desc", false, "sort descending")
}

// viewQuery turns the view flags into API query parameters.
func viewQuery(cmd *cobra.Command) (url.Values, error) {
	q := url.Values{}
	if s, _ := cmd.Flags().GetString("query"); s != "" {
		q.Set("q", s)
	}
	for _, prefix := range []string{"eq", "min", "max"} {
		pairs, _ := cmd.Flags().GetStringArray(prefix)
		for _, p := range pairs {
			field, value, ok := strings.Cut(p, "=")
			if !ok || field == "" {
				return nil, fmt.Errorf("--%s wants field=value, got %q", prefix, p)
			}
			q.Set(prefix+"."+field, value)
		}
	}
	if s, _ := cmd.Flags().GetString("sort"); s != "" {
		q.Set("sort", s)
		if desc, _ := cmd.Flags().GetBool("desc"); desc {
			q.Set("desc", "true")
		}
	}
	return q, nil
}

func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func recordPath(collection, id string) string {
	return "/collections/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

// parseAssignments reads field=value (text) and field:=json arguments.
func parseAssignments(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, a := range args {
		if k, raw, ok := strings.Cut(a, ":="); ok && k != "" && !strings.Contains(k, "=") {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("invalid JSON for %s: %w", k, err)
			}
			fields[k] = v
			continue
		}
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected field=value or field:=json, got %q", a)
		}
		fields[k] = v
	}
	return fields, nil
}

// cell renders one JSON value for a table.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = cell(e)
		}
		return strings.Join(parts, ", ")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
