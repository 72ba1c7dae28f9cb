// file: internal/release-labeler/util/printer.go

package util

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fx147/release-labeler/pkg/registry"
	"github.com/fx147/release-labeler/pkg/report"
	"sigs.k8s.io/yaml"
)

// 支持的输出格式
const (
	OutputTable = "table"
	OutputYAML  = "yaml"
	OutputJSON  = "json"
)

// PrintKindsTable 将支持的类型以表格形式打印到指定的 writer。
// enabled 中的类型会在 ENABLED 列标记为 true。
func PrintKindsTable(out io.Writer, kinds []registry.BuiltinKind, custom []registry.CustomResource, enabled []string) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	defer w.Flush()

	on := make(map[string]bool, len(enabled))
	for _, k := range enabled {
		on[k] = true
	}

	fmt.Fprintln(w, "KIND\tGROUP\tVERSION\tRESOURCE\tBINDING\tENABLED")
	for _, k := range kinds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			k.Kind,
			groupOrCore(k.Resource.Group),
			k.Resource.Version,
			k.Resource.Resource,
			k.Binding,
			strconv.FormatBool(on[k.Kind]),
		)
	}
	for _, cr := range custom {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			cr.Kind,
			groupOrCore(cr.Group),
			cr.Version,
			cr.Plural,
			"Dynamic",
			"true",
		)
	}
}

func groupOrCore(group string) string {
	if group == "" {
		return "core"
	}
	return group
}

// PrintRecords 按照 output 指定的格式打印历史记录。
func PrintRecords(out io.Writer, records []report.Record, output string) error {
	switch output {
	case "", OutputTable:
		PrintRecordsTable(out, records)
		return nil
	case OutputJSON:
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode records as json: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case OutputYAML:
		data, err := yaml.Marshal(records)
		if err != nil {
			return fmt.Errorf("failed to encode records as yaml: %w", err)
		}
		_, err = out.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q (expected %s, %s or %s)", output, OutputTable, OutputYAML, OutputJSON)
	}
}

// StreamRecords 把 records 中的每条记录编码成一行 JSON 写到 out，直到 channel 关闭。
func StreamRecords(out io.Writer, records <-chan report.Record) error {
	enc := json.NewEncoder(out)
	for rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to write history record %d: %w", rec.Sequence, err)
		}
	}
	return nil
}

// PrintRecordsTable 将历史记录以表格形式打印到指定的 writer。
func PrintRecordsTable(out io.Writer, records []report.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "SEQ\tTIME\tNAMESPACE\tRELEASE\tOBJECT\tTOKEN\tOUTCOME\tDETAIL")
	for _, rec := range records {
		detail := rec.Detail
		if detail == "" {
			detail = "-"
		}
		object := "-"
		if !rec.EventLevel() {
			object = fmt.Sprintf("%s/%s", rec.Kind, rec.Name)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Sequence,
			rec.Time.Local().Format(time.DateTime),
			rec.Namespace,
			rec.Release,
			object,
			rec.Token,
			rec.Outcome,
			detail,
		)
	}
}
