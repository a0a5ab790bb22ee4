package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// printSummary writes the run summary as an aligned table.
func printSummary(w io.Writer, s ingest.RunSummary) {
	fmt.Fprintf(w, "run %s: %s in %s\n", s.RunID, s.Status, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if s.Err != nil {
		fmt.Fprintf(w, "error [%s]: %v\n", ingest.Code(s.Err), s.Err)
	}
	if len(s.Entities) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ENTITY\tSTATUS\tPROCESSED\tINSERTED\tERRORS\tSKIPPED\t")
	for _, es := range s.Entities {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t\n",
			es.Entity, es.Status, es.Processed, es.Inserted, es.Errors, es.Skipped)
	}
	t := s.Totals()
	fmt.Fprintf(tw, "total\t\t%d\t%d\t%d\t%d\t\n", t.Processed, t.Inserted, t.Errors, t.Skipped)
	tw.Flush()

	for _, es := range s.Entities {
		if es.Err != nil {
			fmt.Fprintf(w, "%s [%s]: %v\n", es.Entity, ingest.Code(es.Err), es.Err)
		}
	}
}
