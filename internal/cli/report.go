package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fpang/autocrop/internal/batch"
)

// PrintReport writes the per-item results and the batch summary.
func PrintReport(w io.Writer, res *batch.Result, elapsed time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "============================================")
	fmt.Fprintln(w, "Crop Report")
	fmt.Fprintln(w, "============================================")

	for i, it := range res.Items {
		mark := "OK  "
		if !it.Success {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%3d. [%s] %s\n", i+1, mark, it.Identifier)
		fmt.Fprintf(w, "       %s\n", it.Message)
		if it.ProducedName != "" {
			fmt.Fprintf(w, "       -> %s\n", it.ProducedName)
		}
	}

	fmt.Fprintln(w, "--------------------------------------------")
	fmt.Fprintf(w, "Processed: %d  Succeeded: %d  Failed: %d\n", len(res.Items), res.SuccessCount, res.ErrorCount)
	fmt.Fprintf(w, "Output:    %s\n", res.Dir)
	if res.ArchivePath != "" {
		fmt.Fprintf(w, "Archive:   %s (%s)\n", res.ArchivePath, FormatBytes(res.ArchiveSize))
	}
	fmt.Fprintf(w, "Elapsed:   %s\n", FormatDurationShort(elapsed))
}
