package index

import (
	"fmt"
	"io"

	"concierge/internal/store"
)

// Report writes per-source chunk statistics and the embedding-dimension
// check to w. Read-only diagnostic for operators; the hot path never calls
// this.
func Report(w io.Writer, st *store.SQLiteStore, samples int) error {
	stats, err := st.Stats()
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	fmt.Fprintf(w, "rows=%d generation=%d model=%s dimension=%d\n",
		stats.Rows, stats.Generation, stats.Model, stats.Dimension)
	for _, sc := range stats.BySource {
		fmt.Fprintf(w, "  %s: %d\n", sc.Source, sc.Count)
	}

	mismatched, err := st.VerifyDimensions()
	if err != nil {
		return fmt.Errorf("verify dimensions: %w", err)
	}
	if mismatched > 0 {
		fmt.Fprintf(w, "WARNING: %d embedding(s) do not match the recorded dimension\n", mismatched)
	} else {
		fmt.Fprintln(w, "embedding dimensions: ok")
	}

	if samples > 0 {
		rows, err := st.Samples(samples)
		if err != nil {
			return fmt.Errorf("read samples: %w", err)
		}
		fmt.Fprintln(w, "sample rows:")
		for _, r := range rows {
			fmt.Fprintf(w, "  %s (%s)\n", r.ID, r.Topic)
		}
	}
	return nil
}
