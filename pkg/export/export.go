// Package export renders predictions and training history for downstream
// tooling.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/deepdist/tabular/infra/store"
)

// Prediction is one scored sample.
type Prediction struct {
	Index  int     `json:"index"`
	Target float64 `json:"target"`
	Median float64 `json:"median"`
	Error  float64 `json:"error"`
}

// WriteJSON writes the predictions to w in JSON format.
func WriteJSON(w io.Writer, preds []Prediction) error {
	enc := json.NewEncoder(w)
	return enc.Encode(preds)
}

// WriteCSV writes the predictions to w in CSV format.
func WriteCSV(w io.Writer, preds []Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "target", "median", "error"}); err != nil {
		return err
	}
	for _, p := range preds {
		rec := []string{
			strconv.Itoa(p.Index),
			formatFloat(p.Target),
			formatFloat(p.Median),
			formatFloat(p.Error),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteHistoryCSV writes the epoch history of a run to w in CSV format.
func WriteHistoryCSV(w io.Writer, recs []store.EpochRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"epoch", "phase", "loss", "duration_ms"}); err != nil {
		return err
	}
	for _, r := range recs {
		rec := []string{
			strconv.Itoa(r.Epoch),
			r.Phase,
			formatFloat(r.Loss),
			strconv.FormatInt(r.DurationMS, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
