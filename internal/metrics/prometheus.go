package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kikiluvv/hypecut/pkg/util"
)

// WritePrometheus renders the snapshot in Prometheus exposition format.
// Stage durations are gauges under one family; counters are typed counters.
func (s Snapshot) WritePrometheus(w io.Writer) error {
	var b strings.Builder

	b.WriteString("# HELP job_duration_seconds Wall time per analysis stage\n")
	b.WriteString("# TYPE job_duration_seconds gauge\n")
	fmt.Fprintf(&b, "job_duration_seconds{stage=\"total\"} %s\n", formatFloat(s.TotalSeconds))
	for _, t := range s.Stages {
		fmt.Fprintf(&b, "job_duration_seconds{stage=%q} %s\n", t.Stage, formatFloat(t.Duration))
	}

	for _, name := range s.sortedCounterNames() {
		fmt.Fprintf(&b, "# HELP %s Pipeline counter\n", name)
		fmt.Fprintf(&b, "# TYPE %s counter\n", name)
		fmt.Fprintf(&b, "%s %d\n", name, s.Counters[name])
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteTextfile writes the snapshot to path for a node_exporter textfile
// collector. The write goes through a temp file and rename so the
// collector never reads a partial file.
func (s Snapshot) WriteTextfile(path string) error {
	dir := filepath.Dir(path)
	if err := util.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hypecut-metrics-*")
	if err != nil {
		return fmt.Errorf("failed to create temp metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.WritePrometheus(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
