package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/hallservo/internal/tuner"
)

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	st := New(dir)
	st.now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return st, dir
}

var samples = []tuner.Sample{
	{Time: 0, Angle: 0, Error: 90, Output: 0},
	{Time: 0.01, Angle: 1.090909, Error: 88.909091, Output: 80},
}

func TestStoreSaveLoad(t *testing.T) {
	st, dir := newStore(t)

	res := tuner.Result{
		Gains:    tuner.Gains{Kp: 2, Ki: 0.4, Kd: 0.12},
		Target:   90,
		RiseTime: tuner.Available(0.8),
		Score:    75,
		Metrics:  map[string]float64{"iae": 12.5},
	}
	runID, err := st.Save("step", "balanced", "sim", 2*time.Second, res, samples)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, name := range []string{"metadata.json", "samples.csv"} {
		if _, err := os.Stat(filepath.Join(dir, runID, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Kind != "step" || meta.Name != "balanced" || meta.Samples != 2 {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.Result.Gains != res.Gains || meta.Result.RiseTime != res.RiseTime || meta.Result.Metrics["iae"] != 12.5 {
		t.Errorf("result = %+v", meta.Result)
	}

	got, err := st.LoadSamples(runID)
	if err != nil {
		t.Fatalf("load samples failed: %v", err)
	}
	if len(got) != 2 || got[1] != samples[1] {
		t.Errorf("samples = %+v", got)
	}
}

func TestStoreList(t *testing.T) {
	st, _ := newStore(t)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	first, _ := st.Save("step", "a", "sim", time.Second, tuner.Result{}, samples)
	second, _ := st.Save("autotune", "b", "sim", time.Second, tuner.Result{}, samples)

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != first || runs[1].ID != second {
		t.Errorf("runs = %+v", runs)
	}
}

func TestListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"))
	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Errorf("runs=%v err=%v", runs, err)
	}
}

func TestLoadSamplesMalformed(t *testing.T) {
	st, dir := newStore(t)
	runID, _ := st.Save("step", "", "sim", time.Second, tuner.Result{}, samples)

	path := filepath.Join(dir, runID, "samples.csv")
	if err := os.WriteFile(path, []byte("time,angle,error,output\n0,x,1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadSamples(runID); !errors.Is(err, ErrBadSamples) {
		t.Errorf("err = %v, want ErrBadSamples", err)
	}
}

func TestExport(t *testing.T) {
	st, _ := newStore(t)
	runID, _ := st.Save("step", "", "sim", time.Second, tuner.Result{Target: 90}, samples)

	var buf bytes.Buffer
	if err := st.Export(&buf, runID); err != nil {
		t.Fatal(err)
	}
	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Run.ID != runID || len(data.Samples) != 2 || data.Run.Result.Target != 90 {
		t.Errorf("export = %+v", data)
	}
}
