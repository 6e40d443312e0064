package store

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/vecenv"
)

// rollout drives a small pool until episodes finish and records it through a
// Tracker.
func rollout(t *testing.T, steps int) ([]StepRow, []EpisodeRow) {
	t.Helper()
	cfg := config.Default()
	cfg.Width, cfg.Height = 7, 7
	cfg.NumEnvs = 3
	cfg.Snakes, cfg.Controlled = 2, 1
	cfg.Workers = 2
	cfg.MaxTicks = 30

	p, err := vecenv.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := p.ResetAll(); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(p.NumEnvs(), p.Controlled())
	rng := rand.New(rand.NewSource(9))
	var (
		stepRows []StepRow
		epRows   []EpisodeRow
	)
	for range steps {
		before := make([]*game.GameState, p.NumEnvs())
		actions := make(vecenv.ActionBatch, p.NumEnvs())
		for i := range actions {
			before[i] = p.State(i).Clone()
			m, _ := policy.RandomSafe{}.Act(before[i], 0, rng)
			actions[i] = []game.Move{m}
		}
		b, err := p.Step(actions)
		if err != nil {
			t.Fatal(err)
		}
		for i := range actions {
			row, ep := tr.Step(i, before[i], b.SlotRewards(i), b.Dones[i], b.Infos[i])
			stepRows = append(stepRows, row)
			if ep != nil {
				epRows = append(epRows, *ep)
			}
		}
	}
	return stepRows, epRows
}

func TestTracker_RowsMatchTransitions(t *testing.T) {
	steps, eps := rollout(t, 80)
	if len(eps) == 0 {
		t.Fatal("no episode finished in 80 steps with a 30 tick cap")
	}

	ids := map[string]bool{}
	for _, ep := range eps {
		if ids[ep.EpisodeID] {
			t.Fatalf("episode id %s reused", ep.EpisodeID)
		}
		ids[ep.EpisodeID] = true
		if ep.Turns <= 0 || ep.Turns > 30 || len(ep.Returns) != 1 || len(ep.Deaths) != 2 {
			t.Fatalf("episode row=%+v", ep)
		}
	}

	for _, row := range steps {
		if len(row.Snakes) != 2 || !row.Snakes[0].Controlled || row.Snakes[1].Controlled {
			t.Fatalf("snakes=%+v", row.Snakes)
		}
		for _, s := range row.Snakes {
			if s.Alive && (s.Move < 0 || s.Move >= int32(game.NumMoves)) {
				t.Fatalf("turn %d: live snake %s has move %d", row.Turn, s.ID, s.Move)
			}
			if !s.Alive && s.Move != -1 {
				t.Fatalf("turn %d: dead snake %s has move %d", row.Turn, s.ID, s.Move)
			}
			if len(s.BodyX) != len(s.BodyY) {
				t.Fatal("body coordinates out of step")
			}
			if !s.Controlled && s.Reward != 0 {
				t.Fatalf("scripted snake rewarded: %+v", s)
			}
		}
		if row.Done && !ids[row.EpisodeID] {
			t.Fatalf("done row %s has no episode row", row.EpisodeID)
		}
	}
}

func TestSink_RotatesAndPublishes(t *testing.T) {
	steps, eps := rollout(t, 40)
	dir := t.TempDir()

	sink, err := NewSink(dir, 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteSteps(steps[:70]); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteSteps(steps[70:]); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteEpisodes(eps); err != nil {
		t.Fatal(err)
	}
	files, err := sink.Close()
	if err != nil {
		t.Fatal(err)
	}

	wantStepFiles := (len(steps) + 49) / 50
	stepFiles, _ := filepath.Glob(filepath.Join(dir, StepsDir, "*.parquet"))
	if len(stepFiles) != wantStepFiles {
		t.Fatalf("got %d step files, want %d", len(stepFiles), wantStepFiles)
	}
	if len(files) != wantStepFiles+1 && len(eps) > 0 {
		t.Fatalf("Close reported %d files", len(files))
	}
	leftovers, _ := os.ReadDir(filepath.Join(dir, StepsDir, "tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("tmp not emptied: %v", leftovers)
	}

	total := 0
	for _, f := range stepFiles {
		rows, err := ReadFile[StepRow](f)
		if err != nil {
			t.Fatal(err)
		}
		total += len(rows)
	}
	if total != len(steps) {
		t.Fatalf("read back %d rows, wrote %d", total, len(steps))
	}
}

func TestWriteFileAtomic_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := []EpisodeRow{{
		EpisodeID: "e1",
		Turns:     12,
		Snakes:    2,
		Winner:    "c0",
		Returns:   []float32{1.5},
		Lengths:   []int32{5, 3},
		Deaths:    []string{"", "wall-collision"},
	}}
	path, err := WriteFileAtomic(dir, "episodes", EpisodeSchema, in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ReadFile[EpisodeRow](path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Winner != "c0" || out[0].Deaths[1] != "wall-collision" || out[0].Lengths[0] != 5 {
		t.Fatalf("read back %+v", out)
	}
}

func TestWriter_EmptyFileIsDropped(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter[StepRow](dir, "steps", StepSchema)
	if err != nil {
		t.Fatal(err)
	}
	path, n, err := w.Finalize()
	if err != nil || path != "" || n != 0 {
		t.Fatalf("Finalize=%q,%d,%v", path, n, err)
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, "*.parquet")); len(matches) != 0 {
		t.Fatalf("empty file published: %v", matches)
	}
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	eps := []EpisodeRow{
		{EpisodeID: "a", Turns: 10, Winner: "c0", Returns: []float32{1, 0}, Deaths: []string{"", "wall-collision"}},
		{EpisodeID: "b", Turns: 30, Truncated: true, Returns: []float32{0.5, 0.5}, Deaths: []string{"", ""}},
		{EpisodeID: "c", Turns: 20, Winner: "o0", Returns: []float32{-1, -1}, Deaths: []string{"starvation", "head-collision"}},
	}
	if _, err := WriteFileAtomic(filepath.Join(dir, EpisodesDir), "episodes", EpisodeSchema, eps); err != nil {
		t.Fatal(err)
	}
	steps := make([]StepRow, 7)
	if _, err := WriteFileAtomic(filepath.Join(dir, StepsDir), "steps", StepSchema, steps); err != nil {
		t.Fatal(err)
	}

	sum, err := Summarize(context.Background(), dir)
	if err != nil {
		t.Skipf("duckdb unavailable: %v", err)
	}
	t.Logf("%+v", sum)
	if sum.Episodes != 3 || sum.Steps != 7 || sum.MaxTurns != 30 || sum.AvgTurns != 20 {
		t.Fatalf("summary=%+v", sum)
	}
	if sum.TruncatedFrac < 0.33 || sum.TruncatedFrac > 0.34 {
		t.Fatalf("truncated=%v", sum.TruncatedFrac)
	}
	if sum.Wins["c0"] != 1 || sum.Wins["o0"] != 1 || len(sum.Wins) != 2 {
		t.Fatalf("wins=%v", sum.Wins)
	}
	if sum.Deaths["wall-collision"] != 1 || sum.Deaths["starvation"] != 1 || len(sum.Deaths) != 3 {
		t.Fatalf("deaths=%v", sum.Deaths)
	}
	if sum.AvgReturn != 0 {
		t.Fatalf("avg return=%v", sum.AvgReturn)
	}
}

func TestSummarize_EmptyDir(t *testing.T) {
	if _, err := Summarize(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected an error for a directory with no files")
	}
}

func TestSummarize_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteFileAtomic(filepath.Join(dir, StepsDir), "steps", StepSchema, make([]StepRow, 3)); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Summarize(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
