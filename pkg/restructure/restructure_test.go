package restructure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyland-inc/torrentclaw/pkg/media"
)

func fakePlanner(outputs map[string]string) *Planner {
	return &Planner{
		runGuessit: func(_ context.Context, path string) ([]byte, error) {
			out, ok := outputs[filepath.Base(path)]
			if !ok {
				return nil, errors.New("no guess")
			}
			return []byte(out), nil
		},
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildPlanTVTargets(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "downloads", "the.show.s01e02.1080p.mkv"))

	p := fakePlanner(map[string]string{
		"the.show.s01e02.1080p.mkv": `{"title": "The Show", "season": 1, "episode": 2}`,
	})
	plan, err := p.BuildPlan(context.Background(), media.TV, root)
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	if len(plan.Operations) != 1 {
		t.Fatalf("operations = %d, want 1", len(plan.Operations))
	}
	want := filepath.Join(root, "The Show", "Season 01", "The Show - S01E02.mkv")
	if plan.Operations[0].TargetPath != want {
		t.Errorf("target = %q, want %q", plan.Operations[0].TargetPath, want)
	}
}

func TestBuildPlanMultiEpisode(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "show.s02e03e04.mkv"))

	p := fakePlanner(map[string]string{
		"show.s02e03e04.mkv": `{"title": "Show", "season": 2, "episode": [4, 3]}`,
	})
	plan, err := p.BuildPlan(context.Background(), media.TV, root)
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	base := filepath.Base(plan.Operations[0].TargetPath)
	if base != "Show - S02E03-E04.mkv" {
		t.Errorf("filename = %q, want episodes sorted and joined", base)
	}
}

func TestBuildPlanMovieTargets(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "inception.2010.1080p.mkv"))

	p := fakePlanner(map[string]string{
		"inception.2010.1080p.mkv": `{"title": "Inception", "year": 2010}`,
	})
	plan, err := p.BuildPlan(context.Background(), media.Movie, root)
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	want := filepath.Join(root, "Inception (2010)", "Inception (2010).mkv")
	if plan.Operations[0].TargetPath != want {
		t.Errorf("target = %q, want %q", plan.Operations[0].TargetPath, want)
	}
}

func TestBuildPlanSanitizesTitle(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "weird.movie.mkv"))

	p := fakePlanner(map[string]string{
		"weird.movie.mkv": `{"title": "What? A: B/C", "year": 2020}`,
	})
	plan, err := p.BuildPlan(context.Background(), media.Movie, root)
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	if strings.ContainsAny(filepath.Base(plan.Operations[0].TargetPath), `?:*<>|"`) {
		t.Errorf("target %q carries unsafe characters", plan.Operations[0].TargetPath)
	}
}

func TestBuildPlanCollectsSubtitles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "dl", "film.2021.mkv"))
	touch(t, filepath.Join(root, "dl", "film.2021.en.srt"))
	touch(t, filepath.Join(root, "dl", "unrelated.srt"))

	p := fakePlanner(map[string]string{
		"film.2021.mkv": `{"title": "Film", "year": 2021}`,
	})
	plan, err := p.BuildPlan(context.Background(), media.Movie, root)
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	if len(plan.Operations) != 2 {
		t.Fatalf("operations = %d, want video + matching subtitle", len(plan.Operations))
	}
	sub := plan.Operations[1]
	if !sub.IsSubtitle || sub.DisplayName != "film.2021.en.srt" {
		t.Errorf("subtitle op = %+v", sub)
	}
	if filepath.Dir(sub.TargetPath) != filepath.Dir(plan.Operations[0].TargetPath) {
		t.Error("subtitle must land next to its video")
	}
}

func TestBuildPlanUnparseableFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "garbage.mkv"))

	p := fakePlanner(map[string]string{})
	plan, err := p.BuildPlan(context.Background(), media.TV, root)
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	if len(plan.Operations) != 0 || len(plan.Unparseable) != 1 {
		t.Errorf("plan = %d ops, %d unparseable", len(plan.Operations), len(plan.Unparseable))
	}
}

func TestBuildPlanMissingEpisodeIsUnparseable(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "show.mkv"))

	p := fakePlanner(map[string]string{
		"show.mkv": `{"title": "Show", "season": 1}`,
	})
	plan, err := p.BuildPlan(context.Background(), media.TV, root)
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if len(plan.Unparseable) != 1 {
		t.Errorf("unparseable = %d, want 1", len(plan.Unparseable))
	}
}

func TestResolveCollisionSuffixes(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Film (2021).mkv")
	touch(t, existing)

	got := resolveCollision(existing)
	want := filepath.Join(dir, "Film (2021)-1.mkv")
	if got != want {
		t.Errorf("collision target = %q, want %q", got, want)
	}
}

func samplePlan() *Plan {
	return &Plan{
		Category: media.TV,
		Operations: []Operation{
			{SourcePath: "/a/v1.mkv", TargetPath: "/t/v1.mkv", DisplayName: "v1.mkv"},
			{SourcePath: "/a/v1.srt", TargetPath: "/t/v1.srt", DisplayName: "v1.srt", IsSubtitle: true},
			{SourcePath: "/a/v2.mkv", TargetPath: "/t/v2.mkv", DisplayName: "v2.mkv"},
			{SourcePath: "/a/v3.mkv", TargetPath: "/t/v3.mkv", DisplayName: "v3.mkv"},
		},
	}
}

func TestParseReplyAll(t *testing.T) {
	ops, err := ParseReply("apply all", samplePlan())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ops) != 4 {
		t.Errorf("ops = %d, want all 4", len(ops))
	}
}

func TestParseReplySelectionCarriesSubtitles(t *testing.T) {
	ops, err := ParseReply("apply 1", samplePlan())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ops = %d, want video and its subtitle", len(ops))
	}
	if !ops[1].IsSubtitle {
		t.Error("subtitle not carried with its video")
	}
}

func TestParseReplyMultipleIndices(t *testing.T) {
	ops, err := ParseReply("apply 2 3", samplePlan())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ops) != 2 || ops[0].DisplayName != "v2.mkv" || ops[1].DisplayName != "v3.mkv" {
		t.Errorf("ops = %+v", ops)
	}
}

func TestParseReplyCancel(t *testing.T) {
	_, err := ParseReply("cancel", samplePlan())
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
}

func TestParseReplyOutOfRange(t *testing.T) {
	if _, err := ParseReply("apply 9", samplePlan()); err == nil {
		t.Error("out-of-range index accepted")
	}
	if _, err := ParseReply("apply 0", samplePlan()); err == nil {
		t.Error("zero index accepted")
	}
}

func TestParseReplyBadGrammar(t *testing.T) {
	if _, err := ParseReply("yes please", samplePlan()); err == nil {
		t.Error("free-form text accepted")
	}
	if _, err := ParseReply("apply two", samplePlan()); err == nil {
		t.Error("non-numeric index accepted")
	}
}

func TestFormatPlanNumbersVideosOnly(t *testing.T) {
	text := FormatPlan(samplePlan())

	if !strings.Contains(text, "1. v1.mkv") || !strings.Contains(text, "3. v3.mkv") {
		t.Errorf("video numbering missing:\n%s", text)
	}
	if strings.Contains(text, "4.") {
		t.Error("subtitles must not get their own numbers")
	}
	if !strings.Contains(text, "+ v1.srt") {
		t.Error("subtitle not shown under its video")
	}
}

func TestFormatPlanEmpty(t *testing.T) {
	text := FormatPlan(&Plan{Category: media.Movie})
	if text != "✅ Nothing to restructure" {
		t.Errorf("text = %q", text)
	}
}

func TestExecuteMoves(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "a.mkv")
	dst := filepath.Join(dir, "lib", "Show", "a.mkv")
	touch(t, src)

	result := ExecuteMoves([]Operation{
		{SourcePath: src, TargetPath: dst, DisplayName: "a.mkv"},
	})

	if _, err := os.Stat(dst); err != nil {
		t.Errorf("target missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still present")
	}
	if !strings.Contains(result, "1/1 files moved") {
		t.Errorf("result = %q", result)
	}
}

func TestExecuteMovesReportsFailures(t *testing.T) {
	dir := t.TempDir()
	result := ExecuteMoves([]Operation{
		{SourcePath: filepath.Join(dir, "missing.mkv"), TargetPath: filepath.Join(dir, "out.mkv"), DisplayName: "missing.mkv"},
	})

	if !strings.Contains(result, "0/1 files moved") {
		t.Errorf("result = %q", result)
	}
	if !strings.Contains(result, "errors") {
		t.Errorf("failures not reported: %q", result)
	}
}

func TestEpisodeNumbers(t *testing.T) {
	for _, tt := range []struct {
		raw  string
		want int
	}{
		{`3`, 1},
		{`[1, 2, 3]`, 3},
		{``, 0},
		{`"x"`, 0},
	} {
		got := episodeNumbers([]byte(tt.raw))
		if len(got) != tt.want {
			t.Errorf("episodeNumbers(%s) = %v, want %d entries", tt.raw, got, tt.want)
		}
	}
}

func TestScanSkipsHiddenDirs(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, ".hidden", "x.mkv"))
	touch(t, filepath.Join(root, "visible", "y.mkv"))
	touch(t, filepath.Join(root, "notes.txt"))

	videos, err := scanVideos(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(videos) != 1 || filepath.Base(videos[0]) != "y.mkv" {
		t.Errorf("videos = %v", videos)
	}
}

func TestFormatPlanTruncatesLongLists(t *testing.T) {
	plan := &Plan{Category: media.Movie}
	for i := 0; i < 60; i++ {
		name := fmt.Sprintf("film-%02d.mkv", i)
		plan.Operations = append(plan.Operations, Operation{
			SourcePath:  "/a/" + name,
			TargetPath:  "/t/" + name,
			DisplayName: name,
		})
	}

	text := FormatPlan(plan)
	if !strings.Contains(text, "more operations") {
		t.Error("long plan not truncated")
	}
	if strings.Contains(text, "51.") {
		t.Error("entries past the cap rendered")
	}
}
