// Package restructure reorganizes downloaded media into a tidy library
// layout. Metadata comes from the guessit CLI; the plan is presented to
// the user and only the confirmed operations are executed.
package restructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tinyland-inc/torrentclaw/pkg/logger"
	"github.com/tinyland-inc/torrentclaw/pkg/media"
)

// ErrCancelled is returned by ParseReply when the user cancels the plan.
var ErrCancelled = errors.New("restructure cancelled")

const guessitTimeout = 5 * time.Second

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
}

var subtitleExtensions = map[string]bool{
	".srt": true, ".sub": true, ".ass": true, ".ssa": true, ".vtt": true,
}

// Metadata is what guessit extracts from one video filename.
type Metadata struct {
	Title     string
	Year      int
	Season    int
	Episodes  []int
	Extension string
}

type guessitWire struct {
	Title   string          `json:"title"`
	Year    int             `json:"year"`
	Season  int             `json:"season"`
	Episode json.RawMessage `json:"episode"`
}

// episodeNumbers handles guessit's episode field, which is a bare number
// for single episodes and an array for multi-episode files.
func episodeNumbers(raw json.RawMessage) []int {
	if len(raw) == 0 {
		return nil
	}
	var single int
	if err := json.Unmarshal(raw, &single); err == nil {
		return []int{single}
	}
	var many []int
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

// Operation is one planned file move. Subtitle operations always follow
// the video operation they belong to.
type Operation struct {
	SourcePath  string
	TargetPath  string
	DisplayName string
	IsSubtitle  bool
}

// Plan is the full set of proposed moves under one library root.
type Plan struct {
	Category    media.Category
	Operations  []Operation
	Unparseable []string
}

// Planner builds restructure plans. The guessit runner is injectable for
// tests.
type Planner struct {
	runGuessit func(ctx context.Context, path string) ([]byte, error)
}

func NewPlanner() *Planner {
	return &Planner{runGuessit: execGuessit}
}

func execGuessit(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, guessitTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "guessit", "-j", path).Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, errors.New("guessit not found, install with: pip install guessit")
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.New("guessit timed out")
		}
		return nil, fmt.Errorf("guessit: %w", err)
	}
	return out, nil
}

func (p *Planner) extractMetadata(ctx context.Context, path string) (Metadata, error) {
	out, err := p.runGuessit(ctx, path)
	if err != nil {
		return Metadata{}, err
	}

	var wire guessitWire
	if err := json.Unmarshal(out, &wire); err != nil {
		return Metadata{}, fmt.Errorf("parsing guessit output: %w", err)
	}
	if wire.Title == "" {
		return Metadata{}, errors.New("guessit found no title")
	}

	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".mkv"
	}

	return Metadata{
		Title:     wire.Title,
		Year:      wire.Year,
		Season:    wire.Season,
		Episodes:  episodeNumbers(wire.Episode),
		Extension: ext,
	}, nil
}

// BuildPlan scans root recursively for video files and proposes a move
// for each one guessit can parse, plus any subtitles sharing the video's
// filename stem.
func (p *Planner) BuildPlan(ctx context.Context, cat media.Category, root string) (*Plan, error) {
	videos, err := scanVideos(root)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Category: cat}
	for _, video := range videos {
		meta, err := p.extractMetadata(ctx, video)
		if err != nil {
			logger.DebugCF("restructure", "unparseable file", map[string]any{
				"path": video, "error": err.Error(),
			})
			plan.Unparseable = append(plan.Unparseable, video)
			continue
		}

		target, err := targetPath(cat, root, meta)
		if err != nil {
			plan.Unparseable = append(plan.Unparseable, video)
			continue
		}
		if samePath(video, target) {
			continue
		}
		target = resolveCollision(target)

		plan.Operations = append(plan.Operations, Operation{
			SourcePath:  video,
			TargetPath:  target,
			DisplayName: filepath.Base(video),
		})

		targetDir := filepath.Dir(target)
		for _, sub := range matchingSubtitles(video) {
			name := filepath.Base(sub)
			plan.Operations = append(plan.Operations, Operation{
				SourcePath:  sub,
				TargetPath:  resolveCollision(filepath.Join(targetDir, name)),
				DisplayName: name,
				IsSubtitle:  true,
			})
		}
	}

	return plan, nil
}

func scanVideos(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	var videos []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && videoExtensions[strings.ToLower(filepath.Ext(path))] {
			videos = append(videos, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(videos)
	return videos, nil
}

// sanitizeName replaces characters that are unsafe in filenames.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, name)
}

// targetPath builds the library path for one parsed video.
// TV:    root/Title/Season 01/Title - S01E02.ext (multi-episode E01-E02)
// Movie: root/Title (Year)/Title (Year).ext
func targetPath(cat media.Category, root string, meta Metadata) (string, error) {
	title := sanitizeName(meta.Title)

	switch cat {
	case media.TV:
		if meta.Season == 0 {
			return "", errors.New("missing season number")
		}
		if len(meta.Episodes) == 0 {
			return "", errors.New("missing episode number")
		}

		episodes := append([]int(nil), meta.Episodes...)
		sort.Ints(episodes)
		parts := make([]string, 0, len(episodes))
		for _, e := range episodes {
			parts = append(parts, fmt.Sprintf("E%02d", e))
		}

		filename := fmt.Sprintf("%s - S%02d%s%s",
			title, meta.Season, strings.Join(parts, "-"), meta.Extension)
		return filepath.Join(root, title, fmt.Sprintf("Season %02d", meta.Season), filename), nil

	case media.Movie:
		folder := title
		if meta.Year != 0 {
			folder = fmt.Sprintf("%s (%d)", title, meta.Year)
		}
		return filepath.Join(root, folder, folder+meta.Extension), nil

	default:
		return "", fmt.Errorf("cannot restructure category %s", cat)
	}
}

func samePath(a, b string) bool {
	ca, err := filepath.EvalSymlinks(a)
	if err != nil {
		ca = a
	}
	cb, err := filepath.EvalSymlinks(b)
	if err != nil {
		cb = b
	}
	return ca == cb
}

// resolveCollision appends -1, -2, ... up to -100 until the target does
// not exist yet.
func resolveCollision(target string) string {
	if _, err := os.Stat(target); err != nil {
		return target
	}

	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	for i := 1; i <= 100; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
	return target
}

// matchingSubtitles finds subtitle files next to the video whose name
// starts with the video's stem, covering language-coded variants like
// "show.s01e01.en.srt".
func matchingSubtitles(videoPath string) []string {
	dir := filepath.Dir(videoPath)
	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var subs []string
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if !subtitleExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			continue
		}
		if strings.HasPrefix(d.Name(), stem) {
			subs = append(subs, filepath.Join(dir, d.Name()))
		}
	}

	sort.Strings(subs)
	return subs
}

const maxPlanDisplay = 50

// FormatPlan renders the plan for chat, numbering video moves and
// indenting their subtitles underneath.
func FormatPlan(plan *Plan) string {
	if len(plan.Operations) == 0 && len(plan.Unparseable) == 0 {
		return "✅ Nothing to restructure"
	}

	emoji := "🎬"
	if plan.Category == media.TV {
		emoji = "📺"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Restructure Plan:\n\n", emoji)

	index := 0
	for i := 0; i < len(plan.Operations); {
		op := plan.Operations[i]
		if op.IsSubtitle {
			i++
			continue
		}

		index++
		if index > maxPlanDisplay {
			fmt.Fprintf(&b, "\n... and %d more operations (showing first %d)\n",
				len(plan.Operations)-i, maxPlanDisplay)
			break
		}

		fmt.Fprintf(&b, "%d. %s\n   → %s\n", index, op.DisplayName, shortTarget(op.TargetPath))

		j := i + 1
		for j < len(plan.Operations) && plan.Operations[j].IsSubtitle {
			fmt.Fprintf(&b, "      + %s\n", plan.Operations[j].DisplayName)
			j++
		}
		i = j
	}

	if len(plan.Unparseable) > 0 {
		b.WriteString("\n⚠️ Unparseable files (will be skipped):\n")
		for i, file := range plan.Unparseable {
			if i == 20 {
				fmt.Fprintf(&b, "  ... and %d more\n", len(plan.Unparseable)-20)
				break
			}
			fmt.Fprintf(&b, "  • %s\n", filepath.Base(file))
		}
	}

	b.WriteString("\nReply with:\n")
	b.WriteString("• \"apply all\" - Execute all operations\n")
	b.WriteString("• \"apply 1 2 5\" - Execute specific operations\n")
	b.WriteString("• \"cancel\" - Cancel restructure\n")

	return b.String()
}

// shortTarget trims the target path to its last three components so the
// plan stays readable in chat.
func shortTarget(target string) string {
	parts := strings.Split(target, string(filepath.Separator))
	if len(parts) <= 3 {
		return target
	}
	return filepath.Join(parts[len(parts)-3:]...)
}

// ParseReply interprets the user's answer to a presented plan. Selected
// video operations come back together with their subtitles.
func ParseReply(text string, plan *Plan) ([]Operation, error) {
	reply := strings.ToLower(strings.TrimSpace(text))

	switch reply {
	case "cancel":
		return nil, ErrCancelled
	case "apply", "apply all":
		return plan.Operations, nil
	}

	rest, ok := strings.CutPrefix(reply, "apply ")
	if !ok {
		return nil, errors.New("invalid reply, use 'apply all', 'apply 1 2 5', or 'cancel'")
	}

	wanted := make(map[int]bool)
	for _, part := range strings.Fields(rest) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", part)
		}
		wanted[n] = true
	}

	var selected []Operation
	index := 0
	for i := 0; i < len(plan.Operations); {
		op := plan.Operations[i]
		if op.IsSubtitle {
			i++
			continue
		}

		index++
		j := i + 1
		for j < len(plan.Operations) && plan.Operations[j].IsSubtitle {
			j++
		}
		if wanted[index] {
			selected = append(selected, plan.Operations[i:j]...)
		}
		i = j
	}

	for n := range wanted {
		if n < 1 || n > index {
			return nil, fmt.Errorf("index %d out of range (1-%d)", n, index)
		}
	}
	if len(selected) == 0 {
		return nil, errors.New("no valid operations selected")
	}

	return selected, nil
}

// ExecuteMoves runs the confirmed operations and reports a per-file
// summary. Partial failure is reported, not fatal.
func ExecuteMoves(operations []Operation) string {
	success := 0
	var failures []string

	for _, op := range operations {
		if err := os.MkdirAll(filepath.Dir(op.TargetPath), 0o755); err != nil {
			failures = append(failures, fmt.Sprintf("%s: creating directory: %v", op.DisplayName, err))
			continue
		}
		if err := moveFile(op.SourcePath, op.TargetPath); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", op.DisplayName, err))
			continue
		}
		success++
	}

	logger.InfoCF("restructure", "moves executed", map[string]any{
		"moved": success, "failed": len(failures),
	})

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Restructuring complete!\n• %d/%d files moved", success, len(operations))
	if len(failures) > 0 {
		fmt.Fprintf(&b, "\n• %d errors:\n", len(failures))
		for i, f := range failures {
			if i == 10 {
				fmt.Fprintf(&b, "  ... and %d more errors\n", len(failures)-10)
				break
			}
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	return b.String()
}

// moveFile renames, falling back to copy-and-delete for cross-filesystem
// moves.
func moveFile(source, target string) error {
	if err := os.Rename(source, target); err == nil {
		return nil
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return err
	}
	return os.Remove(source)
}
