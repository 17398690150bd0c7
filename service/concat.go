package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// SegmentInput is one approved segment video handed to the engine.
type SegmentInput struct {
	Ordinal int
	Path    string
}

// Assembler produces one deliverable from ordered segment videos plus an
// optional narration track.
type Assembler interface {
	Assemble(ctx context.Context, inputs []SegmentInput, narrationPath, outPath string) error
}

// Concatenator assembles approved segment videos into one deliverable.
// Order is by ordinal only; the engine never infers order from filenames
// or timestamps. Given the same input set it produces an equivalent
// output, so a failed run can simply be repeated.
type Concatenator struct {
	WorkDir string
}

func NewConcatenator(workDir string) *Concatenator {
	return &Concatenator{WorkDir: workDir}
}

// Assemble concatenates the inputs in ordinal order and, when a narration
// track is supplied, lays it over the result starting at time zero. A
// narration shorter or longer than the video is a logged warning, not a
// failure; partial coverage is acceptable.
func (c *Concatenator) Assemble(ctx context.Context, inputs []SegmentInput, narrationPath, outPath string) error {
	if err := c.validate(inputs); err != nil {
		return err
	}

	sorted := make([]SegmentInput, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	listFile, err := c.writeConcatList(sorted)
	if err != nil {
		return err
	}
	defer os.Remove(listFile)

	videoOut := outPath
	if narrationPath != "" {
		videoOut = filepath.Join(filepath.Dir(outPath), "concat_"+filepath.Base(outPath))
		defer os.Remove(videoOut)
	}

	err = ffmpeg.Input(listFile, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(videoOut, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().
		Run()
	if err != nil {
		return fmt.Errorf("%w: concat: %v", ErrEncoding, err)
	}

	if narrationPath == "" {
		return nil
	}
	return c.muxNarration(videoOut, narrationPath, outPath)
}

// validate enforces the dense-ordinal contract and rejects unreadable
// inputs before any encoding starts.
func (c *Concatenator) validate(inputs []SegmentInput) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no inputs", ErrIncompleteSegments)
	}
	seen := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.Ordinal] {
			return fmt.Errorf("%w: duplicate ordinal %d", ErrIncompleteSegments, in.Ordinal)
		}
		seen[in.Ordinal] = true
	}
	for i := 0; i < len(inputs); i++ {
		if !seen[i] {
			return fmt.Errorf("%w: missing ordinal %d", ErrIncompleteSegments, i)
		}
	}
	for _, in := range inputs {
		if _, err := probeDuration(in.Path); err != nil {
			return fmt.Errorf("%w: unreadable input %s: %v", ErrEncoding, in.Path, err)
		}
	}
	return nil
}

// writeConcatList produces the ffmpeg concat demuxer file, one line per
// segment, strictly in ordinal order.
func (c *Concatenator) writeConcatList(sorted []SegmentInput) (string, error) {
	f, err := os.CreateTemp(c.WorkDir, "concat_*.txt")
	if err != nil {
		return "", fmt.Errorf("%w: create list file: %v", ErrEncoding, err)
	}
	defer f.Close()
	for _, in := range sorted {
		abs, err := filepath.Abs(in.Path)
		if err != nil {
			return "", fmt.Errorf("%w: resolve %s: %v", ErrEncoding, in.Path, err)
		}
		if _, err := fmt.Fprintf(f, "file '%s'\n", abs); err != nil {
			return "", fmt.Errorf("%w: write list file: %v", ErrEncoding, err)
		}
	}
	return f.Name(), nil
}

// muxNarration overlays the narration from time zero. The narration is
// neither looped nor trimmed; a duration mismatch only logs a warning.
func (c *Concatenator) muxNarration(videoPath, narrationPath, outPath string) error {
	videoDur, err := probeDuration(videoPath)
	if err != nil {
		return fmt.Errorf("%w: probe %s: %v", ErrEncoding, videoPath, err)
	}
	narrDur, err := probeDuration(narrationPath)
	if err != nil {
		return fmt.Errorf("%w: unreadable narration %s: %v", ErrEncoding, narrationPath, err)
	}
	if diff := videoDur - narrDur; diff > 1.0 || diff < -1.0 {
		log.Printf("warning: narration duration %.1fs differs from video %.1fs", narrDur, videoDur)
	}

	video := ffmpeg.Input(videoPath)
	audio := ffmpeg.Input(narrationPath)
	err = ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outPath, ffmpeg.KwArgs{
		"c:v": "copy",
		"c:a": "aac",
		"map": []string{"0:v:0", "1:a:0"},
	}).
		OverWriteOutput().
		Run()
	if err != nil {
		return fmt.Errorf("%w: mux narration: %v", ErrEncoding, err)
	}
	return nil
}

// probeDuration reads the container duration via ffprobe.
func probeDuration(path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, err
	}
	var probed struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &probed); err != nil {
		return 0, err
	}
	if probed.Format.Duration == "" {
		return 0, fmt.Errorf("no duration in probe output")
	}
	return strconv.ParseFloat(probed.Format.Duration, 64)
}
