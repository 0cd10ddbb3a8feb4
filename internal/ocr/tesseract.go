package ocr

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Tesseract recognizes text with the tesseract CLI.
type Tesseract struct {
	binPath string
}

// NewTesseract creates a Tesseract engine. If binPath is empty, "tesseract" is used.
func NewTesseract(binPath string) *Tesseract {
	if binPath == "" {
		binPath = "tesseract"
	}
	return &Tesseract{binPath: binPath}
}

// Name implements Engine.
func (t *Tesseract) Name() string { return "tesseract" }

// Recognize runs tesseract with TSV output on imagePath. Confidence is the
// mean of the word confidences.
func (t *Tesseract) Recognize(ctx context.Context, imagePath, lang string) (Recognition, error) {
	if lang == "" {
		lang = "eng"
	}
	// psm 6: a single uniform block of text.
	cmd := exec.CommandContext(ctx, t.binPath, imagePath, "stdout", "-l", lang, "--psm", "6", "tsv")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Recognition{}, eris.Wrapf(ctx.Err(), "ocr: tesseract interrupted for %s", imagePath)
		}
		return Recognition{}, eris.Wrapf(err, "ocr: tesseract failed for %s: %s", imagePath, strings.TrimSpace(stderr.String()))
	}
	return ParseTSV(stdout.Bytes())
}

// ParseTSV reads tesseract TSV output. Words on the same line are joined by
// spaces and lines by newlines. Rows with negative confidence carry layout
// only and are skipped.
func ParseTSV(data []byte) (Recognition, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		lines    []string
		words    []string
		lastLine string
		confSum  float64
		confN    int
		header   = true
	)
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(sc.Text(), "\t")
		// level page block par line word left top width height conf text
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil {
			return Recognition{}, eris.Wrapf(err, "ocr: parse tsv confidence %q", cols[10])
		}
		text := strings.TrimSpace(cols[11])
		if conf < 0 || text == "" {
			continue
		}

		lineKey := cols[1] + "." + cols[2] + "." + cols[3] + "." + cols[4]
		if lineKey != lastLine && len(words) > 0 {
			lines = append(lines, strings.Join(words, " "))
			words = words[:0]
		}
		lastLine = lineKey
		words = append(words, text)
		confSum += conf
		confN++
	}
	if err := sc.Err(); err != nil {
		return Recognition{}, eris.Wrap(err, "ocr: read tsv")
	}
	if len(words) > 0 {
		lines = append(lines, strings.Join(words, " "))
	}

	rec := Recognition{Text: strings.Join(lines, "\n")}
	if confN > 0 {
		rec.Confidence = confSum / float64(confN)
	}
	return rec, nil
}
