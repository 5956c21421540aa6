// Package archive stores the artifacts of a finished run: the summary, the
// verbatim command trace, the JSON result and a spreadsheet report.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-onuprov/internal/config"
	"github.com/nanoncore/nano-onuprov/internal/sheet"
	"github.com/nanoncore/nano-onuprov/model"
)

// Object is one stored artifact
type Object struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// Writer stores one artifact under a run's key prefix
type Writer interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
}

// Artifact is a rendered file of a run
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Render produces every artifact of res
func Render(res *model.BatchResult) ([]Artifact, error) {
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var report bytes.Buffer
	if err := sheet.WriteReport(&report, res); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	return []Artifact{
		{Name: "summary.txt", ContentType: "text/plain; charset=utf-8", Data: []byte(res.Summary())},
		{Name: "trace.log", ContentType: "text/plain; charset=utf-8", Data: []byte(res.RenderTrace())},
		{Name: "result.json", ContentType: "application/json", Data: body},
		{Name: "report.xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Data: report.Bytes()},
	}, nil
}

// RunKey is the key prefix of a run: device/YYYYMMDD_HHMMSS/run-id
func RunKey(res *model.BatchResult) string {
	return path.Join(slug(res.Device), res.StartedAt.Format("20060102_150405"), slug(res.RunID))
}

// Save renders res and writes every artifact through w. It stops at the
// first failed write and returns what was stored so far.
func Save(ctx context.Context, w Writer, res *model.BatchResult) ([]Object, error) {
	artifacts, err := Render(res)
	if err != nil {
		return nil, err
	}
	prefix := RunKey(res)

	var stored []Object
	for _, a := range artifacts {
		obj, err := w.Put(ctx, path.Join(prefix, a.Name), a.Data, a.ContentType)
		if err != nil {
			return stored, fmt.Errorf("archive %s: %w", a.Name, err)
		}
		stored = append(stored, obj)
	}
	return stored, nil
}

// New builds the writer selected by cfg.Backend. "none" returns a nil
// writer. An unreachable MinIO falls back to the local directory.
func New(ctx context.Context, cfg config.ArchiveConfig, log logrus.FieldLogger) (Writer, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "local":
		return NewLocal(cfg.Local.Dir), nil
	case "minio":
		local := NewLocal(cfg.Local.Dir)
		remote, err := NewMinio(ctx, cfg.Minio)
		if err != nil {
			log.WithError(err).Warn("minio archive unavailable, runs go to the local directory")
			return local, nil
		}
		return &fallbackWriter{primary: remote, fallback: local, log: log}, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// fallbackWriter retries a failed primary write on the fallback
type fallbackWriter struct {
	primary  Writer
	fallback Writer
	log      logrus.FieldLogger
}

func (w *fallbackWriter) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	obj, err := w.primary.Put(ctx, key, data, contentType)
	if err == nil {
		return obj, nil
	}
	w.log.WithError(err).WithField("key", key).Warn("archive write failed, falling back to local")
	obj, lerr := w.fallback.Put(ctx, key, data, contentType)
	if lerr != nil {
		return Object{}, fmt.Errorf("primary: %v; fallback: %w", err, lerr)
	}
	return obj, nil
}

var slugRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func slug(s string) string {
	s = slugRe.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_.")
	if s == "" {
		return "unnamed"
	}
	return s
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
