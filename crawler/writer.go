package crawler

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aurachat/empathy-crawler-service/common"
	"github.com/aurachat/empathy-crawler-service/common/storage"
	"github.com/rs/zerolog/log"
)

// BatchWriter accumulates conversations and flushes them as numbered,
// gzip-compressed JSONL files. Every flush goes to a temporary path first
// and is atomically renamed, so a reader never observes a partial file.
// Add and Flush are safe for concurrent use; the buffer has a single mutex
// owner.
type BatchWriter struct {
	mu        sync.Mutex
	dir       string
	threshold int
	seq       int
	buf       []Conversation
	files     []string

	mirror storage.StorageService
	bucket string
}

// NewBatchWriter creates a writer flushing into dir once threshold records
// are buffered. The directory is created if missing.
func NewBatchWriter(dir string, threshold int) (*BatchWriter, error) {
	if threshold <= 0 {
		threshold = 1000
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &BatchWriter{
		dir:       dir,
		threshold: threshold,
		seq:       1,
	}, nil
}

// SetMirror configures an optional object-storage mirror. Each successfully
// flushed file is uploaded after its atomic rename; mirror failures are
// logged, never fatal, since the local file is already durable.
func (w *BatchWriter) SetMirror(svc storage.StorageService, bucket string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mirror = svc
	w.bucket = bucket
}

// Add buffers one conversation, flushing when the buffer is full. A flush
// failure is returned to the caller and leaves previously written files
// untouched.
func (w *BatchWriter) Add(ctx context.Context, conv Conversation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, conv)
	if len(w.buf) >= w.threshold {
		return w.flushLocked(ctx)
	}
	return nil
}

// Flush writes all buffered conversations out. A no-op on an empty buffer.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *BatchWriter) flushLocked(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}

	name := fmt.Sprintf("batch_%03d_%s.jsonl.gz", w.seq, time.Now().UTC().Format("20060102_150405"))
	final := filepath.Join(w.dir, name)
	temp := final + ".tmp"

	written, err := w.writeFile(temp)
	if err != nil {
		// Leave no temp debris behind a failed flush.
		_ = os.Remove(temp)
		return fmt.Errorf("writing batch file: %w", err)
	}

	if err := os.Rename(temp, final); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("publishing batch file: %w", err)
	}

	log.Info().
		Str("file", final).
		Int("records", written).
		Int("dropped", len(w.buf)-written).
		Msg("Batch flushed")

	w.buf = w.buf[:0]
	w.seq++
	w.files = append(w.files, final)

	w.uploadMirror(ctx, final, name)
	return nil
}

// writeFile serializes the buffer into path. Records that fail to serialize
// are logged and dropped; they never poison the batch.
func (w *BatchWriter) writeFile(path string) (int, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	gz := gzip.NewWriter(f)
	written := 0
	for _, conv := range w.buf {
		line, err := json.Marshal(conv)
		if err != nil {
			log.Error().Err(err).
				Str("conversationID", conv.ID).
				Msg("Dropping unserializable conversation")
			continue
		}
		if _, err := gz.Write(append(line, '\n')); err != nil {
			f.Close()
			return 0, err
		}
		written++
	}

	if err := gz.Close(); err != nil {
		f.Close()
		return 0, err
	}
	// The rename is only atomic for readers if the data reached disk first.
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return written, nil
}

func (w *BatchWriter) uploadMirror(ctx context.Context, path, objectName string) {
	if w.mirror == nil || w.bucket == "" {
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Mirror upload skipped, cannot read batch file")
		return
	}
	if _, err := w.mirror.Upload(ctx, w.bucket, objectName, content, common.BatchContentType); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Mirror upload failed")
		return
	}
	log.Debug().Str("object", objectName).Msg("Batch mirrored to object storage")
}

// Pending returns the number of buffered, unflushed conversations.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Files returns the paths of all files flushed so far, in sequence order.
func (w *BatchWriter) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}
