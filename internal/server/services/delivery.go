package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

const deliveryBufferSize = 32 * 1024

// Delivery is a decrypted download ready to be sent. ContentType and
// ContentDisposition must be written before the body.
//
// A Delivery is committed once the first byte has been handed to the
// caller. Read errors before that point are plain errors the transport can
// still turn into a status; afterwards they are wrapped in common.ErrStream,
// logged, and the transport can only abort the connection.
type Delivery struct {
	File               *models.File
	ContentType        string
	ContentDisposition string

	ctx       context.Context
	body      *bufio.Reader
	blob      io.Closer
	logger    logging.Logger
	sent      int64
	committed bool
	finished  bool
	failed    bool
}

// NewDelivery wraps a plaintext stream and the blob it is read from.
// OpenDownload primes the result before handing it out.
func NewDelivery(ctx context.Context, f *models.File, preview bool, plain io.Reader, blob io.Closer, logger logging.Logger) *Delivery {
	return &Delivery{
		File:               f,
		ContentType:        f.MimeType,
		ContentDisposition: ContentDisposition(f.FileName, preview),
		ctx:                ctx,
		body:               bufio.NewReaderSize(plain, deliveryBufferSize),
		blob:               blob,
		logger:             logger,
	}
}

// prime decrypts the first chunk so early failures (an unreadable blob, a
// small file with a bad trailer) surface before anything is committed.
func (d *Delivery) prime() error {
	_, err := d.body.Peek(1)
	if err != nil && !errors.Is(err, io.EOF) {
		d.logger.Error(d.ctx, "download failed before streaming", "file_id", d.File.ID, "error", err)
		if errors.Is(err, common.ErrStream) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrStream, err)
	}
	return nil
}

// Committed reports whether any body bytes have left the Delivery.
func (d *Delivery) Committed() bool { return d.committed }

func (d *Delivery) Read(p []byte) (int, error) {
	n, err := d.body.Read(p)
	if n > 0 {
		d.committed = true
		d.sent += int64(n)
	}
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		d.finished = true
		return n, io.EOF
	}

	if !d.committed {
		return n, err
	}
	if !d.failed {
		d.failed = true
		d.logger.Error(d.ctx, "download aborted mid-stream",
			"file_id", d.File.ID, "sent", d.sent, "size", d.File.Size, "error", err)
	}
	if errors.Is(err, common.ErrStream) {
		return n, err
	}
	return n, fmt.Errorf("%w: %w", common.ErrStream, err)
}

// Close releases the blob stream. It is safe to call more than once.
func (d *Delivery) Close() error {
	if d.blob == nil {
		return nil
	}
	if !d.finished && !d.failed {
		d.logger.Debug(d.ctx, "download closed early", "file_id", d.File.ID, "sent", d.sent)
	}
	err := d.blob.Close()
	d.blob = nil
	return err
}

// ContentDisposition builds an inline (preview) or attachment header that
// carries the original filename, RFC 2231 encoded when needed.
func ContentDisposition(fileName string, preview bool) string {
	disposition := "attachment"
	if preview {
		disposition = "inline"
	}
	if fileName == "" {
		return disposition
	}
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return disposition
}
