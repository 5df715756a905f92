package emulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"tunedrop/internal/fileutil"
	"tunedrop/internal/logging"
	"tunedrop/internal/metadata"
	"tunedrop/internal/textutil"
)

const maxFieldSize = 64 << 10

// Status labels on the receive side.
const (
	statusAccepted = "accepted"
	statusRejected = "rejected"
)

// handleUpload reads the filename, metadata and file parts in order.
func (p *Peer) handleUpload(c *gin.Context) {
	start := time.Now()
	if c.Request.ContentLength > p.opts.MaxUploadBytes {
		p.recorder.ObserveUpload(statusRejected, 0, 1, time.Since(start))
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		upload   Upload
		haveName bool
		haveFile bool
	)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		switch part.FormName() {
		case "filename":
			raw, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			upload.Filename = string(raw)
			haveName = true
			if p.shouldDrop(upload.Filename) {
				p.dropConnection(c)
				return
			}
		case "metadata":
			var md metadata.Metadata
			if err := json.NewDecoder(io.LimitReader(part, maxFieldSize)).Decode(&md); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid metadata: " + err.Error()})
				return
			}
			upload.Metadata = md
		case "file":
			if !haveName {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "filename must precede file"})
				return
			}
			upload.ContentType = part.Header.Get("Content-Type")
			size, stored, sum, err := p.storeFile(upload.Filename, part)
			if err != nil {
				p.logger.Warn("store upload failed", logging.String(logging.FieldFile, upload.Filename), logging.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
				return
			}
			upload.Size = size
			upload.StoredPath = stored
			upload.SHA256 = sum
			haveFile = true
		}
		_ = part.Close()
	}
	if !haveName || !haveFile {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "filename and file parts are required"})
		return
	}

	upload.ReceivedAt = time.Now()
	p.mu.Lock()
	p.uploads = append(p.uploads, upload)
	attempts := p.attempts[upload.Filename]
	p.mu.Unlock()

	p.recorder.ObserveUpload(statusAccepted, upload.Size, attempts, time.Since(start))
	p.logger.Info("upload received",
		logging.String(logging.FieldFile, upload.Filename),
		logging.Int64("bytes", upload.Size),
		logging.String("title", upload.Metadata.Title),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "filename": upload.Filename, "size": upload.Size})
}

// shouldDrop counts the attempt and consumes one pending drop for filename.
func (p *Peer) shouldDrop(filename string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[filename]++
	if p.dropNext[filename] > 0 {
		p.dropNext[filename]--
		return true
	}
	return false
}

// dropConnection reads the rest of the request and closes the socket without
// writing a response.
func (p *Peer) dropConnection(c *gin.Context) {
	_, _ = io.Copy(io.Discard, c.Request.Body)
	conn, _, err := c.Writer.Hijack()
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	_ = conn.Close()
	c.Abort()
}

func (p *Peer) storeFile(filename string, r io.Reader) (int64, string, string, error) {
	if p.opts.StoreDir == "" {
		n, sum, err := fileutil.DiscardStream(r)
		return n, "", sum, err
	}
	target := filepath.Join(p.opts.StoreDir, textutil.SanitizeFileName(filename, "upload.bin"))
	n, sum, err := fileutil.WriteStream(target, r, 0o644)
	if err != nil {
		return n, "", "", fmt.Errorf("store %s: %w", target, err)
	}
	return n, target, sum, nil
}
