package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/metrics"
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
	"github.com/aledz7/df-graficas-sub017/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	AttachmentPrefix = "attachments/"
	reconcileBatch   = 500
)

type AttachmentService struct {
	objects        storage.ObjectStore
	attachmentRepo repository.AttachmentRepositoryInterface
	threads        *ThreadService
	maxSize        int64
	allowed        map[string]bool
	thumbs         storage.ThumbnailOptions
	now            func() time.Time
}

// NewAttachmentService accepts a nil object store; every operation then
// fails with ErrStorageNotConfigured.
func NewAttachmentService(objects storage.ObjectStore, attachmentRepo repository.AttachmentRepositoryInterface, threads *ThreadService, maxSize int64, allowedTypes []string) *AttachmentService {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return &AttachmentService{
		objects:        objects,
		attachmentRepo: attachmentRepo,
		threads:        threads,
		maxSize:        maxSize,
		allowed:        allowed,
		thumbs:         storage.DefaultThumbnailOptions(),
		now:            systemClock,
	}
}

func (s *AttachmentService) Enabled() bool {
	return s.objects != nil
}

// Upload is a file received from a client. Size is the declared length and
// may be -1 when unknown.
type Upload struct {
	FileName string
	Size     int64
	Body     io.Reader
}

// Store validates the file and writes it (and a thumbnail for images) to
// object storage. The returned attachment is not yet persisted; it becomes
// visible only when its message is created. Callers must Discard it if the
// message cannot be written.
func (s *AttachmentService) Store(ctx context.Context, tenantID, threadID uint, file Upload) (*models.Attachment, error) {
	if s.objects == nil {
		return nil, ErrStorageNotConfigured
	}
	if s.maxSize > 0 && file.Size > s.maxSize {
		return nil, s.reject("size", "file exceeds the %s limit", humanize.Bytes(uint64(s.maxSize)))
	}

	reader := file.Body
	if s.maxSize > 0 {
		reader = io.LimitReader(file.Body, s.maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, s.reject("empty", "file is empty")
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, s.reject("size", "file exceeds the %s limit", humanize.Bytes(uint64(s.maxSize)))
	}

	name := storage.SanitizeFileName(file.FileName)
	contentType := storage.DetectContentType(name, data)
	if !s.allowed[contentType] {
		return nil, s.reject("type", "file type %s is not allowed", contentType)
	}
	category := storage.CategoryOf(contentType)

	var thumb *storage.Thumbnail
	if category == models.CategoryImage {
		thumb, err = storage.ProcessThumbnail(data, s.thumbs)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidImage) {
				return nil, s.reject("image", "image could not be read")
			}
			log.Printf("[attachments] no thumbnail for %q: %v", name, err)
			thumb = nil
		}
	}

	id := uuid.NewString()
	key, err := storage.SafeJoinKey(AttachmentPrefix, fmt.Sprintf("%d/%d/%s%s", tenantID, threadID, id, strings.ToLower(path.Ext(name))))
	if err != nil {
		return nil, s.reject("name", "file name is not usable")
	}
	stat, err := s.objects.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, err
	}

	att := &models.Attachment{
		TenantID:    tenantID,
		ThreadID:    threadID,
		FileName:    name,
		ContentType: contentType,
		Category:    category,
		SizeBytes:   int64(len(data)),
		StorageKey:  key,
		ETag:        stat.ETag,
	}
	if thumb != nil {
		thumbKey := strings.TrimSuffix(key, path.Ext(key)) + "_thumb.jpg"
		if _, err := s.objects.PutObject(ctx, thumbKey, bytes.NewReader(thumb.Data), int64(len(thumb.Data)), thumb.ContentType); err != nil {
			s.Discard(ctx, att)
			return nil, err
		}
		att.ThumbnailKey = thumbKey
		att.Width = thumb.Width
		att.Height = thumb.Height
	}
	metrics.AttachmentsStored.Inc()
	return att, nil
}

func (s *AttachmentService) reject(reason, format string, args ...interface{}) error {
	metrics.AttachmentsRejected.WithLabelValues(reason).Inc()
	return invalid("file", format, args...)
}

// Discard removes the objects of an attachment whose message was never
// written. Failures are left for reconciliation.
func (s *AttachmentService) Discard(ctx context.Context, att *models.Attachment) {
	if s.objects == nil || att == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, key := range []string{att.StorageKey, att.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := s.objects.DeleteObject(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("[attachments] discard %s failed: %v", key, err)
		}
	}
}

// Lookup returns the attachment metadata once the caller is known to be a
// member of its thread.
func (s *AttachmentService) Lookup(tenantID, userID, attachmentID uint) (*models.Attachment, error) {
	att, err := s.attachmentRepo.FindByID(tenantID, attachmentID)
	if err != nil {
		return nil, notFound(err)
	}
	if _, _, err := s.threads.Authorize(tenantID, att.ThreadID, userID); err != nil {
		return nil, err
	}
	return att, nil
}

// Open streams the attachment (or its thumbnail) from storage.
func (s *AttachmentService) Open(ctx context.Context, att *models.Attachment, thumbnail bool) (io.ReadCloser, storage.ObjectStat, error) {
	if s.objects == nil {
		return nil, storage.ObjectStat{}, ErrStorageNotConfigured
	}
	key := att.StorageKey
	if thumbnail {
		if att.ThumbnailKey == "" {
			return nil, storage.ObjectStat{}, ErrNotFound
		}
		key = att.ThumbnailKey
	}
	rc, stat, err := s.objects.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectStat{}, ErrNotFound
		}
		return nil, storage.ObjectStat{}, err
	}
	return rc, stat, nil
}

type ReconcileReport struct {
	Scanned        int      `json:"scanned"`
	Removed        int      `json:"removed"`
	RemovedKeys    []string `json:"removed_keys"`
	MissingObjects []uint   `json:"missing_objects"`
}

// Reconcile removes stored objects no attachment row references, provided
// they are older than olderThan (uploads in flight are younger), and reports
// attachment rows whose object has gone missing.
func (s *AttachmentService) Reconcile(ctx context.Context, olderThan time.Duration) (*ReconcileReport, error) {
	if s.objects == nil {
		return nil, ErrStorageNotConfigured
	}
	report := &ReconcileReport{RemovedKeys: []string{}, MissingObjects: []uint{}}

	objects, err := s.objects.ListObjects(ctx, AttachmentPrefix)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-olderThan)
	var candidates []string
	for _, obj := range objects {
		report.Scanned++
		if obj.LastModified.Before(cutoff) {
			candidates = append(candidates, obj.Key)
		}
	}

	for start := 0; start < len(candidates); start += reconcileBatch {
		end := start + reconcileBatch
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		referenced, err := s.attachmentRepo.ReferencedKeys(batch)
		if err != nil {
			return report, err
		}
		for _, key := range batch {
			if referenced[key] {
				continue
			}
			if err := s.objects.DeleteObject(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
				log.Printf("[attachments] remove orphan %s failed: %v", key, err)
				continue
			}
			report.Removed++
			report.RemovedKeys = append(report.RemovedKeys, key)
			metrics.OrphanObjectsRemoved.Inc()
		}
	}

	stored := make(map[string]bool, len(objects))
	for _, obj := range objects {
		stored[obj.Key] = true
	}
	var afterID uint
	for {
		rows, err := s.attachmentRepo.ListAfter(afterID, reconcileBatch)
		if err != nil {
			return report, err
		}
		for _, row := range rows {
			if !stored[row.StorageKey] {
				report.MissingObjects = append(report.MissingObjects, row.ID)
			}
			afterID = row.ID
		}
		if len(rows) < reconcileBatch {
			break
		}
	}

	if report.Removed > 0 || len(report.MissingObjects) > 0 {
		log.Printf("[attachments] reconcile: scanned=%d removed=%d missing=%d", report.Scanned, report.Removed, len(report.MissingObjects))
	}
	return report, nil
}
