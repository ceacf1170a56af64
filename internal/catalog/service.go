package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"riverreader/internal/epub"
	"riverreader/pkg/domain"
	"riverreader/pkg/storage"
)

var (
	// ErrUnknownLanguage means the code is not in AvailableLanguages.
	ErrUnknownLanguage = errors.New("unknown language code")
	// ErrInvalidEPUB means the uploaded file is not a readable EPUB.
	ErrInvalidEPUB = errors.New("invalid epub file")
	// ErrPackNotFound means no pack exists for the code.
	ErrPackNotFound = errors.New("language pack not found")
)

const defaultPackVersion = "1.0"

// Service coordinates pack records, blob storage, and manifest generation.
type Service struct {
	store Store
	blobs storage.ObjectStore
}

func NewService(store Store, blobs storage.ObjectStore) *Service {
	return &Service{store: store, blobs: blobs}
}

func blobKey(code string) string {
	return "books/" + code + ".epub"
}

// UploadPack validates and stores an EPUB for the language, then upserts
// the catalog record. Re-uploading a code replaces its content and keeps
// the original CreatedAt.
func (s *Service) UploadPack(ctx context.Context, code, version string, data []byte) (domain.LanguagePack, error) {
	lang, ok := LanguageInfo(code)
	if !ok {
		return domain.LanguagePack{}, ErrUnknownLanguage
	}
	if version == "" {
		version = defaultPackVersion
	}
	if _, err := epub.InspectReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return domain.LanguagePack{}, fmt.Errorf("%w: %v", ErrInvalidEPUB, err)
	}

	key := blobKey(code)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/epub+zip"); err != nil {
		return domain.LanguagePack{}, fmt.Errorf("store pack content: %w", err)
	}

	now := time.Now().UTC()
	pack := domain.LanguagePack{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      lang.Name,
		LocalName: lang.LocalName,
		File:      code + ".epub",
		Size:      FormatFileSize(int64(len(data))),
		SizeBytes: int64(len(data)),
		Version:   version,
		RTL:       lang.RTL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok, err := s.store.GetPack(code); err != nil {
		return domain.LanguagePack{}, err
	} else if ok {
		pack.ID = existing.ID
		pack.CreatedAt = existing.CreatedAt
	}
	if err := s.store.SavePack(pack); err != nil {
		return domain.LanguagePack{}, err
	}
	return pack, nil
}

// DeletePack removes the record and its blob. A missing blob does not
// block deleting the record.
func (s *Service) DeletePack(ctx context.Context, code string) error {
	_, ok, err := s.store.GetPack(code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPackNotFound
	}
	_ = s.blobs.Delete(ctx, blobKey(code))
	return s.store.DeletePack(code)
}

// SetPackVersion bumps the version of an existing pack.
func (s *Service) SetPackVersion(_ context.Context, code, version string) (domain.LanguagePack, error) {
	pack, ok, err := s.store.GetPack(code)
	if err != nil {
		return domain.LanguagePack{}, err
	}
	if !ok {
		return domain.LanguagePack{}, ErrPackNotFound
	}
	pack.Version = version
	pack.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePack(pack); err != nil {
		return domain.LanguagePack{}, err
	}
	return pack, nil
}

// GetPack returns the record for a code.
func (s *Service) GetPack(code string) (domain.LanguagePack, bool, error) {
	return s.store.GetPack(code)
}

// ListPacks returns all records ordered by code.
func (s *Service) ListPacks() ([]domain.LanguagePack, error) {
	return s.store.ListPacks()
}

// OpenPack opens the stored EPUB for a code.
func (s *Service) OpenPack(ctx context.Context, code string) (io.ReadCloser, int64, error) {
	_, ok, err := s.store.GetPack(code)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrPackNotFound
	}
	return s.blobs.Get(ctx, blobKey(code))
}

// Manifest builds the manifest the reader polls for available languages.
func (s *Service) Manifest() (domain.Manifest, error) {
	packs, err := s.store.ListPacks()
	if err != nil {
		return domain.Manifest{}, err
	}
	languages := make([]domain.ManifestLanguage, 0, len(packs))
	for _, pack := range packs {
		languages = append(languages, domain.ManifestLanguage{
			Code:      pack.Code,
			Name:      pack.Name,
			LocalName: pack.LocalName,
			File:      "books/" + pack.File,
			Size:      pack.Size,
			Version:   pack.Version,
			RTL:       pack.RTL,
		})
	}
	return domain.Manifest{
		Version:   "1.0",
		UpdatedAt: time.Now().UTC(),
		Languages: languages,
	}, nil
}

// FormatFileSize renders a byte count as a short human string, e.g.
// "1.5 MB". Whole values drop the decimal.
func FormatFileSize(n int64) string {
	if n == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	value := math.Round(float64(n)/math.Pow(1024, float64(i))*10) / 10
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + units[i]
}
