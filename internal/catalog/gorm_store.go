package catalog

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"riverreader/pkg/domain"
)

// LanguagePackModel is the GORM model backing the pack catalog.
type LanguagePackModel struct {
	ID        string `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	LocalName string `gorm:"not null"`
	File      string `gorm:"not null"`
	Size      string `gorm:"not null"`
	SizeBytes int64  `gorm:"not null"`
	Version   string `gorm:"not null"`
	RTL       bool
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&LanguagePackModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreWithDB wraps an existing connection; used by tests.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&LanguagePackModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SavePack(pack domain.LanguagePack) error {
	model := LanguagePackModel{
		ID:        pack.ID,
		Code:      pack.Code,
		Name:      pack.Name,
		LocalName: pack.LocalName,
		File:      pack.File,
		Size:      pack.Size,
		SizeBytes: pack.SizeBytes,
		Version:   pack.Version,
		RTL:       pack.RTL,
		CreatedAt: pack.CreatedAt,
		UpdatedAt: pack.UpdatedAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		UpdateAll: true,
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("save pack: %w", err)
	}
	return nil
}

func (s *GormStore) GetPack(code string) (domain.LanguagePack, bool, error) {
	var model LanguagePackModel
	err := s.db.Where("code = ?", code).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.LanguagePack{}, false, nil
	}
	if err != nil {
		return domain.LanguagePack{}, false, fmt.Errorf("get pack: %w", err)
	}
	return toDomainPack(model), true, nil
}

func (s *GormStore) ListPacks() ([]domain.LanguagePack, error) {
	var models []LanguagePackModel
	if err := s.db.Order("code asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}
	packs := make([]domain.LanguagePack, 0, len(models))
	for _, model := range models {
		packs = append(packs, toDomainPack(model))
	}
	return packs, nil
}

func (s *GormStore) DeletePack(code string) error {
	if err := s.db.Where("code = ?", code).Delete(&LanguagePackModel{}).Error; err != nil {
		return fmt.Errorf("delete pack: %w", err)
	}
	return nil
}

func toDomainPack(model LanguagePackModel) domain.LanguagePack {
	return domain.LanguagePack{
		ID:        model.ID,
		Code:      model.Code,
		Name:      model.Name,
		LocalName: model.LocalName,
		File:      model.File,
		Size:      model.Size,
		SizeBytes: model.SizeBytes,
		Version:   model.Version,
		RTL:       model.RTL,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
