package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// StoredDocument is one document of the tree, addressed by its full path.
type StoredDocument struct {
	Path       string         `gorm:"column:path;primaryKey" json:"path"`
	Collection string         `gorm:"column:collection;not null;index:idx_documents_collection_doc" json:"collection"`
	DocID      string         `gorm:"column:doc_id;not null;index:idx_documents_collection_doc" json:"doc_id"`
	Data       datatypes.JSON `gorm:"column:data;not null" json:"data"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (StoredDocument) TableName() string { return "documents" }
