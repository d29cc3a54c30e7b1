package models

import (
	"strings"
	"time"
)

// Note is a titled text note owned by a single user.
type Note struct {
	ID          string        `bson:"id" json:"id"`
	Title       string        `bson:"title" json:"title"`
	Content     string        `bson:"content" json:"content"`
	UserID      string        `bson:"userId" json:"userId"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
	Attachments []*Attachment `bson:"-" json:"attachments"`
}

// Attachment is the metadata row for one uploaded file. The bytes live in
// object storage under Path.
type Attachment struct {
	ID        string    `bson:"id" json:"id"`
	NoteID    string    `bson:"noteId" json:"noteId"`
	FileName  string    `bson:"fileName" json:"fileName"`
	FileType  string    `bson:"fileType" json:"fileType"`
	FileSize  int64     `bson:"fileSize" json:"fileSize"`
	Path      string    `bson:"path" json:"path"`
	UserID    string    `bson:"userId" json:"userId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// IsImage reports whether the declared type is an image/* type.
func (a *Attachment) IsImage() bool { return strings.HasPrefix(a.FileType, "image/") }

// IsPDF reports whether the declared type is application/pdf.
func (a *Attachment) IsPDF() bool { return a.FileType == "application/pdf" }
