package models

import "time"

const (
	BookTable = "lib_books"
	CopyTable = "lib_book_copies"
)

type CopyStatus string

const (
	CopyAvailable CopyStatus = "available"
	CopyBorrowed  CopyStatus = "borrowed"
	CopyReserved  CopyStatus = "reserved"
	CopyLost      CopyStatus = "lost"
	CopyDamaged   CopyStatus = "damaged"
)

func (s CopyStatus) Valid() bool {
	switch s {
	case CopyAvailable, CopyBorrowed, CopyReserved, CopyLost, CopyDamaged:
		return true
	}
	return false
}

type Book struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	ISBN      string    `gorm:"size:20;index" json:"isbn"`
	Title     string    `gorm:"size:300;not null" json:"title"`
	Author    string    `gorm:"size:200" json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BookCopy 一本书的一个实体副本；(book_id, copy_number) 唯一。
type BookCopy struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	BookID     string     `gorm:"type:uuid;not null;uniqueIndex:idx_copy_book_number" json:"bookId"`
	CopyNumber int        `gorm:"not null;uniqueIndex:idx_copy_book_number" json:"copyNumber"`
	Status     CopyStatus `gorm:"size:20;not null;default:'available';index" json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (Book) TableName() string     { return BookTable }
func (BookCopy) TableName() string { return CopyTable }
