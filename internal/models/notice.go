package models

import (
	"time"

	"github.com/lib/pq"
)

// NoticeCategory classifies a notice on the board.
type NoticeCategory string

const (
	CategoryExam       NoticeCategory = "exam"
	CategorySports     NoticeCategory = "sports"
	CategoryEvents     NoticeCategory = "events"
	CategoryHackathons NoticeCategory = "hackathons"
	CategorySymposium  NoticeCategory = "symposium"
	CategoryDepartment NoticeCategory = "department"
	CategoryPlacement  NoticeCategory = "placement"
	CategoryCOE        NoticeCategory = "coe"
	CategoryOffice     NoticeCategory = "office"
	CategoryStaff      NoticeCategory = "staff"
)

// NoticeCategories lists every valid category in display order.
var NoticeCategories = []NoticeCategory{
	CategoryExam,
	CategorySports,
	CategoryEvents,
	CategoryHackathons,
	CategorySymposium,
	CategoryDepartment,
	CategoryPlacement,
	CategoryCOE,
	CategoryOffice,
	CategoryStaff,
}

// ValidCategory reports whether the given value is a known category.
func ValidCategory(value string) bool {
	for _, c := range NoticeCategories {
		if string(c) == value {
			return true
		}
	}
	return false
}

// AttachmentKind distinguishes the two supported attachment renderings.
type AttachmentKind string

const (
	AttachmentPDF   AttachmentKind = "pdf"
	AttachmentImage AttachmentKind = "image"
)

// Notice represents a persisted notice row.
//
// VisibleTo is stored and returned to clients but is not consulted when
// deciding visibility; only the role/category rule in internal/feed applies.
// IsApproved is likewise stored (always true at creation) and never gated.
type Notice struct {
	ID             string          `db:"id" json:"id"`
	Title          string          `db:"title" json:"title"`
	Description    string          `db:"description" json:"description"`
	Category       NoticeCategory  `db:"category" json:"category"`
	Department     *string         `db:"department" json:"department,omitempty"`
	VisibleTo      pq.StringArray  `db:"visible_to" json:"visible_to"`
	AttachmentURL  *string         `db:"attachment_url" json:"attachment_url,omitempty"`
	AttachmentName *string         `db:"attachment_name" json:"attachment_name,omitempty"`
	AttachmentKind *AttachmentKind `db:"attachment_kind" json:"attachment_kind,omitempty"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	CreatedByName  string          `db:"created_by_name" json:"created_by_name"`
	IsPinned       bool            `db:"is_pinned" json:"is_pinned"`
	IsApproved     bool            `db:"is_approved" json:"is_approved"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	ExpiryDate     *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
}

// Expired reports whether the notice's expiry is strictly before now.
// Notices without an expiry never expire.
func (n Notice) Expired(now time.Time) bool {
	return n.ExpiryDate != nil && n.ExpiryDate.Before(now)
}

// NoticeStats aggregates the whole collection for the admin panel.
type NoticeStats struct {
	Total      int                    `json:"total"`
	ByCategory map[NoticeCategory]int `json:"by_category"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
