package dto

// AuditQuery holds audit log filters bound from the query string.
type AuditQuery struct {
	Action     string `form:"action" validate:"omitempty,max=32"`
	Actor      string `form:"actor" validate:"omitempty,max=128"`
	DocumentID string `form:"documentId" validate:"omitempty,uuid"`
	From       string `form:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To         string `form:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit      int    `form:"limit" validate:"omitempty,min=1"`
	Format     string `form:"format" validate:"omitempty,oneof=csv pdf CSV PDF"`
}

// ExportFile is a rendered audit export ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
