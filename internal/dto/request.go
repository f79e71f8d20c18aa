package dto

// CreateGroupChangeRequest asks to move to another group of the same subject.
type CreateGroupChangeRequest struct {
	StudentID     string `json:"studentId" validate:"required"`
	SubjectName   string `json:"subjectName" validate:"required"`
	TargetGroupID string `json:"targetGroupId" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
}

// CreateSubjectChangeRequest asks to replace a subject with another one.
type CreateSubjectChangeRequest struct {
	StudentID         string `json:"studentId" validate:"required"`
	SubjectName       string `json:"subjectName" validate:"required"`
	TargetSubjectName string `json:"targetSubjectName" validate:"required"`
	TargetGroupID     string `json:"targetGroupId" validate:"required"`
	Reason            string `json:"reason" validate:"max=500"`
}

// ResolveRequest carries the reviewer comment for approve and reject.
type ResolveRequest struct {
	Comment string `json:"comment" validate:"max=500"`
}

// ExportFormat enumerates history export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered export ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
