package domain

type CreateResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FileName string `json:"file_name,omitempty"`
}

type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type DownloadResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path,omitempty"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Message  string `json:"message"`
}

type UploadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type VerifyResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Statements int    `json:"statements"`
	Checksum   string `json:"checksum,omitempty"`
}

// CleanupReport lists what a retention pass removed and what it failed to remove.
type CleanupReport struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}
