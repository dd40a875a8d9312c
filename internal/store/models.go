package store

// Session is the singleton auth row.
type Session struct {
	Token        string `json:"-"`
	RefreshToken string `json:"-"`
	TenantID     string `json:"tenant_id,omitempty"`
	UserEmail    string `json:"email,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

// CaptureEntry is one indexed screenshot. Optional text columns are empty
// when absent.
type CaptureEntry struct {
	ID            int64  `json:"id"`
	Timestamp     string `json:"timestamp"`
	AppName       string `json:"app_name,omitempty"`
	WindowTitle   string `json:"window_title,omitempty"`
	OCRText       string `json:"ocr_text,omitempty"`
	ImagePath     string `json:"image_path"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	ImageHash     string `json:"image_hash"`
	Synced        bool   `json:"synced"`
	CreatedAt     string `json:"created_at"`
}

// NewCapture holds the columns supplied by the capture loop.
type NewCapture struct {
	Timestamp     string
	AppName       string
	WindowTitle   string
	OCRText       string
	ImagePath     string
	ThumbnailPath string
	ImageHash     string
}

// SearchResult is a capture matched by full-text search.
type SearchResult struct {
	CaptureEntry
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// CaptureStats summarizes the capture index.
type CaptureStats struct {
	Total    int    `json:"total"`
	Unsynced int    `json:"unsynced"`
	Oldest   string `json:"oldest,omitempty"`
	Newest   string `json:"newest,omitempty"`
}

// Upload statuses
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)

// QueueItem is one outbound file transfer.
type QueueItem struct {
	ID         int64  `json:"id"`
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	FileSize   *int64 `json:"file_size"`
	Status     string `json:"status"`
	Retries    int    `json:"retries"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

// WatchedFolder is a directory the folder watcher monitors.
type WatchedFolder struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Enabled   bool   `json:"enabled"`
	CreatedAt string `json:"created_at"`
}

// Exclusion types
const (
	ExcludeAppName     = "app_name"
	ExcludeWindowTitle = "window_title"
)

// Exclusion suppresses captures whose app name or window title contains
// Pattern, compared case-insensitively.
type Exclusion struct {
	ID        int64  `json:"id"`
	Pattern   string `json:"pattern"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}
