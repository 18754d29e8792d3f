package batch

// ItemResult records what happened to one input item.
type ItemResult struct {
	Identifier   string `json:"identifier"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ProducedName string `json:"producedName,omitempty"`

	// ArtifactPath is the output file on disk. Empty when the item failed.
	ArtifactPath string `json:"-"`

	Outcome        string `json:"outcome"`
	Method         string `json:"method,omitempty"`
	ErrorKind      string `json:"errorKind,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	OriginalWidth  int    `json:"originalWidth,omitempty"`
	OriginalHeight int    `json:"originalHeight,omitempty"`
}

// Result is the outcome of one batch. Items follow input order.
type Result struct {
	BatchID      string
	Dir          string
	Items        []ItemResult
	SuccessCount int
	ErrorCount   int

	// ArchiveName and ArchivePath are empty when no item succeeded or the
	// archive could not be written.
	ArchiveName string
	ArchivePath string
	ArchiveSize int64
}

// Summary is the aggregate view exposed to single-item convenience callers.
type Summary struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	First      *ItemResult `json:"first,omitempty"`
}

// Summary returns the aggregate counts and the first successful item.
func (r *Result) Summary() Summary {
	s := Summary{
		Total:      len(r.Items),
		Successful: r.SuccessCount,
		Failed:     r.ErrorCount,
	}
	for i := range r.Items {
		if r.Items[i].Success {
			first := r.Items[i]
			s.First = &first
			break
		}
	}
	return s
}

// Successful returns the items that produced an output, in input order.
func (r *Result) Successful() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Success {
			out = append(out, it)
		}
	}
	return out
}
